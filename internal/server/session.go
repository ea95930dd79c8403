package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/protocol"
)

type liveSession struct {
	conn net.Conn
	span trace.Span
}

// endOfStream is queued on the recv topic when the socket dies, so the
// session ends only after every line it delivered has been handled.
type endOfStream struct{}

// Handler owns worker sessions. For each accepted connection it assigns a
// monotonically increasing session id, creates the session's five topics
// (progress, alert, recv, send, keepalive under "handler/<id>"), starts a
// reader task, and bridges parsed lines onto the client-* topics. Session
// ids are never reused; display slots are, but that is the registry's
// business.
type Handler struct {
	*bus.Core
	tracer trace.Tracer

	mu      sync.Mutex
	counter int
	conns   map[int]*liveSession
}

// NewHandler returns the session handler service, named "handler". A nil
// tracer falls back to a noop one.
func NewHandler(tracer trace.Tracer) *Handler {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &Handler{
		Core:   bus.NewCore(bus.SessionPrefix),
		tracer: tracer,
		conns:  make(map[int]*liveSession),
	}
}

// Init creates the client-* topics and subscribes to accepted connections
// and kick requests.
func (h *Handler) Init() error {
	topics := []bus.Topic{
		TopicClientJoin,
		TopicClientLeave,
		TopicClientDone,
		TopicClientProgress,
		TopicClientAlert,
		TopicClientActivity,
		TopicClientKick,
	}
	for _, topic := range topics {
		if err := h.CreateTopic(topic); err != nil {
			return err
		}
	}
	if err := h.Subscribe(TopicListener, h.onConn); err != nil {
		return err
	}
	return h.Subscribe(TopicClientKick, h.onKick)
}

// Run waits for shutdown, then closes every live connection so the reader
// tasks unblock and publish their leaves while the bus drains.
func (h *Handler) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	sessions := make([]*liveSession, 0, len(h.conns))
	for _, s := range h.conns {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.conn.Close()
	}
	return nil
}

// Sessions returns the number of live sessions.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Handler) onConn(e bus.Event) {
	ev, ok := e.(ConnEvent)
	if !ok {
		h.Log(log.LevelWarn, "listener event with unexpected payload %T", e)
		return
	}
	conn := ev.Conn

	h.mu.Lock()
	id := h.counter
	h.counter++
	_, span := h.tracer.Start(context.Background(), "session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("session.id", id),
			attribute.String("net.peer", conn.RemoteAddr().String()),
		))
	h.conns[id] = &liveSession{conn: conn, span: span}
	h.mu.Unlock()

	prefix := bus.SessionName(id)

	// Topics first, join after: a subscriber reacting to the join must be
	// able to attach to the session topics right away.
	for _, ch := range []bus.Channel{
		bus.ChannelProgress,
		bus.ChannelAlert,
		bus.ChannelRecv,
		bus.ChannelSend,
		bus.ChannelKeepalive,
	} {
		if err := h.CreateTopic(bus.ForSession(id, ch)); err != nil {
			h.Log(log.LevelWarn, "create %s failed: %v", bus.ForSession(id, ch), err)
		}
	}
	if err := h.Subscribe(bus.ForSession(id, bus.ChannelRecv), func(e bus.Event) {
		h.onLine(id, e)
	}); err != nil {
		h.Log(log.LevelWarn, "subscribe recv for session %d failed: %v", id, err)
	}
	if err := h.Subscribe(bus.ForSession(id, bus.ChannelSend), func(e bus.Event) {
		h.onSend(id, conn, e)
	}); err != nil {
		h.Log(log.LevelWarn, "subscribe send for session %d failed: %v", id, err)
	}

	h.publish(TopicClientJoin, JoinEvent{ID: id, Name: prefix})
	h.Log(log.LevelInfo, "client-join %d %s from %s", id, prefix, conn.RemoteAddr())

	h.Go(prefix+".reader", func() { h.readLoop(id, conn) })
}

// readLoop publishes each received line to the session's recv topic,
// then the end-of-stream marker once the socket dies. Threading the
// marker through the same queue keeps it behind every line the client
// managed to send, so a final "done" is handled before the leave. A
// trailing partial line is discarded.
func (h *Handler) readLoop(id int, conn net.Conn) {
	recv := bus.ForSession(id, bus.ChannelRecv)
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if _, err := h.Publish(recv, line); err != nil {
			break
		}
	}
	if _, err := h.Publish(recv, endOfStream{}); err != nil {
		h.endSession(id)
	}
}

// onLine parses one line from the session's recv queue and fans the
// result out to the session and client-* topics. Malformed lines are
// logged and dropped; the session lives on.
func (h *Handler) onLine(id int, e bus.Event) {
	if _, eos := e.(endOfStream); eos {
		h.endSession(id)
		return
	}
	line, ok := e.(string)
	if !ok {
		h.Log(log.LevelWarn, "recv event with unexpected payload %T", e)
		return
	}

	h.publish(TopicClientActivity, ActivityEvent{ID: id})

	cmd, err := protocol.ParseLine(line)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyLine) {
			h.Log(log.LevelDebug, "session %d sent an empty line", id)
		} else {
			h.Log(log.LevelWarn, "session %d sent a malformed line: %v", id, err)
		}
		return
	}

	switch cmd := cmd.(type) {
	case protocol.ProgressCommand:
		h.Log(log.LevelDebug, "progress %d %s", id, cmd.Progress)
		h.publish(bus.ForSession(id, bus.ChannelProgress), cmd.Progress)
		h.publish(TopicClientProgress, ProgressEvent{ID: id, Progress: cmd.Progress})
	case protocol.AlertCommand:
		h.Log(log.LevelDebug, "alert %d %s", id, cmd.Message)
		h.publish(bus.ForSession(id, bus.ChannelAlert), cmd.Message)
		h.publish(TopicClientAlert, AlertEvent{ID: id, Message: cmd.Message})
	case protocol.DoneCommand:
		h.Log(log.LevelDebug, "done %d", id)
		h.publish(TopicClientDone, DoneEvent{ID: id})
	case protocol.KeepaliveCommand:
		h.Log(log.LevelDebug, "keepalive %d", id)
		h.publish(bus.ForSession(id, bus.ChannelKeepalive), struct{}{})
	}
}

// onSend writes raw bytes from the session's send topic to the socket.
func (h *Handler) onSend(id int, conn net.Conn, e bus.Event) {
	var data []byte
	switch payload := e.(type) {
	case []byte:
		data = payload
	case string:
		data = []byte(payload)
	default:
		h.Log(log.LevelWarn, "send event with unexpected payload %T", e)
		return
	}
	if _, err := conn.Write(data); err != nil {
		h.Log(log.LevelDebug, "session %d write failed: %v", id, err)
	}
}

// onKick closes the session's connection. The reader then winds the
// session down through the usual leave path. Kicks for sessions already
// gone are expected noise from the watchdog and ignored.
func (h *Handler) onKick(e bus.Event) {
	ev, ok := e.(KickEvent)
	if !ok {
		h.Log(log.LevelWarn, "kick event with unexpected payload %T", e)
		return
	}

	h.mu.Lock()
	s, ok := h.conns[ev.ID]
	h.mu.Unlock()
	if !ok {
		h.Log(log.LevelDebug, "kick for unknown session %d", ev.ID)
		return
	}

	s.span.AddEvent("kicked")
	h.Log(log.LevelInfo, "kicking session %d", ev.ID)
	_ = s.conn.Close()
}

// endSession runs exactly once per session, normally from the recv
// handler when the end-of-stream marker arrives: it publishes the leave
// and closes the session's topics.
func (h *Handler) endSession(id int) {
	h.mu.Lock()
	s, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	_ = s.conn.Close()
	s.span.End()

	if _, err := h.Publish(TopicClientLeave, LeaveEvent{ID: id}); err != nil {
		log.Debug(log.CatSession, "client-leave publish skipped", "id", id, "error", err.Error())
	}
	h.Log(log.LevelInfo, "client-leave %d", id)

	for _, ch := range []bus.Channel{
		bus.ChannelProgress,
		bus.ChannelAlert,
		bus.ChannelRecv,
		bus.ChannelSend,
		bus.ChannelKeepalive,
	} {
		if err := h.CloseTopic(bus.ForSession(id, ch)); err != nil {
			log.Debug(log.CatSession, "session topic close skipped",
				"topic", bus.ForSession(id, ch).String(), "error", err.Error())
		}
	}
}

func (h *Handler) publish(topic bus.Topic, e bus.Event) {
	if _, err := h.Publish(topic, e); err != nil {
		h.Log(log.LevelWarn, "publish to %s failed: %v", topic, err)
	}
}
