// Package notify pushes operator notifications to an ntfy topic. Worker
// alerts and server errors go out as plain POSTs, so any ntfy-compatible
// endpoint works.
package notify

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/server"
)

// Endpoint expands a URL template like "https://ntfy.sh/{topic}" with the
// configured topic.
func Endpoint(template, topic string) string {
	return strings.ReplaceAll(template, "{topic}", topic)
}

// Service forwards client alerts and error-level log events to ntfy. It
// is only registered when a notification topic is configured.
type Service struct {
	*bus.Core
	url    string
	client *http.Client
}

// New returns the notification service, named "notify". endpoint is the
// already expanded ntfy URL.
func New(endpoint string) *Service {
	return &Service{
		Core:   bus.NewCore("notify"),
		url:    endpoint,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Init subscribes to the log topic and client alerts, so it must register
// after the session handler.
func (s *Service) Init() error {
	if err := s.Subscribe(bus.TopicLog, s.onLog); err != nil {
		return err
	}
	return s.Subscribe(server.TopicClientAlert, s.onAlert)
}

func (s *Service) onAlert(e bus.Event) {
	ev, ok := e.(server.AlertEvent)
	if !ok {
		log.Warn(log.CatNotify, "alert event with unexpected payload", "type", fmt.Sprintf("%T", e))
		return
	}
	s.push("worker alert", "high", "warning",
		fmt.Sprintf("client %d: %s", ev.ID, ev.Message))
}

// onLog forwards error-level entries. Warnings stay on screen; client
// alerts already arrive through their own topic, pushing their warn log
// line too would notify twice.
func (s *Service) onLog(e bus.Event) {
	ev, ok := e.(bus.LogEvent)
	if !ok || ev.Level < log.LevelError {
		return
	}
	if ev.Service == s.Name() {
		return
	}
	s.push("server error", "", "rotating_light",
		fmt.Sprintf("[%s] %s", ev.Service, ev.Message))
}

// push runs on the service's consumer goroutine; a slow endpoint delays
// later notifications, nothing else. Failures go to the ambient logger
// only, never back onto the log topic.
func (s *Service) push(title, priority, tags, body string) {
	req, err := http.NewRequest(http.MethodPost, s.url, strings.NewReader(body))
	if err != nil {
		log.ErrorErr(log.CatNotify, "build notification", err)
		return
	}
	req.Header.Set("X-Title", title)
	if priority != "" {
		req.Header.Set("X-Priority", priority)
	}
	if tags != "" {
		req.Header.Set("X-Tags", tags)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.ErrorErr(log.CatNotify, "push notification", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		log.Error(log.CatNotify, "notification rejected", "status", resp.Status)
	}
}
