// Package protocol parses the line protocol workers speak over TCP.
// Each line is a command word followed by whitespace-separated arguments:
//
//	progress 3 10
//	progress 37.5
//	alert disk almost full
//	keepalive
//	done
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse failures. Sessions log and drop malformed lines rather than
// dropping the worker.
var (
	ErrEmptyLine       = errors.New("empty line")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
)

// ParseLine parses one newline-stripped line from a worker connection.
//
// Progress accepts two shapes: "progress <done> <total>" with integer
// counts, and "progress <percent>" with a float already scaled to 0..100.
// Arguments that do not parse as numbers are kept as display text instead
// of being rejected, so a worker printing "progress building index" still
// gets its words shown. Alert keeps the rest of the line verbatim,
// interior spacing included.
func ParseLine(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return nil, ErrEmptyLine
	}
	fields := strings.Fields(raw)
	cmd, args := fields[0], fields[1:]
	rest := strings.TrimSpace(raw[len(cmd):])

	switch cmd {
	case "progress":
		if len(args) == 0 {
			return nil, fmt.Errorf("progress: %w", ErrMissingArgument)
		}
		return ProgressCommand{Progress: parseProgress(args, rest)}, nil
	case "alert":
		if rest == "" {
			return nil, fmt.Errorf("alert: %w", ErrMissingArgument)
		}
		return AlertCommand{Message: rest}, nil
	case "done":
		return DoneCommand{}, nil
	case "keepalive":
		return KeepaliveCommand{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", cmd, ErrUnknownCommand)
	}
}

// parseProgress interprets the arguments of a progress command, falling
// back to the raw argument text when they are not numeric or the total is
// zero.
func parseProgress(args []string, rest string) Progress {
	switch len(args) {
	case 1:
		percent, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return TextProgress(rest)
		}
		return RatioProgress(percent / 100)
	case 2:
		done, errDone := strconv.ParseInt(args[0], 10, 64)
		total, errTotal := strconv.ParseInt(args[1], 10, 64)
		if errDone != nil || errTotal != nil || total == 0 {
			return TextProgress(rest)
		}
		return RatioProgress(float64(done) / float64(total))
	default:
		return TextProgress(rest)
	}
}
