package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/poppop/racer/internal/dispatcher"
	"github.com/poppop/racer/internal/util"
)

// maxLineSize bounds a single host command line.
const maxLineSize = 1 << 20

// ServeLines reads host commands of the form COMMAND|arg|arg from r, one per
// line, dispatches them on d and writes one JSON reply per line to w. It
// returns when r is exhausted or ctx is cancelled.
func ServeLines(ctx context.Context, d *dispatcher.Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	bw := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		command, args := util.SplitCommand(line)

		var reply string
		if !d.HasHandler(command) {
			reply = formatResponse(command, nil, fmt.Errorf("no handler registered"))
		} else {
			result, err := d.Dispatch(dispatcher.Event{
				Command:   command,
				Args:      args,
				Timestamp: time.Now(),
			})
			reply = formatResponse(command, result, err)
		}

		if _, err := bw.WriteString(reply + "\n"); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// formatResponse renders ["ok", cmd, result] or ["error", cmd, msg].
func formatResponse(command string, result any, err error) string {
	var reply []any
	switch {
	case err != nil:
		reply = []any{"error", command, err.Error()}
	case result == nil:
		reply = []any{"ok", command}
	default:
		reply = []any{"ok", command, result}
	}

	data, mErr := json.Marshal(reply)
	if mErr != nil {
		data, _ = json.Marshal([]any{"error", command, mErr.Error()})
	}
	return string(data)
}
