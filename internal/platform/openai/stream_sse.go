package openai

import (
	"bufio"
	"io"
	"strings"
)

// streamSSE parses a text/event-stream body and invokes handle once per event
// with the event name (may be empty) and the joined data payload. A non-nil
// error from handle aborts the stream and is returned as-is.
func streamSSE(r io.Reader, handle func(event string, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data []string

	flush := func() error {
		if len(data) == 0 && event == "" {
			return nil
		}
		payload := strings.Join(data, "\n")
		err := handle(event, payload)
		event = ""
		data = data[:0]
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			// comment / keepalive
			continue
		}
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}
