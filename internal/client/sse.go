package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 1 << 20

// StreamEvents implements BeadsClient. It returns nil when the server ends
// the stream or ctx is cancelled.
func (c *HTTPClient) StreamEvents(ctx context.Context, sr *StreamRequest, fn func(*StreamEvent) error) error {
	path := "/v1/events/stream"
	if sr != nil && len(sr.Topics) > 0 {
		path += "?" + url.Values{"topics": {strings.Join(sr.Topics, ",")}}.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if sr != nil && sr.LastEventID != "" {
		req.Header.Set("Last-Event-ID", sr.LastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apiError(resp.StatusCode, body)
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses a text/event-stream body. Comment lines (keepalives)
// are skipped; an event is dispatched on the blank line that ends it.
func readEvents(r io.Reader, fn func(*StreamEvent) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)

	var (
		evt  StreamEvent
		data []string
		seen bool
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if seen {
				evt.Data = []byte(strings.Join(data, "\n"))
				e := evt
				if err := fn(&e); err != nil {
					return err
				}
			}
			evt, data, seen = StreamEvent{}, nil, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			evt.ID = value
		case "event":
			evt.Topic = value
		case "data":
			data = append(data, value)
		default:
			continue
		}
		seen = true
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
