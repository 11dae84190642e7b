package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

// StreamEvent is one item produced by Stream: either the open confirmation
// or a progress snapshot.
type StreamEvent struct {
	Open     bool
	Progress *Progress
}

// Stream subscribes to the server-sent progress events of a job and forwards them
// to events until the server closes the stream, ctx is done, or a transport error
// occurs. A clean end of stream returns io.EOF.
func (c *Client) Stream(ctx context.Context, kind Kind, id string, events chan<- StreamEvent) error {
	if kind != KindWorkflow {
		return ErrStreamUnsupported
	}

	path := fmt.Sprintf("/%s/progress/%s/stream", kind, url.PathEscape(id))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newAPIError(resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("unexpected stream content type %q", ct)
	}

	if err := send(ctx, events, StreamEvent{Open: true}); err != nil {
		return err
	}

	return readEvents(ctx, resp.Body, func(data string) error {
		p, err := decodeProgress([]byte(data))
		if err != nil {
			log.Warn("Skipping malformed progress event for %s %s: %v", kind, id, err)
			return nil
		}
		return send(ctx, events, StreamEvent{Progress: p})
	})
}

func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readEvents parses a text/event-stream body and calls dispatch with the joined
// data lines of each event. Comments and non-data fields are ignored.
func readEvents(ctx context.Context, r io.Reader, dispatch func(data string) error) error {
	reader := bufio.NewReader(r)
	var data []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				if tail := strings.TrimRight(line, "\r"); strings.HasPrefix(tail, "data:") {
					data = append(data, strings.TrimPrefix(strings.TrimPrefix(tail, "data:"), " "))
				}
				if len(data) > 0 {
					if derr := dispatch(strings.Join(data, "\n")); derr != nil {
						return derr
					}
				}
				return io.EOF
			}
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if err := dispatch(payload); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
