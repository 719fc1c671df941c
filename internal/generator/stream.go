package generator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brokechef/fridgechef/internal/auth"
	"github.com/brokechef/fridgechef/internal/domain"
)

// maxLineSize bounds a single event line. Success payloads carry generated
// images inline as data URLs, so lines can be several megabytes.
const maxLineSize = 32 * 1024 * 1024

const connectionLost = "Connection lost. Please try again."

// Events opens the event stream and returns a channel that receives at most
// one terminal event before being closed. If ctx is cancelled the connection
// is closed and the channel is closed without an event.
func (c *Client) Events(ctx context.Context) <-chan domain.GenerationEvent {
	out := make(chan domain.GenerationEvent, 1)
	go func() {
		defer close(out)
		ev, ok := c.readEvents(ctx)
		if !ok || ctx.Err() != nil {
			return
		}
		out <- ev
	}()
	return out
}

func (c *Client) readEvents(ctx context.Context) (domain.GenerationEvent, bool) {
	req, err := newRequest(ctx, "GET", c.baseURL+"/events", nil)
	if err != nil {
		return domain.ErrorEvent(err, "failed to create event stream request"), true
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if err := auth.Authorize(req, c.tokens); err != nil {
		return networkEvent(err, "Failed to read session token."), true
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.GenerationEvent{}, false
		}
		c.logger.Debug("event stream connect failed", "error", err)
		return networkEvent(err, connectionLost), true
	}
	defer closeWithLog(resp.Body, "event stream", c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(fmt.Sprintf("event stream connection failed (%d). %s", resp.StatusCode, strings.TrimSpace(string(raw))))
		return networkEvent(fmt.Errorf("events: status %d", resp.StatusCode), msg), true
	}

	return c.scanEvents(ctx, resp.Body)
}

// scanEvents reads lines from body until a terminal event, end of stream, an
// idle read timeout, or cancellation.
func (c *Client) scanEvents(ctx context.Context, body io.ReadCloser) (domain.GenerationEvent, bool) {
	var timedOut atomic.Bool
	idle := time.AfterFunc(c.readTimeout, func() {
		timedOut.Store(true)
		_ = body.Close()
	})
	defer idle.Stop()

	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for {
		if ctx.Err() != nil {
			return domain.GenerationEvent{}, false
		}
		idle.Reset(c.readTimeout)
		if !sc.Scan() {
			break
		}
		if ev, done := decodeLine(sc.Text()); done {
			c.logger.Debug("event stream finished", "kind", ev.Kind.String())
			return ev, true
		}
	}

	switch {
	case ctx.Err() != nil:
		return domain.GenerationEvent{}, false
	case timedOut.Load():
		return networkEvent(errors.New("event stream read timed out"), "Timed out waiting for recipes. Please try again."), true
	case sc.Err() != nil:
		if errors.Is(sc.Err(), bufio.ErrTooLong) {
			return protocolEvent(sc.Err(), "failed to parse event data: line too long"), true
		}
		return networkEvent(sc.Err(), connectionLost), true
	default:
		return protocolEvent(io.ErrUnexpectedEOF, "event stream closed before recipes were generated"), true
	}
}

// decodeLine interprets one line of the event stream. It reports done when
// the line produced a terminal event.
func decodeLine(line string) (domain.GenerationEvent, bool) {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return domain.GenerationEvent{}, false
	}
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return domain.GenerationEvent{}, false
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return domain.GenerationEvent{}, false
	}

	var data domain.EventPayload
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return protocolEvent(err, "failed to parse event data"), true
	}

	switch data.Status {
	case domain.StatusSuccess:
		if len(data.Recipes) == 0 {
			return protocolEvent(errors.New("success event without recipes"), "No recipes were generated. Please try another photo."), true
		}
		return domain.SuccessEvent(data.Recipes), true
	case domain.StatusError:
		msg := strings.TrimSpace(data.Message)
		if msg == "" {
			msg = "Recipe generation failed."
		}
		return domain.ErrorEvent(domain.NewUserError(domain.ErrApplication, msg, nil), msg), true
	default:
		return protocolEvent(fmt.Errorf("unknown status %q", data.Status), "failed to parse event data"), true
	}
}

func networkEvent(cause error, msg string) domain.GenerationEvent {
	return domain.ErrorEvent(domain.NewUserError(domain.ErrNetwork, msg, cause), msg)
}

func protocolEvent(cause error, msg string) domain.GenerationEvent {
	return domain.ErrorEvent(domain.NewUserError(domain.ErrProtocol, msg, cause), msg)
}

func newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, url, body)
}
