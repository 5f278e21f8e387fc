package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkim-lab/chess-arena/pkg/wire"
	"github.com/valyala/fasthttp"
)

// pollTransport is the baseline fallback for networks that block
// persistent connections: outbound events POSTed one at a time, inbound
// events fetched in a blocking GET loop.
type pollTransport struct {
	base   string
	connID string
	http   *fasthttp.Client
	wait   time.Duration
}

func openPoll(ctx context.Context, base string, wait time.Duration) (*pollTransport, error) {
	t := &pollTransport{
		base: strings.TrimRight(base, "/"),
		http: &fasthttp.Client{WriteTimeout: 10 * time.Second},
		wait: wait,
	}
	body, err := t.do(ctx, fasthttp.MethodPost, "/poll/open", nil, 10*time.Second)
	if err != nil {
		return nil, err
	}
	var opened struct {
		ConnID string `json:"conn_id"`
	}
	if err := json.Unmarshal(body, &opened); err != nil || opened.ConnID == "" {
		return nil, fmt.Errorf("poll open: bad response")
	}
	t.connID = opened.ConnID
	return t, nil
}

func (t *pollTransport) name() string { return "long-poll" }

func (t *pollTransport) send(ctx context.Context, ev *wire.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = t.do(ctx, fasthttp.MethodPost, "/poll/send?conn="+t.connID, payload, 10*time.Second)
	return err
}

func (t *pollTransport) run(ctx context.Context, deliver func(*wire.Event)) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// the server holds the request up to its wait window
		body, err := t.do(ctx, fasthttp.MethodGet, "/poll/events?conn="+t.connID, nil, t.wait+10*time.Second)
		if err != nil {
			failures++
			if failures >= 3 {
				return err
			}
			continue
		}
		failures = 0
		var events []*wire.Event
		if err := json.Unmarshal(body, &events); err != nil {
			continue
		}
		for _, ev := range events {
			deliver(ev)
		}
	}
}

func (t *pollTransport) close() {
	// nothing to tear down; the server expires the session when the
	// polling stops
}

func (t *pollTransport) do(ctx context.Context, method, path string, payload []byte, timeout time.Duration) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(t.base + path)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := t.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("poll api error: status=%d", status)
	}
	return append([]byte(nil), resp.Body()...), nil
}
