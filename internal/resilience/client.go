package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/pkg/wire"
	"go.uber.org/zap"
)

// Options tune the recovery policy. Zero values take the defaults.
type Options struct {
	MaxAttempts int           // reconnect budget per outage (default 5)
	BaseDelay   time.Duration // first backoff step (default 1s)
	MaxDelay    time.Duration // backoff cap (default 10s)
	Heartbeat   time.Duration // liveness emission period (default 25s)
	PollWait    time.Duration // server hold window on the fallback (default 25s)
}

func (o *Options) withDefaults() {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 25 * time.Second
	}
	if o.PollWait <= 0 {
		o.PollWait = 25 * time.Second
	}
}

// Client is the conforming counterpart to the coordinator's protocol:
// transport negotiation (websocket first, long-poll fallback), bounded
// jittered reconnect backoff, periodic heartbeats, and application-level
// rejoin after reconnect. The server assigns a fresh connection identity
// per physical connection; seat continuity comes only from the rejoin.
type Client struct {
	httpURL string
	wsURL   string
	opts    Options

	mu    sync.RWMutex
	tr    link
	state State

	cbM      sync.RWMutex
	evCbs    []EventCallback
	stateCbs []StateCallback

	roomM sync.Mutex
	room  string

	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	hbStarted  bool
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewClient takes the server's base HTTP URL; the websocket endpoint is
// derived from it.
func NewClient(baseURL string, opts Options) *Client {
	opts.withDefaults()
	base := strings.TrimRight(baseURL, "/")
	ws := strings.Replace(strings.Replace(base, "https://", "wss://", 1), "http://", "ws://", 1) + "/ws"
	return &Client{
		httpURL: base,
		wsURL:   ws,
		opts:    opts,
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
	}
}

// Connect negotiates the first transport. A failed initial dial still
// schedules the reconnect loop, same as a mid-session drop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	startHB := !c.hbStarted
	c.hbStarted = true
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	if startHB {
		c.wg.Add(1)
		go c.heartbeatLoop()
	}

	tr, err := c.negotiate(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return err
	}
	c.adopt(tr)
	return nil
}

// negotiate attempts the upgradeable transport first and falls back to
// baseline long-polling. Every call starts from scratch, so a transient
// websocket failure never pins the client to the fallback forever.
func (c *Client) negotiate(ctx context.Context) (link, error) {
	ws, wsErr := dialWS(ctx, c.wsURL)
	if wsErr == nil {
		return ws, nil
	}
	obslog.L().Debug("ws_dial_failed", zap.Error(wsErr))
	lp, lpErr := openPoll(ctx, c.httpURL, c.opts.PollWait)
	if lpErr == nil {
		obslog.L().Info("transport_fallback", zap.String("transport", lp.name()))
		return lp, nil
	}
	return nil, errors.Join(wsErr, lpErr)
}

// adopt installs a fresh transport and starts its read loop.
func (c *Client) adopt(tr link) {
	c.mu.Lock()
	c.tr = tr
	ctx := c.rootCtx
	c.mu.Unlock()
	c.setState(StateConnected)
	c.wg.Add(1)
	go c.runLoop(ctx, tr)
}

func (c *Client) runLoop(ctx context.Context, tr link) {
	defer c.wg.Done()
	err := tr.run(ctx, c.deliver)
	tr.close()
	if c.isStopping() || ctx.Err() != nil {
		return
	}
	obslog.L().Warn("transport_lost", zap.String("transport", tr.name()), zap.Error(err))
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.opts.MaxAttempts <= 0 {
		c.setState(StateFailed)
		return
	}
	c.setState(StateReconnecting)
	c.mu.RLock()
	ctx := c.rootCtx
	c.mu.RUnlock()
	go func() {
		for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
			t := time.NewTimer(backoffDuration(attempt, c.opts.BaseDelay, c.opts.MaxDelay))
			select {
			case <-c.stopCh:
				t.Stop()
				return
			case <-t.C:
			}
			tr, err := c.negotiate(ctx)
			if err != nil {
				obslog.L().Debug("reconnect_attempt_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			c.adopt(tr)
			c.reannounce(ctx, tr)
			return
		}
		obslog.L().Error("reconnect_exhausted", zap.Int("attempts", c.opts.MaxAttempts))
		c.setState(StateFailed)
	}()
}

// reannounce re-associates with the remembered room after a reconnect;
// the transport layer never restores seats by itself.
func (c *Client) reannounce(ctx context.Context, tr link) {
	c.roomM.Lock()
	room := c.room
	c.roomM.Unlock()
	if room == "" {
		return
	}
	if err := tr.send(ctx, &wire.Event{Type: wire.TypeJoinRoom, RoomID: room}); err != nil {
		obslog.L().Warn("rejoin_send_failed", zap.String("room_id", room), zap.Error(err))
	}
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.opts.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if c.CurrentState() != StateConnected {
				continue
			}
			c.mu.RLock()
			ctx := c.rootCtx
			c.mu.RUnlock()
			// advisory; a failure here surfaces through the read loop
			_ = c.Send(ctx, &wire.Event{Type: wire.TypeHeartbeat})
		}
	}
}

func (c *Client) deliver(ev *wire.Event) {
	if ev == nil {
		return
	}
	if ev.Type == wire.TypeRoomCreated && ev.RoomID != "" {
		c.roomM.Lock()
		c.room = ev.RoomID
		c.roomM.Unlock()
	}
	c.cbM.RLock()
	cbs := make([]EventCallback, len(c.evCbs))
	copy(cbs, c.evCbs)
	c.cbM.RUnlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(ev)
		}
	}
}

// Send writes one event on the current transport.
func (c *Client) Send(ctx context.Context, ev *wire.Event) error {
	c.mu.RLock()
	tr := c.tr
	state := c.state
	c.mu.RUnlock()
	if tr == nil || state != StateConnected {
		return errors.New("not connected")
	}
	return tr.send(ctx, ev)
}

// CreateRoom asks the server for a fresh room; the room-created reply
// carries the id, which the client remembers for rejoin.
func (c *Client) CreateRoom(ctx context.Context) error {
	return c.Send(ctx, &wire.Event{Type: wire.TypeCreateRoom})
}

// JoinRoom joins (or rejoins) a room and remembers it.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	c.roomM.Lock()
	c.room = roomID
	c.roomM.Unlock()
	return c.Send(ctx, &wire.Event{Type: wire.TypeJoinRoom, RoomID: roomID})
}

// RequestState asks for the authoritative snapshot; read-only.
func (c *Client) RequestState(ctx context.Context, roomID string) error {
	return c.Send(ctx, &wire.Event{Type: wire.TypeRequestState, RoomID: roomID})
}

// Move submits a move in UCI or SAN.
func (c *Client) Move(ctx context.Context, roomID, move string) error {
	return c.Send(ctx, &wire.Event{Type: wire.TypeMove, RoomID: roomID, Move: move})
}

func (c *Client) OnEvent(cb EventCallback) {
	c.cbM.Lock()
	c.evCbs = append(c.evCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) OnStateChange(cb StateCallback) {
	c.cbM.Lock()
	c.stateCbs = append(c.stateCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) CurrentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notifyState(state)
}

func (c *Client) notifyState(state State) {
	c.cbM.RLock()
	cbs := make([]StateCallback, len(c.stateCbs))
	copy(cbs, c.stateCbs)
	c.cbM.RUnlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(state)
		}
	}
}

// Close stops the client, cancelling any pending reconnect timer.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	if c.rootCancel != nil {
		c.rootCancel()
	}
	if c.tr != nil {
		c.tr.close()
		c.tr = nil
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}
