package resilience

import (
	"context"
	"time"

	"github.com/dkim-lab/chess-arena/pkg/wire"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// link is one negotiated duplex channel to the server. run delivers
// inbound events until the channel fails or ctx is cancelled.
type link interface {
	name() string
	send(ctx context.Context, ev *wire.Event) error
	run(ctx context.Context, deliver func(*wire.Event)) error
	close()
}

type wsTransport struct {
	conn *websocket.Conn
}

func dialWS(ctx context.Context, url string) (*wsTransport, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) name() string { return "websocket" }

func (t *wsTransport) send(ctx context.Context, ev *wire.Event) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return wsjson.Write(ctx, t.conn, ev)
}

func (t *wsTransport) run(ctx context.Context, deliver func(*wire.Event)) error {
	for {
		var ev wire.Event
		if err := wsjson.Read(ctx, t.conn, &ev); err != nil {
			return err
		}
		deliver(&ev)
	}
}

func (t *wsTransport) close() {
	_ = t.conn.Close(websocket.StatusNormalClosure, "close")
}
