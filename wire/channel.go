// Package wire provides the transport implementations behind the core's
// channel and control interfaces: a WebSocket duplex channel and a REST
// client for persistent-session lifecycle.
package wire

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/webmux/core"
	"pkt.systems/webmux/schema"
)

// Dialer opens WebSocket channels to the backend endpoint.
type Dialer struct {
	url    string
	header http.Header
	log    pslog.Logger
}

// NewDialer constructs a dialer for the given ws:// or wss:// URL.
func NewDialer(url string, logger pslog.Logger) *Dialer {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Dialer{url: url, log: logger.With("endpoint", url)}
}

// Dial implements core.Dialer.
func (d *Dialer) Dial(ctx context.Context) (core.Channel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("dial %s: status %d: %w", d.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	d.log.Debug("channel dialed")
	return &channel{conn: conn, log: d.log}, nil
}

// channel is one live WebSocket connection carrying JSON protocol frames.
type channel struct {
	conn *websocket.Conn
	log  pslog.Logger

	// gorilla permits one concurrent writer per connection.
	writeMu sync.Mutex
}

// Send implements core.Channel.
func (c *channel) Send(msg schema.Message) error {
	data, err := schema.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}

// Receive implements core.Channel. Frames that fail to decode are logged
// and skipped; the protocol is a closed union and unknown frames carry no
// state the core would act on.
func (c *channel) Receive() (schema.Message, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := schema.Decode(data)
		if err != nil {
			c.log.Debug("inbound frame dropped", "err", err)
			continue
		}
		return msg, nil
	}
}

// Close implements core.Channel.
func (c *channel) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}
