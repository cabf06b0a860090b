package server

import (
	"context"
	"fmt"
	"io"

	"github.com/coder/websocket"

	"github.com/voxwire/voxwire/internal/session"
)

// wsChannel adapts a [websocket.Conn] to the [session.Channel] interface.
// The session's read loop and outbound scheduler are each single-goroutine,
// which matches the one-reader/one-writer contract of the underlying conn.
type wsChannel struct {
	conn *websocket.Conn
}

var _ session.Channel = (*wsChannel)(nil)

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

// Read blocks for the next client frame. Normal closure and going-away are
// reported as an error wrapping [io.EOF] so the session treats them as a
// clean disconnect rather than a channel failure.
func (c *wsChannel) Read(ctx context.Context) (session.MessageType, []byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return 0, nil, fmt.Errorf("server: client disconnected: %w", io.EOF)
		}
		return 0, nil, fmt.Errorf("server: websocket read: %w", err)
	}

	switch typ {
	case websocket.MessageText:
		return session.TextMessage, data, nil
	case websocket.MessageBinary:
		return session.BinaryMessage, data, nil
	default:
		return 0, nil, fmt.Errorf("server: unexpected websocket message type %v", typ)
	}
}

// Write sends one frame to the client.
func (c *wsChannel) Write(ctx context.Context, typ session.MessageType, data []byte) error {
	wsType := websocket.MessageText
	if typ == session.BinaryMessage {
		wsType = websocket.MessageBinary
	}
	if err := c.conn.Write(ctx, wsType, data); err != nil {
		return fmt.Errorf("server: websocket write: %w", err)
	}
	return nil
}

// Close performs a normal websocket closure. Safe to call more than once;
// subsequent closes return the conn's already-closed error, which callers
// ignore.
func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
