package session

import "context"

// MessageType distinguishes the two frame classes of the client channel.
type MessageType int

const (
	// TextMessage frames carry JSON control messages.
	TextMessage MessageType = iota

	// BinaryMessage frames carry audio: headered PCM inbound, raw PCM
	// outbound.
	BinaryMessage
)

// Channel is the bidirectional message channel to one client. The reference
// transport is a WebSocket; tests substitute an in-memory implementation.
//
// Read is called by exactly one goroutine (the inbound demux task) and Write
// by exactly one goroutine (the outbound scheduler), so implementations need
// not serialise concurrent calls on the same side.
type Channel interface {
	// Read blocks until the next frame arrives. It returns an error when the
	// channel closes; a normal client disconnect should be surfaced as an
	// error wrapping io.EOF so the session can distinguish it from failures.
	Read(ctx context.Context) (MessageType, []byte, error)

	// Write sends one frame to the client.
	Write(ctx context.Context, typ MessageType, data []byte) error

	// Close releases the underlying transport. Safe to call more than once.
	Close() error
}
