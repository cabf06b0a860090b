package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voxwire/voxwire/internal/wire"
)

// defaultQueueDepth is the outbound queue bound when Config leaves it zero.
const defaultQueueDepth = 256

// itemKind discriminates outbound queue entries.
type itemKind int

const (
	// itemFrame is a JSON text frame.
	itemFrame itemKind = iota

	// itemPCM is a raw binary audio chunk.
	itemPCM

	// itemCloseAudio instructs the writer to emit a tts_stop if, and only
	// if, a tts_start is currently unmatched on the wire. Epoch-exempt: it
	// is the cancellation path's way of closing the PCM framing without
	// racing the turn task.
	itemCloseAudio
)

// outboundItem is one entry in the scheduler queue. Every item is stamped
// with the epoch current at enqueue time; the writer drops items whose epoch
// has been superseded.
type outboundItem struct {
	kind  itemKind
	epoch uint64

	// frame is set for itemFrame.
	frame wire.Frame

	// pcm is set for itemPCM; turnID tags the chunk for framing bookkeeping.
	pcm    []byte
	turnID int
}

// scheduler is the outbound side of a session: a single-writer queue that
// serialises every server → client frame, preserves per-turn ordering, and
// suppresses items from cancelled turns. This is how cancellation semantics
// reach the wire without races — producers never touch the channel directly.
type scheduler struct {
	ch      Channel
	queue   chan outboundItem
	epoch   atomic.Uint64
	pcmWait time.Duration

	// onStaleDrop is invoked for each suppressed item. Wired to a metrics
	// counter by the session.
	onStaleDrop func()

	log *slog.Logger
}

func newScheduler(ch Channel, depth int, pcmWait time.Duration, log *slog.Logger) *scheduler {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &scheduler{
		ch:          ch,
		queue:       make(chan outboundItem, depth),
		pcmWait:     pcmWait,
		onStaleDrop: func() {},
		log:         log,
	}
}

// Epoch returns the current suppression epoch.
func (s *scheduler) Epoch() uint64 { return s.epoch.Load() }

// Advance bumps the epoch, invalidating every item stamped before the call.
// Returns the new epoch. Called on the state machine driver when a turn is
// cancelled or queues are cleared.
func (s *scheduler) Advance() uint64 { return s.epoch.Add(1) }

// EnqueueFrame queues a text frame stamped with the given epoch. Blocks until
// there is queue space or ctx is cancelled.
func (s *scheduler) EnqueueFrame(ctx context.Context, epoch uint64, f wire.Frame) error {
	select {
	case s.queue <- outboundItem{kind: itemFrame, epoch: epoch, frame: f}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueuePCM queues a binary audio chunk. Unlike text frames, PCM producers
// block only up to the configured bound: a queue that stays full for that
// long means the client is not draining audio, and the session must be torn
// down rather than buffer without limit. Returns ErrClientSlow in that case.
func (s *scheduler) EnqueuePCM(ctx context.Context, epoch uint64, turnID int, pcm []byte) error {
	item := outboundItem{kind: itemPCM, epoch: epoch, pcm: pcm, turnID: turnID}
	select {
	case s.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	timer := time.NewTimer(s.pcmWait)
	defer timer.Stop()
	select {
	case s.queue <- item:
		return nil
	case <-timer.C:
		return ErrClientSlow
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueCloseAudio queues a conditional tts_stop. The writer emits it only
// when a tts_start for some turn is still open on the wire, which keeps the
// per-turn trace well formed even when cancellation races the turn task.
func (s *scheduler) EnqueueCloseAudio(ctx context.Context, sessionID string) error {
	select {
	case s.queue <- outboundItem{kind: itemCloseAudio, frame: wire.Frame{SessionID: sessionID}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue to the channel until ctx is cancelled or a write
// fails. It is the only goroutine that writes to the channel.
func (s *scheduler) Run(ctx context.Context) error {
	// openTurn tracks the turn whose tts_start has been written but not yet
	// matched by tts_end/tts_stop. -1 means the audio framing is closed.
	openTurn := -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-s.queue:
			if item.kind != itemCloseAudio && item.epoch < s.epoch.Load() {
				s.onStaleDrop()
				continue
			}

			switch item.kind {
			case itemFrame:
				switch item.frame.Type {
				case wire.TypeTTSStart:
					openTurn = item.frame.TurnID
				case wire.TypeTTSEnd, wire.TypeTTSStop:
					openTurn = -1
				}
				if err := s.writeFrame(ctx, item.frame); err != nil {
					return err
				}

			case itemPCM:
				if err := s.ch.Write(ctx, BinaryMessage, item.pcm); err != nil {
					return classify(KindChannel, "channel", fmt.Errorf("write pcm: %w", err))
				}

			case itemCloseAudio:
				if openTurn < 0 {
					continue
				}
				stop := wire.TTSStopFrame(item.frame.SessionID, openTurn)
				openTurn = -1
				if err := s.writeFrame(ctx, stop); err != nil {
					return err
				}
			}
		}
	}
}

func (s *scheduler) writeFrame(ctx context.Context, f wire.Frame) error {
	data, err := f.Marshal()
	if err != nil {
		// Encoding never fails for the frame constructors; log and keep the
		// writer alive.
		s.log.Error("drop unencodable frame", "type", f.Type, "err", err)
		return nil
	}
	if err := s.ch.Write(ctx, TextMessage, data); err != nil {
		return classify(KindChannel, "channel", fmt.Errorf("write %s: %w", f.Type, err))
	}
	return nil
}
