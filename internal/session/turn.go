package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxwire/voxwire/internal/segment"
	"github.com/voxwire/voxwire/internal/wire"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/types"
)

// turnContext is the per-turn state attached to a session while a response is
// being generated and spoken. At most one exists per session at any time; it
// is created and cleared only on the state machine driver goroutine.
type turnContext struct {
	// id is monotonically increasing within the session.
	id int

	// epoch stamps every outbound item the turn produces. The scheduler
	// drops items whose epoch has been superseded, which is how cancellation
	// reaches the wire.
	epoch uint64

	// userText is the finalized utterance that started the turn.
	userText string

	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
}

// runTurn drives one turn: stream the model, mirror tokens, segment them into
// speakable units, and synthesise each unit while generation continues. It is
// the transient fourth task of a session and exits when the turn completes,
// fails, or is cancelled. The outcome is reported to the driver as a
// turnDoneEvent; runTurn itself never touches session state.
func (s *Session) runTurn(t *turnContext, msgs []types.Message) {
	ctx, cancel := context.WithTimeout(t.ctx, s.cfg.TurnTimeout)
	defer cancel()

	tokens, err := s.providers.LLM.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: s.cfg.SystemPrompt,
	})
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "llm")
		s.post(turnDoneEvent{turnID: t.id, err: classify(KindAdapterTransient, "llm", fmt.Errorf("stream start: %w", err))})
		return
	}

	// The speaker consumes segments concurrently so synthesis starts on the
	// first complete sentence while tokens are still streaming. A terminal
	// speaker failure cancels the turn so generation stops with it.
	segCh := make(chan segment.Segment, s.cfg.SegmentQueueDepth)
	speakErr := make(chan error, 1)
	go func() {
		err := s.speakSegments(ctx, t, segCh)
		if err != nil && ctx.Err() == nil {
			cancel()
		}
		speakErr <- err
	}()

	seg := segment.New()
	var full strings.Builder

	firstToken := time.NewTimer(s.cfg.LLMFirstTokenTimeout)
	defer firstToken.Stop()
	sawToken := false

	// finish closes the segment stream, waits for the speaker, and reports
	// the turn outcome. A nil err may still be overridden by a speaker
	// failure (e.g. every segment failed to synthesise).
	finish := func(err error) {
		close(segCh)
		sErr := <-speakErr
		if err == nil && sErr != nil && !errors.Is(sErr, context.Canceled) {
			err = sErr
		}
		s.post(turnDoneEvent{turnID: t.id, text: full.String(), err: err})
	}

	// abort cancels synthesis before reporting: used for model-side failures
	// where nothing further should reach the wire.
	abort := func(err error) {
		cancel()
		<-speakErr
		go drainTokens(tokens)
		s.post(turnDoneEvent{turnID: t.id, text: full.String(), err: err})
	}

	// ctxDone settles a cancelled turn. A terminal speaker failure (the
	// speaker cancelled ctx itself) outranks the generic deadline error.
	ctxDone := func() {
		sErr := <-speakErr
		go drainTokens(tokens)
		err := s.turnDeadlineErr(t)
		if sErr != nil && !errors.Is(sErr, context.Canceled) && !errors.Is(sErr, context.DeadlineExceeded) {
			err = sErr
		}
		s.post(turnDoneEvent{turnID: t.id, text: full.String(), err: err})
	}

	for {
		select {
		case <-ctx.Done():
			ctxDone()
			return

		case <-firstToken.C:
			if sawToken {
				continue
			}
			s.metrics.RecordProviderError(ctx, "llm", "llm")
			abort(classify(KindAdapterTransient, "llm", fmt.Errorf("llm timeout: no token within %s", s.cfg.LLMFirstTokenTimeout)))
			return

		case chunk, ok := <-tokens:
			if !ok {
				finish(nil)
				return
			}
			if !sawToken {
				sawToken = true
				firstToken.Stop()
				s.metrics.LLMFirstToken.Record(ctx, time.Since(t.started).Seconds())
			}
			if chunk.FinishReason == "error" {
				s.metrics.RecordProviderError(ctx, "llm", "llm")
				abort(classify(KindAdapterTransient, "llm", errors.New("model stream failed mid-turn")))
				return
			}
			if chunk.Text != "" {
				full.WriteString(chunk.Text)
				s.post(tokenEvent{turnID: t.id, content: full.String()})
				for _, sg := range seg.Push(chunk.Text) {
					select {
					case segCh <- sg:
					case <-ctx.Done():
						ctxDone()
						return
					}
				}
			}
			if chunk.FinishReason != "" {
				for _, sg := range seg.Flush() {
					select {
					case segCh <- sg:
					case <-ctx.Done():
						ctxDone()
						return
					}
				}
				finish(nil)
				return
			}
		}
	}
}

// turnDeadlineErr distinguishes the overall turn deadline from an external
// cancellation (barge-in, stop, teardown). External cancellations report
// context.Canceled, which the driver treats as already-handled.
func (s *Session) turnDeadlineErr(t *turnContext) error {
	if t.ctx.Err() != nil {
		return context.Canceled
	}
	return classify(KindAdapterTransient, "turn", fmt.Errorf("turn deadline %s exceeded", s.cfg.TurnTimeout))
}

// errSynthesisStall marks a synthesis stream that produced no audio within
// the first-chunk deadline. Unlike an ordinary segment failure it fails the
// whole turn.
var errSynthesisStall = errors.New("synthesis stalled")

// speakSegments synthesises segments in order, emitting the turn's audio
// framing: one tts_start before the first chunk and one tts_end after the
// last. An ordinary failing segment is skipped and the turn errors only when
// every segment fails; a stalled first chunk aborts the turn outright.
func (s *Session) speakSegments(ctx context.Context, t *turnContext, segCh <-chan segment.Segment) error {
	started := false
	spoken := 0
	failed := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sg, ok := <-segCh:
			if !ok {
				if started {
					if err := s.sched.EnqueueFrame(ctx, t.epoch, wire.TTSEndFrame(s.cfg.ID, t.id)); err != nil {
						return err
					}
				}
				if failed > 0 && spoken == 0 {
					return classify(KindAdapterTransient, "tts", fmt.Errorf("all %d segments failed", failed))
				}
				return nil
			}

			if !started {
				started = true
				if err := s.sched.EnqueueFrame(ctx, t.epoch, wire.TTSStartFrame(s.cfg.ID, t.id)); err != nil {
					return err
				}
				s.post(speakingEvent{turnID: t.id})
			}

			if err := s.speakOne(ctx, t, sg); err != nil {
				if errors.Is(err, ErrClientSlow) || ctx.Err() != nil {
					return err
				}
				s.metrics.RecordProviderError(ctx, "tts", "tts")
				if errors.Is(err, errSynthesisStall) {
					return classify(KindAdapterTransient, "tts", err)
				}
				failed++
				s.log.Warn("segment synthesis failed",
					"turn_id", t.id, "segment", sg.Index, "err", err)
				continue
			}
			spoken++
		}
	}
}

// speakOne synthesises a single segment and streams its PCM to the outbound
// scheduler. The segment text is delivered as a one-element closed channel so
// the provider knows the unit is complete and can flush promptly.
func (s *Session) speakOne(ctx context.Context, t *turnContext, sg segment.Segment) error {
	textCh := make(chan string, 1)
	textCh <- sg.Text
	close(textCh)

	start := time.Now()
	audioCh, err := s.providers.TTS.SynthesizeStream(ctx, textCh, s.cfg.Voice)
	if err != nil {
		return fmt.Errorf("synthesize start: %w", err)
	}

	firstChunk := time.NewTimer(s.cfg.TTSFirstChunkTimeout)
	defer firstChunk.Stop()
	chunks := 0

	for {
		select {
		case <-ctx.Done():
			go audio.Drain(audioCh)
			return ctx.Err()

		case <-firstChunk.C:
			if chunks > 0 {
				continue
			}
			go audio.Drain(audioCh)
			return fmt.Errorf("no audio within %s: %w", s.cfg.TTSFirstChunkTimeout, errSynthesisStall)

		case chunk, ok := <-audioCh:
			if !ok {
				if chunks == 0 {
					return errors.New("synthesis produced no audio")
				}
				return nil
			}
			if chunks == 0 {
				firstChunk.Stop()
				s.metrics.TTSFirstChunk.Record(ctx, time.Since(start).Seconds())
			}
			chunks++
			if err := s.sched.EnqueuePCM(ctx, t.epoch, t.id, chunk); err != nil {
				go audio.Drain(audioCh)
				return err
			}
		}
	}
}

// drainTokens discards the rest of an abandoned token stream so the provider
// goroutine can exit.
func drainTokens(ch <-chan llm.Chunk) {
	for range ch {
	}
}
