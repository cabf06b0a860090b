// Package session implements the per-client dialogue orchestrator: one
// Session per connected channel, coupling streaming speech recognition, a
// token-streaming language model, and incremental speech synthesis into a
// full-duplex conversation loop.
//
// A session runs three long-lived tasks — a channel read loop, a single-owner
// state machine driver, and an outbound scheduler — plus one transient turn
// task per response being generated. All mutable state lives on the driver
// goroutine and is mutated only through its event mailbox, so the turn state
// machine needs no locks.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/wire"
	"github.com/voxwire/voxwire/pkg/provider/asr"
	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/provider/tts"
	"github.com/voxwire/voxwire/pkg/provider/vad"
	"github.com/voxwire/voxwire/pkg/types"
)

// Default tunables. Zero-valued Config fields fall back to these.
const (
	DefaultLLMFirstTokenTimeout = 5 * time.Second
	DefaultTTSFirstChunkTimeout = 3 * time.Second
	DefaultTurnTimeout          = 60 * time.Second
	DefaultIdleTimeout          = 10 * time.Minute
	DefaultPCMEnqueueWait       = 200 * time.Millisecond
	DefaultSegmentQueueDepth    = 8
	DefaultSampleRate           = 16000
	DefaultBargeInThreshold     = 0.05
	DefaultBargeInDwell         = 2

	// idleCheckInterval bounds how late an idle teardown can fire.
	idleCheckInterval = 30 * time.Second

	// mailboxDepth sizes the driver's event mailbox. Large enough that the
	// read loop and turn task never block on it in practice.
	mailboxDepth = 512
)

// Config carries the per-session tunables. The zero value is usable; every
// field has a default.
type Config struct {
	// ID identifies the session on every outbound frame. Assigned by the
	// registry.
	ID string

	// Language is the BCP-47 recognition hint passed to the ASR provider.
	Language string

	// SystemPrompt is prepended to every model request.
	SystemPrompt string

	// Voice selects the synthesis voice.
	Voice types.VoiceProfile

	// InboundSampleRate is the PCM rate the client is contracted to send.
	InboundSampleRate int

	// HistoryMaxMessages bounds the conversation history kept for prompts.
	HistoryMaxMessages int

	LLMFirstTokenTimeout time.Duration
	TTSFirstChunkTimeout time.Duration
	TurnTimeout          time.Duration
	IdleTimeout          time.Duration

	// OutboundQueueDepth bounds the scheduler queue.
	OutboundQueueDepth int

	// PCMEnqueueWait is how long a PCM producer may wait on a full outbound
	// queue before the client is declared too slow.
	PCMEnqueueWait time.Duration

	// SegmentQueueDepth bounds the generator → speaker segment channel.
	SegmentQueueDepth int

	// BargeInThreshold is the normalized energy above which a frame counts as
	// voiced when no VAD engine is configured.
	BargeInThreshold float64

	// BargeInDwell is the number of consecutive voiced frames required to
	// trigger barge-in.
	BargeInDwell int

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.InboundSampleRate <= 0 {
		c.InboundSampleRate = DefaultSampleRate
	}
	if c.LLMFirstTokenTimeout <= 0 {
		c.LLMFirstTokenTimeout = DefaultLLMFirstTokenTimeout
	}
	if c.TTSFirstChunkTimeout <= 0 {
		c.TTSFirstChunkTimeout = DefaultTTSFirstChunkTimeout
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.PCMEnqueueWait <= 0 {
		c.PCMEnqueueWait = DefaultPCMEnqueueWait
	}
	if c.SegmentQueueDepth <= 0 {
		c.SegmentQueueDepth = DefaultSegmentQueueDepth
	}
	if c.BargeInThreshold <= 0 {
		c.BargeInThreshold = DefaultBargeInThreshold
	}
	if c.BargeInDwell <= 0 {
		c.BargeInDwell = DefaultBargeInDwell
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Providers bundles the pipeline backends a session speaks to. ASR, LLM, and
// TTS are required; VAD is optional — without it, barge-in falls back to the
// client's coarse energy flags.
type Providers struct {
	ASR asr.Provider
	LLM llm.Provider
	TTS tts.Provider
	VAD vad.Engine
}

// ─── Event mailbox ────────────────────────────────────────────────────────────

// event is a message for the state machine driver. Exactly one goroutine (the
// driver) consumes them; the read loop, the transcript pump, and the turn task
// produce them.
type event any

type cmdEvent struct{ cmd wire.CommandName }

type audioEvent struct{ frame wire.InboundAudioFrame }

// transcriptEvent carries a recognition result off the ASR pump.
type transcriptEvent struct {
	text  string
	final bool
}

// tokenEvent mirrors the accumulated assistant text of a running turn.
type tokenEvent struct {
	turnID  int
	content string
}

// speakingEvent reports that the turn's first audio has been scheduled.
type speakingEvent struct{ turnID int }

// turnDoneEvent is the turn task's exit report. err == nil means the turn
// completed and text holds the full response; context.Canceled means the
// driver already handled the cancellation.
type turnDoneEvent struct {
	turnID int
	text   string
	err    error
}

// protocolErrEvent reports a malformed inbound frame.
type protocolErrEvent struct{ msg string }

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is one client's dialogue orchestrator. Create with New, drive with
// Run. All exported methods other than Run are safe for concurrent use.
type Session struct {
	cfg       Config
	providers Providers
	ch        Channel
	sched     *scheduler
	log       *slog.Logger
	metrics   *observe.Metrics

	events chan event

	// done closes when Run's task group has exited; producers use it to
	// avoid posting into a dead mailbox.
	done     chan struct{}
	shutdown chan struct{}
	shutOnce sync.Once

	lastActivity atomic.Int64 // unix nanos
	createdAt    time.Time

	turnWG sync.WaitGroup
	asrWG  sync.WaitGroup

	// ── driver-owned state: touched only on the drive goroutine ──

	phase   TurnPhase
	turnSeq int
	active  *turnContext
	asrH    asr.SessionHandle
	gate    *bargeInGate
	hist    *history

	// utteranceStart is the arrival time of the first audio frame since the
	// last final transcript, for the recognition-delay histogram.
	utteranceStart time.Time
}

// New builds a session over an accepted channel. It does not start any
// goroutines; call Run to serve.
func New(cfg Config, providers Providers, ch Channel) (*Session, error) {
	cfg.applyDefaults()
	if cfg.ID == "" {
		return nil, fmt.Errorf("session: config missing ID")
	}
	if providers.ASR == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, fmt.Errorf("session: ASR, LLM, and TTS providers are required")
	}

	log := cfg.Logger.With("session_id", cfg.ID)

	var detector vad.SessionHandle
	if providers.VAD != nil {
		h, err := providers.VAD.NewSession(vad.Config{
			SampleRate:       cfg.InboundSampleRate,
			SpeechThreshold:  cfg.BargeInThreshold,
			SilenceThreshold: cfg.BargeInThreshold / 2,
		})
		if err != nil {
			return nil, fmt.Errorf("session: open vad session: %w", err)
		}
		detector = h
	}

	s := &Session{
		cfg:       cfg,
		providers: providers,
		ch:        ch,
		log:       log,
		metrics:   cfg.Metrics,
		events:    make(chan event, mailboxDepth),
		done:      make(chan struct{}),
		shutdown:  make(chan struct{}),
		createdAt: time.Now(),
		phase:     PhaseIdle,
		gate:      newBargeInGate(detector, cfg.BargeInThreshold, cfg.BargeInDwell, log),
		hist:      newHistory(cfg.HistoryMaxMessages),
	}
	s.sched = newScheduler(ch, cfg.OutboundQueueDepth, cfg.PCMEnqueueWait, log)
	s.sched.onStaleDrop = func() { s.metrics.StaleDropped.Add(context.Background(), 1) }
	s.touch()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.ID }

// IdleFor reports how long ago the session last saw an inbound frame.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// Shutdown asks a running session to tear down. Safe to call multiple times
// and before Run.
func (s *Session) Shutdown() {
	s.shutOnce.Do(func() { close(s.shutdown) })
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// post delivers an event to the driver mailbox, giving up if the session has
// already torn down.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run serves the session until the client disconnects, an unrecoverable error
// occurs, or ctx is cancelled. It always returns after a full teardown: the
// scheduler is stopped, the ASR handle closed, and any running turn cancelled
// and reaped. A clean client close returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	s.log.Info("session started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.sched.Run(gctx) })
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.drive(gctx) })
	err := g.Wait()

	// Teardown. The driver has exited, so its state is safe to touch here.
	close(s.done)
	if s.active != nil {
		s.active.cancel()
		s.active = nil
	}
	s.turnWG.Wait()
	s.closeASR()
	s.asrWG.Wait()
	s.gate.close()
	_ = s.ch.Close()

	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, io.EOF),
		errors.Is(err, ErrSessionClosed):
		s.log.Info("session closed", "uptime", time.Since(s.createdAt).Round(time.Second))
		return nil
	default:
		s.log.Warn("session ended with error", "err", err, "kind", kindOf(err).String())
		return err
	}
}

// ─── Read loop ────────────────────────────────────────────────────────────────

// readLoop is the sole reader of the channel. It demultiplexes text frames
// into commands and binary frames into audio, and converts malformed input
// into protocol-error events instead of failures: a bad frame never costs the
// client its session.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.ch.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return io.EOF
			}
			return classify(KindChannel, "channel", fmt.Errorf("read: %w", err))
		}
		s.touch()

		switch typ {
		case TextMessage:
			cmd, err := wire.ParseCommand(data)
			if err != nil {
				s.metrics.RecordMalformedFrame(ctx, "text")
				s.log.Warn("malformed command frame", "err", err)
				s.post(protocolErrEvent{msg: err.Error()})
				continue
			}
			s.post(cmdEvent{cmd: cmd.Command})

		case BinaryMessage:
			f, err := wire.DecodeAudioFrame(data)
			if err != nil {
				s.metrics.RecordMalformedFrame(ctx, "binary")
				s.log.Warn("malformed audio frame", "size", len(data), "err", err)
				s.post(protocolErrEvent{msg: err.Error()})
				continue
			}
			// The decode aliases the read buffer; copy before handing off.
			pcm := make([]byte, len(f.PCM))
			copy(pcm, f.PCM)
			f.PCM = pcm
			s.post(audioEvent{frame: f})
		}
	}
}

// ─── State machine driver ─────────────────────────────────────────────────────

// drive is the single owner of all turn state. Every transition of the
// machine happens here, in mailbox order.
func (s *Session) drive(ctx context.Context) error {
	idle := time.NewTicker(idleCheckInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.shutdown:
			return ErrSessionClosed

		case <-idle.C:
			if s.IdleFor() >= s.cfg.IdleTimeout {
				s.log.Info("idle timeout", "idle_for", s.IdleFor().Round(time.Second))
				return ErrIdleTimeout
			}

		case ev := <-s.events:
			if err := s.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev event) error {
	switch ev := ev.(type) {
	case cmdEvent:
		return s.handleCommand(ctx, ev.cmd)
	case audioEvent:
		return s.handleAudio(ctx, ev.frame)
	case transcriptEvent:
		return s.handleTranscript(ctx, ev)
	case tokenEvent:
		return s.handleToken(ctx, ev)
	case speakingEvent:
		if s.active != nil && s.active.id == ev.turnID {
			s.setPhase(PhaseSpeaking)
		}
		return nil
	case turnDoneEvent:
		return s.handleTurnDone(ctx, ev)
	case protocolErrEvent:
		return s.send(ctx, wire.ErrorFrame(s.cfg.ID, ev.msg))
	default:
		s.log.Error("unknown event type", "event", fmt.Sprintf("%T", ev))
		return nil
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd wire.CommandName) error {
	s.log.Debug("command", "command", string(cmd), "phase", s.phase.String())
	switch cmd {
	case wire.CommandStart:
		return s.onStart(ctx)
	case wire.CommandStop:
		return s.onStop(ctx)
	case wire.CommandReset:
		return s.onReset(ctx)
	case wire.CommandInterrupt:
		return s.onInterrupt(ctx, "client")
	case wire.CommandClearQueues:
		return s.onClearQueues(ctx)
	default:
		return s.send(ctx, wire.ErrorFrame(s.cfg.ID, fmt.Sprintf("unknown command %q", cmd)))
	}
}

// onStart opens the recognition stream and begins listening. Idempotent: a
// start on an already-started session just re-reports the status.
func (s *Session) onStart(ctx context.Context) error {
	if s.asrH == nil {
		h, err := s.providers.ASR.StartStream(ctx, asr.StreamConfig{
			SampleRate: s.cfg.InboundSampleRate,
			Channels:   1,
			Language:   s.cfg.Language,
		})
		if err != nil {
			s.metrics.RecordProviderError(ctx, "asr", "asr")
			s.log.Error("open asr stream", "err", err)
			return s.send(ctx, wire.ErrorFrame(s.cfg.ID, "speech recognition unavailable"))
		}
		s.asrH = h
		s.asrWG.Add(1)
		go s.pumpTranscripts(ctx, h)
	}
	if s.phase == PhaseIdle {
		s.setPhase(PhaseListening)
	}
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusListening, ""))
}

// onStop halts the conversation: any running turn is cancelled, the
// recognition stream is closed, pending output is dropped, and the session
// returns to idle. An idle session holds no recognition stream; start opens a
// fresh one. A stop with nothing to stop is a silent no-op, so repeated stops
// produce exactly one acknowledgement.
func (s *Session) onStop(ctx context.Context) error {
	if s.phase == PhaseIdle && s.active == nil {
		return nil
	}
	s.cancelTurn("stop")
	s.closeASR()
	if err := s.sched.EnqueueCloseAudio(ctx, s.cfg.ID); err != nil {
		return err
	}
	if err := s.send(ctx, wire.StopAcknowledgedFrame(s.cfg.ID)); err != nil {
		return err
	}
	s.setPhase(PhaseIdle)
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusStopped, ""))
}

// onReset is stop plus history wipe: the next turn starts a fresh
// conversation.
func (s *Session) onReset(ctx context.Context) error {
	s.cancelTurn("reset")
	s.closeASR()
	if err := s.sched.EnqueueCloseAudio(ctx, s.cfg.ID); err != nil {
		return err
	}
	s.hist.clear()
	s.setPhase(PhaseIdle)
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusIdle, "conversation reset"))
}

// onInterrupt cancels the in-flight turn and returns to listening. trigger
// names the source for metrics: "client", "vad", or "asr_final".
func (s *Session) onInterrupt(ctx context.Context, trigger string) error {
	if s.active == nil {
		// Nothing in flight; acknowledge against the last turn.
		return s.send(ctx, wire.InterruptAcknowledgedFrame(s.cfg.ID, s.turnSeq))
	}
	turnID := s.active.id
	s.setPhase(PhaseInterrupted)
	s.cancelTurn("interrupt")
	s.metrics.RecordBargeIn(ctx, trigger)
	s.metrics.RecordTurn(ctx, "interrupted")

	if err := s.sched.EnqueueCloseAudio(ctx, s.cfg.ID); err != nil {
		return err
	}
	if err := s.send(ctx, wire.InterruptAcknowledgedFrame(s.cfg.ID, turnID)); err != nil {
		return err
	}
	s.setPhase(PhaseListening)
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusListening, ""))
}

// onClearQueues drops all pending outbound work without a full stop. Any
// running turn is quietly cancelled — its remaining output has nowhere to go.
func (s *Session) onClearQueues(ctx context.Context) error {
	s.cancelTurn("clear_queues")
	if err := s.sched.EnqueueCloseAudio(ctx, s.cfg.ID); err != nil {
		return err
	}
	s.log.Info("queues cleared")
	if s.asrH != nil {
		s.setPhase(PhaseListening)
		return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusListening, "queues cleared"))
	}
	s.setPhase(PhaseIdle)
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusIdle, "queues cleared"))
}

// cancelTurn invalidates the in-flight turn, if any: its context is
// cancelled and the suppression epoch advanced so anything it already queued
// never reaches the wire. The caller is responsible for the frames that
// follow (tts_stop via EnqueueCloseAudio, acknowledgements, status).
func (s *Session) cancelTurn(reason string) {
	if s.active != nil {
		s.log.Debug("cancelling turn", "turn_id", s.active.id, "reason", reason)
		s.active.cancel()
		s.active = nil
	}
	s.sched.Advance()
	s.gate.reset()
}

// handleAudio forwards inbound PCM to the recognizer and evaluates the
// barge-in gate while a turn is in flight.
func (s *Session) handleAudio(ctx context.Context, f wire.InboundAudioFrame) error {
	if s.asrH == nil {
		// Audio before start is not an error; drop it.
		return nil
	}

	if f.Flags.FirstChunk() {
		s.gate.reset()
	}
	if s.utteranceStart.IsZero() {
		s.utteranceStart = time.Now()
	}

	if s.phase.turnActive() && s.gate.observe(f) {
		s.log.Info("barge-in detected", "turn_id", s.turnSeq)
		if err := s.onInterrupt(ctx, "vad"); err != nil {
			return err
		}
	}

	if err := s.asrH.SendAudio(f.PCM); err != nil {
		return s.failASR(ctx, err)
	}
	return nil
}

// failASR handles a broken recognition stream: surface the error, close the
// handle, and fall back to idle. The client may issue start again to reopen.
func (s *Session) failASR(ctx context.Context, cause error) error {
	s.metrics.RecordProviderError(ctx, "asr", "asr")
	s.log.Error("asr stream failed", "err", cause)

	s.cancelTurn("asr failure")
	if err := s.send(ctx, wire.ErrorFrame(s.cfg.ID, "speech recognition failed")); err != nil {
		return err
	}
	if err := s.sched.EnqueueCloseAudio(ctx, s.cfg.ID); err != nil {
		return err
	}

	s.closeASR()
	s.setPhase(PhaseIdle)
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusIdle, "recognition stopped"))
}

// closeASR tears down the recognition stream, if open. Late results from the
// dead stream are discarded by handleTranscript.
func (s *Session) closeASR() {
	if s.asrH == nil {
		return
	}
	_ = s.asrH.Close()
	s.asrH = nil
}

// pumpTranscripts moves recognition results from the ASR handle's channels
// into the driver mailbox. It exits when both channels close or ctx ends.
func (s *Session) pumpTranscripts(ctx context.Context, h asr.SessionHandle) {
	defer s.asrWG.Done()
	partials, finals := h.Partials(), h.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.post(transcriptEvent{text: tr.Text, final: false})
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.post(transcriptEvent{text: tr.Text, final: true})
		}
	}
}

// handleTranscript routes recognition results. Partials mirror straight to
// the client tagged with the upcoming turn id. A final commits an utterance:
// if a turn is already in flight, the final is itself a barge-in and the old
// turn is cancelled first.
func (s *Session) handleTranscript(ctx context.Context, ev transcriptEvent) error {
	if s.asrH == nil {
		// Stream already torn down; stale result.
		return nil
	}

	if !ev.final {
		return s.send(ctx, wire.PartialTranscriptFrame(s.cfg.ID, s.turnSeq+1, ev.text))
	}

	text := strings.TrimSpace(ev.text)
	if text == "" {
		return nil
	}

	if !s.utteranceStart.IsZero() {
		s.metrics.ASRFinalDelay.Record(ctx, time.Since(s.utteranceStart).Seconds())
		s.utteranceStart = time.Time{}
	}

	if s.active != nil {
		// The user finished a new utterance while the previous answer was
		// still in flight.
		if err := s.onInterrupt(ctx, "asr_final"); err != nil {
			return err
		}
	}
	return s.startTurn(ctx, text)
}

// startTurn commits an utterance and launches the turn task.
func (s *Session) startTurn(ctx context.Context, text string) error {
	s.turnSeq++
	id := s.turnSeq
	s.setPhase(PhaseTranscribed)

	if err := s.send(ctx, wire.FinalTranscriptFrame(s.cfg.ID, id, text)); err != nil {
		return err
	}

	s.hist.append(types.RoleUser, text)
	msgs := s.hist.snapshot()

	tctx, tcancel := context.WithCancel(ctx)
	t := &turnContext{
		id:       id,
		epoch:    s.sched.Epoch(),
		userText: text,
		ctx:      tctx,
		cancel:   tcancel,
		started:  time.Now(),
	}
	s.active = t
	s.setPhase(PhaseThinking)

	if err := s.send(ctx, wire.LLMStatusFrame(s.cfg.ID, id)); err != nil {
		return err
	}

	s.log.Info("turn started", "turn_id", id, "utterance_len", len(text))
	s.turnWG.Add(1)
	go func() {
		defer s.turnWG.Done()
		s.runTurn(t, msgs)
	}()
	return nil
}

// handleToken mirrors the accumulated assistant text. Tokens from a turn that
// is no longer active were cancelled after the event was posted; drop them.
func (s *Session) handleToken(ctx context.Context, ev tokenEvent) error {
	if s.active == nil || s.active.id != ev.turnID {
		return nil
	}
	return s.sched.EnqueueFrame(ctx, s.active.epoch,
		wire.LLMResponseFrame(s.cfg.ID, ev.turnID, ev.content, false))
}

// handleTurnDone settles a turn task's exit report.
func (s *Session) handleTurnDone(ctx context.Context, ev turnDoneEvent) error {
	if s.active == nil || s.active.id != ev.turnID {
		// Cancelled turn reporting in after the driver moved on.
		return nil
	}
	t := s.active
	s.active = nil

	switch {
	case ev.err == nil:
		s.hist.append(types.RoleAssistant, ev.text)
		if err := s.sched.EnqueueFrame(ctx, t.epoch,
			wire.LLMResponseFrame(s.cfg.ID, t.id, ev.text, true)); err != nil {
			return err
		}
		s.metrics.RecordTurn(ctx, "completed")
		s.metrics.TurnDuration.Record(ctx, time.Since(t.started).Seconds())
		s.log.Info("turn completed",
			"turn_id", t.id,
			"duration", time.Since(t.started).Round(time.Millisecond),
			"response_len", len(ev.text))
		if s.asrH != nil {
			s.setPhase(PhaseListening)
		} else {
			s.setPhase(PhaseIdle)
		}
		return nil

	case errors.Is(ev.err, context.Canceled):
		// Already settled by whoever cancelled it.
		return nil

	case errors.Is(ev.err, ErrClientSlow) || kindOf(ev.err) == KindChannel:
		return ev.err

	default:
		return s.failTurn(ctx, t, ev.err)
	}
}

// failTurn settles a turn-scoped failure: suppress anything the dead turn
// still has queued, surface the error, close the audio framing, and return to
// listening. The error frame goes out before the state-reset frames.
func (s *Session) failTurn(ctx context.Context, t *turnContext, cause error) error {
	s.metrics.RecordTurn(ctx, "error")
	s.log.Warn("turn failed", "turn_id", t.id, "err", cause, "kind", kindOf(cause).String())

	s.sched.Advance()
	s.gate.reset()
	s.setPhase(PhaseError)

	if err := s.send(ctx, wire.ErrorFrame(s.cfg.ID, userMessage(cause))); err != nil {
		return err
	}
	if err := s.sched.EnqueueCloseAudio(ctx, s.cfg.ID); err != nil {
		return err
	}

	if s.asrH != nil {
		s.setPhase(PhaseListening)
		return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusListening, ""))
	}
	s.setPhase(PhaseIdle)
	return s.send(ctx, wire.StatusFrame(s.cfg.ID, wire.StatusIdle, ""))
}

// userMessage reduces an internal error to the stage-level description shown
// to the client.
func userMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		switch se.Stage {
		case "llm":
			return "llm timeout"
		case "tts":
			return "speech synthesis failed"
		case "turn":
			return "turn timed out"
		case "asr":
			return "speech recognition failed"
		}
	}
	return "internal error"
}

func (s *Session) setPhase(p TurnPhase) {
	if s.phase == p {
		return
	}
	s.log.Debug("phase", "from", s.phase.String(), "to", p.String())
	s.phase = p
}

// send queues a text frame at the current epoch.
func (s *Session) send(ctx context.Context, f wire.Frame) error {
	return s.sched.EnqueueFrame(ctx, s.sched.Epoch(), f)
}
