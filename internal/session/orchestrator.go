// Package session implements the conversation orchestration core: a state
// machine that coordinates audio capture and playback with three independent
// streaming services — speech-to-text, a token-streaming language model, and
// chunk-streaming speech synthesis.
//
// # Architecture
//
//  1. The audio engine pushes capture frames; every frame is classified by the
//     voice-activity detector.
//  2. Sustained speech opens an STT stream; the final transcript becomes a
//     user transcript entry and triggers an LLM request.
//  3. LLM tokens are aggregated into sentences and forwarded incrementally to
//     TTS so playback starts before generation finishes.
//  4. Synthesised audio is queued to the engine's bounded playback queue;
//     when playback drains the turn closes and metrics are recorded.
//
// The orchestrator enforces single-flight execution: at most one LLM stream
// and one TTS stream are alive at any time. Barge-in, pause and stop cancel
// the in-flight turn and await its unwind before the new state is reported.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unamentis/unamentis/internal/curriculum"
	"github.com/unamentis/unamentis/internal/observe"
	"github.com/unamentis/unamentis/internal/telemetry"
	"github.com/unamentis/unamentis/internal/transcript"
	"github.com/unamentis/unamentis/pkg/audioio"
	"github.com/unamentis/unamentis/pkg/provider/llm"
	"github.com/unamentis/unamentis/pkg/provider/stt"
	"github.com/unamentis/unamentis/pkg/provider/tts"
	"github.com/unamentis/unamentis/pkg/provider/vad"
)

const (
	// defaultSpeechThreshold is the minimum VAD probability for a frame to
	// count toward the speech run.
	defaultSpeechThreshold = 0.6

	// defaultSpeechRunFrames is the number of consecutive speech frames that
	// constitutes sustained speech (~100 ms at 12 ms bursts).
	defaultSpeechRunFrames = 8

	// defaultSentenceMinRunes keeps abbreviation fragments like "Dr." from
	// being flushed to TTS as standalone sentences.
	defaultSentenceMinRunes = 12

	// defaultSentenceBuf is the buffer depth of the text channel feeding TTS.
	defaultSentenceBuf = 16

	defaultSystemPrompt = "You are a patient, encouraging tutor. Keep spoken answers concise, " +
		"use plain language suitable for reading aloud, and check the learner's " +
		"understanding before moving on."
)

// ProviderNames labels the configured providers for cost and error
// attribution. Empty fields fall back to the pipeline stage name.
type ProviderNames struct {
	STT string
	LLM string
	TTS string
}

// Orchestrator owns the session state machine and drives the
// capture→STT→LLM→TTS pipeline. All exported methods are safe for concurrent
// use; state transitions are serialised by a single turn lock.
type Orchestrator struct {
	audio audioio.Engine
	vadD  vad.Detector
	sttP  stt.Provider
	llmP  llm.Provider
	ttsP  tts.Provider

	curr     curriculum.Accessor
	recorder *telemetry.Recorder
	metrics  *observe.Metrics

	audioCfg         audioio.Config
	language         string
	voice            tts.VoiceProfile
	systemPrompt     string
	temperature      float64
	maxTokens        int
	speechThreshold  float64
	speechRunFrames  int
	sentenceMinRunes int
	sentenceBuf      int
	bargeInDebounce  time.Duration
	costModel        CostModel
	providers        ProviderNames
	now              func() time.Time

	mu         sync.Mutex
	state      State
	sess       *Session
	transcript *transcript.Store
	errMsg     string
	sttSession stt.SessionHandle
	lastTurn   *TurnMetrics
	subs       []chan State

	turnCancel context.CancelFunc
	turnDone   chan struct{}

	captureCancel context.CancelFunc
	captureDone   chan struct{}

	playbackStartedAt time.Time

	// wg tracks turn goroutines so callers (and tests) can synchronise with
	// the end of an asynchronous turn.
	wg sync.WaitGroup
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithCurriculum attaches a read-only curriculum accessor consulted when the
// LLM prompt is constructed.
func WithCurriculum(c curriculum.Accessor) Option {
	return func(o *Orchestrator) { o.curr = c }
}

// WithRecorder sets the telemetry recorder. Defaults to a fresh recorder.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithMetrics sets the OpenTelemetry instrument set. Defaults to the
// process-wide instruments from [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithAudioConfig overrides the capture/playback audio format.
func WithAudioConfig(cfg audioio.Config) Option {
	return func(o *Orchestrator) { o.audioCfg = cfg }
}

// WithLanguage sets the BCP-47 language tag passed to the STT stream.
func WithLanguage(lang string) Option {
	return func(o *Orchestrator) { o.language = lang }
}

// WithVoice sets the TTS voice profile for assistant speech.
func WithVoice(v tts.VoiceProfile) Option {
	return func(o *Orchestrator) { o.voice = v }
}

// WithSystemPrompt overrides the built-in tutoring system prompt.
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.systemPrompt = p
		}
	}
}

// WithTemperature sets the LLM sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithMaxTokens caps LLM completion length. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// WithSpeechThreshold sets the VAD probability above which a frame counts as
// speech. Values outside (0, 1] are ignored.
func WithSpeechThreshold(t float64) Option {
	return func(o *Orchestrator) {
		if t > 0 && t <= 1 {
			o.speechThreshold = t
		}
	}
}

// WithSpeechRunFrames sets the number of consecutive speech frames required
// before a new utterance or barge-in is triggered.
func WithSpeechRunFrames(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.speechRunFrames = n
		}
	}
}

// WithSentenceMinRunes sets the minimum sentence length flushed to TTS.
func WithSentenceMinRunes(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sentenceMinRunes = n
		}
	}
}

// WithBargeInDebounce defers barge-in for d after playback starts, guarding
// against residual playback audio leaking into capture on devices without
// echo cancellation. Zero (the default) disables the debounce.
func WithBargeInDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.bargeInDebounce = d
		}
	}
}

// WithCostModel sets the per-turn cost estimation rates.
func WithCostModel(m CostModel) Option {
	return func(o *Orchestrator) { o.costModel = m }
}

// WithProviderNames labels providers in cost records and error metrics.
func WithProviderNames(p ProviderNames) Option {
	return func(o *Orchestrator) { o.providers = p }
}

// WithClock injects the time source. Tests use this to make latency
// measurements deterministic.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an Orchestrator wired to the given collaborators. Options
// are applied after defaults are initialised.
func New(audio audioio.Engine, vadD vad.Detector, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		audio:            audio,
		vadD:             vadD,
		sttP:             sttP,
		llmP:             llmP,
		ttsP:             ttsP,
		recorder:         telemetry.NewRecorder(),
		metrics:          observe.DefaultMetrics(),
		audioCfg:         audioio.DefaultConfig(),
		systemPrompt:     defaultSystemPrompt,
		speechThreshold:  defaultSpeechThreshold,
		speechRunFrames:  defaultSpeechRunFrames,
		sentenceMinRunes: defaultSentenceMinRunes,
		sentenceBuf:      defaultSentenceBuf,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ─── Public operations ────────────────────────────────────────────────────────

// StartSession creates a session and starts audio capture. It is idempotent:
// if a session already exists it is returned unchanged and no second capture
// stream is started.
func (o *Orchestrator) StartSession(ctx context.Context) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess != nil {
		return *o.sess, nil
	}

	s := &Session{ID: uuid.NewString(), StartedAt: o.now()}
	if o.curr != nil {
		c, err := o.curr.CurrentContext(ctx)
		if err != nil {
			slog.Warn("curriculum context unavailable", "err", err)
		} else if c != nil {
			s.TopicID = c.TopicID
			s.TopicTitle = c.Title
		}
	}

	if err := o.audio.StartCapture(ctx, o.audioCfg); err != nil {
		f := unrecoverableFault("audio", err)
		o.errMsg = f.Error()
		o.setStateLocked(StateError)
		return Session{}, f
	}

	o.sess = s
	o.transcript = transcript.NewStore(s.ID)
	o.errMsg = ""
	o.recorder.StartSession(s.ID)
	o.metrics.ActiveSessions.Add(ctx, 1)
	o.setStateLocked(StateIdle)

	capCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.captureCancel = cancel
	o.captureDone = done
	go o.captureLoop(capCtx, done)

	slog.Info("session started", "session_id", s.ID, "topic", s.TopicID)
	return *s, nil
}

// StopSession cancels any in-flight turn, stops capture and playback, closes
// the session and returns it together with its transcript. Persistence is the
// caller's concern; the orchestrator holds no state for the session afterward.
func (o *Orchestrator) StopSession(ctx context.Context) (*Session, []transcript.Entry, error) {
	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return nil, nil, ErrNoSession
	}
	cancel, done := o.turnCancel, o.turnDone
	capCancel := o.captureCancel
	o.mu.Unlock()

	o.cancelTurn(cancel, done)
	if capCancel != nil {
		capCancel()
	}
	o.audio.StopPlayback()
	if err := o.audio.StopCapture(); err != nil {
		slog.Warn("stop capture failed", "err", err)
	}

	o.mu.Lock()
	s := o.sess
	s.EndedAt = o.now()
	entries := o.transcript.Entries()
	o.sess = nil
	o.transcript = nil
	o.sttSession = nil
	o.turnCancel, o.turnDone = nil, nil
	o.captureCancel, o.captureDone = nil, nil
	o.recorder.EndSession()
	o.metrics.ActiveSessions.Add(ctx, -1)
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	slog.Info("session stopped", "session_id", s.ID, "turns", s.TurnCount, "entries", len(entries))
	return s, entries, nil
}

// PauseSession cancels any in-flight turn and stops capture and playback. The
// session and its transcript are retained.
func (o *Orchestrator) PauseSession(context.Context) error {
	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return ErrNoSession
	}
	if o.state == StatePaused {
		o.mu.Unlock()
		return nil
	}
	cancel, done := o.turnCancel, o.turnDone
	o.mu.Unlock()

	o.cancelTurn(cancel, done)
	o.audio.StopPlayback()
	if err := o.audio.StopCapture(); err != nil {
		slog.Warn("stop capture failed", "err", err)
	}

	o.mu.Lock()
	o.turnCancel, o.turnDone = nil, nil
	o.setStateLocked(StatePaused)
	o.mu.Unlock()
	return nil
}

// ResumeSession restarts capture after PauseSession, or clears the error
// state after an unrecoverable fault.
func (o *Orchestrator) ResumeSession(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess == nil {
		return ErrNoSession
	}
	if o.state != StatePaused && o.state != StateError {
		return ErrNotPaused
	}
	if err := o.audio.StartCapture(ctx, o.audioCfg); err != nil {
		f := unrecoverableFault("audio", err)
		o.errMsg = f.Error()
		o.setStateLocked(StateError)
		return f
	}
	o.errMsg = ""
	o.setStateLocked(StateIdle)
	return nil
}

// SendTextMessage bypasses capture and STT: it appends a user transcript
// entry and starts a generation turn directly. The call is rejected with
// [ErrTurnInFlight] while a turn is already executing; there is no queuing.
func (o *Orchestrator) SendTextMessage(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("session: empty message")
	}

	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return ErrNoSession
	}
	if o.state == StatePaused || o.state == StateError {
		st := o.state
		o.mu.Unlock()
		return fmt.Errorf("session: cannot send message while %s", st)
	}
	if o.state.turnInFlight() {
		o.mu.Unlock()
		return ErrTurnInFlight
	}

	o.transcript.Append(transcript.RoleUser, text, nil)
	o.setStateLocked(StateAiThinking)
	turnCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.turnCancel, o.turnDone = cancel, done
	start := o.now()
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(done)
		o.runGeneration(turnCtx, start, 0, 0)
	}()
	return nil
}

// State returns the current state-machine value.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CurrentSession returns a copy of the active session, if any.
func (o *Orchestrator) CurrentSession() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return Session{}, false
	}
	return *o.sess, true
}

// Entries returns a copy of the active session's transcript.
func (o *Orchestrator) Entries() []transcript.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.transcript == nil {
		return nil
	}
	return o.transcript.Entries()
}

// LastTurnMetrics returns the metrics of the most recently completed turn.
func (o *Orchestrator) LastTurnMetrics() (TurnMetrics, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastTurn == nil {
		return TurnMetrics{}, false
	}
	return *o.lastTurn, true
}

// ErrorMessage returns the display message of the fault that put the machine
// into the error state, empty otherwise.
func (o *Orchestrator) ErrorMessage() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errMsg
}

// Subscribe returns a channel that emits every state transition, starting
// with the current state. The channel is buffered; a slow consumer misses
// intermediate transitions rather than blocking the state machine.
func (o *Orchestrator) Subscribe() <-chan State {
	ch := make(chan State, 16)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	ch <- o.state
	o.mu.Unlock()
	return ch
}

// Wait blocks until all in-flight turn goroutines have finished. Primarily
// useful in tests to synchronise before inspecting state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ─── Capture loop ─────────────────────────────────────────────────────────────

// captureLoop is the always-on observer: it classifies every captured frame,
// forwards audio to the active STT session, and injects speech events into
// the state machine. It is not serialised by the turn lock.
func (o *Orchestrator) captureLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	frames := o.audio.Frames()
	run := 0
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			res, err := o.vadD.ProcessFrame(f.Data)
			if err != nil {
				slog.Debug("vad rejected frame", "err", err)
				continue
			}
			if res.IsSpeech && res.Probability >= o.speechThreshold {
				run++
			} else {
				run = 0
			}

			o.mu.Lock()
			st := o.state
			handle := o.sttSession
			playbackStart := o.playbackStartedAt
			o.mu.Unlock()

			if handle != nil && st == StateUserSpeaking {
				if err := handle.SendAudio(f.Data); err != nil {
					slog.Debug("stt audio send failed", "err", err)
				}
			}

			if run < o.speechRunFrames {
				continue
			}
			run = 0

			switch st {
			case StateIdle:
				o.beginVoiceTurn()
			case StateAiSpeaking:
				if o.bargeInDebounce > 0 && o.now().Sub(playbackStart) < o.bargeInDebounce {
					continue
				}
				o.bargeIn(ctx)
			}
		}
	}
}

// beginVoiceTurn transitions Idle → UserSpeaking and launches the voice turn
// goroutine. A no-op if the machine moved on in the meantime.
func (o *Orchestrator) beginVoiceTurn() {
	o.mu.Lock()
	if o.sess == nil || o.state != StateIdle {
		o.mu.Unlock()
		return
	}
	o.setStateLocked(StateUserSpeaking)
	turnCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.turnCancel, o.turnDone = cancel, done
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(done)
		o.runVoiceTurn(turnCtx)
	}()
}

// bargeIn handles user speech detected during playback: the in-flight turn is
// cancelled and awaited, playback is stopped and its queue flushed, and only
// then does the machine re-enter UserSpeaking with a fresh STT stream.
func (o *Orchestrator) bargeIn(ctx context.Context) {
	o.mu.Lock()
	if o.state != StateAiSpeaking {
		o.mu.Unlock()
		return
	}
	cancel, done := o.turnCancel, o.turnDone
	o.setStateLocked(StateInterrupted)
	o.mu.Unlock()

	o.cancelTurn(cancel, done)
	o.audio.StopPlayback()
	o.metrics.RecordBargeIn(ctx)
	o.metrics.RecordTurn(ctx, "cancelled")
	slog.Debug("barge-in: previous turn cancelled")

	o.mu.Lock()
	if o.state != StateInterrupted {
		// stop or pause raced us and owns the machine now
		o.mu.Unlock()
		return
	}
	o.setStateLocked(StateUserSpeaking)
	turnCtx, newCancel := context.WithCancel(context.Background())
	newDone := make(chan struct{})
	o.turnCancel, o.turnDone = newCancel, newDone
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(newDone)
		o.runVoiceTurn(turnCtx)
	}()
}

// ─── Turn pipeline ────────────────────────────────────────────────────────────

// runVoiceTurn opens an STT stream, waits for the final transcript, then
// hands off to the generation pipeline.
func (o *Orchestrator) runVoiceTurn(ctx context.Context) {
	sttStart := o.now()
	handle, err := o.sttP.StartStream(ctx, stt.StreamConfig{
		SampleRate: o.audioCfg.SampleRate,
		Channels:   o.audioCfg.Channels,
		Language:   o.language,
	})
	if err != nil {
		o.handleFault(classifyFault("stt", err))
		return
	}

	o.mu.Lock()
	o.sttSession = handle
	o.mu.Unlock()

	var final string
	var speechDur time.Duration
recv:
	for {
		select {
		case <-ctx.Done():
			o.detachSTT(handle)
			o.handleFault(classifyFault("stt", ctx.Err()))
			return
		case t, ok := <-handle.Results():
			if !ok {
				break recv
			}
			if t.IsFinal {
				final = t.Text
				speechDur = t.Duration
				break recv
			}
		}
	}
	o.detachSTT(handle)
	sttLatency := o.now().Sub(sttStart)

	if strings.TrimSpace(final) == "" {
		// nothing was said: back to idle, no entry, no telemetry penalty
		o.mu.Lock()
		if o.state == StateUserSpeaking {
			o.setStateLocked(StateIdle)
		}
		o.mu.Unlock()
		return
	}

	o.recorder.RecordLatency(telemetry.CategorySTT, float64(sttLatency.Milliseconds()))
	o.metrics.STTDuration.Record(ctx, sttLatency.Seconds())

	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return
	}
	o.setStateLocked(StateProcessingUtterance)
	o.transcript.Append(transcript.RoleUser, final, nil)
	o.setStateLocked(StateAiThinking)
	finalizedAt := o.now()
	o.mu.Unlock()

	o.runGeneration(ctx, finalizedAt, sttLatency, speechDur)
}

// runGeneration drives the LLM→TTS→playback pipeline for one turn. On entry
// the machine is in AiThinking and the user entry is already appended.
func (o *Orchestrator) runGeneration(ctx context.Context, finalizedAt time.Time, sttLatency, speechDur time.Duration) {
	o.mu.Lock()
	if o.sess == nil || o.transcript == nil {
		o.mu.Unlock()
		return
	}
	sessID := o.sess.ID
	msgs := o.transcript.Messages()
	o.mu.Unlock()

	req := llm.CompletionRequest{
		SystemPrompt: o.buildSystemPrompt(ctx),
		Messages:     msgs,
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
	}

	llmStart := o.now()
	chunks, err := o.llmP.StreamCompletion(ctx, req)
	if err != nil {
		o.handleFault(classifyFault("llm", err))
		return
	}

	var (
		fullText   strings.Builder
		ttft       time.Duration
		ttfb       time.Duration
		synthStart time.Time
	)

	textCh := make(chan string, o.sentenceBuf)
	audioReady := make(chan (<-chan tts.Chunk), 1)

	g, gctx := errgroup.WithContext(ctx)

	// LLM consumer: aggregate tokens into sentences, start TTS lazily on the
	// first speakable unit so silent turns never open a synthesis stream.
	g.Go(func() error {
		defer close(textCh)
		defer close(audioReady)

		sp := &sentenceSplitter{minRunes: o.sentenceMinRunes}
		ttsStarted := false

		sendSentence := func(s string) error {
			if !ttsStarted {
				synthStart = o.now()
				audioCh, err := o.ttsP.SynthesizeStream(gctx, textCh, o.voice)
				if err != nil {
					return recoverableFault("tts", err)
				}
				audioReady <- audioCh
				ttsStarted = true
			}
			select {
			case textCh <- s:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		flushRemainder := func() error {
			if rest := sp.flush(); strings.TrimSpace(rest) != "" {
				return sendSentence(rest)
			}
			return nil
		}

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case chunk, ok := <-chunks:
				if !ok {
					return flushRemainder()
				}
				if chunk.FinishReason == "error" {
					return recoverableFault("llm", errors.New(chunk.Text))
				}
				if chunk.Text != "" {
					if ttft == 0 {
						ttft = o.now().Sub(llmStart)
						o.recorder.RecordLatency(telemetry.CategoryLLMTTFT, float64(ttft.Milliseconds()))
						o.metrics.LLMTimeToFirstToken.Record(gctx, ttft.Seconds())
					}
					fullText.WriteString(chunk.Text)
					for _, s := range sp.push(chunk.Text) {
						if err := sendSentence(s); err != nil {
							return err
						}
					}
				}
				if chunk.FinishReason != "" {
					return flushRemainder()
				}
			}
		}
	})

	// Audio consumer: queue synthesised chunks to the bounded playback queue.
	// QueuePlayback blocks when the queue is full, which backpressures the
	// whole pipeline up to the TTS producer.
	g.Go(func() error {
		var audioCh <-chan tts.Chunk
		select {
		case ch, ok := <-audioReady:
			if !ok {
				return nil // turn produced no speech
			}
			audioCh = ch
		case <-gctx.Done():
			return gctx.Err()
		}

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case chunk, ok := <-audioCh:
				if !ok {
					return nil
				}
				if chunk.IsFirst {
					ttfb = o.now().Sub(synthStart)
					o.recorder.RecordLatency(telemetry.CategoryTTSTTFB, float64(ttfb.Milliseconds()))
					o.metrics.TTSTimeToFirstByte.Record(gctx, ttfb.Seconds())

					o.mu.Lock()
					if o.state == StateAiThinking {
						o.playbackStartedAt = o.now()
						o.setStateLocked(StateAiSpeaking)
					}
					o.mu.Unlock()
				}
				if len(chunk.Audio) > 0 {
					if !o.audio.QueuePlayback(chunk.Audio) {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						return unrecoverableFault("audio", errors.New("playback rejected chunk"))
					}
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		o.handleFault(classifyFault("pipeline", err))
		return
	}

	if err := o.audio.WaitPlaybackDrained(ctx); err != nil {
		o.handleFault(classifyFault("audio", err))
		return
	}

	text := fullText.String()
	endToEnd := o.now().Sub(finalizedAt)
	cost := o.costModel.EstimateTurn(speechDur, text, text)
	metrics := TurnMetrics{
		STTLatency:       sttLatency,
		TimeToFirstToken: ttft,
		TimeToFirstAudio: ttfb,
		EndToEnd:         endToEnd,
		EstimatedCost:    cost.Total(),
	}

	o.mu.Lock()
	if o.sess == nil {
		o.mu.Unlock()
		return
	}
	if strings.TrimSpace(text) != "" {
		o.transcript.Append(transcript.RoleAssistant, text, nil)
	}
	o.sess.TurnCount++
	o.lastTurn = &metrics
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	// Turn-level telemetry only after the assistant entry is in the log.
	o.recorder.RecordLatency(telemetry.CategoryTurn, float64(endToEnd.Milliseconds()))
	o.metrics.TurnDuration.Record(ctx, endToEnd.Seconds())
	o.metrics.RecordTurn(ctx, "completed")
	o.recordCost(ctx, cost)

	slog.Info("turn completed",
		"session_id", sessID,
		"ttft", ttft,
		"ttfb", ttfb,
		"end_to_end", endToEnd,
		"cost_usd", cost.Total(),
	)
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

// cancelTurn cancels a turn and waits for its goroutine to unwind. The await
// matters: callers stop playback and report the new state only after the
// cancelled tasks have acknowledged cancellation.
func (o *Orchestrator) cancelTurn(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// detachSTT clears the capture loop's STT handle and closes the stream.
func (o *Orchestrator) detachSTT(h stt.SessionHandle) {
	o.mu.Lock()
	if o.sttSession == h {
		o.sttSession = nil
	}
	o.mu.Unlock()
	if err := h.Close(); err != nil {
		slog.Debug("stt close failed", "err", err)
	}
}

// handleFault is the single translation boundary for collaborator failures.
func (o *Orchestrator) handleFault(f *Fault) {
	switch f.Kind {
	case FaultCancelled:
		// expected outcome of barge-in/stop/pause; the canceller owns the
		// next state transition

	case FaultRecoverable:
		slog.Warn("turn aborted", "op", f.Op, "err", f.Err)
		o.metrics.RecordProviderError(context.Background(), o.providerNameFor(f.Op), "recoverable")
		o.metrics.RecordTurn(context.Background(), "error")
		o.mu.Lock()
		if o.state.turnInFlight() {
			o.setStateLocked(StateIdle)
		}
		o.mu.Unlock()

	case FaultUnrecoverable:
		slog.Error("unrecoverable session fault", "op", f.Op, "err", f.Err)
		o.metrics.RecordProviderError(context.Background(), o.providerNameFor(f.Op), "unrecoverable")
		o.metrics.RecordTurn(context.Background(), "error")
		o.audio.StopPlayback()
		if err := o.audio.StopCapture(); err != nil {
			slog.Warn("stop capture failed", "err", err)
		}
		o.mu.Lock()
		o.errMsg = f.Error()
		o.setStateLocked(StateError)
		o.mu.Unlock()
	}
}

// providerNameFor maps a pipeline stage to its configured provider name.
func (o *Orchestrator) providerNameFor(op string) string {
	switch op {
	case "stt":
		if o.providers.STT != "" {
			return o.providers.STT
		}
	case "llm", "pipeline":
		if o.providers.LLM != "" {
			return o.providers.LLM
		}
	case "tts":
		if o.providers.TTS != "" {
			return o.providers.TTS
		}
	}
	return op
}

// recordCost attributes the turn's estimated spend to the configured
// providers in both the telemetry recorder and the OTel counter.
func (o *Orchestrator) recordCost(ctx context.Context, cost TurnCost) {
	if cost.STT > 0 {
		o.recorder.RecordCost(o.providerNameFor("stt"), cost.STT, telemetry.CostSTT)
		o.metrics.RecordCost(ctx, o.providerNameFor("stt"), "stt", cost.STT)
	}
	if cost.LLM > 0 {
		o.recorder.RecordCost(o.providerNameFor("llm"), cost.LLM, telemetry.CostLLM)
		o.metrics.RecordCost(ctx, o.providerNameFor("llm"), "llm", cost.LLM)
	}
	if cost.TTS > 0 {
		o.recorder.RecordCost(o.providerNameFor("tts"), cost.TTS, telemetry.CostTTS)
		o.metrics.RecordCost(ctx, o.providerNameFor("tts"), "tts", cost.TTS)
	}
}

// buildSystemPrompt combines the tutoring prompt with the current curriculum
// topic, when one is active.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context) string {
	if o.curr == nil {
		return o.systemPrompt
	}
	c, err := o.curr.CurrentContext(ctx)
	if err != nil {
		slog.Warn("curriculum context unavailable", "err", err)
		return o.systemPrompt
	}
	if c == nil || c.Prompt == "" {
		return o.systemPrompt
	}
	var sb strings.Builder
	sb.WriteString(o.systemPrompt)
	sb.WriteString("\n\nCurrent topic: ")
	sb.WriteString(c.Title)
	sb.WriteString("\n")
	sb.WriteString(c.Prompt)
	return sb.String()
}

// setStateLocked updates the state and notifies subscribers. Callers must
// hold o.mu.
func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	o.state = s
	for _, ch := range o.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
