package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voiceagent/internal/audio"
	"github.com/ent0n29/voiceagent/internal/convo"
	"github.com/ent0n29/voiceagent/internal/observability"
	"github.com/ent0n29/voiceagent/internal/pipeline"
	"github.com/ent0n29/voiceagent/internal/policy"
	"github.com/ent0n29/voiceagent/internal/reliability"
	"github.com/ent0n29/voiceagent/internal/voice"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrGreeting      = errors.New("session greeting failed")
	ErrSessionClosed = errors.New("session is not accepting speech")
	errEmptyReply    = errors.New("completer returned no speakable text")
)

// Why the listen loop ended.
const (
	exitCancelled    = "cancelled"
	exitDisconnected = "disconnected"
)

// Transport is the room audio path a Driver listens on and speaks into.
// Frames is closed when the room disconnects.
type Transport interface {
	Frames() <-chan audio.Frame
	Play(ctx context.Context, seg audio.Segment) error
}

type DriverConfig struct {
	Pipeline  *pipeline.Pipeline
	Transport Transport
	Persona   Persona
	Logger    zerolog.Logger
	Metrics   *observability.Metrics

	// FarewellTimeout bounds the exit utterance, which runs after the session
	// context is done.
	FarewellTimeout time.Duration
	// PreRollFrames are kept from before speech start and prepended to the segment.
	PreRollFrames int
	// MaxUtterance force-closes a segment that never reaches speech end.
	MaxUtterance time.Duration

	OnState func(State)
	OnTurn  func(TurnResult)
}

// TurnResult summarises one completed or aborted turn.
type TurnResult struct {
	ID       string
	OK       bool
	Stage    string
	Err      error
	Duration time.Duration
}

// Driver runs one voice session: greeting, listen/respond turns, farewell.
type Driver struct {
	pipe      *pipeline.Pipeline
	transport Transport
	persona   Persona
	logger    zerolog.Logger
	metrics   *observability.Metrics
	cfg       DriverConfig

	history *convo.Context

	// sayMu serialises every synthesize+play, scripted or turn.
	sayMu sync.Mutex

	mu    sync.RWMutex
	state State
	turns int
}

func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("driver requires a pipeline")
	}
	if cfg.Transport == nil {
		return nil, errors.New("driver requires a transport")
	}
	if cfg.FarewellTimeout <= 0 {
		cfg.FarewellTimeout = 5 * time.Second
	}
	if cfg.PreRollFrames <= 0 {
		cfg.PreRollFrames = 10
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Persona.Instructions) == "" {
		cfg.Persona.Instructions = DefaultInstructions
	}
	return &Driver{
		pipe:      cfg.Pipeline,
		transport: cfg.Transport,
		persona:   cfg.Persona,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		cfg:       cfg,
		history:   convo.New(cfg.Persona.Instructions),
		state:     StateIdle,
	}, nil
}

func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Turns returns the number of turns committed to the conversation.
func (d *Driver) Turns() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.turns
}

// Context returns a copy of the conversation so far.
func (d *Driver) Context() []convo.Message {
	return d.history.Messages()
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	d.mu.Unlock()
	if prev == s {
		return
	}
	d.logger.Debug().Str("from", string(prev)).Str("to", string(s)).Msg("session state")
	if d.cfg.OnState != nil {
		d.cfg.OnState(s)
	}
}

// Run drives the session until ctx is done or the transport closes. A
// greeting that cannot be delivered ends the session with ErrGreeting. Room
// disconnect and cancellation are normal endings and return nil.
func (d *Driver) Run(ctx context.Context) error {
	if d.State() != StateIdle {
		return errors.New("session already started")
	}
	d.setState(StateEntering)
	d.metrics.SessionStarted()
	defer d.metrics.SessionEnded()
	d.logger.Info().Msg("session started")

	if err := d.speak(ctx, "greeting", d.persona.Greeting); err != nil {
		d.logger.Error().Err(err).Msg("greeting failed; ending session")
		d.metrics.SessionEvent("greeting_failed")
		d.setState(StateTerminated)
		return fmt.Errorf("%w: %w", ErrGreeting, err)
	}

	d.setState(StateListening)
	reason := d.listen(ctx)
	d.exit(reason)
	return nil
}

// Say synthesizes text and blocks until the transport accepted the audio.
// It does not add to the conversation.
func (d *Driver) Say(ctx context.Context, text string) error {
	switch d.State() {
	case StateIdle, StateTerminated:
		return ErrSessionClosed
	}
	return d.speak(ctx, "say", text)
}

func (d *Driver) speak(ctx context.Context, kind, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	d.logger.Info().Str("utterance", kind).Str("text", redact(text)).Msg("scripted utterance")
	return d.synthesizeAndPlay(ctx, text)
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func (d *Driver) synthesizeAndPlay(ctx context.Context, text string) error {
	d.sayMu.Lock()
	defer d.sayMu.Unlock()

	start := time.Now()
	seg, err := d.pipe.TTS.Synthesize(ctx, text)
	if err != nil {
		return &stageError{stage: observability.StageTTS, err: err}
	}
	d.metrics.ObserveStage(observability.StageTTS, time.Since(start))
	if seg.Empty() {
		return nil
	}
	if err := d.transport.Play(ctx, seg); err != nil {
		return &stageError{stage: "playback", err: err}
	}
	return nil
}

func (d *Driver) listen(ctx context.Context) string {
	frames := d.transport.Frames()
	vad := d.pipe.VAD
	vad.Reset()

	var (
		seg       audio.Segment
		capturing bool
		preRoll   = make([]audio.Frame, 0, d.cfg.PreRollFrames)
	)

	for {
		select {
		case <-ctx.Done():
			return exitCancelled
		case frame, ok := <-frames:
			if !ok {
				return exitDisconnected
			}
			activity := vad.Process(frame)

			if capturing {
				seg.Append(frame)
				forced := seg.Duration() >= d.cfg.MaxUtterance
				if activity != voice.ActivitySpeechEnd && !forced {
					continue
				}
				if forced {
					vad.Reset()
				}
				capturing = false
				d.runTurn(ctx, seg)
				seg = audio.Segment{}
				continue
			}

			if activity == voice.ActivitySpeechStart {
				capturing = true
				seg = audio.Segment{}
				for _, f := range preRoll {
					seg.Append(f)
				}
				seg.Append(frame)
				preRoll = preRoll[:0]
				continue
			}

			if len(preRoll) == d.cfg.PreRollFrames {
				copy(preRoll, preRoll[1:])
				preRoll = preRoll[:len(preRoll)-1]
			}
			preRoll = append(preRoll, frame)
		}
	}
}

// runTurn handles one closed speech segment. The user and assistant messages
// are committed together only after the reply was played.
func (d *Driver) runTurn(ctx context.Context, seg audio.Segment) {
	d.setState(StateResponding)
	defer func() {
		if ctx.Err() == nil {
			d.setState(StateListening)
		}
	}()

	result := TurnResult{ID: uuid.NewString()}
	logger := d.logger.With().Str("turn_id", result.ID).Logger()
	start := time.Now()
	finish := func() {
		result.Duration = time.Since(start)
		if d.cfg.OnTurn != nil {
			d.cfg.OnTurn(result)
		}
	}
	defer finish()

	stageStart := time.Now()
	transcript, err := d.pipe.STT.Transcribe(ctx, seg)
	if err != nil {
		result.Stage, result.Err = observability.StageSTT, err
		d.turnFailed(ctx, logger, result.Stage, err)
		return
	}
	d.metrics.ObserveStage(observability.StageSTT, time.Since(stageStart))

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		result.Stage = observability.StageSTT
		d.metrics.TurnCompleted("empty")
		logger.Debug().Dur("audio", seg.Duration()).Msg("empty transcript; turn skipped")
		return
	}
	logger.Info().Str("transcript", redact(transcript)).Msg("user turn")

	user := convo.User(transcript)
	stageStart = time.Now()
	reply, err := d.pipe.LLM.Complete(ctx, d.history.WithPending(user))
	if err != nil {
		result.Stage, result.Err = observability.StageLLM, err
		d.turnFailed(ctx, logger, result.Stage, err)
		return
	}
	d.metrics.ObserveStage(observability.StageLLM, time.Since(stageStart))

	spoken := voice.SanitizeSpeechText(reply)
	if spoken == "" {
		result.Stage, result.Err = observability.StageLLM, errEmptyReply
		d.turnFailed(ctx, logger, result.Stage, errEmptyReply)
		return
	}

	if err := d.synthesizeAndPlay(ctx, spoken); err != nil {
		result.Stage, result.Err = observability.StageTTS, err
		var se *stageError
		if errors.As(err, &se) {
			result.Stage = se.stage
		}
		d.turnFailed(ctx, logger, result.Stage, err)
		return
	}

	d.history.Append(user, convo.Assistant(reply))
	d.mu.Lock()
	d.turns++
	d.mu.Unlock()

	result.OK = true
	d.metrics.TurnCompleted("ok")
	d.metrics.ObserveStage(observability.StageTurnTotal, time.Since(start))
	logger.Info().
		Str("reply", redact(spoken)).
		Dur("elapsed", time.Since(start)).
		Msg("assistant turn")
}

func (d *Driver) turnFailed(ctx context.Context, logger zerolog.Logger, stage string, err error) {
	if ctx.Err() != nil {
		d.metrics.TurnCompleted("cancelled")
		logger.Debug().Err(err).Str("stage", stage).Msg("turn interrupted by session end")
		return
	}
	provider, _ := reliability.ProviderOf(err)
	if provider == "unknown" {
		provider = d.providerFor(stage)
	}
	d.metrics.TurnCompleted("error")
	d.metrics.ProviderError(provider, stage)
	logger.Warn().
		Err(err).
		Str("stage", stage).
		Str("provider", provider).
		Bool("retryable", reliability.IsRetryable(err)).
		Msg("turn aborted")
}

func (d *Driver) providerFor(stage string) string {
	switch stage {
	case observability.StageSTT:
		return d.pipe.Providers.STT
	case observability.StageLLM:
		return d.pipe.Providers.LLM
	case observability.StageTTS:
		return d.pipe.Providers.TTS
	default:
		return "transport"
	}
}

// exit plays the farewell best-effort. The session context may already be
// done, so the utterance gets its own deadline. Nobody can hear it once the
// room is gone, so a disconnect skips synthesis entirely.
func (d *Driver) exit(reason string) {
	d.setState(StateExiting)
	d.logger.Info().Str("reason", reason).Msg("session exiting")

	if reason == exitDisconnected {
		d.logger.Debug().Msg("room disconnected; farewell skipped")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.FarewellTimeout)
		defer cancel()
		if err := d.speak(ctx, "farewell", d.persona.Farewell); err != nil {
			d.logger.Warn().Err(err).Msg("farewell not delivered")
		}
	}

	d.setState(StateTerminated)
	d.logger.Info().Int("turns", d.Turns()).Msg("session ended")
}

func redact(s string) string {
	return policy.ForLog(s, 160)
}
