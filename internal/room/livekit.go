package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/voiceagent/internal/audio"
	"github.com/ent0n29/voiceagent/internal/token"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	opus "gopkg.in/hraban/opus.v2"
)

const (
	// Opus over WebRTC is always 48 kHz.
	inputSampleRate = 48000
	// maxOpusFrame is 120ms at 48 kHz, the largest Opus frame.
	maxOpusFrame = 5760
	// closeDrain bounds how long Close waits for queued speech before leaving.
	closeDrain = 3 * time.Second
)

type LiveKitConfig struct {
	URL           string
	AgentIdentity string
	// OutputSampleRate is the rate of the published PCM track.
	OutputSampleRate int
	// FrameBuffer is how many decoded frames may queue before new ones are dropped.
	FrameBuffer int
}

// LiveKitConnector joins rooms with a credential minted for the agent identity.
type LiveKitConnector struct {
	cfg    LiveKitConfig
	issuer *token.Issuer
	logger zerolog.Logger
}

func NewLiveKitConnector(cfg LiveKitConfig, issuer *token.Issuer, logger zerolog.Logger) *LiveKitConnector {
	if strings.TrimSpace(cfg.AgentIdentity) == "" {
		cfg.AgentIdentity = "voice-agent"
	}
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = 48000
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 256
	}
	return &LiveKitConnector{
		cfg:    cfg,
		issuer: issuer,
		logger: logger.With().Str("component", "room").Logger(),
	}
}

func (c *LiveKitConnector) Connect(ctx context.Context, roomName string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cred, err := c.issuer.IssueFor(roomName, c.cfg.AgentIdentity)
	if err != nil {
		return nil, fmt.Errorf("mint agent credential: %w", err)
	}

	logger := c.logger.With().Str("room", cred.Room).Logger()
	t := newLiveKitTransport(c.cfg, logger)

	room, err := lksdk.ConnectToRoomWithToken(c.cfg.URL, cred.Token, t.callback(), lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, fmt.Errorf("connect to room %q: %w", cred.Room, err)
	}

	track, err := lkmedia.NewPCMLocalTrack(c.cfg.OutputSampleRate, 1, nil)
	if err != nil {
		room.Disconnect()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	if _, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "agent-voice",
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		track.Close()
		room.Disconnect()
		return nil, fmt.Errorf("publish audio track: %w", err)
	}

	t.attach(room, track)
	logger.Info().
		Str("identity", c.cfg.AgentIdentity).
		Int("output_rate", c.cfg.OutputSampleRate).
		Msg("joined room")
	return t, nil
}

type pcmDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// speaker is the outbound track. WriteSample only queues audio; the track
// paces it out in real time.
type speaker interface {
	WriteSample(samples []int16) error
	WaitForPlayout()
	ClearQueue()
	Close()
}

type pcmSpeaker struct {
	track *lkmedia.PCMLocalTrack
}

func (p pcmSpeaker) WriteSample(samples []int16) error { return p.track.WriteSample(samples) }
func (p pcmSpeaker) WaitForPlayout()                   { p.track.WaitForPlayout() }
func (p pcmSpeaker) ClearQueue()                       { p.track.ClearQueue() }
func (p pcmSpeaker) Close()                            { p.track.Close() }

type liveKitTransport struct {
	logger        zerolog.Logger
	agentIdentity string
	outRate       int

	frames  chan audio.Frame
	mu      sync.RWMutex
	closed  bool
	linked  string
	dropped atomic.Int64

	room      *lksdk.Room
	out       speaker
	closeOnce sync.Once
}

func newLiveKitTransport(cfg LiveKitConfig, logger zerolog.Logger) *liveKitTransport {
	return &liveKitTransport{
		logger:        logger,
		agentIdentity: cfg.AgentIdentity,
		outRate:       cfg.OutputSampleRate,
		frames:        make(chan audio.Frame, cfg.FrameBuffer),
	}
}

func (t *liveKitTransport) attach(room *lksdk.Room, track *lkmedia.PCMLocalTrack) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.room = room
	t.out = pcmSpeaker{track: track}
}

func (t *liveKitTransport) callback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio || rp.Identity() == t.agentIdentity {
					return
				}
				t.logger.Info().Str("participant", rp.Identity()).Str("track", pub.SID()).Msg("subscribed to participant audio")
				go t.readTrack(track, rp.Identity())
			},
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			if t.unlink(rp.Identity()) {
				t.logger.Info().Str("participant", rp.Identity()).Msg("linked participant left; waiting for the next speaker")
			}
		},
		OnDisconnected: func() {
			t.logger.Info().Msg("disconnected from room")
			t.closeFrames()
		},
	}
}

// link binds the session to the first non-agent participant whose audio
// arrives while nobody is linked, and reports whether identity is linked.
func (t *liveKitTransport) link(identity string) bool {
	if identity == "" || identity == t.agentIdentity {
		return false
	}
	t.mu.RLock()
	linked := t.linked
	t.mu.RUnlock()
	if linked != "" {
		return linked == identity
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.linked == "" {
		t.linked = identity
	}
	return t.linked == identity
}

// unlink frees the session for another participant. The frame stream stays
// open; only a room disconnect or Close ends it.
func (t *liveKitTransport) unlink(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.linked == "" || t.linked != identity {
		return false
	}
	t.linked = ""
	return true
}

func (t *liveKitTransport) readTrack(track *webrtc.TrackRemote, participant string) {
	dec, err := opus.NewDecoder(inputSampleRate, 1)
	if err != nil {
		t.logger.Error().Err(err).Str("participant", participant).Msg("create opus decoder")
		return
	}
	pcm := make([]int16, maxOpusFrame)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug().Err(err).Str("participant", participant).Msg("audio track read ended")
			}
			return
		}
		if !t.link(participant) {
			continue
		}
		if frame, ok := decodeFrame(dec, pkt.Payload, pcm); ok {
			t.push(frame)
		}
	}
}

func decodeFrame(dec pcmDecoder, payload []byte, pcm []int16) (audio.Frame, bool) {
	if len(payload) == 0 {
		return audio.Frame{}, false
	}
	n, err := dec.Decode(payload, pcm)
	if err != nil || n <= 0 {
		return audio.Frame{}, false
	}
	samples := make([]int16, n)
	copy(samples, pcm[:n])
	return audio.Frame{Samples: samples, SampleRate: inputSampleRate}, true
}

// push never blocks the RTP reader; a full buffer drops the frame.
func (t *liveKitTransport) push(frame audio.Frame) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.frames <- frame:
	default:
		if n := t.dropped.Add(1); n%100 == 1 {
			t.logger.Warn().Int64("dropped", n).Msg("inbound audio buffer full")
		}
	}
}

func (t *liveKitTransport) closeFrames() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.frames)
	}
}

func (t *liveKitTransport) Frames() <-chan audio.Frame { return t.frames }

// Play resamples to the track rate, queues the audio in 20ms chunks and
// blocks until the track has played it out. Cancelling ctx drops whatever
// is still queued.
func (t *liveKitTransport) Play(ctx context.Context, seg audio.Segment) error {
	out := t.speaker()
	if out == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	samples := audio.Resample(seg.Samples, seg.SampleRate, t.outRate)
	chunk := t.outRate / 50
	for off := 0; off < len(samples); off += chunk {
		if t.isClosed() {
			return ErrClosed
		}
		end := min(off+chunk, len(samples))
		if err := out.WriteSample(samples[off:end]); err != nil {
			return fmt.Errorf("write audio sample: %w", err)
		}
	}

	played := make(chan struct{})
	go func() {
		out.WaitForPlayout()
		close(played)
	}()
	select {
	case <-played:
		return nil
	case <-ctx.Done():
		out.ClearQueue()
		return ctx.Err()
	}
}

func (t *liveKitTransport) speaker() speaker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.out
}

func (t *liveKitTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Close lets queued speech finish, bounded by closeDrain, then leaves the room.
func (t *liveKitTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeFrames()
		t.mu.Lock()
		room, out := t.room, t.out
		t.out = nil
		t.mu.Unlock()
		if out != nil {
			drainPlayout(out, closeDrain)
			out.Close()
		}
		if room != nil {
			room.Disconnect()
		}
	})
	return nil
}

func drainPlayout(out speaker, limit time.Duration) {
	done := make(chan struct{})
	go func() {
		out.WaitForPlayout()
		close(done)
	}()
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		out.ClearQueue()
	}
}
