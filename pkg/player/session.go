// Package player drives a decoder from a goroutine and exposes it safely to
// other goroutines such as HTTP handlers and the terminal UI.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/james-see/smfplay/pkg/smf"
)

// Sink receives playback events and can silence the output.
type Sink interface {
	smf.Handler
	AllNotesOff()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *charmlog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithPollInterval sets how often Run polls the decoder.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDecoderOptions passes options to the underlying decoder.
func WithDecoderOptions(opts ...smf.Option) Option {
	return func(s *Session) { s.decOpts = append(s.decOpts, opts...) }
}

// WithHandler adds a handler that sees every event after the sink.
func WithHandler(h smf.Handler) Option {
	return func(s *Session) { s.extra = append(s.extra, h) }
}

// Session owns one decoder. All decoder calls happen under mu; Run is the
// only caller of GetNextEvent.
type Session struct {
	mu       sync.Mutex
	dec      *smf.Decoder
	sink     Sink
	extra    []smf.Handler
	decOpts  []smf.Option
	logger   *charmlog.Logger
	interval time.Duration

	id      string
	playing bool
	eof     bool
	done    chan struct{}
}

// New returns a Session playing into sink.
func New(sink Sink, opts ...Option) *Session {
	s := &Session{
		sink:     sink,
		logger:   charmlog.Default(),
		interval: time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	close(s.done)

	var h smf.Handler = sink
	if len(s.extra) > 0 {
		h = append(smf.MultiHandler{sink}, s.extra...)
	}
	s.dec = smf.NewDecoder(h, s.decOpts...)
	return s
}

// Load replaces the current file and starts playing it.
func (s *Session) Load(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	if err := s.dec.Load(name); err != nil {
		s.logger.Error("load failed", "file", name, "err", err)
		return err
	}
	s.id = uuid.NewString()
	s.playing = true
	s.eof = false
	s.done = make(chan struct{})
	s.logger.Info("playing", "file", name, "session", s.id,
		"format", s.dec.Format(), "tracks", s.dec.TrackCount(), "tpq", s.dec.TicksPerQuarterNote())
	return nil
}

// Close stops playback and releases the file.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.dec.Close()
	s.id = ""
	s.eof = false
}

func (s *Session) stopLocked() {
	if !s.playing {
		return
	}
	s.playing = false
	s.sink.AllNotesOff()
	close(s.done)
}

// Done is closed when the current file stops, by reaching its end, Close or
// a new Load. It is already closed when nothing plays.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Pause holds or resumes playback. Sounding notes are silenced on pause.
func (s *Session) Pause(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return smf.ErrNotLoaded
	}
	if paused && !s.dec.Paused() {
		s.sink.AllNotesOff()
	}
	s.dec.Pause(paused)
	s.logger.Debug("pause", "paused", paused)
	return nil
}

// Restart plays the current file from the beginning, reopening it if it had
// already finished.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dec.Loaded() {
		return smf.ErrNotLoaded
	}
	s.sink.AllNotesOff()
	s.dec.Restart()
	s.eof = false
	if !s.playing {
		s.playing = true
		s.done = make(chan struct{})
	}
	return nil
}

// SetLooping enables restarting at the end of the file.
func (s *Session) SetLooping(looping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dec.SetLooping(looping)
}

// SetTempoAdjust offsets the tempo in beats per minute. The offset is kept
// across loads.
func (s *Session) SetTempoAdjust(delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTempoAdjustLocked(delta)
}

// AdjustTempo adds step to the current tempo offset.
func (s *Session) AdjustTempo(step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTempoAdjustLocked(s.dec.TempoAdjust() + step)
}

func (s *Session) setTempoAdjustLocked(delta int) error {
	if err := s.dec.SetTempoAdjust(delta); err != nil {
		return fmt.Errorf("tempo %d%+d: %w", s.dec.Tempo(), delta, err)
	}
	return nil
}

// poll runs one decoder step and handles the end of the file.
func (s *Session) poll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.dec.GetNextEvent()
	if s.dec.IsEndOfFile() {
		s.logger.Info("end of file", "file", s.dec.Filename(), "ticks", s.dec.ProcessedTicks())
		s.eof = true
		s.stopLocked()
	}
}

// Run polls the decoder until ctx is cancelled. Notes are silenced on exit.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopLocked()
			s.mu.Unlock()
			return nil
		case <-ticker.C:
			s.poll()
		}
	}
}
