package player

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	gsmf "gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/smfplay/pkg/smf"
)

type fakeSink struct {
	mu       sync.Mutex
	notes    []string
	silenced int
}

func (f *fakeSink) MIDIEvent(ev *smf.MIDIEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, ev.String())
}
func (f *fakeSink) SysexEvent(*smf.SysexEvent) {}
func (f *fakeSink) MetaEvent(*smf.MetaEvent)   {}
func (f *fakeSink) AllNotesOff() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silenced++
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// song is a quarter note at 120 bpm, 500ms long.
func song(t *testing.T) []byte {
	t.Helper()
	s := gsmf.New()
	s.TimeFormat = gsmf.MetricTicks(480)
	var tr gsmf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	tr.Close(0)
	require.NoError(t, s.Add(tr))
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func newSession(t *testing.T) (*Session, *fakeSink, *fakeClock) {
	t.Helper()
	sink := &fakeSink{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	fsys := fstest.MapFS{
		"song.mid":  {Data: song(t)},
		"other.mid": {Data: song(t)},
		"bad.mid":   {Data: []byte("not midi")},
	}
	s := New(sink,
		WithLogger(charmlog.New(&bytes.Buffer{})),
		WithDecoderOptions(smf.WithFS(fsys), smf.WithClock(clock)),
	)
	return s, sink, clock
}

func playFor(s *Session, clock *fakeClock, d, step time.Duration) {
	s.poll()
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		clock.Advance(step)
		s.poll()
	}
}

func TestLoadAssignsSessionID(t *testing.T) {
	s, _, _ := newSession(t)

	require.NoError(t, s.Load("song.mid"))
	first := s.Status()
	_, err := uuid.Parse(first.SessionID)
	require.NoError(t, err)
	assert.True(t, first.Playing)
	assert.Equal(t, "song.mid", first.File)
	assert.Equal(t, 480, first.TicksPerQuarterNote)
	assert.Equal(t, "4/4", first.TimeSignature)

	done := s.Done()
	require.NoError(t, s.Load("other.mid"))
	assert.NotEqual(t, first.SessionID, s.Status().SessionID)
	select {
	case <-done:
	default:
		t.Fatal("Done of the previous file should be closed")
	}
}

func TestLoadError(t *testing.T) {
	s, _, _ := newSession(t)

	err := s.Load("bad.mid")
	var le *smf.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 3, le.Code())
	assert.False(t, s.Status().Playing)
	assert.Empty(t, s.Status().SessionID)
}

func TestPlaysToEndOfFile(t *testing.T) {
	s, sink, clock := newSession(t)
	require.NoError(t, s.Load("song.mid"))

	playFor(s, clock, 490*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, sink.notes, 1)
	assert.True(t, s.Status().Playing)

	playFor(s, clock, 20*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"track=0 ch=0 90 3C 64", "track=0 ch=0 80 3C 00"}, sink.notes)

	st := s.Status()
	assert.False(t, st.Playing)
	assert.True(t, st.EndOfFile)
	assert.Equal(t, 1, sink.silenced)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed at end of file")
	}
}

func TestLoopingKeepsPlaying(t *testing.T) {
	s, sink, clock := newSession(t)
	require.NoError(t, s.Load("song.mid"))
	s.SetLooping(true)

	playFor(s, clock, 1600*time.Millisecond, 10*time.Millisecond)
	assert.True(t, s.Status().Playing)
	assert.True(t, s.Status().Looping)
	assert.GreaterOrEqual(t, len(sink.notes), 6)
}

func TestPauseSilencesAndHolds(t *testing.T) {
	s, sink, clock := newSession(t)
	assert.ErrorIs(t, s.Pause(true), smf.ErrNotLoaded)

	require.NoError(t, s.Load("song.mid"))
	playFor(s, clock, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, s.Pause(true))
	assert.Equal(t, 1, sink.silenced)
	assert.True(t, s.Status().Paused)

	playFor(s, clock, time.Second, 10*time.Millisecond)
	assert.Len(t, sink.notes, 1)

	// resuming restarts the pending delta from zero
	require.NoError(t, s.Pause(false))
	playFor(s, clock, 450*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, sink.notes, 1)
	playFor(s, clock, 60*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, sink.notes, 2)
}

func TestRestartAfterEnd(t *testing.T) {
	s, sink, clock := newSession(t)
	assert.ErrorIs(t, s.Restart(), smf.ErrNotLoaded)

	require.NoError(t, s.Load("song.mid"))
	playFor(s, clock, 600*time.Millisecond, 10*time.Millisecond)
	require.False(t, s.Status().Playing)

	require.NoError(t, s.Restart())
	assert.True(t, s.Status().Playing)
	playFor(s, clock, 20*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, sink.notes, 3)
}

func TestTempoAdjust(t *testing.T) {
	s, _, _ := newSession(t)
	require.NoError(t, s.SetTempoAdjust(30))
	require.NoError(t, s.AdjustTempo(-10))
	assert.Equal(t, 20, s.Status().TempoAdjust)

	assert.ErrorIs(t, s.SetTempoAdjust(-500), smf.ErrTempo)

	require.NoError(t, s.Load("song.mid"))
	assert.Equal(t, 20, s.Status().TempoAdjust, "adjustment kept across loads")
}

func TestConcurrentTempoSteps(t *testing.T) {
	s, _, _ := newSession(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AdjustTempo(1))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Status().TempoAdjust)
}

func TestCloseStops(t *testing.T) {
	s, sink, _ := newSession(t)
	require.NoError(t, s.Load("song.mid"))
	s.Close()
	s.Close()

	st := s.Status()
	assert.False(t, st.Playing)
	assert.Empty(t, st.File)
	assert.Equal(t, 1, sink.silenced)
}

func TestRunStopsOnCancel(t *testing.T) {
	sink := &fakeSink{}
	fsys := fstest.MapFS{"song.mid": {Data: song(t)}}
	s := New(sink, WithLogger(charmlog.New(&bytes.Buffer{})),
		WithPollInterval(time.Millisecond), WithDecoderOptions(smf.WithFS(fsys)))
	require.NoError(t, s.Load("song.mid"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.notes) > 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, s.Status().Playing)
}

func TestExtraHandlerSeesEvents(t *testing.T) {
	var count int
	extra := smf.HandlerFuncs{MIDI: func(*smf.MIDIEvent) { count++ }}
	clock := &fakeClock{now: time.Unix(0, 0)}
	fsys := fstest.MapFS{"song.mid": {Data: song(t)}}
	s := New(&fakeSink{}, WithHandler(extra), WithLogger(charmlog.New(&bytes.Buffer{})),
		WithDecoderOptions(smf.WithFS(fsys), smf.WithClock(clock)))
	require.NoError(t, s.Load("song.mid"))
	playFor(s, clock, 10*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, count)
}
