// Package smf plays Standard MIDI Files incrementally from a seekable source.
//
// A Decoder keeps one cursor per track chunk and reads events on demand as
// wall-clock time passes, so a file is never held in memory. The host calls
// GetNextEvent from its own loop; decoded events are delivered synchronously
// to a Handler.
package smf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Format is the SMF file format from the header chunk.
type Format int

const (
	SingleTrack    Format = 0
	MultiTrackSync Format = 1
)

func (f Format) String() string {
	switch f {
	case SingleTrack:
		return "single track"
	case MultiTrackSync:
		return "multi track"
	default:
		return fmt.Sprintf("format %d", int(f))
	}
}

// Policy selects how tracks are advanced within one poll.
type Policy int

const (
	// EventPriority gives every track one event per pass, keeping
	// simultaneous events on different tracks interleaved.
	EventPriority Policy = iota
	// TrackPriority drains all due events of a track before the next one.
	TrackPriority
)

func (p Policy) String() string {
	if p == TrackPriority {
		return "track"
	}
	return "event"
}

// ParsePolicy accepts "event" or "track".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "event":
		return EventPriority, nil
	case "track":
		return TrackPriority, nil
	default:
		return EventPriority, fmt.Errorf("unknown scheduling policy %q", s)
	}
}

// Defaults applied by NewDecoder and at every Load.
const (
	DefaultMaxTracks           = 16
	DefaultSysexBuffer         = 50
	DefaultMetaBuffer          = 50
	DefaultEventLimit          = 100
	DefaultTicksPerQuarterNote = 48
	DefaultTempo               = 120
	DefaultMicrosPerQuarter    = 500000
)

const microsPerMinute = 60 * 1000000

var headerTag = []byte("MThd")

// Clock supplies the current time. Only differences between readings are
// used.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Decoder.
type Option func(*Decoder)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(d *Decoder) { d.clock = c }
}

// WithPolicy selects the track scheduling policy.
func WithPolicy(p Policy) Option {
	return func(d *Decoder) { d.policy = p }
}

// WithMaxTracks sets the largest track count Load accepts.
func WithMaxTracks(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxTracks = n
		}
	}
}

// WithSysexBuffer sets the capacity of the SysEx payload buffer.
func WithSysexBuffer(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.sysexBuf = make([]byte, 0, n)
		}
	}
}

// WithMetaBuffer sets the capacity of the meta event payload buffer.
func WithMetaBuffer(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.metaBuf = make([]byte, 0, n)
		}
	}
}

// WithEventLimit bounds the number of passes (event priority) or events per
// track (track priority) in a single poll.
func WithEventLimit(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.eventLimit = n
		}
	}
}

// WithFS makes Load open names from fsys instead of the OS file system.
func WithFS(fsys fs.FS) Option {
	return func(d *Decoder) { d.fsys = fsys }
}

// Decoder plays one Standard MIDI File at a time. It is not safe for
// concurrent use, and must not be called from inside its own Handler.
type Decoder struct {
	clock      Clock
	handler    Handler
	policy     Policy
	fsys       fs.FS
	maxTracks  int
	eventLimit int
	sysexBuf   []byte
	metaBuf    []byte

	name   string
	closer io.Closer
	src    *source
	format Format
	tracks []track

	tpq          int
	tempo        int // beats per minute
	tempoDelta   int
	usPerQuarter uint32
	timeSig      [2]int

	paused    bool
	looping   bool
	synced    bool
	lastCheck time.Time
	ticks     uint64
	tickRem   uint64
}

// NewDecoder returns a Decoder delivering events to h, which may be nil.
func NewDecoder(h Handler, opts ...Option) *Decoder {
	d := &Decoder{
		clock:      systemClock{},
		handler:    h,
		maxTracks:  DefaultMaxTracks,
		eventLimit: DefaultEventLimit,
		sysexBuf:   make([]byte, 0, DefaultSysexBuffer),
		metaBuf:    make([]byte, 0, DefaultMetaBuffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.resetTiming()
	return d
}

// SetHandler replaces the event handler.
func (d *Decoder) SetHandler(h Handler) {
	d.handler = h
}

func (d *Decoder) resetTiming() {
	d.tpq = DefaultTicksPerQuarterNote
	d.tempo = DefaultTempo
	d.usPerQuarter = DefaultMicrosPerQuarter
	d.timeSig = [2]int{4, 4}
}

// Load opens name and prepares every track for playback. Any file already
// open is closed first. On failure nothing is left open.
func (d *Decoder) Load(name string) error {
	d.Close()
	if name == "" {
		return loadErr(ErrNoFile, nil)
	}

	var f fs.File
	var err error
	if d.fsys != nil {
		f, err = d.fsys.Open(name)
	} else {
		f, err = os.Open(name)
	}
	if err != nil {
		return loadErr(ErrOpen, err)
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		_ = f.Close()
		return loadErr(ErrOpen, errors.New("file is not seekable"))
	}
	return d.load(name, rs, f)
}

// LoadReader prepares an already open source for playback. The decoder does
// not close rs.
func (d *Decoder) LoadReader(name string, rs io.ReadSeeker) error {
	d.Close()
	if rs == nil {
		return loadErr(ErrNoFile, nil)
	}
	return d.load(name, rs, nil)
}

func (d *Decoder) load(name string, rs io.ReadSeeker, closer io.Closer) error {
	src, err := newSource(rs)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return loadErr(ErrOpen, err)
	}
	d.name = name
	d.src = src
	d.closer = closer

	count, err := d.readHeader()
	if err != nil {
		d.Close()
		return err
	}

	d.tracks = make([]track, count)
	for i := range d.tracks {
		if err := d.tracks[i].load(i, d); err != nil {
			d.Close()
			return &LoadError{Kind: err, Track: i}
		}
	}
	return nil
}

// header chunk = "MThd" <length:4> <format:2> <tracks:2> <division:2>
func (d *Decoder) readHeader() (int, error) {
	src := d.src
	var tag [4]byte
	if err := src.readFull(tag[:]); err != nil || !bytes.Equal(tag[:], headerTag) {
		return 0, loadErr(ErrNotSMF, err)
	}

	length, err := ReadFixed(src, 4)
	if err != nil || length != 6 {
		return 0, loadErr(ErrHeaderLength, err)
	}

	// a header cut short inside its declared length is a length error
	format, err := ReadFixed(src, 2)
	if err != nil {
		return 0, loadErr(ErrHeaderLength, err)
	}
	if format != 0 && format != 1 {
		return 0, loadErr(ErrFormat, nil)
	}

	count, err := ReadFixed(src, 2)
	if err != nil {
		return 0, loadErr(ErrHeaderLength, err)
	}
	if format == 0 && count != 1 {
		return 0, loadErr(ErrFormat0Tracks, nil)
	}
	if int(count) > d.maxTracks {
		return 0, loadErr(ErrTooManyTracks, fmt.Errorf("%d tracks, limit %d", count, d.maxTracks))
	}

	division, err := ReadFixed(src, 2)
	if err != nil {
		return 0, loadErr(ErrHeaderLength, err)
	}
	tpq, err := ticksFromDivision(uint16(division))
	if err != nil {
		return 0, loadErr(ErrDivision, err)
	}

	d.resetTiming()
	d.format = Format(format)
	d.tpq = tpq
	return int(count), nil
}

// ticksFromDivision decodes the header division field. With the top bit set
// the high byte is a negative SMPTE frame rate and the low byte the ticks per
// frame.
func ticksFromDivision(division uint16) (int, error) {
	if division&0x8000 == 0 {
		if division == 0 {
			return 0, errors.New("zero ticks per quarter note")
		}
		return int(division), nil
	}

	var fps int
	switch byte(division >> 8) {
	case 232:
		fps = 24
	case 231:
		fps = 25
	case 227:
		fps = 29
	case 226:
		fps = 30
	default:
		return 0, fmt.Errorf("unsupported SMPTE frame rate 0x%02X", byte(division>>8))
	}
	resolution := int(division & 0xFF)
	if resolution == 0 {
		return 0, errors.New("zero ticks per frame")
	}
	return fps * resolution, nil
}

// Close releases the file and resets every track. It is safe to call at any
// time, more than once.
func (d *Decoder) Close() {
	for i := range d.tracks {
		d.tracks[i].close()
	}
	d.tracks = nil
	d.format = SingleTrack
	d.synced = false
	d.paused = false
	d.ticks = 0
	d.tickRem = 0
	d.name = ""
	d.src = nil
	if d.closer != nil {
		_ = d.closer.Close()
		d.closer = nil
	}
}

// Loaded reports whether a file is open.
func (d *Decoder) Loaded() bool {
	return d.src != nil
}

func (d *Decoder) syncTracks() {
	for i := range d.tracks {
		d.tracks[i].syncTime()
	}
	d.lastCheck = d.clock.Now()
	d.tickRem = 0
}

// GetNextEvent is the polling entry point. It returns true when at least one
// tick has passed since the previous successful call, whether or not any
// track had an event due. It never blocks.
func (d *Decoder) GetNextEvent() bool {
	if d.paused || d.src == nil {
		return false
	}
	if !d.synced {
		d.syncTracks()
		d.synced = true
	}

	now := d.clock.Now()
	gap := now.Sub(d.lastCheck)
	if gap <= 0 {
		return false
	}
	micros := uint64(gap / time.Microsecond)
	units := micros * uint64(d.tpq)
	qn := d.quarterNote()
	if units < qn {
		return false
	}
	// advance by whole microseconds so sub-microsecond remainders carry over
	d.lastCheck = d.lastCheck.Add(time.Duration(micros) * time.Microsecond)

	d.tickRem += units
	d.ticks += d.tickRem / qn
	d.tickRem %= qn

	d.advance(units)
	return true
}

// ProcessEvents advances playback by an explicit number of ticks at the
// current tempo, for hosts that run their own tick generator.
func (d *Decoder) ProcessEvents(ticks int) {
	if d.src == nil || ticks < 0 {
		return
	}
	d.ticks += uint64(ticks)
	d.advance(uint64(ticks) * d.quarterNote())
}

// advance hands elapsed time to the tracks. Only the first attempt on each
// track carries the time; later attempts pass zero so events sharing a
// timestamp do not each consume it.
func (d *Decoder) advance(units uint64) {
	switch d.policy {
	case TrackPriority:
		for i := range d.tracks {
			for n := 0; n < d.eventLimit; n++ {
				elapsed := uint64(0)
				if n == 0 {
					elapsed = units
				}
				if !d.tracks[i].next(d, elapsed) {
					break
				}
			}
		}

	default:
		for n := 0; n < d.eventLimit; n++ {
			elapsed := uint64(0)
			if n == 0 {
				elapsed = units
			}
			done := false
			for i := range d.tracks {
				if d.tracks[i].next(d, elapsed) {
					done = true
				}
			}
			if !done {
				break
			}
		}
	}
}

// IsEndOfFile reports whether every track has ended. When looping, the file
// is restarted instead and false is returned.
func (d *Decoder) IsEndOfFile() bool {
	for i := range d.tracks {
		if !d.tracks[i].eot {
			return false
		}
	}
	if d.looping && len(d.tracks) > 0 {
		d.Restart()
		return false
	}
	return true
}

// Pause stops or resumes playback. Time spent paused is not counted.
func (d *Decoder) Pause(paused bool) {
	d.paused = paused
	if !paused {
		d.synced = false
	}
}

// Restart rewinds the tracks to their first event. While looping a
// multi-track file, track 0 keeps its position so its setup events are not
// replayed.
func (d *Decoder) Restart() {
	first := 0
	if d.looping && len(d.tracks) > 1 {
		first = 1
	}
	for i := first; i < len(d.tracks); i++ {
		d.tracks[i].restart()
	}
	d.synced = false
	d.ticks = 0
	d.tickRem = 0
}

// SetLooping enables automatic restart at the end of the file.
func (d *Decoder) SetLooping(looping bool) {
	d.looping = looping
}

func (d *Decoder) Looping() bool { return d.looping }
func (d *Decoder) Paused() bool  { return d.paused }

// quarterNote returns the effective microseconds per quarter note. Without a
// tempo adjustment the exact value from the file is used.
func (d *Decoder) quarterNote() uint64 {
	if d.tempoDelta == 0 {
		return uint64(d.usPerQuarter)
	}
	return uint64(microsPerMinute / (d.tempo + d.tempoDelta))
}

// Tempo returns the nominal tempo in beats per minute.
func (d *Decoder) Tempo() int { return d.tempo }

// TempoAdjust returns the tempo adjustment in beats per minute.
func (d *Decoder) TempoAdjust() int { return d.tempoDelta }

// SetTempo sets the nominal tempo in beats per minute.
func (d *Decoder) SetTempo(bpm int) error {
	if bpm <= 0 || bpm+d.tempoDelta <= 0 {
		return ErrTempo
	}
	d.tempo = bpm
	d.usPerQuarter = uint32(microsPerMinute / bpm)
	return nil
}

// SetTempoAdjust offsets the tempo by delta beats per minute.
func (d *Decoder) SetTempoAdjust(delta int) error {
	if d.tempo+delta <= 0 {
		return ErrTempo
	}
	d.tempoDelta = delta
	return nil
}

// SetMicrosecondsPerQuarterNote applies a tempo meta event value.
func (d *Decoder) SetMicrosecondsPerQuarterNote(us uint32) error {
	if us == 0 || us > microsPerMinute {
		return ErrTempo
	}
	bpm := int(microsPerMinute / us)
	if d.tempoDelta != 0 && bpm+d.tempoDelta <= 0 {
		return ErrTempo
	}
	d.tempo = bpm
	d.usPerQuarter = us
	return nil
}

// MicrosecondsPerQuarterNote returns the effective quarter note duration.
func (d *Decoder) MicrosecondsPerQuarterNote() uint32 {
	return uint32(d.quarterNote())
}

// MicrosecondsPerTick returns the effective tick duration, rounded down.
func (d *Decoder) MicrosecondsPerTick() uint32 {
	return uint32(d.quarterNote() / uint64(d.tpq))
}

// TimeSignature returns numerator and denominator, e.g. 6 and 8.
func (d *Decoder) TimeSignature() (int, int) {
	return d.timeSig[0], d.timeSig[1]
}

// SetTimeSignature sets the time signature. The denominator is the note
// value itself, not its power of two.
func (d *Decoder) SetTimeSignature(numerator, denominator int) error {
	if numerator <= 0 || denominator <= 0 {
		return fmt.Errorf("invalid time signature %d/%d", numerator, denominator)
	}
	d.timeSig = [2]int{numerator, denominator}
	return nil
}

// TicksPerQuarterNote returns the file resolution.
func (d *Decoder) TicksPerQuarterNote() int { return d.tpq }

// SetTicksPerQuarterNote overrides the resolution. Pending time on every
// track is rescaled so no progress is lost.
func (d *Decoder) SetTicksPerQuarterNote(tpq int) error {
	if tpq <= 0 || tpq > 0x7FFF {
		return fmt.Errorf("invalid ticks per quarter note %d", tpq)
	}
	for i := range d.tracks {
		d.tracks[i].elapsed = d.tracks[i].elapsed * uint64(tpq) / uint64(d.tpq)
	}
	d.tickRem = d.tickRem * uint64(tpq) / uint64(d.tpq)
	d.tpq = tpq
	return nil
}

// Format returns the file format.
func (d *Decoder) Format() Format { return d.format }

// TrackCount returns the number of loaded tracks.
func (d *Decoder) TrackCount() int { return len(d.tracks) }

// Filename returns the name passed to Load, empty when nothing is loaded.
func (d *Decoder) Filename() string { return d.name }

// ProcessedTicks returns the ticks played since the last load or restart.
func (d *Decoder) ProcessedTicks() uint64 { return d.ticks }
