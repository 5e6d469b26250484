package smf

import (
	"errors"
	"fmt"
)

// Load error kinds. A failed Load returns a *LoadError whose Kind is one of
// these; errors.Is matches against them directly.
var (
	ErrNoFile        = errors.New("no file name given")
	ErrOpen          = errors.New("cannot open file")
	ErrNotSMF        = errors.New("not a standard MIDI file")
	ErrHeaderLength  = errors.New("header length is not 6")
	ErrFormat        = errors.New("format is not 0 or 1")
	ErrFormat0Tracks = errors.New("format 0 file with more than one track")
	ErrTooManyTracks = errors.New("too many tracks")
	ErrDivision      = errors.New("invalid time division")
	ErrTrackTag      = errors.New("track chunk not found")
	ErrTrackRange    = errors.New("track chunk extends past end of file")
)

// ErrTempo is returned when a change would make the effective tempo zero or
// negative.
var ErrTempo = errors.New("effective tempo must be positive")

// ErrNotLoaded is returned by operations that need an open file.
var ErrNotLoaded = errors.New("no file loaded")

var loadCodes = map[error]int{
	ErrNoFile:        0,
	ErrOpen:          2,
	ErrNotSMF:        3,
	ErrHeaderLength:  4,
	ErrFormat:        5,
	ErrFormat0Tracks: 6,
	ErrTooManyTracks: 7,
	ErrDivision:      8,
}

// LoadError describes why a file could not be loaded.
type LoadError struct {
	Kind  error
	Track int   // track index for ErrTrackTag and ErrTrackRange
	Err   error // underlying cause, may be nil
}

func (e *LoadError) Error() string {
	msg := e.Kind.Error()
	if e.isTrackError() {
		msg = fmt.Sprintf("track %d: %s", e.Track, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code returns a numeric load status: 0 and 2-8 for
// file level errors, 10*(track+1) for a missing track chunk and
// 10*(track+1)+1 for a track past the end of the file.
func (e *LoadError) Code() int {
	switch e.Kind {
	case ErrTrackTag:
		return 10 * (e.Track + 1)
	case ErrTrackRange:
		return 10*(e.Track+1) + 1
	}
	if code, ok := loadCodes[e.Kind]; ok {
		return code
	}
	return -1
}

func (e *LoadError) isTrackError() bool {
	return e.Kind == ErrTrackTag || e.Kind == ErrTrackRange
}

func loadErr(kind error, cause error) *LoadError {
	return &LoadError{Kind: kind, Err: cause}
}
