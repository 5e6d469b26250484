package output

import (
	"errors"
	"io"

	"github.com/james-see/smfplay/pkg/smf"
)

// maxWalkTicks stops Walk on files whose tracks never end.
const maxWalkTicks = 1 << 24

// ErrTooLong is returned when a file plays for more than maxWalkTicks.
var ErrTooLong = errors.New("file too long to walk")

// Walk plays a loaded decoder to its end one tick at a time, without a
// clock. before, if set, runs ahead of every tick. Looping is switched off.
func Walk(d *smf.Decoder, before func()) error {
	d.SetLooping(false)
	d.ProcessEvents(0)
	for !d.IsEndOfFile() {
		if d.ProcessedTicks() >= maxWalkTicks {
			return ErrTooLong
		}
		if before != nil {
			before()
		}
		d.ProcessEvents(1)
	}
	return nil
}

// Render plays name and writes every decoded event to w as a normalized
// format 1 file.
func Render(name string, w io.Writer, opts ...smf.Option) error {
	d := smf.NewDecoder(nil, opts...)
	if err := d.Load(name); err != nil {
		return err
	}
	defer d.Close()

	rec := NewRecorder(d.TicksPerQuarterNote())
	d.SetHandler(rec)
	if err := Walk(d, func() { rec.Advance(1) }); err != nil {
		return err
	}
	_, err := rec.WriteTo(w)
	return err
}
