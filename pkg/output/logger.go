package output

import (
	"fmt"

	charmlog "github.com/charmbracelet/log"

	"github.com/james-see/smfplay/pkg/smf"
)

// EventLogger logs every event at debug level. Ticks, when set, adds the
// playback position to each line.
type EventLogger struct {
	Logger *charmlog.Logger
	Ticks  func() uint64
}

func (l *EventLogger) log(msg string, kv ...interface{}) {
	if l.Ticks != nil {
		kv = append([]interface{}{"tick", l.Ticks()}, kv...)
	}
	l.Logger.Debug(msg, kv...)
}

func (l *EventLogger) MIDIEvent(ev *smf.MIDIEvent) {
	l.log("midi", "track", ev.Track, "ch", ev.Channel, "data", fmt.Sprintf("% X", ev.Bytes()))
}

func (l *EventLogger) SysexEvent(ev *smf.SysexEvent) {
	l.log("sysex", "track", ev.Track, "size", ev.Size, "truncated", ev.Truncated())
}

func (l *EventLogger) MetaEvent(ev *smf.MetaEvent) {
	kv := []interface{}{"track", ev.Track, "type", fmt.Sprintf("%02X", ev.Type), "size", ev.Size}
	if ev.Text != "" {
		kv = append(kv, "text", ev.Text)
	} else if len(ev.Data) > 0 {
		kv = append(kv, "data", fmt.Sprintf("% X", ev.Data))
	}
	if us, ok := ev.MicrosecondsPerQuarterNote(); ok {
		kv = append(kv, "us_per_quarter", us)
	}
	l.log("meta", kv...)
}
