package player

import "fmt"

// Status is a snapshot of the session.
type Status struct {
	SessionID           string `json:"session_id,omitempty"`
	File                string `json:"file"`
	Format              int    `json:"format"`
	Tracks              int    `json:"tracks"`
	Tempo               int    `json:"tempo"`
	TempoAdjust         int    `json:"tempo_adjust"`
	TimeSignature       string `json:"time_signature"`
	TicksPerQuarterNote int    `json:"ticks_per_quarter_note"`
	MicrosecondsPerTick uint32 `json:"microseconds_per_tick"`
	Ticks               uint64 `json:"ticks"`
	Paused              bool   `json:"paused"`
	Looping             bool   `json:"looping"`
	Playing             bool   `json:"playing"`
	EndOfFile           bool   `json:"eof"`
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.dec.Info()
	return Status{
		SessionID:           s.id,
		File:                info.Name,
		Format:              info.Format,
		Tracks:              len(info.Tracks),
		Tempo:               info.Tempo,
		TempoAdjust:         info.TempoAdjust,
		TimeSignature:       fmt.Sprintf("%d/%d", info.TimeSignature[0], info.TimeSignature[1]),
		TicksPerQuarterNote: info.TicksPerQuarterNote,
		MicrosecondsPerTick: info.MicrosecondsPerTick,
		Ticks:               info.Ticks,
		Paused:              info.Paused,
		Looping:             info.Looping,
		Playing:             s.playing,
		EndOfFile:           s.eof,
	}
}
