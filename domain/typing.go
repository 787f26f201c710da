package domain

import "time"

// TypingState is the ephemeral per-(room, user) presence signal. It is
// overwritten on every keystroke-triggered update and considered expired
// once older than the staleness window, so a client that crashes mid-type
// never shows as typing forever.
type TypingState struct {
	UserID    string
	Name      string
	Typing    bool
	UpdatedAt time.Time
}

func (t TypingState) Stale(now time.Time, window time.Duration) bool {
	return now.Sub(t.UpdatedAt) > window
}

// Active reports whether the state should appear in a presence projection
// taken at now.
func (t TypingState) Active(now time.Time, window time.Duration) bool {
	return t.Typing && !t.Stale(now, window)
}
