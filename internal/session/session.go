// Package session keeps per-chat navigation state for the bot.
package session

import "github.com/confdesk/backend/internal/conferences"

// Mode is the navigation mode of a chat.
type Mode string

const (
	ModeIdle            Mode = "idle"
	ModeSearching       Mode = "searching"
	ModeChoosing        Mode = "choosing"
	ModeViewing         Mode = "viewing"
	ModeViewingSubtheme Mode = "viewing_subtheme"
)

// NoSubtheme marks that no subtheme is selected.
const NoSubtheme = -1

// Session is the ephemeral navigation state of one chat. LastMessageID is the
// screen the bot showed last (0 when none) so it can be replaced.
type Session struct {
	ChatID        int64
	Mode          Mode
	Theme         *conferences.Theme
	Page          int
	SubthemeIndex int
	LastMessageID int
}

func newSession(chatID int64) Session {
	return Session{ChatID: chatID, Mode: ModeIdle, SubthemeIndex: NoSubtheme}
}

// EnterSearch waits for a search query.
func (s *Session) EnterSearch() {
	s.Mode = ModeSearching
	s.Theme = nil
	s.Page = 0
	s.SubthemeIndex = NoSubtheme
}

// EnterChoose shows the conference list from the first page.
func (s *Session) EnterChoose() {
	s.Mode = ModeChoosing
	s.Theme = nil
	s.Page = 0
	s.SubthemeIndex = NoSubtheme
}

// EnterView shows theme from its first page of subthemes.
func (s *Session) EnterView(theme conferences.Theme) {
	s.Mode = ModeViewing
	s.Theme = &theme
	s.Page = 0
	s.SubthemeIndex = NoSubtheme
}

// EnterSubtheme shows one subtheme of the active theme, keeping the page.
func (s *Session) EnterSubtheme(index int) {
	s.Mode = ModeViewingSubtheme
	s.SubthemeIndex = index
}

// ReturnToTheme goes back to the page the subtheme was opened from.
func (s *Session) ReturnToTheme() {
	s.Mode = ModeViewing
	s.SubthemeIndex = NoSubtheme
}

// Reset returns to idle, keeping only the chat and the last shown message.
func (s *Session) Reset() {
	lastMessageID := s.LastMessageID
	*s = newSession(s.ChatID)
	s.LastMessageID = lastMessageID
}

// HasTheme reports whether a theme is active.
func (s Session) HasTheme() bool {
	return s.Theme != nil
}

// SelectedSubtheme returns the selected subtheme of the active theme.
func (s Session) SelectedSubtheme() (conferences.Subtheme, bool) {
	if s.Theme == nil || s.SubthemeIndex < 0 || s.SubthemeIndex >= len(s.Theme.Subthemes) {
		return conferences.Subtheme{}, false
	}
	return s.Theme.Subthemes[s.SubthemeIndex], true
}
