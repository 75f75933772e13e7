// Package navigation implements the browsing state machine of the bot: which
// event moves a session where, and what screen each state shows.
package navigation

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/session"
)

const (
	DefaultPageSize = 8
	DefaultColumns  = 4

	// NoDescriptionText is shown wherever a description is absent or empty.
	NoDescriptionText = "No description"

	labelFind       = "Find a conference"
	labelChoose     = "Choose a conference"
	labelBack       = "Back"
	labelForward    = "Forward"
	labelEndSession = "Finish browsing"
	labelOk         = "Ok"

	textMenu       = "I am your digital assistant.\nWhich conference would you like to see?"
	textSearch     = "Enter the conference name:"
	textNotFound   = "No such conference found..."
	textChoose     = "Choose a conference:"
	textEndSession = "Session finished. Send /start, /searcht or /chooset to begin again."
)

// Button is an inline control; Action is its callback data.
type Button struct {
	Label  string
	Action string
}

// Screen is a rendered message with its inline keyboard rows.
type Screen struct {
	Text string
	Rows [][]Button
}

// Catalog is the read side of the snapshot store.
type Catalog interface {
	Themes() []conferences.Theme
	FindByText(query string) (conferences.Theme, bool)
	FindByID(id conferences.ConferenceID) (conferences.Theme, bool)
}

// MachineConfig describes the dependencies of Machine.
type MachineConfig struct {
	Catalog  Catalog
	PageSize int
	Columns  int
}

// Machine applies events to sessions and renders the resulting screens.
type Machine struct {
	catalog  Catalog
	pageSize int
	columns  int
}

// NewMachine validates the configuration. Zero page size or columns fall back
// to the defaults.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("navigation: catalog is required")
	}
	if cfg.PageSize < 0 || cfg.Columns < 0 {
		return nil, fmt.Errorf("navigation: invalid layout %dx%d", cfg.PageSize, cfg.Columns)
	}
	machine := &Machine{catalog: cfg.Catalog, pageSize: cfg.PageSize, columns: cfg.Columns}
	if machine.pageSize == 0 {
		machine.pageSize = DefaultPageSize
	}
	if machine.columns == 0 {
		machine.columns = DefaultColumns
	}
	return machine, nil
}

// Handle applies event to current. It returns the screen to show and true, or
// false when the event does not apply to the current state; in that case the
// session is left untouched.
func (m *Machine) Handle(current *session.Session, event Event) (Screen, bool) {
	switch event.Kind {
	case EventStartSearch:
		current.EnterSearch()
		return m.Render(*current), true

	case EventStartChoose:
		current.EnterChoose()
		return m.Render(*current), true

	case EventSearchText:
		if current.Mode != session.ModeSearching {
			return Screen{}, false
		}
		theme, ok := m.catalog.FindByText(event.Query)
		if !ok {
			return NotFound(), true
		}
		current.EnterView(theme)
		return m.Render(*current), true

	case EventChoose:
		if current.Mode != session.ModeChoosing {
			return Screen{}, false
		}
		theme, ok := m.catalog.FindByID(event.ConferenceID)
		if !ok {
			return Screen{}, false
		}
		current.EnterView(theme)
		return m.Render(*current), true

	case EventPageForward, EventPageBack:
		return m.turnPage(current, event)

	case EventSelectSubtheme:
		if current.Mode != session.ModeViewing || current.Theme == nil {
			return Screen{}, false
		}
		if event.Index < 0 || event.Index >= len(current.Theme.Subthemes) {
			return Screen{}, false
		}
		current.EnterSubtheme(event.Index)
		return m.Render(*current), true

	case EventBackToTheme:
		if current.Mode != session.ModeViewingSubtheme || current.Theme == nil {
			return Screen{}, false
		}
		current.ReturnToTheme()
		return m.Render(*current), true

	case EventEndSession:
		current.Reset()
		return SessionEnded(), true
	}
	return Screen{}, false
}

func (m *Machine) turnPage(current *session.Session, event Event) (Screen, bool) {
	var total int
	switch {
	case event.Scope == ScopeTheme && current.Mode == session.ModeViewing && current.Theme != nil:
		total = len(current.Theme.Subthemes)
	case event.Scope == ScopeList && current.Mode == session.ModeChoosing:
		total = len(m.catalog.Themes())
	default:
		return Screen{}, false
	}

	step := 1
	if event.Kind == EventPageBack {
		step = -1
	}
	from := Paginate(total, m.pageSize, current.Page).Page
	to := Paginate(total, m.pageSize, from+step).Page
	if to == from {
		return Screen{}, false
	}
	current.Page = to
	return m.Render(*current), true
}

// Render returns the screen for the session's state. It has no side effects.
func (m *Machine) Render(current session.Session) Screen {
	switch current.Mode {
	case session.ModeSearching:
		return Screen{Text: textSearch}
	case session.ModeChoosing:
		return m.renderList(current.Page)
	case session.ModeViewing:
		if current.Theme != nil {
			return m.renderTheme(*current.Theme, current.Page)
		}
	case session.ModeViewingSubtheme:
		if subtheme, ok := current.SelectedSubtheme(); ok {
			return renderSubtheme(current.Theme.Conference, subtheme)
		}
		if current.Theme != nil {
			return m.renderTheme(*current.Theme, current.Page)
		}
	}
	return Menu()
}

// Menu is the greeting screen offering both ways to find a conference.
func Menu() Screen {
	return Screen{
		Text: textMenu,
		Rows: [][]Button{
			{{Label: labelFind, Action: ActionStartSearch}},
			{{Label: labelChoose, Action: ActionChooseTheme}},
		},
	}
}

// NotFound re-invites a search after a miss.
func NotFound() Screen {
	return Screen{Text: textNotFound, Rows: [][]Button{{{Label: labelOk, Action: ActionStartSearch}}}}
}

// SessionEnded is shown after a session has been finished.
func SessionEnded() Screen {
	return Screen{Text: textEndSession, Rows: [][]Button{{{Label: labelOk, Action: ActionEndOk}}}}
}

// Info wraps an informational text with a dismiss button.
func Info(text string) Screen {
	return Screen{Text: text, Rows: [][]Button{{{Label: labelOk, Action: ActionOkDismiss}}}}
}

func (m *Machine) renderTheme(theme conferences.Theme, page int) Screen {
	window := Paginate(len(theme.Subthemes), m.pageSize, page)
	buttons := make([]Button, 0, window.End-window.Start)
	for index := window.Start; index < window.End; index++ {
		buttons = append(buttons, Button{Label: theme.Subthemes[index].Name, Action: SubthemeAction(index)})
	}

	rows := m.grid(buttons)
	if nav := navigationRow(window, ActionPrevPage, ActionNextPage); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows, []Button{{Label: labelEndSession, Action: ActionEndSession}})

	return Screen{
		Text: fmt.Sprintf("<b>Conference:</b> %s\n%s",
			html.EscapeString(theme.Conference.Name),
			html.EscapeString(theme.Conference.Description.Or(NoDescriptionText))),
		Rows: rows,
	}
}

func (m *Machine) renderList(page int) Screen {
	themes := m.catalog.Themes()
	window := Paginate(len(themes), m.pageSize, page)
	buttons := make([]Button, 0, window.End-window.Start)
	for _, theme := range themes[window.Start:window.End] {
		buttons = append(buttons, Button{Label: theme.Conference.Name, Action: ChooseAction(theme.Conference.ID)})
	}

	rows := m.grid(buttons)
	if nav := navigationRow(window, ActionChoosePrev, ActionChooseNext); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows, []Button{{Label: labelEndSession, Action: ActionEndSession}})
	return Screen{Text: textChoose, Rows: rows}
}

func renderSubtheme(conference conferences.Conference, subtheme conferences.Subtheme) Screen {
	var text strings.Builder
	text.WriteString("<b>Conference:</b> ")
	text.WriteString(html.EscapeString(conference.Name))
	text.WriteString("\n<b>Topic:</b> ")
	text.WriteString(html.EscapeString(subtheme.Name))
	text.WriteString("\n")
	text.WriteString(html.EscapeString(subtheme.Description.Or(NoDescriptionText)))
	return Screen{
		Text: text.String(),
		Rows: [][]Button{
			{{Label: labelBack, Action: ActionReturnToTheme}},
			{{Label: labelEndSession, Action: ActionEndSession}},
		},
	}
}

func (m *Machine) grid(buttons []Button) [][]Button {
	rows := make([][]Button, 0, (len(buttons)+m.columns-1)/m.columns)
	for start := 0; start < len(buttons); start += m.columns {
		end := start + m.columns
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[start:end])
	}
	return rows
}

func navigationRow(window Page, prevAction, nextAction string) []Button {
	var row []Button
	if window.HasPrev {
		row = append(row, Button{Label: labelBack, Action: prevAction})
	}
	if window.HasNext {
		row = append(row, Button{Label: labelForward, Action: nextAction})
	}
	return row
}
