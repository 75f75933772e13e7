package navigation

import (
	"strconv"
	"strings"

	"github.com/confdesk/backend/internal/conferences"
)

// EventKind enumerates the navigation inputs.
type EventKind int

const (
	EventStartSearch EventKind = iota + 1
	EventStartChoose
	EventSearchText
	EventChoose
	EventPageForward
	EventPageBack
	EventSelectSubtheme
	EventBackToTheme
	EventEndSession
	EventDismiss
)

// Scope tells which paged sequence a page event was rendered for.
type Scope int

const (
	ScopeTheme Scope = iota
	ScopeList
)

// Event is a single navigation input for one chat.
type Event struct {
	Kind         EventKind
	Query        string
	ConferenceID conferences.ConferenceID
	Index        int
	Scope        Scope
}

// Callback actions carried by inline buttons.
const (
	ActionStartSearch   = "start_search"
	ActionChooseTheme   = "choose_theme"
	ActionNextPage      = "next_page"
	ActionPrevPage      = "prev_page"
	ActionChooseNext    = "choose_next"
	ActionChoosePrev    = "choose_prev"
	ActionReturnToTheme = "return_to_theme"
	ActionEndSession    = "end_session"
	ActionOkDismiss     = "ok_dismiss"
	ActionEndOk         = "end_ok"

	actionSubthemePrefix = "subtheme:"
	actionChoosePrefix   = "choose:"
)

func StartSearch() Event { return Event{Kind: EventStartSearch} }

func StartChoose() Event { return Event{Kind: EventStartChoose} }

func SearchText(query string) Event { return Event{Kind: EventSearchText, Query: query} }

func Choose(id conferences.ConferenceID) Event {
	return Event{Kind: EventChoose, ConferenceID: id}
}

func PageForward(scope Scope) Event { return Event{Kind: EventPageForward, Scope: scope} }

func PageBack(scope Scope) Event { return Event{Kind: EventPageBack, Scope: scope} }

func SelectSubtheme(index int) Event { return Event{Kind: EventSelectSubtheme, Index: index} }

func BackToTheme() Event { return Event{Kind: EventBackToTheme} }

func EndSession() Event { return Event{Kind: EventEndSession} }

func Dismiss() Event { return Event{Kind: EventDismiss} }

// SubthemeAction is the callback for the subtheme at index of the active theme.
func SubthemeAction(index int) string {
	return actionSubthemePrefix + strconv.Itoa(index)
}

// ChooseAction is the callback for picking a conference from the list.
func ChooseAction(id conferences.ConferenceID) string {
	return actionChoosePrefix + strconv.FormatInt(int64(id), 10)
}

// ParseAction decodes callback data. Unknown or malformed data is reported as
// not ok and must be ignored.
func ParseAction(data string) (Event, bool) {
	switch data {
	case ActionStartSearch:
		return StartSearch(), true
	case ActionChooseTheme:
		return StartChoose(), true
	case ActionNextPage:
		return PageForward(ScopeTheme), true
	case ActionPrevPage:
		return PageBack(ScopeTheme), true
	case ActionChooseNext:
		return PageForward(ScopeList), true
	case ActionChoosePrev:
		return PageBack(ScopeList), true
	case ActionReturnToTheme:
		return BackToTheme(), true
	case ActionEndSession:
		return EndSession(), true
	case ActionOkDismiss, ActionEndOk:
		return Dismiss(), true
	}

	if raw, ok := strings.CutPrefix(data, actionSubthemePrefix); ok {
		index, err := strconv.Atoi(raw)
		if err != nil {
			return Event{}, false
		}
		return SelectSubtheme(index), true
	}
	if raw, ok := strings.CutPrefix(data, actionChoosePrefix); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Event{}, false
		}
		return Choose(conferences.ConferenceID(id)), true
	}
	return Event{}, false
}
