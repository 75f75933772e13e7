package snapshot

import "github.com/confdesk/backend/internal/conferences"

// SubthemeGroup lists subthemes that appeared in an already known conference.
type SubthemeGroup struct {
	ConferenceName string
	Subthemes      []conferences.Subtheme
}

// Delta is the content that appeared between two snapshots.
type Delta struct {
	NewConferences []conferences.Theme
	NewSubthemes   []SubthemeGroup
}

// Empty reports whether nothing new appeared.
func (d Delta) Empty() bool {
	return len(d.NewConferences) == 0 && len(d.NewSubthemes) == 0
}

// SubthemesFor returns the new subthemes grouped under conferenceName.
func (d Delta) SubthemesFor(conferenceName string) ([]conferences.Subtheme, bool) {
	for _, group := range d.NewSubthemes {
		if group.ConferenceName == conferenceName {
			return group.Subthemes, true
		}
	}
	return nil, false
}

// SubthemeCount is the number of new subthemes across all groups.
func (d Delta) SubthemeCount() int {
	total := 0
	for _, group := range d.NewSubthemes {
		total += len(group.Subthemes)
	}
	return total
}

// Diff compares identifiers between previous and current. A conference is new when
// its id is absent from previous; a subtheme is new when its conference exists in
// both snapshots and its id is absent from that conference's previous subthemes.
// Subthemes of new conferences are reported only through the conference itself.
// Output follows the order of current.
func Diff(previous, current Snapshot) Delta {
	known := make(map[conferences.ConferenceID]map[conferences.SubthemeID]struct{}, len(previous.Themes))
	for _, theme := range previous.Themes {
		ids := make(map[conferences.SubthemeID]struct{}, len(theme.Subthemes))
		for _, subtheme := range theme.Subthemes {
			ids[subtheme.ID] = struct{}{}
		}
		known[theme.Conference.ID] = ids
	}

	var delta Delta
	groupIndex := make(map[string]int)
	for _, theme := range current.Themes {
		previousSubthemes, existed := known[theme.Conference.ID]
		if !existed {
			delta.NewConferences = append(delta.NewConferences, theme)
			continue
		}

		var added []conferences.Subtheme
		for _, subtheme := range theme.Subthemes {
			if _, seen := previousSubthemes[subtheme.ID]; !seen {
				added = append(added, subtheme)
			}
		}
		if len(added) == 0 {
			continue
		}

		// Two conferences can share a name; their additions merge under that name.
		name := theme.Conference.Name
		if index, ok := groupIndex[name]; ok {
			delta.NewSubthemes[index].Subthemes = append(delta.NewSubthemes[index].Subthemes, added...)
			continue
		}
		groupIndex[name] = len(delta.NewSubthemes)
		delta.NewSubthemes = append(delta.NewSubthemes, SubthemeGroup{ConferenceName: name, Subthemes: added})
	}
	return delta
}
