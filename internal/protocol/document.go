// Package protocol builds the meeting protocol handed out by the API.
package protocol

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/users"
)

const (
	Title              = "PROTOCOL"
	AttendeesHeading   = "The following persons attend the meeting:"
	TopicsHeading      = "Topics for discussion:"
	MissingDescription = "No description"
	SignatureLine      = "_________________/_________________"
	SignatureDate      = "Date: _______________"
	positionLabel      = "Position:"
	nameLabel          = "Full name:"
	dateLayout         = "02-01-2006"
	fileDateLayout     = "20060102"
)

// Options tunes Build.
type Options struct {
	// Date is the meeting date; zero means now.
	Date time.Time
	// Roles maps role ids to display names.
	Roles map[int64]string
}

// Attendee is one participant line.
type Attendee struct {
	Name     string
	Position string
}

// Topic is one numbered discussion item.
type Topic struct {
	Title       string
	Description string
}

// Document is the content of a protocol, independent of its file format.
type Document struct {
	ConferenceID conferences.ConferenceID
	Conference   string
	Date         time.Time
	Attendees    []Attendee
	Topics       []Topic
}

// Build assembles the protocol of one conference. Attendees are the distinct
// users attached to any subtheme, in order of first appearance.
func Build(details conferences.ConferenceDetails, opts Options) Document {
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	doc := Document{
		ConferenceID: details.Conference.ID,
		Conference:   details.Conference.Name,
		Date:         date,
	}

	seen := make(map[int64]struct{})
	for _, subtheme := range details.Subthemes {
		doc.Topics = append(doc.Topics, Topic{
			Title:       subtheme.Name,
			Description: subtheme.Description.Or(MissingDescription),
		})
		for _, user := range subtheme.Users {
			if _, dup := seen[user.ID]; dup {
				continue
			}
			seen[user.ID] = struct{}{}
			doc.Attendees = append(doc.Attendees, Attendee{
				Name:     ShortName(user),
				Position: opts.Roles[user.RoleID],
			})
		}
	}
	return doc
}

// ShortName renders "Surname N. P." with initials of the name and patronymic.
func ShortName(user users.User) string {
	parts := []string{strings.TrimSpace(user.Surname)}
	if initial := initialOf(user.Name); initial != "" {
		parts = append(parts, initial)
	}
	if user.Patronymic != nil {
		if initial := initialOf(*user.Patronymic); initial != "" {
			parts = append(parts, initial)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func initialOf(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(value)
	return string(r) + "."
}

// DateLine is the subtitle under the title.
func (d Document) DateLine() string {
	return "Document of " + d.Date.Format(dateLayout)
}

// AttendeeLines renders the attendee list.
func (d Document) AttendeeLines() []string {
	lines := make([]string, 0, len(d.Attendees))
	for _, attendee := range d.Attendees {
		if attendee.Position == "" {
			lines = append(lines, fmt.Sprintf("- %s;", attendee.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s);", attendee.Name, attendee.Position))
	}
	return lines
}

// TopicLines renders the numbered topics.
func (d Document) TopicLines() []string {
	lines := make([]string, 0, len(d.Topics))
	for i, topic := range d.Topics {
		lines = append(lines, fmt.Sprintf("%d. %s - %s;", i+1, topic.Title, topic.Description))
	}
	return lines
}

// Filename is the suggested attachment name.
func (d Document) Filename() string {
	return fmt.Sprintf("protocol_%d_%s.docx", d.ConferenceID, d.Date.Format(fileDateLayout))
}
