package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/navigation"
)

// RenderConference formats the announcement of a new conference.
func RenderConference(theme conferences.Theme) string {
	var text strings.Builder
	fmt.Fprintf(&text, "New conference added: <b>%s</b>!\n%s\n",
		html.EscapeString(theme.Conference.Name),
		html.EscapeString(theme.Conference.Description.Or(navigation.NoDescriptionText)))
	if len(theme.Subthemes) > 0 {
		text.WriteString("Topics:")
		for _, subtheme := range theme.Subthemes {
			fmt.Fprintf(&text, "\n - <b>%s</b>", html.EscapeString(subtheme.Name))
		}
	}
	return text.String()
}

// RenderSubtheme formats the announcement of a new subtheme of an existing conference.
func RenderSubtheme(conferenceName string, subtheme conferences.Subtheme) string {
	return fmt.Sprintf("New topic <b>%s</b> added to conference <b>%s</b>!\n%s",
		html.EscapeString(subtheme.Name),
		html.EscapeString(conferenceName),
		html.EscapeString(subtheme.Description.Or(navigation.NoDescriptionText)))
}
