package notify

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"internwatch/internal/domain"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

var htmlTmpl = template.Must(template.New("email").Parse(
	`<h2>🚀 New internship listings</h2><ul>
{{- range .Listings}}
<li><b>{{.Company}}</b> — {{.Role}} — <a href="{{.Link}}">Apply</a></li>
{{- end}}
</ul>
{{- if .SourceURL}}
<p style="font-size:smaller">Source: <a href="{{.SourceURL}}">GitHub list</a></p>
{{- end}}
`))

func Subject(n int) string {
	return fmt.Sprintf("[Internship Alert] %d new listing(s)", n)
}

// Render builds the subject, plain-text and HTML bodies. sourceURL is linked
// in the HTML footer when set.
func Render(listings []domain.Listing, sourceURL string) (Message, error) {
	var text strings.Builder
	text.WriteString("New internships:\n\n")
	for i, l := range listings {
		if i > 0 {
			text.WriteString("\n")
		}
		fmt.Fprintf(&text, "- %s — %s (%s)", l.Company, l.Role, l.Link)
	}

	var buf bytes.Buffer
	err := htmlTmpl.Execute(&buf, struct {
		Listings  []domain.Listing
		SourceURL string
	}{listings, sourceURL})
	if err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}

	return Message{
		Subject: Subject(len(listings)),
		Text:    text.String(),
		HTML:    buf.String(),
	}, nil
}

// telegramLimit is the Bot API cap on message text length.
const telegramLimit = 4096

const (
	maxLineBytes   = telegramLimit - 256 // leaves room for the header
	maxCompanyRune = 100
	maxRoleRune    = 300
)

// RenderChunks renders Telegram HTML (which has no lists) and splits it
// into messages under the API limit. A listing is never split.
func RenderChunks(listings []domain.Listing) []string {
	header := "<b>" + html.EscapeString(Subject(len(listings))) + "</b>\n"

	var out []string
	cur := header
	for _, l := range listings {
		line := chunkLine(l)
		if len(cur)+len(line) > telegramLimit && cur != header {
			out = append(out, cur)
			cur = header
		}
		cur += line
	}
	return append(out, cur)
}

// chunkLine renders one listing in at most maxLineBytes. Long names are
// cut first; a link that still does not fit is left out.
func chunkLine(l domain.Listing) string {
	const format = "\n• <b>%s</b> — %s — <a href=\"%s\">Apply</a>"
	esc := html.EscapeString

	line := fmt.Sprintf(format, esc(l.Company), esc(l.Role), esc(l.Link))
	if len(line) <= maxLineBytes {
		return line
	}
	company := esc(truncateRunes(l.Company, maxCompanyRune))
	role := esc(truncateRunes(l.Role, maxRoleRune))
	if line = fmt.Sprintf(format, company, role, esc(l.Link)); len(line) <= maxLineBytes {
		return line
	}
	return fmt.Sprintf("\n• <b>%s</b> — %s — (link too long to send)", company, role)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
