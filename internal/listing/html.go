package listing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"internwatch/internal/domain"
)

// Format selects how the document is read.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatAuto     Format = "auto" // markdown first, html when no markdown table exists
)

// ParseFormat parses text as the given format. An empty format means markdown.
func ParseFormat(format Format, text string) ([]RowResult, error) {
	switch format {
	case "", FormatMarkdown:
		return ParseRows(text)
	case FormatHTML:
		return ParseHTMLRows(text)
	case FormatAuto:
		rows, err := ParseRows(text)
		if errors.Is(err, ErrStructureNotFound) {
			return ParseHTMLRows(text)
		}
		return rows, err
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}
}

// ParseHTML extracts listings from the first <table> whose first header cell
// is "Company". Rows follow the same rules as the markdown table.
func ParseHTML(text string) ([]domain.Listing, error) {
	rows, err := ParseHTMLRows(text)
	if err != nil {
		return nil, err
	}
	return Accepted(rows), nil
}

func ParseHTMLRows(text string) ([]RowResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		first := t.Find("tr").First().ChildrenFiltered("th,td").First()
		if strings.EqualFold(cleanText(first.Text()), headerLabel) {
			table = t
			return false
		}
		return true
	})
	if table == nil {
		return nil, ErrStructureNotFound
	}

	var out []RowResult
	table.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(i int, tr *goquery.Selection) {
		var rc rowCells
		tr.ChildrenFiltered("td,th").Each(func(_ int, td *goquery.Selection) {
			rc.text = append(rc.text, cleanText(td.Text()))

			var hrefs []string
			td.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				if h, ok := a.Attr("href"); ok {
					hrefs = append(hrefs, strings.TrimSpace(h))
				}
			})
			rc.href = append(rc.href, strings.Join(hrefs, " "))
		})

		raw, _ := goquery.OuterHtml(tr)
		l, skip := extract(rc)
		out = append(out, RowResult{Line: i + 1, Raw: raw, Listing: l, Skip: skip})
	})
	return out, nil
}

// cleanText collapses runs of whitespace, non-breaking spaces included.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
