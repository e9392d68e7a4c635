// Package listing turns the watched README into listings and works out which
// of them are new. Nothing here does I/O.
package listing

import (
	"errors"
	"regexp"
	"strings"

	"internwatch/internal/domain"
)

// ErrStructureNotFound means the document has no recognizable listings
// table. The upstream layout changed and nothing downstream can be trusted.
var ErrStructureNotFound = errors.New("listings table not found in document")

// Positions of the columns in the upstream table:
// Company | Role | Location | Application/Link | Date Posted
const (
	colCompany = 0
	colRole    = 1
	colLink    = 3
	minCells   = 5
)

const (
	headerLabel        = "company"
	continuationMarker = "↳" // "same company as the row above"
)

var (
	// header row, separator row, then the body up to the first blank line
	tableRe = regexp.MustCompile(`(?ms)^\| *Company *\|[^\n]*\n\|[-:| ]+\|\n(.*?)\n\n`)
	urlRe   = regexp.MustCompile(`https?://[^\s)>\]]+`)
)

// SkipReason says why a row produced no listing. The zero value means the
// row was accepted.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipTooFewCells SkipReason = "too_few_cells"
	SkipHeaderEcho  SkipReason = "header_echo"
	SkipNoLink      SkipReason = "no_link"
)

// RowResult is the outcome of one row candidate.
type RowResult struct {
	Line    int    // 1-based line in the document (markdown) or row index (html)
	Raw     string // original row text
	Listing domain.Listing
	Skip    SkipReason
}

func (r RowResult) OK() bool { return r.Skip == SkipNone }

// Parse extracts every listing from a Markdown document, in document order.
// Malformed rows are dropped; only a missing table is an error.
func Parse(text string) ([]domain.Listing, error) {
	rows, err := ParseRows(text)
	if err != nil {
		return nil, err
	}
	return Accepted(rows), nil
}

// ParseRows is Parse without the filtering step: one RowResult per non-blank
// body line, skipped rows included.
func ParseRows(text string) ([]RowResult, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	m := tableRe.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, ErrStructureNotFound
	}
	bodyStart, bodyEnd := m[2], m[3]
	line := strings.Count(text[:bodyStart], "\n") + 1

	var out []RowResult
	for _, raw := range strings.Split(text[bodyStart:bodyEnd], "\n") {
		if strings.TrimSpace(raw) != "" {
			l, skip := extract(rowCells{text: splitCells(raw)})
			out = append(out, RowResult{Line: line, Raw: raw, Listing: l, Skip: skip})
		}
		line++
	}
	return out, nil
}

// Accepted keeps the listings of the rows that were not skipped.
func Accepted(rows []RowResult) []domain.Listing {
	out := make([]domain.Listing, 0, len(rows))
	for _, r := range rows {
		if r.OK() {
			out = append(out, r.Listing)
		}
	}
	return out
}

// splitCells drops the outer pipes and splits on the rest. Empty cells are
// kept so positions stay stable.
func splitCells(raw string) []string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "|")
	s = strings.TrimRight(s, "|")

	cells := strings.Split(s, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// rowCells holds the cell texts of one row. href, when set, has the anchor
// targets found in each cell (space separated) and is searched before the
// visible text.
type rowCells struct {
	text []string
	href []string
}

func (rc rowCells) linkSource() string {
	s := rc.text[colLink]
	if colLink < len(rc.href) && rc.href[colLink] != "" {
		s = rc.href[colLink] + " " + s
	}
	return s
}

func extract(rc rowCells) (domain.Listing, SkipReason) {
	cells := rc.text
	if len(cells) < minCells {
		return domain.Listing{}, SkipTooFewCells
	}
	if strings.EqualFold(cells[colCompany], headerLabel) {
		return domain.Listing{}, SkipHeaderEcho
	}

	link := urlRe.FindString(rc.linkSource())
	if link == "" {
		return domain.Listing{}, SkipNoLink
	}

	return domain.Listing{
		Company: companyName(cells[colCompany]),
		Role:    cells[colRole],
		Link:    link,
	}, SkipNone
}

// companyName strips the continuation marker. A cell holding nothing but the
// marker keeps its original value.
func companyName(cell string) string {
	name := strings.TrimSpace(strings.TrimLeft(cell, continuationMarker))
	if name == "" {
		return strings.TrimSpace(cell)
	}
	return name
}
