package listing

import (
	"errors"
	"reflect"
	"testing"

	"internwatch/internal/domain"
)

const readme = `# Summer 2026 Tech Internships

Use this repo to share and keep track of internships.

| Company | Role | Location | Application/Link | Date Posted |
| ------- | ---- | -------- | ---------------- | ----------- |
| Acme Corp | SWE Intern | USA | [Apply](https://acme.example/jobs/1) | Sep 01 |
| ↳ | Data Intern | NYC | [Apply](https://acme.example/jobs/2) | Sep 02 |
| ↳Beta LLC | PM Intern | Remote | 🔒 | Sep 03 |
| Company | Role | Location | Link | Date |
| too | few |

| Gamma | ML Intern | SF | [a](https://g.example/1) [b](https://g.example/2) | Sep 04 |
| ↳ Delta | | Austin, TX | <https://delta.example/careers> | Sep 05 |

## Footer

Rows after the first blank line are outside the table.
`

func TestParseRowsOutcomes(t *testing.T) {
	t.Parallel()

	rows, err := ParseRows(readme)
	if err != nil {
		t.Fatalf("ParseRows error: %v", err)
	}

	want := []struct {
		line int
		skip SkipReason
	}{
		{7, SkipNone},
		{8, SkipNone},
		{9, SkipNoLink},
		{10, SkipHeaderEcho},
		{11, SkipTooFewCells},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i, w := range want {
		if rows[i].Line != w.line {
			t.Errorf("row %d: Line = %d, want %d", i, rows[i].Line, w.line)
		}
		if rows[i].Skip != w.skip {
			t.Errorf("row %d: Skip = %q, want %q", i, rows[i].Skip, w.skip)
		}
		if !rows[i].OK() && rows[i].Listing != (domain.Listing{}) {
			t.Errorf("row %d: skipped row carries a listing: %+v", i, rows[i].Listing)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse(readme)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []domain.Listing{
		{Company: "Acme Corp", Role: "SWE Intern", Link: "https://acme.example/jobs/1"},
		{Company: "↳", Role: "Data Intern", Link: "https://acme.example/jobs/2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %+v, want %+v", got, want)
	}
}

func TestParseRowRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  string
		want []domain.Listing
	}{
		{
			name: "marker stripped",
			row:  "| ↳Acme Corp | SWE Intern | USA | [Apply](https://acme.example/jobs/1) | Sep 01 |",
			want: []domain.Listing{{Company: "Acme Corp", Role: "SWE Intern", Link: "https://acme.example/jobs/1"}},
		},
		{
			name: "marker and space stripped",
			row:  "| ↳ Acme Corp | SWE Intern | USA | [Apply](https://acme.example/jobs/1) | Sep 01 |",
			want: []domain.Listing{{Company: "Acme Corp", Role: "SWE Intern", Link: "https://acme.example/jobs/1"}},
		},
		{
			name: "empty role kept",
			row:  "| Delta | | Austin | <https://delta.example/careers> | Sep 05 |",
			want: []domain.Listing{{Company: "Delta", Role: "", Link: "https://delta.example/careers"}},
		},
		{
			name: "first of several urls",
			row:  "| Gamma | ML Intern | SF | [a](https://g.example/1) [b](https://g.example/2) | Sep 04 |",
			want: []domain.Listing{{Company: "Gamma", Role: "ML Intern", Link: "https://g.example/1"}},
		},
		{
			name: "url in other cell is ignored",
			row:  "| [Eps](https://eps.example) | Intern | SF | closed | Sep 04 |",
			want: []domain.Listing{},
		},
		{
			name: "four cells",
			row:  "| ↳Acme Corp | SWE Intern | USA | [Apply](https://acme.example/jobs/1) |",
			want: []domain.Listing{},
		},
		{
			name: "header echo any case",
			row:  "| COMPANY | Role | Location | https://x.example | Date |",
			want: []domain.Listing{},
		},
		{
			name: "http scheme",
			row:  "| Zeta | Intern | LA | [x](http://zeta.example/a?b=1) | Sep 06 |",
			want: []domain.Listing{{Company: "Zeta", Role: "Intern", Link: "http://zeta.example/a?b=1"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := "| Company | Role | Location | Application/Link | Date Posted |\n" +
				"|---|---|:---:|---|---|\n" + tt.row + "\n\n"
			got, err := Parse(doc)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseDuplicatesKept(t *testing.T) {
	t.Parallel()

	row := "| Acme | Intern | USA | https://acme.example/1 | Sep 01 |\n"
	doc := "| Company | Role | Location | Link | Date |\n|---|---|---|---|---|\n" + row + row + "\n"
	got, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
}

func TestParseCRLF(t *testing.T) {
	t.Parallel()

	doc := "| Company | Role | Location | Link | Date |\r\n|---|---|---|---|---|\r\n" +
		"| Acme | Intern | USA | https://acme.example/1 | Sep 01 |\r\n\r\n"
	got, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 1 || got[0].Link != "https://acme.example/1" {
		t.Fatalf("Parse = %+v", got)
	}
}

func TestParseStructureNotFound(t *testing.T) {
	t.Parallel()

	docs := map[string]string{
		"empty":        "",
		"no table":     "# README\n\nnothing to see here\n",
		"no separator": "| Company | Role | Location | Link | Date |\n| Acme | Intern | USA | https://a.example | x |\n\n",
		"no blank end": "| Company | Role | Location | Link | Date |\n|---|---|---|---|---|\n| Acme | Intern | USA | https://a.example | x |",
		"other header": "| Employer | Role | Location | Link | Date |\n|---|---|---|---|---|\n| Acme | Intern | USA | https://a.example | x |\n\n",
	}
	for name, doc := range docs {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(doc)
			if !errors.Is(err, ErrStructureNotFound) {
				t.Fatalf("err = %v, want ErrStructureNotFound", err)
			}
			if got != nil {
				t.Fatalf("got partial result %+v", got)
			}
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Parse(readme)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse(readme)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two parses differ: %+v vs %+v", a, b)
	}
}

func TestParseThenDiff(t *testing.T) {
	t.Parallel()

	doc := "| Company | Role | Location | Application/Link | Date Posted |\n" +
		"| --- | --- | --- | --- | --- |\n" +
		"| ↳Acme Corp | SWE Intern | USA | [Apply](https://acme.example/jobs/1) | Sep 01 |\n\n"

	first, err := Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	fresh := Diff(first, nil)
	want := []domain.Listing{{Company: "Acme Corp", Role: "SWE Intern", Link: "https://acme.example/jobs/1"}}
	if !reflect.DeepEqual(fresh, want) {
		t.Fatalf("first run = %+v, want %+v", fresh, want)
	}

	second, err := Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	if again := Diff(second, first); len(again) != 0 {
		t.Fatalf("second run = %+v, want none", again)
	}
}
