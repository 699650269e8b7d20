// Package csvimport reads exported vacancy spreadsheets into raw postings.
package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"jobapply-engine/internal/domain"
)

const Platform = "Education Gazette NZ (CSV Import)"

var (
	ErrEmptyInput         = errors.New("csv import: empty input")
	ErrUnrecognizedFormat = errors.New("csv import: unrecognized format")
)

type Layout int

const (
	// LayoutGazette: Title, Employer, Description, Email, Link, Closing.
	LayoutGazette Layout = iota + 1
	// LayoutRecruiter: Hiring Company, Position, Application Link, Email, Phone, Description.
	LayoutRecruiter
)

func (l Layout) String() string {
	switch l {
	case LayoutGazette:
		return "gazette"
	case LayoutRecruiter:
		return "recruiter"
	default:
		return "unknown"
	}
}

// columns maps each logical field to its header name in a layout.
type columns struct {
	title, employer, link, description, email, closing, phone, employment string
}

var layouts = map[Layout]columns{
	LayoutGazette: {
		title: "title", employer: "employer", link: "link", description: "description",
		email: "email", closing: "closing", employment: "employment type",
	},
	LayoutRecruiter: {
		title: "position", employer: "hiring company", link: "application link", description: "description",
		email: "email", phone: "phone", employment: "employment type",
	},
}

// Result is the parsed file. Skipped counts rows without a title or link.
type Result struct {
	Layout   Layout
	Postings []domain.RawPosting
	Skipped  int
}

// Parse probes the header to pick a layout, then converts every row. The delimiter is ';'
// when the header line contains one, else ','. Format errors are returned before any row is read.
func Parse(r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("csv import: read: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return Result{}, ErrEmptyInput
	}

	headerLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		headerLine = data[:i]
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = ','
	if bytes.IndexByte(headerLine, ';') >= 0 {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("csv import: header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	layout := detect(idx)
	if layout == 0 {
		return Result{}, fmt.Errorf("%w: columns %v", ErrUnrecognizedFormat, header)
	}
	cols := layouts[layout]
	res := Result{Layout: layout}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("csv import: row %d: %w", len(res.Postings)+res.Skipped+2, err)
		}
		get := func(col string) string {
			if col == "" {
				return ""
			}
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		title, link := get(cols.title), get(cols.link)
		if title == "" || link == "" {
			res.Skipped++
			continue
		}
		res.Postings = append(res.Postings, domain.RawPosting{
			Title:          title,
			Employer:       get(cols.employer),
			URL:            link,
			Description:    get(cols.description),
			ContactEmail:   domain.NormalizeEmail(get(cols.email)),
			ClosingDate:    get(cols.closing),
			SalaryInfo:     get(cols.employment),
			Location:       domain.DefaultLocation,
			SourcePlatform: Platform,
		})
	}
	return res, nil
}

func detect(idx map[string]int) Layout {
	has := func(cols ...string) bool {
		for _, c := range cols {
			if _, ok := idx[c]; !ok {
				return false
			}
		}
		return true
	}
	switch {
	case has("title", "employer", "link"):
		return LayoutGazette
	case has("position", "hiring company", "application link"):
		return LayoutRecruiter
	}
	return 0
}
