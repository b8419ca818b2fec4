package normalize

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/civicsignal/billwatch/internal/bill"
)

// MaxFullTextChars bounds extracted bill text so downstream prompts stay
// within the engine's input limits.
const MaxFullTextChars = 40000

const (
	fallbackTitle  = "Unknown Title"
	fallbackStatus = "Status unknown"
)

// ParseError means the source page structure was unrecognized for this
// candidate. It is unrecoverable within a run.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse error: missing %s", e.Field)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Selectors locate bill fields on the tracking site's detail page.
type Selectors struct {
	Identifier string
	Title      string
	Status     string
	ActionRows string
}

// DefaultSelectors matches the legislature's current page layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Identifier: "#bill-header .bill-number",
		Title:      "#bill-header .bill-title",
		Status:     "#bill-status .current-status",
		ActionRows: "table.bill-actions tbody tr",
	}
}

type Parser struct {
	sel   Selectors
	rules []Rule
}

func NewParser(sel Selectors, rules []Rule) *Parser {
	return &Parser{sel: sel, rules: rules}
}

// Parse turns a raw bill page into a Snapshot. A missing identifier is a hard
// ParseError: an identifier-less snapshot must not proceed as "unknown".
// Title and status are non-identifying, so they degrade to fixed fallbacks.
func (p *Parser) Parse(pageHTML []byte, sourceURL string) (bill.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageHTML))
	if err != nil {
		return bill.Snapshot{}, &ParseError{Field: "document", Err: err}
	}

	identifier := strings.TrimSpace(doc.Find(p.sel.Identifier).First().Text())
	if identifier == "" {
		return bill.Snapshot{}, &ParseError{Field: "identifier"}
	}

	title := strings.TrimSpace(doc.Find(p.sel.Title).First().Text())
	if title == "" {
		title = fallbackTitle
	}
	status := strings.TrimSpace(doc.Find(p.sel.Status).First().Text())
	if status == "" {
		status = fallbackStatus
	}

	snap := bill.Snapshot{
		Identifier: identifier,
		Title:      title,
		Status:     status,
		SourceURL:  sourceURL,
	}

	doc.Find(p.sel.ActionRows).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		date := strings.TrimSpace(cells.Eq(0).Text())
		branch := strings.TrimSpace(cells.Eq(1).Text())
		text := strings.TrimSpace(cells.Eq(2).Text())
		// Rows missing a date or action text are source noise, not errors.
		if date == "" || text == "" {
			return
		}
		snap.Actions = append(snap.Actions, bill.Action{Date: date, Branch: branch, Text: text})
	})

	return snap, nil
}

// AttachFullText cleans and bounds raw document text, then attaches it to the
// snapshot. Empty text is normal; downstream stages fall back to status text.
func (p *Parser) AttachFullText(snap *bill.Snapshot, raw string) {
	text := ApplyRules(raw, p.rules)
	if len(text) > MaxFullTextChars {
		// Back up to a rune boundary so the cut never leaves invalid UTF-8.
		cut := MaxFullTextChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		snap.Truncated = true
	}
	snap.FullText = strings.TrimSpace(text)
}
