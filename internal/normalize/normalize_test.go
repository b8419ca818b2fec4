package normalize

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/civicsignal/billwatch/internal/bill"
)

const billPage = `<html><body>
<div id="bill-header">
  <span class="bill-number"> H1 </span>
  <h1 class="bill-title">An Act relative to municipal finance</h1>
</div>
<div id="bill-status"><span class="current-status">Referred to the committee on Municipalities</span></div>
<table class="bill-actions"><tbody>
  <tr><td>1/1/2025</td><td>House</td><td>Referred to the committee on Municipalities</td></tr>
  <tr><td>2/3/2025</td><td>Senate</td><td>Reported favorably</td></tr>
  <tr><td></td><td>House</td><td>Row without a date is noise</td></tr>
  <tr><td>3/3/2025</td><td>House</td><td></td></tr>
  <tr><td>only-two-cells</td><td>House</td></tr>
</tbody></table>
</body></html>`

func TestParseBillPage(t *testing.T) {
	p := NewParser(DefaultSelectors(), DefaultRules())
	snap, err := p.Parse([]byte(billPage), "https://example.test/H1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if snap.Identifier != "H1" {
		t.Fatalf("identifier = %q", snap.Identifier)
	}
	if snap.Title != "An Act relative to municipal finance" {
		t.Fatalf("title = %q", snap.Title)
	}
	if snap.Status != "Referred to the committee on Municipalities" {
		t.Fatalf("status = %q", snap.Status)
	}
	if snap.SourceURL != "https://example.test/H1" {
		t.Fatalf("source url = %q", snap.SourceURL)
	}
	if len(snap.Actions) != 2 {
		t.Fatalf("expected 2 actions after dropping malformed rows, got %d", len(snap.Actions))
	}
	if snap.Actions[1].Date != "2/3/2025" || snap.Actions[1].Branch != "Senate" {
		t.Fatalf("unexpected second action %+v", snap.Actions[1])
	}
}

func TestParseMissingIdentifier(t *testing.T) {
	p := NewParser(DefaultSelectors(), nil)
	_, err := p.Parse([]byte(`<html><body><div id="bill-header"></div></body></html>`), "")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Field != "identifier" {
		t.Fatalf("expected identifier field, got %q", pe.Field)
	}
}

func TestParseFallbacks(t *testing.T) {
	p := NewParser(DefaultSelectors(), nil)
	snap, err := p.Parse([]byte(`<html><body>
<div id="bill-header"><span class="bill-number">S45</span></div>
</body></html>`), "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if snap.Title != fallbackTitle {
		t.Fatalf("title = %q", snap.Title)
	}
	if snap.Status != fallbackStatus {
		t.Fatalf("status = %q", snap.Status)
	}
}

func TestApplyRulesStripsBoilerplate(t *testing.T) {
	raw := "HOUSE DOCKET, NO. 123, filed\r\nTHE GENERAL COURT OF THE COMMONWEALTH\r\nSection 1. Cities   and towns\n\n\n\nmay adopt.\nPage 1 of 2\n"
	out := ApplyRules(raw, DefaultRules())
	if strings.Contains(out, "GENERAL COURT") || strings.Contains(out, "DOCKET") || strings.Contains(out, "Page 1") {
		t.Fatalf("boilerplate survived: %q", out)
	}
	if strings.Contains(out, "\r") {
		t.Fatal("CRLF not normalized")
	}
	if strings.Contains(out, "\n\n\n") {
		t.Fatal("blank runs not collapsed")
	}
	if strings.Contains(out, "Cities   and") {
		t.Fatal("interior whitespace not collapsed")
	}
}

func TestAttachFullTextTruncates(t *testing.T) {
	p := NewParser(DefaultSelectors(), nil)

	snap := bill.Snapshot{Identifier: "H1"}
	p.AttachFullText(&snap, "Section 1. Short text.")
	if snap.Truncated {
		t.Fatal("short text must not be truncated")
	}
	if snap.FullText != "Section 1. Short text." {
		t.Fatalf("full text = %q", snap.FullText)
	}

	p.AttachFullText(&snap, strings.Repeat("a", MaxFullTextChars+100))
	if !snap.Truncated {
		t.Fatal("oversized text must mark the snapshot truncated")
	}
	if len(snap.FullText) > MaxFullTextChars {
		t.Fatalf("full text length %d exceeds bound", len(snap.FullText))
	}
}

func TestAttachFullTextTruncatesOnRuneBoundary(t *testing.T) {
	p := NewParser(DefaultSelectors(), nil)

	// Position a multi-byte rune so a byte-wise cut would split it.
	raw := strings.Repeat("a", MaxFullTextChars-1) + strings.Repeat("§", 50)
	snap := bill.Snapshot{Identifier: "H1"}
	p.AttachFullText(&snap, raw)

	if !snap.Truncated {
		t.Fatal("oversized text must mark the snapshot truncated")
	}
	if len(snap.FullText) > MaxFullTextChars {
		t.Fatalf("full text length %d exceeds bound", len(snap.FullText))
	}
	if !utf8.ValidString(snap.FullText) {
		t.Fatal("truncation left invalid UTF-8")
	}
}
