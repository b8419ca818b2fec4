package normalize

import "regexp"

// Rule is one ordered text normalization: everything the pattern matches is
// replaced. Rules keep source-specific boilerplate stripping out of the
// parser itself.
type Rule struct {
	Pattern *regexp.Regexp
	Replace string
}

// DefaultRules strips the letterhead and pagination artifacts the
// legislature's document service injects into extracted text.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: regexp.MustCompile(`(?m)^\s*THE GENERAL COURT OF THE COMMONWEALTH\s*$`), Replace: ""},
		{Pattern: regexp.MustCompile(`(?m)^\s*In the Year .* Twenty.*$`), Replace: ""},
		{Pattern: regexp.MustCompile(`(?m)^\s*Page \d+ of \d+\s*$`), Replace: ""},
		{Pattern: regexp.MustCompile(`(?m)^\s*HOUSE DOCKET, NO\. \d+.*$`), Replace: ""},
		{Pattern: regexp.MustCompile(`(?m)^\s*SENATE DOCKET, NO\. \d+.*$`), Replace: ""},
		{Pattern: regexp.MustCompile(`\r\n?`), Replace: "\n"},
		{Pattern: regexp.MustCompile(`\n{3,}`), Replace: "\n\n"},
		{Pattern: regexp.MustCompile(`[ \t]{2,}`), Replace: " "},
	}
}

// ApplyRules runs every rule in order over the text.
func ApplyRules(text string, rules []Rule) string {
	for _, r := range rules {
		text = r.Pattern.ReplaceAllString(text, r.Replace)
	}
	return text
}
