package parse

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// maxSnippetLen bounds the diagnostic text kept on unclassified pages.
const maxSnippetLen = 240

// Status is the availability classification of a monitored beta.
//
// Status is a closed set: [StatusOpen], [StatusFull], [StatusClosed],
// [StatusUnknown], and [StatusError]. Using a string type keeps JSON
// serialization and log output human-readable while the constants provide
// type safety at consumption sites.
type Status string

const (
	// StatusOpen indicates the beta is accepting new testers.
	StatusOpen Status = "open"

	// StatusFull indicates the beta has reached its tester limit.
	StatusFull Status = "full"

	// StatusClosed indicates the beta is not accepting new testers.
	StatusClosed Status = "closed"

	// StatusUnknown indicates the page was fetched but no phrase rule matched.
	StatusUnknown Status = "unknown"

	// StatusError indicates the check failed (HTTP error or network failure).
	StatusError Status = "error"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Rule maps a lowercase phrase to the status it signals.
//
// Rules are matched in order against normalized page text; the first match
// wins. Phrases must be lowercase since matching happens after the page text
// is lowercased.
type Rule struct {
	Status Status
	Phrase string
}

// DefaultRules is the phrase table applied by [NewParser] when no custom
// rules are given.
//
// Open phrases come first: an open signal must win over full/closed phrasing
// that can appear elsewhere on the same page. New phrases are additive
// changes; append to the appropriate group and cover them with a test.
var DefaultRules = []Rule{
	{StatusOpen, "join the beta"},
	{StatusOpen, "start testing"},
	{StatusFull, "this beta is full"},
	{StatusFull, "beta is full"},
	{StatusClosed, "no longer accepting testers"},
	{StatusClosed, "not accepting any new testers"},
	{StatusClosed, "this beta isn't accepting"},
}

// titlePattern extracts the app name from the page title,
// e.g. "Join the Procreate beta - TestFlight - Apple".
var titlePattern = regexp.MustCompile(`Join the (.+) beta - TestFlight`)

// Result holds the classification of one fetched page.
type Result struct {
	// Status is the determined availability classification.
	Status Status

	// DisplayName is the app name extracted from the page title, if any.
	DisplayName string

	// Snippet is bounded diagnostic text from the page, retained for
	// unclassified pages and useful when a new phrase needs to be added
	// to the rule table.
	Snippet string

	// ErrorDetail describes why Status is [StatusError]. Empty otherwise.
	ErrorDetail string
}

// Parser classifies page content using an ordered phrase rule table.
//
// The zero value is not usable; construct with [NewParser]. A Parser is
// immutable after construction and safe for concurrent use.
type Parser struct {
	rules []Rule
}

// NewParser creates a [Parser] with the given rules, or [DefaultRules]
// when rules is nil.
func NewParser(rules []Rule) *Parser {
	if rules == nil {
		rules = DefaultRules
	}
	return &Parser{rules: rules}
}

// Page classifies a fetched page body given its HTTP status code.
//
// Non-200 status codes map directly to [StatusError] without phrase
// matching: 404 means the beta page does not exist, 5xx indicates an
// upstream problem. For 200 responses the beta-status element text is
// preferred; when the element is absent the whole page text is matched.
func (p *Parser) Page(body []byte, httpStatus int) Result {
	if httpStatus != http.StatusOK {
		return Result{
			Status:      StatusError,
			ErrorDetail: httpErrorDetail(httpStatus),
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// fall back to raw text matching on malformed HTML
		return p.classify(normalize(string(body)), "")
	}

	displayName := extractDisplayName(doc)

	statusText := normalize(doc.Find(".beta-status span").First().Text())
	if statusText != "" {
		return p.classify(statusText, displayName)
	}
	return p.classify(normalize(doc.Text()), displayName)
}

// classify applies the rule table in order against normalized text.
func (p *Parser) classify(text, displayName string) Result {
	for _, rule := range p.rules {
		if strings.Contains(text, rule.Phrase) {
			return Result{
				Status:      rule.Status,
				DisplayName: displayName,
				Snippet:     truncate(text, maxSnippetLen),
			}
		}
	}
	return Result{
		Status:      StatusUnknown,
		DisplayName: displayName,
		Snippet:     truncate(text, maxSnippetLen),
	}
}

// extractDisplayName pulls the app name out of the page title, if present.
func extractDisplayName(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if match := titlePattern.FindStringSubmatch(title); match != nil {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// httpErrorDetail maps a non-200 status code to an error description.
func httpErrorDetail(code int) string {
	switch {
	case code == http.StatusNotFound:
		return "not found"
	case code >= 500:
		return fmt.Sprintf("upstream error (HTTP %d)", code)
	default:
		return fmt.Sprintf("unexpected status (HTTP %d)", code)
	}
}

// normalize lowercases text and collapses all whitespace runs to single
// spaces so phrase rules match regardless of page formatting.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// truncate bounds s to at most max bytes for diagnostic snippets,
// backing up to a rune boundary so multi-byte characters stay intact.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
