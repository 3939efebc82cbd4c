package pipeline

import (
	"regexp"
	"strings"
)

// Post-processing cleans artifacts the models are known to produce: prompt
// echoes during silent stretches, lowercased financial acronyms, and
// speaker tags glued onto the preceding sentence.

var (
	speakerTagRe   = regexp.MustCompile(`(Speaker\s*\d+\s*:)`)
	speakerCaseRe  = regexp.MustCompile(`(?i)speaker\s*(\d+)`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// financialFixes restores the canonical casing of terms the speech model
// tends to lowercase.
var financialFixes = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bebitda\b`), "EBITDA"},
	{regexp.MustCompile(`(?i)\broe\b`), "ROE"},
	{regexp.MustCompile(`(?i)\broa\b`), "ROA"},
	{regexp.MustCompile(`(?i)\broce\b`), "ROCE"},
	{regexp.MustCompile(`(?i)\bcagr\b`), "CAGR"},
	{regexp.MustCompile(`(?i)\bpat\b`), "PAT"},
	{regexp.MustCompile(`(?i)\bpbt\b`), "PBT"},
	{regexp.MustCompile(`(?i)\beps\b`), "EPS"},
	{regexp.MustCompile(`(?i)\bnav\b`), "NAV"},
	{regexp.MustCompile(`(?i)\baum\b`), "AUM"},
	{regexp.MustCompile(`(?i)\bnpa\b`), "NPA"},
	{regexp.MustCompile(`(?i)\byoy\b`), "YoY"},
	{regexp.MustCompile(`(?i)\bqoq\b`), "QoQ"},
	{regexp.MustCompile(`(?i)\bcapex\b`), "Capex"},
	{regexp.MustCompile(`(?i)\bopex\b`), "Opex"},
}

// promptEchoes are fragments of the transcription priming prompt that the
// speech model repeats verbatim over silence. Longest first so the
// punctuated form is removed before its prefix.
var promptEchoes = []string{
	"Lakh, Crore, EBITDA, YoY, QoQ, PAT, Margins, Revenue.",
	"Lakh, Crore, EBITDA, YoY, QoQ, PAT, Margins, Revenue",
}

// PostProcess normalizes the merged transcript text. keywords, when
// non-empty, is the injected keyword list to scrub if the model echoed it.
func PostProcess(text, keywords string) string {
	text = speakerTagRe.ReplaceAllString(text, "\n\n$1")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = speakerCaseRe.ReplaceAllString(text, "Speaker $1")

	for _, fix := range financialFixes {
		text = fix.re.ReplaceAllString(text, fix.replacement)
	}

	for _, echo := range promptEchoes {
		text = strings.ReplaceAll(text, echo, "")
	}

	if keywords != "" {
		text = strings.ReplaceAll(text, keywords+",", "")
		text = strings.ReplaceAll(text, keywords+".", "")
		text = strings.ReplaceAll(text, keywords, "")
	}

	return strings.TrimSpace(text)
}
