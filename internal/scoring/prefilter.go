// Package scoring implements match scoring of postings against the user
// profile: a zero-cost keyword pre-filter, batched calls to an external
// scoring capability, and validation with a batch-to-individual fallback.
package scoring

import "strings"

// DefaultBlockedKeywords are function/seniority terms that disqualify a
// posting by title alone, so it never reaches the scoring capability.
var DefaultBlockedKeywords = []string{
	"payroll", "procurement", "recruiter", "recruiting",
	"talent acquisition", "human resources",
	"office manager", "executive assistant", "administrative",
	"accountant", "audit", "legal counsel",
	"marketing", "sales",
	"graphic design", "content writer", "copywriter",
	"interior design", "facilities",
}

// Prefilter matches job titles against a blocked-keyword list.
type Prefilter struct {
	keywords []string
}

// NewPrefilter builds a Prefilter. An empty list matches nothing.
func NewPrefilter(keywords []string) *Prefilter {
	return &Prefilter{keywords: keywords}
}

// Match returns the first blocked keyword appearing (case-insensitive)
// anywhere in the title, or "" when the title passes.
func (p *Prefilter) Match(title string) string {
	if len(p.keywords) == 0 {
		return ""
	}
	lowered := strings.ToLower(title)
	for _, kw := range p.keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}
