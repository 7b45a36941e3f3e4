package scoring_test

import (
	"testing"

	"jobwatch/aggregator-service/internal/scoring"
)

func TestPrefilter_MatchesBlockedKeyword(t *testing.T) {
	p := scoring.NewPrefilter([]string{"recruiter", "sales"})

	cases := []struct {
		title string
		want  string
	}{
		{"Technical Recruiter", "recruiter"},
		{"SALES Executive", "sales"},
		{"Inside Sales — APAC", "sales"},
	}
	for _, c := range cases {
		if got := p.Match(c.title); got != c.want {
			t.Errorf("Match(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestPrefilter_PassesUnblockedTitles(t *testing.T) {
	p := scoring.NewPrefilter(scoring.DefaultBlockedKeywords)

	for _, title := range []string{
		"Quant Developer",
		"Software Engineer, Trading Systems",
		"Graduate Program — Technology",
	} {
		if got := p.Match(title); got != "" {
			t.Errorf("Match(%q) = %q, want no match", title, got)
		}
	}
}

func TestPrefilter_EmptyListMatchesNothing(t *testing.T) {
	p := scoring.NewPrefilter(nil)
	if got := p.Match("Recruiter"); got != "" {
		t.Errorf("empty blocklist matched %q", got)
	}
}

func TestPrefilter_IgnoresEmptyKeywords(t *testing.T) {
	p := scoring.NewPrefilter([]string{"", "audit"})
	if got := p.Match("Quant Developer"); got != "" {
		t.Errorf("empty keyword matched %q", got)
	}
	if got := p.Match("Internal Audit Analyst"); got != "audit" {
		t.Errorf("Match = %q, want %q", got, "audit")
	}
}
