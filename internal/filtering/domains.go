package filtering

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/listings"
)

// domainKeywords maps a target domain to the phrases that mark a posting as
// belonging to it. Domains not listed here match on their own name.
var domainKeywords = map[string][]string{
	"software engineering": {"software engineer", "software developer", "backend", "frontend", "full stack", "fullstack", "developer", "programmer", "golang", "java", "python", "javascript", "typescript", "c++", "c#"},
	"data science":         {"data scientist", "data science", "machine learning", "deep learning", "ml", "ai", "statistics", "statistical", "nlp", "computer vision"},
	"data engineering":     {"data engineer", "etl", "data pipeline", "data warehouse", "spark", "airflow", "kafka", "bigquery", "snowflake", "dbt"},
	"devops":               {"devops", "sre", "site reliability", "platform engineer", "kubernetes", "terraform", "ci/cd", "infrastructure", "cloud engineer", "aws", "gcp", "azure"},
	"cybersecurity":        {"security", "cybersecurity", "penetration", "soc", "threat", "vulnerability", "infosec", "iam"},
	"product management":   {"product manager", "product owner", "product management", "roadmap"},
	"design":               {"designer", "ux", "ui", "user experience", "figma", "product design"},
	"finance":              {"finance", "financial", "accounting", "accountant", "audit", "investment", "banking", "treasury", "analyst"},
	"marketing":            {"marketing", "seo", "sem", "content", "brand", "growth", "campaign", "social media"},
	"sales":                {"sales", "account executive", "business development", "account manager", "presales"},
	"healthcare":           {"healthcare", "clinical", "nurse", "medical", "hospital", "pharmacy", "patient"},
	"education":            {"teacher", "education", "tutor", "lecturer", "curriculum", "teaching"},
}

// Domains lists the domains with a built in keyword list.
func Domains() []string {
	out := make([]string, 0, len(domainKeywords))
	for d := range domainKeywords {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

type domainsFilter struct {
	toggle
	domains  []string
	keywords []string
}

// NewDomains creates a filter that keeps postings mentioning any keyword of the
// target domains in their title, skills or description.
func NewDomains() Filter {
	return &domainsFilter{}
}

func (f *domainsFilter) Name() string { return "domains" }

func (f *domainsFilter) Validate(cfg *Config) error {
	f.domains, f.keywords = nil, nil
	if cfg == nil {
		return nil
	}

	seen := map[string]struct{}{}
	for _, d := range cfg.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		f.domains = append(f.domains, d)

		keywords, ok := domainKeywords[d]
		if !ok {
			keywords = []string{d}
		}
		for _, k := range keywords {
			k = normalizeText(k)
			if _, dup := seen[k]; dup || k == "" {
				continue
			}
			seen[k] = struct{}{}
			f.keywords = append(f.keywords, k)
		}
	}
	return nil
}

func (f *domainsFilter) Apply(_ context.Context, deps Deps, p *listings.Postings) (*listings.Postings, Step, error) {
	initial := p.Len()
	if len(f.keywords) == 0 {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	removed := p.Retain(func(posting *listings.Posting) bool {
		return MatchesDomain(posting, f.keywords)
	})
	if len(removed) > 0 {
		deps.logger().Info("excluding postings outside target domains",
			zap.Strings("domains", f.domains),
			zap.Int("excluded", len(removed)),
			zap.Int("postings_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *domainsFilter) Status() Status {
	details := map[string]string{}
	if len(f.domains) > 0 {
		details["domains"] = strings.Join(f.domains, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

// MatchesDomain reports whether any normalized keyword appears as whole words
// in the posting title, skills or description.
func MatchesDomain(posting *listings.Posting, keywords []string) bool {
	text := normalizeText(posting.Title + " " + strings.Join(posting.Skills, " ") + " " + posting.Description)
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// normalizeText lowercases s, turns separators into single spaces and pads it
// with spaces so whole-word checks are plain substring checks.
func normalizeText(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune("+#/", r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, s)

	fields := strings.Fields(mapped)
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}
