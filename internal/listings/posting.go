package listings

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

const (
	PostingIDField      = "ID"
	PostingCompanyField = "Company"
)

type Salary struct {
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Period   string  `json:"period,omitempty"`
	Text     string  `json:"text,omitempty"`
}

// Known reports whether the posting advertised a numeric salary.
func (s Salary) Known() bool {
	return s.Min > 0 || s.Max > 0
}

// Upper returns the best advertised figure.
func (s Salary) Upper() float64 {
	return max(s.Min, s.Max)
}

// Posting is one job listing as decoded from the provider.
type Posting struct {
	ID          string   `json:"id"`
	SourceID    string   `json:"source_id,omitempty"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Skills      []string `json:"skills,omitempty"`
	URL         string   `json:"url"`
	Salary      Salary   `json:"salary,omitempty"`
	JobType     string   `json:"job_type,omitempty"`
	PostedAt    string   `json:"posted_at,omitempty"`
	Remote      bool     `json:"remote,omitempty"`
	Benefits    []string `json:"benefits,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
}

// EmbeddingText is the text a posting is embedded as.
func (p *Posting) EmbeddingText() string {
	return strings.TrimSpace(p.Title + " " + p.Company + " " + p.Description)
}

// GetStringField returns the field used by Exclude, or "" for unknown names.
func (p *Posting) GetStringField(name string) string {
	switch name {
	case PostingIDField:
		return p.ID
	case PostingCompanyField:
		return p.Company
	default:
		return ""
	}
}

// Postings is an ordered list of postings.
type Postings struct {
	Items []*Posting
}

func (p *Postings) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Clone copies the list so callers can filter it without touching cached data.
// Postings themselves are shared.
func (p *Postings) Clone() *Postings {
	if p == nil {
		return &Postings{}
	}
	return &Postings{Items: slices.Clone(p.Items)}
}

// Exclude removes postings whose field name equals one of targets, keeping order,
// and returns the IDs it removed.
func (p *Postings) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		drop[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	var excluded []string
	p.Items = slices.DeleteFunc(p.Items, func(posting *Posting) bool {
		_, ok := drop[strings.ToLower(posting.GetStringField(name))]
		if ok {
			excluded = append(excluded, posting.ID)
		}
		return ok
	})

	return excluded
}

// Retain keeps postings for which keep returns true and returns the removed IDs.
func (p *Postings) Retain(keep func(*Posting) bool) []string {
	var removed []string
	p.Items = slices.DeleteFunc(p.Items, func(posting *Posting) bool {
		if keep(posting) {
			return false
		}
		removed = append(removed, posting.ID)
		return true
	})
	return removed
}

// Head returns at most n postings from the front of the list.
func (p *Postings) Head(n int) []*Posting {
	if n < 0 || n > p.Len() {
		n = p.Len()
	}
	return p.Items[:n]
}

// DumpToTmpFile writes the list as indented JSON to a new temp file and returns its name.
func (p *Postings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ExcludedPostings is the on-disk list of postings the user does not want to see again.
type ExcludedPostings struct {
	Items []*ExcludedPosting
}

type ExcludedPosting struct {
	ID         string
	URL        string
	Company    string
	ExcludedAt time.Time
}

func (p *Postings) ToExcluded(now time.Time) *ExcludedPostings {
	excluded := &ExcludedPostings{}
	for _, posting := range p.Items {
		excluded.Items = append(excluded.Items, &ExcludedPosting{
			ID:         posting.ID,
			URL:        posting.URL,
			Company:    posting.Company,
			ExcludedAt: now.UTC(),
		})
	}
	return excluded
}

// LoadExcluded reads an exclude file. A missing or empty file yields an empty list.
func LoadExcluded(path string) (*ExcludedPostings, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ExcludedPostings{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedPostings{}, nil
	}

	var excluded ExcludedPostings
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, fmt.Errorf("decode exclude file %q: %w", path, err)
	}
	return &excluded, nil
}

// Append adds entries whose ID is not present yet.
func (e *ExcludedPostings) Append(s *ExcludedPostings) {
	seen := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		seen[item.ID] = struct{}{}
	}
	for _, item := range s.Items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		e.Items = append(e.Items, item)
	}
}

func (e *ExcludedPostings) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (e *ExcludedPostings) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return err
	}
	return nil
}
