package listings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/utils"
)

const (
	MaxDescriptionRunes = 50000
	MaxSkills           = 10
	MaxBenefits         = 5

	notAvailable      = "N/A"
	notSpecified      = "Not specified"
	noDescription     = "No description available"
	defaultJobTypeTag = "Full-time"
)

var errMalformedRecord = errors.New("malformed listing record")

// postingNamespace seeds deterministic posting IDs.
var postingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/spigell/careerlens/postings"))

type rawRecord struct {
	JobID           string `json:"jobId"`
	Title           string `json:"title"`
	CompanyName     string `json:"companyName"`
	Company         string `json:"company"`
	Location        any    `json:"location"`
	DescriptionText string `json:"descriptionText"`
	DescriptionHTML string `json:"descriptionHtml"`
	Description     string `json:"description"`
	JobURL          string `json:"jobUrl"`
	URL             string `json:"url"`
	Attributes      []any  `json:"attributes"`
	Skills          []any  `json:"skills"`
	Benefits        []any  `json:"benefits"`
	JobType         []any  `json:"jobType"`
	Age             string `json:"age"`
	IsRemote        bool   `json:"isRemote"`
	Salary          any    `json:"salary"`
	Rating          any    `json:"rating"`
}

func decodePostings(records []any, logger *zap.Logger) *Postings {
	postings := &Postings{Items: make([]*Posting, 0, len(records))}
	for idx, record := range records {
		posting, err := decodePosting(record)
		if err != nil {
			logger.Warn("skipping listing record", zap.Int("index", idx), zap.Error(err))
			continue
		}
		postings.Items = append(postings.Items, posting)
	}
	return postings
}

func decodePosting(record any) (*Posting, error) {
	if _, ok := record.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: got %T", errMalformedRecord, record)
	}

	var raw rawRecord
	if err := weakDecode(record, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedRecord, err)
	}

	title := utils.NormalizeSpace(raw.Title)
	description := describe(raw)
	if title == "" && description == "" {
		return nil, fmt.Errorf("%w: neither title nor description", errMalformedRecord)
	}

	posting := &Posting{
		SourceID:    strings.TrimSpace(raw.JobID),
		Title:       orDefault(title, notAvailable),
		Company:     orDefault(utils.NormalizeSpace(firstNonEmpty(raw.CompanyName, raw.Company)), notAvailable),
		Location:    orDefault(location(raw.Location), notSpecified),
		Description: orDefault(utils.TruncateRunes(description, MaxDescriptionRunes), noDescription),
		Skills:      labels(firstNonEmptySlice(raw.Attributes, raw.Skills), MaxSkills),
		URL:         strings.TrimSpace(firstNonEmpty(raw.JobURL, raw.URL)),
		Salary:      salary(raw.Salary),
		JobType:     orDefault(strings.Join(labels(raw.JobType, 0), ", "), defaultJobTypeTag),
		PostedAt:    strings.TrimSpace(raw.Age),
		Remote:      raw.IsRemote,
		Benefits:    labels(raw.Benefits, MaxBenefits),
		Rating:      rating(raw.Rating),
	}
	posting.ID = PostingID(posting.URL, posting.Title, posting.Company)

	return posting, nil
}

// PostingID derives a stable ID from the posting URL, or from title and company
// when there is no URL.
func PostingID(url, title, company string) string {
	name := strings.TrimSpace(url)
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(company))
	}
	return uuid.NewSHA1(postingNamespace, []byte(name)).String()
}

func describe(raw rawRecord) string {
	if text := strings.TrimSpace(raw.DescriptionText); text != "" {
		return text
	}
	if html := strings.TrimSpace(raw.DescriptionHTML); html != "" {
		return HTMLToText(html)
	}
	desc := strings.TrimSpace(raw.Description)
	if strings.Contains(desc, "<") && strings.Contains(desc, ">") {
		return HTMLToText(desc)
	}
	return desc
}

// HTMLToText reduces an HTML fragment to its text with block elements on
// separate lines.
func HTMLToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return utils.NormalizeSpace(fragment)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = utils.NormalizeSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func location(v any) string {
	switch val := v.(type) {
	case string:
		return utils.NormalizeSpace(val)
	case map[string]any:
		for _, key := range []string{"city", "formattedAddressShort", "fullAddress", "countryName"} {
			if s, ok := val[key].(string); ok && strings.TrimSpace(s) != "" {
				return utils.NormalizeSpace(s)
			}
		}
	}
	return ""
}

// labels extracts display strings from a list that may hold strings or objects
// with a label or name. limit <= 0 keeps everything.
func labels(items []any, limit int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch val := item.(type) {
		case string:
			s = val
		case map[string]any:
			for _, key := range []string{"label", "name", "text"} {
				if v, ok := val[key].(string); ok {
					s = v
					break
				}
			}
		}
		if s = utils.NormalizeSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type rawSalary struct {
	Min      float64 `json:"salaryMin"`
	Max      float64 `json:"salaryMax"`
	Currency string  `json:"salaryCurrency"`
	Period   string  `json:"salaryType"`
	Text     string  `json:"salaryText"`
}

func salary(v any) Salary {
	switch val := v.(type) {
	case string:
		return Salary{Text: utils.NormalizeSpace(val)}
	case map[string]any:
		var raw rawSalary
		if err := weakDecode(val, &raw); err != nil {
			return Salary{}
		}
		return Salary{
			Min:      max(raw.Min, 0),
			Max:      max(raw.Max, 0),
			Currency: strings.TrimSpace(raw.Currency),
			Period:   strings.TrimSpace(raw.Period),
			Text:     utils.NormalizeSpace(raw.Text),
		}
	}
	return Salary{}
}

func rating(v any) float64 {
	var out struct {
		Rating float64 `json:"rating"`
	}
	switch val := v.(type) {
	case float64:
		return val
	case map[string]any:
		if err := weakDecode(val, &out); err != nil {
			return 0
		}
		return out.Rating
	}
	return 0
}

// weakDecode decodes loosely typed JSON into target using its json tags.
func weakDecode(input, target any) error {
	cfg := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(values ...[]any) []any {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
