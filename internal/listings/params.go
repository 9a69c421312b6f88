package listings

import (
	"strings"

	"github.com/spigell/careerlens/internal/cache"
	"github.com/spigell/careerlens/internal/utils"
)

const (
	DefaultLocation = "Hong Kong"
	DefaultMaxRows  = 15
	DefaultJobType  = "fulltime"
	DefaultCountry  = "hk"
	// MaxRows is the largest page the scraper returns.
	MaxRows = 50

	searchRadius   = "50"
	searchSort     = "relevance"
	searchFromDays = "7"
)

// SearchParams describes one listings search.
type SearchParams struct {
	Query    string `mapstructure:"query"`
	Location string `mapstructure:"location"`
	MaxRows  int    `mapstructure:"max-rows" validate:"gte=0,lte=50"`
	JobType  string `mapstructure:"job-type" validate:"omitempty,oneof=fulltime parttime contract internship temporary"`
	Country  string `mapstructure:"country"`
}

// WithDefaults fills empty fields and caps MaxRows.
func (p SearchParams) WithDefaults() SearchParams {
	p.Query = utils.NormalizeSpace(p.Query)
	p.Location = utils.NormalizeSpace(p.Location)
	p.JobType = strings.TrimSpace(p.JobType)
	p.Country = strings.ToLower(strings.TrimSpace(p.Country))

	if p.Location == "" {
		p.Location = DefaultLocation
	}
	if p.MaxRows <= 0 {
		p.MaxRows = DefaultMaxRows
	}
	if p.MaxRows > MaxRows {
		p.MaxRows = MaxRows
	}
	if p.JobType == "" {
		p.JobType = DefaultJobType
	}
	if p.Country == "" {
		p.Country = DefaultCountry
	}

	return p
}

// CacheKey identifies the search in the result cache.
func (p SearchParams) CacheKey() string {
	p = p.WithDefaults()
	return cache.SearchKey(p.Query, p.Location, p.MaxRows, p.JobType, p.Country)
}

type scraperPayload struct {
	Scraper scraperQuery `json:"scraper"`
}

type scraperQuery struct {
	MaxRows  int    `json:"maxRows"`
	Query    string `json:"query"`
	Location string `json:"location"`
	JobType  string `json:"jobType"`
	Radius   string `json:"radius"`
	Sort     string `json:"sort"`
	FromDays string `json:"fromDays"`
	Country  string `json:"country"`
}

func (p SearchParams) payload() scraperPayload {
	return scraperPayload{Scraper: scraperQuery{
		MaxRows:  p.MaxRows,
		Query:    p.Query,
		Location: p.Location,
		JobType:  p.JobType,
		Radius:   searchRadius,
		Sort:     searchSort,
		FromDays: searchFromDays,
		Country:  p.Country,
	}}
}
