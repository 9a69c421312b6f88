package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/listings"
)

type salaryFilter struct {
	toggle
	minimum float64
}

// NewSalary creates a filter that drops postings whose advertised salary is
// below the expectation. Postings without a salary figure are kept.
func NewSalary() Filter {
	return &salaryFilter{}
}

func (f *salaryFilter) Name() string { return "salary" }

func (f *salaryFilter) Validate(cfg *Config) error {
	f.minimum = 0
	if cfg != nil && cfg.MinSalary > 0 {
		f.minimum = cfg.MinSalary
	}
	return nil
}

func (f *salaryFilter) Apply(_ context.Context, deps Deps, p *listings.Postings) (*listings.Postings, Step, error) {
	initial := p.Len()
	if f.minimum <= 0 {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	removed := p.Retain(func(posting *listings.Posting) bool {
		return !posting.Salary.Known() || posting.Salary.Upper() >= f.minimum
	})
	if len(removed) > 0 {
		deps.logger().Info("excluding postings below salary expectation",
			zap.Float64("minimum", f.minimum),
			zap.Strings("excluded_postings", removed),
			zap.Int("postings_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *salaryFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"minimum": strconv.FormatFloat(f.minimum, 'f', -1, 64)},
	}
}
