package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/listings"
)

type remoteOnlyFilter struct {
	toggle
	enabled bool
}

// NewRemoteOnly creates a filter that keeps only remote postings when asked to.
func NewRemoteOnly() Filter {
	return &remoteOnlyFilter{}
}

func (f *remoteOnlyFilter) Name() string { return "remote_only" }

func (f *remoteOnlyFilter) Validate(cfg *Config) error {
	f.enabled = cfg != nil && cfg.RemoteOnly
	return nil
}

func (f *remoteOnlyFilter) Apply(_ context.Context, deps Deps, p *listings.Postings) (*listings.Postings, Step, error) {
	initial := p.Len()
	if !f.enabled {
		return p, Step{Initial: initial, Dropped: 0, Left: p.Len()}, nil
	}

	removed := p.Retain(func(posting *listings.Posting) bool { return posting.Remote })
	if len(removed) > 0 {
		deps.logger().Info("excluding on-site postings",
			zap.Strings("excluded_postings", removed),
			zap.Int("postings_left", p.Len()),
		)
	}

	return p, Step{Initial: initial, Dropped: len(removed), Left: p.Len()}, nil
}

func (f *remoteOnlyFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"remote_only": strconv.FormatBool(f.enabled)},
	}
}
