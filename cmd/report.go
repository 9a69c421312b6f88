package cmd

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/ai"
	"github.com/spigell/careerlens/internal/matching"
)

func (p *pipeline) reportResults(results []matching.Result) {
	if len(results) == 0 {
		return
	}

	p.logger.Info("ranked matches", zap.Int("count", len(results)))
	for i, r := range results {
		p.logger.Info(fmt.Sprintf("#%d %s / %s", i+1, r.Job.Title, r.Job.Company),
			zap.String("job_id", r.Job.ID),
			zap.String("location", r.Job.Location),
			zap.String("combined", percent(r.Combined)),
			zap.String("similarity", percent(r.Similarity)),
			zap.String("skill_match", percent(r.SkillMatch)),
			zap.Strings("missing_skills", r.MissingSkills),
			zap.String("url", r.Job.URL),
		)
	}
}

func reportNote(logger *zap.Logger, result matching.Result, note *ai.RecruiterNote) {
	logger.Info(fmt.Sprintf("recruiter note for %s / %s", result.Job.Title, result.Job.Company),
		zap.String("job_id", note.JobID),
		zap.String("note", note.Note),
		zap.Strings("strengths", note.Strengths),
		zap.Strings("gaps", note.Gaps),
	)
}

func (p *pipeline) reportUsage() {
	summary := p.usage.Summary()
	p.logger.Info("api usage",
		zap.Int("total_tokens", summary.TotalTokens),
		zap.Int("embedding_tokens", summary.EmbeddingTokens),
		zap.Int("prompt_tokens", summary.PromptTokens),
		zap.Int("completion_tokens", summary.CompletionTokens),
		zap.String("estimated_cost_usd", fmt.Sprintf("%.6f", summary.EstimatedCostUSD)),
	)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// writeMetrics prints the gathered families in the Prometheus text format.
func writeMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("encode %s: %w", family.GetName(), err)
		}
	}

	return nil
}
