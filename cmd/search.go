package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/ai"
	"github.com/spigell/careerlens/internal/ai/gemini"
	"github.com/spigell/careerlens/internal/cache"
	"github.com/spigell/careerlens/internal/embedding"
	"github.com/spigell/careerlens/internal/filtering"
	"github.com/spigell/careerlens/internal/listings"
	"github.com/spigell/careerlens/internal/logger"
	"github.com/spigell/careerlens/internal/matching"
	"github.com/spigell/careerlens/internal/retry"
	"github.com/spigell/careerlens/internal/secrets"
	"github.com/spigell/careerlens/internal/throttle"
	"github.com/spigell/careerlens/internal/usage"
)

const defaultTop = 10

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search job listings and rank them against the configured profile",
	Run: func(cmd *cobra.Command, _ []string) {
		search(cmd)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("query", "q", "", "search query, overrides search.query")
	searchCmd.Flags().BoolP("force-refresh", "f", false, "skip the cached listings and fetch again")
	searchCmd.Flags().IntP("top", "t", defaultTop, "how many ranked matches to show")
	searchCmd.Flags().BoolP("interactive", "i", false, "browse the ranked matches after the search")
	searchCmd.Flags().Bool("metrics-dump", false, "print the collected metrics before exiting")
	searchCmd.Flags().StringP("exclude-file", "e", "", "special file with postings to exclude. Default is unset.")

	viper.BindPFlag("search.query", searchCmd.Flags().Lookup("query"))
	viper.BindPFlag("filters.exclude-file", searchCmd.Flags().Lookup("exclude-file"))
}

// pipeline holds everything one search run needs.
type pipeline struct {
	config   *Config
	logger   *zap.Logger
	registry *prometheus.Registry
	usage    *usage.Accountant
	fetcher  *listings.Fetcher
	embedder *embedding.Client
	session  *matching.Session
	notes    ai.NoteWriter
}

// search is the main command for the cli.
func search(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the careerlens", zap.String("version", version))
	logger.Debug("starting with config",
		zap.Any("search", config.Search),
		zap.Any("limits", config.Limits),
		zap.Any("filters", config.Filters),
	)

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	top, _ := cmd.Flags().GetInt("top")
	forceRefresh, _ := cmd.Flags().GetBool("force-refresh")

	results, err := p.run(ctx, top, forceRefresh)
	if err != nil {
		if retry.IsRetryable(err) {
			logger.Fatal("search failed",
				zap.Error(err),
				zap.String("hint", "the provider is busy or unreachable, try again later"),
			)
		}
		logger.Fatal("search failed", zap.Error(err))
	}

	p.reportResults(results)
	p.draftNotes(ctx, results)

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive && len(results) > 0 {
		if err := p.browse(ctx, results); err != nil && !errors.Is(err, errExit) {
			logger.Error("interactive mode", zap.Error(err))
		}
	}

	p.reportUsage()

	if dump, _ := cmd.Flags().GetBool("metrics-dump"); dump {
		if err := writeMetrics(os.Stdout, p.registry); err != nil {
			logger.Error("dumping metrics", zap.Error(err))
		}
	}
}

func newPipeline(ctx context.Context, config *Config, log *zap.Logger) (*pipeline, error) {
	registry := prometheus.NewRegistry()

	accountant, err := usage.NewAccountant(config.Pricing, registry)
	if err != nil {
		return nil, fmt.Errorf("usage accountant: %w", err)
	}

	sleeper := throttle.NewSleeper(throttle.RealClock(), logger.WaitProgress(log))
	limiter := throttle.NewLimiter(config.Limits.RequestsPerMinute, sleeper, log)
	orchestrator := retry.New(config.Limits.Retry, sleeper, log)

	listingsKey, err := secrets.Load(secrets.Source{
		Name:  "listings api key",
		Value: config.Listings.APIKey,
		File:  config.Listings.APIKeyFile,
		Env:   "RAPIDAPI_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set listings.api-key-file or RAPIDAPI_KEY)", err)
	}

	client, err := listings.New(listingsKey, limiter, orchestrator, log)
	if err != nil {
		return nil, err
	}
	if config.Listings.UserAgent != "" {
		client.UserAgent = config.Listings.UserAgent
	}

	results := cache.NewResultCache[*listings.Postings](config.Limits.ResultCacheSize, config.Limits.ResultCacheTTL)
	fetcher := listings.NewFetcher(client, results, config.Limits.ResultCacheTTL, log)

	embeddingKey, err := secrets.Load(secrets.Source{
		Name:  "embedding api key",
		Value: config.Embedding.APIKey,
		File:  config.Embedding.APIKeyFile,
		Env:   "OPENAI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set embedding.api-key-file or OPENAI_API_KEY)", err)
	}

	embeddingCfg := config.Embedding.Config
	embeddingCfg.APIKey = embeddingKey

	embedder, err := embedding.New(embeddingCfg, orchestrator, sleeper, accountant, log)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		config:   config,
		logger:   log,
		registry: registry,
		usage:    accountant,
		fetcher:  fetcher,
		embedder: embedder,
		session:  matching.NewSession(config.Limits.EmbeddingCacheSize),
	}

	if config.AI != nil && config.AI.Enabled {
		notes, err := newNoteWriter(ctx, config.AI.Gemini, orchestrator, accountant, log)
		switch {
		case err != nil:
			log.Warn("skipping recruiter notes", zap.Error(err))
		case notes == nil:
			log.Warn("skipping recruiter notes",
				zap.String("reason", "gemini api key is not configured"),
				zap.String("hint", "set ai.gemini.api-key-file or GEMINI_API_KEY"),
			)
		default:
			p.notes = notes
		}
	}

	return p, nil
}

func newNoteWriter(ctx context.Context, cfg *GeminiConfig, orchestrator *retry.Orchestrator, accountant *usage.Accountant, log *zap.Logger) (ai.NoteWriter, error) {
	apiKey, err := secrets.Optional(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, nil
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Model, orchestrator, accountant, log)
	if err != nil {
		return nil, err
	}

	writerLogger := logger.WithProvider(log, "gemini", generator.Model())
	return gemini.NewNoteWriter(generator, cfg.Tone, cfg.MaxLogLength, writerLogger), nil
}

// prepareFilters returns the default steps with the unconfigured ones disabled.
func prepareFilters(cfg filtering.Config) []filtering.Filter {
	steps := filtering.Default()

	if strings.TrimSpace(cfg.ExcludeFile) == "" {
		filtering.DisableByName(steps, "exclude_file", "no exclude file configured")
	}
	if len(cfg.Companies) == 0 {
		filtering.DisableByName(steps, "companies", "no companies configured")
	}
	if !cfg.RemoteOnly {
		filtering.DisableByName(steps, "remote_only", "remote-only is off")
	}
	if len(cfg.Domains) == 0 {
		filtering.DisableByName(steps, "domains", "no domains configured")
	}
	if cfg.MinSalary <= 0 {
		filtering.DisableByName(steps, "salary", "no minimum salary configured")
	}

	return steps
}

// run fetches, filters, indexes and ranks. An empty slice means nothing matched.
func (p *pipeline) run(ctx context.Context, top int, forceRefresh bool) ([]matching.Result, error) {
	if top <= 0 {
		top = defaultTop
	}

	p.logger.Info("starting the search", zap.String("query", p.config.Search.Query))

	fetched, err := p.fetcher.Fetch(ctx, p.config.Search, forceRefresh)
	if err != nil {
		return nil, fmt.Errorf("fetching postings: %w", err)
	}

	postings := fetched.Postings
	p.logger.Info("getting postings",
		zap.Int("count", postings.Len()),
		zap.Bool("cached", fetched.Cached),
		zap.Time("fetched_at", fetched.FetchedAt),
	)

	if postings.Len() == 0 {
		p.logger.Info("exiting", zap.String("reason", "no postings found"))
		return nil, nil
	}

	steps := prepareFilters(p.config.Filters)
	postings, err = filtering.Run(ctx, &p.config.Filters, filtering.Deps{Logger: p.logger}, steps, postings)
	if err != nil {
		return nil, fmt.Errorf("filtering: %w", err)
	}

	for _, status := range filtering.Describe(steps) {
		p.logger.Debug("filter status",
			zap.String("filter", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
		)
	}

	if postings.Len() == 0 {
		p.logger.Info("exiting", zap.String("reason", "no postings left after filters"))
		return nil, nil
	}

	engine := matching.NewEngine(p.embedder, p.session, p.config.Limits.EmbeddingBatchSize, p.logger)

	limit := matching.IndexLimit(postings.Len(), top, p.config.Limits.MaxJobsToIndex)
	indexed, err := engine.IndexJobs(ctx, postings.Head(limit), limit)
	if err != nil {
		return nil, fmt.Errorf("indexing postings: %w", err)
	}

	p.logger.Info("indexed postings", zap.Int("indexed", indexed), zap.Int("limit", limit))

	if indexed == 0 {
		p.logger.Warn("exiting", zap.String("reason", "no posting could be embedded"))
		return nil, nil
	}

	target, err := p.queryVector(ctx, engine)
	if err != nil {
		return nil, err
	}

	results, err := engine.Search(ctx, p.config.Search.Query, top, target)
	if err != nil {
		return nil, fmt.Errorf("ranking postings: %w", err)
	}

	results = matching.Score(results, p.config.Profile.Skills)
	p.session.SetResults(results)

	return results, nil
}

// queryVector picks what postings are compared against: the resume file, then
// the profile text, then the skill set. A nil vector means the query text is used.
func (p *pipeline) queryVector(ctx context.Context, engine *matching.Engine) ([]float32, error) {
	profile := p.config.Profile

	if profile.ResumeFile != "" {
		data, err := os.ReadFile(profile.ResumeFile)
		if err != nil {
			return nil, fmt.Errorf("reading resume file: %w", err)
		}
		vec, err := engine.ResumeVector(ctx, string(data))
		if err != nil {
			return nil, err
		}
		p.logger.Debug("comparing against the resume", zap.String("file", profile.ResumeFile))
		return vec, nil
	}

	if text := strings.TrimSpace(profile.Summary + "\n" + profile.Experience); text != "" {
		vec, err := engine.ResumeVector(ctx, text)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("comparing against the profile summary")
		return vec, nil
	}

	if skills := matching.SplitSkills(profile.Skills); len(skills) > 0 {
		vec, err := engine.ProfileVector(ctx, skills)
		if err != nil {
			if errors.Is(err, matching.ErrNoEmbedding) {
				p.logger.Warn("falling back to the query text", zap.Error(err))
				return nil, nil
			}
			return nil, err
		}
		p.logger.Debug("comparing against the skill set", zap.Int("skills", len(skills)))
		return vec, nil
	}

	return nil, nil
}

func (p *pipeline) draftNotes(ctx context.Context, results []matching.Result) {
	if p.notes == nil || len(results) == 0 {
		return
	}

	count := p.config.AI.Gemini.Notes
	if count > len(results) {
		count = len(results)
	}

	profile := p.profile()
	for _, result := range results[:count] {
		note, err := p.notes.Draft(ctx, profile, result)
		if err != nil {
			p.logger.Warn("drafting recruiter note", zap.String("job_id", result.Job.ID), zap.Error(err))
			if ctx.Err() != nil {
				return
			}
			continue
		}
		reportNote(p.logger, result, note)
	}
}

func (p *pipeline) profile() ai.Profile {
	return ai.Profile{
		Name:       p.config.Profile.Name,
		Summary:    p.config.Profile.Summary,
		Experience: p.config.Profile.Experience,
		Skills:     p.config.Profile.Skills,
	}
}
