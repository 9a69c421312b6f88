package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/careerlens/internal/ai/gemini"
	"github.com/spigell/careerlens/internal/cache"
	"github.com/spigell/careerlens/internal/embedding"
	"github.com/spigell/careerlens/internal/filtering"
	"github.com/spigell/careerlens/internal/listings"
	"github.com/spigell/careerlens/internal/retry"
	"github.com/spigell/careerlens/internal/usage"
)

const (
	app       = "careerlens"
	envPrefix = "CAREERLENS"
)

type Config struct {
	Search    listings.SearchParams `mapstructure:"search"`
	Limits    LimitsConfig          `mapstructure:"limits"`
	Pricing   usage.Pricing         `mapstructure:"pricing"`
	Embedding EmbeddingConfig       `mapstructure:"embedding"`
	Listings  ListingsConfig        `mapstructure:"listings"`
	AI        *AIConfig             `mapstructure:"ai"`
	Profile   ProfileConfig         `mapstructure:"profile"`
	Filters   filtering.Config      `mapstructure:"filters"`
}

type LimitsConfig struct {
	RequestsPerMinute   int           `mapstructure:"rapidapi-requests-per-minute" validate:"gte=0"`
	Retry               retry.Config  `mapstructure:",squash"`
	EmbeddingBatchSize  int           `mapstructure:"embedding-batch-size" validate:"gte=1,lte=2048"`
	EmbeddingBatchDelay time.Duration `mapstructure:"embedding-batch-delay" validate:"gte=0"`
	ResultCacheSize     int           `mapstructure:"result-cache-size" validate:"gte=1"`
	ResultCacheTTL      time.Duration `mapstructure:"result-cache-ttl" validate:"gt=0"`
	EmbeddingCacheSize  int           `mapstructure:"embedding-cache-size" validate:"gte=2"`
	MaxJobsToIndex      int           `mapstructure:"max-jobs-to-index" validate:"gte=0"`
}

type EmbeddingConfig struct {
	embedding.Config `mapstructure:",squash"`
	APIKeyFile       string `mapstructure:"api-key-file"`
}

type ListingsConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	UserAgent  string `mapstructure:"user-agent"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini" validate:"required_if=Enabled true"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	Tone         string `mapstructure:"tone"`
	MaxLogLength int    `mapstructure:"max-log-length" validate:"gte=0"`
	Notes        int    `mapstructure:"notes" validate:"gte=0"`
}

type ProfileConfig struct {
	Name       string `mapstructure:"name"`
	Summary    string `mapstructure:"summary"`
	Experience string `mapstructure:"experience"`
	Skills     string `mapstructure:"skills"`
	ResumeFile string `mapstructure:"resume-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "careerlens searches job listings and ranks them against your profile",
	}

	validate = validator.New()
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is careerlens.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.location", listings.DefaultLocation)
	v.SetDefault("search.max-rows", listings.DefaultMaxRows)
	v.SetDefault("search.job-type", listings.DefaultJobType)
	v.SetDefault("search.country", listings.DefaultCountry)

	v.SetDefault("limits.rapidapi-requests-per-minute", 60)
	v.SetDefault("limits.max-retries", retry.DefaultMaxRetries)
	v.SetDefault("limits.initial-delay", retry.DefaultInitialDelay)
	v.SetDefault("limits.max-delay", retry.DefaultMaxDelay)
	v.SetDefault("limits.embedding-batch-size", embedding.DefaultBatchSize)
	v.SetDefault("limits.embedding-batch-delay", time.Second)
	v.SetDefault("limits.result-cache-size", cache.DefaultResultCapacity)
	v.SetDefault("limits.result-cache-ttl", cache.DefaultResultTTL)
	v.SetDefault("limits.embedding-cache-size", cache.DefaultEmbeddingCeiling)
	v.SetDefault("limits.max-jobs-to-index", 50)

	pricing := usage.DefaultPricing()
	v.SetDefault("pricing.embedding-per-1k", pricing.EmbeddingPer1K)
	v.SetDefault("pricing.prompt-per-1k", pricing.PromptPer1K)
	v.SetDefault("pricing.completion-per-1k", pricing.CompletionPer1K)

	v.SetDefault("embedding.api-key", "")
	v.SetDefault("embedding.api-key-file", "")
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.azure", false)
	v.SetDefault("listings.api-key", "")
	v.SetDefault("listings.api-key-file", "")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.gemini.model", gemini.DefaultModel)
	v.SetDefault("ai.gemini.tone", gemini.DefaultTone)
	v.SetDefault("ai.gemini.max-log-length", 400)
	v.SetDefault("ai.gemini.notes", 3)

	v.SetDefault("profile.skills", "")
	v.SetDefault("profile.resume-file", "")

	v.SetDefault("filters.exclude-file", "")
	v.SetDefault("filters.min-salary", 0)
	v.SetDefault("filters.remote-only", false)
}

func initConfig() {
	// Only search reads the configuration.
	if searchCmd.CalledAs() == "" {
		return
	}

	// A missing .env is fine; the variables may come from the environment.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// The config file is optional when everything comes from the environment.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if config.Embedding.BatchDelay == 0 {
		config.Embedding.BatchDelay = config.Limits.EmbeddingBatchDelay
	}

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
