package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "Asia/Phnom_Penh"
	configPathEnv    = "NEWSRELAY_CONFIG"
	logLevelEnv      = "LOG_LEVEL"
	databaseDSNEnv   = "DATABASE_DSN"
	databaseDriveEnv = "DATABASE_DRIVER"
	redisAddrEnv     = "REDIS_ADDR"
	redisPassEnv     = "REDIS_PASSWORD"
	llmAPIKeyEnv     = "LLM_API_KEY"
	llmModelEnv      = "LLM_MODEL"
	mtAPIKeyEnv      = "MT_API_KEY"
	mlAPIKeyEnv      = "ML_API_KEY"
	metricsAddrEnv   = "METRICS_ADDR"

	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHANNEL_ID"
	facebookPageEnv   = "FB_PAGE_ID"
	facebookTokenEnv  = "FB_ACCESS_TOKEN"
	xTokenEnv         = "X_ACCESS_TOKEN"
)

// Channel kinds understood by the application wiring.
const (
	KindTelegram = "telegram"
	KindFacebook = "facebook"
	KindX        = "x"
)

// Source kinds understood by the scanner registry.
const (
	ScannerRSS      = "rss"
	ScannerHTMLList = "html_list"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Quality     QualityConfig     `yaml:"quality"`
	Translator  TranslatorConfig  `yaml:"translator"`
	Retry       RetryConfig       `yaml:"retry"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	LLM         LLMConfig         `yaml:"llm"`
	MT          MTConfig          `yaml:"mt"`
	ML          MLConfig          `yaml:"ml"`
	Images      ImagesConfig      `yaml:"images"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Categories  []CategoryConfig  `yaml:"categories"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQL store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

// RedisConfig enables the optional translation cache tier when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig exposes /metrics on Addr when set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines the posting policy.
type SchedulerConfig struct {
	Timezone        string         `yaml:"timezone"`
	OffHours        []int          `yaml:"offHours"`
	PeakHours       []int          `yaml:"peakHours"`
	ChannelSpacing  time.Duration  `yaml:"channelSpacing"`
	BurstSpacing    time.Duration  `yaml:"burstSpacing"`
	CategorySpacing time.Duration  `yaml:"categorySpacing"`
	location        *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotConfig bounds posting volume for a time-of-day window. Start and End are "HH:MM".
type SlotConfig struct {
	Name     string        `yaml:"name"`
	Start    string        `yaml:"start"`
	End      string        `yaml:"end"`
	MaxPosts int           `yaml:"maxPosts"`
	Delay    time.Duration `yaml:"delay"`
}

// PipelineConfig drives the ingestion loop.
type PipelineConfig struct {
	Languages           []string      `yaml:"languages"`
	MaxEntriesPerSource int           `yaml:"maxEntriesPerSource"`
	RecentWindow        time.Duration `yaml:"recentWindow"`
	RecentLimit         int           `yaml:"recentLimit"`
	Slots               []SlotConfig  `yaml:"slots"`
	DefaultDelay        time.Duration `yaml:"defaultDelay"`
	ManualBudget        int           `yaml:"manualBudget"`
	BoostBudget         int           `yaml:"boostBudget"`
	BoostDelay          time.Duration `yaml:"boostDelay"`
	BoostDuration       time.Duration `yaml:"boostDuration"`
	PostDelay           time.Duration `yaml:"postDelay"`
	BoostPostDelay      time.Duration `yaml:"boostPostDelay"`
	BreakingKeywords    []string      `yaml:"breakingKeywords"`
	ReputableSources    []string      `yaml:"reputableSources"`
}

// FetchConfig controls outbound feed requests.
type FetchConfig struct {
	Timeouts    []time.Duration `yaml:"timeouts"`
	RatePerSec  float64         `yaml:"ratePerSec"`
	Burst       int             `yaml:"burst"`
	UserAgent   string          `yaml:"userAgent"`
	SummaryMax  int             `yaml:"summaryMax"`
	CheckImages bool            `yaml:"checkImages"`
}

// DedupConfig tunes the near-duplicate detector.
type DedupConfig struct {
	Threshold      float64  `yaml:"threshold"`
	Tokenizer      string   `yaml:"tokenizer"`
	NGram          int      `yaml:"ngram"`
	MinTokenLength int      `yaml:"minTokenLength"`
	Stopwords      []string `yaml:"stopwords"`
	CacheSize      int      `yaml:"cacheSize"`
}

// QualityWeights are the per-signal contributions to the quality score.
type QualityWeights struct {
	Title      int `yaml:"title"`
	Summary    int `yaml:"summary"`
	Image      int `yaml:"image"`
	Source     int `yaml:"source"`
	SourceCap  int `yaml:"sourceCap"`
	Language   int `yaml:"language"`
	Classifier int `yaml:"classifier"`
}

// QualityConfig tunes the quality gate.
type QualityConfig struct {
	Threshold         int                `yaml:"threshold"`
	MinTitleLength    int                `yaml:"minTitleLength"`
	MinSummaryLength  int                `yaml:"minSummaryLength"`
	Weights           QualityWeights     `yaml:"weights"`
	SensitiveKeywords []string           `yaml:"sensitiveKeywords"`
	SpamKeywords      []string           `yaml:"spamKeywords"`
	SourceWeights     map[string]float64 `yaml:"sourceWeights"`
	ClassifierMinConf float64            `yaml:"classifierMinConfidence"`
}

// TranslatorConfig tunes the circuit breaker and validation.
type TranslatorConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	RecoveryTimeout  time.Duration `yaml:"recoveryTimeout"`
	MinLengthRatio   float64       `yaml:"minLengthRatio"`
	VerbatimMaxRunes int           `yaml:"verbatimMaxRunes"`
}

// RetryConfig drives the retry worker and ledger.
type RetryConfig struct {
	PollInterval time.Duration   `yaml:"pollInterval"`
	MaxRetries   int             `yaml:"maxRetries"`
	Schedule     []time.Duration `yaml:"schedule"`
	BatchSize    int             `yaml:"batchSize"`
	Retention    time.Duration   `yaml:"retention"`
	StaleAfter   time.Duration   `yaml:"staleAfter"`
}

// MaintenanceConfig defines the periodic cleanup job.
type MaintenanceConfig struct {
	CronExpression       string        `yaml:"cronExpression"`
	PostedRetention      time.Duration `yaml:"postedRetention"`
	TranslationRetention time.Duration `yaml:"translationRetention"`
}

// LLMConfig defines how to contact the OpenAI-compatible rendering API.
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MTConfig describes the fallback machine-translation service.
type MTConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MLConfig describes the optional text-classification service.
type MLConfig struct {
	InferenceURL string        `yaml:"inferenceUrl"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ImagesConfig bounds the image usability probe.
type ImagesConfig struct {
	MaxBytes int64         `yaml:"maxBytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RateLimitConfig is a sliding-window budget.
type RateLimitConfig struct {
	Calls  int           `yaml:"calls"`
	Period time.Duration `yaml:"period"`
}

// ChannelConfig describes one publishing outlet.
type ChannelConfig struct {
	Name      string          `yaml:"name"`
	Kind      string          `yaml:"kind"`
	Critical  bool            `yaml:"critical"`
	Language  string          `yaml:"language"`
	Endpoint  string          `yaml:"endpoint"`
	Token     string          `yaml:"token"`
	Target    string          `yaml:"target"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Timeout   time.Duration   `yaml:"timeout"`
}

// SourceConfig describes a single feed with its scanner strategy.
type SourceConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	URL     string            `yaml:"url"`
	BaseURL string            `yaml:"baseUrl"`
	Options map[string]string `yaml:"options"`
}

// CategoryConfig groups sources visited in order.
type CategoryConfig struct {
	Name    string         `yaml:"name"`
	Sources []SourceConfig `yaml:"sources"`
}

// Load reads .env and YAML configuration (if present), applies environment
// overrides and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults without reading the environment.
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg := mergeConfig(defaultConfig(), fileCfg)
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(databaseDriveEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(redisPassEnv); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(metricsAddrEnv); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(mtAPIKeyEnv); v != "" {
		c.MT.APIKey = v
	}
	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		switch ch.Kind {
		case KindTelegram:
			overrideIfSet(&ch.Token, telegramTokenEnv)
			overrideIfSet(&ch.Target, telegramChatIDEnv)
		case KindFacebook:
			overrideIfSet(&ch.Token, facebookTokenEnv)
			overrideIfSet(&ch.Target, facebookPageEnv)
		case KindX:
			overrideIfSet(&ch.Token, xTokenEnv)
		}
	}
}

func overrideIfSet(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Errorf("dedup.threshold %.2f must be in (0,1]", c.Dedup.Threshold))
	}
	switch c.Dedup.Tokenizer {
	case "word", "ngram":
	default:
		errs = append(errs, fmt.Errorf("dedup.tokenizer %q must be word or ngram", c.Dedup.Tokenizer))
	}
	if c.Quality.Threshold < 0 || c.Quality.Threshold > 100 {
		errs = append(errs, fmt.Errorf("quality.threshold %d must be in [0,100]", c.Quality.Threshold))
	}
	if c.Retry.MaxRetries <= 0 {
		errs = append(errs, errors.New("retry.maxRetries must be positive"))
	}
	if len(c.Retry.Schedule) == 0 {
		errs = append(errs, errors.New("retry.schedule must not be empty"))
	}
	if len(c.Pipeline.Languages) == 0 {
		errs = append(errs, errors.New("pipeline.languages must not be empty"))
	}
	for _, slot := range c.Pipeline.Slots {
		if _, err := ParseClock(slot.Start); err != nil {
			errs = append(errs, fmt.Errorf("slot %s: %w", slot.Name, err))
		}
		if _, err := ParseClock(slot.End); err != nil {
			errs = append(errs, fmt.Errorf("slot %s: %w", slot.Name, err))
		}
	}

	critical := 0
	names := map[string]struct{}{}
	for _, ch := range c.Channels {
		if _, dup := names[ch.Name]; dup {
			errs = append(errs, fmt.Errorf("channel %q is declared twice", ch.Name))
		}
		names[ch.Name] = struct{}{}
		switch ch.Kind {
		case KindTelegram, KindFacebook, KindX:
		default:
			errs = append(errs, fmt.Errorf("channel %q has unknown kind %q", ch.Name, ch.Kind))
		}
		if ch.Critical {
			critical++
		}
		if ch.RateLimit.Calls < 0 || (ch.RateLimit.Calls > 0 && ch.RateLimit.Period <= 0) {
			errs = append(errs, fmt.Errorf("channel %q rate limit must be positive", ch.Name))
		}
	}
	if len(c.Channels) > 0 && critical != 1 {
		errs = append(errs, fmt.Errorf("exactly one critical channel required, got %d", critical))
	}

	for _, cat := range c.Categories {
		for _, src := range cat.Sources {
			switch src.Scanner {
			case ScannerRSS, ScannerHTMLList:
			default:
				errs = append(errs, fmt.Errorf("source %q has unknown scanner %q", src.Name, src.Scanner))
			}
		}
	}

	return errors.Join(errs...)
}

// CriticalChannel returns the name of the critical channel.
func (c Config) CriticalChannel() string {
	for _, ch := range c.Channels {
		if ch.Critical {
			return ch.Name
		}
	}
	return ""
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.MaxOpenConns > 0 {
		base.Database.MaxOpenConns = override.Database.MaxOpenConns
	}

	if override.Redis.Addr != "" {
		base.Redis = override.Redis
		if base.Redis.TTL == 0 {
			base.Redis.TTL = defaultConfig().Redis.TTL
		}
	}
	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}

	s := override.Scheduler
	if s.Timezone != "" {
		base.Scheduler.Timezone = s.Timezone
	}
	if s.OffHours != nil {
		base.Scheduler.OffHours = s.OffHours
	}
	if s.PeakHours != nil {
		base.Scheduler.PeakHours = s.PeakHours
	}
	setDuration(&base.Scheduler.ChannelSpacing, s.ChannelSpacing)
	setDuration(&base.Scheduler.BurstSpacing, s.BurstSpacing)
	setDuration(&base.Scheduler.CategorySpacing, s.CategorySpacing)

	p := override.Pipeline
	if len(p.Languages) > 0 {
		base.Pipeline.Languages = p.Languages
	}
	setInt(&base.Pipeline.MaxEntriesPerSource, p.MaxEntriesPerSource)
	setDuration(&base.Pipeline.RecentWindow, p.RecentWindow)
	setInt(&base.Pipeline.RecentLimit, p.RecentLimit)
	if len(p.Slots) > 0 {
		base.Pipeline.Slots = p.Slots
	}
	setDuration(&base.Pipeline.DefaultDelay, p.DefaultDelay)
	setInt(&base.Pipeline.ManualBudget, p.ManualBudget)
	setInt(&base.Pipeline.BoostBudget, p.BoostBudget)
	setDuration(&base.Pipeline.BoostDelay, p.BoostDelay)
	setDuration(&base.Pipeline.BoostDuration, p.BoostDuration)
	setDuration(&base.Pipeline.PostDelay, p.PostDelay)
	setDuration(&base.Pipeline.BoostPostDelay, p.BoostPostDelay)
	if len(p.BreakingKeywords) > 0 {
		base.Pipeline.BreakingKeywords = p.BreakingKeywords
	}
	if len(p.ReputableSources) > 0 {
		base.Pipeline.ReputableSources = p.ReputableSources
	}

	f := override.Fetch
	if len(f.Timeouts) > 0 {
		base.Fetch.Timeouts = f.Timeouts
	}
	if f.RatePerSec > 0 {
		base.Fetch.RatePerSec = f.RatePerSec
	}
	setInt(&base.Fetch.Burst, f.Burst)
	if f.UserAgent != "" {
		base.Fetch.UserAgent = f.UserAgent
	}
	setInt(&base.Fetch.SummaryMax, f.SummaryMax)
	if f.CheckImages {
		base.Fetch.CheckImages = true
	}

	d := override.Dedup
	if d.Threshold > 0 {
		base.Dedup.Threshold = d.Threshold
	}
	if d.Tokenizer != "" {
		base.Dedup.Tokenizer = d.Tokenizer
	}
	setInt(&base.Dedup.NGram, d.NGram)
	setInt(&base.Dedup.MinTokenLength, d.MinTokenLength)
	if len(d.Stopwords) > 0 {
		base.Dedup.Stopwords = d.Stopwords
	}
	setInt(&base.Dedup.CacheSize, d.CacheSize)

	q := override.Quality
	setInt(&base.Quality.Threshold, q.Threshold)
	setInt(&base.Quality.MinTitleLength, q.MinTitleLength)
	setInt(&base.Quality.MinSummaryLength, q.MinSummaryLength)
	if q.Weights != (QualityWeights{}) {
		base.Quality.Weights = q.Weights
	}
	if len(q.SensitiveKeywords) > 0 {
		base.Quality.SensitiveKeywords = q.SensitiveKeywords
	}
	if len(q.SpamKeywords) > 0 {
		base.Quality.SpamKeywords = q.SpamKeywords
	}
	if len(q.SourceWeights) > 0 {
		base.Quality.SourceWeights = q.SourceWeights
	}
	if q.ClassifierMinConf > 0 {
		base.Quality.ClassifierMinConf = q.ClassifierMinConf
	}

	t := override.Translator
	setInt(&base.Translator.FailureThreshold, t.FailureThreshold)
	setDuration(&base.Translator.RecoveryTimeout, t.RecoveryTimeout)
	if t.MinLengthRatio > 0 {
		base.Translator.MinLengthRatio = t.MinLengthRatio
	}
	setInt(&base.Translator.VerbatimMaxRunes, t.VerbatimMaxRunes)

	r := override.Retry
	setDuration(&base.Retry.PollInterval, r.PollInterval)
	setInt(&base.Retry.MaxRetries, r.MaxRetries)
	if len(r.Schedule) > 0 {
		base.Retry.Schedule = r.Schedule
	}
	setInt(&base.Retry.BatchSize, r.BatchSize)
	setDuration(&base.Retry.Retention, r.Retention)
	setDuration(&base.Retry.StaleAfter, r.StaleAfter)

	m := override.Maintenance
	if m.CronExpression != "" {
		base.Maintenance.CronExpression = m.CronExpression
	}
	setDuration(&base.Maintenance.PostedRetention, m.PostedRetention)
	setDuration(&base.Maintenance.TranslationRetention, m.TranslationRetention)

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.SystemPrompt != "" {
		base.LLM.SystemPrompt = override.LLM.SystemPrompt
	}
	setDuration(&base.LLM.Timeout, override.LLM.Timeout)

	if override.MT.Endpoint != "" {
		base.MT.Endpoint = override.MT.Endpoint
	}
	if override.MT.APIKey != "" {
		base.MT.APIKey = override.MT.APIKey
	}
	setDuration(&base.MT.Timeout, override.MT.Timeout)

	if override.ML.InferenceURL != "" {
		base.ML.InferenceURL = override.ML.InferenceURL
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}
	setDuration(&base.ML.Timeout, override.ML.Timeout)

	if override.Images.MaxBytes > 0 {
		base.Images.MaxBytes = override.Images.MaxBytes
	}
	setDuration(&base.Images.Timeout, override.Images.Timeout)

	if len(override.Channels) > 0 {
		base.Channels = override.Channels
	}
	if len(override.Categories) > 0 {
		base.Categories = override.Categories
	}

	return base
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "newsrelay.db", MaxOpenConns: 10},
		Redis:    RedisConfig{TTL: 7 * 24 * time.Hour},
		Scheduler: SchedulerConfig{
			Timezone:        defaultTimezone,
			OffHours:        []int{2, 3, 4, 5},
			PeakHours:       []int{7, 8, 9, 11, 12, 13, 17, 18, 19, 20},
			ChannelSpacing:  5 * time.Minute,
			BurstSpacing:    time.Minute,
			CategorySpacing: 30 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Languages:           []string{"km"},
			MaxEntriesPerSource: 1,
			RecentWindow:        48 * time.Hour,
			RecentLimit:         200,
			Slots: []SlotConfig{
				{Name: "morning", Start: "05:00", End: "08:00", MaxPosts: 8, Delay: 60 * time.Second},
				{Name: "work-am", Start: "08:00", End: "11:30", MaxPosts: 5, Delay: 90 * time.Second},
				{Name: "lunch-peak", Start: "11:30", End: "13:30", MaxPosts: 8, Delay: 45 * time.Second},
				{Name: "afternoon", Start: "13:30", End: "17:00", MaxPosts: 5, Delay: 120 * time.Second},
				{Name: "prime-time", Start: "17:00", End: "21:00", MaxPosts: 10, Delay: 40 * time.Second},
				{Name: "night", Start: "21:00", End: "23:00", MaxPosts: 4, Delay: 150 * time.Second},
			},
			DefaultDelay:   300 * time.Second,
			ManualBudget:   10,
			BoostBudget:    15,
			BoostDelay:     60 * time.Second,
			BoostDuration:  15 * time.Minute,
			PostDelay:      15 * time.Second,
			BoostPostDelay: 5 * time.Second,
			BreakingKeywords: []string{
				"breaking", "urgent", "shooting", "explosion", "crash", "dead", "crisis", "war",
				"បន្ទាន់", "ភ្លាម", "បាញ់", "ផ្ទុះ", "ស្លាប់", "គ្រោះថ្នាក់", "រញ្ជួយដី",
			},
			ReputableSources: []string{"Khmer Times", "BBC News", "CNN", "Thmey Thmey"},
		},
		Fetch: FetchConfig{
			Timeouts:   []time.Duration{15 * time.Second, 30 * time.Second},
			RatePerSec: 2,
			Burst:      4,
			UserAgent:  "NewsRelay/1.0",
			SummaryMax: 1000,
		},
		Dedup: DedupConfig{
			Threshold:      0.8,
			Tokenizer:      "ngram",
			NGram:          3,
			MinTokenLength: 2,
			CacheSize:      4096,
		},
		Quality: QualityConfig{
			Threshold:        60,
			MinTitleLength:   20,
			MinSummaryLength: 100,
			Weights: QualityWeights{
				Title: 15, Summary: 20, Image: 10, Source: 15, SourceCap: 20, Language: 10, Classifier: 30,
			},
			SensitiveKeywords: []string{"sex", "porn", "xxx", "gambling"},
			SpamKeywords:      []string{"buy now", "click here", "subscribe", "free money", "winner", "lottery", "casino"},
			SourceWeights: map[string]float64{
				"Koh Santepheap": 1.0,
				"Khmer Times":    1.1,
				"BBC News":       1.3,
			},
			ClassifierMinConf: 0.6,
		},
		Translator: TranslatorConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  10 * time.Minute,
			MinLengthRatio:   0.2,
			VerbatimMaxRunes: 500,
		},
		Retry: RetryConfig{
			PollInterval: 5 * time.Minute,
			MaxRetries:   5,
			Schedule: []time.Duration{
				time.Minute, 5 * time.Minute, 15 * time.Minute, 60 * time.Minute, 360 * time.Minute,
			},
			BatchSize:  50,
			Retention:  7 * 24 * time.Hour,
			StaleAfter: 30 * time.Minute,
		},
		Maintenance: MaintenanceConfig{
			CronExpression:       "@every 1h",
			PostedRetention:      30 * 24 * time.Hour,
			TranslationRetention: 30 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a news editor. Translate the article into the requested language and answer with JSON {\"title\",\"body\",\"summary\"}.",
			Timeout:      30 * time.Second,
		},
		MT:     MTConfig{Endpoint: "https://libretranslate.com/translate", Timeout: 15 * time.Second},
		ML:     MLConfig{Timeout: 10 * time.Second},
		Images: ImagesConfig{MaxBytes: 5 << 20, Timeout: 5 * time.Second},
	}
}
