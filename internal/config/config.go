package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	AIProviderAzure  = "azure"
	AIProviderOpenAI = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Speech        SpeechConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AIConfig struct {
	Provider            string
	Endpoint            string
	APIKey              string
	APIVersion          string
	Deployment          string
	Temperature         float64
	MaxTokens           int
	TopP                float64
	Timeout             time.Duration
	RetryAttempts       int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

type SpeechConfig struct {
	Key      string
	Region   string
	Language string
	Voice    string
	Timeout  time.Duration
}

type ExportConfig struct {
	ArchiveEnabled bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// ConfigurationError reports a missing or malformed setting. It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load reads the full service configuration and requires the database, language-model and speech
// credentials.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	cfg, err := load(serviceName, lookup)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.requireServiceCredentials(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadForTooling reads the configuration but only requires the database connection string. It is used by
// binaries that never call the language model or the speech provider.
func LoadForTooling(serviceName string, lookup LookupFunc) (Config, error) {
	cfg, err := load(serviceName, lookup)
	if err != nil {
		return Config{}, err
	}
	if cfg.Database.URL == "" {
		return Config{}, &ConfigurationError{Key: "TALK2DB_DATABASE_URL", Reason: "is required"}
	}
	return cfg, nil
}

func load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("TALK2DB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, &ConfigurationError{Key: "TALK2DB_PROFILE", Reason: fmt.Sprintf("has invalid value %q", profile)}
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var origins string
	appliers := []func() error{
		func() error { return applyString(lookup, "TALK2DB_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "TALK2DB_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "TALK2DB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "TALK2DB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "TALK2DB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "TALK2DB_CORS_ALLOWED_ORIGINS", &origins) },
		func() error { return applyString(lookup, "TALK2DB_DATABASE_URL", &cfg.Database.URL) },
		func() error { return applyString(lookup, "TALK2DB_DB_SCHEMA", &cfg.Database.Schema) },
		func() error { return applyInt(lookup, "TALK2DB_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "TALK2DB_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "TALK2DB_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "TALK2DB_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyString(lookup, "TALK2DB_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "TALK2DB_AI_ENDPOINT", &cfg.AI.Endpoint) },
		func() error { return applyString(lookup, "TALK2DB_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "TALK2DB_AI_API_VERSION", &cfg.AI.APIVersion) },
		func() error { return applyString(lookup, "TALK2DB_AI_DEPLOYMENT", &cfg.AI.Deployment) },
		func() error { return applyFloat(lookup, "TALK2DB_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyInt(lookup, "TALK2DB_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyFloat(lookup, "TALK2DB_AI_TOP_P", &cfg.AI.TopP) },
		func() error { return applyDuration(lookup, "TALK2DB_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "TALK2DB_AI_RETRY_ATTEMPTS", &cfg.AI.RetryAttempts) },
		func() error {
			return applyDuration(lookup, "TALK2DB_AI_RETRY_INITIAL_BACKOFF", &cfg.AI.RetryInitialBackoff)
		},
		func() error { return applyDuration(lookup, "TALK2DB_AI_RETRY_MAX_BACKOFF", &cfg.AI.RetryMaxBackoff) },
		func() error { return applyString(lookup, "TALK2DB_SPEECH_KEY", &cfg.Speech.Key) },
		func() error { return applyString(lookup, "TALK2DB_SPEECH_REGION", &cfg.Speech.Region) },
		func() error { return applyString(lookup, "TALK2DB_SPEECH_LANGUAGE", &cfg.Speech.Language) },
		func() error { return applyString(lookup, "TALK2DB_SPEECH_VOICE", &cfg.Speech.Voice) },
		func() error { return applyDuration(lookup, "TALK2DB_SPEECH_TIMEOUT", &cfg.Speech.Timeout) },
		func() error { return applyBool(lookup, "TALK2DB_EXPORT_ARCHIVE_ENABLED", &cfg.Export.ArchiveEnabled) },
		func() error { return applyString(lookup, "TALK2DB_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "TALK2DB_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "TALK2DB_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "TALK2DB_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "TALK2DB_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "TALK2DB_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "TALK2DB_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "TALK2DB_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "TALK2DB_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "TALK2DB_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}
	if origins != "" {
		cfg.HTTP.AllowedOrigins = splitList(origins)
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if cfg.Service.Name == "" {
		return Config{}, &ConfigurationError{Key: "TALK2DB_SERVICE_NAME", Reason: "is required"}
	}
	if cfg.HTTP.Address == "" {
		return Config{}, &ConfigurationError{Key: "TALK2DB_HTTP_ADDR", Reason: "is required"}
	}
	switch cfg.AI.Provider {
	case AIProviderAzure, AIProviderOpenAI:
	default:
		return Config{}, &ConfigurationError{Key: "TALK2DB_AI_PROVIDER", Reason: fmt.Sprintf("has invalid value %q", cfg.AI.Provider)}
	}
	if cfg.AI.RetryAttempts < 1 {
		return Config{}, &ConfigurationError{Key: "TALK2DB_AI_RETRY_ATTEMPTS", Reason: "must be at least 1"}
	}
	if cfg.Export.ArchiveEnabled && (cfg.ObjectStore.Endpoint == "" || cfg.ObjectStore.Bucket == "") {
		return Config{}, &ConfigurationError{Key: "TALK2DB_OBJECTSTORE_ENDPOINT", Reason: "and bucket are required when export archiving is enabled"}
	}
	return cfg, nil
}

type requiredSetting struct {
	key   string
	value string
}

func (c Config) requireServiceCredentials() error {
	required := []requiredSetting{
		{"TALK2DB_DATABASE_URL", c.Database.URL},
		{"TALK2DB_AI_ENDPOINT", c.AI.Endpoint},
		{"TALK2DB_AI_API_KEY", c.AI.APIKey},
		{"TALK2DB_SPEECH_KEY", c.Speech.Key},
		{"TALK2DB_SPEECH_REGION", c.Speech.Region},
	}
	if c.AI.Provider == AIProviderAzure {
		required = append(required,
			requiredSetting{"TALK2DB_AI_API_VERSION", c.AI.APIVersion},
			requiredSetting{"TALK2DB_AI_DEPLOYMENT", c.AI.Deployment},
		)
	}
	for _, item := range required {
		if item.value == "" {
			return &ConfigurationError{Key: item.key, Reason: "is required"}
		}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "talk2db-api"},
		HTTP: HTTPConfig{
			Address:        ":8000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   90 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*", "http://localhost:3000"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    20,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		AI: AIConfig{
			Provider:            AIProviderAzure,
			APIVersion:          "2023-05-15",
			Deployment:          "gpt-4",
			Temperature:         0.3,
			MaxTokens:           800,
			TopP:                0.95,
			Timeout:             30 * time.Second,
			RetryAttempts:       3,
			RetryInitialBackoff: 4 * time.Second,
			RetryMaxBackoff:     10 * time.Second,
		},
		Speech: SpeechConfig{
			Language: "en-US",
			Voice:    "en-US-JennyNeural",
			Timeout:  30 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Region:           "us-east-1",
			Bucket:           "talk2db-exports",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.HTTP.AllowedOrigins = nil
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return &ConfigurationError{Key: key, Reason: fmt.Sprintf("is not a duration: %v", err)}
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return &ConfigurationError{Key: key, Reason: fmt.Sprintf("is not a bool: %v", err)}
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return &ConfigurationError{Key: key, Reason: fmt.Sprintf("is not an integer: %v", err)}
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return &ConfigurationError{Key: key, Reason: fmt.Sprintf("is not a number: %v", err)}
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return &ConfigurationError{Key: key, Reason: fmt.Sprintf("has invalid value %q", raw)}
	}
	return nil
}
