package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DefaultJWTSecret is only acceptable outside production.
	DefaultJWTSecret = "dev_secret"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Email     EmailConfig
	OAuth     OAuthConfig
	Storage   StorageConfig
	Training  TrainingConfig
	Lockout   LockoutConfig
	Jobs      JobsConfig
	Dashboard DashboardConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EmailConfig selects the mail provider used for notifications.
type EmailConfig struct {
	Provider       string
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	SiteURL        string
	SubjectPrefix  string
}

// OAuthProviderConfig holds the client registration for one identity provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Tenant       string
}

// Enabled reports whether the provider has credentials configured.
func (p OAuthProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// OAuthConfig configures social login.
type OAuthConfig struct {
	Google      OAuthProviderConfig
	Microsoft   OAuthProviderConfig
	StateSecret string
	StateTTL    time.Duration
}

// StorageConfig controls where licence photos are persisted.
type StorageConfig struct {
	Driver           string
	LocalDir         string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxUploadBytes   int64
	AllowedMIMETypes []string
}

// TrainingConfig tunes the record workflow and exports.
type TrainingConfig struct {
	SignOffGraceDays  int
	RecordsPageSize   int
	MatrixRowsPerPage int
	HistoryPageSize   int
	HistoryRangeDays  int
	MatrixFontPath    string
}

// LockoutConfig mirrors the failed-login policy.
type LockoutConfig struct {
	FailureLimit int
	CoolOff      time.Duration
}

// JobsConfig sizes the background email queue.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		FromAddress:    v.GetString("EMAIL_FROM_ADDRESS"),
		SiteURL:        strings.TrimRight(v.GetString("SITE_URL"), "/"),
		SubjectPrefix:  v.GetString("EMAIL_SUBJECT_PREFIX"),
	}

	cfg.OAuth = OAuthConfig{
		Google: OAuthProviderConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		Microsoft: OAuthProviderConfig{
			ClientID:     v.GetString("MICROSOFT_CLIENT_ID"),
			ClientSecret: v.GetString("MICROSOFT_CLIENT_SECRET"),
			RedirectURL:  v.GetString("MICROSOFT_REDIRECT_URL"),
			Tenant:       v.GetString("MICROSOFT_TENANT"),
		},
		StateSecret: v.GetString("OAUTH_STATE_SECRET"),
		StateTTL:    parseDuration(v.GetString("OAUTH_STATE_TTL"), 10*time.Minute),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_BYTES")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:           strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:         v.GetString("STORAGE_LOCAL_DIR"),
		S3Bucket:         v.GetString("S3_BUCKET"),
		S3Region:         v.GetString("S3_REGION"),
		S3Endpoint:       v.GetString("S3_ENDPOINT"),
		S3AccessKey:      v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:      v.GetString("S3_SECRET_KEY"),
		SignedURLSecret:  v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 15*time.Minute),
		MaxUploadBytes:   maxUpload,
		AllowedMIMETypes: splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES")),
	}

	cfg.Training = TrainingConfig{
		SignOffGraceDays:  v.GetInt("SIGN_OFF_GRACE_DAYS"),
		RecordsPageSize:   v.GetInt("RECORDS_PAGE_SIZE"),
		MatrixRowsPerPage: v.GetInt("MATRIX_ROWS_PER_PAGE"),
		HistoryPageSize:   v.GetInt("FLIGHT_HISTORY_PAGE_SIZE"),
		HistoryRangeDays:  v.GetInt("FLIGHT_HISTORY_RANGE_DAYS"),
		MatrixFontPath:    v.GetString("MATRIX_FONT_PATH"),
	}

	cfg.Lockout = LockoutConfig{
		FailureLimit: v.GetInt("LOCKOUT_FAILURE_LIMIT"),
		CoolOff:      parseDuration(v.GetString("LOCKOUT_COOLOFF"), 30*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("EMAIL_WORKERS"),
		MaxRetries: v.GetInt("EMAIL_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("EMAIL_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 2*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gliding_club")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MIGRATIONS_DIR", ".")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", DefaultJWTSecret)
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EMAIL_PROVIDER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_NAME", "Gliding Club Training")
	v.SetDefault("EMAIL_FROM_ADDRESS", "noreply@localhost")
	v.SetDefault("SITE_URL", "http://localhost:8080")
	v.SetDefault("EMAIL_SUBJECT_PREFIX", "")

	v.SetDefault("OAUTH_STATE_SECRET", "dev_oauth_state_secret")
	v.SetDefault("OAUTH_STATE_TTL", "10m")
	v.SetDefault("MICROSOFT_TENANT", "common")

	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "./uploads")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "15m")
	v.SetDefault("UPLOAD_MAX_BYTES", 5*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", "image/jpeg,image/png")

	v.SetDefault("SIGN_OFF_GRACE_DAYS", 7)
	v.SetDefault("RECORDS_PAGE_SIZE", 20)
	v.SetDefault("MATRIX_ROWS_PER_PAGE", 25)
	v.SetDefault("FLIGHT_HISTORY_PAGE_SIZE", 25)
	v.SetDefault("FLIGHT_HISTORY_RANGE_DAYS", 365)

	v.SetDefault("LOCKOUT_FAILURE_LIMIT", 5)
	v.SetDefault("LOCKOUT_COOLOFF", "30m")

	v.SetDefault("EMAIL_WORKERS", 2)
	v.SetDefault("EMAIL_MAX_RETRIES", 3)
	v.SetDefault("EMAIL_RETRY_DELAY", "5s")

	v.SetDefault("DASHBOARD_CACHE_TTL", "2m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
