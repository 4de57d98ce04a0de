package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mehmetcc/hospital-equipment-service/internal/password"
)

const minimumSecretLength = 32

var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET_KEY is required")
	ErrWeakJWTSecret    = fmt.Errorf("JWT_SECRET_KEY must be at least %d bytes", minimumSecretLength)
	ErrInvalidSetting   = errors.New("invalid configuration value")
)

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN prefers DATABASE_URL and falls back to the discrete POSTGRES_* settings.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=disable TimeZone=UTC"
}

type ServerConfig struct {
	Port string
}

// AdminConfig guards the swagger UI with basic auth.
type AdminConfig struct {
	Username string
	Password string
}

type TokenConfig struct {
	Secret          string
	Algorithm       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	CleanupInterval time.Duration
}

type PasswordConfig struct {
	Algorithm   string
	BcryptCost  int
	Concurrency int
}

// HasherConfig overlays the configured settings on password.DefaultConfig.
func (c *PasswordConfig) HasherConfig() password.Config {
	cfg := password.DefaultConfig()
	if c.Algorithm != "" {
		cfg.Algorithm = password.Algorithm(strings.ToLower(c.Algorithm))
	}
	if c.BcryptCost > 0 {
		cfg.BcryptCost = c.BcryptCost
	}
	if c.Concurrency > 0 {
		cfg.Concurrency = c.Concurrency
	}
	return cfg
}

type RateLimitConfig struct {
	LoginPerSecond float64
}

// BootstrapConfig describes the first administrator created at startup.
type BootstrapConfig struct {
	Username string
	Email    string
	Password string
	FullName string
}

func (c *BootstrapConfig) Enabled() bool {
	return c.Username != "" && c.Email != "" && c.Password != ""
}

type LogConfig struct {
	Level       string
	Development bool
	File        string
}

type Config struct {
	Database  *DatabaseConfig
	Server    *ServerConfig
	Admin     *AdminConfig
	Token     *TokenConfig
	Password  *PasswordConfig
	RateLimit *RateLimitConfig
	Bootstrap *BootstrapConfig
	Log       *LogConfig
}

// LoadConfig reads the environment, loading dotenvPath first when it exists.
func LoadConfig(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	env := &envReader{}
	dbCfg := &DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            env.str("POSTGRES_HOST", "localhost"),
		Port:            env.str("POSTGRES_PORT", "5432"),
		User:            os.Getenv("POSTGRES_USER"),
		Password:        os.Getenv("POSTGRES_PASSWORD"),
		Name:            os.Getenv("POSTGRES_DB"),
		MaxOpenConns:    env.integer("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    env.integer("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(env.integer("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
	}
	serverCfg := &ServerConfig{
		Port: env.str("SERVER_PORT", "8000"),
	}
	adminCfg := &AdminConfig{
		Username: os.Getenv("ADMIN_USERNAME"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
	tokenCfg := &TokenConfig{
		Secret:          os.Getenv("JWT_SECRET_KEY"),
		Algorithm:       env.str("JWT_ALGORITHM", "HS256"),
		AccessTTL:       time.Duration(env.integer("ACCESS_TOKEN_EXPIRE_MINUTES", 15)) * time.Minute,
		RefreshTTL:      time.Duration(env.integer("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		CleanupInterval: time.Duration(env.integer("TOKEN_CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute,
	}
	passwordCfg := &PasswordConfig{
		Algorithm:   env.str("PASSWORD_HASH_ALGORITHM", string(password.Bcrypt)),
		BcryptCost:  env.integer("BCRYPT_COST", 0),
		Concurrency: env.integer("PASSWORD_HASH_CONCURRENCY", 0),
	}
	rateCfg := &RateLimitConfig{
		LoginPerSecond: env.float("LOGIN_RATE_LIMIT_PER_SECOND", 5),
	}
	bootstrapCfg := &BootstrapConfig{
		Username: os.Getenv("FIRST_ADMIN_USERNAME"),
		Email:    os.Getenv("FIRST_ADMIN_EMAIL"),
		Password: os.Getenv("FIRST_ADMIN_PASSWORD"),
		FullName: env.str("FIRST_ADMIN_FULL_NAME", "System Administrator"),
	}
	logCfg := &LogConfig{
		Level:       env.str("LOG_LEVEL", "info"),
		Development: env.boolean("LOG_DEV", false),
		File:        os.Getenv("LOG_FILE"),
	}
	if env.err != nil {
		return nil, env.err
	}

	cfg := &Config{
		Database:  dbCfg,
		Server:    serverCfg,
		Admin:     adminCfg,
		Token:     tokenCfg,
		Password:  passwordCfg,
		RateLimit: rateCfg,
		Bootstrap: bootstrapCfg,
		Log:       logCfg,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Token.Secret == "":
		return ErrMissingJWTSecret
	case len(c.Token.Secret) < minimumSecretLength:
		return ErrWeakJWTSecret
	case c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0:
		return fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidSetting)
	case c.Token.CleanupInterval < 0:
		return fmt.Errorf("%w: TOKEN_CLEANUP_INTERVAL_MINUTES must not be negative", ErrInvalidSetting)
	case c.RateLimit.LoginPerSecond <= 0:
		return fmt.Errorf("%w: LOGIN_RATE_LIMIT_PER_SECOND must be positive", ErrInvalidSetting)
	}
	return nil
}

// envReader keeps the first parse error so LoadConfig can report it once.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return b
}

func (e *envReader) fail(key, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, value)
	}
}
