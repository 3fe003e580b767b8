package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "PROMPTLENS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PROMPTLENS_DB_DSN"
	EnvDBHost = "PROMPTLENS_DB_HOST"
	EnvDBUser = "PROMPTLENS_DB_USER"
	EnvDBName = "PROMPTLENS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// Config is the immutable process configuration. It is built once at startup
// and passed by reference into every constructor; business logic never reads
// ambient environment state.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Guest         GuestConfig
	Pricing       PricingConfig
	Razorpay      RazorpayConfig
	Stripe        StripeConfig
	Google        GoogleConfig
	OpenAI        OpenAIConfig
}

// Load parses the environment into a Config and validates the pieces the
// process cannot run without.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("%s is required", "PROMPTLENS_JWT_SECRET")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PROMPTLENS_APP_ENV" required:"true"`
	Port         string   `envconfig:"PROMPTLENS_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"PROMPTLENS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"PROMPTLENS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"PROMPTLENS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PROMPTLENS_DB_DSN"`
	Driver string `envconfig:"PROMPTLENS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROMPTLENS_DB_HOST"`
	LegacyPort     int    `envconfig:"PROMPTLENS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROMPTLENS_DB_USER"`
	LegacyPassword string `envconfig:"PROMPTLENS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROMPTLENS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROMPTLENS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROMPTLENS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROMPTLENS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROMPTLENS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROMPTLENS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PROMPTLENS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PROMPTLENS_REDIS_ADDR"`
	Password     string        `envconfig:"PROMPTLENS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROMPTLENS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROMPTLENS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROMPTLENS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROMPTLENS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROMPTLENS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROMPTLENS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret         string `envconfig:"PROMPTLENS_JWT_SECRET" required:"true"`
	Issuer         string `envconfig:"PROMPTLENS_JWT_ISSUER" default:"promptlens"`
	ExpirationDays int    `envconfig:"PROMPTLENS_JWT_EXPIRATION_DAYS" default:"30"`
}

// minTokenTTLDays is the floor applied to misconfigured token lifetimes.
const minTokenTTLDays = 7

// TokenTTL returns the access token lifetime, clamped to the floor.
func (j JWTConfig) TokenTTL() time.Duration {
	days := j.ExpirationDays
	if days < minTokenTTLDays {
		days = minTokenTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PROMPTLENS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PROMPTLENS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PROMPTLENS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PROMPTLENS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PROMPTLENS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"PROMPTLENS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"PROMPTLENS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"PROMPTLENS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"PROMPTLENS_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"PROMPTLENS_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"PROMPTLENS_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PROMPTLENS_AUTO_MIGRATE" default:"false"`
}

type GuestConfig struct {
	// Salt feeds the one-way hash that turns client IPs into guest subject
	// keys; rotating it resets every guest's remaining quota.
	Salt       string `envconfig:"PROMPTLENS_GUEST_SALT" default:"promptlens-guest"`
	FreeQuota  int    `envconfig:"PROMPTLENS_GUEST_FREE_QUOTA" default:"5"`
	TrustProxy bool   `envconfig:"PROMPTLENS_GUEST_TRUST_PROXY" default:"true"`
}

// PricingConfig holds per-plan monthly amounts in USD minor units plus the
// conversion rates and the annual discount. Annual amounts derive from
// monthly*12*(1-AnnualDiscount); the discount is an explicit configuration
// value, not a constant buried in the math.
type PricingConfig struct {
	ProMonthlyCents       int64   `envconfig:"PROMPTLENS_PRICING_PRO_MONTHLY_CENTS" default:"900"`
	UnlimitedMonthlyCents int64   `envconfig:"PROMPTLENS_PRICING_UNLIMITED_MONTHLY_CENTS" default:"1900"`
	AnnualDiscount        float64 `envconfig:"PROMPTLENS_PRICING_ANNUAL_DISCOUNT" default:"0.20"`
	USDToINR              float64 `envconfig:"PROMPTLENS_PRICING_USD_TO_INR" default:"84.0"`
	USDToEUR              float64 `envconfig:"PROMPTLENS_PRICING_USD_TO_EUR" default:"0.92"`
	FreeMonthlyQuota      int     `envconfig:"PROMPTLENS_PRICING_FREE_QUOTA" default:"20"`
	ProMonthlyQuota       int     `envconfig:"PROMPTLENS_PRICING_PRO_QUOTA" default:"500"`
}

type RazorpayConfig struct {
	KeyID     string `envconfig:"PROMPTLENS_RAZORPAY_KEY_ID"`
	KeySecret string `envconfig:"PROMPTLENS_RAZORPAY_KEY_SECRET"`
}

type StripeConfig struct {
	APIKey           string `envconfig:"PROMPTLENS_STRIPE_API_KEY"`
	WebhookSecret    string `envconfig:"PROMPTLENS_STRIPE_WEBHOOK_SECRET"`
	Env              string `envconfig:"PROMPTLENS_STRIPE_ENV" default:"test"`
	ProPriceID       string `envconfig:"PROMPTLENS_STRIPE_PRO_PRICE_ID"`
	UnlimitedPriceID string `envconfig:"PROMPTLENS_STRIPE_UNLIMITED_PRICE_ID"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GoogleConfig struct {
	ClientID string `envconfig:"PROMPTLENS_GOOGLE_CLIENT_ID"`
}

type OpenAIConfig struct {
	APIKey  string        `envconfig:"PROMPTLENS_OPENAI_API_KEY"`
	Model   string        `envconfig:"PROMPTLENS_OPENAI_MODEL" default:"gpt-4o-mini"`
	BaseURL string        `envconfig:"PROMPTLENS_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Timeout time.Duration `envconfig:"PROMPTLENS_OPENAI_TIMEOUT" default:"45s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
