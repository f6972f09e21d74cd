// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	ProviderIpaymu   = "ipaymu"
	ProviderMidtrans = "midtrans"

	defaultIpaymuBaseURL = "https://my.ipaymu.com"
)

type IpaymuConfig struct {
	BaseURL      string
	APIKey       string
	MerchantCode string
}

type MidtransConfig struct {
	ServerKey  string
	Production bool
}

// StorageConfig points at an S3-compatible bucket (AWS, R2, MinIO).
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

func (s StorageConfig) Enabled() bool { return s.Bucket != "" }

type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	AppURL         string
	AllowedOrigins []string
	JWTSecret      string

	PaymentProvider string
	Ipaymu          IpaymuConfig
	Midtrans        MidtransConfig

	Storage StorageConfig

	AMQPURL      string
	AMQPExchange string

	UserSyncURL   string
	UserSyncToken string

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
	ArchiveInterval   time.Duration
	RegisterRateLimit int
}

// LoadEnv reads a .env file if one exists. A missing file is not an error.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("⚠️  No .env file found, reading environment variables directly")
	}
}

// Load builds a Config from the environment. It does not validate; call Validate.
func Load() *Config {
	LoadEnv()

	return &Config{
		Port:           GetEnv("PORT", "5200"),
		Env:            GetEnv("APP_ENV", "development"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AppURL:         strings.TrimRight(os.Getenv("APP_URL"), "/"),
		AllowedOrigins: splitList(GetEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		PaymentProvider: strings.ToLower(GetEnv("PAYMENT_PROVIDER", ProviderIpaymu)),
		Ipaymu: IpaymuConfig{
			BaseURL:      strings.TrimRight(GetEnv("IPAYMU_BASE_URL", defaultIpaymuBaseURL), "/"),
			APIKey:       os.Getenv("IPAYMU_API_KEY"),
			MerchantCode: os.Getenv("IPAYMU_MERCHANT_CODE"),
		},
		Midtrans: MidtransConfig{
			ServerKey:  os.Getenv("MIDTRANS_SERVER_KEY"),
			Production: getBool("MIDTRANS_PRODUCTION", false),
		},

		Storage: StorageConfig{
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Region:          GetEnv("S3_REGION", "auto"),
			Bucket:          os.Getenv("S3_BUCKET"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL:   strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		},

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: GetEnv("AMQP_EXCHANGE", "registrations"),

		UserSyncURL:   os.Getenv("USER_SYNC_URL"),
		UserSyncToken: os.Getenv("USER_SYNC_TOKEN"),

		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileGrace:    getDuration("RECONCILE_GRACE", 15*time.Minute),
		ArchiveInterval:   getDuration("ARCHIVE_INTERVAL", time.Hour),
		RegisterRateLimit: getInt("REGISTER_RATE_LIMIT", 10),
	}
}

// Validate reports every missing or invalid setting at once so startup fails fast
// with a complete list.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AppURL == "" {
		missing = append(missing, "APP_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	var errs []error
	switch c.PaymentProvider {
	case ProviderIpaymu:
		if c.Ipaymu.APIKey == "" {
			missing = append(missing, "IPAYMU_API_KEY")
		}
		if c.Ipaymu.MerchantCode == "" {
			missing = append(missing, "IPAYMU_MERCHANT_CODE")
		}
	case ProviderMidtrans:
		if c.Midtrans.ServerKey == "" {
			missing = append(missing, "MIDTRANS_SERVER_KEY")
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported PAYMENT_PROVIDER %q", c.PaymentProvider))
	}

	if c.Storage.Enabled() && (c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "") {
		missing = append(missing, "S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY")
	}

	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// GetEnv returns the value of key, or the first fallback when it is unset.
func GetEnv(key string, fallback ...string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
