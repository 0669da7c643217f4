package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds application configuration values.
type Config struct {
	Secret        string
	HTTPPort      string
	DBDriver      string
	DatabaseDSN   string
	DBTimeout     time.Duration
	LogLevel      string
	Location      *time.Location
	VATRate       decimal.Decimal
	InvoicePrefix string
	POPrefix      string

	LowStockThreshold int64
	ExpiryWarningDays int

	AdminUsername string
	AdminPassword string
	SeedCSV       string

	// CORSOrigins is the comma separated CORS_ORIGINS list, "*" when unset.
	CORSOrigins []string
}

// Load reads configuration from environment variables with reasonable defaults.
// Only a VAT rate that cannot be honoured is reported as an error; other bad
// values fall back to their defaults.
func Load() (Config, error) {
	cfg := Config{
		Secret:            getenv("SECRET", "dev_secret"),
		HTTPPort:          getenv("HTTP_PORT", "8080"),
		DBDriver:          getenv("DB_DRIVER", DriverSQLite),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		InvoicePrefix:     getenv("INVOICE_PREFIX", "INV"),
		POPrefix:          getenv("PURCHASE_ORDER_PREFIX", "PO"),
		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		SeedCSV:           os.Getenv("SEED_CSV"),
		DBTimeout:         5 * time.Second,
		LowStockThreshold: 10,
		ExpiryWarningDays: 90,
		Location:          time.Local,
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", cfg.HTTPPort)
		cfg.HTTPPort = "8080"
	}

	if cfg.DBDriver != DriverSQLite && cfg.DBDriver != DriverPostgres {
		log.Printf("unsupported DB_DRIVER %q, defaulting to %s", cfg.DBDriver, DriverSQLite)
		cfg.DBDriver = DriverSQLite
	}

	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = defaultDSN(cfg.DBDriver)
	}

	if raw := os.Getenv("DB_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			log.Printf("invalid DB_TIMEOUT value %q, defaulting to %s", raw, cfg.DBTimeout)
		} else {
			cfg.DBTimeout = d
		}
	}

	if raw := os.Getenv("LOW_STOCK_THRESHOLD"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			log.Printf("invalid LOW_STOCK_THRESHOLD value %q, defaulting to %d", raw, cfg.LowStockThreshold)
		} else {
			cfg.LowStockThreshold = n
		}
	}

	if raw := os.Getenv("EXPIRY_WARNING_DAYS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Printf("invalid EXPIRY_WARNING_DAYS value %q, defaulting to %d", raw, cfg.ExpiryWarningDays)
		} else {
			cfg.ExpiryWarningDays = n
		}
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			log.Printf("invalid TIMEZONE value %q, using local time", tz)
		} else {
			cfg.Location = loc
		}
	}

	cfg.CORSOrigins = splitList(getenv("CORS_ORIGINS", "*"))

	rate, err := ParseVATRate(getenv("VAT_RATE", "0.15"))
	if err != nil {
		return Config{}, err
	}
	cfg.VATRate = rate

	return cfg, nil
}

// ParseVATRate parses a fractional VAT rate such as "0.15" and checks it lies in [0,1].
func ParseVATRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid VAT_RATE %q: %w", raw, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("invalid VAT_RATE %q: must be between 0 and 1", raw)
	}
	return rate, nil
}

func defaultDSN(driver string) string {
	if driver == DriverSQLite {
		return "file:pharmacy.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	host := getenv("DB_HOST", "localhost")
	user := getenv("DB_USER", "postgres")
	port := getenv("DB_PORT", "5432")
	name := getenv("DB_NAME", "pharmacy")
	password := os.Getenv("DB_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
