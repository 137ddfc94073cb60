package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:          "development",
		DBDriver:             DriverSQLite,
		SQLitePath:           "leaveflow.db",
		MaxBodyBytes:         1048576,
		RateLimitPerMinute:   60,
		FiscalYearStartMonth: time.April,
		NotifyQueueSize:      16,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = DriverPostgres }, "DATABASE_URL"},
		{"sqlite without path", func(c *Config) { c.SQLitePath = " " }, "SQLITE_PATH"},
		{"production without secret", func(c *Config) { c.Environment = "production" }, "JWT_SECRET"},
		{"production seeding", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "secret"
			c.RunSeed = true
		}, "RUN_SEED"},
		{"tiny body limit", func(c *Config) { c.MaxBodyBytes = 10 }, "MAX_BODY_BYTES"},
		{"no rate limit", func(c *Config) { c.RateLimitPerMinute = 0 }, "RATE_LIMIT_PER_MINUTE"},
		{"email without host", func(c *Config) { c.EmailEnabled = true }, "SMTP_HOST"},
		{"fiscal month", func(c *Config) { c.FiscalYearStartMonth = 13 }, "FISCAL_YEAR_START_MONTH"},
		{"queue size", func(c *Config) { c.NotifyQueueSize = 0 }, "NOTIFY_QUEUE_SIZE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("FISCAL_YEAR_START_MONTH", "7")
	t.Setenv("LEAVE_SCHEDULER_INTERVAL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RUN_SEED", "not-a-bool")

	cfg := Load()
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.DBDriver)
	}
	if cfg.FiscalYearStartMonth != time.July {
		t.Fatalf("expected July, got %v", cfg.FiscalYearStartMonth)
	}
	if cfg.LeaveSchedulerInterval != 30*time.Minute {
		t.Fatalf("expected 30m interval, got %v", cfg.LeaveSchedulerInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RunSeed {
		t.Fatal("expected malformed bool to fall back to false")
	}
}
