package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	GGSalesBaseURL         string
	GGSalesUser            string
	Timezone               string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ReportCacheTTLSeconds  int
	AuthSecret             string
	AccessTokenTTLMinutes  int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reportTTL, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "60"))
	if err != nil || reportTTL < 1 {
		reportTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SupabaseURL:            strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		SupabaseServiceRoleKey: strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
		GGSalesBaseURL:         strings.TrimSpace(os.Getenv("GG_SALES_BASE_URL")),
		GGSalesUser:            strings.TrimSpace(os.Getenv("GG_SALES_USER")),
		Timezone:               getEnv("TIMEZONE", "Asia/Manila"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		ReportCacheTTLSeconds:  reportTTL,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
	}

	return cfg
}

// Validate checks the settings without which the server cannot do its job.
// The database settings are optional: with neither SUPABASE_URL nor
// DATABASE_URL set the server runs on the seeded in-memory backend.
func (c Config) Validate() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if c.GGSalesBaseURL == "" {
		return fmt.Errorf("GG_SALES_BASE_URL must be set")
	}
	if c.GGSalesUser == "" {
		return fmt.Errorf("GG_SALES_USER must be set")
	}
	if c.SupabaseURL != "" && c.SupabaseServiceRoleKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY must be set when SUPABASE_URL is set")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
