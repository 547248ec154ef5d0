package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver          string
	DBUser            string
	DBPassword        string
	DBName            string
	DBHost            string
	DBPort            string
	SQLitePath        string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	BotToken          string
	BotUsername       string
	GroupID           int64
	GroupLink         string
	AdminID           int64
	AdminContact      string
	HTTPAddr          string
	AdminAllowedCIDRs []string
	MembershipTimeout time.Duration
	NotifyTimeout     time.Duration
	LockTimeout       time.Duration
	SessionTTL        time.Duration
	ReportCron        string
	LogLevel          string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBDriver:          getEnv("DB_DRIVER", "postgres"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "referral_bot"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		SQLitePath:        getEnv("SQLITE_PATH", "referral_bot.db"),
		RedisHost:         getEnv("REDIS_HOST", ""),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername:       getEnv("BOT_USERNAME", ""),
		GroupID:           getInt64("GROUP_ID", 0),
		GroupLink:         getEnv("GROUP_LINK", ""),
		AdminID:           getInt64("ADMIN_ID", 0),
		AdminContact:      getEnv("ADMIN_CONTACT", "@admin"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		AdminAllowedCIDRs: getList("ADMIN_ALLOWED_CIDRS", []string{"127.0.0.0/8", "::1/128"}),
		MembershipTimeout: getDuration("MEMBERSHIP_TIMEOUT", 5*time.Second),
		NotifyTimeout:     getDuration("NOTIFY_TIMEOUT", 5*time.Second),
		LockTimeout:       getDuration("LOCK_TIMEOUT", 10*time.Second),
		SessionTTL:        getDuration("SESSION_TTL", 0),
		ReportCron:        getEnv("REPORT_CRON", "0 9 * * *"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// RedisEnabled reports whether a redis host was configured. Without one the
// bot runs with in-process locks and sessions.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
