package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field maps to
// one environment variable. Required values are enforced by must();
// operational knobs fall back to defaults.
type Config struct {
	Env        string // application environment (e.g. "dev", "prod")
	Port       string // HTTP port to listen on
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	JWTSecret  string // secret used to sign JWTs
	AccessTTL  int    // access token time-to-live in minutes
	BcryptCost int    // bcrypt cost for password hashing

	BusURL        string // AMQP broker URL for the device bus
	CommandTopic  string // queue carrying server -> device frames
	ResponseTopic string // queue carrying device -> server frames

	SignupBonusHours int64         // validated credit-hours granted at registration
	WeeklyGrantHours int64         // validated credit-hours granted per replenishment
	OverdueSweep     time.Duration // interval between overdue sweeps
	ReplenishEvery   time.Duration // interval between credit replenishments
}

// Load reads configuration from environment variables. Missing
// required variables abort startup with a fatal log message.
func Load() Config {
	return Config{
		Env:        must("APP_ENV"),
		Port:       must("APP_PORT"),
		DBUser:     must("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"), // empty allowed
		DBHost:     must("DB_HOST"),
		DBPort:     must("DB_PORT"),
		DBName:     must("DB_NAME"),
		JWTSecret:  must("JWT_SECRET"),
		AccessTTL:  mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost: mustInt("BCRYPT_COST"),

		BusURL:        must("BUS_URL"),
		CommandTopic:  envStr("BUS_COMMAND_TOPIC", "locker.commands"),
		ResponseTopic: envStr("BUS_RESPONSE_TOPIC", "locker.responses"),

		SignupBonusHours: int64(envInt("SIGNUP_BONUS_HOURS", 24)),
		WeeklyGrantHours: int64(envInt("WEEKLY_GRANT_HOURS", 3)),
		OverdueSweep:     envDur("OVERDUE_SWEEP_INTERVAL", time.Hour),
		ReplenishEvery:   envDur("REPLENISH_INTERVAL", 7*24*time.Hour),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value to an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
