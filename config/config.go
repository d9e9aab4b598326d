package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"docrelay/internal/presence"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Database struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN prefers the full URL and falls back to the discrete fields.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Host == "" || d.Name == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	if d.Port != "" {
		u.Host = d.Host + ":" + d.Port
	}
	return u.String()
}

type Config struct {
	Env             string        `yaml:"env"`
	HTTPAddr        string        `yaml:"httpAddr"`
	StoreDriver     string        `yaml:"storeDriver"`
	Database        Database      `yaml:"database"`
	RedisURL        string        `yaml:"redisUrl"`
	StoreTimeout    time.Duration `yaml:"storeTimeout"`
	Palette         []string      `yaml:"palette"`
	CORSAllow       []string      `yaml:"corsAllow"`
	JWTSecret       string        `yaml:"jwtSecret"`
	LogLevel        string        `yaml:"logLevel"`
	SendBuffer      int           `yaml:"sendBuffer"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
}

func Default() Config {
	return Config{
		Env:             "prod",
		HTTPAddr:        ":8080",
		StoreDriver:     DriverPostgres,
		Database:        Database{SSLMode: "require"},
		StoreTimeout:    5 * time.Second,
		Palette:         append([]string(nil), presence.DefaultPalette...),
		CORSAllow:       []string{"*"},
		LogLevel:        "info",
		SendBuffer:      256,
		MaxMessageBytes: 1 << 20,
	}
}

// Load reads an optional .env, then the YAML file named by CONFIG_PATH, then
// environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv("CONFIG_PATH"), os.LookupEnv)
}

func LoadFrom(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitCSV(v)
		}
	}

	str("APP_ENV", &c.Env)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("STORE_DRIVER", &c.StoreDriver)
	str("DATABASE_URL", &c.Database.URL)
	str("user", &c.Database.User)
	str("password", &c.Database.Password)
	str("host", &c.Database.Host)
	str("port", &c.Database.Port)
	str("dbname", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)
	str("REDIS_URL", &c.RedisURL)
	str("JWT_SECRET", &c.JWTSecret)
	str("LOG_LEVEL", &c.LogLevel)
	list("COLOR_PALETTE", &c.Palette)
	list("CORS_ALLOW", &c.CORSAllow)

	if v, ok := lookup("STORE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORE_TIMEOUT: %w", err)
		}
		c.StoreTimeout = d
	}
	if v, ok := lookup("SEND_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SEND_BUFFER: %w", err)
		}
		c.SendBuffer = n
	}
	if v, ok := lookup("MAX_MESSAGE_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_MESSAGE_BYTES: %w", err)
		}
		c.MaxMessageBytes = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN() == "" {
			return errors.New("database url or host and dbname are required")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if len(c.Palette) == 0 {
		return errors.New("color palette must not be empty")
	}
	if c.SendBuffer <= 0 {
		return errors.New("send buffer must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return errors.New("max message bytes must be positive")
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
