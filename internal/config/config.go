// Package config provides functionality for managing configuration options
// for the application using a config file, command-line flags and
// environment variables, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `yaml:"server_address" json:"server_address"`

	// ResultHostname is the base URL used for result links.
	ResultHostname string `yaml:"base_url" json:"base_url"`

	// FilePath is the SQLite database file. Ignored when DatabaseDSN is set.
	FilePath string `yaml:"file_storage_path" json:"file_storage_path"`

	// DatabaseDSN is the Postgres connection string.
	DatabaseDSN string `yaml:"database_dsn" json:"database_dsn"`

	// RedisAddr enables the lookup cache when set.
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisCacheTTL time.Duration `yaml:"redis_cache_ttl" json:"redis_cache_ttl"`

	GRPCAddress string `yaml:"grpc_address" json:"grpc_address"`

	// JWTSecret signs user and admin tokens. There is no default; see Validate.
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`

	// TrustedSubnet is the CIDR allowed to read /metrics. Empty denies everyone.
	TrustedSubnet string `yaml:"trusted_subnet" json:"trusted_subnet"`

	GeoEndpoint string        `yaml:"geo_endpoint" json:"geo_endpoint"`
	GeoTimeout  time.Duration `yaml:"geo_timeout" json:"geo_timeout"`

	ClickQueueSize     int           `yaml:"click_queue_size" json:"click_queue_size"`
	ClickBatchSize     int           `yaml:"click_batch_size" json:"click_batch_size"`
	ClickFlushInterval time.Duration `yaml:"click_flush_interval" json:"click_flush_interval"`

	CodeLength  int `yaml:"code_length" json:"code_length"`
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// EnablePprof indicates whether to enable pprof for performance profiling.
	EnablePprof bool `yaml:"enable_pprof" json:"enable_pprof"`

	// EnableHTTPS indicates whether to enable https.
	EnableHTTPS bool `yaml:"enable_https" json:"enable_https"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Config is the path of the YAML or JSON config file.
	Config string `yaml:"-" json:"-"`
}

// ErrNoJWTSecret is returned by Validate when no signing secret is configured.
var ErrNoJWTSecret = errors.New("jwt secret is not set (use -k or JWT_SECRET)")

func defaults() *Options {
	return &Options{
		Port:               "localhost:8080",
		ResultHostname:     "http://localhost:8080",
		GRPCAddress:        ":3200",
		RedisCacheTTL:      time.Hour,
		GeoEndpoint:        "http://ip-api.com/json",
		GeoTimeout:         2 * time.Second,
		ClickQueueSize:     1024,
		ClickBatchSize:     25,
		ClickFlushInterval: 2 * time.Second,
		CodeLength:         6,
		MaxAttempts:        10,
		LogLevel:           "info",
	}
}

// Parse reads os.Args and the process environment.
func Parse() (*Options, error) {
	return ParseArgs(os.Args[1:], os.Getenv)
}

// ParseArgs builds Options from args and getenv.
func ParseArgs(args []string, getenv func(string) string) (*Options, error) {
	options := defaults()

	options.Config = configPath(args)
	if env := getenv("CONFIG"); env != "" {
		options.Config = env
	}

	if options.Config != "" {
		if err := loadFile(options.Config, options); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("shortener", flag.ContinueOnError)
	fs.StringVar(&options.Config, "c", options.Config, "path to config file")
	fs.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	fs.StringVar(&options.ResultHostname, "b", options.ResultHostname, "result base url")
	fs.StringVar(&options.FilePath, "f", options.FilePath, "path to sqlite database file")
	fs.StringVar(&options.DatabaseDSN, "d", options.DatabaseDSN, "postgres dsn")
	fs.StringVar(&options.RedisAddr, "r", options.RedisAddr, "redis address for the lookup cache")
	fs.StringVar(&options.GRPCAddress, "g", options.GRPCAddress, "grpc listen address")
	fs.StringVar(&options.JWTSecret, "k", options.JWTSecret, "jwt signing secret")
	fs.StringVar(&options.TrustedSubnet, "t", options.TrustedSubnet, "trusted subnet (CIDR) for /metrics")
	fs.StringVar(&options.LogLevel, "l", options.LogLevel, "log level")
	fs.BoolVar(&options.EnablePprof, "p", options.EnablePprof, "enable pprof")
	fs.BoolVar(&options.EnableHTTPS, "s", options.EnableHTTPS, "enable https")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := applyEnv(options, getenv); err != nil {
		return nil, err
	}

	return options, nil
}

// Validate checks the options the server cannot run without.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.JWTSecret) == "" {
		return ErrNoJWTSecret
	}
	return nil
}

// configPath finds -c before the flag set exists, so the file can seed flag defaults.
func configPath(args []string) string {
	for i, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if v, ok := strings.CutPrefix(name, "c="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if (name == "c" || name == "config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// loadFile decodes YAML into options. JSON files work too.
func loadFile(path string, options *Options) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, options); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

func applyEnv(o *Options, getenv func(string) string) error {
	strs := map[string]*string{
		"SERVER_ADDRESS":    &o.Port,
		"BASE_URL":          &o.ResultHostname,
		"FILE_STORAGE_PATH": &o.FilePath,
		"DATABASE_DSN":      &o.DatabaseDSN,
		"REDIS_ADDR":        &o.RedisAddr,
		"REDIS_PASSWORD":    &o.RedisPassword,
		"GRPC_ADDRESS":      &o.GRPCAddress,
		"JWT_SECRET":        &o.JWTSecret,
		"TRUSTED_SUBNET":    &o.TrustedSubnet,
		"GEO_ENDPOINT":      &o.GeoEndpoint,
		"LOG_LEVEL":         &o.LogLevel,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"ENABLE_PPROF": &o.EnablePprof,
		"ENABLE_HTTPS": &o.EnableHTTPS,
	}
	for key, dst := range bools {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"CLICK_QUEUE_SIZE": &o.ClickQueueSize,
		"CLICK_BATCH_SIZE": &o.ClickBatchSize,
		"CODE_LENGTH":      &o.CodeLength,
		"MAX_ATTEMPTS":     &o.MaxAttempts,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"REDIS_CACHE_TTL":      &o.RedisCacheTTL,
		"GEO_TIMEOUT":          &o.GeoTimeout,
		"CLICK_FLUSH_INTERVAL": &o.ClickFlushInterval,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	return nil
}
