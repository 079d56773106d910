package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration for the subscriber daemon.
type CLIConfig struct {
	ConfigPath      string
	Topics          []string
	HostGroupName   string
	UnitName        string
	LogLevel        string
	LogFormat       string
	HealthPort      int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	var topics string

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("ECALSUBD_CONFIG", "configs/subscriber.yaml"),
		"Path to configuration file (env: ECALSUBD_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("ECALSUBD_CONFIG", "configs/subscriber.yaml"),
		"Path to configuration file (env: ECALSUBD_CONFIG)")

	flag.StringVar(&topics, "topics",
		getEnv("ECALSUBD_TOPICS", ""),
		"Comma-separated list of topic names to subscribe to (env: ECALSUBD_TOPICS)")

	flag.StringVar(&cfg.HostGroupName, "host-group",
		getEnv("ECALSUBD_HOST_GROUP", ""),
		"Host group name advertised in registration snapshots (env: ECALSUBD_HOST_GROUP)")

	flag.StringVar(&cfg.UnitName, "unit-name",
		getEnv("ECALSUBD_UNIT_NAME", ""),
		"Process unit name advertised in registration snapshots (env: ECALSUBD_UNIT_NAME)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("ECALSUBD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: ECALSUBD_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("ECALSUBD_LOG_FORMAT", "json"),
		"Log format: json, text (env: ECALSUBD_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("ECALSUBD_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: ECALSUBD_SHUTDOWN_TIMEOUT)")

	flag.IntVar(&cfg.HealthPort, "health-port",
		getEnvInt("ECALSUBD_HEALTH_PORT", 8080),
		"Health check port, 0 to disable (env: ECALSUBD_HEALTH_PORT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	cfg.Topics = splitAndTrim(topics)

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	if len(cfg.Topics) == 0 {
		return fmt.Errorf("at least one topic is required, use -topics or ECALSUBD_TOPICS")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.HealthPort < 0 || cfg.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", cfg.HealthPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - eCAL subscriber data path daemon

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Subscribe to one topic using a config file
  %s --config=configs/subscriber.yaml --topics=vehicle.odometry

  # Subscribe to several topics at once
  %s --topics=vehicle.odometry,vehicle.imu --log-level=debug --log-format=text

  # Validate configuration only
  %s --config=configs/subscriber.yaml --topics=vehicle.odometry --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
