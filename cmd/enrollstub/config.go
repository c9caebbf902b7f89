package main

import "os"

// Config holds the stub's runtime settings. Env vars override defaults.
type Config struct {
	ListenAddr   string
	TokenSecret  string
	RequireToken bool
	LogLevel     string
}

func defaultConfig() Config {
	return Config{
		ListenAddr:  ":4600",
		TokenSecret: "enrollstub-dev-secret",
		LogLevel:    "info",
	}
}

func loadConfig() Config {
	cfg := defaultConfig()
	if v := os.Getenv("ENROLLSTUB_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ENROLLSTUB_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("ENROLLSTUB_REQUIRE_TOKEN"); v != "" {
		cfg.RequireToken = v == "true" || v == "1"
	}
	if v := os.Getenv("ENROLLSTUB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}
