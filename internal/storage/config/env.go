package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the configuration file.
const (
	EnvListen   = "GRIDPOWER_LISTEN"
	EnvPort     = "PORT"
	EnvLogLevel = "GRIDPOWER_LOG_LEVEL"
)

// LoadDotEnv loads variables from the given .env files (".env" if none) into
// the process environment. Missing files are ignored; variables already set
// are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv applies environment overrides. GRIDPOWER_LISTEN wins over PORT.
func (c *Config) ApplyEnv() {
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		c.Server.Listen = ":" + port
	}
	if listen := strings.TrimSpace(os.Getenv(EnvListen)); listen != "" {
		c.Server.Listen = listen
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Logging.Level = level
	}
}
