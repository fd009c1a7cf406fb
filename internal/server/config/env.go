package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/profitpal/internal/flagx"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// loadDotenv is a seam for godotenv.Load.
var loadDotenv = godotenv.Load

// parseEnv overlays environment variables on config. A .env file (the path
// from -env-file, or ./.env) is loaded first without overriding variables
// that are already set. Variables that are absent leave the current value
// untouched.
func parseEnv(config *Config) error {
	path := flagx.EnvFile()
	if path == "" {
		if err := loadDotenv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
	} else if err := loadDotenv(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	if err := envconfig.Process("", config); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
