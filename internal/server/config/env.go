package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/brainbox/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable the server reads.
const EnvPrefix = "BRAINBOX_"

const defaultEnvFile = ".env"

// parseEnv overlays BRAINBOX_* variables onto config. Values come from the
// process environment and from a dotenv file (-env, default ./.env); the
// process environment wins. A missing default file is not an error.
func parseEnv(config *Config, args []string) error {
	path := flagx.EnvFile(args)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read env file: %w", err)
		}
		vars = map[string]string{}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	if err := env.ParseWithOptions(config, env.Options{
		Prefix:      EnvPrefix,
		Environment: vars,
	}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
