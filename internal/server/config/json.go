package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/filex"
	"github.com/dmitrijs2005/brainbox/internal/flagx"
	"github.com/dmitrijs2005/brainbox/internal/timex"
)

// TTL is a token lifetime in a JSON file. A bare number means minutes, like
// the -t and -r flags; a string is parsed by time.ParseDuration.
type TTL struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *TTL) UnmarshalJSON(b []byte) error {
	var minutes float64
	if err := json.Unmarshal(b, &minutes); err == nil {
		d.Duration = time.Duration(minutes * float64(time.Minute))
		return nil
	}

	var v timex.Duration
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	d.Duration = v.Duration
	return nil
}

// JsonConfig is the on-disk shape of the configuration file. Token TTLs
// are TTL values; cleanup_interval accepts "1h" or integer nanoseconds.
// Pointer fields distinguish "absent" from a zero value so a file may set
// only a subset.
type JsonConfig struct {
	Address                      *string         `json:"address"`
	CertFile                     *string         `json:"cert_file"`
	KeyFile                      *string         `json:"key_file"`
	DatabaseDriver               *string         `json:"database_driver"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	Username                     *string         `json:"username"`
	HashedPassword               *string         `json:"hashed_password"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *TTL            `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *TTL            `json:"refresh_token_validity_duration"`
	RotateRefreshTokens          *bool           `json:"rotate_refresh_tokens"`
	CookieSecure                 *bool           `json:"cookie_secure"`
	CookieSameSite               *string         `json:"cookie_samesite"`
	CookiePath                   *string         `json:"cookie_path"`
	CleanupInterval              *timex.Duration `json:"cleanup_interval"`
	LogLevel                     *string         `json:"log_level"`
}

// ConfigFileName is looked up in the working directory and then in
// $XDG_CONFIG_HOME/brain_box when no -c/-config flag is given.
const ConfigFileName = "brain_box.json"

// defaultConfigFiles lists the fallback locations, highest priority first.
func defaultConfigFiles() []string {
	return []string{
		ConfigFileName,
		filepath.Join(filex.ConfigHome(), "brain_box", ConfigFileName),
	}
}

// parseJson overlays a JSON file onto config. The file named by -c/-config
// must exist; without the flag the first existing default location is used,
// and none at all is fine.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		path = firstExisting(defaultConfigFiles())
	}
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.Address, c.Address)
	setString(&config.CertFile, c.CertFile)
	setString(&config.KeyFile, c.KeyFile)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.Username, c.Username)
	setString(&config.HashedPassword, c.HashedPassword)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.CookieSameSite, c.CookieSameSite)
	setString(&config.CookiePath, c.CookiePath)
	setString(&config.LogLevel, c.LogLevel)
	setTTL(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setTTL(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.CleanupInterval, c.CleanupInterval)
	if c.RotateRefreshTokens != nil {
		config.RotateRefreshTokens = *c.RotateRefreshTokens
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}

	return nil
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}

func setTTL(dst *time.Duration, v *TTL) {
	if v != nil {
		*dst = v.Duration
	}
}
