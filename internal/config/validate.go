package config

import "fmt"

// Validate checks the recognized-option constraints from spec §6: port
// ranges, a known auth algorithm with matching key material, and sane
// storage thresholds.
func Validate(c *Config) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Auth.Algorithm {
	case AuthHS256:
		if c.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is required for algorithm hs256")
		}
	case AuthRS256:
		if c.Auth.PublicKeyPEM == "" && c.Auth.JWKSURL == "" {
			return fmt.Errorf("auth.public_key_pem or auth.jwks_url is required for algorithm rs256")
		}
	default:
		return fmt.Errorf("auth.algorithm must be hs256 or rs256, got %q", c.Auth.Algorithm)
	}
	if c.MediaMTX.BaseURL == "" {
		return fmt.Errorf("mediamtx.base_url is required")
	}
	if c.Storage.WarnPercent <= 0 || c.Storage.WarnPercent >= 100 {
		return fmt.Errorf("storage.warn_percent must be in (0,100): %d", c.Storage.WarnPercent)
	}
	if c.Storage.BlockPercent <= c.Storage.WarnPercent || c.Storage.BlockPercent > 100 {
		return fmt.Errorf("storage.block_percent must be greater than warn_percent and at most 100: %d", c.Storage.BlockPercent)
	}
	return nil
}
