package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Metrics.Addr != "" && cfg.Metrics.Addr == cfg.Health.Addr {
		return fmt.Errorf("metrics.addr and health.addr must differ (both %q)", cfg.Metrics.Addr)
	}

	if fi, err := os.Stat(cfg.Mount.Mountpoint); err == nil && !fi.IsDir() {
		return fmt.Errorf("mount.mountpoint: %q is not a directory", cfg.Mount.Mountpoint)
	}

	if dir := cfg.Media.TempDir; dir != "" {
		fi, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("media.temp_dir: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("media.temp_dir: %q is not a directory", dir)
		}
	}
	return nil
}

// formatValidationError reports the first failed field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
