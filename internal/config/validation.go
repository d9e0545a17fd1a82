package config

import (
	"fmt"

	"github.com/darshan-rambhia/goftp"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags, then the cross-field pool rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	p := cfg.Pool
	if p.MaxIdle > p.MaxTotal {
		return fmt.Errorf("pool: max_idle (%d) exceeds max_total (%d)", p.MaxIdle, p.MaxTotal)
	}
	if p.MinIdle > p.MaxIdle {
		return fmt.Errorf("pool: min_idle (%d) exceeds max_idle (%d)", p.MinIdle, p.MaxIdle)
	}

	b := cfg.FTP.Bastion
	if b.Host != "" && b.KeyPath == "" && b.Password == "" {
		return fmt.Errorf("ftp.bastion: key_path or password is required when host is set")
	}

	// Charset names are resolved by the library, so reuse its check.
	if err := (goftp.Config{Host: cfg.FTP.Host, Encoding: cfg.FTP.Encoding}).Validate(); err != nil {
		return fmt.Errorf("ftp: %w", err)
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
