package config

import "github.com/go-playground/validator/v10"

var structValidate *validator.Validate

func init() {
	structValidate = validator.New()
}

// Validate checks a Config against its struct tags (required fields,
// oneof enums, numeric ranges) and returns the first validation failure
// wrapped with field context.
func Validate(cfg *Config) error {
	if err := structValidate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Store.Enabled {
		if err := cfg.Store.Validate(); err != nil {
			return err
		}
	}
	return nil
}
