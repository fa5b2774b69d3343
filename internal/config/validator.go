package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateWeather(cfg.Weather); err != nil {
		errors = append(errors, err)
	}

	if err := validateOrchestrator(cfg.Orchestrator); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "postgres host is required",
		}
	}

	if cfg.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "mongodb uri is required for delivery logs",
		}
	}

	return nil
}

func validateWeather(cfg WeatherConfig) error {
	if len(cfg.Providers) == 0 {
		return &ValidationError{
			Field:   "weather.providers",
			Message: "at least one weather provider is required",
		}
	}

	for i, p := range cfg.Providers {
		if p.URL == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("weather.providers[%d].url", i),
				Message: "provider url is required",
			}
		}
	}

	if cfg.PollSchedule != "" {
		if err := validateCronSpec(cfg.PollSchedule); err != nil {
			return &ValidationError{
				Field:   "weather.poll_schedule",
				Message: err.Error(),
			}
		}
	}

	return nil
}

func validateOrchestrator(cfg OrchestratorConfig) error {
	if cfg.CycleSchedule != "" {
		if err := validateCronSpec(cfg.CycleSchedule); err != nil {
			return &ValidationError{
				Field:   "orchestrator.cycle_schedule",
				Message: err.Error(),
			}
		}
	}
	return nil
}

func validateCronSpec(spec string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}
