package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/proactor/internal/telemetry"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("profile_type", func(fl validator.FieldLevel) bool {
			return telemetry.ValidProfileType(fl.Field().String())
		})
		_ = validate.RegisterValidation("chunk_size", func(fl validator.FieldLevel) bool {
			return fl.Field().Int()%3 == 0
		})
	})
	return validate
}

// Validate checks struct tags and cross-field rules. Field errors are
// reported as "Namespace: failed 'tag' validation" so the offending key
// and rule are both visible.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msg := fmt.Sprintf("%s: failed '%s' validation", fe.Namespace(), fe.Tag())
			if fe.Param() != "" {
				msg += fmt.Sprintf(" (%s=%s)", fe.Tag(), fe.Param())
			}
			msgs = append(msgs, msg)
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	if cfg.Files.Enabled && cfg.Files.Root == "" {
		return errors.New("files.root is required when the file server is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}
	if cfg.Chat.Enabled && cfg.Files.Enabled && cfg.Chat.Port != 0 &&
		cfg.Chat.Port == cfg.Files.Port && cfg.Chat.BindAddress == cfg.Files.BindAddress {
		return fmt.Errorf("chat and files servers cannot share port %d", cfg.Chat.Port)
	}
	return nil
}
