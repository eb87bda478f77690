package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var policyPattern = regexp.MustCompile(
	`^(greedy|greedy-k[1-9][0-9]*|greedy-s2r|multistream-g[1-9][0-9]*)$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	err := v.RegisterValidation("gcpolicy", func(fl validator.FieldLevel) bool {
		return policyPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}

	return v
}

// Validate checks field ranges and the relations between device sizes.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}

		return err
	}

	d := cfg.Device

	if d.EraseSize < d.PageSize {
		return fmt.Errorf("erase size %s is smaller than page size %s",
			d.EraseSize, d.PageSize)
	}

	if d.EraseSize%d.PageSize != 0 {
		return fmt.Errorf("erase size %s is not a multiple of page size %s",
			d.EraseSize, d.PageSize)
	}

	if d.Capacity < d.EraseSize {
		return fmt.Errorf("capacity %s is smaller than one erase block",
			d.Capacity)
	}

	return nil
}

func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))

	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (value %v)",
			strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Value()))
	}

	return errors.New(strings.Join(msgs, "; "))
}
