package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/illmade-knight/go-restbridge/pkg/types"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their property (or YAML) key rather than the Go field name.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"prop", "yaml"} {
				if name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]; name != "" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("httpmethod", func(fl validator.FieldLevel) bool {
			_, err := types.ParseMethod(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate checks cfg against its struct tags. Each failing field becomes a
// ConfigurationError naming its property key; several are joined.
func Validate(cfg any) error {
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate configuration: %w", err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, &types.ConfigurationError{
			Key:   propertyKey(fe),
			Value: fmt.Sprintf("%v", fe.Value()),
			Err:   errors.New(describe(fe)),
		})
	}
	return errors.Join(errs...)
}

// propertyKey strips the struct namespace and any dive index: "destination.topics[0]" -> "destination.topics".
func propertyKey(fe validator.FieldError) string {
	key := fe.Field()
	if i := strings.IndexByte(key, '['); i >= 0 {
		key = key[:i]
	}
	return key
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", strings.Replace(fe.Param(), " ", " is ", 1))
	case "url":
		return "must be an absolute URL"
	case "httpmethod":
		return fmt.Sprintf("must be one of %v", types.Methods())
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
