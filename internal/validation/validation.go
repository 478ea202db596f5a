// Package validation checks request structs with go-playground/validator
// and reports failures as typed validation errors naming the fields.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/lifecycle"
	"ms-qrinventory/internal/phone"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterValidation("phone_in", func(fl validator.FieldLevel) bool {
		_, ok := phone.Normalize(fl.Field().String())
		return ok
	})
	v.RegisterValidation("serial", func(fl validator.FieldLevel) bool {
		return lifecycle.ValidateSerial(fl.Field().String()) == nil
	})
	return v
}

// Struct validates s. A missing required field wins over other failures.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.CodeValidation, apperr.ReasonInvalidField, err, "invalid request")
	}

	reason := apperr.ReasonInvalidField
	fields := make([]string, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
		msgs = append(msgs, describe(fe))
		if fe.Tag() == "required" {
			reason = apperr.ReasonMissingField
		}
	}
	return apperr.Validation(reason, strings.Join(msgs, "; ")).WithIDs(fields...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "phone_in":
		return fmt.Sprintf("%s must be a 10 digit mobile number", fe.Field())
	case "serial":
		return fmt.Sprintf("%s must be a serial like QR0000000000", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
