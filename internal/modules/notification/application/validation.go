package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification/domain"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return domain.NotificationType(fl.Field().String()).Valid()
	})
	return v
}

// validationReason reports the first failing field in a readable form.
func validationReason(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "notification_type":
		return fmt.Sprintf("%s %q is not a known notification type", fe.Field(), fe.Value())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
