package jobs

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"docintake/common"
	"docintake/types"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest returns a *common.ValidationError naming every offending
// field, or nil.
func ValidateRequest(req types.JobRequest) error {
	ve := &common.ValidationError{}

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate job request: %w", err)
		}
		for _, fe := range fieldErrs {
			ve.Add(fe.Field(), fieldMessage(fe))
		}
	}

	if req.OwnerID != "" && strings.TrimSpace(req.OwnerID) == "" {
		ve.Add("ownerId", "is required")
	}
	if strings.TrimSpace(req.DocumentID) == "" && strings.TrimSpace(req.FileURL) == "" {
		ve.Add("documentId", "either documentId or fileUrl is required")
	}
	return ve.OrNil()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}
