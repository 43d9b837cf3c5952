package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	register := func(tag string, ok func(string) bool) {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return ok(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	register("complaint_id", ValidComplaintID)
	register("category", func(s string) bool { return Category(s).Valid() })
	register("severity", func(s string) bool { return Severity(s).Valid() })
	register("status", func(s string) bool { return Status(s).Valid() })
	register("frequency", func(s string) bool { return Frequency(s).Valid() })
	register("root_cause", func(s string) bool { return RootCause(s).Valid() })
	register("routing_target", func(s string) bool { return RoutingTarget(s).Valid() })
	return v
}

// ValidateDraft checks that intake produced something the pipeline can
// structure: the three narrative pillars are present (possibly as fallbacks)
// and every optional field is well formed.
func ValidateDraft(d Draft) error {
	if err := validate.Struct(d); err != nil {
		return toValidationError(err)
	}
	for _, v := range []struct{ field, value string }{
		{"user_intent", d.UserIntent},
		{"observed_outcome", d.ObservedOutcome},
		{"expected_outcome", d.ExpectedOutcome},
	} {
		if strings.TrimSpace(v.value) == "" {
			return &ValidationError{Field: v.field, Reason: "required"}
		}
	}
	return nil
}

// ValidateComplaint checks a record before it is persisted.
func ValidateComplaint(c Complaint) error {
	if err := validate.Struct(c); err != nil {
		return toValidationError(err)
	}
	for _, id := range c.RelatedComplaints {
		if id == c.ID {
			return &ValidationError{Field: "related_complaints", Reason: "must not reference the record itself"}
		}
	}
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fieldName(fe.Namespace()), Reason: fe.Tag()}
	}
	return &ValidationError{Reason: err.Error()}
}

// fieldName turns "Complaint.SecondaryCategories[2]" into "SecondaryCategories[2]".
func fieldName(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
