package domain

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
	"github.com/kapu/ai-hair-salon-go/pkg/errors"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Demographics is the client context captured alongside the photo. A session
// keeps its own copy once a transform starts.
type Demographics struct {
	Age        int    `json:"age" validate:"required,min=5,max=100"`
	Gender     Gender `json:"gender" validate:"required,oneof=male female other"`
	Profession string `json:"profession" validate:"required"`
}

var demographicsValidator = validator.New(validator.WithRequiredStructEnabled())

func (d Demographics) Normalize() Demographics {
	d.Gender = Gender(strings.ToLower(strings.TrimSpace(string(d.Gender))))
	d.Profession = strings.TrimSpace(d.Profession)
	return d
}

// Validate reports the first offending field as a ValidationError.
func (d Demographics) Validate() error {
	err := demographicsValidator.Struct(d.Normalize())
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.NewValidationError("invalid demographics", "demographics", nil)
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "Age":
		if fe.Tag() == "required" {
			return errors.NewValidationError("Please fill in all fields: Age, Gender, and Profession", "age", d.Age)
		}
		return errors.NewValidationError(
			fmt.Sprintf("Please enter a valid age between %d and %d", constants.DemographicLimits.MinAge, constants.DemographicLimits.MaxAge),
			"age", d.Age,
		)
	case "Gender":
		if fe.Tag() == "required" {
			return errors.NewValidationError("Please fill in all fields: Age, Gender, and Profession", "gender", d.Gender)
		}
		return errors.NewValidationError("Please select a valid gender", "gender", d.Gender)
	default:
		return errors.NewValidationError("Please fill in all fields: Age, Gender, and Profession", "profession", d.Profession)
	}
}

// Title is the possessive heading used on reports ("Female's Protocol").
func (d Demographics) Title() string {
	g := string(d.Normalize().Gender)
	if g == "" {
		return "Client"
	}
	return strings.ToUpper(g[:1]) + g[1:]
}
