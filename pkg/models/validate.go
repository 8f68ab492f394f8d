package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRecord is returned by the Validate methods.
var ErrInvalidRecord = errors.New("invalid record")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a party before it is stored: a name, the field
// constraints and a known payment method.
func (p TradeParty) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is missing")
	}
	problems = append(problems, fieldProblems(p)...)
	if _, ok := FindPaymentMethod(p.PreferredPaymentMethod); !ok {
		problems = append(problems, fmt.Sprintf("unknown payment method %d", p.PreferredPaymentMethod))
	}
	return recordError(p.Name, problems)
}

// Validate checks a product before it is stored: a name, the field
// constraints, known unit and tax category codes and the exemption reason
// its category requires at 0 %.
func (p Product) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is missing")
	}
	problems = append(problems, fieldProblems(p)...)
	if _, ok := FindUnit(p.Unit); !ok {
		problems = append(problems, fmt.Sprintf("unknown unit %q", p.Unit))
	}
	if _, ok := FindTaxCategory(p.TaxCategory); !ok {
		problems = append(problems, fmt.Sprintf("unknown tax category %q", p.TaxCategory))
	}
	if p.MissingExemptionReason() {
		problems = append(problems, fmt.Sprintf("tax category %s at 0 %% needs a taxExemptionReason", p.TaxCategory))
	}
	return recordError(p.Name, problems)
}

func fieldProblems(v interface{}) []string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s must be %s %s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			problems = append(problems, fmt.Sprintf("%s fails %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return problems
}

func recordError(name string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidRecord, name, strings.Join(problems, "; "))
}
