// Package query contains read operations (CQRS - Queries) over cohort
// attendance: read models, completion reports and exports.
package query

import (
	"github.com/go-playground/validator/v10"

	"github.com/M-RBR/codac-25-sub000/config"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
)

// Features is the subset of config.FeatureFlags the queries consult.
type Features interface {
	IsEnabled(feature string, ctx *config.FeatureContext) bool
}

type noFeatures struct{}

func (noFeatures) IsEnabled(string, *config.FeatureContext) bool { return false }

var validate = validator.New()

func validateQuery(op string, q any) error {
	if err := validate.Struct(q); err != nil {
		return shared.WrapError("query", op, shared.ErrValidation, "invalid query", err)
	}
	return nil
}
