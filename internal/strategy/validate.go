// Package strategy validates strategy definitions and enforces the
// inactive/active lifecycle before any call reaches the backend.
package strategy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
)

// Messages shown for the standard parameters.
const (
	MsgNameRequired      = "Name is required"
	MsgIndicatorRequired = "Indicator is required"
	MsgIntervalRequired  = "Interval is required"
	MsgIndexRequired     = "Index is required"
	MsgMinPrice          = "Min price must be a non-negative number"
	MsgMaxPrice          = "Max price must be a non-negative number"
	MsgPriceOrder        = "Max price must be greater than min price"
	MsgStopLoss          = "Stop loss points must be greater than 0"
	MsgTarget            = "Target points must be greater than 0"
)

// Check returns every problem with def, in form order. spec may be nil when
// the indicator catalogue is unavailable; indicator fields are then not
// checked.
func Check(def models.StrategyUpdate, spec *models.IndicatorSpec) []*apperrors.ValidationError {
	var errs []*apperrors.ValidationError
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, apperrors.NewValidationError(field, value, msg))
	}

	if strings.TrimSpace(def.Name) == "" {
		add("name", def.Name, MsgNameRequired)
	}
	if strings.TrimSpace(def.Indicator) == "" {
		add("indicator", def.Indicator, MsgIndicatorRequired)
	}

	p := def.Parameters
	if p.Text(models.ParamInterval) == "" {
		add(models.ParamInterval, p[models.ParamInterval], MsgIntervalRequired)
	}
	if p.Text(models.ParamIndex) == "" {
		add(models.ParamIndex, p[models.ParamIndex], MsgIndexRequired)
	}

	minPrice, minOK := p.Number(models.ParamMinContractPrice)
	if !minOK || minPrice < 0 {
		add(models.ParamMinContractPrice, p[models.ParamMinContractPrice], MsgMinPrice)
	}
	maxPrice, maxOK := p.Number(models.ParamMaxContractPrice)
	if !maxOK || maxPrice < 0 {
		add(models.ParamMaxContractPrice, p[models.ParamMaxContractPrice], MsgMaxPrice)
	}
	if minOK && maxOK && maxPrice <= minPrice {
		add(models.ParamMaxContractPrice, maxPrice, MsgPriceOrder)
	}

	if p.Bool(models.ParamUseStopLoss) {
		if v, ok := p.Number(models.ParamStopLossPoints); !ok || v <= 0 {
			add(models.ParamStopLossPoints, p[models.ParamStopLossPoints], MsgStopLoss)
		}
		if v, ok := p.Number(models.ParamTargetPoints); !ok || v <= 0 {
			add(models.ParamTargetPoints, p[models.ParamTargetPoints], MsgTarget)
		}
	}

	if spec != nil {
		for _, f := range spec.Fields {
			if err := checkField(f, p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// Validate returns the first problem with def, or nil. Submission must not
// proceed while it is non-nil.
func Validate(def models.StrategyUpdate, spec *models.IndicatorSpec) error {
	if errs := Check(def, spec); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func checkField(f models.ParamField, p models.Params) *apperrors.ValidationError {
	label := f.Label
	if label == "" {
		label = f.Name
	}
	if !p.Present(f.Name) {
		if f.Required {
			return apperrors.NewValidationError(f.Name, nil, label+" is required")
		}
		return nil
	}

	value := p[f.Name]
	switch f.Type {
	case models.FieldBool:
		if _, ok := value.(bool); !ok {
			return apperrors.NewValidationError(f.Name, value, label+" must be true or false")
		}
	case models.FieldSelect:
		if len(f.Options) > 0 && !slices.Contains(f.Options, p.Text(f.Name)) {
			return apperrors.NewValidationError(f.Name, value,
				fmt.Sprintf("%s must be one of %s", label, strings.Join(f.Options, ", ")))
		}
	default:
		n, ok := p.Number(f.Name)
		if !ok {
			return apperrors.NewValidationError(f.Name, value, label+" must be a number")
		}
		if f.Min != nil && n < *f.Min {
			return apperrors.NewValidationError(f.Name, n, label+" must be at least "+formatBound(*f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return apperrors.NewValidationError(f.Name, n, label+" must be at most "+formatBound(*f.Max))
		}
	}
	return nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WithDefaults returns a copy of params with every absent indicator field
// set to its declared default.
func WithDefaults(params models.Params, spec *models.IndicatorSpec) models.Params {
	out := params.Clone()
	if spec == nil {
		return out
	}
	for _, f := range spec.Fields {
		if !out.Present(f.Name) && f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// FindIndicator returns the catalogue entry for name.
func FindIndicator(specs []models.IndicatorSpec, name string) (*models.IndicatorSpec, bool) {
	for i := range specs {
		if strings.EqualFold(specs[i].Name, name) {
			return &specs[i], true
		}
	}
	return nil, false
}
