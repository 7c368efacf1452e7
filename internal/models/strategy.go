package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Standard strategy parameter names present on every strategy.
const (
	ParamMinContractPrice = "minContractPrice"
	ParamMaxContractPrice = "maxContractPrice"
	ParamInterval         = "interval"
	ParamIndex            = "index"
	ParamUseStopLoss      = "useStopLoss"
	ParamStopLossPoints   = "stopLossPoints"
	ParamTargetPoints     = "targetPoints"
)

// Strategy is a technical-indicator strategy definition.
type Strategy struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Indicator    string    `json:"indicator"`
	Parameters   Params    `json:"parameters"`
	IsActive     bool      `json:"isActive"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// Params holds strategy parameters. Values are float64, bool, string or nil.
type Params map[string]interface{}

// Number returns a numeric parameter. Numeric strings are accepted.
func (p Params) Number(name string) (float64, bool) {
	switch v := p[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case Num:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Bool returns a boolean parameter; absent or non-bool values are false.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Text returns a parameter as display text ("" when nil or absent).
func (p Params) Text(name string) string {
	switch v := p[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	if f, ok := p.Number(name); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// Present reports whether name is set to a non-nil value.
func (p Params) Present(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// FieldType is the input type of an indicator parameter.
type FieldType string

const (
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "boolean"
	FieldSelect FieldType = "select"
)

// ParamField describes one indicator-specific parameter.
type ParamField struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Default  any       `json:"default,omitempty"`
}

// IndicatorSpec is one entry of the strategies/indicators catalogue.
type IndicatorSpec struct {
	Name   string       `json:"name"`
	Label  string       `json:"label"`
	Fields []ParamField `json:"fields"`
}

// StrategyUpdate is the body for create and update calls.
type StrategyUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Indicator   string `json:"indicator"`
	Parameters  Params `json:"parameters"`
}
