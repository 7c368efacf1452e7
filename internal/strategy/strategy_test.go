package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
)

func validDef() models.StrategyUpdate {
	return models.StrategyUpdate{
		Name:      "Supertrend scalper",
		Indicator: "supertrend",
		Parameters: models.Params{
			models.ParamMinContractPrice: 100.0,
			models.ParamMaxContractPrice: 150.0,
			models.ParamInterval:         "5m",
			models.ParamIndex:            "NIFTY",
			"period":                     10.0,
			"multiplier":                 3.0,
		},
	}
}

func float(f float64) *float64 { return &f }

func supertrendSpec() *models.IndicatorSpec {
	return &models.IndicatorSpec{
		Name:  "supertrend",
		Label: "Supertrend",
		Fields: []models.ParamField{
			{Name: "period", Label: "Period", Type: models.FieldNumber, Min: float(1), Max: float(100), Required: true},
			{Name: "multiplier", Label: "Multiplier", Type: models.FieldNumber, Min: float(0.5), Max: float(10), Default: 3.0},
			{Name: "source", Label: "Source", Type: models.FieldSelect, Options: []string{"close", "hl2"}},
		},
	}
}

func TestValidDefinitionPasses(t *testing.T) {
	assert.NoError(t, Validate(validDef(), supertrendSpec()))
	assert.Empty(t, Check(validDef(), nil))
}

func TestMaxMustExceedMin(t *testing.T) {
	def := validDef()
	def.Parameters[models.ParamMinContractPrice] = 150.0
	def.Parameters[models.ParamMaxContractPrice] = 100.0

	err := Validate(def, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
	assert.Equal(t, "Max price must be greater than min price", apperrors.UserMessage(err, "failed"))

	def.Parameters[models.ParamMaxContractPrice] = 150.0
	assert.Error(t, Validate(def, nil), "equal prices are rejected too")
}

func TestStringPricesAccepted(t *testing.T) {
	def := validDef()
	def.Parameters[models.ParamMinContractPrice] = "100"
	def.Parameters[models.ParamMaxContractPrice] = "250.5"
	assert.NoError(t, Validate(def, nil))
}

func TestRequiredStandardFields(t *testing.T) {
	def := models.StrategyUpdate{Parameters: models.Params{}}
	errs := Check(def, nil)

	var fields []string
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{
		"name", "indicator",
		models.ParamInterval, models.ParamIndex,
		models.ParamMinContractPrice, models.ParamMaxContractPrice,
	}, fields)
}

func TestStopLossRequiresPoints(t *testing.T) {
	def := validDef()
	def.Parameters[models.ParamUseStopLoss] = true
	def.Parameters[models.ParamStopLossPoints] = 0.0

	errs := Check(def, nil)
	require.Len(t, errs, 2)
	assert.Equal(t, MsgStopLoss, errs[0].Message)
	assert.Equal(t, MsgTarget, errs[1].Message)

	def.Parameters[models.ParamStopLossPoints] = 20.0
	def.Parameters[models.ParamTargetPoints] = 40.0
	assert.NoError(t, Validate(def, nil))

	// Ignored when the stop loss is off.
	def.Parameters[models.ParamUseStopLoss] = false
	def.Parameters[models.ParamStopLossPoints] = nil
	assert.NoError(t, Validate(def, nil))
}

func TestIndicatorFieldRanges(t *testing.T) {
	spec := supertrendSpec()

	def := validDef()
	delete(def.Parameters, "period")
	assert.Equal(t, "Period is required", apperrors.UserMessage(Validate(def, spec), ""))

	def = validDef()
	def.Parameters["period"] = 0.0
	assert.Equal(t, "Period must be at least 1", apperrors.UserMessage(Validate(def, spec), ""))

	def = validDef()
	def.Parameters["multiplier"] = 12.0
	assert.Equal(t, "Multiplier must be at most 10", apperrors.UserMessage(Validate(def, spec), ""))

	def = validDef()
	def.Parameters["period"] = "ten"
	assert.Equal(t, "Period must be a number", apperrors.UserMessage(Validate(def, spec), ""))

	def = validDef()
	def.Parameters["source"] = "open"
	assert.Equal(t, "Source must be one of close, hl2", apperrors.UserMessage(Validate(def, spec), ""))
}

func TestWithDefaultsAndFind(t *testing.T) {
	specs := []models.IndicatorSpec{*supertrendSpec()}
	spec, ok := FindIndicator(specs, "SuperTrend")
	require.True(t, ok)

	params := WithDefaults(models.Params{"period": 7.0}, spec)
	assert.Equal(t, 3.0, params["multiplier"])
	assert.Equal(t, 7.0, params["period"])

	_, ok = FindIndicator(specs, "rsi")
	assert.False(t, ok)
}

func TestLifecycle(t *testing.T) {
	now := time.Date(2024, 8, 1, 9, 15, 0, 0, time.UTC)
	s := models.Strategy{ID: "s1"}

	assert.ElementsMatch(t, []Action{ActionDeploy, ActionEdit, ActionDelete}, Affordances(s))
	assert.ErrorIs(t, Guard(s, ActionStop), apperrors.ErrStrategyInactive)

	deployed, err := Transition(s, ActionDeploy, now)
	require.NoError(t, err)
	assert.True(t, deployed.IsActive)
	assert.Equal(t, []Action{ActionStop}, Affordances(deployed))
	assert.Equal(t, now, deployed.ModifiedTime)

	for _, a := range []Action{ActionDeploy, ActionEdit, ActionDelete} {
		err := Guard(deployed, a)
		assert.ErrorIs(t, err, apperrors.ErrStrategyActive, "action %s", a)
		var pre *apperrors.PreconditionError
		assert.ErrorAs(t, err, &pre)
	}

	stopped, err := Transition(deployed, ActionStop, now)
	require.NoError(t, err)
	assert.False(t, stopped.IsActive)
	assert.NoError(t, Guard(stopped, ActionDelete))
}
