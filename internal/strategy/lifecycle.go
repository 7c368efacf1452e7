package strategy

import (
	"fmt"
	"time"

	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
)

// Action is an operator action on a strategy.
type Action string

const (
	ActionDeploy Action = "deploy"
	ActionStop   Action = "stop"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Guard rejects actions the lifecycle does not allow:
//
//	inactive --deploy--> active --stop--> inactive
//	inactive --delete--> removed
//	edit only while inactive
func Guard(s models.Strategy, action Action) error {
	target := "strategy:" + s.ID
	switch action {
	case ActionDeploy, ActionEdit, ActionDelete:
		if s.IsActive {
			return apperrors.NewPreconditionError(string(action), target, apperrors.ErrStrategyActive)
		}
	case ActionStop:
		if !s.IsActive {
			return apperrors.NewPreconditionError(string(action), target, apperrors.ErrStrategyInactive)
		}
	default:
		return fmt.Errorf("unknown strategy action %q", action)
	}
	return nil
}

// Transition applies a successful deploy or stop to the local copy. Edit and
// delete leave activity unchanged.
func Transition(s models.Strategy, action Action, now time.Time) (models.Strategy, error) {
	if err := Guard(s, action); err != nil {
		return s, err
	}
	switch action {
	case ActionDeploy:
		s.IsActive = true
	case ActionStop:
		s.IsActive = false
	}
	s.ModifiedTime = now
	return s, nil
}

// Affordances lists the actions the UI offers for s.
func Affordances(s models.Strategy) []Action {
	if s.IsActive {
		return []Action{ActionStop}
	}
	return []Action{ActionDeploy, ActionEdit, ActionDelete}
}
