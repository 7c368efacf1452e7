// Package dispatch turns operator actions into backend calls. Each action
// makes exactly one call, is refused while another action on the same target
// is in flight, is refused client-side when it cannot succeed, and on success
// updates the affected entity locally before asking for a fresh snapshot.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"algodesk/internal/api"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/logging"
	"algodesk/internal/models"
	"algodesk/internal/store"
)

// Backend is the subset of the REST client the dispatcher calls.
type Backend interface {
	CancelOrder(ctx context.Context, accountID, orderID string) (*models.Order, error)
	CancelAllOrders(ctx context.Context, groupID string, orderIDs []string) error
	SquareOffPosition(ctx context.Context, req api.SquareOffRequest) error
	SquareOffAll(ctx context.Context, groupID string) error
	PlaceManualOrder(ctx context.Context, order api.ManualOrder) (*models.Order, error)
	SetAccountTrading(ctx context.Context, accountID string, enabled bool) (*models.Account, error)
	SetGroupTrading(ctx context.Context, groupID string, enabled bool) (*models.Group, error)
	ToggleMaster(ctx context.Context, groupID, accountID string, action models.MasterAction) (*models.Group, error)
	DeployStrategy(ctx context.Context, id string) (*models.Strategy, error)
	StopStrategy(ctx context.Context, id string) (*models.Strategy, error)
	UpdateStrategy(ctx context.Context, id string, req models.StrategyUpdate) (*models.Strategy, error)
	DeleteStrategy(ctx context.Context, id string) error
	StopJob(ctx context.Context, jobID string) error
}

// State is the local view state actions read preconditions from and write
// results to.
type State interface {
	Account(id string) (models.Account, bool)
	Group(id string) (models.Group, bool)
	Strategy(id string) (models.Strategy, bool)
	Order(accountID, orderID string) (models.Order, bool)
	Position(accountID, key string) (models.Position, bool)
	GroupAccounts(groupID string) []models.Account

	PutOrder(accountID string, order models.Order)
	PutAccount(account models.Account)
	PutGroup(group models.Group)
	PutStrategy(strategy models.Strategy)
	RemoveStrategy(id string)

	// Refresh re-fetches or re-applies the last-known snapshot of scope.
	Refresh(ctx context.Context, scope string) error
}

// ActionLog records action outcomes.
type ActionLog interface {
	LogAction(ctx context.Context, entry store.ActionEntry) error
}

// Dispatcher runs operator actions.
type Dispatcher struct {
	backend Backend
	state   State
	log     ActionLog
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a dispatcher. log may be nil.
func New(backend Backend, state State, log ActionLog, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		backend:  backend,
		state:    state,
		log:      log,
		logger:   logging.WithComponent(logger, "dispatch"),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// InFlight reports whether an action on target is running. UI controls for
// target are disabled while it is true.
func (d *Dispatcher) InFlight(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[target]
	return ok
}

func (d *Dispatcher) acquire(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[target]; busy {
		return false
	}
	d.inFlight[target] = struct{}{}
	return true
}

func (d *Dispatcher) release(target string) {
	d.mu.Lock()
	delete(d.inFlight, target)
	d.mu.Unlock()
}

// run executes one action on target. call makes the single backend request
// and, on success, applies its local update. refresh scopes are re-fetched
// only after success; a failed action leaves state untouched.
func (d *Dispatcher) run(ctx context.Context, action, target string, call func(ctx context.Context) error, refresh ...string) error {
	if !d.acquire(target) {
		return apperrors.NewPreconditionError(action, target, apperrors.ErrInFlight)
	}
	defer d.release(target)

	err := call(ctx)
	d.record(ctx, action, target, err)
	if err != nil {
		return err
	}

	for _, scope := range refresh {
		if rerr := d.state.Refresh(ctx, scope); rerr != nil {
			d.logger.Warn().Err(rerr).Str("scope", scope).Msg("Refresh after action failed")
		}
	}
	return nil
}

// reject records and returns a client-side precondition failure. No call is
// made.
func (d *Dispatcher) reject(ctx context.Context, action, target string, reason error) error {
	err := apperrors.NewPreconditionError(action, target, reason)
	d.record(ctx, action, target, err)
	return err
}

func (d *Dispatcher) record(ctx context.Context, action, target string, err error) {
	logging.LogAction(d.logger, action, target, err)
	if d.log == nil {
		return
	}
	entry := store.ActionEntry{
		Action: action,
		Target: target,
		OK:     err == nil,
		At:     d.now(),
	}
	if err != nil {
		entry.Message = apperrors.UserMessage(err, err.Error())
	}
	if lerr := d.log.LogAction(ctx, entry); lerr != nil {
		d.logger.Warn().Err(lerr).Msg("Failed to record action")
	}
}
