package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algodesk/internal/api"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
	"algodesk/internal/store"
)

// fakeBackend counts calls and returns canned results.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	block chan struct{}

	lastCancelAll []string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{calls: map[string]int{}} }

func (f *fakeBackend) hit(name string) error {
	f.mu.Lock()
	f.calls[name]++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.err
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) CancelOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	return nil, f.hit("CancelOrder")
}
func (f *fakeBackend) CancelAllOrders(ctx context.Context, groupID string, orderIDs []string) error {
	f.mu.Lock()
	f.lastCancelAll = orderIDs
	f.mu.Unlock()
	return f.hit("CancelAllOrders")
}
func (f *fakeBackend) SquareOffPosition(ctx context.Context, req api.SquareOffRequest) error {
	return f.hit("SquareOffPosition")
}
func (f *fakeBackend) SquareOffAll(ctx context.Context, groupID string) error {
	return f.hit("SquareOffAll")
}
func (f *fakeBackend) PlaceManualOrder(ctx context.Context, order api.ManualOrder) (*models.Order, error) {
	return nil, f.hit("PlaceManualOrder")
}
func (f *fakeBackend) SetAccountTrading(ctx context.Context, accountID string, enabled bool) (*models.Account, error) {
	return nil, f.hit("SetAccountTrading")
}
func (f *fakeBackend) SetGroupTrading(ctx context.Context, groupID string, enabled bool) (*models.Group, error) {
	return nil, f.hit("SetGroupTrading")
}
func (f *fakeBackend) ToggleMaster(ctx context.Context, groupID, accountID string, action models.MasterAction) (*models.Group, error) {
	return nil, f.hit("ToggleMaster")
}
func (f *fakeBackend) DeployStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	return nil, f.hit("DeployStrategy")
}
func (f *fakeBackend) StopStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	return nil, f.hit("StopStrategy")
}
func (f *fakeBackend) UpdateStrategy(ctx context.Context, id string, req models.StrategyUpdate) (*models.Strategy, error) {
	return nil, f.hit("UpdateStrategy")
}
func (f *fakeBackend) DeleteStrategy(ctx context.Context, id string) error {
	return f.hit("DeleteStrategy")
}
func (f *fakeBackend) StopJob(ctx context.Context, jobID string) error {
	return f.hit("StopJob")
}

// fakeState is a map-backed State.
type fakeState struct {
	mu         sync.Mutex
	accounts   map[string]models.Account
	groups     map[string]models.Group
	strategies map[string]models.Strategy
	refreshed  []string
}

func newFakeState() *fakeState {
	return &fakeState{
		accounts:   map[string]models.Account{},
		groups:     map[string]models.Group{},
		strategies: map[string]models.Strategy{},
	}
}

func (s *fakeState) Account(id string) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}
func (s *fakeState) Group(id string) (models.Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	return g, ok
}
func (s *fakeState) Strategy(id string) (models.Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	return st, ok
}
func (s *fakeState) Order(accountID, orderID string) (models.Order, bool) {
	a, ok := s.Account(accountID)
	if !ok {
		return models.Order{}, false
	}
	o, ok := a.Stats.Orders[orderID]
	return o, ok
}
func (s *fakeState) Position(accountID, key string) (models.Position, bool) {
	a, ok := s.Account(accountID)
	if !ok {
		return models.Position{}, false
	}
	p, ok := a.Stats.Positions[key]
	return p, ok
}
func (s *fakeState) GroupAccounts(groupID string) []models.Account {
	g, ok := s.Group(groupID)
	if !ok {
		return nil
	}
	var out []models.Account
	for _, id := range g.MemberAccountIDs {
		if a, ok := s.Account(id); ok {
			out = append(out, a)
		}
	}
	return out
}
func (s *fakeState) PutOrder(accountID string, order models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID].Stats.Orders[order.OrderID] = order
}
func (s *fakeState) PutAccount(a models.Account) {
	s.mu.Lock()
	s.accounts[a.ID] = a
	s.mu.Unlock()
}
func (s *fakeState) PutGroup(g models.Group) {
	s.mu.Lock()
	s.groups[g.ID] = g
	s.mu.Unlock()
}
func (s *fakeState) PutStrategy(st models.Strategy) {
	s.mu.Lock()
	s.strategies[st.ID] = st
	s.mu.Unlock()
}
func (s *fakeState) RemoveStrategy(id string) {
	s.mu.Lock()
	delete(s.strategies, id)
	s.mu.Unlock()
}
func (s *fakeState) Refresh(ctx context.Context, scope string) error {
	s.mu.Lock()
	s.refreshed = append(s.refreshed, scope)
	s.mu.Unlock()
	return nil
}

type memLog struct {
	entries []store.ActionEntry
}

func (m *memLog) LogAction(_ context.Context, e store.ActionEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func seededState() *fakeState {
	st := newFakeState()
	stats := models.NewStats()
	stats.Orders["o-open"] = models.Order{OrderID: "o-open", Status: models.OrderPending}
	stats.Orders["o-done"] = models.Order{OrderID: "o-done", Status: models.OrderComplete}
	stats.Orders["o-rej"] = models.Order{OrderID: "o-rej", Status: models.OrderRejected}
	stats.Orders["o-can"] = models.Order{OrderID: "o-can", Status: models.OrderCancelled}
	stats.Positions["NIFTY"] = models.Position{Symbol: "NIFTY", BuyQty: 75}
	stats.Positions["BANKNIFTY"] = models.Position{Symbol: "BANKNIFTY", BuyQty: 15, SellQty: 15}
	st.accounts["a1"] = models.Account{ID: "a1", ClientID: "C1", Stats: stats}
	st.accounts["a2"] = models.Account{ID: "a2", ClientID: "C2", Stats: models.NewStats()}
	st.groups["g1"] = models.Group{ID: "g1", Name: "alpha", MemberAccountIDs: []string{"a1", "a2"}}
	st.strategies["s1"] = models.Strategy{ID: "s1", Name: "st"}
	return st
}

func newTestDispatcher(backend *fakeBackend, state *fakeState) (*Dispatcher, *memLog) {
	log := &memLog{}
	d := New(backend, state, log, zerolog.Nop())
	d.now = func() time.Time { return time.Date(2024, 8, 1, 9, 15, 0, 0, time.UTC) }
	return d, log
}

func TestCancelTerminalOrderMakesNoCall(t *testing.T) {
	backend := newFakeBackend()
	d, log := newTestDispatcher(backend, seededState())

	for _, id := range []string{"o-done", "o-rej", "o-can"} {
		err := d.CancelOrder(context.Background(), "a1", id)
		assert.ErrorIs(t, err, apperrors.ErrTerminalOrder, id)
	}
	assert.Equal(t, 0, backend.count("CancelOrder"))
	require.Len(t, log.entries, 3)
	assert.False(t, log.entries[0].OK)
}

func TestCancelOrderUpdatesStateAndRefreshes(t *testing.T) {
	backend := newFakeBackend()
	state := seededState()
	d, log := newTestDispatcher(backend, state)

	require.NoError(t, d.CancelOrder(context.Background(), "a1", "o-open"))
	assert.Equal(t, 1, backend.count("CancelOrder"))

	o, _ := state.Order("a1", "o-open")
	assert.Equal(t, models.OrderCancelling, o.Status)
	assert.Equal(t, []string{"account:a1"}, state.refreshed)
	require.Len(t, log.entries, 1)
	assert.True(t, log.entries[0].OK)
	assert.Equal(t, "order:a1/o-open", log.entries[0].Target)
}

func TestFailureLeavesStateUntouched(t *testing.T) {
	backend := newFakeBackend()
	backend.err = apperrors.NewAPIError("POST orders/cancelOrder", 200, "Order already executed")
	state := seededState()
	d, log := newTestDispatcher(backend, state)

	err := d.CancelOrder(context.Background(), "a1", "o-open")
	require.Error(t, err)
	assert.Equal(t, "Order already executed", apperrors.UserMessage(err, "failed to cancel order"))

	o, _ := state.Order("a1", "o-open")
	assert.Equal(t, models.OrderPending, o.Status)
	assert.Empty(t, state.refreshed)
	require.Len(t, log.entries, 1)
	assert.Equal(t, "Order already executed", log.entries[0].Message)
}

func TestInFlightRejectsReentry(t *testing.T) {
	backend := newFakeBackend()
	backend.block = make(chan struct{})
	d, _ := newTestDispatcher(backend, seededState())

	done := make(chan error, 1)
	go func() { done <- d.CancelOrder(context.Background(), "a1", "o-open") }()

	target := OrderTarget("a1", "o-open")
	require.Eventually(t, func() bool { return d.InFlight(target) }, time.Second, 5*time.Millisecond)

	err := d.CancelOrder(context.Background(), "a1", "o-open")
	assert.ErrorIs(t, err, apperrors.ErrInFlight)

	// Other targets are unaffected.
	assert.False(t, d.InFlight(PositionTarget("a1", "NIFTY")))

	close(backend.block)
	require.NoError(t, <-done)
	assert.False(t, d.InFlight(target))
	assert.Equal(t, 1, backend.count("CancelOrder"))
}

func TestSquareOffClosedPositionMakesNoCall(t *testing.T) {
	backend := newFakeBackend()
	d, _ := newTestDispatcher(backend, seededState())

	err := d.SquareOff(context.Background(), "a1", "BANKNIFTY")
	assert.ErrorIs(t, err, apperrors.ErrPositionClosed)
	assert.Equal(t, 0, backend.count("SquareOffPosition"))

	require.NoError(t, d.SquareOff(context.Background(), "a1", "NIFTY"))
	assert.Equal(t, 1, backend.count("SquareOffPosition"))

	err = d.SquareOff(context.Background(), "a1", "SENSEX")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCancelAllSkipsTerminalOrders(t *testing.T) {
	backend := newFakeBackend()
	state := seededState()
	d, _ := newTestDispatcher(backend, state)

	require.NoError(t, d.CancelAllOrders(context.Background(), "g1", []string{"o-open", "o-done"}))
	assert.Equal(t, []string{"o-open"}, backend.lastCancelAll)
	o, _ := state.Order("a1", "o-open")
	assert.Equal(t, models.OrderCancelling, o.Status)

	err := d.CancelAllOrders(context.Background(), "g1", []string{"o-done", "o-rej"})
	assert.ErrorIs(t, err, apperrors.ErrTerminalOrder)
	assert.Equal(t, 1, backend.count("CancelAllOrders"))
}

func TestCancelAllWithNothingOpen(t *testing.T) {
	backend := newFakeBackend()
	state := seededState()
	state.groups["empty"] = models.Group{ID: "empty", Name: "empty"}
	state.groups["idle"] = models.Group{ID: "idle", Name: "idle", MemberAccountIDs: []string{"a2"}}
	d, log := newTestDispatcher(backend, state)

	for _, groupID := range []string{"empty", "idle"} {
		err := d.CancelAllOrders(context.Background(), groupID, nil)
		assert.ErrorIs(t, err, apperrors.ErrNoOpenOrders, groupID)
		assert.NotErrorIs(t, err, apperrors.ErrTerminalOrder, groupID)
		assert.Contains(t, apperrors.UserMessage(err, ""), "no open orders")
	}
	assert.Equal(t, 0, backend.count("CancelAllOrders"))
	require.Len(t, log.entries, 2)
	assert.False(t, log.entries[0].OK)
}

func TestSquareOffAllByGroup(t *testing.T) {
	backend := newFakeBackend()
	d, _ := newTestDispatcher(backend, seededState())

	require.NoError(t, d.SquareOffAllByGroup(context.Background(), "g1"))
	assert.Equal(t, 1, backend.count("SquareOffAll"))

	assert.ErrorIs(t, d.SquareOffAllByGroup(context.Background(), "nope"), apperrors.ErrNotFound)
}

func TestToggleTradingAndMaster(t *testing.T) {
	backend := newFakeBackend()
	state := seededState()
	d, _ := newTestDispatcher(backend, state)

	require.NoError(t, d.ToggleTrading(context.Background(), "a1", true))
	a, _ := state.Account("a1")
	assert.True(t, a.TradingEnabled)

	require.NoError(t, d.ToggleMaster(context.Background(), "g1", "a2", models.MasterConnect))
	g, _ := state.Group("g1")
	assert.True(t, g.IsMaster("a2"))
	assert.NoError(t, g.Validate())

	err := d.ToggleMaster(context.Background(), "g1", "a1", models.MasterDisconnect)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	err = d.ToggleMaster(context.Background(), "g1", "a9", models.MasterConnect)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
	assert.Equal(t, 1, backend.count("ToggleMaster"))

	require.NoError(t, d.ToggleMaster(context.Background(), "g1", "a2", models.MasterDisconnect))
	g, _ = state.Group("g1")
	assert.Nil(t, g.MasterAccountID)

	require.NoError(t, d.ToggleGroupTrading(context.Background(), "g1", true))
	g, _ = state.Group("g1")
	assert.True(t, g.TradingEnabled)
}

func TestStrategyLifecycleScenario(t *testing.T) {
	backend := newFakeBackend()
	state := seededState()
	d, _ := newTestDispatcher(backend, state)
	ctx := context.Background()

	require.NoError(t, d.DeployStrategy(ctx, "s1"))
	s, _ := state.Strategy("s1")
	assert.True(t, s.IsActive)

	assert.ErrorIs(t, d.DeleteStrategy(ctx, "s1"), apperrors.ErrStrategyActive)
	assert.ErrorIs(t, d.UpdateStrategy(ctx, "s1", models.StrategyUpdate{}, nil), apperrors.ErrStrategyActive)
	assert.ErrorIs(t, d.DeployStrategy(ctx, "s1"), apperrors.ErrStrategyActive)
	assert.Equal(t, 0, backend.count("DeleteStrategy"))
	assert.Equal(t, 0, backend.count("UpdateStrategy"))

	require.NoError(t, d.StopStrategy(ctx, "s1"))
	s, _ = state.Strategy("s1")
	assert.False(t, s.IsActive)

	bad := models.StrategyUpdate{Name: "st", Indicator: "rsi", Parameters: models.Params{
		models.ParamMinContractPrice: 150.0, models.ParamMaxContractPrice: 100.0,
		models.ParamInterval: "1m", models.ParamIndex: "NIFTY",
	}}
	err := d.UpdateStrategy(ctx, "s1", bad, nil)
	assert.Equal(t, "Max price must be greater than min price", apperrors.UserMessage(err, ""))
	assert.Equal(t, 0, backend.count("UpdateStrategy"))

	good := bad
	good.Parameters = bad.Parameters.Clone()
	good.Parameters[models.ParamMaxContractPrice] = 200.0
	require.NoError(t, d.UpdateStrategy(ctx, "s1", good, nil))
	s, _ = state.Strategy("s1")
	assert.Equal(t, "rsi", s.Indicator)

	require.NoError(t, d.DeleteStrategy(ctx, "s1"))
	_, ok := state.Strategy("s1")
	assert.False(t, ok)
}

func TestStopJob(t *testing.T) {
	backend := newFakeBackend()
	d, _ := newTestDispatcher(backend, seededState())

	for _, st := range []models.JobState{models.JobCompleted, models.JobFailed} {
		err := d.StopJob(context.Background(), models.Job{ID: "j1", State: st})
		assert.ErrorIs(t, err, apperrors.ErrJobFinished)
	}
	require.NoError(t, d.StopJob(context.Background(), models.Job{ID: "j1", State: models.JobActive}))
	assert.Equal(t, 1, backend.count("StopJob"))
}

func TestManualOrderValidation(t *testing.T) {
	backend := newFakeBackend()
	d, _ := newTestDispatcher(backend, seededState())

	err := d.PlaceManualOrder(context.Background(), api.ManualOrder{DematAccountID: "a1", Symbol: "NIFTY", TransactionType: models.SideBuy})
	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "quantity", ve.Field)

	require.NoError(t, d.PlaceManualOrder(context.Background(), api.ManualOrder{
		GroupID: "g1", Symbol: "NIFTY", TransactionType: models.SideSell, OrderType: "MARKET", Quantity: 75,
	}))
	assert.Equal(t, 1, backend.count("PlaceManualOrder"))
}
