// Package dashboard holds the operator's view state: the account, group and
// strategy registries, the latest snapshot of every stream scope and the
// per-group positions, orders and trades tables built from them.
package dashboard

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"algodesk/internal/logging"
	"algodesk/internal/models"
	"algodesk/internal/projector"
	"algodesk/internal/store"
	"algodesk/internal/stream"
	"algodesk/internal/table"
)

// SnapshotStore persists the last-known snapshot of each scope.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LatestSnapshot(ctx context.Context, scope string) (*store.Snapshot, error)
}

// Refresher re-fetches the snapshot of a group and publishes it.
type Refresher func(ctx context.Context, groupID string) error

// ChangeFunc is called after a scope's state changed.
type ChangeFunc func(scope string)

// Loader fetches the registries.
type Loader interface {
	DematAccounts(ctx context.Context) ([]models.Account, error)
	Groups(ctx context.Context) ([]models.Group, error)
	Strategies(ctx context.Context) ([]models.Strategy, error)
}

type scopeState struct {
	seq       int64
	msg       stream.Message
	updatedAt time.Time
}

type groupTables struct {
	positions *table.View[projector.PositionRow]
	orders    *table.View[projector.OrderRow]
	trades    *table.View[projector.TradeRow]
}

// Dashboard is safe for concurrent use. It satisfies dispatch.State.
type Dashboard struct {
	store     SnapshotStore
	refresher Refresher
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.RWMutex
	accounts   map[string]models.Account
	groups     map[string]models.Group
	strategies map[string]models.Strategy
	ticks      map[string]models.Tick
	scopes     map[string]*scopeState
	tables     map[string]*groupTables

	listenersMu sync.Mutex
	listeners   []ChangeFunc
}

// New creates an empty dashboard. snapshots may be nil to disable
// persistence.
func New(snapshots SnapshotStore, logger zerolog.Logger) *Dashboard {
	return &Dashboard{
		store:      snapshots,
		logger:     logging.WithComponent(logger, "dashboard"),
		now:        time.Now,
		accounts:   make(map[string]models.Account),
		groups:     make(map[string]models.Group),
		strategies: make(map[string]models.Strategy),
		ticks:      make(map[string]models.Tick),
		scopes:     make(map[string]*scopeState),
		tables:     make(map[string]*groupTables),
	}
}

// SetRefresher installs the function Refresh uses to re-fetch group
// snapshots.
func (d *Dashboard) SetRefresher(r Refresher) {
	d.mu.Lock()
	d.refresher = r
	d.mu.Unlock()
}

// OnChange registers fn to be called after every applied change.
func (d *Dashboard) OnChange(fn ChangeFunc) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenersMu.Unlock()
}

func (d *Dashboard) notify(scope string) {
	d.listenersMu.Lock()
	listeners := slices.Clone(d.listeners)
	d.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(scope)
	}
}

// LoadAccounts replaces the account registry.
func (d *Dashboard) LoadAccounts(accounts []models.Account) {
	d.mu.Lock()
	d.accounts = make(map[string]models.Account, len(accounts))
	for _, a := range accounts {
		d.accounts[a.ID] = withStats(a)
	}
	d.rebuildAllLocked()
	d.mu.Unlock()
	d.notify(stream.ScopeAccountPrefix)
}

// LoadGroups replaces the group registry.
func (d *Dashboard) LoadGroups(groups []models.Group) {
	d.mu.Lock()
	d.groups = make(map[string]models.Group, len(groups))
	for _, g := range groups {
		d.groups[g.ID] = g
	}
	d.rebuildAllLocked()
	d.mu.Unlock()
	d.notify(stream.ScopeGroupPrefix)
}

// LoadStrategies replaces the strategy registry.
func (d *Dashboard) LoadStrategies(strategies []models.Strategy) {
	d.mu.Lock()
	d.strategies = make(map[string]models.Strategy, len(strategies))
	for _, s := range strategies {
		d.strategies[s.ID] = s
	}
	d.mu.Unlock()
	d.notify(stream.ScopeStrategyPrefix)
}

// Sync loads all three registries from l.
func (d *Dashboard) Sync(ctx context.Context, l Loader) error {
	accounts, err := l.DematAccounts(ctx)
	if err != nil {
		return err
	}
	groups, err := l.Groups(ctx)
	if err != nil {
		return err
	}
	strategies, err := l.Strategies(ctx)
	if err != nil {
		return err
	}
	d.LoadAccounts(accounts)
	d.LoadGroups(groups)
	d.LoadStrategies(strategies)
	return nil
}

// Accounts returns every account ordered by label.
func (d *Dashboard) Accounts() []models.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Account, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b models.Account) int {
		if c := cmp.Compare(a.Label(), b.Label()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Groups returns every group ordered by name.
func (d *Dashboard) Groups() []models.Group {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Group, 0, len(d.groups))
	for _, g := range d.groups {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b models.Group) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Strategies returns every strategy ordered by name.
func (d *Dashboard) Strategies() []models.Strategy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Strategy, 0, len(d.strategies))
	for _, s := range d.strategies {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.Strategy) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Ticks returns the latest tick of every instrument, ordered by index name.
func (d *Dashboard) Ticks() []models.Tick {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Tick, 0, len(d.ticks))
	for _, t := range d.ticks {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b models.Tick) int {
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.Token, b.Token)
	})
	return out
}

// Account returns an account by id.
func (d *Dashboard) Account(id string) (models.Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[id]
	return a, ok
}

// Group returns a group by id.
func (d *Dashboard) Group(id string) (models.Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[id]
	return g, ok
}

// Strategy returns a strategy by id.
func (d *Dashboard) Strategy(id string) (models.Strategy, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.strategies[id]
	return s, ok
}

// Order returns one order of an account.
func (d *Dashboard) Order(accountID, orderID string) (models.Order, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[accountID]
	if !ok {
		return models.Order{}, false
	}
	o, ok := a.Stats.Orders[orderID]
	return o, ok
}

// Position returns one position of an account by its key.
func (d *Dashboard) Position(accountID, key string) (models.Position, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[accountID]
	if !ok {
		return models.Position{}, false
	}
	p, ok := a.Stats.Positions[key]
	return p, ok
}

// GroupAccounts returns the known member accounts of a group in member
// order.
func (d *Dashboard) GroupAccounts(groupID string) []models.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.membersLocked(groupID)
}

func (d *Dashboard) membersLocked(groupID string) []models.Account {
	g, ok := d.groups[groupID]
	if !ok {
		return nil
	}
	out := make([]models.Account, 0, len(g.MemberAccountIDs))
	for _, id := range g.MemberAccountIDs {
		if a, ok := d.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// groupsOfLocked returns the ids of the groups accountID belongs to.
func (d *Dashboard) groupsOfLocked(accountID string) []string {
	var ids []string
	for id, g := range d.groups {
		if g.HasMember(accountID) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// PutOrder replaces one order of an account. The account's orders map is
// copied so snapshots handed out earlier stay unchanged.
func (d *Dashboard) PutOrder(accountID string, order models.Order) {
	d.mu.Lock()
	a, ok := d.accounts[accountID]
	if !ok {
		d.mu.Unlock()
		return
	}
	orders := make(map[string]models.Order, len(a.Stats.Orders)+1)
	for k, v := range a.Stats.Orders {
		orders[k] = v
	}
	orders[order.OrderID] = order
	a.Stats.Orders = orders
	d.accounts[accountID] = a
	d.rebuildForAccountLocked(accountID)
	d.mu.Unlock()
	d.notify(stream.AccountScope(accountID))
}

// PutAccount replaces an account.
func (d *Dashboard) PutAccount(account models.Account) {
	d.mu.Lock()
	if prev, ok := d.accounts[account.ID]; ok && account.Stats.Positions == nil {
		// Toggle responses carry no stats.
		account.Stats = prev.Stats
	}
	d.accounts[account.ID] = withStats(account)
	d.rebuildForAccountLocked(account.ID)
	d.mu.Unlock()
	d.notify(stream.AccountScope(account.ID))
}

// PutGroup replaces a group.
func (d *Dashboard) PutGroup(group models.Group) {
	d.mu.Lock()
	if prev, ok := d.groups[group.ID]; ok && group.MemberAccountIDs == nil {
		group.MemberAccountIDs = prev.MemberAccountIDs
	}
	d.groups[group.ID] = group
	d.rebuildGroupLocked(group.ID)
	d.mu.Unlock()
	d.notify(stream.GroupScope(group.ID))
}

// PutStrategy replaces a strategy.
func (d *Dashboard) PutStrategy(s models.Strategy) {
	d.mu.Lock()
	d.strategies[s.ID] = s
	d.mu.Unlock()
	d.notify(stream.StrategyScope(s.ID))
}

// RemoveStrategy drops a strategy from the registry.
func (d *Dashboard) RemoveStrategy(id string) {
	d.mu.Lock()
	delete(d.strategies, id)
	delete(d.scopes, stream.StrategyScope(id))
	d.mu.Unlock()
	d.notify(stream.StrategyScope(id))
}

func withStats(a models.Account) models.Account {
	if a.Stats.Positions == nil {
		a.Stats.Positions = make(map[string]models.Position)
	}
	if a.Stats.Orders == nil {
		a.Stats.Orders = make(map[string]models.Order)
	}
	if a.Stats.Trades == nil {
		a.Stats.Trades = make(map[string]models.Trade)
	}
	return a
}
