package dashboard

import (
	"time"

	"algodesk/internal/models"
	"algodesk/internal/projector"
	"algodesk/internal/stream"
	"algodesk/internal/table"
)

// Tab names a group table.
type Tab string

const (
	TabPositions Tab = "positions"
	TabOrders    Tab = "orders"
	TabTrades    Tab = "trades"
)

// ParseTab returns the tab named s.
func ParseTab(s string) (Tab, bool) {
	switch t := Tab(s); t {
	case TabPositions, TabOrders, TabTrades:
		return t, true
	}
	return "", false
}

// GroupView is a consistent copy of one group's derived state.
type GroupView struct {
	Group      models.Group
	Accounts   []models.Account
	Summaries  []projector.AccountSummary
	Aggregate  models.Stats
	Projection projector.Projection
	Seq        int64
	UpdatedAt  time.Time
}

// GroupView returns the derived state of groupID.
func (d *Dashboard) GroupView(groupID string) (GroupView, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[groupID]
	if !ok {
		return GroupView{}, false
	}
	members := d.membersLocked(groupID)
	v := GroupView{
		Group:      g,
		Accounts:   members,
		Summaries:  projector.Summarize(members),
		Aggregate:  projector.Aggregate(members),
		Projection: projector.Project(members),
	}
	if st, ok := d.scopes[stream.GroupScope(groupID)]; ok {
		v.Seq = st.seq
		v.UpdatedAt = st.updatedAt
	}
	return v, true
}

// PositionView returns the live positions table of a group. Its sort and
// search state survive snapshot updates; its rows do not.
func (d *Dashboard) PositionView(groupID string) *table.View[projector.PositionRow] {
	return d.tablesFor(groupID).positions
}

// OrderView returns the live orders table of a group.
func (d *Dashboard) OrderView(groupID string) *table.View[projector.OrderRow] {
	return d.tablesFor(groupID).orders
}

// TradeView returns the live trades table of a group.
func (d *Dashboard) TradeView(groupID string) *table.View[projector.TradeRow] {
	return d.tablesFor(groupID).trades
}

func (d *Dashboard) tablesFor(groupID string) *groupTables {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tables[groupID]; ok {
		return t
	}
	d.rebuildGroupLocked(groupID)
	return d.tables[groupID]
}

// rebuildGroupLocked recomputes a group's rows from its members' current
// stats and hands them to its tables.
func (d *Dashboard) rebuildGroupLocked(groupID string) {
	t, ok := d.tables[groupID]
	if !ok {
		t = &groupTables{
			positions: projector.NewPositionView(),
			orders:    projector.NewOrderView(),
			trades:    projector.NewTradeView(),
		}
		d.tables[groupID] = t
	}
	p := projector.Project(d.membersLocked(groupID))
	t.positions.SetRows(p.Positions)
	t.orders.SetRows(p.Orders)
	t.trades.SetRows(p.Trades)
}

func (d *Dashboard) rebuildForAccountLocked(accountID string) {
	for _, id := range d.groupsOfLocked(accountID) {
		d.rebuildGroupLocked(id)
	}
}

func (d *Dashboard) rebuildAllLocked() {
	for id := range d.tables {
		d.rebuildGroupLocked(id)
	}
}
