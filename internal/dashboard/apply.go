package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "algodesk/internal/errors"
	"algodesk/internal/logging"
	"algodesk/internal/models"
	"algodesk/internal/projector"
	"algodesk/internal/store"
	"algodesk/internal/stream"
)

// Apply replaces the state of msg.Scope with the snapshot msg carries. A
// numbered message whose seq is not above the last applied seq of its scope
// is rejected with ErrStaleSnapshot; unnumbered messages always apply.
func (d *Dashboard) Apply(ctx context.Context, msg stream.Message) error {
	if err := d.apply(msg); err != nil {
		return err
	}
	d.persist(ctx, msg)
	d.notify(msg.Scope)
	return nil
}

// Run applies messages from sub until ctx ends or sub is closed.
func (d *Dashboard) Run(ctx context.Context, sub *stream.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := d.Apply(ctx, msg); err != nil {
				log := logging.WithScope(d.logger, msg.Scope)
				ev := log.Warn()
				if errors.Is(err, apperrors.ErrStaleSnapshot) {
					ev = log.Debug()
				}
				ev.Err(err).Int64("seq", msg.Seq).Msg("Snapshot not applied")
			}
		}
	}
}

// ScopeSeq returns the last applied seq of scope and when it was applied.
func (d *Dashboard) ScopeSeq(scope string) (int64, time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.scopes[scope]
	if !ok {
		return 0, time.Time{}, false
	}
	return st.seq, st.updatedAt, true
}

func (d *Dashboard) apply(msg stream.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.scopes[msg.Scope]
	if msg.Seq > 0 && st != nil && msg.Seq <= st.seq {
		return fmt.Errorf("%w: %s seq %d, last applied %d",
			apperrors.ErrStaleSnapshot, msg.Scope, msg.Seq, st.seq)
	}

	var err error
	switch msg.Type {
	case stream.TypeDematAccounts:
		err = d.applyAccountsLocked(msg)
	case stream.TypeStrategyUpdate:
		err = d.applyStrategyLocked(msg)
	case stream.TypeMarketTick:
		err = d.applyTicksLocked(msg)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		return fmt.Errorf("applying %s to %s: %w", msg.Type, msg.Scope, err)
	}

	if st == nil {
		st = &scopeState{}
		d.scopes[msg.Scope] = st
	}
	if msg.Seq > st.seq {
		st.seq = msg.Seq
	}
	st.msg = msg
	st.updatedAt = msg.ReceivedAt
	if st.updatedAt.IsZero() {
		st.updatedAt = d.now()
	}
	return nil
}

func (d *Dashboard) applyAccountsLocked(msg stream.Message) error {
	accounts, err := decodeAccounts(msg.Data)
	if err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(msg.Scope, stream.ScopeGroupPrefix):
		groupID := strings.TrimPrefix(msg.Scope, stream.ScopeGroupPrefix)
		g, ok := d.groups[groupID]
		if !ok {
			g = models.Group{ID: groupID}
		}
		ids := make([]string, 0, len(accounts))
		for _, a := range accounts {
			d.accounts[a.ID] = withStats(a)
			ids = append(ids, a.ID)
		}
		g.MemberAccountIDs = ids
		if g.MasterAccountID != nil && !g.HasMember(*g.MasterAccountID) {
			g.MasterAccountID = nil
		}
		d.groups[groupID] = g
		for _, a := range accounts {
			d.rebuildForAccountLocked(a.ID)
		}
		d.rebuildGroupLocked(groupID)

	case strings.HasPrefix(msg.Scope, stream.ScopeAccountPrefix):
		for _, a := range accounts {
			d.accounts[a.ID] = withStats(a)
			d.rebuildForAccountLocked(a.ID)
		}

	default:
		return fmt.Errorf("accounts snapshot for non-account scope")
	}
	return nil
}

func (d *Dashboard) applyStrategyLocked(msg stream.Message) error {
	var wrapped struct {
		Strategy *models.Strategy `json:"strategy"`
	}
	if err := json.Unmarshal(msg.Data, &wrapped); err != nil {
		return err
	}
	s := wrapped.Strategy
	if s == nil {
		s = &models.Strategy{}
		if err := json.Unmarshal(msg.Data, s); err != nil {
			return err
		}
	}
	if s.ID == "" {
		s.ID = strings.TrimPrefix(msg.Scope, stream.ScopeStrategyPrefix)
	}
	if s.ID == "" {
		return fmt.Errorf("strategy snapshot without id")
	}
	d.strategies[s.ID] = *s
	return nil
}

func (d *Dashboard) applyTicksLocked(msg stream.Message) error {
	raws, err := decodeList[models.RawTick](msg.Data)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		tick := projector.ScaleTick(raw)
		key := tick.Token
		if key == "" {
			key = tick.Index
		}
		d.ticks[key] = tick
	}
	return nil
}

// decodeAccounts accepts {"dematAccounts":[...]}, {"dematAccount":{...}} or
// a bare array.
func decodeAccounts(raw json.RawMessage) ([]models.Account, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		return decodeList[models.Account](raw)
	}
	var wrapped struct {
		DematAccounts []models.Account `json:"dematAccounts"`
		DematAccount  *models.Account  `json:"dematAccount"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.DematAccount != nil {
		wrapped.DematAccounts = append(wrapped.DematAccounts, *wrapped.DematAccount)
	}
	return wrapped.DematAccounts, nil
}

// decodeList decodes either one T or an array of T.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []T
		err := json.Unmarshal(raw, &list)
		return list, err
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

type persistedFrame struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data"`
}

// persist stores msg as the last-known snapshot of its scope. Market ticks
// are not kept.
func (d *Dashboard) persist(ctx context.Context, msg stream.Message) {
	if d.store == nil || msg.Scope == stream.ScopeMarket {
		return
	}
	payload, err := json.Marshal(persistedFrame{Type: msg.Type, Seq: msg.Seq, Data: msg.Data})
	if err != nil {
		d.logger.Warn().Err(err).Str("scope", msg.Scope).Msg("Failed to encode snapshot")
		return
	}
	at := msg.ReceivedAt
	if at.IsZero() {
		at = d.now()
	}
	snap := store.Snapshot{Scope: msg.Scope, Seq: msg.Seq, Payload: payload, ReceivedAt: at}
	if err := d.store.SaveSnapshot(ctx, snap); err != nil {
		d.logger.Warn().Err(err).Str("scope", msg.Scope).Msg("Failed to persist snapshot")
	}
}

// Restore applies the persisted snapshot of scope, if any. The persisted
// seq is not carried over: the backend may restart its numbering between
// sessions.
func (d *Dashboard) Restore(ctx context.Context, scope string) error {
	if d.store == nil {
		return nil
	}
	snap, err := d.store.LatestSnapshot(ctx, scope)
	if err != nil || snap == nil {
		return err
	}
	msg, err := stream.DecodeMessage(scope, snap.Payload)
	if err != nil {
		return fmt.Errorf("restoring %s: %w", scope, err)
	}
	msg.Seq = 0
	msg.ReceivedAt = snap.ReceivedAt
	if err := d.apply(msg); err != nil {
		return err
	}
	d.notify(scope)
	return nil
}

// RestoreGroups restores the persisted snapshot of every known group.
func (d *Dashboard) RestoreGroups(ctx context.Context) error {
	var errs []error
	for _, g := range d.Groups() {
		if err := d.Restore(ctx, stream.GroupScope(g.ID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh asks for a fresh snapshot of scope after an action. Group and
// account scopes are re-fetched through the refresher; an account refreshes
// every group it belongs to. Without a refresher, or for other scopes, a
// scope that has no snapshot yet is restored from the store and listeners
// are notified of the local update.
func (d *Dashboard) Refresh(ctx context.Context, scope string) error {
	d.mu.RLock()
	refresher := d.refresher
	var groupIDs []string
	switch {
	case strings.HasPrefix(scope, stream.ScopeGroupPrefix):
		groupIDs = []string{strings.TrimPrefix(scope, stream.ScopeGroupPrefix)}
	case strings.HasPrefix(scope, stream.ScopeAccountPrefix):
		groupIDs = d.groupsOfLocked(strings.TrimPrefix(scope, stream.ScopeAccountPrefix))
	}
	_, known := d.scopes[scope]
	d.mu.RUnlock()

	if refresher != nil && len(groupIDs) > 0 {
		var errs []error
		for _, id := range groupIDs {
			if err := refresher(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("refreshing group %s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	}

	if !known {
		if err := d.Restore(ctx, scope); err != nil {
			return err
		}
	}
	d.notify(scope)
	return nil
}
