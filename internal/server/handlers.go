package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"algodesk/internal/dashboard"
	"algodesk/internal/dispatch"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/projector"
	"algodesk/internal/store"
	"algodesk/internal/table"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"dematAccounts": projector.Summarize(s.dash.Accounts()),
	})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"groups": s.dash.Groups(),
	})
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	v, ok := s.dash.GroupView(chi.URLParam(r, "groupID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"group":     v.Group,
		"accounts":  v.Summaries,
		"margin":    v.Aggregate.Margin,
		"pnl":       v.Aggregate.PnL,
		"seq":       v.Seq,
		"updatedAt": v.UpdatedAt,
	})
}

// tabResponse is one table of a group after sort and search.
type tabResponse struct {
	GroupID   string      `json:"groupId"`
	Tab       string      `json:"tab"`
	Sort      string      `json:"sort,omitempty"`
	Search    string      `json:"search,omitempty"`
	Seq       int64       `json:"seq"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Total     int         `json:"total"`
	Rows      interface{} `json:"rows"`
}

// handleGroupTab serves GET /api/groups/{id}/{tab}?sort=[-]field&search=q.
// Each request sorts and filters a fresh view, so concurrent clients never
// share table state.
func (s *Server) handleGroupTab(w http.ResponseWriter, r *http.Request) {
	tab, ok := dashboard.ParseTab(chi.URLParam(r, "tab"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown tab")
		return
	}
	v, ok := s.dash.GroupView(chi.URLParam(r, "groupID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}

	sortParam := r.URL.Query().Get("sort")
	search := r.URL.Query().Get("search")
	resp := tabResponse{
		GroupID:   v.Group.ID,
		Tab:       string(tab),
		Sort:      sortParam,
		Search:    search,
		Seq:       v.Seq,
		UpdatedAt: v.UpdatedAt,
	}

	var err error
	switch tab {
	case dashboard.TabPositions:
		var rows []projector.PositionRow
		resp.Total = len(v.Projection.Positions)
		rows, err = viewRows(projector.NewPositionView(), v.Projection.Positions, projector.PositionFields(), sortParam, search)
		for i := range rows {
			rows[i].InFlight = s.inFlight(dispatch.PositionTarget(rows[i].AccountID, rows[i].Position.Key()))
		}
		resp.Rows = rows
	case dashboard.TabOrders:
		var rows []projector.OrderRow
		resp.Total = len(v.Projection.Orders)
		rows, err = viewRows(projector.NewOrderView(), v.Projection.Orders, projector.OrderFields(), sortParam, search)
		for i := range rows {
			rows[i].InFlight = s.inFlight(dispatch.OrderTarget(rows[i].AccountID, rows[i].OrderID))
		}
		resp.Rows = rows
	case dashboard.TabTrades:
		resp.Total = len(v.Projection.Trades)
		resp.Rows, err = viewRows(projector.NewTradeView(), v.Projection.Trades, projector.TradeFields(), sortParam, search)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) inFlight(target string) bool {
	return s.actions != nil && s.actions.InFlight(target)
}

// viewRows loads rows into view and applies a "field" or "-field" sort and
// a search query.
func viewRows[R table.Row](view *table.View[R], rows []R, fields []string, sortParam, search string) ([]R, error) {
	view.SetRows(rows)
	if sortParam != "" {
		sort, ok := table.ParseSort(sortParam, fields)
		if !ok {
			return nil, apperrors.NewValidationError("sort", sortParam, "unknown sort field "+strings.TrimPrefix(sortParam, "-"))
		}
		view.SetSortDirection(sort.Field, sort.Direction)
	}
	view.SetSearch(search)
	return view.Rows(), nil
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": s.dash.Strategies(),
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticks": s.dash.Ticks(),
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"actions": []store.ActionEntry{}})
		return
	}
	q := r.URL.Query()
	filter := store.ActionFilter{
		Action: q.Get("action"),
		Target: q.Get("target"),
		Limit:  50,
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		filter.Limit = l
	}
	entries, err := s.history.GetActions(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"actions": entries})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	orderID := chi.URLParam(r, "orderID")
	if err := s.actions.CancelOrder(r.Context(), accountID, orderID); err != nil {
		s.writeActionError(w, err, "Failed to cancel order")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  true,
		"message": "Order cancellation requested",
		"target":  dispatch.OrderTarget(accountID, orderID),
	})
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	var body struct {
		OrderIDs []string `json:"orderIds"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := s.actions.CancelAllOrders(r.Context(), groupID, body.OrderIDs); err != nil {
		s.writeActionError(w, err, "Failed to cancel orders")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  true,
		"message": "Cancellation requested",
	})
}

func (s *Server) handleSquareOffAll(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if err := s.actions.SquareOffAllByGroup(r.Context(), groupID); err != nil {
		s.writeActionError(w, err, "Failed to square off positions")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  true,
		"message": "Square off requested",
	})
}

func (s *Server) handleToggleTrading(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	if err := s.actions.ToggleTrading(r.Context(), accountID, *body.Enabled); err != nil {
		s.writeActionError(w, err, "Failed to update trading")
		return
	}
	acct, _ := s.dash.Account(accountID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         true,
		"tradingEnabled": acct.TradingEnabled,
	})
}

// statusFor maps an action error to an HTTP status.
func statusFor(err error) int {
	var apiErr *apperrors.APIError
	var transportErr *apperrors.TransportError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrInFlight),
		errors.Is(err, apperrors.ErrTerminalOrder),
		errors.Is(err, apperrors.ErrNoOpenOrders),
		errors.Is(err, apperrors.ErrPositionClosed),
		errors.Is(err, apperrors.ErrStrategyActive),
		errors.Is(err, apperrors.ErrStrategyInactive),
		errors.Is(err, apperrors.ErrJobFinished):
		return http.StatusConflict
	case errors.As(err, &apiErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeActionError(w http.ResponseWriter, err error, fallback string) {
	s.writeError(w, statusFor(err), apperrors.UserMessage(err, fallback))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"status":  false,
		"message": message,
	})
}
