package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Message types pushed by the backend.
const (
	TypeStrategyUpdate = "strategy_update"
	TypeDematAccounts  = "demat_accounts"
	TypeMarketTick     = "market_tick"
)

// Scope prefixes. A scope names the piece of view state a message replaces.
const (
	ScopeGroupPrefix    = "group:"
	ScopeAccountPrefix  = "account:"
	ScopeStrategyPrefix = "strategy:"
	ScopeMarket         = "market"
)

// GroupScope returns the scope key of a group.
func GroupScope(id string) string { return ScopeGroupPrefix + id }

// AccountScope returns the scope key of an account.
func AccountScope(id string) string { return ScopeAccountPrefix + id }

// StrategyScope returns the scope key of a strategy.
func StrategyScope(id string) string { return ScopeStrategyPrefix + id }

// Message is one complete snapshot for a scope. Seq is 0 when the sender
// does not number its messages.
type Message struct {
	Scope      string
	Type       string
	Seq        int64
	Data       json.RawMessage
	ReceivedAt time.Time
}

type wireMessage struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// DecodeMessage parses a frame received for scope. Frames without a type
// field (raw market ticks) are wrapped whole as the data of a market_tick.
func DecodeMessage(scope string, frame []byte) (Message, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return Message{}, fmt.Errorf("empty frame")
	}
	var w wireMessage
	if err := json.Unmarshal(frame, &w); err != nil {
		return Message{}, fmt.Errorf("decoding frame: %w", err)
	}
	msg := Message{
		Scope:      scope,
		Type:       w.Type,
		Seq:        w.Seq,
		Data:       w.Data,
		ReceivedAt: time.Now(),
	}
	if w.Type == "" {
		msg.Type = TypeMarketTick
		msg.Data = append(json.RawMessage(nil), frame...)
	}
	return msg, nil
}
