package models

import (
	"fmt"
	"slices"
)

// Account is a connected broker (demat) account.
type Account struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	BrokerName     string `json:"brokerName"`
	ClientID       string `json:"clientId"`
	TradingEnabled bool   `json:"tradingEnabled"`
	Stats          Stats  `json:"stats"`
}

// Label returns the best human name for the account.
func (a Account) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.ClientID != "" {
		return a.ClientID
	}
	return a.ID
}

// Group is a named set of accounts whose orders are mirrored from the master.
type Group struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	MasterAccountID  *string  `json:"masterAccountId,omitempty"`
	TradingEnabled   bool     `json:"tradingEnabled"`
	MemberAccountIDs []string `json:"memberAccountIds"`
}

// HasMember reports whether accountID belongs to the group.
func (g Group) HasMember(accountID string) bool {
	return slices.Contains(g.MemberAccountIDs, accountID)
}

// IsMaster reports whether accountID is the group's master.
func (g Group) IsMaster(accountID string) bool {
	return g.MasterAccountID != nil && *g.MasterAccountID == accountID
}

// Validate checks the at-most-one-master / master-is-member invariant.
func (g Group) Validate() error {
	if g.MasterAccountID == nil {
		return nil
	}
	if !g.HasMember(*g.MasterAccountID) {
		return fmt.Errorf("group %s: master %s is not a member", g.ID, *g.MasterAccountID)
	}
	return nil
}

// User is the logged-in operator.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	BrokerConnected bool   `json:"brokerConnected"`
}

// BrokerInfo is an entry of the supported-broker list.
type BrokerInfo struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// MasterAction selects connect or disconnect for a master toggle.
type MasterAction string

const (
	MasterConnect    MasterAction = "connect"
	MasterDisconnect MasterAction = "disconnect"
)
