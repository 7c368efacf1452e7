package dispatch

// Target keys identify what an action operates on. At most one action per
// key runs at a time.

// OrderTarget is the key of one order of one account.
func OrderTarget(accountID, orderID string) string {
	return "order:" + accountID + "/" + orderID
}

// PositionTarget is the key of one position of one account.
func PositionTarget(accountID, positionKey string) string {
	return "position:" + accountID + "/" + positionKey
}

// AccountTarget is the key of an account.
func AccountTarget(accountID string) string { return "account:" + accountID }

// GroupTarget is the key of a group.
func GroupTarget(groupID string) string { return "group:" + groupID }

// MemberTarget is the key of an account's membership in a group.
func MemberTarget(groupID, accountID string) string {
	return "group:" + groupID + "/" + accountID
}

// StrategyTarget is the key of a strategy.
func StrategyTarget(id string) string { return "strategy:" + id }

// JobTarget is the key of a job.
func JobTarget(id string) string { return "job:" + id }
