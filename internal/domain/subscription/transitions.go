package subscription

var validTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusExpired, StatusCancelled, StatusSuspended},
}

// CanTransition reports whether a subscription may move from one status to
// another. EXPIRED, CANCELLED and SUSPENDED are terminal.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s SubscriptionStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}
