package model

// Decision is the outcome of a permission check for a (role, path) pair.
type Decision string

const (
	DecisionAllow        Decision = "allow"
	DecisionUnregistered Decision = "unregistered"
	DecisionNoLink       Decision = "no_link"
	DecisionDisabled     Decision = "disabled"
	DecisionRoleInactive Decision = "role_inactive"
	DecisionNoRole       Decision = "no_role"
)

func (d Decision) Allowed() bool { return d == DecisionAllow }

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAllow, DecisionUnregistered, DecisionNoLink, DecisionDisabled, DecisionRoleInactive, DecisionNoRole:
		return true
	}
	return false
}
