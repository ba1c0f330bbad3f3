package domain

// Account is a base-58 encoded public key.
type Account string

// TeamRecipient is the label published for payouts to the team wallet.
const TeamRecipient = "TEAM"

func (a Account) String() string { return string(a) }

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool { return a == "" }

// TokenAccount is one raw token account of the tracked mint as returned by the ledger.
type TokenAccount struct {
	Owner  Account
	Amount uint64 // raw token units
}

// HolderSet is the ordered list of distinct owners with a nonzero token balance
// at snapshot time. It is rebuilt every cycle and never persisted.
type HolderSet []Account

// Contains reports whether acc is part of the set.
func (h HolderSet) Contains(acc Account) bool {
	for _, a := range h {
		if a == acc {
			return true
		}
	}
	return false
}
