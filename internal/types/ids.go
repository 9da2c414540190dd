package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewQuoteID generates a UUIDv7 quote identifier.
// Time-ordered IDs keep quote inserts clustered in B-tree pages.
func NewQuoteID() QuoteID {
	return QuoteID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to RuleID.
func ParseRuleID(s string) (RuleID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseQuoteID validates and converts a string to QuoteID.
func ParseQuoteID(s string) (QuoteID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return QuoteID(s), nil
}

// QuoteIDTime extracts the timestamp embedded in a UUIDv7 quote ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func QuoteIDTime(id QuoteID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
