package domain

import "time"

// SettlementIdentifier is a handle used to receive funds, capped per day.
type SettlementIdentifier struct {
	Handle     string    `json:"handle"`
	Issuer     string    `json:"issuer"`
	DailyLimit int64     `json:"daily_limit"`
	UsedToday  int64     `json:"used_today"`
	Active     bool      `json:"active"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Utilization returns usedToday / dailyLimit. A non-positive limit counts as full.
func (s *SettlementIdentifier) Utilization() float64 {
	if s.DailyLimit <= 0 {
		return 1
	}
	return float64(s.UsedToday) / float64(s.DailyLimit)
}

// HasCapacity reports whether the identifier can take one more use today.
func (s *SettlementIdentifier) HasCapacity() bool {
	return s.Active && s.UsedToday < s.DailyLimit
}

// Selection is the outcome of one rotation pool pick. Degraded is set when the
// pool had no capacity and the configured default handle was used instead.
type Selection struct {
	Handle     string `json:"handle"`
	Issuer     string `json:"issuer,omitempty"`
	UsedToday  int64  `json:"used_today"`
	DailyLimit int64  `json:"daily_limit"`
	Degraded   bool   `json:"degraded"`
}
