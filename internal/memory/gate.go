package memory

import "time"

// Gate enforces the per-user cooldown window and the lifetime reply
// budget. Allow never mutates state; after a reply is actually
// produced the caller records it with RecordReply. A rejected or
// failed turn therefore consumes neither cooldown nor budget.
type Gate struct {
	cooldown   time.Duration
	budgets    map[string]int
	privileged string
}

func NewGate(cooldownSeconds int, budgets map[string]int, privileged string) *Gate {
	return &Gate{
		cooldown:   time.Duration(cooldownSeconds) * time.Second,
		budgets:    budgets,
		privileged: privileged,
	}
}

// BudgetFor returns the lifetime reply budget for a tier; 0 means
// unlimited.
func (g *Gate) BudgetFor(tier string) int {
	if g.budgets == nil {
		return 0
	}
	return g.budgets[tier]
}

// Allow reports whether a reply to this user may be produced now.
func (g *Gate) Allow(rec *UserRecord, userID string, now time.Time) bool {
	if g.isPrivileged(rec, userID) {
		return true
	}
	if budget := g.BudgetFor(rec.Tier); budget > 0 && rec.MsgCount >= budget {
		return false
	}
	if !rec.LastMsgTime.IsZero() && now.Sub(rec.LastMsgTime) < g.cooldown {
		return false
	}
	return true
}

// The privileged user may be configured by id or by handle; the
// record's remembered username covers the latter.
func (g *Gate) isPrivileged(rec *UserRecord, userID string) bool {
	if g.privileged == "" {
		return false
	}
	return userID == g.privileged || (rec.Username != "" && rec.Username == g.privileged)
}

// RecordReply marks an accepted reply: called only after the
// completion call succeeded and the reply is about to be sent.
func RecordReply(rec *UserRecord, now time.Time) {
	rec.LastMsgTime = now
	rec.MsgCount++
}
