package memory

// Relationship labels in level order. Levels past the end of the table
// keep the last label.
var levelLabels = []string{"Stranger", "Familiar", "Friend", "Close", "Favorite"}

// MaxLevel is the highest labelled relationship level.
const MaxLevel = 4

// XPPerMessage is the XP granted for each inbound message.
const XPPerMessage = 5

// GiftXP is the XP granted by the /gift command.
const GiftXP = 20

// LevelLabel maps a numeric level to its display label, clamping at
// both ends.
func LevelLabel(level int) string {
	if level < 0 {
		level = 0
	}
	if level >= len(levelLabels) {
		level = len(levelLabels) - 1
	}
	return levelLabels[level]
}

// AddXP grants XP and applies the fixed-step level policy: while XP
// reaches the step, it rolls over into a level. One large grant can
// jump several levels, and XP stays below the step afterwards.
func AddXP(rec *UserRecord, step, amount int) {
	if step <= 0 || amount <= 0 {
		return
	}
	rec.XP += amount
	for rec.XP >= step {
		rec.XP -= step
		rec.Level++
	}
}

// DecayOne applies one maintenance decay tick to a record: XP drops by
// one, floored at zero, and a record sitting at zero XP after the tick
// loses a level, floored at zero.
func DecayOne(rec *UserRecord) {
	if rec.XP > 0 {
		rec.XP--
	}
	if rec.XP == 0 && rec.Level > 0 {
		rec.Level--
	}
}

// Ledger answers relationship queries and runs the decay sweep against
// the store. The privileged user is exempt from XP accrual and decay
// and always reports the maximum level.
type Ledger struct {
	store      *Store
	step       int
	privileged string
}

func NewLedger(store *Store, step int, privileged string) *Ledger {
	return &Ledger{store: store, step: step, privileged: privileged}
}

// IsPrivileged reports whether either identifier matches the
// configured privileged user.
func (l *Ledger) IsPrivileged(userID, username string) bool {
	if l.privileged == "" {
		return false
	}
	return userID == l.privileged || (username != "" && username == l.privileged)
}

// Level returns the numeric level and label for a user. Unknown users
// are Strangers.
func (l *Ledger) Level(userID, username string) (int, string) {
	if l.IsPrivileged(userID, username) {
		return MaxLevel, LevelLabel(MaxLevel)
	}
	level := 0
	l.store.View(userID, func(rec *UserRecord) {
		level = rec.Level
	})
	return level, LevelLabel(level)
}

// Grant adds XP for a user unless privileged, persisting the change.
func (l *Ledger) Grant(userID, username string, amount int) {
	if l.IsPrivileged(userID, username) {
		return
	}
	l.store.Mutate(userID, func(rec *UserRecord) {
		AddXP(rec, l.step, amount)
	})
}

// Decay runs the maintenance sweep over every non-privileged user.
// Invoked by the scheduler, never by message flow.
func (l *Ledger) Decay() {
	l.store.Sweep(func(userID string, rec *UserRecord) {
		if l.IsPrivileged(userID, rec.Username) {
			return
		}
		DecayOne(rec)
	})
}
