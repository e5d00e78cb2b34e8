package memory

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	TierFree     = "free"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Turn is one message in a user's conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StyleStats holds rolling stylistic signals derived from inbound text.
// Ratios are blended with weight 0.5 on every observation
// (new = (old + sample) / 2), matching the legacy on-disk values.
type StyleStats struct {
	LowercaseRatio float64 `json:"lowercase_ratio"`
	EmojiRatio     float64 `json:"emoji_usage"`
	ShortCount     int     `json:"short_count"`
}

// UserRecord is the per-user state entity persisted in the memory file.
// Username is the last handle seen for the user; maintenance jobs use
// it to match a privileged user configured by name instead of id.
type UserRecord struct {
	Username       string            `json:"username,omitempty"`
	History        []Turn            `json:"history"`
	Summary        string            `json:"summary,omitempty"`
	Facts          map[string]string `json:"facts"`
	Style          StyleStats        `json:"style"`
	EmotionalScore int               `json:"emotional_score"`
	XP             int               `json:"xp"`
	Level          int               `json:"level"`
	MsgCount       int               `json:"msg_count"`
	LastMsgTime    time.Time         `json:"last_msg_time"`
	LastActive     time.Time         `json:"last_active"`
	Streak         int               `json:"streak"`
	LastConvoDate  string            `json:"last_convo_date,omitempty"`
	Tier           string            `json:"tier"`
}

func defaultStyle() StyleStats {
	return StyleStats{LowercaseRatio: 0.5, EmojiRatio: 0.2}
}

func newUserRecord() *UserRecord {
	return &UserRecord{
		History: []Turn{},
		Facts:   map[string]string{},
		Style:   defaultStyle(),
		Tier:    TierFree,
	}
}

// heal upgrades legacy record shapes in place: fields added after a
// record was originally persisted get their defaults instead of the
// record being rejected.
func (r *UserRecord) heal() {
	if r.History == nil {
		r.History = []Turn{}
	}
	if r.Facts == nil {
		r.Facts = map[string]string{}
	}
	if r.Style == (StyleStats{}) {
		r.Style = defaultStyle()
	}
	if r.Tier == "" {
		r.Tier = TierFree
	}
	if r.XP < 0 {
		r.XP = 0
	}
	if r.Level < 0 {
		r.Level = 0
	}
}
