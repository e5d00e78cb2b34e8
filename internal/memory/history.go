package memory

import (
	"fmt"
	"strings"
)

// SummarizeFunc compresses a slice of old turns into a text digest.
// It delegates to the completion API and may fail; a failure must
// leave the record untouched.
type SummarizeFunc func(turns []Turn) (string, error)

// Append pushes a turn onto the record's history.
func Append(rec *UserRecord, role, content string) {
	rec.History = append(rec.History, Turn{Role: role, Content: content})
}

// Forget drops up to n of the most recent turns and reports how many
// were removed.
func Forget(rec *UserRecord, n int) int {
	if n <= 0 || len(rec.History) == 0 {
		return 0
	}
	if n > len(rec.History) {
		n = len(rec.History)
	}
	rec.History = rec.History[:len(rec.History)-n]
	return n
}

// MaybeSummarize compacts the user's history once it reaches the
// trigger length: the oldest turns beyond the retain window are
// summarized and replaced by a digest appended to the record's
// summary. Below the trigger it is a cheap no-op, so it is safe to
// call on every inbound message. The summarizer runs outside the
// store lock; if it fails, history and summary are left unchanged and
// the error is returned.
func (s *Store) MaybeSummarize(userID string, trigger, retain int, summarize SummarizeFunc) error {
	if trigger <= 0 || retain < 0 || retain >= trigger {
		return fmt.Errorf("invalid summarize window: trigger=%d retain=%d", trigger, retain)
	}

	var old []Turn
	s.mu.Lock()
	rec, ok := s.users[userID]
	if ok && len(rec.History) >= trigger {
		old = make([]Turn, len(rec.History)-retain)
		copy(old, rec.History[:len(rec.History)-retain])
	}
	s.mu.Unlock()

	if len(old) == 0 {
		return nil
	}

	digest, err := summarize(old)
	if err != nil {
		return fmt.Errorf("summarize %d turns: %w", len(old), err)
	}
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return fmt.Errorf("summarize %d turns: empty digest", len(old))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok = s.users[userID]
	if !ok || len(rec.History) < len(old) {
		return nil
	}
	// Drop exactly the turns that were summarized; anything appended
	// since the snapshot stays.
	rec.History = append([]Turn{}, rec.History[len(old):]...)
	if rec.Summary == "" {
		rec.Summary = digest
	} else {
		rec.Summary += "\n" + digest
	}
	s.saveLocked()
	return nil
}
