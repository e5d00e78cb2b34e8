package memory

import (
	"strings"
	"time"
	"unicode"
)

// Emoji set the legacy bot counted; kept for on-disk ratio compatibility.
const emojiChars = "😀😂🤣😅😎😏🙃😉"

// shortMessageRunes is the inclusive rune-count ceiling for a message
// to count as "short".
const shortMessageRunes = 8

var positiveWords = map[string]bool{
	"love": true, "great": true, "happy": true, "awesome": true,
	"fun": true, "thanks": true, "cool": true, "nice": true,
	"haha": true, "lol": true, "good": true, "best": true,
}

var negativeWords = map[string]bool{
	"hate": true, "sad": true, "angry": true, "terrible": true,
	"awful": true, "bad": true, "annoying": true, "ugh": true,
	"boring": true, "worst": true, "mad": true, "cry": true,
}

const dateLayout = "2006-01-02"

// Observe folds one inbound message into the record's style counters,
// sentiment score, streak and activity timestamp. It only reads the
// clock; all other effects stay inside the record.
func Observe(rec *UserRecord, text string, now time.Time) {
	rec.LastActive = now

	runes := []rune(text)
	if len(runes) > 0 {
		lower := 0
		emoji := 0
		for _, r := range runes {
			if unicode.IsLower(r) {
				lower++
			}
			if strings.ContainsRune(emojiChars, r) {
				emoji++
			}
		}
		total := float64(len(runes))
		rec.Style.LowercaseRatio = (rec.Style.LowercaseRatio + float64(lower)/total) / 2
		rec.Style.EmojiRatio = (rec.Style.EmojiRatio + float64(emoji)/total) / 2
		if len(runes) <= shortMessageRunes {
			rec.Style.ShortCount++
		}
	}

	rec.EmotionalScore += sentimentScore(text)
	updateStreak(rec, now)
}

// sentimentScore is the positive minus negative keyword match count,
// case-insensitive, word-boundary matched.
func sentimentScore(text string) int {
	score := 0
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		if positiveWords[w] {
			score++
		}
		if negativeWords[w] {
			score--
		}
	}
	return score
}

func updateStreak(rec *UserRecord, now time.Time) {
	today := now.Format(dateLayout)
	if rec.LastConvoDate == today {
		return
	}
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	if rec.LastConvoDate == yesterday {
		rec.Streak++
	} else {
		rec.Streak = 1
	}
	rec.LastConvoDate = today
}
