package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kokonet/kokobot/internal/config"
	"github.com/kokonet/kokobot/internal/llm"
	"github.com/kokonet/kokobot/internal/memory"
)

const defaultPersonaPrompt = `You are %s, a playful, sassy companion chat bot.
Personality: sarcastic, funny, expressive. Reply in one or two short sentences.`

// buildPrompt packages the record into chat messages: a system prompt
// carrying the rolling summary, learned facts, style signals and the
// relationship level, followed by the retained history (which already
// ends with the current user turn).
func buildPrompt(persona config.PersonaConfig, rec *memory.UserRecord, relationship string) []llm.Message {
	var sb strings.Builder

	name := persona.Name
	if name == "" {
		name = "Koko"
	}
	if persona.Description != "" {
		sb.WriteString(persona.Description)
	} else {
		fmt.Fprintf(&sb, defaultPersonaPrompt, name)
	}
	sb.WriteString("\n")

	if rec.Summary != "" {
		sb.WriteString("\nWhat you remember about this user:\n")
		sb.WriteString(rec.Summary)
		sb.WriteString("\n")
	}

	if len(rec.Facts) > 0 {
		sb.WriteString("\nKnown facts:\n")
		keys := make([]string, 0, len(rec.Facts))
		for k := range rec.Facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, rec.Facts[k])
		}
	}

	fmt.Fprintf(&sb, "\nUser style: lowercase_ratio=%.2f emoji_usage=%.2f\n", rec.Style.LowercaseRatio, rec.Style.EmojiRatio)
	fmt.Fprintf(&sb, "Relationship level: %s\n", relationship)
	if rec.Streak > 1 {
		fmt.Fprintf(&sb, "The user has talked to you %d days in a row.\n", rec.Streak)
	}

	msgs := make([]llm.Message, 0, len(rec.History)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: sb.String()})
	for _, t := range rec.History {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}
