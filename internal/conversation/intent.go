package conversation

import "strings"

// Intent is what an utterance asks for.
type Intent string

const (
	IntentShowSchedule Intent = "show_schedule"
	IntentAddSchedule  Intent = "add_schedule"
	IntentChat         Intent = "chat"
)

// intentRules is evaluated top to bottom; the first phrase found wins.
// show_schedule comes first so "what's my schedule" is not taken as add.
var intentRules = []struct {
	intent  Intent
	phrases []string
}{
	{IntentShowSchedule, []string{"show schedule", "what's my schedule", "my schedule"}},
	{IntentAddSchedule, []string{"remind me", "schedule", "add"}},
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'")

// Classify maps an utterance to an intent by case-insensitive substring match.
func Classify(text string) Intent {
	norm := apostrophes.Replace(strings.ToLower(text))
	for _, rule := range intentRules {
		for _, p := range rule.phrases {
			if strings.Contains(norm, p) {
				return rule.intent
			}
		}
	}
	return IntentChat
}
