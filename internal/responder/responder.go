// Package responder answers chat messages with canned health guidance.
package responder

import "strings"

// Fallback is returned when no rule matches.
const Fallback = "I'm still learning! Could you rephrase or provide more details about your symptoms?"

type rule struct {
	keywords []string
	reply    string
}

// Rules are checked in order; the first rule with a keyword contained in the
// message wins.
var rules = []rule{
	{
		keywords: []string{"fever", "cold"},
		reply:    "You may be experiencing flu-like symptoms. Please stay hydrated and consult a doctor if it persists.",
	},
	{
		keywords: []string{"headache"},
		reply:    "Try to rest in a quiet dark room. Drink water. If pain continues, consider taking a paracetamol.",
	},
	{
		keywords: []string{"not feeling well"},
		reply:    "I'm here for you! Can you tell me more about your symptoms?",
	},
	{
		keywords: []string{"medicine", "tablet"},
		reply:    "Please consult a certified doctor before taking any medication. I can help guide you to one!",
	},
}

// Respond returns the bot reply for text. Matching is case-insensitive
// substring containment, so "colder" matches "cold".
func Respond(text string) string {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.reply
			}
		}
	}
	return Fallback
}
