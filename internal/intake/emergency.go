package intake

import "strings"

// EmergencyKeywords is the fixed list checked against every user message.
//
// Detection is plain case-insensitive substring containment. It misses
// paraphrases and can fire inside unrelated words. It is a prompt to surface
// emergency numbers, never the sole safety mechanism of a deployment.
var EmergencyKeywords = []string{
	"chest pain",
	"heart attack",
	"stroke",
	"unconscious",
	"unconsciousness",
	"not breathing",
	"trouble breathing",
	"difficulty breathing",
	"severe bleeding",
	"uncontrolled bleeding",
	"seizure",
	"seizures",
	"suicide",
	"poisoning",
}

// IsEmergency reports whether message contains any emergency keyword.
func IsEmergency(message string) bool {
	_, ok := MatchEmergency(message)
	return ok
}

// MatchEmergency returns the first keyword found in message.
func MatchEmergency(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, kw := range EmergencyKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}
