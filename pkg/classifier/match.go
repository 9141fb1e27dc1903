package classifier

import "strings"

// containsTrigger checks if the prompt contains the trigger phrase.
// It looks for the trigger as a word or phrase boundary match.
func containsTrigger(prompt, trigger string) bool {
	start := 0
	for {
		idx := strings.Index(prompt[start:], trigger)
		if idx == -1 {
			return false
		}
		idx += start

		endIdx := idx + len(trigger)
		boundedBefore := idx == 0 || !isWordChar(prompt[idx-1])
		boundedAfter := endIdx >= len(prompt) || !isWordChar(prompt[endIdx])
		if boundedBefore && boundedAfter {
			return true
		}
		start = idx + 1
	}
}

// firstTrigger returns the first trigger, in list order, found in prompt.
func firstTrigger(prompt string, triggers []string) (string, bool) {
	for _, trigger := range triggers {
		if containsTrigger(prompt, trigger) {
			return trigger, true
		}
	}
	return "", false
}

// countTriggers counts how many distinct triggers appear in prompt.
func countTriggers(prompt string, triggers []string) int {
	n := 0
	for _, trigger := range triggers {
		if containsTrigger(prompt, trigger) {
			n++
		}
	}
	return n
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
