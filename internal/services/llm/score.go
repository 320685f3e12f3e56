package llm

import (
	"strconv"
	"strings"
	"unicode"
)

// ExtractScore finds the first integer in a free-text oracle response and
// clamps it to [0,100]. The second return is false when no integer is present;
// callers substitute their documented default in that case.
func ExtractScore(content string) (int, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, false
	}

	start := -1
	for i, r := range content {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}

	value, err := strconv.Atoi(content[start:end])
	if err != nil {
		return 0, false
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, true
}
