package match

import (
	"regexp"
	"strings"

	"github.com/okian/saltyscope/internal/domain/model"
)

var (
	bracketPattern     = regexp.MustCompile(`(?i)\d+\s*characters are left in the bracket!`)
	matchmakingPattern = regexp.MustCompile(`(?i)\d+\s*more matches until the next tournament!`)
	decorationPattern  = regexp.MustCompile(`^\s*\d+\s*\|\s*|\s*\|\s*\d+\s*|\x{00A0}`)
)

// Placeholder identities used by team exhibitions.
const (
	TeamA = "Team A"
	TeamB = "Team B"
)

// DetectMode classifies the footer signal text. A nil signal means the element was absent.
func DetectMode(signal *string) model.EventMode {
	if signal == nil {
		return model.Matchmaking
	}
	text := strings.TrimSpace(*signal)
	switch {
	case strings.Contains(text, "Tournament mode start!"),
		bracketPattern.MatchString(text),
		strings.Contains(text, "FINAL ROUND!"):
		return model.Tournament
	case matchmakingPattern.MatchString(text):
		return model.Matchmaking
	default:
		return model.Exhibition
	}
}

// CleanIdentity strips seat-number decorations and non-breaking spaces.
func CleanIdentity(raw string) string {
	return strings.TrimSpace(decorationPattern.ReplaceAllString(raw, ""))
}

// IsCoinFlipPair reports whether the pair is the generic team placeholder in either order.
func IsCoinFlipPair(mode model.EventMode, a, b string) bool {
	if mode != model.Exhibition {
		return false
	}
	return (a == TeamA && b == TeamB) || (a == TeamB && b == TeamA)
}
