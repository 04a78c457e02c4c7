package conversation

import (
	"strings"
	"unicode"

	"github.com/shubh-37/postpilot/internal/models"
)

// focusKeywords maps each focus area to the topical markers a user turn is
// matched against. Matching is lowercase substring containment; a turn may
// satisfy zero or more areas.
var focusKeywords = map[models.FocusArea][]string{
	models.FocusHookPreference: {
		"hook", "opening line", "first line", "grab attention", "start with",
		"catchy", "attention",
	},
	models.FocusAudienceAndPainPoints: {
		"audience", "readers", "followers", "founders", "developers",
		"engineers", "managers", "struggle", "pain point", "problem",
		"frustrat", "for people", "target", "they deal with",
	},
	models.FocusUniqueAngle: {
		"angle", "different", "contrarian", "unlike", "my take",
		"perspective", "nobody talks", "hot take", "unpopular",
	},
	models.FocusKeyMessage: {
		"main point", "takeaway", "key message", "the point", "lesson",
		"message", "want them to remember", "bottom line",
	},
	models.FocusPersonalStory: {
		"i remember", "last year", "last month", "when i", "my experience",
		"story", "happened to me", "i once", "we built", "i built",
		"i worked", "i tried", "i learned",
	},
	models.FocusSupportingData: {
		"percent", "data", "numbers", "stat", "research", "study", "metric",
		"survey", "benchmark", "grew", "increase", "%",
	},
	models.FocusStylePreference: {
		"tone", "casual", "formal", "emoji", "short post", "long post",
		"bullet", "style", "sound like", "voice", "keep it",
	},
}

// MatchFocusAreas evaluates which focus areas a user turn addresses. The
// result follows the fixed priority order of the enumeration.
func MatchFocusAreas(text string) []models.FocusArea {
	lowered := strings.ToLower(text)

	var matched []models.FocusArea
	for _, fa := range models.AllFocusAreas() {
		for _, kw := range focusKeywords[fa] {
			if strings.Contains(lowered, kw) {
				matched = append(matched, fa)
				break
			}
		}
		// A turn containing digits counts toward supporting data even
		// without an explicit keyword.
		if fa == models.FocusSupportingData && !contains(matched, fa) && hasDigit(lowered) {
			matched = append(matched, fa)
		}
	}
	return matched
}

func contains(areas []models.FocusArea, fa models.FocusArea) bool {
	for _, a := range areas {
		if a == fa {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
