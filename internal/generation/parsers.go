package generation

import "strings"

// ParseBrief extracts the brief payload from a TOPIC/AUDIENCE/KEY MESSAGES/
// RESEARCH NOTES formatted response.
func ParseBrief(response string) map[string]any {
	payload := map[string]any{
		"topic":          sectionAfter(response, "TOPIC:", "AUDIENCE:"),
		"audience":       sectionAfter(response, "AUDIENCE:", "KEY MESSAGES:"),
		"research_notes": sectionAfter(response, "RESEARCH NOTES:", ""),
	}

	var messages []string
	msgSection := sectionAfter(response, "KEY MESSAGES:", "RESEARCH NOTES:")
	for _, line := range strings.Split(msgSection, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 2 && line[0] >= '1' && line[0] <= '9' && line[1] == '.' {
			if msg := strings.TrimSpace(line[2:]); msg != "" {
				messages = append(messages, msg)
			}
		}
	}
	payload["key_messages"] = messages
	return payload
}

// ParseHooks extracts hook variations delimited by ===HOOK n=== markers.
func ParseHooks(response string) map[string]any {
	var options []string

	parts := strings.Split(response, "===HOOK")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}

		lines := strings.Split(part, "\n")
		if len(lines) < 2 {
			continue
		}

		content := strings.TrimSpace(strings.Join(lines[1:], "\n"))
		if content != "" {
			options = append(options, content)
		}
	}

	return map[string]any{"options": options, "raw": response}
}

// ParseOutline extracts the structure outline from an OUTLINE: response.
func ParseOutline(response string) map[string]any {
	outline := sectionAfter(response, "OUTLINE:", "")
	if outline == "" {
		outline = strings.TrimSpace(response)
	}
	return map[string]any{"outline": outline}
}

// ParseContent wraps the final post text.
func ParseContent(response string) map[string]any {
	return map[string]any{"text": strings.TrimSpace(response)}
}

// sectionAfter returns the trimmed text between a marker and the next
// marker, or to the end of the response when end is empty or absent.
func sectionAfter(response, start, end string) string {
	idx := strings.Index(response, start)
	if idx == -1 {
		return ""
	}
	rest := response[idx+len(start):]
	if end != "" {
		if endIdx := strings.Index(rest, end); endIdx != -1 {
			rest = rest[:endIdx]
		}
	}
	return strings.TrimSpace(rest)
}
