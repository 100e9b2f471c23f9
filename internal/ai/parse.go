package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultTitle is used when a generated recipe has no recognizable title line.
const DefaultTitle = "料理"

var (
	titlePattern = regexp.MustCompile(`(?mi)^[\s>#*-]*(?:料理名|タイトル|title|dish)\s*[:：]\s*(.+)$`)
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	listSplitter = regexp.MustCompile(`[,、，\n]`)
)

// ParseIngredients extracts ingredient names from a model reply. It accepts
// a JSON array, an object with an "ingredients" array (optionally inside a
// fenced code block), or a plain list separated by commas, 、 or newlines.
func ParseIngredients(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return []string{}
	}
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		content = strings.TrimSpace(m[1])
	}

	if names, ok := parseJSONNames(content); ok {
		return cleanNames(names)
	}
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start >= 0 && end > start {
		if names, ok := parseJSONNames(content[start : end+1]); ok {
			return cleanNames(names)
		}
	}

	return cleanNames(listSplitter.Split(content, -1))
}

func parseJSONNames(content string) ([]string, bool) {
	var list []string
	if err := json.Unmarshal([]byte(content), &list); err == nil {
		return list, true
	}
	var wrapped struct {
		Ingredients []string `json:"ingredients"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.Ingredients != nil {
		return wrapped.Ingredients, true
	}
	return nil, false
}

func cleanNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.Trim(name, "・-*•[]\"'「」 \t\r\n")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ParseTitle returns the dish name from a line such as "料理名: 肉じゃが" or
// "Title: Tomato Soup", or DefaultTitle when there is none.
func ParseTitle(text string) string {
	m := titlePattern.FindStringSubmatch(text)
	if m == nil {
		return DefaultTitle
	}
	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), "*_`"))
	if title == "" {
		return DefaultTitle
	}
	return title
}
