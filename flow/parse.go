package flow

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var codeBlockRe = regexp.MustCompile("(?s)```(\\w+)?[ \\t]*\\n(.*?)```")

// extractCodeBlock returns the language and content of the first fenced code
// block in input, or ("", input) when there is none.
func extractCodeBlock(input string) (lang string, content string) {
	matches := codeBlockRe.FindStringSubmatch(input)
	if len(matches) > 0 {
		return strings.TrimSpace(matches[1]), strings.TrimSpace(matches[2])
	}
	return "", input
}

// parseResponse reads a model answer as a JSON object. Models often wrap the
// object in a code fence or a sentence, so both are stripped first.
func parseResponse(raw string) (map[string]any, error) {
	_, text := extractCodeBlock(strings.TrimSpace(raw))
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty response")
	}

	if !gjson.Valid(text) {
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start || !gjson.Valid(text[start:end+1]) {
			return nil, errors.New("response is not valid JSON")
		}
		text = text[start : end+1]
	}

	result := gjson.Parse(text)
	if !result.IsObject() {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(result))
	}
	obj, ok := result.Value().(map[string]interface{})
	if !ok {
		return nil, errors.New("expected a JSON object")
	}
	return obj, nil
}

func jsonKind(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.Type == gjson.String:
		return "string"
	case r.Type == gjson.Number:
		return "number"
	case r.Type == gjson.True, r.Type == gjson.False:
		return "boolean"
	case r.Type == gjson.Null:
		return "null"
	}
	return r.Type.String()
}
