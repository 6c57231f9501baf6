// Package prompt renders flow prompt templates.
//
// Placeholders are written {{field}} or {{{field}}}; both forms substitute
// the literal value with no escaping, since the result is model prompt text
// and not markup.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\{([^{}]*)\}\}\}|\{\{([^{}]*)\}\}`)
	identRe       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Template is a parsed prompt template. It is immutable after Parse.
type Template struct {
	text     string
	segments []segment
	fields   []string
}

type segment struct {
	literal string
	field   string
}

// Parse splits text into literal runs and placeholders. A stray "{{" is an
// error; a lone "}}" is literal text, so prompts can carry JSON examples.
func Parse(text string) (*Template, error) {
	t := &Template{text: text}
	seen := make(map[string]bool)

	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		literal := text[last:loc[0]]
		if strings.Contains(literal, "{{") {
			return nil, fmt.Errorf("template: unbalanced braces near offset %d", last)
		}

		var name string
		if loc[2] >= 0 {
			name = text[loc[2]:loc[3]]
		} else {
			name = text[loc[4]:loc[5]]
		}
		name = strings.TrimSpace(name)
		if !identRe.MatchString(name) {
			return nil, fmt.Errorf("template: malformed placeholder %q", text[loc[0]:loc[1]])
		}

		if literal != "" {
			t.segments = append(t.segments, segment{literal: literal})
		}
		t.segments = append(t.segments, segment{field: name})
		if !seen[name] {
			seen[name] = true
			t.fields = append(t.fields, name)
		}
		last = loc[1]
	}

	tail := text[last:]
	if strings.Contains(tail, "{{") {
		return nil, fmt.Errorf("template: unbalanced braces near offset %d", last)
	}
	if tail != "" {
		t.segments = append(t.segments, segment{literal: tail})
	}
	return t, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Template {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Fields returns the distinct placeholder names in order of first use.
func (t *Template) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Text returns the template source.
func (t *Template) Text() string {
	return t.text
}

// Render substitutes every placeholder with the string form of the matching
// value. Absent values render as the empty string.
func (t *Template) Render(values map[string]any) string {
	var b strings.Builder
	b.Grow(len(t.text))
	for _, seg := range t.segments {
		if seg.field == "" {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(format(values[seg.field]))
	}
	return b.String()
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
