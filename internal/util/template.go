package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// RenderTemplate replaces template variables using Go's text/template package.
// Besides the state map, templates may call {{date}} for the current UTC date.
// Referencing a key absent from state is an error.
func RenderTemplate(text string, state map[string]any) (string, error) {
	return renderTemplate(text, state, time.Now)
}

func renderTemplate(text string, state map[string]any, now func() time.Time) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("instructions").Option("missingkey=error").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"date": func() string {
			return now().UTC().Format("2006-01-02")
		},
		"join": func(sep string, items []any) string {
			strItems := make([]string, len(items))
			for i, item := range items {
				strItems[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(strItems, sep)
		},
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return buf.String(), nil
}
