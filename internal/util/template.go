package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"percent": func(v float64) string {
		return fmt.Sprintf("%.0f%%", v*100)
	},
}

// RenderTemplate executes text as a text/template against data. Text
// without template markers is returned unchanged.
// This lives in internal to avoid committing to public API stability prematurely.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}

	return buf.String(), nil
}
