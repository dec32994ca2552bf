// Package prompt renders {{variable}} placeholders in system prompts.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a named prompt with its placeholder names extracted up front.
type Template struct {
	Name      string
	Text      string
	Variables []string
}

// New parses text once; Render may then be called concurrently.
func New(name, text string) *Template {
	return &Template{
		Name:      name,
		Text:      text,
		Variables: ExtractVariables(text),
	}
}

// Render fills the template. Every placeholder must have a value.
func (t *Template) Render(vars map[string]string) (string, error) {
	out, err := Render(t.Text, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name, err)
	}
	return out, nil
}

// Render replaces {{variable}} placeholders in the template with values from vars.
func Render(template string, vars map[string]string) (string, error) {
	missing := findMissingVars(template, vars)
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	result := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		return vars[match[2:len(match)-2]]
	})

	return result, nil
}

// ExtractVariables returns the distinct variable names in order of first use.
func ExtractVariables(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

func findMissingVars(template string, vars map[string]string) []string {
	var missing []string
	for _, v := range ExtractVariables(template) {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
