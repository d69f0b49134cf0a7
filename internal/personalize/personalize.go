// Package personalize substitutes per-recipient tokens into campaign content.
//
// The placeholder grammar is fixed: {{name}}, optionally padded with spaces.
// Substitution is tolerant. A placeholder with no value anywhere renders as
// the empty string, so template syntax never reaches a recipient.
package personalize

import (
	"regexp"
	"strings"

	"campaignd/internal/domain"
)

// Standard token names taken from the recipient record.
const (
	TokenFirstName = "first_name"
	TokenLastName  = "last_name"
	TokenEmail     = "email"
)

var placeholder = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Resolve replaces every {{...}} occurrence in template with its value in
// fields, or with "" when fields has no such key.
func Resolve(template string, fields map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.TrimSpace(m[2 : len(m)-2])
		return fields[name]
	})
}

// Fields builds the token set for one recipient. Overrides win over the
// standard fields; an override that is present but empty still wins.
func Fields(r domain.Recipient, overrides map[string]string) map[string]string {
	out := make(map[string]string, 3+len(overrides))
	out[TokenFirstName] = r.FirstName
	out[TokenLastName] = r.LastName
	out[TokenEmail] = r.Address
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Render produces the personalized subject and body for one recipient.
func Render(tpl domain.Content, r domain.Recipient, overrides map[string]string) domain.Content {
	fields := Fields(r, overrides)
	return domain.Content{
		Subject: Resolve(tpl.Subject, fields),
		Body:    Resolve(tpl.Body, fields),
	}
}
