package security

import (
	"strings"

	"familygallery/internal/models"
)

// StaticAdminPolicy grants administrator rights to a fixed set of emails
type StaticAdminPolicy struct {
	emails map[string]struct{}
}

// NewStaticAdminPolicy builds a policy from an allow-list of emails
func NewStaticAdminPolicy(emails []string) *StaticAdminPolicy {
	p := &StaticAdminPolicy{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			p.emails[e] = struct{}{}
		}
	}
	return p
}

// IsAdmin reports whether the identity is on the allow-list
func (p *StaticAdminPolicy) IsAdmin(id models.Identity) bool {
	if id.AccountID <= 0 || id.Email == "" {
		return false
	}
	_, ok := p.emails[strings.ToLower(id.Email)]
	return ok
}
