package core

import "strings"

// Identity is the signed-in staff member, as asserted by the OAuth provider.
// It lives in the session cookie only; there is no local user table.
type Identity struct {
	Email string
	Name  string
}

// EmailDomain returns the part of the email after '@', lowered.
func (id Identity) EmailDomain() string {
	if i := strings.LastIndex(id.Email, "@"); i >= 0 {
		return strings.ToLower(id.Email[i+1:])
	}
	return ""
}
