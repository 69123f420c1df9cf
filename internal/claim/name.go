package claim

import (
	"errors"
	"regexp"
	"strings"
)

// ErrIneligible is returned when a domain has no claimable shape at all.
var ErrIneligible = errors.New("domain is not eligible for a short name claim")

var (
	nameRe  = regexp.MustCompile(`^([^.]{3,6}\.[^.]+|[^.]{3,6}eth\.[^.]+|[^.]{1,4}\.[^.]{2}|[^.]{1,3}\.[^.]{3}|[^.]{1,2}\.[^.]{4}|[^.]{1}\.[^.]{5})$`)
	emailRe = regexp.MustCompile(`^[^@]+@[^.]+\..+$`)
)

// IsEligible reports whether name is a second-level domain whose shape could
// yield a 3-6 character label. Names are matched as entered.
func IsEligible(name string) bool {
	return nameRe.MatchString(name)
}

// IsValidEmail reports whether email has a local part, an @ and a dotted
// domain. Callers normalize first.
func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// NormalizeEmail trims and lower-cases an address so it hashes the same
// way into a claim id every time.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
