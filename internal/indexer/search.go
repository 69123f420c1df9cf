package indexer

import (
	"regexp"
	"strings"

	"shortclaim/internal/model"
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseSearch turns free text into a claim filter. Tokens of the form
// key:value set owner, email, status, dnsname or name; any other token is
// a name prefix, or an owner if it looks like an address.
func ParseSearch(text string) model.ClaimFilter {
	var f model.ClaimFilter
	for _, tok := range strings.Fields(text) {
		key, value, ok := strings.Cut(tok, ":")
		if ok {
			switch strings.ToLower(key) {
			case "owner":
				f.Owner = value
				continue
			case "email":
				f.Email = strings.ToLower(value)
				continue
			case "status":
				if s, ok := model.ParseClaimStatus(value); ok {
					f.Status = s
				}
				continue
			case "dnsname":
				f.DNSNamePrefix = value
				continue
			case "name":
				f.NamePrefix = value
				continue
			}
		}
		if addressRe.MatchString(tok) {
			f.Owner = tok
		} else {
			f.NamePrefix = tok
		}
	}
	return f
}

// EstimateTotal guesses a row count for pagination: a full page implies at
// least one more row.
func EstimateTotal(skip, limit, got int) int {
	if got == limit {
		return skip + limit + 1
	}
	return skip + got
}
