package dnsproof

import (
	"regexp"

	"github.com/miekg/dns"
)

var ownerTxtRe = regexp.MustCompile(`^a=(0x[0-9a-fA-F]{40})$`)

// TXTName is the name carrying the claimant's TXT record for domain.
func TXTName(domain string) string {
	return "_ens." + domain
}

// Record summarises what the DNS says about a claim.
type Record struct {
	Found   bool   // an answer was present
	Secure  bool   // the answer was DNSSEC-validated
	NSEC    bool   // the domain is proven to be unsigned
	Address string // owner address from the first matching TXT value
}

// ExtractOwnerAddress scans TXT records in order and returns the address of
// the first value of the form a=0x<40 hex digits>, exactly as published.
func ExtractOwnerAddress(rrs []dns.RR) (string, bool) {
	for _, rr := range rrs {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, v := range txt.Txt {
			if m := ownerTxtRe.FindStringSubmatch(v); m != nil {
				return m[1], true
			}
		}
	}
	return "", false
}

// IsProofValid requires an owner address plus either a DNSSEC proof or a
// proof that the domain does not use DNSSEC.
func IsProofValid(rec Record) bool {
	return rec.Address != "" && (rec.Secure || rec.NSEC)
}

// FromAnswer builds a Record from a plain resolver response. Secure mirrors
// the resolver's AD bit.
func FromAnswer(msg *dns.Msg) Record {
	var rec Record
	if msg == nil {
		return rec
	}
	rec.Found = msg.Rcode == dns.RcodeSuccess && len(msg.Answer) > 0
	if !rec.Found {
		return rec
	}
	rec.Secure = msg.AuthenticatedData
	rec.Address, _ = ExtractOwnerAddress(msg.Answer)
	return rec
}

// FromProof builds a Record from a DNSSEC lookup, reading the owner address
// from the most recent set in the chain.
func FromProof(res *Result) Record {
	var rec Record
	if res == nil {
		return rec
	}
	rec.Found = res.Found
	rec.NSEC = res.NSEC
	if !res.Found || len(res.Results) == 0 {
		return rec
	}
	last := res.Results[len(res.Results)-1]
	rec.Secure = last.Sig != nil
	rec.Address, _ = ExtractOwnerAddress(last.RRs)
	return rec
}
