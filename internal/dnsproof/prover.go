package dnsproof

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrNotSupported means the zone is signed with an algorithm the on-chain
// oracle cannot verify. Callers treat it as "no proof found".
var ErrNotSupported = errors.New("DNSSEC algorithm not supported")

var supportedAlgorithms = map[uint8]bool{
	dns.RSASHA1:         true,
	dns.RSASHA256:       true,
	dns.ECDSAP256SHA256: true,
}

// SignedSet is an RRset and the signature covering it. Sig is nil for an
// unsigned answer from a zone proven to be insecure.
type SignedSet struct {
	Name string
	Sig  *dns.RRSIG
	RRs  []dns.RR
}

// Proof is a signed set in the form the DNSSEC oracle accepts.
type Proof struct {
	Name      string
	Type      string
	Sig       []byte
	Inception uint32
	SigWire   []byte
	RRData    []byte
}

// Input is the oracle input for this proof: signature header followed by the
// canonical RRset.
func (p Proof) Input() []byte {
	out := make([]byte, 0, len(p.SigWire)+len(p.RRData))
	out = append(out, p.SigWire...)
	return append(out, p.RRData...)
}

type Result struct {
	Found   bool
	NSEC    bool
	Results []SignedSet
	Proofs  []Proof
}

type Prover struct {
	resolver Resolver
	now      func() time.Time
}

func NewProver(r Resolver) *Prover {
	return &Prover{resolver: r, now: time.Now}
}

// Lookup fetches name/qtype with DNSSEC records and returns the chain of
// signed sets from the zone keys down to the answer.
func (p *Prover) Lookup(ctx context.Context, qtype uint16, name string) (*Result, error) {
	msg, err := p.resolver.Query(ctx, name, qtype, true)
	if err != nil {
		return nil, err
	}
	if msg.Rcode != dns.RcodeSuccess && msg.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("lookup %s: %s", name, dns.RcodeToString[msg.Rcode])
	}

	rrs, sig := splitRRSet(msg.Answer, qtype)
	if len(rrs) == 0 {
		return &Result{NSEC: hasDenial(msg.Ns)}, nil
	}

	res := &Result{Found: true}
	if sig == nil {
		// Unsigned answer: acceptable only if the parent proves there is no DS.
		insecure, err := p.provenInsecure(ctx, registrable(name))
		if err != nil {
			return nil, err
		}
		res.NSEC = insecure
		res.Results = []SignedSet{{Name: dns.Fqdn(name), RRs: rrs}}
		return res, nil
	}

	if !supportedAlgorithms[sig.Algorithm] {
		return nil, fmt.Errorf("%s uses %s: %w", name, dns.AlgorithmToString[sig.Algorithm], ErrNotSupported)
	}

	keySet, err := p.zoneKeys(ctx, sig.SignerName)
	if err != nil {
		return nil, err
	}
	if err := p.verify(sig, keySet.RRs, rrs); err != nil {
		return nil, fmt.Errorf("verify %s: %w", name, err)
	}

	res.Results = []SignedSet{keySet, {Name: dns.Fqdn(name), Sig: sig, RRs: rrs}}
	for _, set := range res.Results {
		proof, err := encodeProof(set)
		if err != nil {
			return nil, err
		}
		res.Proofs = append(res.Proofs, proof)
	}
	return res, nil
}

// zoneKeys fetches and self-verifies the DNSKEY set of zone.
func (p *Prover) zoneKeys(ctx context.Context, zone string) (SignedSet, error) {
	msg, err := p.resolver.Query(ctx, zone, dns.TypeDNSKEY, true)
	if err != nil {
		return SignedSet{}, err
	}
	keys, sig := splitRRSet(msg.Answer, dns.TypeDNSKEY)
	if len(keys) == 0 || sig == nil {
		return SignedSet{}, fmt.Errorf("no signed DNSKEY set for %s", zone)
	}
	if !supportedAlgorithms[sig.Algorithm] {
		return SignedSet{}, fmt.Errorf("%s keys use %s: %w", zone, dns.AlgorithmToString[sig.Algorithm], ErrNotSupported)
	}
	if err := p.verify(sig, keys, keys); err != nil {
		return SignedSet{}, fmt.Errorf("verify DNSKEY %s: %w", zone, err)
	}
	return SignedSet{Name: dns.Fqdn(zone), Sig: sig, RRs: keys}, nil
}

func (p *Prover) verify(sig *dns.RRSIG, keys []dns.RR, rrset []dns.RR) error {
	if !sig.ValidityPeriod(p.now()) {
		return errors.New("signature outside its validity period")
	}
	for _, rr := range keys {
		key, ok := rr.(*dns.DNSKEY)
		if !ok || key.KeyTag() != sig.KeyTag || key.Algorithm != sig.Algorithm {
			continue
		}
		if err := sig.Verify(key, rrset); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no key with tag %d verifies the signature", sig.KeyTag)
}

func (p *Prover) provenInsecure(ctx context.Context, domain string) (bool, error) {
	msg, err := p.resolver.Query(ctx, domain, dns.TypeDS, true)
	if err != nil {
		return false, err
	}
	ds, _ := splitRRSet(msg.Answer, dns.TypeDS)
	return len(ds) == 0 && hasDenial(msg.Ns), nil
}

func splitRRSet(section []dns.RR, qtype uint16) ([]dns.RR, *dns.RRSIG) {
	var rrs []dns.RR
	var sig *dns.RRSIG
	for _, rr := range section {
		if s, ok := rr.(*dns.RRSIG); ok {
			if s.TypeCovered == qtype && sig == nil {
				sig = s
			}
			continue
		}
		if rr.Header().Rrtype == qtype {
			rrs = append(rrs, rr)
		}
	}
	return rrs, sig
}

func hasDenial(section []dns.RR) bool {
	for _, rr := range section {
		switch rr.Header().Rrtype {
		case dns.TypeNSEC, dns.TypeNSEC3:
			return true
		}
	}
	return false
}

// registrable strips leading labels down to the second-level domain.
func registrable(name string) string {
	labels := dns.SplitDomainName(name)
	if len(labels) <= 2 {
		return dns.Fqdn(name)
	}
	return dns.Fqdn(strings.Join(labels[len(labels)-2:], "."))
}
