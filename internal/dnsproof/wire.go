package dnsproof

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/miekg/dns"
)

// EncodeName returns the uncompressed DNS wire form of domain.
func EncodeName(domain string) ([]byte, error) {
	name := dns.Fqdn(domain)
	buf := make([]byte, len(name)+1)
	off, err := dns.PackDomainName(name, buf, 0, nil, false)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", domain, err)
	}
	return buf[:off], nil
}

func encodeProof(set SignedSet) (Proof, error) {
	sig := dns.Copy(set.Sig).(*dns.RRSIG)
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return Proof{}, fmt.Errorf("decode signature for %s: %w", set.Name, err)
	}
	sig.Signature = ""
	_, sigWire, err := packRR(sig)
	if err != nil {
		return Proof{}, err
	}

	rrData, err := canonicalRRSet(set.RRs, sig.OrigTtl)
	if err != nil {
		return Proof{}, err
	}

	return Proof{
		Name:      set.Name,
		Type:      dns.TypeToString[sig.TypeCovered],
		Sig:       raw,
		Inception: sig.Inception,
		SigWire:   sigWire,
		RRData:    rrData,
	}, nil
}

// canonicalRRSet packs rrs per RFC 4034 section 6: lower-case owner names,
// original TTL, sorted by RDATA.
func canonicalRRSet(rrs []dns.RR, ttl uint32) ([]byte, error) {
	type packed struct {
		full  []byte
		rdata []byte
	}
	out := make([]packed, 0, len(rrs))
	for _, rr := range rrs {
		c := dns.Copy(rr)
		c.Header().Name = dns.CanonicalName(c.Header().Name)
		c.Header().Ttl = ttl
		full, rdata, err := packRR(c)
		if err != nil {
			return nil, err
		}
		out = append(out, packed{full, rdata})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].rdata, out[j].rdata) < 0
	})

	var buf bytes.Buffer
	for _, p := range out {
		buf.Write(p.full)
	}
	return buf.Bytes(), nil
}

func packRR(rr dns.RR) ([]byte, []byte, error) {
	buf := make([]byte, dns.Len(rr)+1)
	off, err := dns.PackRR(rr, buf, 0, nil, false)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", rr.Header().Name, err)
	}
	rdlen := int(rr.Header().Rdlength)
	return buf[:off], buf[off-rdlen : off], nil
}
