package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortclaim/internal/claim"
	"shortclaim/internal/dnsproof"
	"shortclaim/internal/ledger"
	"shortclaim/internal/model"
)

const owner = "0x1111111111111111111111111111111111111111"

type fakeDNS map[string]*dns.Msg

func (f fakeDNS) Query(_ context.Context, name string, qtype uint16, _ bool) (*dns.Msg, error) {
	if m, ok := f[name]; ok {
		return m, nil
	}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Rcode = dns.RcodeNameError
	return m, nil
}

func txtAnswer(name string, secure bool, values ...string) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.Response = true
	m.AuthenticatedData = secure
	m.Answer = []dns.RR{&dns.TXT{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 300},
		Txt: values,
	}}
	return m
}

type submission struct {
	method   string
	dnsName  []byte
	claimant common.Address
	email    string
	value    *big.Int
}

type fakeLedger struct {
	mu        sync.Mutex
	prices    map[string]int64
	delays    map[string]time.Duration
	submitted map[common.Hash]bool
	subs      []submission
	proofs    [][]ledger.SignedRRSet
	statuses  map[common.Hash]bool
	withdrawn []common.Hash
	fail      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		prices:    map[string]int64{},
		delays:    map[string]time.Duration{},
		submitted: map[common.Hash]bool{},
		statuses:  map[common.Hash]bool{},
	}
}

func (f *fakeLedger) Account() (common.Address, bool) { return common.Address{1}, true }

func (f *fakeLedger) RegistrationPeriod(context.Context) (*big.Int, error) {
	return big.NewInt(31536000), nil
}

func (f *fakeLedger) Price(ctx context.Context, label string, duration *big.Int) (*big.Int, error) {
	if d := f.delays[label]; d > 0 {
		time.Sleep(d)
	}
	if duration.Int64() != 31536000 {
		return nil, errors.New("unexpected duration")
	}
	return big.NewInt(f.prices[label]), nil
}

func (f *fakeLedger) ClaimSubmitted(_ context.Context, id common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[id], nil
}

func (f *fakeLedger) Submit(_ context.Context, method string, dnsName []byte, claimant common.Address, email string, value *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return common.Hash{}, f.fail
	}
	f.subs = append(f.subs, submission{method, dnsName, claimant, email, value})
	return common.Hash{0xaa}, nil
}

func (f *fakeLedger) SetClaimStatus(_ context.Context, id common.Hash, approved bool) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = approved
	return common.Hash{0xbb}, nil
}

func (f *fakeLedger) WithdrawClaim(_ context.Context, id common.Hash) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return common.Hash{}, f.fail
	}
	f.withdrawn = append(f.withdrawn, id)
	return common.Hash{0xcc}, nil
}

func (f *fakeLedger) SubmitProofs(_ context.Context, chain []ledger.SignedRRSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proofs = append(f.proofs, chain)
	return nil
}

type fakeStore struct {
	entries     []model.AuditEntry
	invalidated int
}

func (s *fakeStore) LogAudit(e model.AuditEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) InvalidateClaimsCache() { s.invalidated++ }

type fakeProver struct {
	res *dnsproof.Result
	err error
}

func (p fakeProver) Lookup(context.Context, uint16, string) (*dnsproof.Result, error) {
	return p.res, p.err
}

func newService(t *testing.T, answer *dns.Msg) (*ClaimService, *fakeLedger, *fakeStore) {
	t.Helper()
	l := newFakeLedger()
	l.prices["foo"] = 1000
	l.prices["foocom"] = 500
	store := &fakeStore{}
	resolver := fakeDNS{}
	if answer != nil {
		resolver["_ens.foo.com"] = answer
	}
	svc := NewClaimService(Options{DNS: resolver, Ledger: l, Store: store})
	return svc, l, store
}

func TestCheck_SecureRecord(t *testing.T) {
	svc, l, _ := newService(t, txtAnswer("_ens.foo.com", true, "v=spf1", "a="+owner))

	dnsName, err := dnsproof.EncodeName("foo.com")
	require.NoError(t, err)
	l.submitted[ledger.ComputeClaimID("foocom", dnsName, common.HexToAddress(owner), "me@example.com")] = true

	res, err := svc.Check(context.Background(), "foo.com", "Me@Example.com")
	require.NoError(t, err)

	assert.True(t, res.ProofValid())
	assert.Equal(t, owner, res.Record.Address)
	assert.Equal(t, "me@example.com", res.Email)
	assert.Equal(t, "_ens.foo.com", res.TXTName)
	require.Len(t, res.Claims, 2)

	assert.Equal(t, "foo", res.Claims[0].Label)
	assert.Equal(t, claim.Exact.String(), res.Claims[0].Method)
	assert.Equal(t, int64(1000), res.Claims[0].Cost.Int64())
	assert.False(t, res.Claims[0].Submitted)

	assert.Equal(t, "foocom", res.Claims[1].Label)
	assert.Equal(t, claim.Concatenation.String(), res.Claims[1].Method)
	assert.True(t, res.Claims[1].Submitted)
}

func TestCheck_ResultsFollowRuleOrder(t *testing.T) {
	svc, l, _ := newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))
	// The first shape finishes last.
	l.delays["foo"] = 20 * time.Millisecond

	res, err := svc.Check(context.Background(), "foo.com", "")
	require.NoError(t, err)
	require.Len(t, res.Claims, 2)
	assert.Equal(t, "foo", res.Claims[0].Label)
	assert.Equal(t, int64(1000), res.Claims[0].Cost.Int64())
	assert.Equal(t, "foocom", res.Claims[1].Label)
	assert.Equal(t, int64(500), res.Claims[1].Cost.Int64())
}

func TestCheck_Ineligible(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, err := svc.Check(context.Background(), "a.b.c", "")
	assert.ErrorIs(t, err, claim.ErrIneligible)
}

func TestCheck_InvalidEmail(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, err := svc.Check(context.Background(), "foo.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestCheck_NoRecord(t *testing.T) {
	svc, _, _ := newService(t, nil)
	res, err := svc.Check(context.Background(), "foo.com", "")
	require.NoError(t, err)
	assert.False(t, res.Record.Found)
	assert.False(t, res.ProofValid())
	require.Len(t, res.Claims, 2)
	assert.False(t, res.Claims[0].Submitted)
}

func TestCheck_MalformedRecord(t *testing.T) {
	svc, _, _ := newService(t, txtAnswer("_ens.foo.com", true, "a=0x1234"))
	res, err := svc.Check(context.Background(), "foo.com", "")
	require.NoError(t, err)
	assert.True(t, res.Record.Found)
	assert.False(t, res.FormatHasAddress())
	assert.False(t, res.ProofValid())
}

func TestCheck_UnsupportedAlgorithm(t *testing.T) {
	svc, _, _ := newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))
	svc.prover = fakeProver{err: dnsproof.ErrNotSupported}

	res, err := svc.Check(context.Background(), "foo.com", "")
	require.NoError(t, err)
	assert.ErrorIs(t, res.ProofErr, dnsproof.ErrNotSupported)
	assert.False(t, res.ProofValid())
}

func TestSubmit(t *testing.T) {
	svc, l, store := newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))

	hash, err := svc.Submit(context.Background(), SubmitRequest{
		Name: "foo.com", Email: "me@example.com", Label: "foo",
	}, Actor{Username: "alice", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0xaa}, hash)

	require.Len(t, l.subs, 1)
	sub := l.subs[0]
	assert.Equal(t, "submitExactClaim", sub.method)
	assert.Equal(t, int64(1100), sub.value.Int64())
	assert.Equal(t, common.HexToAddress(owner), sub.claimant)
	assert.Equal(t, "me@example.com", sub.email)
	assert.Equal(t, []byte("\x03foo\x03com\x00"), sub.dnsName)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "submit_claim", store.entries[0].Action)
	assert.Equal(t, "alice", store.entries[0].Username)
	assert.Equal(t, "foo", store.entries[0].Label)
	assert.Equal(t, 1, store.invalidated)
	assert.Empty(t, l.proofs)
}

func TestSubmit_ByMethod(t *testing.T) {
	svc, l, _ := newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))
	_, err := svc.Submit(context.Background(), SubmitRequest{
		Name: "foo.com", Email: "me@example.com", Label: "foocom", Method: "submitCombinedClaim",
	}, Actor{})
	require.NoError(t, err)
	require.Len(t, l.subs, 1)
	assert.Equal(t, "submitCombinedClaim", l.subs[0].method)
	assert.Equal(t, int64(550), l.subs[0].value.Int64())

	_, err = svc.Submit(context.Background(), SubmitRequest{
		Name: "foo.com", Email: "me@example.com", Label: "foocom", Method: "exact",
	}, Actor{})
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()

	svc, l, _ := newService(t, txtAnswer("_ens.foo.com", false, "a="+owner))
	_, err := svc.Submit(ctx, SubmitRequest{Name: "foo.com", Email: "me@example.com", Label: "foo"}, Actor{})
	assert.ErrorIs(t, err, ErrNoProof)

	svc, _, _ = newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))
	_, err = svc.Submit(ctx, SubmitRequest{Name: "foo.com", Email: "me@example.com", Label: "bar"}, Actor{})
	assert.ErrorIs(t, err, ErrUnknownShape)

	_, err = svc.Submit(ctx, SubmitRequest{Name: "foo.com", Email: "", Label: "foo"}, Actor{})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	svc, l, _ = newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))
	dnsName, _ := dnsproof.EncodeName("foo.com")
	l.submitted[ledger.ComputeClaimID("foo", dnsName, common.HexToAddress(owner), "me@example.com")] = true
	_, err = svc.Submit(ctx, SubmitRequest{Name: "foo.com", Email: "me@example.com", Label: "foo"}, Actor{})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Empty(t, l.subs)
}

func TestSubmit_LedgerFailureNotAudited(t *testing.T) {
	svc, l, store := newService(t, txtAnswer("_ens.foo.com", true, "a="+owner))
	l.fail = errors.New("reverted")

	_, err := svc.Submit(context.Background(), SubmitRequest{Name: "foo.com", Email: "me@example.com", Label: "foo"}, Actor{})
	require.Error(t, err)
	assert.Empty(t, store.entries)
	assert.Zero(t, store.invalidated)
}

func TestSubmit_RelaysProofs(t *testing.T) {
	svc, l, _ := newService(t, nil)
	txt := txtAnswer("_ens.foo.com", false, "a="+owner).Answer
	svc.prover = fakeProver{res: &dnsproof.Result{
		Found: true,
		Results: []dnsproof.SignedSet{
			{Name: "foo.com."},
			{Name: "_ens.foo.com.", Sig: &dns.RRSIG{}, RRs: txt},
		},
		Proofs: []dnsproof.Proof{
			{SigWire: []byte{1}, RRData: []byte{2}, Sig: []byte{3}},
			{SigWire: []byte{4}, RRData: []byte{5}, Sig: []byte{6}},
		},
	}}
	svc.withProofs = true

	_, err := svc.Submit(context.Background(), SubmitRequest{Name: "foo.com", Email: "me@example.com", Label: "foo"}, Actor{})
	require.NoError(t, err)

	require.Len(t, l.proofs, 1)
	chain := l.proofs[0]
	require.Len(t, chain, 2)
	assert.Equal(t, []byte{1, 2}, chain[0].Input)
	assert.Equal(t, []byte{6}, chain[1].Sig)
	assert.Equal(t, []byte{5}, chain[1].RRData)
	require.Len(t, l.subs, 1)
}

func TestSetStatusAndWithdraw(t *testing.T) {
	svc, l, store := newService(t, nil)
	id := common.Hash{7}
	ctx := context.Background()

	_, err := svc.SetStatus(ctx, id, true, Actor{Username: "rev"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, common.Hash{8}, false, Actor{Username: "rev"})
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, id, Actor{Username: "sub"})
	require.NoError(t, err)

	assert.True(t, l.statuses[id])
	assert.False(t, l.statuses[common.Hash{8}])
	assert.Equal(t, []common.Hash{id}, l.withdrawn)

	require.Len(t, store.entries, 3)
	assert.Equal(t, "approve_claim", store.entries[0].Action)
	assert.Equal(t, "reject_claim", store.entries[1].Action)
	assert.Equal(t, "withdraw_claim", store.entries[2].Action)
	assert.Equal(t, id.Hex(), store.entries[2].ClaimID)
	assert.Equal(t, 3, store.invalidated)
}
