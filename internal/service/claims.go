package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shortclaim/internal/claim"
	"shortclaim/internal/dnsproof"
	"shortclaim/internal/ledger"
	"shortclaim/internal/model"
)

var (
	ErrNoProof          = errors.New("no valid DNS proof for domain")
	ErrUnknownShape     = errors.New("label is not a claimable shape of domain")
	ErrAlreadySubmitted = errors.New("claim already submitted")
	ErrInvalidEmail     = errors.New("invalid email address")
)

// Ledger is the subset of the claim registry the service needs.
// *ledger.Registry satisfies it.
type Ledger interface {
	Account() (common.Address, bool)
	RegistrationPeriod(ctx context.Context) (*big.Int, error)
	Price(ctx context.Context, label string, duration *big.Int) (*big.Int, error)
	ClaimSubmitted(ctx context.Context, id common.Hash) (bool, error)
	Submit(ctx context.Context, method string, dnsName []byte, claimant common.Address, email string, value *big.Int) (common.Hash, error)
	SetClaimStatus(ctx context.Context, id common.Hash, approved bool) (common.Hash, error)
	WithdrawClaim(ctx context.Context, id common.Hash) (common.Hash, error)
	SubmitProofs(ctx context.Context, chain []ledger.SignedRRSet) error
}

type Prover interface {
	Lookup(ctx context.Context, qtype uint16, name string) (*dnsproof.Result, error)
}

// Store records audit entries and drops cached indexer pages after a write.
// *database.DB satisfies it.
type Store interface {
	LogAudit(entry model.AuditEntry) error
	InvalidateClaimsCache()
}

// Actor identifies who triggered a ledger write, for the audit log.
type Actor struct {
	Username  string
	IPAddress string
}

// CheckResult is everything known about a domain's claimability.
type CheckResult struct {
	Name     string
	Email    string
	DNSName  []byte
	TXTName  string
	Record   dnsproof.Record
	Proofs   []dnsproof.Proof
	ProofErr error
	Period   *big.Int
	Claims   []model.ResolvedClaim
}

func (r *CheckResult) ProofValid() bool {
	return dnsproof.IsProofValid(r.Record)
}

// Claimant is the owner address published in the TXT record.
func (r *CheckResult) Claimant() common.Address {
	return common.HexToAddress(r.Record.Address)
}

// FormatHasAddress reports whether the TXT record carried a parseable
// a=0x... value.
func (r *CheckResult) FormatHasAddress() bool {
	return r.Record.Address != ""
}

type ClaimService struct {
	resolver   *claim.Resolver
	dns        dnsproof.Resolver
	prover     Prover
	ledger     Ledger
	store      Store
	withProofs bool
	log        *zap.Logger
}

type Options struct {
	Resolver *claim.Resolver
	DNS      dnsproof.Resolver
	// Prover is optional; without it the resolver's AD bit decides security.
	Prover Prover
	Ledger Ledger
	// Store is optional; the CLI runs without a database.
	Store Store
	// WithProofs relays the DNSSEC chain to the oracle before submitting.
	WithProofs bool
	Logger     *zap.Logger
}

func NewClaimService(opts Options) *ClaimService {
	s := &ClaimService{
		resolver:   opts.Resolver,
		dns:        opts.DNS,
		prover:     opts.Prover,
		ledger:     opts.Ledger,
		store:      opts.Store,
		withProofs: opts.WithProofs,
		log:        opts.Logger,
	}
	if s.resolver == nil {
		s.resolver = claim.NewResolver(claim.DefaultRules)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Writable reports whether the service can send transactions.
func (s *ClaimService) Writable() bool {
	_, ok := s.ledger.Account()
	return ok
}

// Check validates name, looks up its _ens TXT record and, for every
// claimable shape, the price and whether the claim was already submitted.
func (s *ClaimService) Check(ctx context.Context, name, email string) (*CheckResult, error) {
	if !claim.IsEligible(name) {
		return nil, claim.ErrIneligible
	}
	email = claim.NormalizeEmail(email)
	if email != "" && !claim.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	dnsName, err := dnsproof.EncodeName(name)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{
		Name:    name,
		Email:   email,
		DNSName: dnsName,
		TXTName: dnsproof.TXTName(name),
	}

	if err := s.lookupRecord(ctx, res); err != nil {
		return nil, err
	}

	period, err := s.ledger.RegistrationPeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("read registration period: %w", err)
	}
	res.Period = period

	shapes := s.resolver.Resolve(name)
	claims := make([]model.ResolvedClaim, len(shapes))
	claimant := res.Claimant()

	g, gctx := errgroup.WithContext(ctx)
	for i, shape := range shapes {
		g.Go(func() error {
			cost, err := s.ledger.Price(gctx, shape.Label, period)
			if err != nil {
				return fmt.Errorf("price %s: %w", shape.Label, err)
			}
			rc := model.ResolvedClaim{Label: shape.Label, Method: shape.Method.String(), Cost: cost}
			if res.FormatHasAddress() {
				id := ledger.ComputeClaimID(shape.Label, dnsName, claimant, email)
				rc.Submitted, err = s.ledger.ClaimSubmitted(gctx, id)
				if err != nil {
					return fmt.Errorf("claim status %s: %w", shape.Label, err)
				}
			}
			claims[i] = rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Claims = claims
	return res, nil
}

func (s *ClaimService) lookupRecord(ctx context.Context, res *CheckResult) error {
	msg, err := s.dns.Query(ctx, res.TXTName, dns.TypeTXT, true)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", res.TXTName, err)
	}
	res.Record = dnsproof.FromAnswer(msg)
	if s.prover == nil {
		return nil
	}

	proof, err := s.prover.Lookup(ctx, dns.TypeTXT, res.TXTName)
	switch {
	case errors.Is(err, dnsproof.ErrNotSupported):
		s.log.Info("no usable DNSSEC proof", zap.String("name", res.Name), zap.Error(err))
		res.ProofErr = err
		res.Record.Secure = false
		res.Record.NSEC = false
		return nil
	case err != nil:
		return fmt.Errorf("prove %s: %w", res.TXTName, err)
	}
	res.Record = dnsproof.FromProof(proof)
	res.Proofs = proof.Proofs
	return nil
}

type SubmitRequest struct {
	Name  string
	Email string
	Label string
	// Method narrows the shape when one label could come from several rules.
	Method string
}

// Submit sends the claim transaction for one shape of a checked domain and
// waits for it to be mined.
func (s *ClaimService) Submit(ctx context.Context, req SubmitRequest, actor Actor) (common.Hash, error) {
	if !claim.IsValidEmail(claim.NormalizeEmail(req.Email)) {
		return common.Hash{}, ErrInvalidEmail
	}
	res, err := s.Check(ctx, req.Name, req.Email)
	if err != nil {
		return common.Hash{}, err
	}
	if !res.ProofValid() {
		return common.Hash{}, ErrNoProof
	}

	target, ok := s.findClaim(res, req.Label, req.Method)
	if !ok {
		return common.Hash{}, ErrUnknownShape
	}
	if target.Submitted {
		return common.Hash{}, ErrAlreadySubmitted
	}
	method, _ := claim.ParseMethod(target.Method)

	if s.withProofs && len(res.Proofs) > 0 {
		if err := s.ledger.SubmitProofs(ctx, toSignedSets(res.Proofs)); err != nil {
			return common.Hash{}, err
		}
		s.log.Info("DNSSEC proofs relayed", zap.String("name", res.Name), zap.Int("sets", len(res.Proofs)))
	}

	value := ledger.SubmissionValue(target.Cost)
	hash, err := s.ledger.Submit(ctx, method.LedgerMethod(), res.DNSName, res.Claimant(), res.Email, value)
	if err != nil {
		return hash, fmt.Errorf("submit claim %s: %w", target.Label, err)
	}

	id := ledger.ComputeClaimID(target.Label, res.DNSName, res.Claimant(), res.Email)
	s.log.Info("claim submitted",
		zap.String("name", res.Name),
		zap.String("label", target.Label),
		zap.String("method", target.Method),
		zap.String("claim_id", id.Hex()),
		zap.String("tx", hash.Hex()),
		zap.String("value", ledger.FormatEther(value)),
	)
	s.record(actor, model.AuditEntry{
		Action:  "submit_claim",
		DNSName: res.Name,
		Label:   target.Label,
		ClaimID: id.Hex(),
		TxHash:  hash.Hex(),
		Detail:  fmt.Sprintf("%s for %s ETH by %s", target.Method, ledger.FormatEther(value), res.Record.Address),
	})
	return hash, nil
}

func (s *ClaimService) findClaim(res *CheckResult, label, method string) (model.ResolvedClaim, bool) {
	for _, c := range res.Claims {
		if c.Label != label {
			continue
		}
		if method != "" {
			m, ok := claim.ParseMethod(method)
			if !ok || m.String() != c.Method {
				continue
			}
		}
		return c, true
	}
	return model.ResolvedClaim{}, false
}

// SetStatus approves or rejects a pending claim.
func (s *ClaimService) SetStatus(ctx context.Context, claimID common.Hash, approved bool, actor Actor) (common.Hash, error) {
	hash, err := s.ledger.SetClaimStatus(ctx, claimID, approved)
	if err != nil {
		return hash, fmt.Errorf("set claim status: %w", err)
	}
	action := "reject_claim"
	if approved {
		action = "approve_claim"
	}
	s.log.Info("claim status set", zap.String("claim_id", claimID.Hex()), zap.Bool("approved", approved), zap.String("tx", hash.Hex()))
	s.record(actor, model.AuditEntry{Action: action, ClaimID: claimID.Hex(), TxHash: hash.Hex()})
	return hash, nil
}

func (s *ClaimService) Withdraw(ctx context.Context, claimID common.Hash, actor Actor) (common.Hash, error) {
	hash, err := s.ledger.WithdrawClaim(ctx, claimID)
	if err != nil {
		return hash, fmt.Errorf("withdraw claim: %w", err)
	}
	s.log.Info("claim withdrawn", zap.String("claim_id", claimID.Hex()), zap.String("tx", hash.Hex()))
	s.record(actor, model.AuditEntry{Action: "withdraw_claim", ClaimID: claimID.Hex(), TxHash: hash.Hex()})
	return hash, nil
}

func (s *ClaimService) record(actor Actor, entry model.AuditEntry) {
	if s.store == nil {
		return
	}
	entry.Username = actor.Username
	entry.IPAddress = actor.IPAddress
	if err := s.store.LogAudit(entry); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", entry.Action), zap.Error(err))
	}
	s.store.InvalidateClaimsCache()
}

func toSignedSets(proofs []dnsproof.Proof) []ledger.SignedRRSet {
	sets := make([]ledger.SignedRRSet, len(proofs))
	for i, p := range proofs {
		sets[i] = ledger.SignedRRSet{Input: p.Input(), Sig: p.Sig, RRData: p.RRData}
	}
	return sets
}
