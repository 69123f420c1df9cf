package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the claim registry together with the price and DNSSEC
// oracles it points at. Every write waits until it is mined.
type Registry struct {
	provider *Provider
	claimer  *Claimer

	mu     sync.Mutex
	prices *PriceOracle
	oracle *DNSSECOracle
}

func NewRegistry(p *Provider, claimAddress common.Address) (*Registry, error) {
	claimer, err := NewClaimer(claimAddress, p)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: p, claimer: claimer}, nil
}

func (r *Registry) Claimer() *Claimer {
	return r.claimer
}

func (r *Registry) Account() (common.Address, bool) {
	return r.provider.Account()
}

func (r *Registry) RegistrationPeriod(ctx context.Context) (*big.Int, error) {
	return r.claimer.RegistrationPeriod(ctx)
}

func (r *Registry) priceOracle(ctx context.Context) (*PriceOracle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prices != nil {
		return r.prices, nil
	}
	addr, err := r.claimer.PriceOracle(ctx)
	if err != nil {
		return nil, err
	}
	r.prices, err = NewPriceOracle(addr, r.provider)
	return r.prices, err
}

func (r *Registry) dnssecOracle(ctx context.Context) (*DNSSECOracle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.oracle != nil {
		return r.oracle, nil
	}
	addr, err := r.claimer.Oracle(ctx)
	if err != nil {
		return nil, err
	}
	r.oracle, err = NewDNSSECOracle(addr, r.provider)
	return r.oracle, err
}

// Price quotes label for a fresh registration of duration seconds.
func (r *Registry) Price(ctx context.Context, label string, duration *big.Int) (*big.Int, error) {
	o, err := r.priceOracle(ctx)
	if err != nil {
		return nil, err
	}
	return o.Price(ctx, label, big.NewInt(0), duration)
}

func (r *Registry) ClaimSubmitted(ctx context.Context, id common.Hash) (bool, error) {
	info, err := r.claimer.Claim(ctx, id)
	if err != nil {
		return false, err
	}
	return info.Submitted(), nil
}

func (r *Registry) Submit(ctx context.Context, method string, dnsName []byte, claimant common.Address, email string, value *big.Int) (common.Hash, error) {
	tx, err := r.claimer.Submit(ctx, method, dnsName, claimant, email, value)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := r.provider.Wait(ctx, tx); err != nil {
		return tx.Hash(), err
	}
	return tx.Hash(), nil
}

func (r *Registry) SetClaimStatus(ctx context.Context, id common.Hash, approved bool) (common.Hash, error) {
	tx, err := r.claimer.SetClaimStatus(ctx, id, approved)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := r.provider.Wait(ctx, tx); err != nil {
		return tx.Hash(), err
	}
	return tx.Hash(), nil
}

func (r *Registry) WithdrawClaim(ctx context.Context, id common.Hash) (common.Hash, error) {
	tx, err := r.claimer.WithdrawClaim(ctx, id)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := r.provider.Wait(ctx, tx); err != nil {
		return tx.Hash(), err
	}
	return tx.Hash(), nil
}

func (r *Registry) SubmitProofs(ctx context.Context, chain []SignedRRSet) error {
	o, err := r.dnssecOracle(ctx)
	if err != nil {
		return err
	}
	if _, err := o.SubmitProofs(ctx, chain); err != nil {
		return fmt.Errorf("submit DNSSEC proofs: %w", err)
	}
	return nil
}
