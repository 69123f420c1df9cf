package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type contract struct {
	address  common.Address
	provider *Provider
	bound    *bind.BoundContract
}

func bindContract(address common.Address, abiJSON string, p *Provider) (*contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &contract{
		address:  address,
		provider: p,
		bound:    bind.NewBoundContract(address, parsed, p.Backend, p.Backend, p.Backend),
	}, nil
}

func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (c *contract) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	opts, err := c.provider.transactOpts(ctx, value)
	if err != nil {
		return nil, err
	}
	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return tx, nil
}

// ClaimInfo is the registry's stored view of a claim.
type ClaimInfo struct {
	LabelHash [32]byte
	Claimant  common.Address
	Paid      *big.Int
	Status    uint8
}

// Submitted reports whether anything was paid for the claim.
func (ci ClaimInfo) Submitted() bool {
	return ci.Paid != nil && ci.Paid.Sign() != 0
}

// Claimer binds the short name claim registry.
type Claimer struct {
	*contract
}

func NewClaimer(address common.Address, p *Provider) (*Claimer, error) {
	c, err := bindContract(address, claimerABI, p)
	if err != nil {
		return nil, err
	}
	return &Claimer{c}, nil
}

func (c *Claimer) PriceOracle(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "priceOracle")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Claimer) Oracle(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "oracle")
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Claimer) RegistrationPeriod(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "REGISTRATION_PERIOD")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Claimer) ComputeClaimID(ctx context.Context, label string, dnsName []byte, claimant common.Address, email string) (common.Hash, error) {
	out, err := c.call(ctx, "computeClaimId", label, dnsName, claimant, email)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

func (c *Claimer) Claim(ctx context.Context, id common.Hash) (ClaimInfo, error) {
	out, err := c.call(ctx, "claims", id)
	if err != nil {
		return ClaimInfo{}, err
	}
	return ClaimInfo{
		LabelHash: *abi.ConvertType(out[0], new([32]byte)).(*[32]byte),
		Claimant:  *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		Paid:      *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		Status:    *abi.ConvertType(out[3], new(uint8)).(*uint8),
	}, nil
}

// Submit sends one of the submit*Claim entry points with value attached.
func (c *Claimer) Submit(ctx context.Context, method string, dnsName []byte, claimant common.Address, email string, value *big.Int) (*types.Transaction, error) {
	switch method {
	case "submitExactClaim", "submitPrefixClaim", "submitCombinedClaim":
	default:
		return nil, fmt.Errorf("unknown submission method %q", method)
	}
	return c.transact(ctx, value, method, dnsName, claimant, email)
}

func (c *Claimer) SetClaimStatus(ctx context.Context, id common.Hash, approved bool) (*types.Transaction, error) {
	return c.transact(ctx, nil, "setClaimStatus", id, approved)
}

func (c *Claimer) WithdrawClaim(ctx context.Context, id common.Hash) (*types.Transaction, error) {
	return c.transact(ctx, nil, "withdrawClaim", id)
}

type PriceOracle struct {
	*contract
}

func NewPriceOracle(address common.Address, p *Provider) (*PriceOracle, error) {
	c, err := bindContract(address, priceOracleABI, p)
	if err != nil {
		return nil, err
	}
	return &PriceOracle{c}, nil
}

func (o *PriceOracle) Price(ctx context.Context, name string, expires, duration *big.Int) (*big.Int, error) {
	out, err := o.call(ctx, "price", name, expires, duration)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// SignedRRSet is one link of a DNSSEC proof chain as the oracle expects it.
type SignedRRSet struct {
	Input []byte
	Sig   []byte
	// RRData is the set's canonical records; it proves the next link.
	RRData []byte
}

type DNSSECOracle struct {
	*contract
}

func NewDNSSECOracle(address common.Address, p *Provider) (*DNSSECOracle, error) {
	c, err := bindContract(address, dnssecOracleABI, p)
	if err != nil {
		return nil, err
	}
	return &DNSSECOracle{c}, nil
}

// SubmitProofs submits the chain in order, each set proven by the one
// before it, waiting for each transaction to be mined.
func (o *DNSSECOracle) SubmitProofs(ctx context.Context, chain []SignedRRSet) ([]common.Hash, error) {
	var hashes []common.Hash
	var prev []byte
	for _, set := range chain {
		tx, err := o.transact(ctx, nil, "submitRRSet", set.Input, set.Sig, prev)
		if err != nil {
			return hashes, err
		}
		if _, err := o.provider.Wait(ctx, tx); err != nil {
			return hashes, err
		}
		hashes = append(hashes, tx.Hash())
		prev = set.RRData
	}
	return hashes, nil
}
