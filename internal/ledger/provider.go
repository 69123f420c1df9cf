package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrReadOnly is returned for writes on a provider without a signing key.
var ErrReadOnly = errors.New("ledger provider has no signer")

// Backend is the node connection: contract reads, transaction submission
// and receipt lookup.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Provider bundles read access, optional signer-backed write access and
// the current account. Build one at start-up and pass it down.
type Provider struct {
	Backend Backend
	ChainID *big.Int
	signer  *bind.TransactOpts
	closer  func()
}

func NewProvider(backend Backend, chainID *big.Int, signer *bind.TransactOpts) *Provider {
	return &Provider{Backend: backend, ChainID: chainID, signer: signer}
}

// Dial connects to an RPC endpoint. privateKey may be empty for a read-only
// provider.
func Dial(ctx context.Context, rpcURL, privateKey string) (*Provider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	p := NewProvider(client, chainID, nil)
	p.closer = client.Close

	if privateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		p.signer, err = bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// Account is the address writes are sent from.
func (p *Provider) Account() (common.Address, bool) {
	if p.signer == nil {
		return common.Address{}, false
	}
	return p.signer.From, true
}

func (p *Provider) transactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	if p.signer == nil {
		return nil, ErrReadOnly
	}
	opts := *p.signer
	opts.Context = ctx
	opts.Value = value
	return &opts, nil
}

// Wait blocks until tx is mined and fails if it reverted.
func (p *Provider) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.Backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
