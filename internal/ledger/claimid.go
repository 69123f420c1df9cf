package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrClaimIDMismatch means the registry hashes claim ids differently from
// ComputeClaimID, so "already submitted" lookups would be wrong.
var ErrClaimIDMismatch = errors.New("claim id scheme does not match registry")

// ComputeClaimID derives the registry key of a claim:
// keccak256(keccak256(label) ‖ keccak256(dnsName) ‖ claimant ‖ keccak256(email)).
func ComputeClaimID(label string, dnsName []byte, claimant common.Address, email string) common.Hash {
	return crypto.Keccak256Hash(
		crypto.Keccak256([]byte(label)),
		crypto.Keccak256(dnsName),
		claimant.Bytes(),
		crypto.Keccak256([]byte(email)),
	)
}

// Fixture used to check the scheme against a deployed registry.
var (
	fixtureLabel    = "foo"
	fixtureDNSName  = []byte("\x03foo\x03com\x00")
	fixtureClaimant = common.HexToAddress("0x1111111111111111111111111111111111111111")
	fixtureEmail    = "test@example.com"
)

// VerifyClaimIDScheme compares ComputeClaimID against the registry's own
// computeClaimId for a fixed vector.
func (c *Claimer) VerifyClaimIDScheme(ctx context.Context) error {
	remote, err := c.ComputeClaimID(ctx, fixtureLabel, fixtureDNSName, fixtureClaimant, fixtureEmail)
	if err != nil {
		return err
	}
	local := ComputeClaimID(fixtureLabel, fixtureDNSName, fixtureClaimant, fixtureEmail)
	if remote != local {
		return fmt.Errorf("%w: registry %s, local %s", ErrClaimIDMismatch, remote.Hex(), local.Hex())
	}
	return nil
}
