// Package vault defines the external token-transfer collaborator the
// matchengine debits and credits against. The core never holds token
// balances itself: every debit/credit crosses this interface, which the
// host implements against whatever the live token program is (spec
// §4.4 "Transfer via external Vault").
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Vault moves amount of a token from src to dst. Both are opaque
// 32-byte account handles; the implementation resolves what they mean
// (an SPL token account, a vault PDA, ...). A non-nil error aborts the
// whole calling transaction (spec §7 VaultError).
type Vault interface {
	Move(ctx context.Context, src, dst common.Hash, amount uint64) error
}

// MemVault is an in-process Vault backed by a balance map, for tests
// and the devnet bootstrap command. It is not a production token
// program: balances are not persisted and Move never fails once src
// holds sufficient funds.
type MemVault struct {
	mu       sync.Mutex
	balances map[common.Hash]uint64
}

// NewMemVault creates an empty in-memory vault.
func NewMemVault() *MemVault {
	return &MemVault{balances: make(map[common.Hash]uint64)}
}

// Seed credits acct with amount, bypassing Move's balance check. Used
// to fund test fixtures and the devnet bootstrap market.
func (v *MemVault) Seed(acct common.Hash, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[acct] += amount
}

// Balance returns acct's current balance.
func (v *MemVault) Balance(acct common.Hash) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[acct]
}

// Move implements Vault.
func (v *MemVault) Move(_ context.Context, src, dst common.Hash, amount uint64) error {
	if amount == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[src] < amount {
		return fmt.Errorf("vault: %x holds %d, cannot move %d", src, v.balances[src], amount)
	}
	v.balances[src] -= amount
	v.balances[dst] += amount
	return nil
}
