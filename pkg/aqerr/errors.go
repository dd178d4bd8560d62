// Package aqerr collects the sentinel errors the core can return.
//
// Every public operation in pkg/app/core returns one of these, wrapped
// with context via fmt.Errorf("...: %w", ...). None are ever recovered
// inside the core: a non-nil error means the caller must revert the
// whole transaction.
package aqerr

import "errors"

var (
	// ErrCapacity means a SlabAlloc typed page or page pool is full.
	ErrCapacity = errors.New("slab: capacity exceeded")

	// ErrRolloverRequired means the active settlement log cannot take
	// another credit and the caller did not supply a rollover account.
	ErrRolloverRequired = errors.New("settlement: rollover required")

	// ErrNotFound means a critbit lookup or settlement entry lookup missed.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate means a critbit insert collided with an existing key.
	ErrDuplicate = errors.New("duplicate key")

	// ErrOverflow means an integer computation would exceed its range.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow means a debit would drive a balance negative.
	ErrUnderflow = errors.New("arithmetic underflow")

	// ErrBelowMin means a quantity is below the market's minimum.
	ErrBelowMin = errors.New("quantity below market minimum")

	// ErrNotFilled means fill=true was requested and no full fill occurred.
	ErrNotFilled = errors.New("order not filled")

	// ErrExpired means the caller-supplied expiry already elapsed.
	ErrExpired = errors.New("order already expired")

	// ErrBadTick means price is not aligned to the market's tick.
	ErrBadTick = errors.New("price not tick-aligned")

	// ErrBadPrice means price is zero, negative, or otherwise invalid.
	ErrBadPrice = errors.New("invalid price")

	// ErrBadQty means qty is zero or otherwise invalid.
	ErrBadQty = errors.New("invalid quantity")

	// ErrNotAuthorized means the caller lacks the manager role.
	ErrNotAuthorized = errors.New("caller not authorized")

	// ErrNotOwner means the caller does not own the order being cancelled.
	ErrNotOwner = errors.New("caller does not own order")

	// ErrVault surfaces an external Vault.Move failure verbatim.
	ErrVault = errors.New("vault transfer failed")

	// ErrInvariant must never occur in a correct build. Detecting one
	// aborts the call without partial commit.
	ErrInvariant = errors.New("invariant violated")

	// ErrMarketInactive means the market is not active (Market.Active() is false).
	ErrMarketInactive = errors.New("market not active")

	// ErrRolloverNotNeeded means rollover=true was passed but the active
	// head still has free capacity; the extra account would leak.
	ErrRolloverNotNeeded = errors.New("rollover not needed")
)
