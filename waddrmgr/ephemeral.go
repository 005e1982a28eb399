// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// EphemeralAddress is a single-use transparent address on the ephemeral
// branch, used as the intermediate hop of payments to TEX addresses.
type EphemeralAddress struct {
	Index      uint32
	Address    string
	PubKeyHash []byte

	// SeenIn is the last transaction the address was seen in.
	SeenIn fn.Option[chainhash.Hash]

	// MinedHeight is set once a transaction using the address is mined.
	MinedHeight fn.Option[uint32]
}

// IndexRange is a half-open range of ephemeral address indices.
type IndexRange struct {
	Start, End uint32
}

// Contains reports whether i is in the range.
func (r IndexRange) Contains(i uint32) bool {
	return i >= r.Start && i < r.End
}

// firstUnsafe returns the lowest ephemeral index that may not be reserved:
// GapLimit past the highest index seen mined.
func (a *account) firstUnsafe() uint32 {
	var safe uint32
	for _, e := range a.ephemeral {
		if e.MinedHeight.IsSome() && e.Index+1 > safe {
			safe = e.Index + 1
		}
	}
	return safe + GapLimit
}

// ReserveEphemeral reserves the next n ephemeral addresses of the account.
// Reservation fails with a ReachedGapLimitError when it would pass the gap
// limit; nothing is reserved in that case.
func (m *Manager) ReserveEphemeral(id uint32,
	n uint32) ([]EphemeralAddress, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	a, err := m.lookupAccount(id)
	if err != nil {
		return nil, err
	}
	if a.UFVK.Transparent == nil {
		str := fmt.Sprintf("account %d has no transparent key", id)
		return nil, managerError(ErrViewingKeyNotFound, str, nil)
	}

	first := uint32(len(a.ephemeral))
	if unsafe := a.firstUnsafe(); uint64(first)+uint64(n) > uint64(unsafe) {
		return nil, &ReachedGapLimitError{
			Account:     id,
			FirstUnsafe: unsafe,
		}
	}

	reserved := make([]EphemeralAddress, 0, n)
	for i := first; i < first+n; i++ {
		hash, err := a.UFVK.TransparentPubKeyHash(EphemeralBranch, i)
		if err != nil {
			return nil, err
		}
		reserved = append(reserved, EphemeralAddress{
			Index:      i,
			Address:    EncodeP2PKH(m.params, hash),
			PubKeyHash: hash,
		})
	}
	for _, e := range reserved {
		m.recordEphemeral(a, e)
	}

	log.Debugf("Account %d reserved %d ephemeral addresses from index %d",
		id, n, first)

	return reserved, nil
}

// recordEphemeral stores e and indexes its address.
func (m *Manager) recordEphemeral(a *account, e EphemeralAddress) {
	a.ephemeral = append(a.ephemeral, e)
	m.transparent[e.Address] = TransparentReceiver{
		Account:    a.ID,
		Branch:     EphemeralBranch,
		Index:      e.Index,
		Address:    e.Address,
		PubKeyHash: e.PubKeyHash,
	}
}

// KnownEphemeral returns the reserved ephemeral addresses of the account,
// limited to an index range when given.
func (m *Manager) KnownEphemeral(id uint32,
	r fn.Option[IndexRange]) ([]EphemeralAddress, error) {

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	a, err := m.lookupAccount(id)
	if err != nil {
		return nil, err
	}

	var known []EphemeralAddress
	for _, e := range a.ephemeral {
		if r.IsNone() || r.UnsafeFromSome().Contains(e.Index) {
			known = append(known, e)
		}
	}
	return known, nil
}

// IsEphemeralAddress returns the receiver record of a reserved ephemeral
// address.
func (m *Manager) IsEphemeralAddress(addr string) fn.Option[TransparentReceiver] {
	r := m.FindAccountForTransparent(addr)
	return fn.FlatMapOption(func(r TransparentReceiver) fn.Option[TransparentReceiver] {
		if r.Branch != EphemeralBranch {
			return fn.None[TransparentReceiver]()
		}
		return fn.Some(r)
	})(r)
}

// MarkEphemeralUsed records that an ephemeral address was seen in txid,
// mined at minedHeight if known. Mining moves the gap limit window. It
// returns false for addresses that are not ephemeral addresses of the
// wallet.
func (m *Manager) MarkEphemeralUsed(addr string, txid chainhash.Hash,
	minedHeight fn.Option[uint32]) bool {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	r, ok := m.transparent[addr]
	if !ok || r.Branch != EphemeralBranch {
		return false
	}
	a := m.accounts[r.Account]
	e := &a.ephemeral[r.Index]

	e.SeenIn = fn.Some(txid)
	minedHeight.WhenSome(func(h uint32) {
		if e.MinedHeight.IsNone() || h < e.MinedHeight.UnwrapOr(h) {
			e.MinedHeight = fn.Some(h)
		}
	})

	return true
}

// Truncate forgets ephemeral address mining above height.
func (m *Manager) Truncate(height uint32) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, a := range m.accounts {
		for i := range a.ephemeral {
			e := &a.ephemeral[i]
			if e.MinedHeight.UnwrapOr(0) > height {
				e.MinedHeight = fn.None[uint32]()
			}
		}
	}
}
