// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package waddrmgr implements the wallet's account and address registry.
//
// Each account holds a unified full viewing key covering the Sapling and
// Orchard pools and, for accounts that have one, a BIP-44 transparent
// account key. Accounts derived from a seed remember the seed fingerprint
// and ZIP-32 index so the seed can be checked later. The manager hands out
// diversified unified addresses from a per-account cursor and reserves
// ephemeral transparent addresses under a gap limit.
package waddrmgr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/shielded"
)

// GapLimit is the number of ephemeral addresses that may be reserved past
// the last one seen mined.
const GapLimit = 20

// AccountKind tells how an account's keys were obtained.
type AccountKind uint8

const (
	// AccountDerived accounts are derived from a seed the wallet knows the
	// fingerprint of.
	AccountDerived AccountKind = iota

	// AccountImported accounts were imported as a viewing key.
	AccountImported
)

// AccountPurpose tells whether the wallet expects to spend from an
// imported account.
type AccountPurpose uint8

const (
	// PurposeSpending means the spending key is available to the caller.
	PurposeSpending AccountPurpose = iota

	// PurposeViewOnly means the account can only be watched.
	PurposeViewOnly
)

// AccountOrigin records where an account's keys came from.
type AccountOrigin struct {
	Kind AccountKind

	// SeedFingerprint and HDIndex are set for derived accounts.
	SeedFingerprint SeedFingerprint
	HDIndex         uint32

	Purpose AccountPurpose
}

// Birthday is the height from which an account may have received funds.
type Birthday struct {
	Height uint32

	// RecoverUntil is the chain tip at the time a restored account was
	// imported. Scanning up to it is recovery.
	RecoverUntil fn.Option[uint32]
}

// Account is a read-only view of a registered account.
type Account struct {
	ID       uint32
	Origin   AccountOrigin
	UFVK     *UnifiedFullViewingKey
	Birthday Birthday
}

// CanSpend reports whether the wallet may hold the spending key.
func (a *Account) CanSpend() bool {
	return a.Origin.Purpose == PurposeSpending
}

// AddressRecord is a unified address handed out by the manager.
type AddressRecord struct {
	Account uint32
	Index   shielded.DiversifierIndex
	Address *UnifiedAddress
	Encoded string
}

// TransparentReceiver is a transparent address derived by the manager.
type TransparentReceiver struct {
	Account    uint32
	Branch     uint32
	Index      uint32
	Address    string
	PubKeyHash []byte
}

// ScanningKey is a viewing key of one account, pool and scope used for
// trial decryption.
type ScanningKey struct {
	Account  uint32
	Protocol shielded.Protocol
	Scope    shielded.Scope

	// FVK is scoped to Scope and derives nullifiers of notes received
	// under it.
	FVK *shielded.FullViewingKey
	IVK *shielded.IncomingViewingKey
}

// account is the mutable state behind an Account.
type account struct {
	Account

	cursor    shielded.DiversifierIndex
	exhausted bool
	addresses []AddressRecord
	ephemeral []EphemeralAddress
}

// Manager is the account and address registry. It is safe for concurrent
// access.
type Manager struct {
	mtx sync.RWMutex

	params   *netparams.Params
	accounts map[uint32]*account
	nextID   uint32

	// transparent indexes every derived transparent address.
	transparent map[string]TransparentReceiver
}

// New returns an empty manager for the network.
func New(params *netparams.Params) *Manager {
	return &Manager{
		params:      params,
		accounts:    make(map[uint32]*account),
		transparent: make(map[string]TransparentReceiver),
	}
}

// Params returns the network parameters of the manager.
func (m *Manager) Params() *netparams.Params {
	return m.params
}

func (m *Manager) lookupAccount(id uint32) (*account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, accountUnknown(id)
	}
	return a, nil
}

// CreateAccount derives a new account from seed at the next unused ZIP-32
// account index for that seed. The returned spending key is not retained.
func (m *Manager) CreateAccount(seed []byte,
	birthday Birthday) (uint32, *UnifiedSpendingKey, error) {

	fp, err := NewSeedFingerprint(seed)
	if err != nil {
		return 0, nil, err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	var next uint32
	for _, a := range m.accounts {
		o := a.Origin
		if o.Kind == AccountDerived && o.SeedFingerprint == fp &&
			o.HDIndex >= next {

			next = o.HDIndex + 1
		}
	}

	// Past the last hardened index derivation fails with
	// ErrAccountOutOfRange.
	return m.deriveAccount(seed, fp, next, birthday)
}

// ImportDerivedAccount adds the account at a specific ZIP-32 index of seed.
func (m *Manager) ImportDerivedAccount(seed []byte, index uint32,
	birthday Birthday) (uint32, *UnifiedSpendingKey, error) {

	fp, err := NewSeedFingerprint(seed)
	if err != nil {
		return 0, nil, err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.deriveAccount(seed, fp, index, birthday)
}

// deriveAccount must be called with the write lock held.
func (m *Manager) deriveAccount(seed []byte, fp SeedFingerprint,
	index uint32, birthday Birthday) (uint32, *UnifiedSpendingKey, error) {

	usk, err := DeriveUnifiedSpendingKey(m.params, seed, index)
	if err != nil {
		return 0, nil, err
	}
	ufvk, err := usk.FullViewingKey()
	if err != nil {
		return 0, nil, err
	}

	a, err := m.addAccount(AccountOrigin{
		Kind:            AccountDerived,
		SeedFingerprint: fp,
		HDIndex:         index,
		Purpose:         PurposeSpending,
	}, ufvk, birthday)
	if err != nil {
		return 0, nil, err
	}

	log.Infof("Created account %d at index %d of seed %s", a.ID, index, fp)

	return a.ID, usk, nil
}

// ImportViewOnly adds an account from a unified full viewing key.
func (m *Manager) ImportViewOnly(ufvk *UnifiedFullViewingKey,
	birthday Birthday, purpose AccountPurpose) (uint32, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	a, err := m.addAccount(AccountOrigin{
		Kind:    AccountImported,
		Purpose: purpose,
	}, ufvk, birthday)
	if err != nil {
		return 0, err
	}

	log.Infof("Imported account %d", a.ID)

	return a.ID, nil
}

// addAccount must be called with the write lock held.
func (m *Manager) addAccount(origin AccountOrigin, ufvk *UnifiedFullViewingKey,
	birthday Birthday) (*account, error) {

	if len(ufvk.items()) == 0 {
		return nil, managerError(ErrViewingKeyNotFound,
			"viewing key has no items", nil)
	}
	for _, a := range m.accounts {
		if a.UFVK.Equal(ufvk) {
			str := fmt.Sprintf("viewing key already belongs to "+
				"account %d", a.ID)
			return nil, managerError(ErrAccountCollision, str, nil)
		}
	}

	a := &account{Account: Account{
		ID:       m.nextID,
		Origin:   origin,
		UFVK:     ufvk,
		Birthday: birthday,
	}}
	m.accounts[a.ID] = a
	m.nextID++

	return a, nil
}

// Account returns the account with the given id.
func (m *Manager) Account(id uint32) (Account, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	a, err := m.lookupAccount(id)
	if err != nil {
		return Account{}, err
	}
	return a.Account, nil
}

// Accounts returns every account ordered by id.
func (m *Manager) Accounts() []Account {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	accounts := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, a.Account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})

	return accounts
}

// AccountIDs returns the ids of every account in ascending order.
func (m *Manager) AccountIDs() []uint32 {
	accounts := m.Accounts()
	ids := make([]uint32, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids
}

// AccountForUFVK returns the account viewed by ufvk.
func (m *Manager) AccountForUFVK(ufvk *UnifiedFullViewingKey) fn.Option[uint32] {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	for _, a := range m.accounts {
		if a.UFVK.Equal(ufvk) {
			return fn.Some(a.ID)
		}
	}
	return fn.None[uint32]()
}

// Birthday returns the birthday of an account.
func (m *Manager) Birthday(id uint32) (Birthday, error) {
	a, err := m.Account(id)
	if err != nil {
		return Birthday{}, err
	}
	return a.Birthday, nil
}

// WalletBirthday returns the lowest account birthday height.
func (m *Manager) WalletBirthday() fn.Option[uint32] {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	birthday := fn.None[uint32]()
	for _, a := range m.accounts {
		h := a.Birthday.Height
		if birthday.IsNone() || h < birthday.UnwrapOr(h) {
			birthday = fn.Some(h)
		}
	}
	return birthday
}

// RecoverUntil returns the highest recovery height of any account.
func (m *Manager) RecoverUntil() fn.Option[uint32] {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	until := fn.None[uint32]()
	for _, a := range m.accounts {
		a.Birthday.RecoverUntil.WhenSome(func(h uint32) {
			if h > until.UnwrapOr(0) {
				until = fn.Some(h)
			}
		})
	}
	return until
}

// ValidateSeed reports whether seed derives the keys of a derived account.
func (m *Manager) ValidateSeed(id uint32, seed []byte) (bool, error) {
	a, err := m.Account(id)
	if err != nil {
		return false, err
	}
	if a.Origin.Kind != AccountDerived {
		return false, nil
	}

	fp, err := NewSeedFingerprint(seed)
	if err != nil {
		return false, err
	}
	if fp != a.Origin.SeedFingerprint {
		return false, nil
	}

	usk, err := DeriveUnifiedSpendingKey(m.params, seed, a.Origin.HDIndex)
	if err != nil {
		return false, err
	}
	defer usk.Zero()

	ufvk, err := usk.FullViewingKey()
	if err != nil {
		return false, err
	}
	return ufvk.Equal(a.UFVK), nil
}

// NextUnifiedAddress returns a fresh address of the account with the
// requested receivers, starting at the account's diversifier cursor and
// skipping indices that are not valid in every requested pool.
func (m *Manager) NextUnifiedAddress(id uint32,
	req ReceiverRequest) (*AddressRecord, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	a, err := m.lookupAccount(id)
	if err != nil {
		return nil, err
	}
	return m.nextAddress(a, req)
}

// nextAddress must be called with the write lock held.
func (m *Manager) nextAddress(a *account,
	req ReceiverRequest) (*AddressRecord, error) {

	if req.IsEmpty() {
		return nil, managerError(ErrAddressGeneration,
			"no receivers requested", nil)
	}
	if req.Intersect(a.UFVK) != req {
		str := fmt.Sprintf("account %d cannot provide every "+
			"requested receiver", a.ID)
		return nil, managerError(ErrViewingKeyNotFound, str, nil)
	}
	if a.exhausted {
		return nil, managerError(ErrDiversifierSpaceExhausted,
			"no diversifier index left", nil)
	}

	idx := a.cursor
	var ua *UnifiedAddress
	for {
		var err error
		ua, err = addressAt(a.UFVK, req, idx)
		if err == nil {
			break
		}
		if err := idx.Increment(); err != nil {
			a.exhausted = true
			return nil, managerError(ErrDiversifierSpaceExhausted,
				"no diversifier index left", err)
		}
	}

	var transparentIdx uint32
	if req.Transparent {
		v, ok := idx.Uint64()
		if !ok || v >= hdkeychain.HardenedKeyStart {
			str := fmt.Sprintf("diversifier index %v is past the "+
				"transparent range", idx)
			return nil, managerError(ErrAddressGeneration, str, nil)
		}
		transparentIdx = uint32(v)

		hash, err := a.UFVK.TransparentPubKeyHash(
			ExternalBranch, transparentIdx,
		)
		if err != nil {
			return nil, err
		}
		ua.Transparent = hash
	}

	encoded, err := ua.Encode(m.params)
	if err != nil {
		return nil, managerError(ErrAddressGeneration,
			"failed to encode address", err)
	}
	rec := AddressRecord{
		Account: a.ID,
		Index:   idx,
		Address: ua,
		Encoded: encoded,
	}
	m.recordAddress(a, rec)

	a.cursor = idx
	if err := a.cursor.Increment(); err != nil {
		a.exhausted = true
	}

	log.Debugf("Account %d address at index %v", a.ID, idx)

	return &rec, nil
}

// recordAddress stores rec and indexes its transparent receiver.
func (m *Manager) recordAddress(a *account, rec AddressRecord) {
	a.addresses = append(a.addresses, rec)
	if rec.Address.Transparent == nil {
		return
	}
	v, _ := rec.Index.Uint64()
	addr := EncodeP2PKH(m.params, rec.Address.Transparent)
	m.transparent[addr] = TransparentReceiver{
		Account:    a.ID,
		Branch:     ExternalBranch,
		Index:      uint32(v),
		Address:    addr,
		PubKeyHash: rec.Address.Transparent,
	}
}

// addressAt returns the shielded receivers requested at idx, or an error
// when idx is not valid in one of the pools.
func addressAt(ufvk *UnifiedFullViewingKey, req ReceiverRequest,
	idx shielded.DiversifierIndex) (*UnifiedAddress, error) {

	ua := &UnifiedAddress{}
	for _, p := range shielded.Protocols {
		if !req.Wants(p) {
			continue
		}
		ivk := ufvk.FullViewingKey(p).IncomingViewingKey(shielded.External)
		pa, err := ivk.Address(idx)
		if err != nil {
			return nil, err
		}
		if p == shielded.Orchard {
			ua.Orchard = pa
		} else {
			ua.Sapling = pa
		}
	}
	return ua, nil
}

// CurrentAddress returns the most recently generated address of the
// account, generating one with every receiver the account supports when
// there is none.
func (m *Manager) CurrentAddress(id uint32) (*AddressRecord, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	a, err := m.lookupAccount(id)
	if err != nil {
		return nil, err
	}
	if n := len(a.addresses); n > 0 {
		rec := a.addresses[n-1]
		return &rec, nil
	}

	return m.nextAddress(a, AllReceivers.Intersect(a.UFVK))
}

// Addresses returns every address generated for the account.
func (m *Manager) Addresses(id uint32) ([]AddressRecord, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	a, err := m.lookupAccount(id)
	if err != nil {
		return nil, err
	}
	return append([]AddressRecord(nil), a.addresses...), nil
}

// ChangeAddress returns the internal address of the account in a pool.
func (m *Manager) ChangeAddress(id uint32,
	p shielded.Protocol) (*shielded.PaymentAddress, error) {

	a, err := m.Account(id)
	if err != nil {
		return nil, err
	}
	fvk := a.UFVK.FullViewingKey(p)
	if fvk == nil {
		str := fmt.Sprintf("account %d has no %s viewing key", id, p)
		return nil, managerError(ErrViewingKeyNotFound, str, nil)
	}

	addr, _, err := fvk.IncomingViewingKey(shielded.Internal).FindAddress(
		shielded.DiversifierIndex{},
	)
	if err != nil {
		return nil, managerError(ErrAddressGeneration,
			"failed to derive change address", err)
	}
	return addr, nil
}

// AccountForReceiver returns the account and scope that own a shielded
// receiver.
func (m *Manager) AccountForReceiver(
	addr *shielded.PaymentAddress) fn.Option[ScanningKey] {

	for _, k := range m.ScanningKeys() {
		if k.IVK.Owns(addr) {
			return fn.Some(k)
		}
	}
	return fn.None[ScanningKey]()
}

// ScanningKeys returns the incoming viewing keys of every account, pool
// and scope, ordered by account.
func (m *Manager) ScanningKeys() []ScanningKey {
	var keys []ScanningKey
	for _, a := range m.Accounts() {
		for _, p := range a.UFVK.Protocols() {
			fvk := a.UFVK.FullViewingKey(p)
			for _, scope := range shielded.Scopes {
				keys = append(keys, ScanningKey{
					Account:  a.ID,
					Protocol: p,
					Scope:    scope,
					FVK:      fvk.Scoped(scope),
					IVK:      fvk.IncomingViewingKey(scope),
				})
			}
		}
	}
	return keys
}

// TransparentReceivers returns the external transparent receivers handed
// out for the account, ordered by index.
func (m *Manager) TransparentReceivers(id uint32) ([]TransparentReceiver,
	error) {

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if _, err := m.lookupAccount(id); err != nil {
		return nil, err
	}

	var recv []TransparentReceiver
	for _, r := range m.transparent {
		if r.Account == id && r.Branch == ExternalBranch {
			recv = append(recv, r)
		}
	}
	sort.Slice(recv, func(i, j int) bool {
		return recv[i].Index < recv[j].Index
	})

	return recv, nil
}

// FindAccountForTransparent returns the receiver record of a transparent
// address of the wallet, external or ephemeral.
func (m *Manager) FindAccountForTransparent(
	addr string) fn.Option[TransparentReceiver] {

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	r, ok := m.transparent[addr]
	if !ok {
		return fn.None[TransparentReceiver]()
	}
	return fn.Some(r)
}
