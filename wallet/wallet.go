// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/scanqueue"
	"github.com/zecsuite/zecwallet/shardtree"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

const (
	// DefaultBatchSize is the number of outputs trial-decrypted by one
	// worker task.
	DefaultBatchSize = 100

	// DefaultMaxCheckpoints is the number of note commitment tree
	// checkpoints retained per pool.
	DefaultMaxCheckpoints = scanqueue.PruningDepth

	// DefaultExpiryDelta is the number of blocks past the target height
	// after which a transaction built by the wallet expires.
	DefaultExpiryDelta = 40
)

// config holds the tunables of a Wallet.
type config struct {
	batchSize      int
	maxCheckpoints int
	expiryDelta    uint32
}

func defaultConfig() *config {
	return &config{
		batchSize:      DefaultBatchSize,
		maxCheckpoints: DefaultMaxCheckpoints,
		expiryDelta:    DefaultExpiryDelta,
	}
}

// Option is a configuration option for a Wallet.
type Option func(*config)

// WithBatchSize sets the number of outputs per trial decryption task.
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxCheckpoints sets the number of tree checkpoints retained per pool.
func WithMaxCheckpoints(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxCheckpoints = n
		}
	}
}

// WithExpiryDelta sets how many blocks past their target height created
// transactions expire.
func WithExpiryDelta(delta uint32) Option {
	return func(c *config) {
		c.expiryDelta = delta
	}
}

// AccountBirthday is the chain state just below the first block an account
// may have received funds in.
type AccountBirthday struct {
	// PriorState is the chain state at the block before the birthday.
	// Its tree frontiers seed the wallet's note commitment trees.
	PriorState *chain.ChainState

	// RecoverUntil is the chain tip when a restored account was added.
	RecoverUntil fn.Option[uint32]
}

// Height returns the birthday height.
func (b *AccountBirthday) Height() uint32 {
	return b.PriorState.Height + 1
}

// Wallet is the in-memory store of a shielded light client: its accounts,
// note commitment trees, note ledger, scan queue and outstanding data
// requests.
//
// Wallet is safe for concurrent access. Mutating operations run one at a
// time and readers observe either none or all of a mutation.
type Wallet struct {
	mtx sync.RWMutex

	// Manager is the account and address registry. It locks itself.
	Manager *waddrmgr.Manager

	params   *netparams.Params
	txStore  *wtxmgr.Store
	trees    map[shielded.Protocol]*shardtree.ShardTree
	queue    *scanqueue.Queue
	requests []TransactionDataRequest
	chainTip fn.Option[uint32]

	cfg *config

	// db is set when the wallet was opened through a Loader.
	db walletdb.DB
}

// New returns an empty wallet for the network.
func New(params *netparams.Params, opts ...Option) *Wallet {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Wallet{
		Manager: waddrmgr.New(params),
		params:  params,
		txStore: wtxmgr.New(),
		trees:   newTrees(cfg.maxCheckpoints),
		queue:   scanqueue.New(),
		cfg:     cfg,
	}
}

func newTrees(maxCheckpoints int) map[shielded.Protocol]*shardtree.ShardTree {
	trees := make(map[shielded.Protocol]*shardtree.ShardTree)
	for _, p := range shielded.Protocols {
		trees[p] = shardtree.New(shielded.HasherFor(p), maxCheckpoints)
	}
	return trees
}

func cloneTrees(
	trees map[shielded.Protocol]*shardtree.ShardTree,
) map[shielded.Protocol]*shardtree.ShardTree {

	c := make(map[shielded.Protocol]*shardtree.ShardTree, len(trees))
	for p, t := range trees {
		c[p] = t.Clone()
	}
	return c
}

// Params returns the network parameters of the wallet.
func (w *Wallet) Params() *netparams.Params {
	return w.params
}

// CreateAccount derives the next account of seed and seeds the note
// commitment trees with the frontiers at its birthday. The spending key is
// returned to the caller and not retained.
func (w *Wallet) CreateAccount(seed []byte,
	birthday *AccountBirthday) (uint32, *waddrmgr.UnifiedSpendingKey, error) {

	var usk *waddrmgr.UnifiedSpendingKey
	id, err := w.addAccount(birthday, func(b waddrmgr.Birthday) (uint32,
		error) {

		id, key, err := w.Manager.CreateAccount(seed, b)
		usk = key
		return id, err
	})
	if err != nil {
		return 0, nil, err
	}

	return id, usk, nil
}

// ImportAccount adds the account at a specific ZIP-32 index of seed, as
// done when restoring a wallet.
func (w *Wallet) ImportAccount(seed []byte, index uint32,
	birthday *AccountBirthday) (uint32, *waddrmgr.UnifiedSpendingKey, error) {

	var usk *waddrmgr.UnifiedSpendingKey
	id, err := w.addAccount(birthday, func(b waddrmgr.Birthday) (uint32,
		error) {

		id, key, err := w.Manager.ImportDerivedAccount(seed, index, b)
		usk = key
		return id, err
	})
	if err != nil {
		return 0, nil, err
	}

	return id, usk, nil
}

// ImportViewOnly adds an account that is watched through its unified full
// viewing key.
func (w *Wallet) ImportViewOnly(ufvk *waddrmgr.UnifiedFullViewingKey,
	birthday *AccountBirthday, purpose waddrmgr.AccountPurpose) (uint32,
	error) {

	return w.addAccount(birthday, func(b waddrmgr.Birthday) (uint32, error) {
		return w.Manager.ImportViewOnly(ufvk, b, purpose)
	})
}

// addAccount seeds the trees with the birthday frontiers and registers the
// account through register. Nothing changes if either step fails.
func (w *Wallet) addAccount(birthday *AccountBirthday,
	register func(waddrmgr.Birthday) (uint32, error)) (uint32, error) {

	if birthday == nil || birthday.PriorState == nil {
		return 0, fmt.Errorf("account birthday requires a prior chain " +
			"state")
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	trees := cloneTrees(w.trees)
	prior := birthday.PriorState
	for _, p := range shielded.Protocols {
		err := trees[p].InsertFrontier(
			prior.Frontier(p), prior.Height,
			shardtree.RetentionEphemeral,
		)
		if err != nil {
			return 0, fmt.Errorf("unable to insert %v frontier at "+
				"height %d: %w", p, prior.Height, err)
		}
	}

	id, err := register(waddrmgr.Birthday{
		Height:       birthday.Height(),
		RecoverUntil: birthday.RecoverUntil,
	})
	if err != nil {
		return 0, err
	}
	w.trees = trees

	// A known tip is re-applied so the birthday range gets queued.
	w.chainTip.WhenSome(func(tip uint32) {
		w.updateTipLocked(tip)
	})

	log.Infof("Added account %d with birthday %d", id, birthday.Height())

	return id, nil
}

// witnesses answers witness queries against a set of trees. The anchor of a
// height is the latest checkpoint at or below it.
type witnesses map[shielded.Protocol]*shardtree.ShardTree

// A compile-time assertion to ensure that witnesses meets the
// wtxmgr.WitnessChecker interface.
var _ wtxmgr.WitnessChecker = (witnesses)(nil)

// IsWitnessable reports whether the leaf at pos can be witnessed as of the
// anchor height.
func (t witnesses) IsWitnessable(p shielded.Protocol, pos uint64,
	anchor uint32) bool {

	tree, ok := t[p]
	if !ok {
		return false
	}
	id := anchorCheckpoint(tree, anchor)
	if id.IsNone() {
		return false
	}
	return tree.IsWitnessable(pos, id.UnsafeFromSome())
}

// anchorCheckpoint returns the id of the latest checkpoint at or below
// height.
func anchorCheckpoint(tree *shardtree.ShardTree,
	height uint32) fn.Option[uint32] {

	cps := tree.Checkpoints()
	sort.Slice(cps, func(i, j int) bool {
		return cps[i].ID < cps[j].ID
	})

	best := fn.None[uint32]()
	for _, cp := range cps {
		if cp.ID > height {
			break
		}
		best = fn.Some(cp.ID)
	}
	return best
}
