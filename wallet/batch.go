// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"runtime"
	"sync"

	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
	"golang.org/x/sync/errgroup"
)

// scanKey identifies the viewing key an output was decrypted with.
type scanKey struct {
	account uint32
	scope   shielded.Scope
}

// decryptTask is one compact output to trial-decrypt.
type decryptTask struct {
	ref    wtxmgr.NoteID
	output *shielded.CompactOutput
	rho    [32]byte
}

// decrypted is the result of a successful trial decryption.
type decrypted struct {
	key  waddrmgr.ScanningKey
	note *shielded.Note
}

// batchRunner trial-decrypts outputs in batches spread over a bounded set
// of goroutines. Tasks are added in scan order; Flush waits for every
// dispatched batch and returns the outputs that decrypted. A runner is
// used for a single scan.
type batchRunner struct {
	ctx       context.Context
	group     *errgroup.Group
	batchSize int

	// keys holds the incoming viewing keys per pool, keyed by account
	// and scope. order fixes the order keys are tried in so that the
	// first matching key is deterministic.
	keys  map[shielded.Protocol]map[scanKey]waddrmgr.ScanningKey
	order map[shielded.Protocol][]scanKey

	pending []decryptTask

	mtx     sync.Mutex
	results map[wtxmgr.NoteID]decrypted
}

func newBatchRunner(ctx context.Context, keys []waddrmgr.ScanningKey,
	batchSize int) *batchRunner {

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	r := &batchRunner{
		ctx:       ctx,
		group:     group,
		batchSize: batchSize,
		keys:      make(map[shielded.Protocol]map[scanKey]waddrmgr.ScanningKey),
		order:     make(map[shielded.Protocol][]scanKey),
		results:   make(map[wtxmgr.NoteID]decrypted),
	}
	for _, k := range keys {
		sk := scanKey{account: k.Account, scope: k.Scope}
		if r.keys[k.Protocol] == nil {
			r.keys[k.Protocol] = make(map[scanKey]waddrmgr.ScanningKey)
		}
		if _, ok := r.keys[k.Protocol][sk]; ok {
			continue
		}
		r.keys[k.Protocol][sk] = k
		r.order[k.Protocol] = append(r.order[k.Protocol], sk)
	}

	return r
}

// Add queues a task and dispatches a batch once enough are queued.
func (r *batchRunner) Add(t decryptTask) {
	r.pending = append(r.pending, t)
	if len(r.pending) >= r.batchSize {
		r.dispatch()
	}
}

func (r *batchRunner) dispatch() {
	if len(r.pending) == 0 {
		return
	}
	batch := r.pending
	r.pending = nil

	r.group.Go(func() error {
		found := make(map[wtxmgr.NoteID]decrypted)
		for i := range batch {
			if err := r.ctx.Err(); err != nil {
				return err
			}
			t := &batch[i]
			p := t.ref.Protocol
			for _, sk := range r.order[p] {
				k := r.keys[p][sk]
				n, ok := k.IVK.DecryptCompact(t.output, t.rho)
				if !ok {
					continue
				}
				found[t.ref] = decrypted{key: k, note: n}
				break
			}
		}

		r.mtx.Lock()
		for ref, d := range found {
			r.results[ref] = d
		}
		r.mtx.Unlock()

		return nil
	})
}

// Flush dispatches the remaining tasks, waits for every batch, and returns
// the decrypted outputs.
func (r *batchRunner) Flush() (map[wtxmgr.NoteID]decrypted, error) {
	r.dispatch()
	if err := r.group.Wait(); err != nil {
		return nil, err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	return r.results, nil
}
