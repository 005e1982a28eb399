// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// RequestKind is the kind of information a TransactionDataRequest asks the
// caller to fetch.
type RequestKind uint8

const (
	// RequestGetStatus asks for the mined status of a transaction.
	RequestGetStatus RequestKind = iota

	// RequestEnhancement asks for the full transaction so that memos and
	// transparent parts can be recorded.
	RequestEnhancement

	// RequestSpendsFromAddress asks for the transactions spending from a
	// transparent address in a height range.
	RequestSpendsFromAddress
)

// String returns the request kind name.
func (k RequestKind) String() string {
	switch k {
	case RequestGetStatus:
		return "GetStatus"
	case RequestEnhancement:
		return "Enhancement"
	case RequestSpendsFromAddress:
		return "SpendsFromAddress"
	default:
		return fmt.Sprintf("RequestKind(%d)", uint8(k))
	}
}

// TransactionDataRequest is information the wallet needs from a remote
// indexer. Equal requests are queued once.
type TransactionDataRequest struct {
	Kind RequestKind

	// TxID is set for GetStatus and Enhancement requests.
	TxID chainhash.Hash

	// Address, StartHeight and EndHeight are set for SpendsFromAddress
	// requests. A missing end height means up to the chain tip.
	Address     string
	StartHeight uint32
	EndHeight   fn.Option[uint32]
}

// String returns a human readable form of the request.
func (r TransactionDataRequest) String() string {
	if r.Kind == RequestSpendsFromAddress {
		return fmt.Sprintf("%v(%s, %d..%v)", r.Kind, r.Address,
			r.StartHeight, r.EndHeight)
	}
	return fmt.Sprintf("%v(%v)", r.Kind, r.TxID)
}

func getStatusRequest(txid chainhash.Hash) TransactionDataRequest {
	return TransactionDataRequest{Kind: RequestGetStatus, TxID: txid}
}

func enhancementRequest(txid chainhash.Hash) TransactionDataRequest {
	return TransactionDataRequest{Kind: RequestEnhancement, TxID: txid}
}

// queueRequests appends requests not already queued to reqs.
func queueRequests(reqs []TransactionDataRequest,
	add ...TransactionDataRequest) []TransactionDataRequest {

	for _, r := range add {
		known := false
		for _, q := range reqs {
			if q == r {
				known = true
				break
			}
		}
		if !known {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

// dropRequests removes every request matching f.
func dropRequests(reqs []TransactionDataRequest,
	f func(TransactionDataRequest) bool) []TransactionDataRequest {

	out := reqs[:0]
	for _, r := range reqs {
		if !f(r) {
			out = append(out, r)
		}
	}
	return out
}

// TransactionDataRequests returns the outstanding data requests in the
// order they were queued.
func (w *Wallet) TransactionDataRequests() []TransactionDataRequest {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	return append([]TransactionDataRequest(nil), w.requests...)
}

// SatisfyDataRequest removes a request the caller has served.
func (w *Wallet) SatisfyDataRequest(req TransactionDataRequest) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.requests = dropRequests(w.requests, func(r TransactionDataRequest) bool {
		return r == req
	})
}
