// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/zecsuite/zecwallet/wallet"
)

// summaryString renders the sync progress and per-account balances of a
// wallet summary on one line.
func summaryString(s *wallet.WalletSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tip %d", s.ChainTipHeight)
	s.ScanProgress.WhenSome(func(p wallet.ScanProgress) {
		fmt.Fprintf(&b, ", scanned %d/%d", p.Scanned, p.Total)
	})

	ids := make([]uint32, 0, len(s.AccountBalances))
	for id := range s.AccountBalances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		bal := s.AccountBalances[id]
		fmt.Fprintf(&b, "; account %d: spendable %v, total %v", id,
			bal.SpendableValue(), bal.Total())
	}

	return b.String()
}

// logBalances logs the wallet summary every interval until the returned
// function is called.
func logBalances(w *wallet.Wallet, interval time.Duration) func() {
	t := ticker.New(interval)
	gm := fn.NewGoroutineManager()

	t.Resume()
	gm.Go(context.Background(), func(ctx context.Context) {
		for {
			select {
			case <-t.Ticks():
			case <-ctx.Done():
				return
			}

			summary, err := w.WalletSummary(cfg.MinConf)
			if err != nil {
				log.Debugf("No wallet summary yet: %v", err)
				continue
			}
			log.Infof("Wallet %v", newLogClosure(func() string {
				return summaryString(summary)
			}))
		}
	})

	return func() {
		gm.Stop()
		t.Stop()
	}
}
