package wallet

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/chain/chaintest"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/tx"
	"github.com/zecsuite/zecwallet/waddrmgr"
)

var testParams = &netparams.RegressionNetParams

// testBirthday is the height of the first block of every test chain.
const testBirthday = 100

func testSeed(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

// testHarness is a wallet with one account whose birthday is the first
// block of a synthetic chain.
type testHarness struct {
	t       *testing.T
	w       *Wallet
	chain   *chaintest.Chain
	account uint32
	usk     *waddrmgr.UnifiedSpendingKey
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()

	c, err := chaintest.New(testBirthday, 13, 5)
	require.NoError(t, err)

	w := New(testParams, opts...)
	id, usk, err := w.CreateAccount(
		testSeed(0x01), &AccountBirthday{PriorState: c.Tip()},
	)
	require.NoError(t, err)

	return &testHarness{
		t:       t,
		w:       w,
		chain:   c,
		account: id,
		usk:     usk,
	}
}

// address returns an external receiver of the harness account.
func (h *testHarness) address(p shielded.Protocol) *shielded.PaymentAddress {
	h.t.Helper()

	rec, err := h.w.Manager.CurrentAddress(h.account)
	require.NoError(h.t, err)
	addr := rec.Address.Receiver(p)
	require.NotNil(h.t, addr)

	return addr
}

// mine appends a block holding txs.
func (h *testHarness) mine(txs ...*tx.Tx) *chain.CompactBlock {
	h.t.Helper()

	b, err := h.chain.Mine(txs...)
	require.NoError(h.t, err)
	return b
}

// mineEmpty appends n empty blocks.
func (h *testHarness) mineEmpty(n int) {
	h.t.Helper()
	require.NoError(h.t, h.chain.MineEmpty(n))
}

// receive mines a block paying value to the account in pool p.
func (h *testHarness) receive(p shielded.Protocol,
	value unit.Zatoshi) *chain.CompactBlock {

	h.t.Helper()

	t, err := chaintest.PayTo(chaintest.Payment{
		To: h.address(p), Value: value,
	})
	require.NoError(h.t, err)
	return h.mine(t)
}

// blocks returns the chain's blocks in [start, end].
func (h *testHarness) blocks(start, end uint32) []*chain.CompactBlock {
	h.t.Helper()

	var blocks []*chain.CompactBlock
	for height := start; height <= end; height++ {
		b, err := h.chain.Block(height)
		require.NoError(h.t, err)
		blocks = append(blocks, b)
	}
	return blocks
}

// scanRange scans the chain's blocks in [start, end].
func (h *testHarness) scanRange(start, end uint32) error {
	h.t.Helper()

	from, err := h.chain.ChainState(context.Background(), start-1)
	require.NoError(h.t, err)
	return h.w.Scan(context.Background(), from, h.blocks(start, end))
}

// sync reports the chain tip and scans every block above the highest
// scanned one.
func (h *testHarness) sync() {
	h.t.Helper()

	tip := h.chain.Tip().Height
	h.w.UpdateChainTip(tip)

	start := uint32(testBirthday)
	h.w.BlockMaxScanned().WhenSome(func(m uint32) {
		start = m + 1
	})
	if start > tip {
		return
	}
	require.NoError(h.t, h.scanRange(start, tip))
}

// balance returns the account balance at minConf confirmations.
func (h *testHarness) balance(minConf uint32) *AccountBalance {
	h.t.Helper()

	bal, err := h.w.AccountBalance(h.account, minConf)
	require.NoError(h.t, err)
	return bal
}

// pay proposes, builds and stores a payment from the account.
func (h *testHarness) pay(to string, amount unit.Zatoshi) *tx.Tx {
	h.t.Helper()

	prop, err := h.w.ProposeTransfer(h.account, []Payment{{
		Recipient: to, Amount: amount,
	}}, 1)
	require.NoError(h.t, err)

	txs, err := h.w.CreateProposedTransactions(h.usk, prop)
	require.NoError(h.t, err)
	require.Len(h.t, txs, 1)

	return txs[0]
}

// externalAddress returns an address of a wallet unrelated to any harness,
// with the requested receivers.
func externalAddress(t *testing.T, req waddrmgr.ReceiverRequest) string {
	t.Helper()

	m := waddrmgr.New(testParams)
	id, _, err := m.CreateAccount(
		testSeed(0x77), waddrmgr.Birthday{Height: testBirthday},
	)
	require.NoError(t, err)
	rec, err := m.NextUnifiedAddress(id, req)
	require.NoError(t, err)

	return rec.Encoded
}

// transparentAddress returns the P2PKH address of the account's first
// external transparent receiver and its output script.
func (h *testHarness) transparentAddress() (string, []byte) {
	h.t.Helper()

	rec, err := h.w.Manager.CurrentAddress(h.account)
	require.NoError(h.t, err)
	require.NotNil(h.t, rec.Address.Transparent)

	addr := waddrmgr.EncodeP2PKH(testParams, rec.Address.Transparent)
	script, err := waddrmgr.P2PKHScript(testParams, rec.Address.Transparent)
	require.NoError(h.t, err)

	return addr, script
}

// fundingTx returns a transaction from outside the wallet with one output
// of value paying script.
func fundingTx(t *testing.T, script []byte, value int64) *tx.Tx {
	t.Helper()

	nf, err := chaintest.RandomNullifier()
	require.NoError(t, err)

	return &tx.Tx{
		Version: tx.Version,
		TxIn: []*wire.TxIn{wire.NewTxIn(&wire.OutPoint{
			Hash: [32]byte(nf), Index: 0,
		}, nil, nil)},
		TxOut: []*wire.TxOut{wire.NewTxOut(value, script)},
	}
}
