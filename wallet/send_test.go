package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/chain/chaintest"
	"github.com/zecsuite/zecwallet/pkg/unit"
	"github.com/zecsuite/zecwallet/shielded"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// TestStoreDecryptedMemo checks that a note seen in a compact block gets
// its memo once the full transaction is stored.
func TestStoreDecryptedMemo(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)

	memo, err := shielded.MemoFromText("thanks for lunch")
	require.NoError(t, err)
	pay, err := chaintest.PayTo(chaintest.Payment{
		To: h.address(shielded.Orchard), Value: 25000,
		Memo: fn.Some(memo),
	})
	require.NoError(t, err)
	b := h.mine(pay)
	h.sync()

	txid := pay.TxHash()
	id := wtxmgr.NoteID{TxID: txid, Protocol: shielded.Orchard}
	got, err := h.w.Memo(id)
	require.NoError(t, err)
	require.True(t, got.IsNone())
	require.Contains(t, h.w.TransactionDataRequests(),
		enhancementRequest(txid))

	full, ok := h.chain.Tx(txid)
	require.True(t, ok)
	err = h.w.StoreDecrypted(&DecryptedTransaction{
		Tx: full, MinedHeight: fn.Some(b.Height),
	})
	require.NoError(t, err)

	got, err = h.w.Memo(id)
	require.NoError(t, err)
	require.Equal(t, fn.Some(memo), got)
	require.NotContains(t, h.w.TransactionDataRequests(),
		enhancementRequest(txid))

	// The note keeps its position and stays spendable.
	require.Equal(t, unit.Zatoshi(25000), h.balance(1).SpendableValue())

	_, err = h.w.Memo(wtxmgr.NoteID{TxID: txid, Protocol: shielded.Sapling})
	require.True(t, wtxmgr.IsError(err, wtxmgr.ErrNoteNotFound))
}

// TestStoreDecryptedRecoversSent checks that a restored wallet recovers the
// outputs it sent with its outgoing viewing key.
func TestStoreDecryptedRecoversSent(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)
	h.receive(shielded.Sapling, 60000)
	h.sync()

	spend := h.pay(externalAddress(t, saplingOnly), 10000)
	b := h.mine(spend)

	restored := newTestHarnessOn(t, h)
	restored.sync()
	require.Equal(t, unit.Zatoshi(40000), restored.balance(1).Total())

	err := restored.w.StoreDecrypted(&DecryptedTransaction{
		Tx: spend, MinedHeight: fn.Some(b.Height),
	})
	require.NoError(t, err)

	txid := spend.TxHash()
	sent := restored.w.txStore.SentOutputs(&txid)
	require.Len(t, sent, 2, spew.Sdump(sent))
	require.Equal(t, unit.Zatoshi(10000), sent[0].Value)
	require.Equal(t, restored.account, sent[0].FromAccount)
	require.True(t, sent[0].ToAccount.IsNone())
	require.Equal(t, fn.Some(shielded.EmptyMemo), sent[0].Memo)

	// The change output is recorded as sent to the account itself.
	require.Equal(t, uint16(1), sent[1].Key.Index)
	require.Equal(t, unit.Zatoshi(40000), sent[1].Value)
	require.Equal(t, fn.Some(restored.account), sent[1].ToAccount)

	entry, err := restored.w.Transaction(&txid)
	require.NoError(t, err)
	require.Equal(t, wtxmgr.StatusMined(b.Height), entry.Status)
	require.NotEmpty(t, entry.Raw)
}

func TestSetTransactionStatus(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)
	h.receive(shielded.Sapling, 60000)
	h.sync()

	spend := h.pay(externalP2PKH(t), 10000)
	txid := spend.TxHash()
	require.Contains(t, h.w.TransactionDataRequests(),
		getStatusRequest(txid))

	// An indexer that does not know the transaction leaves it unmined.
	err := h.w.SetTransactionStatus(&txid, wtxmgr.TxStatus{
		State: wtxmgr.TxUnknown,
	})
	require.NoError(t, err)
	require.True(t, h.w.TxHeight(&txid).IsNone())
	require.NotContains(t, h.w.TransactionDataRequests(),
		getStatusRequest(txid))

	err = h.w.SetTransactionStatus(&txid, wtxmgr.StatusMined(102))
	require.NoError(t, err)
	require.Equal(t, fn.Some[uint32](102), h.w.TxHeight(&txid))

	// The input note is no longer counted once its spend is mined. The
	// fee covers two padded Sapling outputs and one transparent output.
	require.Equal(t, unit.Zatoshi(60000-10000-15000), h.balance(1).Total())
}

func TestPutReceivedTransparentUTXO(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.mineEmpty(1)
	h.sync()

	foreign, err := chaintest.RandomNullifier()
	require.NoError(t, err)
	op := wire.OutPoint{Hash: [32]byte(foreign)}

	_, err = h.w.PutReceivedTransparentUTXO(
		op, wire.NewTxOut(10000, []byte{0x51}), fn.Some[uint32](100),
	)
	require.True(t, IsError(err, ErrAddressNotRecognized))

	r, err := externalP2PKHScript(t)
	require.NoError(t, err)
	_, err = h.w.PutReceivedTransparentUTXO(
		op, wire.NewTxOut(10000, r), fn.Some[uint32](100),
	)
	require.True(t, IsError(err, ErrAddressNotRecognized))

	addr, script := h.transparentAddress()
	account, err := h.w.PutReceivedTransparentUTXO(
		op, wire.NewTxOut(10000, script), fn.Some[uint32](100),
	)
	require.NoError(t, err)
	require.Equal(t, h.account, account)
	require.Equal(t, unit.Zatoshi(10000), h.balance(1).Unshielded)

	req := TransactionDataRequest{
		Kind:        RequestSpendsFromAddress,
		Address:     addr,
		StartHeight: 100,
		EndHeight:   fn.None[uint32](),
	}
	require.Contains(t, h.w.TransactionDataRequests(), req)

	h.w.SatisfyDataRequest(req)
	require.NotContains(t, h.w.TransactionDataRequests(), req)
}

// externalP2PKHScript returns the output script of externalP2PKH.
func externalP2PKHScript(t *testing.T) ([]byte, error) {
	t.Helper()

	r, err := waddrmgr.DecodeRecipient(testParams, externalP2PKH(t))
	if err != nil {
		return nil, err
	}
	return waddrmgr.P2PKHScript(testParams, r.Hash)
}
