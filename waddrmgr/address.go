// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/shielded"
)

// Typecodes of the items of unified addresses and viewing keys.
const (
	typeP2PKH   tlv.Type = 0
	typeP2SH    tlv.Type = 1
	typeSapling tlv.Type = 2
	typeOrchard tlv.Type = 3
)

// knownTypes lists the decoded typecodes in ascending order.
var knownTypes = []tlv.Type{typeP2PKH, typeP2SH, typeSapling, typeOrchard}

// nets is consulted to tell a wrong network from a malformed string.
var nets = []*netparams.Params{
	&netparams.MainNetParams,
	&netparams.TestNetParams,
	&netparams.RegressionNetParams,
}

func protocolType(p shielded.Protocol) tlv.Type {
	if p == shielded.Orchard {
		return typeOrchard
	}
	return typeSapling
}

func hash160(b []byte) []byte {
	return btcutil.Hash160(b)
}

// encodeUnified writes items as a TLV stream in ascending typecode order
// and encodes it as bech32m under hrp.
func encodeUnified(hrp string, items map[tlv.Type][]byte) (string, error) {
	if len(items) == 0 {
		return "", managerError(ErrInvalidEncoding,
			"no items to encode", nil)
	}

	types := make([]tlv.Type, 0, len(items))
	for typ := range items {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	records := make([]tlv.Record, 0, len(types))
	for _, typ := range types {
		b := items[typ]
		records = append(records, tlv.MakePrimitiveRecord(typ, &b))
	}
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return "", err
	}

	data, err := bech32.ConvertBits(buf.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, data)
}

// decodeBech32m decodes a bech32m string of any length. Unified
// encodings are longer than the 90 characters bech32.Decode allows, and
// DecodeNoLimit accepts both checksum variants, so the checksum variant
// is confirmed by encoding again.
func decodeBech32m(s string) (string, []byte, error) {
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return "", nil, managerError(ErrInvalidEncoding,
			"invalid bech32m string", err)
	}
	again, err := bech32.EncodeM(hrp, data)
	if err != nil || again != strings.ToLower(s) {
		return "", nil, managerError(ErrInvalidEncoding,
			"not a bech32m string", err)
	}
	return hrp, data, nil
}

// decodeUnified reverses encodeUnified. hrpOf selects the human readable
// part from network parameters.
func decodeUnified(params *netparams.Params, s string,
	hrpOf func(*netparams.Params) string) (map[tlv.Type][]byte, error) {

	hrp, data, err := decodeBech32m(s)
	if err != nil {
		return nil, err
	}
	if hrp != hrpOf(params) {
		for _, net := range nets {
			if hrp == hrpOf(net) {
				str := fmt.Sprintf("encoding is for %s", net.Name)
				return nil, managerError(ErrWrongNet, str, nil)
			}
		}
		str := fmt.Sprintf("unknown prefix %q", hrp)
		return nil, managerError(ErrInvalidEncoding, str, nil)
	}

	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, managerError(ErrInvalidEncoding,
			"invalid bech32m payload", err)
	}

	values := make([][]byte, len(knownTypes))
	records := make([]tlv.Record, len(knownTypes))
	for i, typ := range knownTypes {
		records[i] = tlv.MakePrimitiveRecord(typ, &values[i])
	}
	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}
	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(payload))
	if err != nil {
		return nil, managerError(ErrInvalidEncoding,
			"invalid item stream", err)
	}

	items := make(map[tlv.Type][]byte)
	for i, typ := range knownTypes {
		if v, ok := parsed[typ]; ok && v == nil {
			items[typ] = values[i]
		}
	}
	if len(items) == 0 {
		return nil, managerError(ErrInvalidEncoding,
			"no recognized items", nil)
	}

	return items, nil
}

// ReceiverRequest selects the receivers of a new unified address.
type ReceiverRequest struct {
	Orchard     bool
	Sapling     bool
	Transparent bool
}

var (
	// AllReceivers requests a receiver in every pool.
	AllReceivers = ReceiverRequest{
		Orchard: true, Sapling: true, Transparent: true,
	}

	// ShieldedReceivers requests the shielded receivers only.
	ShieldedReceivers = ReceiverRequest{Orchard: true, Sapling: true}
)

// Wants reports whether the request includes a pool.
func (r ReceiverRequest) Wants(p shielded.Protocol) bool {
	if p == shielded.Orchard {
		return r.Orchard
	}
	return r.Sapling
}

// Intersect limits the request to the pools a viewing key can serve.
func (r ReceiverRequest) Intersect(u *UnifiedFullViewingKey) ReceiverRequest {
	return ReceiverRequest{
		Orchard:     r.Orchard && u.Orchard != nil,
		Sapling:     r.Sapling && u.Sapling != nil,
		Transparent: r.Transparent && u.Transparent != nil,
	}
}

// IsEmpty reports whether no receiver is requested.
func (r ReceiverRequest) IsEmpty() bool {
	return !r.Orchard && !r.Sapling && !r.Transparent
}

// UnifiedAddress bundles receivers of one account at one diversifier index.
type UnifiedAddress struct {
	Orchard *shielded.PaymentAddress
	Sapling *shielded.PaymentAddress

	// Transparent is the hash160 of a P2PKH receiver.
	Transparent []byte
}

// Receiver returns the shielded receiver of the given pool, or nil.
func (a *UnifiedAddress) Receiver(p shielded.Protocol) *shielded.PaymentAddress {
	if p == shielded.Orchard {
		return a.Orchard
	}
	return a.Sapling
}

// Encode returns the bech32m encoding of the address for the network.
func (a *UnifiedAddress) Encode(params *netparams.Params) (string, error) {
	items := make(map[tlv.Type][]byte)
	if a.Transparent != nil {
		items[typeP2PKH] = a.Transparent
	}
	if a.Sapling != nil {
		items[typeSapling] = a.Sapling.Bytes()
	}
	if a.Orchard != nil {
		items[typeOrchard] = a.Orchard.Bytes()
	}
	return encodeUnified(params.UnifiedAddressHRP, items)
}

// ParseUnifiedAddress decodes an address produced by Encode.
func ParseUnifiedAddress(params *netparams.Params,
	s string) (*UnifiedAddress, error) {

	items, err := decodeUnified(params, s, func(p *netparams.Params) string {
		return p.UnifiedAddressHRP
	})
	if err != nil {
		return nil, err
	}

	a := &UnifiedAddress{}
	if b, ok := items[typeP2PKH]; ok {
		if len(b) != 20 {
			return nil, managerError(ErrInvalidEncoding,
				"invalid transparent receiver", nil)
		}
		a.Transparent = b
	}
	for _, p := range shielded.Protocols {
		b, ok := items[protocolType(p)]
		if !ok {
			continue
		}
		pa, err := shielded.ParsePaymentAddress(p, b)
		if err != nil {
			return nil, managerError(ErrInvalidEncoding,
				"invalid "+p.String()+" receiver", err)
		}
		if p == shielded.Orchard {
			a.Orchard = pa
		} else {
			a.Sapling = pa
		}
	}
	if a.Orchard == nil && a.Sapling == nil && a.Transparent == nil {
		return nil, managerError(ErrInvalidEncoding,
			"address has no usable receiver", nil)
	}

	return a, nil
}

// EncodeP2PKH returns the transparent address of a public key hash.
func EncodeP2PKH(params *netparams.Params, pkHash []byte) string {
	prefix := params.PubKeyHashAddrID
	return base58.CheckEncode(append([]byte{prefix[1]}, pkHash...),
		prefix[0])
}

// EncodeP2SH returns the transparent address of a script hash.
func EncodeP2SH(params *netparams.Params, scriptHash []byte) string {
	prefix := params.ScriptHashAddrID
	return base58.CheckEncode(append([]byte{prefix[1]}, scriptHash...),
		prefix[0])
}

// EncodeTEX returns the transparent-source-only address of a public key
// hash.
func EncodeTEX(params *netparams.Params, pkHash []byte) (string, error) {
	data, err := bech32.ConvertBits(pkHash, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(params.TEXAddressHRP, data)
}

func isForeignTEX(hrp string) bool {
	for _, net := range nets {
		if hrp == net.TEXAddressHRP {
			return true
		}
	}
	return false
}

// RecipientKind is the kind of address a payment is made to.
type RecipientKind uint8

const (
	// RecipientUnified is a unified address.
	RecipientUnified RecipientKind = iota

	// RecipientP2PKH is a transparent public key hash address.
	RecipientP2PKH

	// RecipientP2SH is a transparent script hash address.
	RecipientP2SH

	// RecipientTEX is a transparent-source-only address. Funds sent to it
	// must come from transparent inputs only.
	RecipientTEX
)

// String returns the kind name.
func (k RecipientKind) String() string {
	switch k {
	case RecipientUnified:
		return "unified"
	case RecipientP2PKH:
		return "p2pkh"
	case RecipientP2SH:
		return "p2sh"
	case RecipientTEX:
		return "tex"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Recipient is a decoded payment address.
type Recipient struct {
	Kind RecipientKind

	// Encoded is the address string as given.
	Encoded string

	// Unified is set for unified addresses.
	Unified *UnifiedAddress

	// Hash is the public key or script hash of transparent and TEX
	// addresses.
	Hash []byte
}

// IsTransparent reports whether payments to the recipient create a
// transparent output.
func (r *Recipient) IsTransparent() bool {
	return r.Kind != RecipientUnified
}

// PkScript returns the output script paying a transparent recipient.
func (r *Recipient) PkScript(params *netparams.Params) ([]byte, error) {
	var (
		addr btcutil.Address
		err  error
	)
	switch r.Kind {
	case RecipientP2PKH, RecipientTEX:
		addr, err = btcutil.NewAddressPubKeyHash(r.Hash, params.Params)
	case RecipientP2SH:
		addr, err = btcutil.NewAddressScriptHashFromHash(r.Hash,
			params.Params)
	default:
		return nil, managerError(ErrInvalidEncoding,
			"recipient has no transparent script", nil)
	}
	if err != nil {
		return nil, managerError(ErrInvalidEncoding,
			"invalid transparent hash", err)
	}

	return txscript.PayToAddrScript(addr)
}

// P2PKHScript returns the output script paying a public key hash.
func P2PKHScript(params *netparams.Params, pkHash []byte) ([]byte, error) {
	r := &Recipient{Kind: RecipientP2PKH, Hash: pkHash}
	return r.PkScript(params)
}

// DecodeRecipient decodes any address the wallet can pay to.
func DecodeRecipient(params *netparams.Params, s string) (*Recipient, error) {
	r := &Recipient{Encoded: s}

	if hrp, data, err := decodeBech32m(s); err == nil {
		switch {
		case hrp == params.TEXAddressHRP:
			hash, err := bech32.ConvertBits(data, 5, 8, false)
			if err != nil || len(hash) != 20 {
				return nil, managerError(ErrInvalidEncoding,
					"invalid TEX address", err)
			}
			r.Kind, r.Hash = RecipientTEX, hash
			return r, nil

		case isForeignTEX(hrp):
			return nil, managerError(ErrWrongNet,
				"TEX address is for another network", nil)

		default:
			ua, err := ParseUnifiedAddress(params, s)
			if err != nil {
				return nil, err
			}
			r.Kind, r.Unified = RecipientUnified, ua
			return r, nil
		}
	}

	decoded, version, err := base58.CheckDecode(s)
	if err != nil || len(decoded) != 21 {
		return nil, managerError(ErrInvalidEncoding,
			"unrecognized address", err)
	}
	prefix := [2]byte{version, decoded[0]}
	switch prefix {
	case params.PubKeyHashAddrID:
		r.Kind = RecipientP2PKH
	case params.ScriptHashAddrID:
		r.Kind = RecipientP2SH
	default:
		for _, net := range nets {
			if prefix == net.PubKeyHashAddrID ||
				prefix == net.ScriptHashAddrID {

				str := fmt.Sprintf("address is for %s", net.Name)
				return nil, managerError(ErrWrongNet, str, nil)
			}
		}
		return nil, managerError(ErrInvalidEncoding,
			"unknown address prefix", nil)
	}
	r.Hash = decoded[1:]

	return r, nil
}
