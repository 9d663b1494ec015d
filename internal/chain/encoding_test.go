package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTransactionRoundTrip(t *testing.T) {
	tx := Transaction{
		From:      PubKey{1, 2, 3},
		To:        PubKey{4, 5, 6},
		Amount:    100,
		Fee:       10,
		Nonce:     7,
		Timestamp: 123456,
		Data:      []byte("memo"),
		Signature: Sig{9, 9, 9},
	}
	encoded := EncodeTransaction(&tx)
	decoded, n, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, tx, decoded)
}

func TestDecodeTransactionConsumesPrefix(t *testing.T) {
	tx1 := Transaction{From: PubKey{1}, To: PubKey{2}, Amount: 1}
	tx2 := Transaction{From: PubKey{3}, To: PubKey{4}, Amount: 2}
	buf := append(EncodeTransaction(&tx1), EncodeTransaction(&tx2)...)

	got1, n1, err := DecodeTransaction(buf)
	require.NoError(t, err)
	require.Equal(t, tx1, got1)

	got2, n2, err := DecodeTransaction(buf[n1:])
	require.NoError(t, err)
	require.Equal(t, tx2, got2)
	require.Equal(t, len(buf), n1+n2)
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	blk := &Block{
		Header: BlockHeader{
			PrevHash:     Hash{1},
			Height:       5,
			Timestamp:    999,
			Proposer:     PubKey{7},
			TxMerkleRoot: Hash{2},
			StateRoot:    Hash{3},
			GasLimit:     1_000_000,
			Nonce:        42,
		},
		Transactions: []Transaction{
			{From: PubKey{1}, To: PubKey{2}, Amount: 50, Nonce: 0},
			{From: PubKey{2}, To: PubKey{3}, Amount: 25, Nonce: 1, Data: []byte("x")},
		},
		Signature: Sig{8},
	}
	decoded, err := DecodeBlock(EncodeBlock(blk))
	require.NoError(t, err)
	require.Equal(t, blk, decoded)
}

func TestEncodeDecodeEmptyBlockRoundTrip(t *testing.T) {
	blk := &Block{Header: BlockHeader{Height: 0}}
	decoded, err := DecodeBlock(EncodeBlock(blk))
	require.NoError(t, err)
	require.Equal(t, blk, decoded)
}

func TestDecodeTransactionRejectsOversizeDataLength(t *testing.T) {
	tx := Transaction{From: PubKey{1}, To: PubKey{2}}
	encoded := EncodeTransaction(&tx)
	// Corrupt the data-length field (the 8 bytes right after From/To/
	// Amount/Fee/Nonce/Timestamp) to an implausibly large value.
	offset := 32 + 32 + 8 + 8 + 8 + 8
	for i := 0; i < 8; i++ {
		encoded[offset+i] = 0xff
	}
	_, _, err := DecodeTransaction(encoded)
	require.Error(t, err)
}
