// Package entity contains the VeriBlock NodeCore domain entities.
// These types mirror the JSON shapes returned by the NodeCore HTTP API and have no
// dependencies on adapters or transports.
package entity

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrNilBlock is returned when a block-header container or its header is missing.
var ErrNilBlock = errors.New("block header container is nil")

// BtcHeaderSize is the length of a serialized Bitcoin block header.
const BtcHeaderSize = 80

// BlockHeaderContainer wraps a VeriBlock block header as returned by getlastblock.
type BlockHeaderContainer struct {
	Header *BlockHeader `json:"header"`
}

// Hash returns the hash of the contained header.
func (c *BlockHeaderContainer) Hash() (string, error) {
	if c == nil || c.Header == nil {
		return "", ErrNilBlock
	}
	return c.Header.Hash, nil
}

// BlockHeader is a VeriBlock header with its hash and hex-encoded raw bytes.
type BlockHeader struct {
	Hash   string `json:"hash"`
	Header string `json:"header"`
}

// VbkBlockData identifies a VeriBlock block by hash and height.
type VbkBlockData struct {
	Hash   string `json:"hash"`
	Number int    `json:"number"`
}

// VbkInfo is the getinfo reply subset used by the client.
type VbkInfo struct {
	LastBlock VbkBlockData `json:"lastBlock"`
}

// BtcBlockData describes a Bitcoin block known to NodeCore.
type BtcBlockData struct {
	Hash   string `json:"hash"`
	Height int    `json:"height"`
	Header string `json:"header"`
}

func (b *BtcBlockData) String() string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("BtcBlockData(hash=%s, height=%d, header=%s)", b.Hash, b.Height, b.Header)
}

// DecodeHeader parses the hex-encoded 80 byte Bitcoin header.
func (b *BtcBlockData) DecodeHeader() (*wire.BlockHeader, error) {
	raw, err := hex.DecodeString(b.Header)
	if err != nil {
		return nil, fmt.Errorf("invalid header hex: %w", err)
	}
	if len(raw) != BtcHeaderSize {
		return nil, fmt.Errorf("invalid header length: got %d bytes, expected %d", len(raw), BtcHeaderSize)
	}

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize header: %w", err)
	}
	return &header, nil
}

// VerifyHash checks that the reported hash matches the double-SHA256 of the header.
func (b *BtcBlockData) VerifyHash() error {
	header, err := b.DecodeHeader()
	if err != nil {
		return err
	}

	reported, err := chainhash.NewHashFromStr(b.Hash)
	if err != nil {
		return fmt.Errorf("invalid block hash %q: %w", b.Hash, err)
	}

	computed := header.BlockHash()
	if !computed.IsEqual(reported) {
		return fmt.Errorf("hash mismatch: header hashes to %s, reported %s", computed, reported)
	}
	return nil
}

// BitcoinBlockHeader is a hex-encoded Bitcoin header embedded in PoP transactions.
type BitcoinBlockHeader struct {
	Header string `json:"header"`
}

// BlockFeeTable holds the PoP fee share of a block.
type BlockFeeTable struct {
	PopFeeShare int64 `json:"popFeeShare"`
}

// BlockContentMetapackage carries block metadata not covered by the header.
type BlockContentMetapackage struct {
	MinerComment  string        `json:"minerComment"`
	LedgerHash    string        `json:"ledgerHash"`
	ExtraNonce    int64         `json:"extraNonce"`
	Hash          string        `json:"hash"`
	BlockFeeTable BlockFeeTable `json:"blockFeeTable"`
}

// Block is a full VeriBlock block as returned by getblocks.
type Block struct {
	Number                  int                     `json:"number"`
	Timestamp               int                     `json:"timestamp"`
	Hash                    string                  `json:"hash"`
	PreviousHash            string                  `json:"previousHash"`
	SecondPreviousHash      string                  `json:"secondPreviousHash"`
	ThirdPreviousHash       string                  `json:"thirdPreviousHash"`
	EncodedDifficulty       int                     `json:"encodedDifficulty"`
	WinningNonce            int                     `json:"winningNonce"`
	RegularTransactions     []TransactionUnion      `json:"regularTransactions"`
	PopTransactions         []TransactionUnion      `json:"popTransactions"`
	TotalFees               int64                   `json:"totalFees"`
	PowCoinbaseReward       int64                   `json:"powCoinbaseReward"`
	PopCoinbaseReward       int64                   `json:"popCoinbaseReward"`
	BitcoinBlockHeaders     []string                `json:"bitcoinBlockHeaders"`
	BlockContentMetapackage BlockContentMetapackage `json:"blockContentMetapackage"`
	Size                    int                     `json:"size"`
	Version                 int                     `json:"version"`
	MerkleRoot              string                  `json:"merkleRoot"`
}

// RegularTxIDs returns the ids of all regular transactions in the block.
// Unsigned entries carry their id on the transaction itself.
func (b *Block) RegularTxIDs() []string {
	ids := make([]string, 0, len(b.RegularTransactions))
	for _, tx := range b.RegularTransactions {
		if t := tx.Inner(); t != nil && t.TxID != "" {
			ids = append(ids, t.TxID)
		}
	}
	return ids
}
