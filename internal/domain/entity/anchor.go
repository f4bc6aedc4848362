package entity

import (
	"errors"
	"time"
)

// Anchor records the last Bitcoin block NodeCore knew about at a VeriBlock block.
type Anchor struct {
	VbkHash    string    `json:"vbkHash"`
	BtcHash    string    `json:"btcHash"`
	BtcHeight  int       `json:"btcHeight"`
	BtcHeader  string    `json:"btcHeader"`
	ObservedAt time.Time `json:"observedAt"`
}

// NewAnchor builds an Anchor from a lookup result.
func NewAnchor(vbkHash string, btc *BtcBlockData, observedAt time.Time) (*Anchor, error) {
	if vbkHash == "" {
		return nil, errors.New("vbk hash is required")
	}
	if btc == nil {
		return nil, errors.New("bitcoin block data is required")
	}
	return &Anchor{
		VbkHash:    vbkHash,
		BtcHash:    btc.Hash,
		BtcHeight:  btc.Height,
		BtcHeader:  btc.Header,
		ObservedAt: observedAt.UTC(),
	}, nil
}

// BtcBlock returns the Bitcoin side of the anchor.
func (a *Anchor) BtcBlock() *BtcBlockData {
	return &BtcBlockData{Hash: a.BtcHash, Height: a.BtcHeight, Header: a.BtcHeader}
}
