// Package partition builds object-store keys for archived VeriBlock blocks.
package partition

import "fmt"

// BlockRangeSize is the number of blocks per archive partition.
const BlockRangeSize = 1000

// GetPartition returns the partition string for a block height.
// Block 0-999 -> "0-999", block 1000-1999 -> "1000-1999", etc.
func GetPartition(blockNumber int64) string {
	partitionIndex := blockNumber / BlockRangeSize
	start := partitionIndex * BlockRangeSize
	end := start + BlockRangeSize - 1
	return fmt.Sprintf("%d-%d", start, end)
}

// BlockKey returns the archive key for a block: blocks/<partition>/<height>_<hash>.json
func BlockKey(blockNumber int64, hash string) string {
	return fmt.Sprintf("blocks/%s/%d_%s.json", GetPartition(blockNumber), blockNumber, hash)
}
