package entity

import (
	"encoding/json"
	"testing"
)

func TestToAtomic(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{0.1, 10_000_000},
		{1, 100_000_000},
		{10, 1_000_000_000},
		{0.00000001, 1},
	}
	for _, tt := range tests {
		if got := ToAtomic(tt.in); got != tt.want {
			t.Errorf("ToAtomic(%v): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestFromAtomic(t *testing.T) {
	if got := FromAtomic(150_000_000); got != 1.5 {
		t.Errorf("expected 1.5, got %v", got)
	}
}

func TestGetBlocksReply_Unmarshal(t *testing.T) {
	raw := `{"success":true,"results":[],"blocks":[{"number":7,"hash":"aa","regularTransactions":[{"signed":{"transaction":{"txId":"t1"}}}]}]}`

	var reply GetBlocksReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reply.Success {
		t.Error("expected success")
	}
	if len(reply.Blocks) != 1 || reply.Blocks[0].Number != 7 {
		t.Fatalf("unexpected blocks: %+v", reply.Blocks)
	}
	ids := reply.Blocks[0].RegularTxIDs()
	if len(ids) != 1 || ids[0] != "t1" {
		t.Errorf("expected [t1], got %v", ids)
	}
}
