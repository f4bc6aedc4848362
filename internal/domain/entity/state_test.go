package entity

import (
	"encoding/json"
	"testing"
)

func TestResult_String(t *testing.T) {
	r := Result{Code: "V008", Message: "Block not found", Details: "unknown hash"}
	if got := r.String(); got != "[V008] Block not found: unknown hash" {
		t.Errorf("unexpected string: %s", got)
	}
}

func TestProtocolReply_FirstError(t *testing.T) {
	reply := ProtocolReply{Results: []Result{{Code: "ok"}, {Error: true, Code: "V001"}}}
	first := reply.FirstError()
	if first == nil || first.Code != "V001" {
		t.Fatalf("expected V001, got %+v", first)
	}
	if (ProtocolReply{}).FirstError() != nil {
		t.Error("expected nil for empty results")
	}
}

func TestStateInfo_Unmarshal(t *testing.T) {
	raw := `{
		"blockchainState": {"state": "LOADED"},
		"operatingState": {"state": "RUNNING"},
		"networkState": {"state": "CONNECTED"},
		"connectedPeerCount": 8,
		"networkHeight": 1500,
		"localBlockchainHeight": 1490,
		"walletState": "UNLOCKED"
	}`

	var s StateInfo
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.BlockchainState.State != BlockchainStateLoaded {
		t.Errorf("expected LOADED, got %s", s.BlockchainState.State)
	}
	if s.OperatingState.State != OperatingStateRunning {
		t.Errorf("expected RUNNING, got %s", s.OperatingState.State)
	}
	if s.NetworkState.State != NetworkStateConnected {
		t.Errorf("expected CONNECTED, got %s", s.NetworkState.State)
	}
	if s.WalletState != WalletStateUnlocked {
		t.Errorf("expected UNLOCKED, got %s", s.WalletState)
	}
	if s.BlocksBehind() != 10 {
		t.Errorf("expected 10 blocks behind, got %d", s.BlocksBehind())
	}
}
