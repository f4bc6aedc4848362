package entity

import "fmt"

// Result is a single status entry in a NodeCore protocol reply.
type Result struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (r Result) String() string {
	return fmt.Sprintf("[%s] %s: %s", r.Code, r.Message, r.Details)
}

// ProtocolReply is the common success/results pair carried by most replies.
type ProtocolReply struct {
	Success bool     `json:"success"`
	Results []Result `json:"results"`
}

// FirstError returns the first result flagged as an error, if any.
func (p ProtocolReply) FirstError() *Result {
	for i := range p.Results {
		if p.Results[i].Error {
			return &p.Results[i]
		}
	}
	return nil
}

// BlockchainState is the NodeCore blockchain loading state.
type BlockchainState string

const (
	BlockchainStateLoading BlockchainState = "LOADING"
	BlockchainStateNormal  BlockchainState = "NORMAL"
	BlockchainStatePaused  BlockchainState = "PAUSED"
	BlockchainStateStale   BlockchainState = "STALE"
	BlockchainStateLoaded  BlockchainState = "LOADED"
)

// OperatingState is the NodeCore process lifecycle state.
type OperatingState string

const (
	OperatingStateStarted      OperatingState = "STARTED"
	OperatingStateInitializing OperatingState = "INITIALIZING"
	OperatingStateRunning      OperatingState = "RUNNING"
	OperatingStateTerminating  OperatingState = "TERMINATING"
)

// NetworkState is the NodeCore peer connectivity state.
type NetworkState string

const (
	NetworkStateDisconnected NetworkState = "DISCONNECTED"
	NetworkStateConnected    NetworkState = "CONNECTED"
)

// WalletState is the lock state of the NodeCore wallet.
type WalletState string

const (
	WalletStateDefault  WalletState = "DEFAULT"
	WalletStateLocked   WalletState = "LOCKED"
	WalletStateUnlocked WalletState = "UNLOCKED"
)

type BlockchainStateInfo struct {
	State BlockchainState `json:"state"`
}

type OperatingStateInfo struct {
	State OperatingState `json:"state"`
}

type NetworkStateInfo struct {
	State NetworkState `json:"state"`
}

// StateInfo is the getstateinfo reply.
type StateInfo struct {
	BlockchainState       BlockchainStateInfo `json:"blockchainState"`
	OperatingState        OperatingStateInfo  `json:"operatingState"`
	NetworkState          NetworkStateInfo    `json:"networkState"`
	ConnectedPeerCount    int                 `json:"connectedPeerCount"`
	CurrentSyncPeer       string              `json:"currentSyncPeer"`
	NetworkHeight         int                 `json:"networkHeight"`
	LocalBlockchainHeight int                 `json:"localBlockchainHeight"`
	Success               bool                `json:"success"`
	Results               []Result            `json:"results"`
	NetworkVersion        string              `json:"networkVersion"`
	DataDirectory         string              `json:"dataDirectory"`
	ProgramVersion        string              `json:"programVersion"`
	NodecoreStartTime     int64               `json:"nodecoreStarttime"`
	WalletCacheSyncHeight int                 `json:"walletCacheSyncHeight"`
	WalletState           WalletState         `json:"walletState"`
}

// BlocksBehind is how far the local chain trails the network. It is negative when
// the node is ahead of its peers.
func (s *StateInfo) BlocksBehind() int {
	return s.NetworkHeight - s.LocalBlockchainHeight
}
