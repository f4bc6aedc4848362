package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

var _ outbound.NodeCoreClient = (*MockNodeCoreClient)(nil)

// MockNodeCoreClient implements outbound.NodeCoreClient over an in-memory chain.
// Behavior can be overridden per method through the exported *Func fields and
// *Err fields; calls are counted per RPC method name.
type MockNodeCoreClient struct {
	mu sync.Mutex

	blocks  map[int]entity.Block
	tip     int
	anchors map[string]*entity.BtcBlockData
	pending []entity.Transaction

	// Confirmations maps a transaction id to its confirmation count.
	Confirmations map[string]int

	// States are returned by GetStateInfo in order; the last one repeats.
	States []entity.StateInfo

	// MineOnSend includes every sent transaction in the next mined block
	// instead of leaving it pending.
	MineOnSend bool

	// InfoErr, LookupErr and BlocksErr force errors from the matching methods.
	InfoErr   error
	LookupErr error
	BlocksErr error

	GetInfoFunc    func(ctx context.Context) (*entity.VbkInfo, error)
	GetLastBlockFn func(ctx context.Context) (*entity.BlockHeaderContainer, error)

	calls        map[string]int
	lookups      []string
	addressCount int
	txCount      int
	sent         []entity.Transaction
}

// NewMockNodeCoreClient returns a mock with an empty chain at height 0.
func NewMockNodeCoreClient() *MockNodeCoreClient {
	m := &MockNodeCoreClient{
		blocks:        make(map[int]entity.Block),
		anchors:       make(map[string]*entity.BtcBlockData),
		Confirmations: make(map[string]int),
		calls:         make(map[string]int),
	}
	m.blocks[0] = entity.Block{Number: 0, Hash: VbkHash(0)}
	return m
}

// VbkHash returns a deterministic 24-byte VeriBlock hash for a height.
func VbkHash(height int) string {
	return fmt.Sprintf("%048X", height+1)
}

// BtcHash returns a deterministic 32-byte Bitcoin hash for a height.
func BtcHash(height int) string {
	return fmt.Sprintf("%064x", height+1)
}

// AddBlock appends a block at height containing the given regular transactions
// and advances the tip if needed. The block's Bitcoin anchor is set to height+500000.
func (m *MockNodeCoreClient) AddBlock(height int, txIDs ...string) entity.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addBlockLocked(height, txIDs)
}

func (m *MockNodeCoreClient) addBlockLocked(height int, txIDs []string) entity.Block {
	block := entity.Block{
		Number:       height,
		Hash:         VbkHash(height),
		PreviousHash: VbkHash(height - 1),
	}
	for _, id := range txIDs {
		block.RegularTransactions = append(block.RegularTransactions, entity.TransactionUnion{
			Signed: &entity.SignedTransaction{
				Transaction: entity.Transaction{Type: entity.TransactionTypeStandard, TxID: id},
			},
		})
	}
	m.blocks[height] = block
	if height > m.tip {
		m.tip = height
	}
	if _, ok := m.anchors[block.Hash]; !ok {
		m.anchors[block.Hash] = &entity.BtcBlockData{Hash: BtcHash(height), Height: 500000 + height}
	}
	return block
}

// Mine adds n empty blocks on top of the current tip. With MineOnSend, pending
// transactions go into the first one.
func (m *MockNodeCoreClient) Mine(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		var ids []string
		if i == 0 && m.MineOnSend {
			for _, tx := range m.pending {
				ids = append(ids, tx.TxID)
				m.Confirmations[tx.TxID]++
			}
			m.pending = nil
		}
		m.addBlockLocked(m.tip+1, ids)
	}
}

// SetAnchor sets the Bitcoin block reported for a VeriBlock hash. A nil btc makes
// the lookup return an absent result.
func (m *MockNodeCoreClient) SetAnchor(vbkHash string, btc *entity.BtcBlockData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchors[vbkHash] = btc
}

// Tip returns the current tip height.
func (m *MockNodeCoreClient) Tip() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip
}

// Calls returns how many times an RPC method was invoked.
func (m *MockNodeCoreClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Lookups returns the hashes passed to GetLastBitcoinBlockAtVeriBlockBlock.
func (m *MockNodeCoreClient) Lookups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lookups...)
}

// Sent returns every transaction created through SendCoins.
func (m *MockNodeCoreClient) Sent() []entity.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Transaction(nil), m.sent...)
}

func (m *MockNodeCoreClient) record(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

func (m *MockNodeCoreClient) GetInfo(ctx context.Context) (*entity.VbkInfo, error) {
	m.record("getinfo")
	if m.GetInfoFunc != nil {
		return m.GetInfoFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InfoErr != nil {
		return nil, m.InfoErr
	}
	return &entity.VbkInfo{LastBlock: entity.VbkBlockData{Hash: m.blocks[m.tip].Hash, Number: m.tip}}, nil
}

func (m *MockNodeCoreClient) GetStateInfo(ctx context.Context) (*entity.StateInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["getstateinfo"]++
	if m.InfoErr != nil {
		return nil, m.InfoErr
	}
	if len(m.States) == 0 {
		return &entity.StateInfo{NetworkHeight: m.tip, LocalBlockchainHeight: m.tip}, nil
	}
	state := m.States[0]
	if len(m.States) > 1 {
		m.States = m.States[1:]
	}
	return &state, nil
}

func (m *MockNodeCoreClient) GetLastBlock(ctx context.Context) (*entity.BlockHeaderContainer, error) {
	m.record("getlastblock")
	if m.GetLastBlockFn != nil {
		return m.GetLastBlockFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InfoErr != nil {
		return nil, m.InfoErr
	}
	block := m.blocks[m.tip]
	return &entity.BlockHeaderContainer{Header: &entity.BlockHeader{Hash: block.Hash}}, nil
}

func (m *MockNodeCoreClient) GetLastBitcoinBlockAtVeriBlockBlock(ctx context.Context, vbkHash string) (*entity.BtcBlockData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["getlastbitcoinblockatveriblockblock"]++
	m.lookups = append(m.lookups, vbkHash)
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	btc, ok := m.anchors[vbkHash]
	if !ok {
		return nil, fmt.Errorf("unknown block %s", vbkHash)
	}
	if btc == nil {
		return nil, nil
	}
	copied := *btc
	return &copied, nil
}

func (m *MockNodeCoreClient) GetNewAddress(ctx context.Context, count int) (*entity.GetNewAddressReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["getnewaddress"]++
	m.addressCount++
	reply := &entity.GetNewAddressReply{
		ProtocolReply: entity.ProtocolReply{Success: true},
		Address:       fmt.Sprintf("V%029d", m.addressCount),
	}
	for i := 1; i < count; i++ {
		m.addressCount++
		reply.AdditionalAddresses = append(reply.AdditionalAddresses, fmt.Sprintf("V%029d", m.addressCount))
	}
	return reply, nil
}

func (m *MockNodeCoreClient) GetBlocksByHeight(ctx context.Context, searchLength int, heights []int) (*entity.GetBlocksReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["getblocks"]++
	if m.BlocksErr != nil {
		return nil, m.BlocksErr
	}
	reply := &entity.GetBlocksReply{ProtocolReply: entity.ProtocolReply{Success: true}}
	for _, h := range heights {
		if block, ok := m.blocks[h]; ok {
			reply.Blocks = append(reply.Blocks, block)
		}
	}
	return reply, nil
}

func (m *MockNodeCoreClient) GetBlocksByHash(ctx context.Context, searchLength int, hashes []string) (*entity.GetBlocksReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["getblocks"]++
	if m.BlocksErr != nil {
		return nil, m.BlocksErr
	}
	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	heights := make([]int, 0, len(m.blocks))
	for h := range m.blocks {
		heights = append(heights, h)
	}
	sort.Ints(heights)

	reply := &entity.GetBlocksReply{ProtocolReply: entity.ProtocolReply{Success: true}}
	for _, h := range heights {
		if want[m.blocks[h].Hash] {
			reply.Blocks = append(reply.Blocks, m.blocks[h])
		}
	}
	return reply, nil
}

func (m *MockNodeCoreClient) GetTransaction(ctx context.Context, txID string) (*entity.GetTransactionsReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["gettransactions"]++
	confirmations, ok := m.Confirmations[txID]
	if !ok {
		return &entity.GetTransactionsReply{ProtocolReply: entity.ProtocolReply{Success: true}}, nil
	}
	return &entity.GetTransactionsReply{
		ProtocolReply: entity.ProtocolReply{Success: true},
		Transactions: []entity.TransactionInfo{{
			Confirmations: confirmations,
			Transaction:   entity.Transaction{TxID: txID},
		}},
	}, nil
}

func (m *MockNodeCoreClient) SendCoins(ctx context.Context, sourceAddress string, amounts []entity.Output) (*entity.SendCoinsReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["sendcoins"]++
	m.txCount++

	var total int64
	for _, o := range amounts {
		total += o.Amount
	}
	tx := entity.Transaction{
		Type:          entity.TransactionTypeStandard,
		SourceAddress: sourceAddress,
		SourceAmount:  total,
		Outputs:       append([]entity.Output(nil), amounts...),
		TxID:          fmt.Sprintf("%064x", m.txCount),
	}
	m.sent = append(m.sent, tx)
	m.pending = append(m.pending, tx)
	return &entity.SendCoinsReply{
		ProtocolReply: entity.ProtocolReply{Success: true},
		TxIDs:         []string{tx.TxID},
	}, nil
}

func (m *MockNodeCoreClient) GetPendingTransactions(ctx context.Context) (*entity.GetPendingTransactionsReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["getpendingtransactions"]++
	return &entity.GetPendingTransactionsReply{
		ProtocolReply: entity.ProtocolReply{Success: true},
		Transactions:  append([]entity.Transaction(nil), m.pending...),
	}, nil
}

// MockFaucetClient implements outbound.FaucetClient by crediting the mock node.
type MockFaucetClient struct {
	Node *MockNodeCoreClient
	Err  error

	mu        sync.Mutex
	addresses []string
}

var _ outbound.FaucetClient = (*MockFaucetClient)(nil)

// GetCoins records the address and returns a funding transaction that is
// immediately confirmed on Node.
func (f *MockFaucetClient) GetCoins(ctx context.Context, address string) (*entity.FaucetResponse, error) {
	f.mu.Lock()
	f.addresses = append(f.addresses, address)
	n := len(f.addresses)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	txID := fmt.Sprintf("faucet-%d", n)
	if f.Node != nil {
		f.Node.mu.Lock()
		f.Node.Confirmations[txID] = 1
		f.Node.mu.Unlock()
	}
	return &entity.FaucetResponse{Success: true, TxIDs: []string{txID}}, nil
}

// Addresses returns the addresses that requested coins.
func (f *MockFaucetClient) Addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.addresses...)
}
