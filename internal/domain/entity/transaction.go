package entity

import "math"

// atomicUnitsPerCoin is the number of atomic units in one VBK.
const atomicUnitsPerCoin = 100_000_000

// ToAtomic converts a VBK amount to atomic units, rounding to the nearest unit.
func ToAtomic(amount float64) int64 {
	return int64(math.Round(amount * atomicUnitsPerCoin))
}

// FromAtomic converts atomic units to a VBK amount.
func FromAtomic(amount int64) float64 {
	return float64(amount) / atomicUnitsPerCoin
}

// TransactionType is the NodeCore transaction kind.
type TransactionType string

const (
	TransactionTypeZeroUnused   TransactionType = "ZEROUNUSED"
	TransactionTypeStandard     TransactionType = "STANDARD"
	TransactionTypeProofOfProof TransactionType = "PROOFOFPROOF"
	TransactionTypeMultisig     TransactionType = "MULTISIG"
)

// Output is a destination address and atomic amount.
type Output struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Transaction is a VeriBlock transaction body.
type Transaction struct {
	Type                      TransactionType      `json:"type"`
	SourceAddress             string               `json:"sourceAddress"`
	SourceAmount              int64                `json:"sourceAmount"`
	Outputs                   []Output             `json:"outputs"`
	TransactionFee            int64                `json:"transactionFee"`
	Data                      string               `json:"data"`
	BitcoinTransaction        string               `json:"bitcoinTransaction"`
	EndorsedBlockHeader       string               `json:"endorsedBlockHeader"`
	BitcoinBlockHeaderOfProof BitcoinBlockHeader   `json:"bitcoinBlockHeaderOfProof"`
	MerklePath                string               `json:"merklePath"`
	ContextBitcoinHeaders     []BitcoinBlockHeader `json:"contextBitcoinBlockHeaders"`
	Timestamp                 int                  `json:"timestamp"`
	Size                      int                  `json:"size"`
	TxID                      string               `json:"txId"`
}

type SignedTransaction struct {
	Signature      string      `json:"signature"`
	PublicKey      string      `json:"publicKey"`
	SignatureIndex int64       `json:"signatureIndex"`
	Transaction    Transaction `json:"transaction"`
}

type MultisigSlot struct {
	Populated    bool   `json:"populated"`
	Signature    string `json:"signature"`
	PublicKey    string `json:"publicKey"`
	OwnerAddress string `json:"ownerAddress"`
}

type MultisigBundle struct {
	Slots []MultisigSlot `json:"slots"`
}

type SignedMultisigTransaction struct {
	SignatureBundle MultisigBundle `json:"signatureBundle"`
	Transaction     Transaction    `json:"transaction"`
	SignatureIndex  int64          `json:"signatureIndex"`
}

// TransactionUnion holds exactly one of the three transaction encodings.
type TransactionUnion struct {
	Unsigned       *Transaction               `json:"unsigned,omitempty"`
	Signed         *SignedTransaction         `json:"signed,omitempty"`
	SignedMultisig *SignedMultisigTransaction `json:"signedMultisig,omitempty"`
}

// Inner returns the transaction body regardless of which variant is set.
func (u TransactionUnion) Inner() *Transaction {
	switch {
	case u.Signed != nil:
		return &u.Signed.Transaction
	case u.SignedMultisig != nil:
		return &u.SignedMultisig.Transaction
	default:
		return u.Unsigned
	}
}

// TransactionInfo is a transaction with its confirmation context.
type TransactionInfo struct {
	Confirmations        int         `json:"confirmations"`
	Transaction          Transaction `json:"transaction"`
	BlockNumber          int         `json:"blockNumber"`
	Timestamp            int         `json:"timestamp"`
	EndorsedBlockHash    string      `json:"endorsedBlockHash"`
	BitcoinBlockHash     string      `json:"bitcoinBlockHash"`
	BitcoinTxID          string      `json:"bitcoinTxId"`
	BitcoinConfirmations int         `json:"bitcoinConfirmations"`
}

type GetNewAddressReply struct {
	ProtocolReply
	Address             string   `json:"address"`
	AdditionalAddresses []string `json:"additionalAddresses"`
}

type GetBlocksReply struct {
	ProtocolReply
	Blocks []Block `json:"blocks"`
}

type GetTransactionsReply struct {
	ProtocolReply
	Transactions []TransactionInfo `json:"transactions"`
}

type SendCoinsReply struct {
	ProtocolReply
	TxIDs []string `json:"txIds"`
}

type GetPendingTransactionsReply struct {
	ProtocolReply
	Transactions []Transaction `json:"transactions"`
}

// FaucetResponse is the faucet service reply.
type FaucetResponse struct {
	Success bool     `json:"success"`
	TxIDs   []string `json:"txIds"`
}
