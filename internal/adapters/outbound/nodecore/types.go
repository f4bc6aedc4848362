// types.go defines the JSON-RPC 1.0 envelope spoken by the NodeCore HTTP API.
package nodecore

import (
	"encoding/json"
	"fmt"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

// jsonRPCVersion is sent in every request envelope.
const jsonRPCVersion = "1.0"

// ErrEmptyResponse is returned when a reply carries neither a result nor an error.
// It matches outbound.ErrNoResult.
var ErrEmptyResponse = fmt.Errorf("%w: response has neither result nor error", outbound.ErrNoResult)

// jsonRPCRequest represents a NodeCore JSON-RPC request.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// jsonRPCResponse represents a NodeCore JSON-RPC response.
type jsonRPCResponse struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error reported by NodeCore inside a JSON-RPC reply.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// hasResult reports whether the reply carries a non-null result.
func (r *jsonRPCResponse) hasResult() bool {
	return len(r.Result) > 0 && string(r.Result) != "null"
}

// decode applies the reply rules: a result wins over an error, and a reply with
// neither is an error of its own.
func (r *jsonRPCResponse) decode(target any) error {
	switch {
	case r.hasResult():
		if target == nil {
			return nil
		}
		if err := json.Unmarshal(r.Result, target); err != nil {
			return fmt.Errorf("failed to perform request to the API: %w", err)
		}
		return nil
	case r.Error != nil:
		return r.Error
	default:
		return ErrEmptyResponse
	}
}

// emptyParams is sent when a method takes no parameters.
var emptyParams = map[string]any{}

type heightFilter struct {
	Index int `json:"index"`
}

type hashFilter struct {
	Hash string `json:"hash"`
}

type getBlocksParams struct {
	SearchLength int   `json:"searchLength"`
	Filters      []any `json:"filters"`
}

type getTransactionsParams struct {
	SearchLength int      `json:"searchLength"`
	IDs          []string `json:"ids"`
}

type sendCoinsParams struct {
	SourceAddress string          `json:"sourceAddress"`
	Amounts       []entity.Output `json:"amounts"`
}
