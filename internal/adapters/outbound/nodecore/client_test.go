package nodecore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/archon-research/vbk-watch/internal/domain/entity"
	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

const (
	genesisHash   = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	genesisHeader = "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c"
)

// rpcServer returns a test server that decodes each request and answers with
// the response built by respond. Every decoded request is appended to *seen.
func rpcServer(t *testing.T, seen *[]jsonRPCRequest, respond func(req jsonRPCRequest) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type=application/json, got %s", r.Header.Get("Content-Type"))
		}

		var req jsonRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if seen != nil {
			*seen = append(*seen, req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(req)))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		URL:            url,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func result(id int64, body string) string {
	return `{"id":` + jsonInt(id) + `,"result":` + body + `}`
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// --- Test: NewClient ---

func TestNewClient_AppliesDefaults(t *testing.T) {
	client, err := NewClient(ClientConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.config.URL != DefaultURL {
		t.Errorf("expected URL=%s, got %s", DefaultURL, client.config.URL)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("expected timeout=30s, got %v", client.httpClient.Timeout)
	}
	if client.config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", client.config.MaxRetries)
	}
}

func TestNewClient_NegativeRetriesDisablesRetry(t *testing.T) {
	client, err := NewClient(ClientConfig{MaxRetries: -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.config.MaxRetries != 0 {
		t.Errorf("expected MaxRetries=0, got %d", client.config.MaxRetries)
	}
}

// --- Test: envelope ---

func TestCall_EnvelopeAndIncrementingIDs(t *testing.T) {
	var seen []jsonRPCRequest
	server := rpcServer(t, &seen, func(req jsonRPCRequest) string {
		return result(req.ID, `{"lastBlock":{"hash":"AA","number":7}}`)
	})
	client := newTestClient(t, server.URL)

	for i := 0; i < 2; i++ {
		if _, err := client.GetInfo(context.Background()); err != nil {
			t.Fatalf("GetInfo failed: %v", err)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(seen))
	}
	if seen[0].JSONRPC != "1.0" {
		t.Errorf("expected jsonrpc=1.0, got %q", seen[0].JSONRPC)
	}
	if seen[0].Method != "getinfo" {
		t.Errorf("expected method=getinfo, got %s", seen[0].Method)
	}
	if seen[0].ID != 1 || seen[1].ID != 2 {
		t.Errorf("expected ids 1,2, got %d,%d", seen[0].ID, seen[1].ID)
	}
	params, ok := seen[0].Params.(map[string]any)
	if !ok || len(params) != 0 {
		t.Errorf("expected empty params object, got %#v", seen[0].Params)
	}
}

func TestCall_BasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"result":{"lastBlock":{"hash":"AA","number":1}}}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{URL: server.URL, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.GetInfo(context.Background()); err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
}

func TestCall_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetInfo(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("expected HTTP 401 in error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req jsonRPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(result(req.ID, `{"lastBlock":{"hash":"AA","number":9}}`)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	info, err := client.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.LastBlock.Number != 9 {
		t.Errorf("expected number=9, got %d", info.LastBlock.Number)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestCall_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.GetInfo(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d calls", calls.Load())
	}
}

// --- Test: reply handling ---

func TestCall_ReplyHandling(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantRPC   bool
		wantEmpty bool
		wantHash  string
	}{
		{
			name:     "result decoded",
			body:     `{"id":1,"result":{"hash":"` + genesisHash + `","height":0,"header":"` + genesisHeader + `"}}`,
			wantHash: genesisHash,
		},
		{
			name:     "result wins over error",
			body:     `{"id":1,"result":{"hash":"ab","height":1,"header":""},"error":{"code":-1,"message":"ignored"}}`,
			wantHash: "ab",
		},
		{
			name:    "rpc error",
			body:    `{"id":1,"result":null,"error":{"code":-32602,"message":"block not found"}}`,
			wantErr: true,
			wantRPC: true,
		},
		{
			name:      "neither result nor error",
			body:      `{"id":1}`,
			wantErr:   true,
			wantEmpty: true,
		},
		{
			name:      "null result",
			body:      `{"id":1,"result":null}`,
			wantErr:   true,
			wantEmpty: true,
		},
		{
			name:    "malformed result",
			body:    `{"id":1,"result":"not an object"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := rpcServer(t, nil, func(jsonRPCRequest) string { return tt.body })
			client := newTestClient(t, server.URL)

			btc, err := client.GetLastBitcoinBlockAtVeriBlockBlock(context.Background(), "AABB")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if IsRPCError(err) != tt.wantRPC {
					t.Errorf("IsRPCError=%v, want %v (err=%v)", IsRPCError(err), tt.wantRPC, err)
				}
				if errors.Is(err, ErrEmptyResponse) != tt.wantEmpty {
					t.Errorf("errors.Is(ErrEmptyResponse)=%v, want %v", errors.Is(err, ErrEmptyResponse), tt.wantEmpty)
				}
				if errors.Is(err, outbound.ErrNoResult) != tt.wantEmpty {
					t.Errorf("errors.Is(outbound.ErrNoResult)=%v, want %v", errors.Is(err, outbound.ErrNoResult), tt.wantEmpty)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if btc.Hash != tt.wantHash {
				t.Errorf("expected hash=%s, got %s", tt.wantHash, btc.Hash)
			}
		})
	}
}

func TestCall_RPCErrorFields(t *testing.T) {
	server := rpcServer(t, nil, func(req jsonRPCRequest) string {
		return `{"id":` + jsonInt(req.ID) + `,"error":{"code":-32000,"message":"wallet locked"}}`
	})
	client := newTestClient(t, server.URL)

	_, err := client.GetNewAddress(context.Background(), 1)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32000 || rpcErr.Message != "wallet locked" {
		t.Errorf("unexpected RPC error: %+v", rpcErr)
	}
}

func TestCall_RPCErrorWithServerStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"id":1,"error":{"code":-1,"message":"unknown hash"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetLastBitcoinBlockAtVeriBlockBlock(context.Background(), "FF")
	if !IsRPCError(err) {
		t.Fatalf("expected RPC error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestCall_IDMismatch(t *testing.T) {
	server := rpcServer(t, nil, func(req jsonRPCRequest) string {
		return result(req.ID+100, `{"lastBlock":{"hash":"AA","number":1}}`)
	})
	client := newTestClient(t, server.URL)

	_, err := client.GetInfo(context.Background())
	if err == nil || !strings.Contains(err.Error(), "id mismatch") {
		t.Fatalf("expected id mismatch error, got %v", err)
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetInfo(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

// --- Test: methods and params ---

func TestMethods_Params(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantParams string
		reply      string
	}{
		{
			name:       "getstateinfo",
			call:       func(c *Client) error { _, err := c.GetStateInfo(context.Background()); return err },
			wantMethod: "getstateinfo",
			wantParams: `{}`,
			reply:      `{"networkHeight":10,"localBlockchainHeight":4}`,
		},
		{
			name:       "getlastblock",
			call:       func(c *Client) error { _, err := c.GetLastBlock(context.Background()); return err },
			wantMethod: "getlastblock",
			wantParams: `{}`,
			reply:      `{"header":{"hash":"AA","header":"00"}}`,
		},
		{
			name: "getlastbitcoinblockatveriblockblock",
			call: func(c *Client) error {
				_, err := c.GetLastBitcoinBlockAtVeriBlockBlock(context.Background(), "00AB")
				return err
			},
			wantMethod: "getlastbitcoinblockatveriblockblock",
			wantParams: `{"vbkBlockHash":"00AB"}`,
			reply:      `{"hash":"ff","height":1,"header":""}`,
		},
		{
			name:       "getnewaddress",
			call:       func(c *Client) error { _, err := c.GetNewAddress(context.Background(), 1); return err },
			wantMethod: "getnewaddress",
			wantParams: `{"count":1}`,
			reply:      `{"success":true,"address":"V1"}`,
		},
		{
			name: "getblocks by height",
			call: func(c *Client) error {
				_, err := c.GetBlocksByHeight(context.Background(), 1, []int{100, 101})
				return err
			},
			wantMethod: "getblocks",
			wantParams: `{"searchLength":1,"filters":[{"index":100},{"index":101}]}`,
			reply:      `{"success":true,"blocks":[]}`,
		},
		{
			name: "getblocks by hash",
			call: func(c *Client) error {
				_, err := c.GetBlocksByHash(context.Background(), 2000, []string{"AA"})
				return err
			},
			wantMethod: "getblocks",
			wantParams: `{"searchLength":2000,"filters":[{"hash":"AA"}]}`,
			reply:      `{"success":true,"blocks":[]}`,
		},
		{
			name:       "gettransactions",
			call:       func(c *Client) error { _, err := c.GetTransaction(context.Background(), "tx1"); return err },
			wantMethod: "gettransactions",
			wantParams: `{"searchLength":0,"ids":["tx1"]}`,
			reply:      `{"success":true,"transactions":[]}`,
		},
		{
			name: "sendcoins",
			call: func(c *Client) error {
				_, err := c.SendCoins(context.Background(), "V1", []entity.Output{{Address: "V2", Amount: 10000000}})
				return err
			},
			wantMethod: "sendcoins",
			wantParams: `{"sourceAddress":"V1","amounts":[{"address":"V2","amount":10000000}]}`,
			reply:      `{"success":true,"txIds":["t1"]}`,
		},
		{
			name:       "getpendingtransactions",
			call:       func(c *Client) error { _, err := c.GetPendingTransactions(context.Background()); return err },
			wantMethod: "getpendingtransactions",
			wantParams: `{}`,
			reply:      `{"success":true,"transactions":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []jsonRPCRequest
			server := rpcServer(t, &seen, func(req jsonRPCRequest) string {
				return result(req.ID, tt.reply)
			})
			client := newTestClient(t, server.URL)

			if err := tt.call(client); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(seen) != 1 {
				t.Fatalf("expected 1 request, got %d", len(seen))
			}
			if seen[0].Method != tt.wantMethod {
				t.Errorf("expected method=%s, got %s", tt.wantMethod, seen[0].Method)
			}
			gotParams, _ := json.Marshal(seen[0].Params)
			if !jsonEqual(t, string(gotParams), tt.wantParams) {
				t.Errorf("expected params %s, got %s", tt.wantParams, gotParams)
			}
		})
	}
}

func TestGetStateInfo_Decodes(t *testing.T) {
	server := rpcServer(t, nil, func(req jsonRPCRequest) string {
		return result(req.ID, `{"blockchainState":{"state":"LOADED"},"networkHeight":120,"localBlockchainHeight":100,"walletState":"LOCKED"}`)
	})
	client := newTestClient(t, server.URL)

	state, err := client.GetStateInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.BlockchainState.State != entity.BlockchainStateLoaded {
		t.Errorf("expected LOADED, got %s", state.BlockchainState.State)
	}
	if state.BlocksBehind() != 20 {
		t.Errorf("expected 20 blocks behind, got %d", state.BlocksBehind())
	}
	if state.WalletState != entity.WalletStateLocked {
		t.Errorf("expected LOCKED wallet, got %s", state.WalletState)
	}
}

// --- Test: telemetry ---

func TestCall_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	telemetry, err := NewTelemetryWithProviders(tp, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewTelemetryWithProviders failed: %v", err)
	}

	server := rpcServer(t, nil, func(req jsonRPCRequest) string {
		return `{"id":` + jsonInt(req.ID) + `,"error":{"code":1,"message":"boom"}}`
	})
	client, err := NewClient(ClientConfig{URL: server.URL, Telemetry: telemetry})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, _ = client.GetLastBlock(context.Background())

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "nodecore.getlastblock" {
		t.Errorf("expected span name nodecore.getlastblock, got %s", spans[0].Name())
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the RPC error to be recorded on the span")
	}
}

func jsonEqual(t *testing.T, a, b string) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal([]byte(a), &va); err != nil {
		t.Fatalf("invalid json %s: %v", a, err)
	}
	if err := json.Unmarshal([]byte(b), &vb); err != nil {
		t.Fatalf("invalid json %s: %v", b, err)
	}
	ja, _ := json.Marshal(va)
	jb, _ := json.Marshal(vb)
	return string(ja) == string(jb)
}
