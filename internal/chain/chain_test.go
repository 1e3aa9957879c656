package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onchainos/steward/config"
	"github.com/onchainos/steward/internal/agent/core"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newRPCServer serves a minimal JSON-RPC endpoint backed by handle. Both
// single and batched requests are answered.
func newRPCServer(t *testing.T, handle func(method string, params []json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	respond := func(req rpcRequest) map[string]interface{} {
		out := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		result, rpcErr := handle(req.Method, req.Params)
		if rpcErr != nil {
			out["error"] = rpcErr
		} else {
			out["result"] = result
		}
		return out
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading rpc request: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var reqs []rpcRequest
			if err := json.Unmarshal(trimmed, &reqs); err != nil {
				t.Errorf("decoding rpc batch: %v", err)
				return
			}
			batch := make([]map[string]interface{}, 0, len(reqs))
			for _, req := range reqs {
				batch = append(batch, respond(req))
			}
			json.NewEncoder(w).Encode(batch)
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			t.Errorf("decoding rpc request: %v", err)
			return
		}
		json.NewEncoder(w).Encode(respond(req))
	}))
}

type callArg struct {
	To    string `json:"to"`
	Input string `json:"input"`
	Data  string `json:"data"`
}

func decodeCallArg(t *testing.T, params []json.RawMessage) callArg {
	t.Helper()
	if len(params) == 0 {
		t.Errorf("eth_call without params")
		return callArg{}
	}
	var arg callArg
	if err := json.Unmarshal(params[0], &arg); err != nil {
		t.Errorf("decoding call arg: %v", err)
	}
	if arg.Input == "" {
		arg.Input = arg.Data
	}
	return arg
}

func TestDialVerifiesChainID(t *testing.T) {
	srv := newRPCServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		if method == "eth_chainId" {
			return "0x5", nil
		}
		return nil, &rpcError{Code: -32601, Message: "unknown method " + method}
	})
	defer srv.Close()

	if _, err := Dial(context.Background(), config.ChainConfig{RPCURL: srv.URL, ChainID: 1}); err == nil {
		t.Fatal("expected chain id mismatch error")
	} else if !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}

	client, err := Dial(context.Background(), config.ChainConfig{RPCURL: srv.URL, ChainID: 5})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	if got := client.ChainID(); got.Int64() != 5 {
		t.Fatalf("ChainID = %v, want 5", got)
	}
}

func TestClientReads(t *testing.T) {
	oneEther := big.NewInt(1000000000000000000)
	tokenUnits := big.NewInt(2500000)

	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "eth_chainId":
			return "0x5", nil
		case "eth_blockNumber":
			return "0x10", nil
		case "eth_getBalance":
			return fmt.Sprintf("0x%x", oneEther), nil
		case "eth_call":
			arg := decodeCallArg(t, params)
			if !strings.HasPrefix(arg.Input, "0x70a08231") {
				t.Errorf("eth_call data %q is not a balanceOf call", arg.Input)
			}
			return fmt.Sprintf("0x%064x", tokenUnits), nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unknown method " + method}
		}
	})
	defer srv.Close()

	client, err := Dial(context.Background(), config.ChainConfig{RPCURL: srv.URL, ChainID: 5, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	height, err := client.BlockNumber(ctx)
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if height != 16 {
		t.Fatalf("BlockNumber = %d, want 16", height)
	}

	holder := "0x000000000000000000000000000000000000dEaD"
	balance, err := client.NativeBalance(ctx, holder)
	if err != nil {
		t.Fatalf("NativeBalance: %v", err)
	}
	if balance.Cmp(oneEther) != 0 {
		t.Fatalf("NativeBalance = %v, want %v", balance, oneEther)
	}
	if _, err := client.NativeBalance(ctx, "not-an-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}

	token := "0x00000000000000000000000000000000000000aa"
	units, err := client.TokenBalance(ctx, token, holder)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if units.Cmp(tokenUnits) != 0 {
		t.Fatalf("TokenBalance = %v, want %v", units, tokenUnits)
	}
}

func TestMockBoundarySubmitCalls(t *testing.T) {
	boundary := NewMockBoundary()
	boundary.FailTarget("0x00000000000000000000000000000000000000BB", "insufficient allowance")

	calls := []core.CallData{
		{Target: "0x00000000000000000000000000000000000000aa", Data: "0xdeadbeef", GasLimit: 80000, Required: true},
		{Target: "0x00000000000000000000000000000000000000bb", Required: true},
		{Target: "0x00000000000000000000000000000000000000cc", Required: false},
	}
	results, err := boundary.SubmitCalls(context.Background(), "0x000000000000000000000000000000000000dEaD", calls)
	if err != nil {
		t.Fatalf("SubmitCalls: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || results[0].GasUsed != 80000 {
		t.Fatalf("first call = %+v, want success with the declared gas limit", results[0])
	}
	if results[1].Success || results[1].Error != "insufficient allowance" {
		t.Fatalf("second call = %+v, want forced failure", results[1])
	}
	if results[2].Success || !strings.Contains(results[2].Error, "skipped") {
		t.Fatalf("third call = %+v, want skipped after required failure", results[2])
	}

	if _, err := boundary.SubmitCalls(context.Background(), "  ", calls); err == nil {
		t.Fatal("expected error for missing user address")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := boundary.SubmitCalls(cancelled, "0x000000000000000000000000000000000000dEaD", calls); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestMockBoundaryDerivesGasFromPayload(t *testing.T) {
	bare := mockGasFor(core.CallData{})
	if bare != 21000 {
		t.Fatalf("empty call gas = %d, want 21000", bare)
	}
	withData := mockGasFor(core.CallData{Data: "0xdeadbeef"})
	if withData != 21000+4*16 {
		t.Fatalf("4-byte call gas = %d, want %d", withData, 21000+4*16)
	}
}

func TestRPCBoundaryPreflight(t *testing.T) {
	goodTarget := "0x00000000000000000000000000000000000000aa"
	badTarget := "0x00000000000000000000000000000000000000bb"

	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "eth_chainId":
			return "0x5", nil
		case "eth_call":
			arg := decodeCallArg(t, params)
			if strings.EqualFold(arg.To, badTarget) {
				return nil, &rpcError{Code: 3, Message: "execution reverted"}
			}
			return "0x01", nil
		case "eth_estimateGas":
			return "0x5208", nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unknown method " + method}
		}
	})
	defer srv.Close()

	client, err := Dial(context.Background(), config.ChainConfig{RPCURL: srv.URL, ChainID: 5})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	boundary := NewRPCBoundary(client, "0x00000000000000000000000000000000000000ff")
	if boundary.Mode() != "preflight" {
		t.Fatalf("Mode = %q, want preflight", boundary.Mode())
	}

	calls := []core.CallData{
		{Target: goodTarget, Data: "0xdeadbeef", Value: "1000", Required: true},
		{Target: badTarget, Required: true},
		{Target: goodTarget, Required: false},
	}
	results, err := boundary.SubmitCalls(context.Background(), "0x000000000000000000000000000000000000dEaD", calls)
	if err != nil {
		t.Fatalf("SubmitCalls: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || results[0].GasUsed != 21000 || results[0].ReturnData != "0x01" {
		t.Fatalf("first call = %+v, want estimated success", results[0])
	}
	if results[1].Success || !strings.Contains(results[1].Error, "execution reverted") {
		t.Fatalf("second call = %+v, want preflight revert", results[1])
	}
	if results[2].Success || !strings.Contains(results[2].Error, "skipped") {
		t.Fatalf("third call = %+v, want skipped after required failure", results[2])
	}

	if _, err := boundary.SubmitCalls(context.Background(), "nobody", calls); err == nil {
		t.Fatal("expected error for malformed user address")
	}
}

func TestRPCBoundaryRejectsMalformedCall(t *testing.T) {
	srv := newRPCServer(t, func(method string, _ []json.RawMessage) (interface{}, *rpcError) {
		if method == "eth_chainId" {
			return "0x5", nil
		}
		t.Errorf("unexpected rpc call %s for a call that should fail locally", method)
		return nil, &rpcError{Code: -32601, Message: "unexpected"}
	})
	defer srv.Close()

	client, err := Dial(context.Background(), config.ChainConfig{RPCURL: srv.URL, ChainID: 5})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	boundary := NewRPCBoundary(client, "")
	calls := []core.CallData{
		{Target: "not-an-address", Required: true},
		{Target: "0x00000000000000000000000000000000000000aa", Required: true},
	}
	results, err := boundary.SubmitCalls(context.Background(), "0x000000000000000000000000000000000000dEaD", calls)
	if err != nil {
		t.Fatalf("SubmitCalls: %v", err)
	}
	if results[0].Success || !strings.Contains(results[0].Error, "invalid call target") {
		t.Fatalf("first call = %+v, want invalid target failure", results[0])
	}
	if results[1].Success || !strings.Contains(results[1].Error, "skipped") {
		t.Fatalf("second call = %+v, want skipped", results[1])
	}
}

func TestSyntheticTxHash(t *testing.T) {
	a := SyntheticTxHash("plan-1", "step-1")
	b := SyntheticTxHash("plan-1", "step-1")
	c := SyntheticTxHash("plan-1", "step-2")

	if a != b {
		t.Fatalf("hash is not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Fatal("different inputs produced the same hash")
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 66 {
		t.Fatalf("hash %q is not transaction-hash shaped", a)
	}
}

func TestExplorerTxURL(t *testing.T) {
	url := ExplorerTxURL("https://basescan.org/", "0xabc")
	if url != "https://basescan.org/tx/0xabc" {
		t.Fatalf("ExplorerTxURL = %q", url)
	}
	if ExplorerTxURL("", "0xabc") != "" {
		t.Fatal("expected empty URL without a base")
	}
	if ExplorerTxURL("https://basescan.org", "") != "" {
		t.Fatal("expected empty URL without a hash")
	}
}

func TestWeiToToken(t *testing.T) {
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := WeiToToken(oneEther, 18); got != 1 {
		t.Fatalf("WeiToToken(1e18, 18) = %v, want 1", got)
	}
	if got := WeiToToken(big.NewInt(2500000), 6); got != 2.5 {
		t.Fatalf("WeiToToken(2500000, 6) = %v, want 2.5", got)
	}
	if got := WeiToToken(nil, 18); got != 0 {
		t.Fatalf("WeiToToken(nil, 18) = %v, want 0", got)
	}
}
