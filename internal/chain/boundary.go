package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/onchainos/steward/internal/agent/core"
)

// MockBoundary settles calls deterministically without touching a chain. It is
// the default execution backend when no RPC endpoint is configured, and the
// backend tests run against.
type MockBoundary struct {
	mu       sync.Mutex
	failures map[string]string // target address -> forced error message
}

func NewMockBoundary() *MockBoundary {
	return &MockBoundary{failures: make(map[string]string)}
}

// Mode identifies this backend as a mock so callers can flag its results.
func (b *MockBoundary) Mode() string { return "mock" }

// FailTarget forces every call against the given target to fail with message.
func (b *MockBoundary) FailTarget(target, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[strings.ToLower(strings.TrimSpace(target))] = message
}

// SubmitCalls reports a deterministic outcome per call. A failed required call
// skips everything after it, matching how an on-chain batch would revert.
func (b *MockBoundary) SubmitCalls(ctx context.Context, userAddress string, calls []core.CallData) ([]core.CallResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userAddress) == "" {
		return nil, errors.New("user address is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	results := make([]core.CallResult, 0, len(calls))
	skipRest := false
	for _, call := range calls {
		result := core.CallResult{Target: call.Target, Required: call.Required}
		switch {
		case skipRest:
			result.Error = "skipped: prior required call failed"
		default:
			if msg, forced := b.failures[strings.ToLower(strings.TrimSpace(call.Target))]; forced {
				result.Error = msg
				if call.Required {
					skipRest = true
				}
				break
			}
			result.Success = true
			result.GasUsed = mockGasFor(call)
		}
		results = append(results, result)
	}
	return results, nil
}

// mockGasFor charges a base transfer cost plus a flat per-byte calldata cost
// so larger payloads estimate higher, stably.
func mockGasFor(call core.CallData) uint64 {
	if call.GasLimit > 0 {
		return call.GasLimit
	}
	payload := strings.TrimPrefix(strings.TrimSpace(call.Data), "0x")
	return 21000 + uint64(len(payload)/2)*16
}

// RPCBoundary preflights each call against a live endpoint with eth_call and
// eth_estimateGas. It holds no signer, so nothing is ever broadcast; callers
// treat its results as degraded until a relayer sits behind it.
type RPCBoundary struct {
	client  *Client
	address string // on-chain proxy that will relay batches once a relayer exists
}

func NewRPCBoundary(client *Client, boundaryAddress string) *RPCBoundary {
	return &RPCBoundary{client: client, address: strings.TrimSpace(boundaryAddress)}
}

// Mode identifies this backend as preflight-only.
func (b *RPCBoundary) Mode() string { return "preflight" }

// Address returns the configured on-chain boundary contract, if any.
func (b *RPCBoundary) Address() string { return b.address }

// SubmitCalls preflights the calls in order. A failed required call skips the
// remainder, mirroring the mock backend's batch semantics.
func (b *RPCBoundary) SubmitCalls(ctx context.Context, userAddress string, calls []core.CallData) ([]core.CallResult, error) {
	if b.client == nil {
		return nil, errors.New("rpc boundary has no chain client")
	}
	if !common.IsHexAddress(userAddress) {
		return nil, fmt.Errorf("invalid user address %q", userAddress)
	}
	from := common.HexToAddress(userAddress)

	results := make([]core.CallResult, 0, len(calls))
	skipRest := false
	for _, call := range calls {
		result := core.CallResult{Target: call.Target, Required: call.Required}
		if skipRest {
			result.Error = "skipped: prior required call failed"
			results = append(results, result)
			continue
		}

		msg, err := buildCallMsg(from, call)
		if err == nil {
			var ret []byte
			ret, err = b.client.CallContract(ctx, msg)
			if err != nil {
				err = fmt.Errorf("preflight revert: %w", err)
			} else {
				var gas uint64
				gas, err = b.client.EstimateGas(ctx, msg)
				switch {
				case err != nil:
					err = fmt.Errorf("gas estimate: %w", err)
				case call.GasLimit > 0 && gas > call.GasLimit:
					err = fmt.Errorf("estimated gas %d exceeds limit %d", gas, call.GasLimit)
				default:
					result.Success = true
					result.GasUsed = gas
					if len(ret) > 0 {
						result.ReturnData = "0x" + hex.EncodeToString(ret)
					}
				}
			}
		}
		if err != nil {
			result.Error = err.Error()
			if call.Required {
				skipRest = true
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func buildCallMsg(from common.Address, call core.CallData) (geth.CallMsg, error) {
	if !common.IsHexAddress(call.Target) {
		return geth.CallMsg{}, fmt.Errorf("invalid call target %q", call.Target)
	}
	to := common.HexToAddress(call.Target)
	msg := geth.CallMsg{From: from, To: &to, Gas: call.GasLimit}

	if v := strings.TrimSpace(call.Value); v != "" && v != "0" {
		wei, ok := new(big.Int).SetString(v, 10)
		if !ok || wei.Sign() < 0 {
			return geth.CallMsg{}, fmt.Errorf("invalid call value %q", call.Value)
		}
		msg.Value = wei
	}
	if d := strings.TrimPrefix(strings.TrimSpace(call.Data), "0x"); d != "" {
		raw, err := hex.DecodeString(d)
		if err != nil {
			return geth.CallMsg{}, fmt.Errorf("invalid call data: %w", err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// SyntheticTxHash derives a stable pseudo transaction hash from its inputs.
// Mock and preflight backends have no broadcast hash to report, but consumers
// still key receipts and explorer links off one.
func SyntheticTxHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		io.WriteString(h, p)
		io.WriteString(h, "\x1f")
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// ExplorerTxURL joins an explorer base URL with a transaction hash.
func ExplorerTxURL(base, txHash string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || txHash == "" {
		return ""
	}
	return base + "/tx/" + txHash
}
