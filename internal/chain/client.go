package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/onchainos/steward/config"
)

// erc20BalanceOfSelector is the 4-byte selector for balanceOf(address).
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client wraps a single EVM endpoint for the read paths agents rely on:
// balances, block metadata, gas prices and transaction lookups. It holds no
// keys and never signs or broadcasts anything.
type Client struct {
	cfg       config.ChainConfig
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	chainID   *big.Int
	mu        sync.Mutex
}

// TxInfo is the subset of transaction data the analytics paths decode.
type TxInfo struct {
	Hash     string   `json:"hash"`
	To       string   `json:"to,omitempty"`
	ValueWei *big.Int `json:"value_wei"`
	Input    string   `json:"input"`
	GasLimit uint64   `json:"gas_limit"`
	GasUsed  uint64   `json:"gas_used,omitempty"`
	Status   uint64   `json:"status,omitempty"`
	Pending  bool     `json:"pending"`
}

// Dial connects to the configured RPC endpoint and, when the config pins a
// chain ID, verifies the endpoint actually serves that chain.
func Dial(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("chain rpc_url is not configured")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain rpc: %w", err)
	}

	c := &Client{cfg: cfg, rpcClient: rpcClient, eth: ethclient.NewClient(rpcClient)}

	id, err := c.eth.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}
	if cfg.ChainID > 0 && id.Int64() != cfg.ChainID {
		c.Close()
		return nil, fmt.Errorf("chain id mismatch: endpoint reports %d, config expects %d", id.Int64(), cfg.ChainID)
	}
	c.chainID = id

	return c, nil
}

// Close releases the underlying connections. The client is unusable afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
}

func (c *Client) backend() *ethclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eth
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// ChainID returns the chain ID reported by the endpoint at dial time.
func (c *Client) ChainID() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID == nil {
		return nil
	}
	return new(big.Int).Set(c.chainID)
}

// Name returns the configured human-readable chain name.
func (c *Client) Name() string { return c.cfg.Name }

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	eth := c.backend()
	if eth == nil {
		return 0, errors.New("chain client is closed")
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching block number: %w", err)
	}
	return n, nil
}

// NativeBalance returns the native-token balance of an address in wei.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	eth := c.backend()
	if eth == nil {
		return nil, errors.New("chain client is closed")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	balance, err := eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching native balance: %w", err)
	}
	return balance, nil
}

// TokenBalance returns an ERC-20 balance via a balanceOf(address) call.
func (c *Client) TokenBalance(ctx context.Context, token, holder string) (*big.Int, error) {
	eth := c.backend()
	if eth == nil {
		return nil, errors.New("chain client is closed")
	}
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address %q", token)
	}
	if !common.IsHexAddress(holder) {
		return nil, fmt.Errorf("invalid holder address %q", holder)
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	to := common.HexToAddress(token)
	ret, err := eth.CallContract(ctx, geth.CallMsg{
		To:   &to,
		Data: erc20BalanceOfData(common.HexToAddress(holder)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling balanceOf on %s: %w", token, err)
	}
	return new(big.Int).SetBytes(ret), nil
}

// SuggestGasPrice returns the endpoint's suggested gas price in wei.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	eth := c.backend()
	if eth == nil {
		return nil, errors.New("chain client is closed")
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	price, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas price: %w", err)
	}
	return price, nil
}

// CallContract executes a read-only call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg geth.CallMsg) ([]byte, error) {
	eth := c.backend()
	if eth == nil {
		return nil, errors.New("chain client is closed")
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return eth.CallContract(ctx, msg, nil)
}

// EstimateGas asks the endpoint for a gas estimate of the given call.
func (c *Client) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	eth := c.backend()
	if eth == nil {
		return 0, errors.New("chain client is closed")
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return eth.EstimateGas(ctx, msg)
}

// TransactionInfo looks up a transaction and, when mined, its receipt.
func (c *Client) TransactionInfo(ctx context.Context, hash string) (TxInfo, error) {
	eth := c.backend()
	if eth == nil {
		return TxInfo{}, errors.New("chain client is closed")
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	tx, pending, err := eth.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		return TxInfo{}, fmt.Errorf("fetching transaction %s: %w", hash, err)
	}

	info := TxInfo{
		Hash:     tx.Hash().Hex(),
		ValueWei: tx.Value(),
		Input:    "0x" + common.Bytes2Hex(tx.Data()),
		GasLimit: tx.Gas(),
		Pending:  pending,
	}
	if to := tx.To(); to != nil {
		info.To = to.Hex()
	}
	if !pending {
		receipt, err := eth.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return TxInfo{}, fmt.Errorf("fetching receipt for %s: %w", hash, err)
		}
		info.GasUsed = receipt.GasUsed
		info.Status = receipt.Status
	}
	return info, nil
}

func erc20BalanceOfData(holder common.Address) []byte {
	data := make([]byte, 0, 36)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)
	return data
}

// WeiToToken converts a raw integer balance into a token amount using the
// token's decimal count.
func WeiToToken(raw *big.Int, decimals int) float64 {
	if raw == nil || decimals < 0 {
		return 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(scale)).Float64()
	return out
}
