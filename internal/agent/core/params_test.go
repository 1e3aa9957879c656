package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseParamsSwap(t *testing.T) {
	parsed, err := ParseParams(OpSwap, map[string]interface{}{
		"tokenIn":  "ETH",
		"tokenOut": "USDC",
		"amountIn": 2.5,
		"protocol": "uniswap",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	swap, ok := parsed.(SwapParams)
	if !ok {
		t.Fatalf("expected SwapParams, got %T", parsed)
	}
	if swap.TokenIn != "ETH" || swap.TokenOut != "USDC" || swap.AmountIn != 2.5 {
		t.Fatalf("unexpected swap params: %+v", swap)
	}
}

func TestParseParamsRejectsMissingFields(t *testing.T) {
	cases := []struct {
		op     string
		params map[string]interface{}
	}{
		{OpSwap, map[string]interface{}{"tokenIn": "ETH"}},
		{OpSwap, map[string]interface{}{"tokenIn": "ETH", "tokenOut": "USDC", "amountIn": -1.0}},
		{OpStake, map[string]interface{}{"token": "ETH"}},
		{OpUnstake, map[string]interface{}{}},
		{OpClaimRewards, map[string]interface{}{}},
		{OpTokenAnalysis, map[string]interface{}{}},
		{OpDecodeTransaction, map[string]interface{}{}},
		{"mystery_op", map[string]interface{}{}},
	}
	for _, tc := range cases {
		if _, err := ParseParams(tc.op, tc.params); err == nil {
			t.Errorf("ParseParams(%s, %v): expected error", tc.op, tc.params)
		}
	}
}

func TestParamsRoundTrip(t *testing.T) {
	variants := []IntentParams{
		SwapParams{TokenIn: "ETH", TokenOut: "USDC", AmountIn: 1.25, Protocol: "uniswap"},
		StakeParams{Token: "ETH", Amount: 32, ValidatorID: "validator-2"},
		UnstakeParams{PositionID: "pos-1", Amount: 16},
		ClaimRewardsParams{PositionID: "pos-1"},
		PortfolioParams{Op: OpPnL, Timeframe: "7d"},
		ResearchParams{Op: OpTokenAnalysis, Token: "ARB", Query: "arbitrum outlook"},
		AnalyticsParams{Op: OpDecodeTransaction, TxHash: "0xabc"},
	}
	for _, v := range variants {
		m := v.Map()

		// serialize and back, as the open map travels through JSON
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal %s: %v", v.Operation(), err)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(b, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", v.Operation(), err)
		}

		reparsed, err := ParseParams(v.Operation(), decoded)
		if err != nil {
			t.Fatalf("reparse %s: %v", v.Operation(), err)
		}
		if !reflect.DeepEqual(reparsed.Map(), m) {
			t.Errorf("%s round trip mismatch: %#v != %#v", v.Operation(), reparsed.Map(), m)
		}
	}
}

func TestFloatParamCoercion(t *testing.T) {
	params := map[string]interface{}{"amountIn": "3.5", "tokenIn": "ETH", "tokenOut": "DAI"}
	parsed, err := ParseParams(OpSwap, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.(SwapParams).AmountIn != 3.5 {
		t.Fatalf("expected string amount coerced to 3.5, got %v", parsed.(SwapParams).AmountIn)
	}
}

func TestPnLDefaultsTimeframe(t *testing.T) {
	parsed, err := ParseParams(OpPnL, map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.(PortfolioParams).Timeframe != "24h" {
		t.Fatalf("expected default 24h timeframe, got %q", parsed.(PortfolioParams).Timeframe)
	}
}
