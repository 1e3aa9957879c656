package core

// CapabilitiesDoc returns a human-readable description of the agents, their
// operations and the parameters each operation accepts. It is embedded into
// LLM prompts for intent classification so the model emits parameters the
// schema layer will accept.
func CapabilitiesDoc() string {
	return tradeCapabilities() + "\n\n" + stakeCapabilities() + "\n\n" + portfolioCapabilities() + "\n\n" + researchCapabilities() + "\n\n" + analyticsCapabilities()
}

func tradeCapabilities() string {
	return `Agent: trade (capability: swap)
Purpose: Quote and execute token swaps through an AMM-style route.
Operation: swap
Parameters:
- tokenIn: symbol of the token being sold (e.g., ETH, USDC). Required.
- tokenOut: symbol of the token being bought. Required.
- amountIn: positive number, amount of tokenIn in USD terms. Required.
- protocol: venue hint (e.g., uniswap). Optional.
Notes:
- Large amounts move the price; expect warnings above 5% price impact.
- Slippage above 3% is flagged; the user's default slippage applies when unset.`
}

func stakeCapabilities() string {
	return `Agent: stake (capabilities: stake, unstake)
Purpose: Delegate tokens to validators, withdraw positions, claim rewards.
Operations:
- stake: {token, amount (required, > 0), validatorId (optional; best validator picked by effective yield when omitted)}
- unstake: {positionId (required), amount (optional, defaults to full position)}
- claim_rewards: {positionId (required)}
Notes:
- Validator choice maximizes apr net of commission weighted by uptime, subject to remaining capacity.
- Unbonding periods mean unstaking is not instant.`
}

func portfolioCapabilities() string {
	return `Agent: portfolio (capability: portfolio_analysis, read-only)
Purpose: Report holdings, profit and loss, and open positions.
Operations:
- balances: {} — current token balances with USD values.
- pnl: {timeframe: one of 24h, 7d, 30d, 1y, all; defaults to 24h}
- positions: {} — open staking/LP positions.`
}

func researchCapabilities() string {
	return `Agent: research (capability: market_research, read-only, cached)
Purpose: Market data, token deep-dives, protocol reviews and news digests.
Operations:
- market_data: {} — broad market snapshot.
- token_analysis: {token (required)} — single-asset view.
- protocol_analysis: {query (optional)} — protocol fundamentals.
- news: {query (optional)} — recent headlines.
Notes:
- Responses are cached for five minutes per distinct parameter set.
- When the upstream feed is down, degraded fixture data is returned and marked as such.`
}

func analyticsCapabilities() string {
	return `Agent: analytics (capability: transaction_analysis, read-only, cached)
Purpose: Decode transactions, break down gas, assess execution risk.
Operations:
- decode_transaction: {txHash (required)}
- analyze_gas: {txHash (required)}
- risk_assessment: {txHash (required)}
- performance_report: {timeframe (optional)}
Notes:
- Decoded transactions are cached by hash without expiry.`
}
