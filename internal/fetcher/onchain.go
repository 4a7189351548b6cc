package fetcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// DefaultRPCEndpoints are public JSON-RPC nodes per chain.
var DefaultRPCEndpoints = map[string]string{
	"ethereum": "https://cloudflare-eth.com",
	"polygon":  "https://polygon-rpc.com",
	"arbitrum": "https://arb1.arbitrum.io/rpc",
	"optimism": "https://mainnet.optimism.io",
	"base":     "https://mainnet.base.org",
}

var chainAliases = map[string]string{
	"eth":     "ethereum",
	"mainnet": "ethereum",
	"matic":   "polygon",
	"arb":     "arbitrum",
	"op":      "optimism",
}

// OnchainConfig configures the on-chain fetcher. Endpoints override
// DefaultRPCEndpoints per chain.
type OnchainConfig struct {
	Endpoints map[string]string
	Timeout   time.Duration
	Clock     Clock
}

// OnchainFetcher serves ONCHAIN_QUERY specs over EVM JSON-RPC.
type OnchainFetcher struct {
	endpoints map[string]string
	timeout   time.Duration
	clock     Clock
}

// NewOnchainFetcher creates an OnchainFetcher.
func NewOnchainFetcher(cfg OnchainConfig) *OnchainFetcher {
	eps := make(map[string]string, len(DefaultRPCEndpoints))
	for k, v := range DefaultRPCEndpoints {
		eps[k] = v
	}
	for k, v := range cfg.Endpoints {
		if v != "" {
			eps[strings.ToLower(k)] = v
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &OnchainFetcher{endpoints: eps, timeout: timeout, clock: cfg.Clock}
}

// canonicalChain lowercases and resolves aliases.
func canonicalChain(chain string) string {
	c := strings.ToLower(strings.TrimSpace(chain))
	if alias, ok := chainAliases[c]; ok {
		return alias
	}
	return c
}

func isBalanceMetric(metric string) bool {
	m := strings.ToLower(metric)
	return strings.Contains(m, "balance") || strings.Contains(m, "staked") || strings.Contains(m, "stake")
}

// weiToEther converts wei to a float ether amount.
func weiToEther(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}

// Fetch implements Fetcher.
func (f *OnchainFetcher) Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult {
	const provider = "evm_rpc"
	now := f.clock.now()
	fields := spec.Fields
	chain := canonicalChain(fields.Chain)
	data := map[string]any{"chain": chain, "metric": fields.Metric}

	endpoint, ok := f.endpoints[chain]
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("no RPC endpoint for chain %q", fields.Chain), data, now)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("dial %s: %v", chain, err), data, now)
	}
	defer client.Close()

	target := fields.Address
	if target == "" {
		target = fields.ContractAddress
	}
	if isBalanceMetric(fields.Metric) && common.IsHexAddress(target) {
		addr := common.HexToAddress(target)
		wei, err := client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return domain.FetchFailed(provider, fmt.Sprintf("balance %s on %s: %v", addr.Hex(), chain, err), data, now)
		}
		data["address"] = addr.Hex()
		data["balance_wei"] = wei.String()
		data["balance"] = weiToEther(wei)
		data["value"] = weiToEther(wei)
		return domain.FetchOK(provider, data, now)
	}

	block, err := client.BlockNumber(ctx)
	if err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("block number on %s: %v", chain, err), data, now)
	}
	data["block_number"] = block
	data["connectivity_check"] = true
	data["note"] = "generic contract-state queries are not decoded; latest block returned as a connectivity check"
	return domain.FetchOK(provider, data, now)
}

var _ Fetcher = (*OnchainFetcher)(nil)
