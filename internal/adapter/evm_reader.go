package adapter

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/portfolio"
	"github.com/orbit-yield/internal/types"
)

// Contract interfaces the reader speaks. The registry contract lists active
// strategies and open positions per owner; each strategy self-describes via
// strategyInfo.
const yieldRegistryABIJSON = `[
	{"name":"activeStrategies","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"name":"positionsOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[
		{"name":"strategies","type":"address[]"},
		{"name":"assets","type":"address[]"},
		{"name":"amounts","type":"uint256[]"},
		{"name":"rewards","type":"uint256[]"},
		{"name":"enteredAt","type":"uint64[]"},
		{"name":"updatedAt","type":"uint64[]"}]}
]`

const strategyABIJSON = `[
	{"name":"strategyInfo","type":"function","stateMutability":"view","inputs":[],"outputs":[
		{"name":"protocolName","type":"string"},
		{"name":"strategyType","type":"uint8"},
		{"name":"apy","type":"uint256"},
		{"name":"risk","type":"uint8"},
		{"name":"asset","type":"address"},
		{"name":"tvl","type":"uint256"},
		{"name":"minDeposit","type":"uint256"},
		{"name":"lockupPeriod","type":"uint64"},
		{"name":"sponsoredGas","type":"bool"},
		{"name":"oracleProvider","type":"string"},
		{"name":"bridgeProvider","type":"string"}]},
	{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"amount","type":"uint256"},{"name":"bridge","type":"string"}],"outputs":[]},
	{"name":"claim","type":"function","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"}],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const eip1271ABIJSON = `[
	{"name":"isValidSignature","type":"function","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}
]`

// eip1271Magic is the bytes4 value a contract wallet returns for a valid
// signature, per EIP-1271.
var eip1271Magic = [4]byte{0x16, 0x26, 0xba, 0x7e}

var (
	yieldRegistryABI = mustParseABI(yieldRegistryABIJSON)
	strategyABI      = mustParseABI(strategyABIJSON)
	erc20ABI         = mustParseABI(erc20ABIJSON)
	eip1271ABI       = mustParseABI(eip1271ABIJSON)
)

func mustParseABI(json string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic("adapter: invalid ABI: " + err.Error())
	}
	return parsed
}

var strategyTypeByCode = map[uint8]types.StrategyType{
	0: types.StrategyStaking,
	1: types.StrategyLending,
	2: types.StrategyLiquidity,
	3: types.StrategyCrossChain,
}

// EVMReader reads opportunities, positions and contract metadata from the
// yield registry contracts of the configured chains, and submits sponsored
// deposit/withdraw/claim transactions through the relayer key.
type EVMReader struct {
	pools       map[types.ChainID]*RPCPool
	registries  map[types.ChainID]common.Address
	relayerKey  *ecdsa.PrivateKey
	callTimeout time.Duration
}

// EVMReaderConfig wires an EVMReader.
type EVMReaderConfig struct {
	// Pools maps each enabled chain to its RPC pool. Required.
	Pools map[types.ChainID]*RPCPool
	// Registries maps each enabled chain to its yield registry contract.
	Registries map[types.ChainID]string
	// RelayerKey signs sponsored transactions. Optional; without it the
	// reader is read-only and write operations fail upstream-unavailable.
	RelayerKey string
	// CallTimeout bounds every individual RPC call.
	CallTimeout time.Duration
}

// NewEVMReader creates a reader over the configured chains.
func NewEVMReader(cfg *EVMReaderConfig) (*EVMReader, error) {
	if len(cfg.Pools) == 0 {
		return nil, errors.NewInvalidArgumentError("pools", "at least one chain pool is required")
	}

	registries := make(map[types.ChainID]common.Address, len(cfg.Registries))
	for chain, addr := range cfg.Registries {
		if addr == "" {
			continue
		}
		if !common.IsHexAddress(addr) {
			return nil, errors.NewInvalidArgumentError("registryContract", fmt.Sprintf("chain %s: %q is not an address", chain, addr))
		}
		registries[chain] = common.HexToAddress(addr)
	}

	var key *ecdsa.PrivateKey
	if cfg.RelayerKey != "" {
		parsed, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelayerKey, "0x"))
		if err != nil {
			return nil, errors.NewInvalidArgumentError("relayerKey", "not a valid secp256k1 key")
		}
		key = parsed
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &EVMReader{
		pools:       cfg.Pools,
		registries:  registries,
		relayerKey:  key,
		callTimeout: timeout,
	}, nil
}

// Close closes all chain connections.
func (r *EVMReader) Close() {
	for _, pool := range r.pools {
		pool.Close()
	}
}

// Opportunities lists the active strategies on a chain as opportunities.
func (r *EVMReader) Opportunities(ctx context.Context, chain types.ChainID) ([]types.Opportunity, error) {
	registry, err := r.registry(chain)
	if err != nil {
		return nil, err
	}

	data, err := yieldRegistryABI.Pack("activeStrategies")
	if err != nil {
		return nil, errors.NewInternalError("failed to pack activeStrategies", err)
	}
	out, err := r.call(ctx, chain, registry, data)
	if err != nil {
		return nil, err
	}
	values, err := yieldRegistryABI.Unpack("activeStrategies", out)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError(string(chain), err)
	}
	strategies, ok := values[0].([]common.Address)
	if !ok {
		return nil, errors.NewUpstreamUnavailableError(string(chain), fmt.Errorf("unexpected activeStrategies result"))
	}

	opportunities := make([]types.Opportunity, 0, len(strategies))
	for _, strategy := range strategies {
		opp, err := r.opportunity(ctx, chain, strategy)
		if err != nil {
			return nil, err
		}
		opportunities = append(opportunities, *opp)
	}
	return opportunities, nil
}

// opportunity reads one strategy's full descriptor plus its asset token.
func (r *EVMReader) opportunity(ctx context.Context, chain types.ChainID, strategy common.Address) (*types.Opportunity, error) {
	info, err := r.rawStrategyInfo(ctx, chain, strategy)
	if err != nil {
		return nil, err
	}

	token, err := r.TokenInfo(ctx, chain, strings.ToLower(info.asset.Hex()))
	if err != nil {
		return nil, err
	}

	strategyType, ok := strategyTypeByCode[info.strategyType]
	if !ok {
		strategyType = types.StrategyStaking
	}

	addr := strings.ToLower(strategy.Hex())
	return &types.Opportunity{
		ID:              fmt.Sprintf("%s-%s", chain, addr),
		StrategyAddress: addr,
		AssetAddress:    strings.ToLower(info.asset.Hex()),
		AssetSymbol:     token.Symbol,
		ProtocolName:    info.protocolName,
		StrategyType:    strategyType,
		APY:             info.apy.Int64(),
		Risk:            int(info.risk),
		TVL:             info.tvl.String(),
		TVLDecimals:     token.Decimals,
		MinDeposit:      info.minDeposit.String(),
		LockupPeriod:    int64(info.lockupPeriod),
		Chain:           chain,
		SponsoredGas:    info.sponsoredGas,
		Oracle:          info.oracleProvider,
		Bridge:          info.bridgeProvider,
	}, nil
}

type rawStrategy struct {
	protocolName   string
	strategyType   uint8
	apy            *big.Int
	risk           uint8
	asset          common.Address
	tvl            *big.Int
	minDeposit     *big.Int
	lockupPeriod   uint64
	sponsoredGas   bool
	oracleProvider string
	bridgeProvider string
}

func (r *EVMReader) rawStrategyInfo(ctx context.Context, chain types.ChainID, strategy common.Address) (*rawStrategy, error) {
	data, err := strategyABI.Pack("strategyInfo")
	if err != nil {
		return nil, errors.NewInternalError("failed to pack strategyInfo", err)
	}
	out, err := r.call(ctx, chain, strategy, data)
	if err != nil {
		return nil, err
	}
	values, err := strategyABI.Unpack("strategyInfo", out)
	if err != nil || len(values) != 11 {
		return nil, errors.NewUpstreamUnavailableError(string(chain), err)
	}

	return &rawStrategy{
		protocolName:   values[0].(string),
		strategyType:   values[1].(uint8),
		apy:            values[2].(*big.Int),
		risk:           values[3].(uint8),
		asset:          values[4].(common.Address),
		tvl:            values[5].(*big.Int),
		minDeposit:     values[6].(*big.Int),
		lockupPeriod:   values[7].(uint64),
		sponsoredGas:   values[8].(bool),
		oracleProvider: values[9].(string),
		bridgeProvider: values[10].(string),
	}, nil
}

// StrategyInfo reads the metadata the portfolio layer needs for enrichment.
func (r *EVMReader) StrategyInfo(ctx context.Context, chain types.ChainID, strategy string) (*portfolio.StrategyInfo, error) {
	if !common.IsHexAddress(strategy) {
		return nil, errors.NewInvalidArgumentError("strategy", "not an address")
	}
	info, err := r.rawStrategyInfo(ctx, chain, common.HexToAddress(strategy))
	if err != nil {
		return nil, err
	}
	strategyType, ok := strategyTypeByCode[info.strategyType]
	if !ok {
		strategyType = types.StrategyStaking
	}
	return &portfolio.StrategyInfo{
		StrategyType: strategyType,
		ProtocolName: info.protocolName,
		APY:          info.apy.Int64(),
		Risk:         int(info.risk),
		Bridge:       info.bridgeProvider,
	}, nil
}

// TokenInfo reads symbol and decimals from an ERC-20 token.
func (r *EVMReader) TokenInfo(ctx context.Context, chain types.ChainID, token string) (*portfolio.TokenInfo, error) {
	if !common.IsHexAddress(token) {
		return nil, errors.NewInvalidArgumentError("token", "not an address")
	}
	addr := common.HexToAddress(token)

	symbolData, err := erc20ABI.Pack("symbol")
	if err != nil {
		return nil, errors.NewInternalError("failed to pack symbol", err)
	}
	out, err := r.call(ctx, chain, addr, symbolData)
	if err != nil {
		return nil, err
	}
	symbolValues, err := erc20ABI.Unpack("symbol", out)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError(string(chain), err)
	}

	decimalsData, err := erc20ABI.Pack("decimals")
	if err != nil {
		return nil, errors.NewInternalError("failed to pack decimals", err)
	}
	out, err = r.call(ctx, chain, addr, decimalsData)
	if err != nil {
		return nil, err
	}
	decimalsValues, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError(string(chain), err)
	}

	return &portfolio.TokenInfo{
		Symbol:   symbolValues[0].(string),
		Decimals: int(decimalsValues[0].(uint8)),
	}, nil
}

// Positions lists a wallet's open positions across every configured chain.
// Chains without a registry contract are skipped.
func (r *EVMReader) Positions(ctx context.Context, wallet string) ([]types.Position, error) {
	if !common.IsHexAddress(wallet) {
		return nil, errors.NewInvalidArgumentError("wallet", "not an address")
	}
	owner := common.HexToAddress(wallet)

	var positions []types.Position
	for chain := range r.pools {
		registry, ok := r.registries[chain]
		if !ok {
			continue
		}
		chainPositions, err := r.positionsOn(ctx, chain, registry, owner)
		if err != nil {
			return nil, err
		}
		positions = append(positions, chainPositions...)
	}
	return positions, nil
}

func (r *EVMReader) positionsOn(ctx context.Context, chain types.ChainID, registry, owner common.Address) ([]types.Position, error) {
	data, err := yieldRegistryABI.Pack("positionsOf", owner)
	if err != nil {
		return nil, errors.NewInternalError("failed to pack positionsOf", err)
	}
	out, err := r.call(ctx, chain, registry, data)
	if err != nil {
		return nil, err
	}
	values, err := yieldRegistryABI.Unpack("positionsOf", out)
	if err != nil || len(values) != 6 {
		return nil, errors.NewUpstreamUnavailableError(string(chain), err)
	}

	strategies := values[0].([]common.Address)
	assets := values[1].([]common.Address)
	amounts := values[2].([]*big.Int)
	rewards := values[3].([]*big.Int)
	enteredAt := values[4].([]uint64)
	updatedAt := values[5].([]uint64)
	if len(assets) != len(strategies) || len(amounts) != len(strategies) ||
		len(rewards) != len(strategies) || len(enteredAt) != len(strategies) ||
		len(updatedAt) != len(strategies) {
		return nil, errors.NewUpstreamUnavailableError(string(chain), fmt.Errorf("registry returned ragged position arrays"))
	}

	ownerAddr := strings.ToLower(owner.Hex())
	positions := make([]types.Position, 0, len(strategies))
	for i := range strategies {
		positions = append(positions, types.Position{
			StrategyAddress: strings.ToLower(strategies[i].Hex()),
			AssetAddress:    strings.ToLower(assets[i].Hex()),
			Owner:           ownerAddr,
			Amount:          amounts[i].String(),
			RewardsAccrued:  rewards[i].String(),
			Chain:           chain,
			EnteredAt:       time.Unix(int64(enteredAt[i]), 0).UTC(),
			LastUpdate:      time.Unix(int64(updatedAt[i]), 0).UTC(),
		})
	}
	return positions, nil
}

// eip1271Outcome interprets the return data of an isValidSignature call.
// Empty data means the address holds no contract on that chain, so the
// call decides nothing.
func eip1271Outcome(out []byte) (valid, decided bool) {
	if len(out) == 0 {
		return false, false
	}
	return len(out) >= 4 && bytes.Equal(out[:4], eip1271Magic[:]), true
}

// IsValidSignature performs the EIP-1271 check against a contract wallet.
func (r *EVMReader) IsValidSignature(ctx context.Context, wallet string, digest [32]byte, signature []byte) (bool, error) {
	if !common.IsHexAddress(wallet) {
		return false, errors.NewInvalidArgumentError("wallet", "not an address")
	}

	data, err := eip1271ABI.Pack("isValidSignature", digest, signature)
	if err != nil {
		return false, errors.NewInternalError("failed to pack isValidSignature", err)
	}

	// Contract wallets live on their home chain. An eth_call against an
	// address with no code succeeds with empty return data, so only a chain
	// that actually returned data gets to decide validity.
	var lastErr error
	for chain := range r.pools {
		out, err := r.call(ctx, chain, common.HexToAddress(wallet), data)
		if err != nil {
			lastErr = err
			continue
		}
		valid, decided := eip1271Outcome(out)
		if !decided {
			continue
		}
		return valid, nil
	}
	if lastErr != nil {
		return false, lastErr
	}
	return false, errors.NewContractValidationError(wallet, fmt.Errorf("no configured chain holds a contract at this address"))
}

// Deposit submits a sponsored deposit transaction to the strategy.
func (r *EVMReader) Deposit(ctx context.Context, chain types.ChainID, strategy, owner, amount string) error {
	data, err := r.packMutation("deposit", owner, amount, "")
	if err != nil {
		return err
	}
	return r.submit(ctx, chain, strategy, data)
}

// Withdraw submits a sponsored withdrawal. A non-empty bridge routes the
// released funds through that bridge provider.
func (r *EVMReader) Withdraw(ctx context.Context, chain types.ChainID, strategy, owner, amount, bridge string) error {
	data, err := r.packMutation("withdraw", owner, amount, bridge)
	if err != nil {
		return err
	}
	return r.submit(ctx, chain, strategy, data)
}

// Claim submits a sponsored rewards claim for the owner.
func (r *EVMReader) Claim(ctx context.Context, chain types.ChainID, strategy, owner string) error {
	if !common.IsHexAddress(owner) {
		return errors.NewInvalidArgumentError("owner", "not an address")
	}
	data, err := strategyABI.Pack("claim", common.HexToAddress(owner))
	if err != nil {
		return errors.NewInternalError("failed to pack claim", err)
	}
	return r.submit(ctx, chain, strategy, data)
}

func (r *EVMReader) packMutation(method, owner, amount, bridge string) ([]byte, error) {
	if !common.IsHexAddress(owner) {
		return nil, errors.NewInvalidArgumentError("owner", "not an address")
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() <= 0 {
		return nil, errors.NewInvalidArgumentError("amount", "must be a positive integer string")
	}

	var (
		data []byte
		err  error
	)
	if method == "withdraw" {
		data, err = strategyABI.Pack(method, common.HexToAddress(owner), value, bridge)
	} else {
		data, err = strategyABI.Pack(method, common.HexToAddress(owner), value)
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to pack "+method, err)
	}
	return data, nil
}

// submit signs a relayer transaction to a strategy contract and waits for it
// to be mined.
func (r *EVMReader) submit(ctx context.Context, chain types.ChainID, strategy string, data []byte) error {
	if r.relayerKey == nil {
		return errors.NewUpstreamUnavailableError("relayer", fmt.Errorf("no relayer key configured"))
	}
	if !common.IsHexAddress(strategy) {
		return errors.NewInvalidArgumentError("strategy", "not an address")
	}
	pool, err := r.pool(chain)
	if err != nil {
		return err
	}
	client := pool.Client()
	to := common.HexToAddress(strategy)
	from := crypto.PubkeyToAddress(r.relayerKey.PublicKey)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return r.upstreamError(ctx, chain, err)
	}
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return r.upstreamError(ctx, chain, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return r.upstreamError(ctx, chain, err)
	}
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return r.upstreamError(ctx, chain, err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), r.relayerKey)
	if err != nil {
		return errors.NewInternalError("failed to sign relayer transaction", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return r.upstreamError(ctx, chain, err)
	}

	receipt, err := bind.WaitMined(ctx, client, signed)
	if err != nil {
		return r.upstreamError(ctx, chain, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return errors.NewUpstreamUnavailableError(string(chain), fmt.Errorf("transaction %s reverted", signed.Hash().Hex()))
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"chain": string(chain),
		"tx":    signed.Hash().Hex(),
	}).Info("relayer transaction mined")
	return nil
}

func (r *EVMReader) registry(chain types.ChainID) (common.Address, error) {
	registry, ok := r.registries[chain]
	if !ok {
		return common.Address{}, errors.NewUpstreamUnavailableError(string(chain), fmt.Errorf("no registry contract configured"))
	}
	return registry, nil
}

func (r *EVMReader) pool(chain types.ChainID) (*RPCPool, error) {
	pool, ok := r.pools[chain]
	if !ok {
		return nil, errors.NewUpstreamUnavailableError(string(chain), fmt.Errorf("chain not configured"))
	}
	return pool, nil
}

// call performs one bounded eth_call with a single failover retry when the
// current endpoint is rate limited.
func (r *EVMReader) call(ctx context.Context, chain types.ChainID, to common.Address, data []byte) ([]byte, error) {
	pool, err := r.pool(chain)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	msg := ethereum.CallMsg{To: &to, Data: data}
	out, err := pool.Client().CallContract(callCtx, msg, nil)
	if err != nil && IsRateLimitError(err) {
		if failErr := pool.OnRateLimited(); failErr == nil {
			out, err = pool.Client().CallContract(callCtx, msg, nil)
		}
	}
	if err != nil {
		return nil, r.upstreamError(callCtx, chain, err)
	}
	return out, nil
}

func (r *EVMReader) upstreamError(ctx context.Context, chain types.ChainID, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewUpstreamTimeoutError(string(chain))
	}
	return errors.NewUpstreamUnavailableError(string(chain), err)
}
