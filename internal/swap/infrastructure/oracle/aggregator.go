package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"irs-settlement/internal/swap/application"
)

const aggregatorABIJSON = `[
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],
	 "outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}]}
]`

var aggregatorABI = mustParseABI(aggregatorABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("aggregator oracle: parse abi: %v", err))
	}
	return parsed
}

// AggregatorOracle reads on-chain price-feed aggregators exposing
// latestRoundData() and decimals(). The request source is the aggregator
// address. *ethclient.Client satisfies ethereum.ContractCaller.
type AggregatorOracle struct {
	caller   ethereum.ContractCaller
	mu       sync.Mutex
	decimals map[common.Address]uint8
}

// NewAggregatorOracle constructs the oracle.
func NewAggregatorOracle(caller ethereum.ContractCaller) (*AggregatorOracle, error) {
	if caller == nil {
		return nil, errors.New("aggregator oracle: nil caller")
	}
	return &AggregatorOracle{caller: caller, decimals: make(map[common.Address]uint8)}, nil
}

// GetRate reads the latest round of the aggregator at req.Source.
func (o *AggregatorOracle) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	if req.Source == (common.Address{}) {
		return application.RateValue{}, errors.New("aggregator oracle: zero source address")
	}
	decimals, err := o.feedDecimals(ctx, req.Source)
	if err != nil {
		return application.RateValue{}, err
	}
	out, err := o.call(ctx, req.Source, "latestRoundData")
	if err != nil {
		return application.RateValue{}, fmt.Errorf("aggregator oracle: latestRoundData: %w", err)
	}
	if len(out) != 5 {
		return application.RateValue{}, fmt.Errorf("aggregator oracle: latestRoundData returned %d values", len(out))
	}
	answer, ok := out[1].(*big.Int)
	if !ok || !answer.IsInt64() {
		return application.RateValue{}, fmt.Errorf("aggregator oracle: answer %v out of range", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok || !updatedAt.IsInt64() {
		return application.RateValue{}, fmt.Errorf("aggregator oracle: invalid updatedAt %v", out[3])
	}
	return application.RateValue{
		Value:     answer.Int64(),
		Decimals:  decimals,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
		Source:    "aggregator:" + req.Source.Hex(),
	}, nil
}

func (o *AggregatorOracle) feedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	o.mu.Lock()
	cached, ok := o.decimals[feed]
	o.mu.Unlock()
	if ok {
		return cached, nil
	}
	out, err := o.call(ctx, feed, "decimals")
	if err != nil {
		return 0, fmt.Errorf("aggregator oracle: decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("aggregator oracle: decimals returned %d values", len(out))
	}
	decimals, ok := out[0].(uint8)
	if !ok || decimals > maxQuoteDecimals {
		return 0, fmt.Errorf("aggregator oracle: unsupported decimals %v", out[0])
	}
	o.mu.Lock()
	o.decimals[feed] = decimals
	o.mu.Unlock()
	return decimals, nil
}

func (o *AggregatorOracle) call(ctx context.Context, to common.Address, method string) ([]interface{}, error) {
	input, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	raw, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	return aggregatorABI.Unpack(method, raw)
}
