package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PoolConfig configures `flair pool`.
type PoolConfig struct {
	Common
	RPCURL string
	Pool   string
}

func LoadPool(cfgFile string, flags *pflag.FlagSet) (PoolConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return PoolConfig{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return PoolConfig{}, err
	}
	rpc, err := requireRPC(v)
	if err != nil {
		return PoolConfig{}, err
	}
	pool, err := requireAddress(v, "pool")
	if err != nil {
		return PoolConfig{}, err
	}
	return PoolConfig{Common: common, RPCURL: rpc, Pool: pool}, nil
}

// IndexConfig configures `flair index`. An empty StateFile keeps the
// checkpoint in the store; an empty Archive disables the JSONL copy.
type IndexConfig struct {
	Common
	Retry
	RPCURL    string
	Pool      string
	FromBlock uint64
	ToBlock   uint64
	BatchSize uint64
	Resume    bool
	StateFile string
	Archive   string
}

func LoadIndex(cfgFile string, flags *pflag.FlagSet) (IndexConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size": uint64(2000),
		"resume":     true,
	})
	if err != nil {
		return IndexConfig{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return IndexConfig{}, err
	}
	rpc, err := requireRPC(v)
	if err != nil {
		return IndexConfig{}, err
	}
	pool, err := requireAddress(v, "pool")
	if err != nil {
		return IndexConfig{}, err
	}
	cfg := IndexConfig{
		Common:    common,
		Retry:     loadRetry(v),
		RPCURL:    rpc,
		Pool:      pool,
		FromBlock: v.GetUint64("from"),
		ToBlock:   v.GetUint64("to"),
		BatchSize: v.GetUint64("batch-size"),
		Resume:    v.GetBool("resume"),
		StateFile: v.GetString("state-file"),
		Archive:   v.GetString("archive"),
	}
	if cfg.BatchSize == 0 {
		return IndexConfig{}, fmt.Errorf("batch-size must be greater than zero")
	}
	if err := checkBlockRange(cfg.FromBlock, cfg.ToBlock); err != nil {
		return IndexConfig{}, err
	}
	return cfg, nil
}

// SnapshotConfig configures `flair snapshot`.
type SnapshotConfig struct {
	Common
	Retry
	RPCURL      string
	Pool        string
	FromBlock   uint64
	ToBlock     uint64
	LowerRange  int32
	UpperRange  int32
	Concurrency int
	BatchSize   int
	Resume      bool
	StateFile   string
}

func LoadSnapshot(cfgFile string, flags *pflag.FlagSet) (SnapshotConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"lower-range": 2,
		"upper-range": 2,
		"concurrency": 8,
		"batch-size":  200,
		"resume":      true,
	})
	if err != nil {
		return SnapshotConfig{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return SnapshotConfig{}, err
	}
	rpc, err := requireRPC(v)
	if err != nil {
		return SnapshotConfig{}, err
	}
	pool, err := requireAddress(v, "pool")
	if err != nil {
		return SnapshotConfig{}, err
	}
	cfg := SnapshotConfig{
		Common:      common,
		Retry:       loadRetry(v),
		RPCURL:      rpc,
		Pool:        pool,
		FromBlock:   v.GetUint64("from"),
		ToBlock:     v.GetUint64("to"),
		LowerRange:  v.GetInt32("lower-range"),
		UpperRange:  v.GetInt32("upper-range"),
		Concurrency: v.GetInt("concurrency"),
		BatchSize:   v.GetInt("batch-size"),
		Resume:      v.GetBool("resume"),
		StateFile:   v.GetString("state-file"),
	}
	if cfg.ToBlock == 0 {
		return SnapshotConfig{}, fmt.Errorf("to is required")
	}
	if err := checkBlockRange(cfg.FromBlock, cfg.ToBlock); err != nil {
		return SnapshotConfig{}, err
	}
	if cfg.LowerRange < 0 || cfg.UpperRange < 0 {
		return SnapshotConfig{}, fmt.Errorf("lower-range and upper-range must not be negative")
	}
	return cfg, nil
}

// Position modes accepted by `flair compute`.
const (
	ModeInRange    = "in-range"
	ModeOutOfRange = "out-of-range"
)

// FLAIR holds the aggregator settings shared by compute and benchmark.
type FLAIR struct {
	Strategy      string
	BatchSize     int
	BlockInterval time.Duration
	Out           string
}

func loadFLAIR(v *viper.Viper) (FLAIR, error) {
	f := FLAIR{
		Strategy:      v.GetString("strategy"),
		BatchSize:     v.GetInt("batch-size"),
		BlockInterval: v.GetDuration("block-interval"),
		Out:           v.GetString("out"),
	}
	if f.BatchSize <= 0 {
		return FLAIR{}, fmt.Errorf("batch-size must be greater than zero")
	}
	if f.BlockInterval <= 0 {
		return FLAIR{}, fmt.Errorf("block-interval must be positive")
	}
	return f, nil
}

var flairDefaults = map[string]interface{}{
	"strategy":       "exact",
	"batch-size":     2000,
	"block-interval": 12 * time.Second,
}

// ComputeConfig configures `flair compute` for a synthetic position.
// In-range positions use LowerRange/UpperRange; out-of-range positions use
// RangeWidth/OutRange. All are counted in tick-spacing buckets.
type ComputeConfig struct {
	Common
	FLAIR
	Pool       string
	FromBlock  uint64
	ToBlock    uint64
	Mode       string
	Amount     decimal.Decimal
	UseToken1  bool
	LowerRange int32
	UpperRange int32
	RangeWidth int32
	OutRange   int32
}

func LoadCompute(cfgFile string, flags *pflag.FlagSet) (ComputeConfig, error) {
	defaults := map[string]interface{}{
		"mode":        ModeInRange,
		"lower-range": 1,
		"upper-range": 1,
		"range-width": 1,
		"out-range":   1,
	}
	for k, val := range flairDefaults {
		defaults[k] = val
	}
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ComputeConfig{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return ComputeConfig{}, err
	}
	pool, err := requireAddress(v, "pool")
	if err != nil {
		return ComputeConfig{}, err
	}
	flair, err := loadFLAIR(v)
	if err != nil {
		return ComputeConfig{}, err
	}
	amountRaw := strings.TrimSpace(v.GetString("amount"))
	if amountRaw == "" {
		return ComputeConfig{}, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return ComputeConfig{}, fmt.Errorf("amount: %w", err)
	}
	if !amount.IsPositive() {
		return ComputeConfig{}, fmt.Errorf("amount must be positive")
	}

	cfg := ComputeConfig{
		Common:     common,
		FLAIR:      flair,
		Pool:       pool,
		FromBlock:  v.GetUint64("from"),
		ToBlock:    v.GetUint64("to"),
		Mode:       strings.ToLower(strings.TrimSpace(v.GetString("mode"))),
		Amount:     amount,
		UseToken1:  v.GetBool("token1"),
		LowerRange: v.GetInt32("lower-range"),
		UpperRange: v.GetInt32("upper-range"),
		RangeWidth: v.GetInt32("range-width"),
		OutRange:   v.GetInt32("out-range"),
	}
	if err := checkBlockRange(cfg.FromBlock, cfg.ToBlock); err != nil {
		return ComputeConfig{}, err
	}
	if cfg.Mode != ModeInRange && cfg.Mode != ModeOutOfRange {
		return ComputeConfig{}, fmt.Errorf("mode must be %q or %q, got %q", ModeInRange, ModeOutOfRange, cfg.Mode)
	}
	return cfg, nil
}

// BenchmarkConfig configures `flair benchmark` for a position-manager token.
type BenchmarkConfig struct {
	Common
	Retry
	FLAIR
	RPCURL          string
	TokenIDs        []string
	Factory         string
	PositionManager string
	FromBlock       uint64
	ToBlock         uint64
	LogBatchSize    uint64
}

func LoadBenchmark(cfgFile string, flags *pflag.FlagSet) (BenchmarkConfig, error) {
	defaults := map[string]interface{}{
		"factory":          "0x1F98431c8aD98523631AE4a59f267346ea31F984",
		"position-manager": "0xC36442b4a4522E871399CD717aBDD847Ab11FE88",
		"log-batch-size":   uint64(10000),
	}
	for k, val := range flairDefaults {
		defaults[k] = val
	}
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return BenchmarkConfig{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return BenchmarkConfig{}, err
	}
	rpc, err := requireRPC(v)
	if err != nil {
		return BenchmarkConfig{}, err
	}
	factory, err := requireAddress(v, "factory")
	if err != nil {
		return BenchmarkConfig{}, err
	}
	manager, err := requireAddress(v, "position-manager")
	if err != nil {
		return BenchmarkConfig{}, err
	}
	flair, err := loadFLAIR(v)
	if err != nil {
		return BenchmarkConfig{}, err
	}
	cfg := BenchmarkConfig{
		Common:          common,
		Retry:           loadRetry(v),
		FLAIR:           flair,
		RPCURL:          rpc,
		TokenIDs:        tokenIDs(v),
		Factory:         factory,
		PositionManager: manager,
		FromBlock:       v.GetUint64("from"),
		ToBlock:         v.GetUint64("to"),
		LogBatchSize:    v.GetUint64("log-batch-size"),
	}
	if len(cfg.TokenIDs) == 0 {
		return BenchmarkConfig{}, fmt.Errorf("token-id is required")
	}
	for _, id := range cfg.TokenIDs {
		if n, ok := new(big.Int).SetString(id, 10); !ok || n.Sign() < 0 {
			return BenchmarkConfig{}, fmt.Errorf("token-id: invalid value %q", id)
		}
	}
	if cfg.ToBlock == 0 {
		return BenchmarkConfig{}, fmt.Errorf("to is required")
	}
	if err := checkBlockRange(cfg.FromBlock, cfg.ToBlock); err != nil {
		return BenchmarkConfig{}, err
	}
	if cfg.LogBatchSize == 0 {
		return BenchmarkConfig{}, fmt.Errorf("log-batch-size must be greater than zero")
	}
	return cfg, nil
}

// tokenIDs accepts a list, a comma separated string or a single number,
// and drops duplicates while keeping order.
func tokenIDs(v *viper.Viper) []string {
	raw := v.GetStringSlice("token-id")
	if len(raw) == 0 {
		if single := v.GetString("token-id"); single != "" {
			raw = []string{single}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, entry := range raw {
		for _, id := range strings.Split(entry, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
