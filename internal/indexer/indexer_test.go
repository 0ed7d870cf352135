package indexer

import (
	"context"
	"errors"
	"math"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairScope/internal/dex"
	"flairScope/internal/metrics"
	"flairScope/internal/model"
)

const testPool = "0x1111111111111111111111111111111111111111"

func testPoolModel() model.Pool {
	return model.Pool{
		Address:     testPool,
		Token0:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		FeeTier:     500,
		TickSpacing: 10,
	}
}

func TestSplitRange(t *testing.T) {
	tests := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		want      []BlockRange
	}{
		{"even", 100, 105, 2, []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{"short tail", 100, 104, 2, []BlockRange{{100, 101}, {102, 103}, {104, 104}}},
		{"single", 5, 5, 10, []BlockRange{{5, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitRange(tt.from, tt.to, tt.batchSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SplitRange(10, 9, 1)
	require.Error(t, err)
	_, err = SplitRange(1, 10, 0)
	require.Error(t, err)
	assert.Equal(t, uint64(3), BlockRange{From: 7, To: 9}.Blocks())
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = policy.Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryPolicy{MaxRetries: 5, Backoff: time.Hour}.Do(ctx, nil, "op", func(context.Context) error {
		return errors.New("down")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileStateStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "checkpoints.json")
	store := NewFileStateStore(path)

	_, ok, err := store.LoadState(ctx, "swaps:pool")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveState(ctx, "swaps:pool", 10))
	require.NoError(t, store.SaveState(ctx, "snapshots:pool", 7))
	require.NoError(t, store.SaveState(ctx, "swaps:pool", 20))

	reopened := NewFileStateStore(path)
	block, ok, err := reopened.LoadState(ctx, "swaps:pool")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(20), block)

	block, ok, err = reopened.LoadState(ctx, "snapshots:pool")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), block)

	require.Error(t, store.SaveState(ctx, "", 1))
}

type fakeChain struct {
	latest  uint64
	logs    []types.Log
	failFor int
	ranges  []BlockRange
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeChain) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ [][]common.Hash) ([]types.Log, error) {
	if f.failFor > 0 {
		f.failFor--
		return nil, errors.New("rate limited")
	}
	f.ranges = append(f.ranges, BlockRange{From: from, To: to})
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type memorySink struct {
	mu        sync.Mutex
	swaps     []model.SwapEvent
	states    []model.PoolState
	snapshots []model.TickSnapshot
}

func (s *memorySink) UpsertSwaps(_ context.Context, swaps []model.SwapEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, swaps...)
	return nil
}

func (s *memorySink) GetSwapsInRange(_ context.Context, _ string, from, to uint64) ([]model.SwapEvent, error) {
	var out []model.SwapEvent
	for _, swap := range s.swaps {
		if swap.BlockNumber >= from && swap.BlockNumber <= to {
			out = append(out, swap)
		}
	}
	return out, nil
}

func (s *memorySink) UpsertPoolStates(_ context.Context, states []model.PoolState) error {
	s.states = append(s.states, states...)
	return nil
}

func (s *memorySink) UpsertTickSnapshots(_ context.Context, snapshots []model.TickSnapshot) error {
	s.snapshots = append(s.snapshots, snapshots...)
	return nil
}

type memoryState map[string]uint64

func (m memoryState) LoadState(_ context.Context, name string) (uint64, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func (m memoryState) SaveState(_ context.Context, name string, block uint64) error {
	m[name] = block
	return nil
}

type memoryArchive struct{ swaps []model.SwapEvent }

func (a *memoryArchive) PutBatch(records []model.SwapEvent) error {
	a.swaps = append(a.swaps, records...)
	return nil
}

func swapLog(t *testing.T, block uint64, index uint, amount0, amount1 int64, tick int64) types.Log {
	t.Helper()
	poolABI, err := dex.V3PoolABI()
	require.NoError(t, err)
	event := poolABI.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount0), big.NewInt(amount1), big.NewInt(1), big.NewInt(1), big.NewInt(tick))
	require.NoError(t, err)
	return types.Log{
		Address:     common.HexToAddress(testPool),
		Topics:      []common.Hash{event.ID, {}, {}},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

func TestRunnerIndexesSwaps(t *testing.T) {
	chain := &fakeChain{
		latest:  25,
		failFor: 1,
		logs: []types.Log{
			swapLog(t, 10, 0, 100, -50, 15),
			swapLog(t, 10, 0, 100, -50, 15),
			swapLog(t, 21, 3, -40, 90, 22),
		},
	}
	chain.logs = append(chain.logs, types.Log{BlockNumber: 12, Removed: true})

	sink := &memorySink{}
	state := memoryState{}
	archive := &memoryArchive{}
	m := metrics.New(prometheus.NewRegistry())

	runner, err := NewRunner(RunConfig{
		FromBlock: 5,
		BatchSize: 10,
		Retry:     RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond},
		Resume:    true,
	}, testPoolModel(), chain, sink, state, archive, m, nil)
	require.NoError(t, err)

	stored, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, []BlockRange{{5, 14}, {15, 24}, {25, 25}}, chain.ranges)

	require.Len(t, sink.swaps, 2)
	assert.True(t, sink.swaps[0].Amount0.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int32(22), sink.swaps[1].Tick)
	assert.Len(t, archive.swaps, 2)
	assert.Equal(t, uint64(25), state[StateName(swapJob, testPool)])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SwapsIndexed))

	// A second run resumes after the checkpoint and finds nothing new.
	chain.ranges = nil
	stored, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Empty(t, chain.ranges)
}

type fakeReader struct {
	tick      int32
	liquidity int64
	ticks     map[int32]int64
	tvlErr    error
	mu        sync.Mutex
	reads     []int32
}

func (f *fakeReader) Slot0At(_ context.Context, _ string, block uint64) (dex.Slot0, error) {
	if block == 0 {
		return dex.Slot0{}, errors.New("no block")
	}
	return dex.Slot0{SqrtPriceX96: big.NewInt(79228162514264337), Tick: f.tick}, nil
}

func (f *fakeReader) LiquidityAt(context.Context, string, uint64) (*big.Int, error) {
	return big.NewInt(f.liquidity), nil
}

func (f *fakeReader) TickAt(_ context.Context, _ string, idx int32, _ uint64) (model.Tick, bool, error) {
	f.mu.Lock()
	f.reads = append(f.reads, idx)
	f.mu.Unlock()
	net, ok := f.ticks[idx]
	if !ok {
		return model.Tick{TickIdx: idx, LiquidityGross: new(big.Int), LiquidityNet: new(big.Int)}, false, nil
	}
	gross := new(big.Int).Abs(big.NewInt(net))
	return model.Tick{TickIdx: idx, LiquidityGross: gross, LiquidityNet: big.NewInt(net)}, true, nil
}

// TVLAt reports 1000 token0 per block number; block 30 is only served at latest.
func (f *fakeReader) TVLAt(_ context.Context, pool model.Pool, block uint64) (dex.TVL, error) {
	if f.tvlErr != nil {
		return dex.TVL{}, f.tvlErr
	}
	source := dex.TVLAtBlock
	if block == 30 {
		source = dex.TVLAtLatest
	}
	return dex.TVL{
		Token0: decimal.NewFromInt(int64(block) * 1000),
		Token1: decimal.RequireFromString("12.5"),
		Source: source,
	}, nil
}

func TestTickWindow(t *testing.T) {
	swaps := []model.SwapEvent{{Tick: 15}, {Tick: 25}}
	lower, upper := TickWindow(10, swaps, 10, 1, 1)
	assert.Equal(t, int32(0), lower)
	assert.Equal(t, int32(30), upper)

	lower, upper = TickWindow(10, nil, 10, 2, 2)
	assert.Equal(t, int32(-10), lower)
	assert.Equal(t, int32(30), upper)

	lower, upper = TickWindow(887270, nil, 10, 0, 5)
	assert.Equal(t, int32(887270), lower)
	assert.Equal(t, int32(887270), upper)
}

func TestBlockFees(t *testing.T) {
	swaps := []model.SwapEvent{
		{Amount0: decimal.NewFromInt(1000), Amount1: decimal.NewFromInt(-2)},
		{Amount0: decimal.NewFromInt(-10), Amount1: decimal.NewFromInt(20)},
	}
	fee0, fee1 := BlockFees(swaps, 500)
	assert.InDelta(t, 0.5, fee0, 1e-12)
	assert.InDelta(t, 0.01, fee1, 1e-12)
}

func TestCollectorStoresSnapshots(t *testing.T) {
	sink := &memorySink{swaps: []model.SwapEvent{
		{PoolAddress: testPool, BlockNumber: 30, Tick: 25, Amount0: decimal.NewFromInt(-10), Amount1: decimal.NewFromInt(20)},
		{PoolAddress: testPool, BlockNumber: 20, Tick: 15, Amount0: decimal.NewFromInt(1000), Amount1: decimal.NewFromInt(-2)},
		{PoolAddress: testPool, BlockNumber: 10, Tick: 15, Amount0: decimal.NewFromInt(1000), Amount1: decimal.NewFromInt(-2)},
	}}
	reader := &fakeReader{tick: 15, liquidity: 100, ticks: map[int32]int64{0: 40, 20: -30}}
	state := memoryState{StateName(snapshotJob, testPool): 10}
	m := metrics.New(prometheus.NewRegistry())

	collector, err := NewCollector(SnapshotConfig{
		FromBlock:   0,
		ToBlock:     100,
		LowerRange:  1,
		UpperRange:  1,
		Concurrency: 2,
		BatchSize:   1,
		Resume:      true,
	}, testPoolModel(), sink, reader, sink, state, m, nil)
	require.NoError(t, err)

	stored, err := collector.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, uint64(30), state[StateName(snapshotJob, testPool)])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsStored))

	require.Len(t, sink.states, 2)
	assert.Equal(t, uint64(20), sink.states[0].BlockNumber)
	assert.Equal(t, uint64(30), sink.states[1].BlockNumber)
	assert.InDelta(t, 0.5, sink.states[0].FeesToken0, 1e-12)
	assert.InDelta(t, 0.01, sink.states[1].FeesToken1, 1e-12)
	assert.Equal(t, "100", sink.states[0].Liquidity.String())
	assert.InDelta(t, 1/math.Pow(1.0001, 15), sink.states[0].Token0Price, 1e-9)
	assert.Equal(t, 20000.0, sink.states[0].TVLToken0)
	assert.Equal(t, 12.5, sink.states[0].TVLToken1)
	assert.Equal(t, 30000.0, sink.states[1].TVLToken0)

	// Block 30 swapped into bucket 20, so its window is [0, 30].
	snap := sink.snapshots[1]
	require.Len(t, snap.Ticks, 4)
	want := map[int32]string{0: "100", 10: "100", 20: "70", 30: "70"}
	for _, tick := range snap.Ticks {
		assert.Equal(t, want[tick.TickIdx], tick.LiquidityActive.String(), "tick %d", tick.TickIdx)
	}

	// Block 20 only saw bucket 10, so its window is [0, 20].
	assert.Len(t, sink.snapshots[0].Ticks, 3)
}

func TestCollectorFailsWhenBalancesUnavailable(t *testing.T) {
	sink := &memorySink{swaps: []model.SwapEvent{
		{PoolAddress: testPool, BlockNumber: 20, Tick: 15, Amount0: decimal.NewFromInt(1000), Amount1: decimal.NewFromInt(-2)},
	}}
	reader := &fakeReader{tick: 15, liquidity: 100, tvlErr: errors.New("execution reverted")}

	collector, err := NewCollector(SnapshotConfig{ToBlock: 100}, testPoolModel(), sink, reader, sink, nil, nil, nil)
	require.NoError(t, err)

	stored, err := collector.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, stored)
	assert.Empty(t, sink.states)
}

func TestCollectorRejectsBadConfig(t *testing.T) {
	sink := &memorySink{}
	_, err := NewCollector(SnapshotConfig{FromBlock: 10, ToBlock: 5}, testPoolModel(), sink, &fakeReader{}, sink, nil, nil, nil)
	require.Error(t, err)

	_, err = NewCollector(SnapshotConfig{ToBlock: 5, LowerRange: -1}, testPoolModel(), sink, &fakeReader{}, sink, nil, nil, nil)
	require.Error(t, err)
}

type fakeHistory struct {
	changes []model.LiquidityChange
	ranges  []BlockRange
}

func (f *fakeHistory) LiquidityChanges(_ context.Context, _ *big.Int, from, to uint64) ([]model.LiquidityChange, error) {
	f.ranges = append(f.ranges, BlockRange{From: from, To: to})
	var out []model.LiquidityChange
	for _, c := range f.changes {
		if c.BlockNumber >= from && c.BlockNumber <= to {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestFetchLiquidityHistory(t *testing.T) {
	source := &fakeHistory{changes: []model.LiquidityChange{
		{BlockNumber: 250, LogIndex: 1, LiquidityDelta: big.NewInt(-5)},
		{BlockNumber: 100, LogIndex: 4, LiquidityDelta: big.NewInt(10)},
		{BlockNumber: 250, LogIndex: 0, LiquidityDelta: big.NewInt(3)},
	}}

	history, err := FetchLiquidityHistory(context.Background(), source, big.NewInt(1), 100, 299, 100, RetryPolicy{}, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(100), history[0].BlockNumber)
	assert.Equal(t, uint64(0), history[1].LogIndex)
	assert.Equal(t, "-5", history[2].LiquidityDelta.String())
	assert.Len(t, source.ranges, 2)
}
