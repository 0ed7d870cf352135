package ticks

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairScope/internal/model"
)

func bi(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad int %q", s)
	return v
}

func sampleTicks(t *testing.T) []model.Tick {
	return []model.Tick{
		{TickIdx: 201000, LiquidityGross: bi(t, "34158139160655377"), LiquidityNet: bi(t, "34078984097905235")},
		{TickIdx: 201010, LiquidityGross: bi(t, "191988064761683015"), LiquidityNet: bi(t, "-176685128548466329")},
		{TickIdx: 201020, LiquidityGross: bi(t, "17553750124684126"), LiquidityNet: bi(t, "-17527251614786158")},
		{TickIdx: 201030, LiquidityGross: bi(t, "8196176273614461"), LiquidityNet: bi(t, "-1336789995980745")},
	}
}

func TestReconstructSample(t *testing.T) {
	sparse := sampleTicks(t)
	liquidity := bi(t, "25644347264742834619")
	active := model.ProcessedTick{Tick: sparse[1], LiquidityActive: liquidity}

	got, err := Reconstruct(active, sparse, 10)
	require.NoError(t, err)
	require.Len(t, got, 4)

	want := map[int32]*big.Int{
		201000: new(big.Int).Sub(liquidity, bi(t, "-176685128548466329")),
		201010: liquidity,
		201020: new(big.Int).Add(liquidity, bi(t, "-17527251614786158")),
	}
	want[201030] = new(big.Int).Add(want[201020], bi(t, "-1336789995980745"))

	for i, tick := range got {
		if i > 0 {
			assert.Less(t, got[i-1].TickIdx, tick.TickIdx, "ascending order")
		}
		assert.GreaterOrEqual(t, tick.LiquidityActive.Sign(), 0)
		assert.Equal(t, want[tick.TickIdx].String(), tick.LiquidityActive.String(), "tick %d", tick.TickIdx)
	}

	// Input must not be mutated.
	assert.Equal(t, "25644347264742834619", liquidity.String())
	assert.Equal(t, "-176685128548466329", sparse[1].LiquidityNet.String())
}

func TestReconstructFillsActiveFromSparse(t *testing.T) {
	sparse := sampleTicks(t)
	active := model.ProcessedTick{
		Tick:            model.Tick{TickIdx: 201010},
		LiquidityActive: bi(t, "25644347264742834619"),
	}

	got, err := Reconstruct(active, sparse, 10)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "-176685128548466329", got[1].LiquidityNet.String())
	assert.Equal(t, "25821032393291300948", got[0].LiquidityActive.String())
}

func TestReconstructWindowDense(t *testing.T) {
	sparse := []model.Tick{
		{TickIdx: 120, LiquidityGross: big.NewInt(50), LiquidityNet: big.NewInt(-50)},
		{TickIdx: 60, LiquidityGross: big.NewInt(30), LiquidityNet: big.NewInt(30)},
	}
	active := model.ProcessedTick{
		Tick:            model.Tick{TickIdx: 100, LiquidityGross: big.NewInt(0), LiquidityNet: big.NewInt(0)},
		LiquidityActive: big.NewInt(200),
	}

	got, err := ReconstructWindow(active, sparse, 10, 50, 140)
	require.NoError(t, err)

	idx := make([]int32, 0, len(got))
	liq := make([]string, 0, len(got))
	for _, tick := range got {
		idx = append(idx, tick.TickIdx)
		liq = append(liq, tick.LiquidityActive.String())
	}
	assert.Equal(t, []int32{50, 60, 70, 80, 90, 100, 110, 120, 130, 140}, idx)
	// Crossing 60 downward removes its +30; crossing 120 upward applies -50.
	assert.Equal(t, []string{"170", "200", "200", "200", "200", "200", "200", "150", "150", "150"}, liq)
}

func TestReconstructNegativeLiquidity(t *testing.T) {
	sparse := []model.Tick{
		{TickIdx: 10, LiquidityGross: big.NewInt(500), LiquidityNet: big.NewInt(-500)},
	}
	active := model.ProcessedTick{
		Tick:            model.Tick{TickIdx: 0, LiquidityGross: big.NewInt(0), LiquidityNet: big.NewInt(0)},
		LiquidityActive: big.NewInt(100),
	}

	_, err := Reconstruct(active, sparse, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataIntegrity))

	sparse = []model.Tick{{TickIdx: -10, LiquidityGross: big.NewInt(1), LiquidityNet: big.NewInt(1)}}
	active.LiquidityNet = big.NewInt(150)
	_, err = Reconstruct(active, sparse, 10)
	require.ErrorIs(t, err, model.ErrDataIntegrity)
}

func TestReconstructStopsAtTickBounds(t *testing.T) {
	active := model.ProcessedTick{
		Tick:            model.Tick{TickIdx: 887220, LiquidityGross: big.NewInt(0), LiquidityNet: big.NewInt(0)},
		LiquidityActive: big.NewInt(1),
	}

	got, err := ReconstructWindow(active, nil, 60, 887100, 890000)
	require.NoError(t, err)
	last := got[len(got)-1]
	assert.LessOrEqual(t, last.TickIdx, model.MaxTick)
	assert.Equal(t, int32(887220), got[2].TickIdx)
	assert.Len(t, got, 3)
}

func TestReconstructInvalidInput(t *testing.T) {
	active := model.ProcessedTick{Tick: model.Tick{TickIdx: 5}, LiquidityActive: big.NewInt(1)}
	_, err := Reconstruct(active, nil, 10)
	require.Error(t, err)

	active.TickIdx = 0
	_, err = Reconstruct(active, nil, 0)
	require.Error(t, err)
}
