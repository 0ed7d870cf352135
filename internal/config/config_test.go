package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPool = "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flair.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func indexFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("index", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("pool", "", "")
	flags.Uint64("from", 0, "")
	flags.Uint64("to", 0, "")
	flags.Uint64("batch-size", 2000, "")
	return flags
}

func TestLoadIndexPrecedence(t *testing.T) {
	path := writeConfig(t, `
rpc: http://file
pool: `+testPool+`
from: 100
to: 900
batch-size: 50
`)
	t.Setenv("FLAIR_FROM", "200")
	t.Setenv("FLAIR_BATCH_SIZE", "75")

	flags := indexFlags()
	require.NoError(t, flags.Parse([]string{"--batch-size", "10"}))

	cfg, err := LoadIndex(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "http://file", cfg.RPCURL)
	assert.Equal(t, uint64(200), cfg.FromBlock, "env beats file")
	assert.Equal(t, uint64(900), cfg.ToBlock)
	assert.Equal(t, uint64(10), cfg.BatchSize, "flag beats env")
	assert.Equal(t, "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640", cfg.Pool)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff)
	assert.True(t, cfg.Resume)
}

func TestLoadIndexValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing rpc", "pool: " + testPool},
		{"bad pool", "rpc: http://x\npool: nope"},
		{"inverted range", "rpc: http://x\npool: " + testPool + "\nfrom: 10\nto: 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadIndex(writeConfig(t, tt.body), nil)
			require.Error(t, err)
		})
	}
}

func TestLoadCompute(t *testing.T) {
	path := writeConfig(t, `
pool: `+testPool+`
from: 17590000
to: 17600000
amount: "1000.5"
token1: true
strategy: estimate
mode: In-Range
`)
	cfg, err := LoadCompute(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeInRange, cfg.Mode)
	assert.Equal(t, "1000.5", cfg.Amount.String())
	assert.True(t, cfg.UseToken1)
	assert.Equal(t, "estimate", cfg.Strategy)
	assert.Equal(t, 2000, cfg.BatchSize)
	assert.Equal(t, 12*time.Second, cfg.BlockInterval)
	assert.Equal(t, int32(1), cfg.LowerRange)
	assert.Equal(t, "./data/flair.db", cfg.Store)

	_, err = LoadCompute(writeConfig(t, "pool: "+testPool+"\namount: -1"), nil)
	require.Error(t, err)
	_, err = LoadCompute(writeConfig(t, "pool: "+testPool+"\namount: 1\nmode: sideways"), nil)
	require.Error(t, err)
}

func TestLoadSnapshotAndBenchmarkDefaults(t *testing.T) {
	snap, err := LoadSnapshot(writeConfig(t, "rpc: http://x\npool: "+testPool+"\nto: 10"), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), snap.LowerRange)
	assert.Equal(t, int32(2), snap.UpperRange)
	assert.Equal(t, 8, snap.Concurrency)

	_, err = LoadSnapshot(writeConfig(t, "rpc: http://x\npool: "+testPool), nil)
	require.Error(t, err, "to is required")

	bench, err := LoadBenchmark(writeConfig(t, "rpc: http://x\ntoken-id: \"42\"\nto: 100"), nil)
	require.NoError(t, err)
	assert.Equal(t, "0xc36442b4a4522e871399cd717abdd847ab11fe88", bench.PositionManager)
	assert.Equal(t, "exact", bench.Strategy)
	assert.Equal(t, uint64(10000), bench.LogBatchSize)
	assert.Equal(t, []string{"42"}, bench.TokenIDs)

	pc, err := LoadPool(writeConfig(t, "rpc: http://x\npool: "+testPool+"\nstore: postgres://localhost/flair"), nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/flair", pc.Store)
}

func TestBenchmarkTokenIDs(t *testing.T) {
	bench, err := LoadBenchmark(writeConfig(t, "rpc: http://x\ntoken-id: [101, \"202\", 101]\nto: 100"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "202"}, bench.TokenIDs)

	t.Setenv("FLAIR_TOKEN_ID", "7, 8,9")
	bench, err = LoadBenchmark(writeConfig(t, "rpc: http://x\nto: 100"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8", "9"}, bench.TokenIDs)

	flags := pflag.NewFlagSet("benchmark", pflag.ContinueOnError)
	flags.StringSlice("token-id", nil, "")
	require.NoError(t, flags.Parse([]string{"--token-id", "5", "--token-id", "6,7"}))
	bench, err = LoadBenchmark(writeConfig(t, "rpc: http://x\nto: 100"), flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6", "7"}, bench.TokenIDs)

	t.Setenv("FLAIR_TOKEN_ID", "12,abc")
	_, err = LoadBenchmark(writeConfig(t, "rpc: http://x\nto: 100"), nil)
	require.Error(t, err)
}

func TestMissingConfigFileIsTolerated(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("FLAIR_RPC", "http://env")
	t.Setenv("FLAIR_POOL", testPool)

	cfg, err := LoadPool("", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://env", cfg.RPCURL)
}
