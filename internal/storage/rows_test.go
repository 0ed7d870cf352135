package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairScope/internal/model"
)

func sampleRows() []model.BlockRow {
	value := 1500.5
	return []model.BlockRow{
		{BlockNumber: 100, Flair: 0.001, TotalFee0: 1.5, TotalFee1: 0, PoolFee0: 3, PoolFee1: 0, PositionValueToken0: &value, Token0Price: 2000},
		{BlockNumber: 101, Flair: 0.001, TotalFee0: 1.5, TotalFee1: 0.25, PoolFee0: 3, PoolFee1: 1, Token0Price: 2001},
	}
}

func TestCSVRowSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	sink, err := OpenRowSink(path)
	require.NoError(t, err)
	for _, row := range sampleRows() {
		require.NoError(t, sink.Write(row))
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "flair,totalFee0,totalFee1,poolFee0,poolFee1,blockNumber,positionValueToken0,token0Price", lines[0])
	assert.Equal(t, "0.001,1.5,0,3,0,100,1500.5,2000", lines[1])
	assert.Equal(t, "0.001,1.5,0.25,3,1,101,,2001", lines[2])
}

func TestJSONLRowSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	sink, err := OpenRowSink(path)
	require.NoError(t, err)
	for _, row := range sampleRows() {
		require.NoError(t, sink.Write(row))
	}
	require.NoError(t, sink.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var rows []model.BlockRow
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row model.BlockRow
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(101), rows[1].BlockNumber)
	assert.Nil(t, rows[1].PositionValueToken0)
	require.NotNil(t, rows[0].PositionValueToken0)
	assert.Equal(t, 1500.5, *rows[0].PositionValueToken0)
}

func TestJSONLFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps", "swaps.jsonl")
	file := NewJSONLFile[model.SwapEvent](path)

	require.NoError(t, file.PutBatch([]model.SwapEvent{{BlockNumber: 1, Tick: 10}}))
	require.NoError(t, file.PutBatch(nil))
	require.NoError(t, file.PutBatch([]model.SwapEvent{{BlockNumber: 2, Tick: -10}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var second model.SwapEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, int32(-10), second.Tick)
}

func TestDefaultRowPath(t *testing.T) {
	got := DefaultRowPath("0xABC", 10, 20, "1000")
	assert.Equal(t, filepath.Join("csv", "flair", "0xabc", "10_20_1000.csv"), got)
}
