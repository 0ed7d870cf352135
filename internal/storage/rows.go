package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"flairScope/internal/model"
)

// RowSink receives the per-block rows of a FLAIR run.
type RowSink interface {
	Write(row model.BlockRow) error
	Close() error
}

var csvHeader = []string{
	"flair",
	"totalFee0",
	"totalFee1",
	"poolFee0",
	"poolFee1",
	"blockNumber",
	"positionValueToken0",
	"token0Price",
}

// DefaultRowPath is csv/flair/<pool>/<from>_<to>_<liquidity>.csv.
func DefaultRowPath(pool string, fromBlock, toBlock uint64, liquidity string) string {
	return filepath.Join("csv", "flair", model.AddressKey(pool), fmt.Sprintf("%d_%d_%s.csv", fromBlock, toBlock, liquidity))
}

// OpenRowSink truncates path and picks the format from its extension:
// .jsonl and .json write JSON lines, anything else CSV.
func OpenRowSink(path string) (RowSink, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		buf := bufio.NewWriter(file)
		return &jsonlSink{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
	default:
		w := csv.NewWriter(file)
		if err := w.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		return &csvSink{file: file, w: w}, nil
	}
}

type csvSink struct {
	file *os.File
	w    *csv.Writer
}

func (s *csvSink) Write(row model.BlockRow) error {
	value := ""
	if row.PositionValueToken0 != nil {
		value = formatFloat(*row.PositionValueToken0)
	}
	record := []string{
		formatFloat(row.Flair),
		formatFloat(row.TotalFee0),
		formatFloat(row.TotalFee1),
		formatFloat(row.PoolFee0),
		formatFloat(row.PoolFee1),
		strconv.FormatUint(row.BlockNumber, 10),
		value,
		formatFloat(row.Token0Price),
	}
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

func (s *csvSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.file.Close()
}

type jsonlSink struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func (s *jsonlSink) Write(row model.BlockRow) error {
	if err := s.enc.Encode(row); err != nil {
		return fmt.Errorf("write json row: %w", err)
	}
	return nil
}

func (s *jsonlSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return s.file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
