// Package sqlite is a single-file snapshot cache backed by gorm and the
// pure-Go glebarez SQLite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"flairScope/internal/model"
	"flairScope/internal/storage"
)

type poolRow struct {
	Address     string `gorm:"column:pool_address;primaryKey"`
	Token0      string
	Token1      string
	FeeTier     int64
	Decimals0   int16
	Decimals1   int16
	TickSpacing int32
	Name        string
}

func (poolRow) TableName() string { return "pools" }

type swapRow struct {
	PoolAddress string `gorm:"primaryKey"`
	BlockNumber int64  `gorm:"primaryKey"`
	TxHash      string `gorm:"primaryKey"`
	LogIndex    int64  `gorm:"primaryKey"`
	Tick        int32
	Amount0     string
	Amount1     string
}

func (swapRow) TableName() string { return "swaps" }

type poolStateRow struct {
	PoolAddress  string `gorm:"primaryKey"`
	BlockNumber  int64  `gorm:"primaryKey"`
	Tick         int32
	SqrtPriceX96 string `gorm:"column:sqrt_price_x96"`
	Liquidity    string
	Token0Price  float64 `gorm:"column:token0_price"`
	Token1Price  float64 `gorm:"column:token1_price"`
	FeesToken0   float64 `gorm:"column:fees_token0"`
	FeesToken1   float64 `gorm:"column:fees_token1"`
	TVLToken0    float64 `gorm:"column:tvl_token0;not null;default:0"`
	TVLToken1    float64 `gorm:"column:tvl_token1;not null;default:0"`
}

func (poolStateRow) TableName() string { return "pool_states" }

type tickRow struct {
	PoolAddress     string `gorm:"primaryKey"`
	BlockNumber     int64  `gorm:"primaryKey"`
	TickIdx         int32  `gorm:"primaryKey"`
	LiquidityGross  string
	LiquidityNet    string
	LiquidityActive string
}

func (tickRow) TableName() string { return "tick_snapshots" }

type stateRow struct {
	Name               string `gorm:"primaryKey"`
	LastProcessedBlock int64
	UpdatedAt          time.Time
}

func (stateRow) TableName() string { return "indexer_state" }

var _ storage.Store = (*Store)(nil)

// Store is a gorm-backed local store.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlitedriver.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&poolRow{}, &swapRow{}, &poolStateRow{}, &tickRow{}, &stateRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	rows := make([]poolRow, 0, len(pools))
	for _, p := range pools {
		rows = append(rows, poolRow{
			Address:     model.AddressKey(p.Address),
			Token0:      model.AddressKey(p.Token0),
			Token1:      model.AddressKey(p.Token1),
			FeeTier:     int64(p.FeeTier),
			Decimals0:   int16(p.Decimals0),
			Decimals1:   int16(p.Decimals1),
			TickSpacing: p.TickSpacing,
			Name:        p.Name,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

func (s *Store) GetPool(ctx context.Context, address string) (model.Pool, error) {
	var row poolRow
	err := s.db.WithContext(ctx).Where("pool_address = ?", model.AddressKey(address)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Pool{}, fmt.Errorf("pool %s: %w", address, model.ErrNotFound)
		}
		return model.Pool{}, err
	}
	return model.Pool{
		Address:     row.Address,
		Token0:      row.Token0,
		Token1:      row.Token1,
		FeeTier:     uint32(row.FeeTier),
		Decimals0:   uint8(row.Decimals0),
		Decimals1:   uint8(row.Decimals1),
		TickSpacing: row.TickSpacing,
		Name:        row.Name,
	}, nil
}

func (s *Store) UpsertSwaps(ctx context.Context, swaps []model.SwapEvent) error {
	if len(swaps) == 0 {
		return nil
	}
	rows := make([]swapRow, 0, len(swaps))
	for _, sw := range swaps {
		rows = append(rows, swapRow{
			PoolAddress: model.AddressKey(sw.PoolAddress),
			BlockNumber: int64(sw.BlockNumber),
			TxHash:      sw.TxHash,
			LogIndex:    int64(sw.LogIndex),
			Tick:        sw.Tick,
			Amount0:     sw.Amount0.String(),
			Amount1:     sw.Amount1.String(),
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, 500).Error
}

func (s *Store) GetSwapsInRange(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.SwapEvent, error) {
	var rows []swapRow
	err := s.db.WithContext(ctx).
		Where("pool_address = ? AND block_number BETWEEN ? AND ?", model.AddressKey(pool), int64(fromBlock), int64(toBlock)).
		Order("block_number, log_index").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.SwapEvent, 0, len(rows))
	for _, r := range rows {
		amount0, err := decimal.NewFromString(r.Amount0)
		if err != nil {
			return nil, fmt.Errorf("swap amount0 at block %d: %w", r.BlockNumber, err)
		}
		amount1, err := decimal.NewFromString(r.Amount1)
		if err != nil {
			return nil, fmt.Errorf("swap amount1 at block %d: %w", r.BlockNumber, err)
		}
		out = append(out, model.SwapEvent{
			PoolAddress: r.PoolAddress,
			BlockNumber: uint64(r.BlockNumber),
			TxHash:      r.TxHash,
			LogIndex:    uint64(r.LogIndex),
			Tick:        r.Tick,
			Amount0:     amount0,
			Amount1:     amount1,
		})
	}
	return out, nil
}

func (s *Store) UpsertPoolStates(ctx context.Context, states []model.PoolState) error {
	if len(states) == 0 {
		return nil
	}
	rows := make([]poolStateRow, 0, len(states))
	for _, st := range states {
		rows = append(rows, poolStateRow{
			PoolAddress:  model.AddressKey(st.PoolAddress),
			BlockNumber:  int64(st.BlockNumber),
			Tick:         st.Tick,
			SqrtPriceX96: bigString(st.SqrtPriceX96),
			Liquidity:    bigString(st.Liquidity),
			Token0Price:  st.Token0Price,
			Token1Price:  st.Token1Price,
			FeesToken0:   st.FeesToken0,
			FeesToken1:   st.FeesToken1,
			TVLToken0:    st.TVLToken0,
			TVLToken1:    st.TVLToken1,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, 500).Error
}

// UpsertTickSnapshots replaces the tick rows of every (pool, block) given.
func (s *Store) UpsertTickSnapshots(ctx context.Context, snapshots []model.TickSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, snap := range snapshots {
			pool := model.AddressKey(snap.PoolAddress)
			if err := tx.Where("pool_address = ? AND block_number = ?", pool, int64(snap.BlockNumber)).Delete(&tickRow{}).Error; err != nil {
				return err
			}
			if len(snap.Ticks) == 0 {
				continue
			}
			rows := make([]tickRow, 0, len(snap.Ticks))
			for _, t := range snap.Ticks {
				rows = append(rows, tickRow{
					PoolAddress:     pool,
					BlockNumber:     int64(snap.BlockNumber),
					TickIdx:         t.TickIdx,
					LiquidityGross:  bigString(t.LiquidityGross),
					LiquidityNet:    bigString(t.LiquidityNet),
					LiquidityActive: bigString(t.LiquidityActive),
				})
			}
			if err := tx.CreateInBatches(&rows, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetPoolStateBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.PoolState, error) {
	var rows []poolStateRow
	err := s.db.WithContext(ctx).
		Where("pool_address = ? AND block_number BETWEEN ? AND ?", model.AddressKey(pool), int64(fromBlock), int64(toBlock)).
		Order("block_number").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.PoolState, 0, len(rows))
	for _, r := range rows {
		sqrtPrice, err := parseBig(r.SqrtPriceX96)
		if err != nil {
			return nil, fmt.Errorf("pool state %d sqrt price: %w", r.BlockNumber, err)
		}
		liquidity, err := parseBig(r.Liquidity)
		if err != nil {
			return nil, fmt.Errorf("pool state %d liquidity: %w", r.BlockNumber, err)
		}
		out = append(out, model.PoolState{
			PoolAddress:  r.PoolAddress,
			BlockNumber:  uint64(r.BlockNumber),
			Tick:         r.Tick,
			SqrtPriceX96: sqrtPrice,
			Liquidity:    liquidity,
			Token0Price:  r.Token0Price,
			Token1Price:  r.Token1Price,
			FeesToken0:   r.FeesToken0,
			FeesToken1:   r.FeesToken1,
			TVLToken0:    r.TVLToken0,
			TVLToken1:    r.TVLToken1,
		})
	}
	return out, nil
}

func (s *Store) GetTicksBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) (map[uint64][]model.ProcessedTick, error) {
	var rows []tickRow
	err := s.db.WithContext(ctx).
		Where("pool_address = ? AND block_number BETWEEN ? AND ?", model.AddressKey(pool), int64(fromBlock), int64(toBlock)).
		Order("block_number, tick_idx").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uint64][]model.ProcessedTick)
	for _, r := range rows {
		gross, err := parseBig(r.LiquidityGross)
		if err != nil {
			return nil, fmt.Errorf("tick %d at %d: %w", r.TickIdx, r.BlockNumber, err)
		}
		net, err := parseBig(r.LiquidityNet)
		if err != nil {
			return nil, fmt.Errorf("tick %d at %d: %w", r.TickIdx, r.BlockNumber, err)
		}
		active, err := parseBig(r.LiquidityActive)
		if err != nil {
			return nil, fmt.Errorf("tick %d at %d: %w", r.TickIdx, r.BlockNumber, err)
		}
		block := uint64(r.BlockNumber)
		out[block] = append(out[block], model.ProcessedTick{
			Tick:            model.Tick{TickIdx: r.TickIdx, LiquidityGross: gross, LiquidityNet: net},
			LiquidityActive: active,
		})
	}
	return out, nil
}

func (s *Store) LastIndexedBlock(ctx context.Context, pool string) (uint64, error) {
	var block int64
	err := s.db.WithContext(ctx).Model(&poolStateRow{}).
		Where("pool_address = ?", model.AddressKey(pool)).
		Select("COALESCE(MAX(block_number), 0)").
		Scan(&block).Error
	if err != nil {
		return 0, err
	}
	return uint64(block), nil
}

func (s *Store) PoolTickAt(ctx context.Context, pool string, block uint64) (int32, error) {
	var row poolStateRow
	err := s.db.WithContext(ctx).
		Where("pool_address = ? AND block_number <= ?", model.AddressKey(pool), int64(block)).
		Order("block_number DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("pool %s tick at %d: %w", pool, block, model.ErrNotFound)
		}
		return 0, err
	}
	return row.Tick, nil
}

func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var row stateRow
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(row.LastProcessedBlock), true, nil
}

func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	row := stateRow{Name: name, LastProcessedBlock: int64(block), UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
