// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	// Register the SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS compact_blocks (
	height INTEGER PRIMARY KEY,
	hash BLOB NOT NULL,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS chain_states (
	height INTEGER PRIMARY KEY,
	data BLOB NOT NULL
);
`

// SQLiteBlockCache is a Source backed by a SQLite database of compact
// blocks. It is filled by a downloader through PutChainState and PutBlocks
// and read by the wallet's syncer.
type SQLiteBlockCache struct {
	db *sql.DB
}

// A compile-time assertion to ensure that SQLiteBlockCache meets the Source
// interface.
var _ Source = (*SQLiteBlockCache)(nil)

// OpenSQLiteBlockCache opens or creates the block cache at path.
func OpenSQLiteBlockCache(ctx context.Context,
	path string) (*SQLiteBlockCache, error) {

	dsn := "file:" + path + "?mode=rwc&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create block cache "+
			"tables: %w", err)
	}

	log.Infof("Opened block cache %s", path)

	return &SQLiteBlockCache{db: db}, nil
}

// Close closes the underlying database.
func (c *SQLiteBlockCache) Close() error {
	return c.db.Close()
}

// PutChainState stores a chain state, typically the state below the first
// block the cache will hold.
func (c *SQLiteBlockCache) PutChainState(ctx context.Context,
	s *ChainState) error {

	data, err := s.Bytes()
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, "INSERT OR REPLACE INTO chain_states "+
		"(height, data) VALUES (?, ?)", s.Height, data)

	return err
}

// PutBlocks stores a contiguous run of blocks along with the chain state
// after each of them. The chain state below the first block must already
// be stored. Either every block is stored or none is.
func (c *SQLiteBlockCache) PutBlocks(ctx context.Context,
	blocks []*CompactBlock) error {

	if len(blocks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	state, err := queryChainState(ctx, tx, blocks[0].Height-1)
	if err != nil {
		return err
	}

	for _, b := range blocks {
		state, err = state.Next(b)
		if err != nil {
			return err
		}

		blockData, err := b.Bytes()
		if err != nil {
			return err
		}
		stateData, err := state.Bytes()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO "+
			"compact_blocks (height, hash, data) VALUES (?, ?, ?)",
			b.Height, b.Hash[:], blockData)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO "+
			"chain_states (height, data) VALUES (?, ?)",
			b.Height, stateData)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Debugf("Cached blocks [%d, %d]", blocks[0].Height,
		blocks[len(blocks)-1].Height)

	return nil
}

// Truncate removes every block and chain state above height.
func (c *SQLiteBlockCache) Truncate(ctx context.Context, height uint32) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, q := range []string{
		"DELETE FROM compact_blocks WHERE height > ?",
		"DELETE FROM chain_states WHERE height > ?",
	} {
		if _, err := tx.ExecContext(ctx, q, height); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// WithBlocks streams cached blocks in height order.
func (c *SQLiteBlockCache) WithBlocks(ctx context.Context,
	from fn.Option[uint32], limit fn.Option[int],
	f func(*CompactBlock) error) error {

	// A negative limit is no limit in SQLite.
	rows, err := c.db.QueryContext(ctx, "SELECT data FROM compact_blocks "+
		"WHERE height >= ? ORDER BY height LIMIT ?", from.UnwrapOr(0),
		limit.UnwrapOr(-1))
	if err != nil {
		return err
	}
	defer rows.Close()

	// Blocks are decoded before f runs so that f never executes while
	// the only connection is busy with the query.
	var blocks []*CompactBlock
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		b, err := DecodeCompactBlock(data)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(b); err != nil {
			return err
		}
	}

	return nil
}

// ChainState returns the stored state at height.
func (c *SQLiteBlockCache) ChainState(ctx context.Context,
	height uint32) (*ChainState, error) {

	return queryChainState(ctx, c.db, height)
}

// BestHeight returns the height of the highest cached block.
func (c *SQLiteBlockCache) BestHeight(ctx context.Context) (uint32, error) {
	var height sql.NullInt64
	err := c.db.QueryRowContext(ctx, "SELECT MAX(height) FROM "+
		"compact_blocks").Scan(&height)
	if err != nil {
		return 0, err
	}
	if !height.Valid {
		return 0, ErrNoBlocks
	}

	return uint32(height.Int64), nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string,
		args ...any) *sql.Row
}

func queryChainState(ctx context.Context, q queryer,
	height uint32) (*ChainState, error) {

	var data []byte
	err := q.QueryRowContext(ctx, "SELECT data FROM chain_states WHERE "+
		"height = ?", height).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: height %d", ErrChainStateNotFound,
			height)
	}
	if err != nil {
		return nil, err
	}

	return DecodeChainState(data)
}
