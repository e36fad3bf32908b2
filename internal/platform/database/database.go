package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database はデータベース接続プールを保持します
type Database struct {
	Pool *pgxpool.Pool
}

// New は接続文字列からデータベース接続を作成します
func New(ctx context.Context, url string) (*Database, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

// Transactions はこの接続プール上の TransactionProvider を返します
func (db *Database) Transactions() *TransactionProvider {
	return NewTransactionProvider(db.Pool)
}

// Close はデータベース接続を閉じます
func (db *Database) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}
