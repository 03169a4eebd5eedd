package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Guard runs the availability check and reservation write of one variant.
// It is the single place where that read-then-write can be made atomic.
type Guard interface {
	Do(ctx context.Context, productID, variantKey string, fn func(ctx context.Context) error) error
}

func lockKey(productID, variantKey string) string {
	return "stock:" + productID + ":" + variantKey
}

// Unguarded runs fn without any mutual exclusion. Two checkouts racing for the
// last unit can both pass the availability check and both reserve it.
type Unguarded struct{}

func (Unguarded) Do(ctx context.Context, _, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// LocalGuard serializes reservations per variant inside one process.
type LocalGuard struct {
	locks sync.Map // map[string]*sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) Do(ctx context.Context, productID, variantKey string, fn func(ctx context.Context) error) error {
	v, _ := g.locks.LoadOrStore(lockKey(productID, variantKey), &sync.Mutex{})
	mu := v.(*sync.Mutex)

	mu.Lock()
	defer mu.Unlock()

	return fn(ctx)
}

// AdvisoryGuard serializes reservations per variant across every process
// sharing the database. Each call opens a transaction, takes a
// transaction-level advisory lock and runs fn with the transaction in its
// context, so the Postgres stores reuse the lock holder's connection instead
// of waiting for another one from the pool. The lock is released on commit or
// rollback.
type AdvisoryGuard struct {
	db *sql.DB
}

func NewAdvisoryGuard(db *sql.DB) *AdvisoryGuard {
	return &AdvisoryGuard{db: db}
}

func (g *AdvisoryGuard) Do(ctx context.Context, productID, variantKey string, fn func(ctx context.Context) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("advisory guard: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := lockKey(productID, variantKey)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory guard: lock %q: %w", key, err)
	}

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("advisory guard: commit: %w", err)
	}
	return nil
}
