package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxFunc функция, выполняемая в транзакции
type TxFunc func(tx pgx.Tx) error

// WithTransaction выполняет функцию в транзакции с уровнем изоляции по умолчанию
func WithTransaction(ctx context.Context, db DB, fn TxFunc) error {
	_, err := WithTransactionResult(ctx, db, func(tx pgx.Tx) (struct{}, error) {
		return struct{}{}, fn(tx)
	})
	return err
}

// WithTransactionResult выполняет функцию в транзакции с возвратом результата
func WithTransactionResult[T any](ctx context.Context, db DB, fn func(tx pgx.Tx) (T, error)) (T, error) {
	return WithTransactionOptions(ctx, db, pgx.TxOptions{}, fn)
}

// WithTransactionOptions выполняет функцию в транзакции с заданными опциями
func WithTransactionOptions[T any](ctx context.Context, db DB, opts pgx.TxOptions, fn func(tx pgx.Tx) (T, error)) (T, error) {
	var result T

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // best effort on panic
			panic(p)
		}
	}()

	result, err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return result, fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return result, err
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
