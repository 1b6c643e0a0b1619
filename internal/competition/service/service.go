// Package service implements the competition judging pipeline: participation
// windows, the submission ledger and the judging orchestrator.
package service

import (
	"context"
	"fmt"
	"time"

	"campusjudge/internal/common/db"
	appErr "campusjudge/pkg/errors"
)

// TimeoutConfig bounds calls to external dependencies. Zero means no extra bound.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	Storage time.Duration `yaml:"storage"`
	MQ      time.Duration `yaml:"mq"`
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}

// withTransaction runs fn in a transaction on the provider's database. Without a
// database fn runs with a nil transaction, which repositories treat as autocommit.
func withTransaction(ctx context.Context, provider db.Provider, fn func(tx db.Transaction) error) error {
	database, err := db.CurrentDatabase(provider)
	if err != nil {
		return fn(nil)
	}
	if err := database.Transaction(ctx, fn); err != nil {
		if _, ok := err.(*appErr.Error); ok {
			return err
		}
		return appErr.Wrap(fmt.Errorf("transaction failed: %w", err), appErr.TransactionFailed)
	}
	return nil
}
