package service

import "context"

// TransactionManager runs fn in one database transaction. Repositories
// called with the ctx passed to fn join it. A nested call runs in a
// savepoint, so its failure only undoes the inner work.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
