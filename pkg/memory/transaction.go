package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/semem-store/pkg/sparql"
)

// Undo statements must still run when the failure that triggered them was
// a cancelled or expired context.
const rollbackTimeout = 30 * time.Second

// InTransaction reports whether a transaction is active.
func (store *SPARQLStore) InTransaction() bool {
	store.txMu.Lock()
	defer store.txMu.Unlock()

	return store.inTransaction
}

// BeginTransaction snapshots the history graph so that a later rollback can
// restore it. Statements inside the transaction run eagerly; there is no
// isolation from other users of the store.
func (store *SPARQLStore) BeginTransaction(ctx context.Context) error {
	store.txMu.Lock()
	if store.inTransaction {
		store.txMu.Unlock()
		return &TransactionConflictError{}
	}
	store.inTransaction = true
	store.snapshotGraph = ""
	store.txEpoch++
	epoch := store.txEpoch
	store.txMu.Unlock()

	snapshot := fmt.Sprintf("%s/snapshot/%s", store.graphName, uuid.NewString())
	statement := fmt.Sprintf("COPY SILENT %s TO %s", sparql.IRI(store.graphName), sparql.IRI(snapshot))

	// On failure the automatic rollback has already cleared the flag, and
	// with no snapshot recorded it has nothing to restore.
	if _, err := store.querier.ExecuteSparqlQuery(ctx, statement, store.endpoint.Update); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// A failing call elsewhere may have ended this transaction while COPY
	// ran. Its rollback found no snapshot, so the copy is dropped here.
	store.txMu.Lock()
	current := store.inTransaction && store.txEpoch == epoch
	if current {
		store.snapshotGraph = snapshot
	}
	store.txMu.Unlock()

	if !current {
		drop := "DROP SILENT GRAPH " + sparql.IRI(snapshot)
		if _, err := store.querier.ExecuteSparqlQuery(context.WithoutCancel(ctx), drop, store.endpoint.Update); err != nil {
			store.logger.Warn("failed to drop orphaned snapshot", "snapshot", snapshot, "error", err)
		}
		return ErrTransactionEnded
	}

	store.logger.Debug("transaction started", "graph", store.graphName, "snapshot", snapshot)
	return nil
}

// CommitTransaction ends the active transaction. Its statements have already
// been applied, so the only work left is discarding the snapshot.
func (store *SPARQLStore) CommitTransaction(ctx context.Context) error {
	snapshot, active := store.endTransaction()
	if !active {
		return ErrNoTransaction
	}

	if snapshot != "" {
		statement := "DROP SILENT GRAPH " + sparql.IRI(snapshot)
		if _, err := store.querier.ExecuteSparqlQuery(ctx, statement, store.endpoint.Update); err != nil {
			store.logger.Warn("failed to drop transaction snapshot", "snapshot", snapshot, "error", err)
		}
	}

	store.logger.Debug("transaction committed", "graph", store.graphName)
	return nil
}

// RollbackTransaction restores the graph from the snapshot taken at begin.
// The transaction flag is cleared before the undo runs, whatever its
// outcome. Without an active transaction this is a no-op.
func (store *SPARQLStore) RollbackTransaction(ctx context.Context) error {
	snapshot, active := store.endTransaction()
	if !active || snapshot == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	graph := sparql.IRI(store.graphName)
	saved := sparql.IRI(snapshot)
	undo := fmt.Sprintf(
		"DROP SILENT GRAPH %s ;\nCREATE SILENT GRAPH %s ;\nADD SILENT %s TO %s ;\nDROP SILENT GRAPH %s",
		graph, graph, saved, graph, saved,
	)

	if _, err := store.querier.ExecuteSparqlQuery(ctx, undo, store.endpoint.Update); err != nil {
		store.logger.Error("rollback failed, snapshot kept for manual recovery", "graph", store.graphName, "snapshot", snapshot, "error", err)
		return fmt.Errorf("failed to roll back to snapshot %s: %w", snapshot, err)
	}

	store.logger.Info("transaction rolled back", "graph", store.graphName)
	return nil
}

// WithTransaction runs fn inside a transaction, committing when it returns
// nil and rolling back otherwise. fn's error is returned unchanged.
func (store *SPARQLStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := store.BeginTransaction(ctx); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		if rbErr := store.RollbackTransaction(ctx); rbErr != nil {
			store.logger.Warn("rollback after failed transaction", "error", rbErr, "cause", err)
		}
		return err
	}

	return store.CommitTransaction(ctx)
}

// abort rolls back an active transaction after cause and returns cause. A
// failing rollback is logged, never returned in place of cause.
func (store *SPARQLStore) abort(ctx context.Context, cause error) error {
	if !store.InTransaction() {
		return cause
	}

	if err := store.RollbackTransaction(ctx); err != nil {
		store.logger.Warn("automatic rollback failed", "error", err, "cause", cause)
	}

	return cause
}

func (store *SPARQLStore) endTransaction() (snapshot string, active bool) {
	store.txMu.Lock()
	defer store.txMu.Unlock()

	snapshot, active = store.snapshotGraph, store.inTransaction
	store.inTransaction = false
	store.snapshotGraph = ""

	return snapshot, active
}
