package concerns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// TxState is the state of a Transaction.
type TxState string

const (
	TxActive     TxState = "active"
	TxCommitted  TxState = "committed"
	TxRolledBack TxState = "rolled_back"
)

// ErrTxClosed is returned when a committed or rolled back transaction is used.
var ErrTxClosed = errors.New("transaction closed")

// TransactionStats counts transactions by outcome.
type TransactionStats struct {
	Active     int   `json:"active"`
	Committed  int64 `json:"committed"`
	RolledBack int64 `json:"rolled_back"`
}

// TransactionManager starts transactions and tracks their outcomes.
type TransactionManager struct {
	mu         sync.Mutex
	active     map[string]*Transaction
	committed  int64
	rolledBack int64

	logger *logging.Logger
}

// NewTransactionManager creates a TransactionManager.
func NewTransactionManager(logger *logging.Logger) *TransactionManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &TransactionManager{
		active: make(map[string]*Transaction),
		logger: logger.WithComponent("transaction"),
	}
}

type txStep struct {
	name       string
	compensate func(context.Context) error
}

// Transaction is a sequence of applied steps that can be undone in reverse
// order. A Transaction is not safe for concurrent use.
type Transaction struct {
	ID        string
	Name      string
	StartedAt time.Time

	mgr   *TransactionManager
	steps []txStep
	state TxState
}

// Begin starts a transaction.
func (m *TransactionManager) Begin(name string) *Transaction {
	tx := &Transaction{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now(),
		mgr:       m,
		state:     TxActive,
	}
	m.mu.Lock()
	m.active[tx.ID] = tx
	m.mu.Unlock()
	return tx
}

// State returns the transaction state.
func (tx *Transaction) State() TxState { return tx.state }

// Steps returns the names of applied steps in order.
func (tx *Transaction) Steps() []string {
	names := make([]string, len(tx.steps))
	for i, s := range tx.steps {
		names[i] = s.name
	}
	return names
}

// Do runs apply. On success compensate is remembered for Rollback; on failure
// nothing is remembered and the error is returned.
func (tx *Transaction) Do(ctx context.Context, name string, apply, compensate func(context.Context) error) error {
	if tx.state != TxActive {
		return fmt.Errorf("step %s: %w", name, ErrTxClosed)
	}
	if err := apply(ctx); err != nil {
		return err
	}
	tx.steps = append(tx.steps, txStep{name: name, compensate: compensate})
	return nil
}

// Commit finalizes the transaction.
func (tx *Transaction) Commit() error {
	if tx.state != TxActive {
		return ErrTxClosed
	}
	tx.state = TxCommitted
	tx.mgr.finish(tx)
	return nil
}

// Rollback runs compensations for applied steps in reverse order. Every
// compensation runs even if an earlier one fails; failures are joined.
func (tx *Transaction) Rollback(ctx context.Context) error {
	if tx.state != TxActive {
		return ErrTxClosed
	}
	var errs []error
	for i := len(tx.steps) - 1; i >= 0; i-- {
		step := tx.steps[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.name, err))
		}
	}
	tx.state = TxRolledBack
	tx.mgr.finish(tx)

	if len(errs) > 0 {
		tx.mgr.logger.Error("rollback incomplete", "tx", tx.ID, "name", tx.Name, "failures", len(errs))
	}
	return errors.Join(errs...)
}

func (m *TransactionManager) finish(tx *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, tx.ID)
	switch tx.state {
	case TxCommitted:
		m.committed++
	case TxRolledBack:
		m.rolledBack++
	}
}

// Stats returns transaction counters.
func (m *TransactionManager) Stats() TransactionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TransactionStats{
		Active:     len(m.active),
		Committed:  m.committed,
		RolledBack: m.rolledBack,
	}
}
