// Package worker reloads the dataset when the backing store announces a change.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"finscope/internal/amqp"
	"finscope/internal/dataset"
	"finscope/internal/log"
)

// Reloader re-reads the dataset from its source.
type Reloader interface {
	Reload(ctx context.Context) (dataset.Dataset, error)
}

// ReloadWorker turns dataset-changed messages into dataset reloads. Bursts of
// messages inside the debounce window collapse into one reload.
type ReloadWorker struct {
	reloader Reloader
	logger   *log.Logger
	timeout  time.Duration
	debounce *Debouncer

	reloads  atomic.Int64
	failures atomic.Int64
}

func NewReloadWorker(reloader Reloader, debounce time.Duration, logger *log.Logger) *ReloadWorker {
	if logger == nil {
		logger = log.Discard()
	}
	w := &ReloadWorker{
		reloader: reloader,
		logger:   logger.WithComponent(log.ComponentWorker),
		timeout:  30 * time.Second,
	}
	if debounce > 0 {
		w.debounce = NewDebouncer(debounce, w.reloadInBackground)
	}
	return w
}

// HandleDatasetChanged is the AMQP handler. Without a debounce window the
// reload runs inline and its error requeues the message.
func (w *ReloadWorker) HandleDatasetChanged(ctx context.Context, msg *amqp.DatasetChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing dataset changed message",
		log.FieldOperation, log.OpConsume,
		"source", msg.Source,
		"reason", msg.Reason,
		"timestamp", msg.Timestamp)

	if w.debounce != nil {
		w.debounce.Trigger()
		return nil
	}
	return w.reload(ctx)
}

// Run consumes notifications until ctx is cancelled, then drops any pending
// debounced reload.
func (w *ReloadWorker) Run(ctx context.Context, client *amqp.Client) error {
	defer w.Stop()
	err := client.ConsumeDatasetChanged(ctx, w.HandleDatasetChanged)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Stop drops a pending debounced reload.
func (w *ReloadWorker) Stop() {
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

// Stats reports completed and failed reloads.
func (w *ReloadWorker) Stats() (reloads, failures int64) {
	return w.reloads.Load(), w.failures.Load()
}

func (w *ReloadWorker) reloadInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.reload(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Debounced reload failed", log.FieldError, err)
	}
}

func (w *ReloadWorker) reload(ctx context.Context) error {
	ds, err := w.reloader.Reload(ctx)
	if err != nil {
		w.failures.Add(1)
		return fmt.Errorf("reload dataset: %w", err)
	}
	w.reloads.Add(1)
	w.logger.InfoContext(ctx, "Dataset reloaded",
		log.FieldOperation, log.OpReload,
		log.FieldDatasetVersion, ds.Version,
		log.FieldTransactions, len(ds.Transactions))
	return nil
}
