package revshare

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/types"
)

// flushConflictRetries bounds how often a flush chunk is retried after a
// concurrent modification before its usage is dropped and logged.
const flushConflictRetries = 3

// RecordUsage buffers a usage item for the next feed flush (non-blocking).
// Buffered items are aggregated per payee, label and rate and credited under
// the operator given to WithUsageFeed. After Stop it fails with
// ErrStoreClosed.
func (e *Engine) RecordUsage(_ context.Context, item UsageItem) error {
	if e.operator == nil {
		return ErrUsageFeedDisabled
	}
	if item.PayeeID.IsNil() {
		return ValidationError{Field: "payee_id", Message: "required"}
	}
	if item.Units == 0 {
		return nil
	}

	e.feedMu.RLock()
	defer e.feedMu.RUnlock()
	if e.stopped {
		return fmt.Errorf("%w: usage feed stopped", ErrStoreClosed)
	}

	select {
	case e.usageBuffer <- item:
		return nil
	default:
		return ErrUsageBufferFull
	}
}

// usageFlushWorker drains the usage buffer into batches.
func (e *Engine) usageFlushWorker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]UsageItem, 0, e.usageBatchSize)
	ticker := time.NewTicker(e.usageFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Final flush
			for {
				select {
				case item := <-e.usageBuffer:
					batch = append(batch, item)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				e.flushUsage(ctx, batch)
			}
			return

		case item := <-e.usageBuffer:
			batch = append(batch, item)
			if len(batch) >= e.usageBatchSize {
				e.flushUsage(ctx, batch)
				batch = make([]UsageItem, 0, e.usageBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flushUsage(ctx, batch)
				batch = make([]UsageItem, 0, e.usageBatchSize)
			}
		}
	}
}

// FlushUsage credits everything currently buffered and returns once done.
// It is meant for hosts that drive the feed themselves and for tests; the
// background worker started by Start flushes on its own.
func (e *Engine) FlushUsage(ctx context.Context) int {
	var batch []UsageItem
	for {
		select {
		case item := <-e.usageBuffer:
			batch = append(batch, item)
			continue
		default:
		}
		break
	}
	if len(batch) > 0 {
		e.flushUsage(ctx, batch)
	}
	return len(batch)
}

func (e *Engine) flushUsage(ctx context.Context, batch []UsageItem) {
	start := time.Now()

	items := aggregateUsage(batch)
	credited := 0
	for _, chunk := range chunkUsage(items, MaxBatchSize) {
		credited += e.creditChunk(ctx, chunk)
	}

	elapsed := time.Since(start)
	e.plugins.EmitUsageFlushed(ctx, credited, elapsed)

	e.logger.Debug("flushed usage batch",
		"recorded", len(batch),
		"aggregated", len(items),
		"credited", credited,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// creditChunk credits one chunk and returns how many items landed. Conflicts
// are retried. An item the engine rejects on its own (unknown payee, stale
// label, overflow) is dropped and the rest of the chunk is resubmitted; any
// other failure drops the chunk.
func (e *Engine) creditChunk(ctx context.Context, chunk []UsageItem) int {
	pending := slices.Clone(chunk)
	conflicts := 0
	for len(pending) > 0 {
		cred, err := e.operator.SignIntent(BatchProcessIntent(e.poolKey, pending))
		if err != nil {
			e.logger.Error("failed to sign usage batch", "error", err, "batch_size", len(pending))
			return 0
		}

		_, err = e.BatchProcess(ctx, cred, pending)
		if err == nil {
			return len(pending)
		}
		if isConflict(err) {
			if conflicts < flushConflictRetries {
				conflicts++
				continue
			}
		} else {
			var itemErr *BatchItemError
			if errors.As(err, &itemErr) && itemErr.Index >= 0 && itemErr.Index < len(pending) {
				dropped := pending[itemErr.Index]
				e.logger.Warn("dropped rejected usage item",
					"payee_id", dropped.PayeeID,
					"external_id", dropped.ExternalID,
					"units", dropped.Units,
					"error", itemErr.Err,
				)
				pending = slices.Delete(pending, itemErr.Index, itemErr.Index+1)
				continue
			}
		}

		e.logger.Error("failed to flush usage batch",
			"error", err,
			"batch_size", len(pending),
		)
		return 0
	}
	return 0
}

// aggregateUsage merges items that credit the same payee under the same
// label and rate, preserving first-seen order. Items whose units would
// overflow the running sum start a new entry.
func aggregateUsage(items []UsageItem) []UsageItem {
	type key struct {
		payee id.PayeeID
		label string
		rate  uint64
	}

	index := make(map[key]int, len(items))
	out := make([]UsageItem, 0, len(items))
	for _, item := range items {
		k := key{payee: item.PayeeID, label: item.ExternalID, rate: item.Rate}
		if i, ok := index[k]; ok {
			if sum, err := types.Add(out[i].Units, item.Units); err == nil {
				out[i].Units = sum
				continue
			}
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out
}

func chunkUsage(items []UsageItem, size int) [][]UsageItem {
	var chunks [][]UsageItem
	for len(items) > size {
		chunks = append(chunks, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}
