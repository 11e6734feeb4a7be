package worker

import (
	"context"
	"runtime/metrics"
	"time"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// watchHeap samples the heap every interval and calls onExceed once when it
// grows past limit.
func watchHeap(ctx context.Context, limit uint64, interval time.Duration, onExceed func(used uint64)) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.Read(sample)
			if sample[0].Value.Kind() != metrics.KindUint64 {
				return
			}
			if used := sample[0].Value.Uint64(); used > limit {
				onExceed(used)
				return
			}
		}
	}
}
