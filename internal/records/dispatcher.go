// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package records

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/metrics"
)

// Dispatcher defaults
const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 5 * time.Second
)

// Publisher accepts records for asynchronous persistence
type Publisher interface {
	Publish(rec Record) bool
}

// Dispatcher hands records to a Store on a single background goroutine.
// Publish never blocks: when the queue is full the record is dropped and
// logged. Store errors are logged and never reach the publisher.
type Dispatcher struct {
	store        Store
	queue        chan Record
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the background writer
func NewDispatcher(store Store, queueSize int, writeTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		store:        store,
		queue:        make(chan Record, queueSize),
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues rec and reports whether it was accepted
func (d *Dispatcher) Publish(rec Record) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Record dropped after dispatcher close", zap.String("id", rec.ID))
		metrics.RecordWrite(d.store.Name(), "dropped")
		return false
	}

	select {
	case d.queue <- rec:
		metrics.SetRecordQueueDepth(len(d.queue))
		return true
	default:
		d.logger.Warn("Record queue full, dropping record",
			zap.String("id", rec.ID),
			zap.String("record_type", string(rec.RecordType)),
			zap.Int("queue_size", cap(d.queue)))
		metrics.RecordWrite(d.store.Name(), "dropped")
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for rec := range d.queue {
		metrics.SetRecordQueueDepth(len(d.queue))
		d.write(rec)
	}
}

func (d *Dispatcher) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()

	if err := d.store.Save(ctx, rec); err != nil {
		d.logger.Error("Failed to persist record",
			zap.String("id", rec.ID),
			zap.String("request_id", rec.RequestID),
			zap.String("store", d.store.Name()),
			zap.Error(err))
		metrics.RecordWrite(d.store.Name(), "failed")
		return
	}
	metrics.RecordWrite(d.store.Name(), "written")
}

// Close stops accepting records, drains the queue and closes the store
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.logger.Warn("Record queue not drained before shutdown",
			zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
	return d.store.Close()
}
