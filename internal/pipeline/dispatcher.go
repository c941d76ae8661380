package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"beacon/internal/constants"
	"beacon/internal/event"
	"beacon/internal/logger"
	"beacon/internal/sink"
	"beacon/pkg/errors"
	"beacon/pkg/metrics"
)

const (
	SinkTracking  = "tracking"
	SinkStream    = "stream"
	SinkWarehouse = "warehouse"
)

// DispatchResult is one sink's delivery outcome for one event record.
type DispatchResult struct {
	Sink string
	Err  error
}

func (r DispatchResult) Delivered() bool {
	return r.Err == nil
}

// Policy maps the set of per-sink outcomes to the pipeline-level result.
// Keeping this a function pins the "which sink is authoritative" decision in
// one place.
type Policy func(results []DispatchResult) error

// Authoritative fails the dispatch iff the named sink failed; every other
// sink is a best-effort side effect.
func Authoritative(primary string) Policy {
	return func(results []DispatchResult) error {
		for _, r := range results {
			if r.Sink == primary && r.Err != nil {
				return asSinkError(r.Err)
			}
		}
		return nil
	}
}

func asSinkError(err error) error {
	if errors.Is(err, errors.ErrSinkDelivery) {
		return err
	}
	return errors.ErrSinkDelivery.WithCause(err)
}

// Dispatcher delivers one enriched record to every configured sink
// concurrently, each with its own serialization of the record. The record is
// read-only from here on.
type Dispatcher struct {
	tracking  sink.TrackingSink
	stream    sink.StreamSink
	warehouse sink.WarehouseSink
	logger    logger.Logger
}

func NewDispatcher(tracking sink.TrackingSink, stream sink.StreamSink, warehouse sink.WarehouseSink, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		tracking:  tracking,
		stream:    stream,
		warehouse: warehouse,
		logger:    log,
	}
}

type streamEnvelope struct {
	Timestamp string       `json:"timestamp"`
	EventData event.Record `json:"event_data"`
}

// Dispatch delivers to all three sinks. The tracking sink is authoritative:
// its failure fails the event, stream and warehouse failures are logged
// only.
func (d *Dispatcher) Dispatch(ctx context.Context, eventName string, rec event.Record) error {
	results := d.deliver(ctx, eventName, rec,
		func(ctx context.Context) error {
			return d.tracking.Track(ctx, eventName, rec)
		},
	)
	return Authoritative(SinkTracking)(results)
}

// DispatchWarehouse delivers to the stream and warehouse sinks only, with
// the warehouse authoritative. Used by the warehouse-only ingestion path.
func (d *Dispatcher) DispatchWarehouse(ctx context.Context, eventName string, rec event.Record) error {
	results := d.deliver(ctx, eventName, rec, nil)
	return Authoritative(SinkWarehouse)(results)
}

func (d *Dispatcher) deliver(ctx context.Context, eventName string, rec event.Record, trackingCall func(context.Context) error) []DispatchResult {
	now := time.Now().UTC()

	calls := []struct {
		name string
		fn   func(context.Context) error
	}{
		{SinkStream, func(ctx context.Context) error {
			return d.publishStream(ctx, eventName, rec, now)
		}},
		{SinkWarehouse, func(ctx context.Context) error {
			return d.insertWarehouse(ctx, eventName, rec, now)
		}},
	}
	if trackingCall != nil {
		calls = append(calls, struct {
			name string
			fn   func(context.Context) error
		}{SinkTracking, trackingCall})
	}

	results := make([]DispatchResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, name string, fn func(context.Context) error) {
			defer wg.Done()
			err := func() (err error) {
				// A panicking sink client must not take down the process.
				defer func() {
					if r := recover(); r != nil {
						err = errors.RecoverPanic(r)
					}
				}()
				return fn(ctx)
			}()
			results[i] = DispatchResult{Sink: name, Err: err}

			if err != nil {
				metrics.SinkDeliveriesTotal.WithLabelValues(name, "failed").Inc()
				d.logger.ErrorwCtx(ctx, "Sink delivery failed",
					"sink", name,
					"event", eventName,
					"error", err,
				)
			} else {
				metrics.SinkDeliveriesTotal.WithLabelValues(name, "delivered").Inc()
			}
		}(i, call.name, call.fn)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) publishStream(ctx context.Context, eventName string, rec event.Record, now time.Time) error {
	envelope := streamEnvelope{
		Timestamp: now.Format(time.RFC3339),
		EventData: rec,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal stream envelope: %w", err)
	}

	attributes := map[string]string{
		constants.StreamAttrEventType: eventName,
		constants.StreamAttrSource:    constants.StreamSourceValue,
	}

	messageID, err := d.stream.Publish(ctx, payload, attributes)
	if err != nil {
		return err
	}

	d.logger.DebugwCtx(ctx, "Published stream message",
		"message_id", messageID,
		"event", eventName,
	)
	return nil
}

func (d *Dispatcher) insertWarehouse(ctx context.Context, eventName string, rec event.Record, now time.Time) error {
	params, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal warehouse params: %w", err)
	}

	return d.warehouse.Insert(ctx, sink.Row{
		Event:     constants.WarehouseEventPrefix + eventName,
		Params:    string(params),
		Timestamp: now.Format(time.RFC3339),
	})
}
