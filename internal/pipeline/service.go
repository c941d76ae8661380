package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"beacon/internal/enrich"
	"beacon/internal/event"
	"beacon/internal/logger"
	"beacon/pkg/metrics"
	"beacon/pkg/tracing"
)

// Service runs the full ingestion pipeline: normalize the request body into
// records, enrich each record, and fan the result out to the sinks. Records
// from one request are processed concurrently and independently; one record's
// failure never blocks its siblings, the first error is surfaced to the
// caller after all records finish.
type Service struct {
	engine     *enrich.Service
	dispatcher *Dispatcher
	logger     logger.Logger
}

func NewService(engine *enrich.Service, dispatcher *Dispatcher, log logger.Logger) *Service {
	return &Service{
		engine:     engine,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// ProcessEvents handles the primary ingestion path: full enrichment, all
// sinks, tracking authoritative.
func (s *Service) ProcessEvents(ctx context.Context, raw []byte, defaultIP string) error {
	records, shape, err := event.Normalize(raw, defaultIP)
	if err != nil {
		return err
	}
	metrics.EventsIngestedTotal.WithLabelValues(string(shape)).Add(float64(len(records)))

	g := new(errgroup.Group)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			return s.processOne(ctx, rec)
		})
	}
	return g.Wait()
}

// ProcessWarehouse handles the warehouse-only ingestion path: geo enrichment
// only, no tracking delivery, warehouse authoritative.
func (s *Service) ProcessWarehouse(ctx context.Context, raw []byte, defaultIP string) error {
	records, shape, err := event.Normalize(raw, defaultIP)
	if err != nil {
		return err
	}
	metrics.EventsIngestedTotal.WithLabelValues(string(shape)).Add(float64(len(records)))

	g := new(errgroup.Group)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			return s.processWarehouseOne(ctx, rec)
		})
	}
	return g.Wait()
}

func (s *Service) processOne(ctx context.Context, rec event.Record) error {
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline.process_event")
	defer span.End()

	start := time.Now()
	eventName := rec.EventName()

	result, err := s.engine.Enrich(ctx, rec)
	if err != nil {
		metrics.ObservePipelineDuration(time.Since(start), "rejected")
		return err
	}

	err = s.dispatcher.Dispatch(ctx, eventName, rec)
	if err != nil {
		metrics.ObservePipelineDuration(time.Since(start), "failed")
		return err
	}

	metrics.ObservePipelineDuration(time.Since(start), "delivered")
	s.logger.DebugwCtx(ctx, "Event processed",
		"event", eventName,
		"enrichments_applied", len(result.Outcomes),
	)
	return nil
}

func (s *Service) processWarehouseOne(ctx context.Context, rec event.Record) error {
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline.process_warehouse_event")
	defer span.End()

	start := time.Now()
	eventName := rec.EventName()

	var result enrich.Result
	s.engine.EnrichGeo(ctx, rec, &result)

	err := s.dispatcher.DispatchWarehouse(ctx, eventName, rec)
	if err != nil {
		metrics.ObservePipelineDuration(time.Since(start), "failed")
		return err
	}

	metrics.ObservePipelineDuration(time.Since(start), "delivered")
	return nil
}
