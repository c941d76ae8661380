package enrich

import (
	"context"
	"sync"

	"beacon/internal/constants"
	"beacon/internal/device"
	"beacon/internal/enrich/provider"
	"beacon/internal/event"
	"beacon/internal/identity"
	"beacon/internal/logger"
	"beacon/pkg/errors"
	"beacon/pkg/metrics"
)

// ProfileUpserter is the tracking sink's profile side-channel, pulled out so
// the engine does not depend on the full sink surface.
type ProfileUpserter interface {
	SetProfile(ctx context.Context, distinctID, ip string, properties map[string]interface{}) error
}

// Service applies the enrichment steps to one record in a fixed order:
// identity, device, balances, creator status, geo. Later steps read fields
// set by earlier ones. Every step except identity validation is best-effort;
// a provider failure leaves its field unset and the event continues.
type Service struct {
	location provider.LocationResolver
	balances []provider.BalanceProvider
	creator  provider.CreatorStatusProvider
	profiles ProfileUpserter
	logger   logger.Logger
}

func NewService(
	location provider.LocationResolver,
	balances []provider.BalanceProvider,
	creator provider.CreatorStatusProvider,
	profiles ProfileUpserter,
	log logger.Logger,
) *Service {
	return &Service{
		location: location,
		balances: balances,
		creator:  creator,
		profiles: profiles,
		logger:   log,
	}
}

// Enrich mutates rec in place. The returned error is non-nil only when the
// identity field is present but malformed; the record must not be dispatched
// in that case.
func (s *Service) Enrich(ctx context.Context, rec event.Record) (Result, error) {
	var result Result

	principal, err := s.enrichIdentity(ctx, rec, &result)
	if err != nil {
		return result, err
	}

	s.enrichDevice(rec, &result)
	s.enrichBalances(ctx, rec, principal, &result)
	s.enrichCreator(ctx, rec, principal, &result)
	s.EnrichGeo(ctx, rec, &result)

	return result, nil
}

// enrichIdentity validates and canonicalizes the identity, then upserts the
// user profile on the tracking sink. Validation failure is the one fatal
// enrichment error; the upsert itself is best-effort.
func (s *Service) enrichIdentity(ctx context.Context, rec event.Record, result *Result) (string, error) {
	id, ok := rec.Identity()
	if !ok {
		result.skipped(StepIdentity, "no identity field")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepIdentity, "skipped").Inc()
		return "", nil
	}

	principal, err := identity.Parse(id)
	if err != nil {
		metrics.EnrichmentStepsTotal.WithLabelValues(StepIdentity, "invalid").Inc()
		return "", errors.ErrInvalidIdentity.WithCause(err)
	}

	canonical := principal.String()
	rec.Set(constants.FieldUserID, canonical)
	rec.Set(constants.FieldDistinctID, canonical)
	result.applied(StepIdentity, constants.FieldDistinctID)
	metrics.EnrichmentStepsTotal.WithLabelValues(StepIdentity, "applied").Inc()

	if s.profiles == nil {
		result.skipped(StepProfile, "no profile sink")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepProfile, "skipped").Inc()
		return canonical, nil
	}

	ip, _ := rec.GetString(constants.FieldIPAddr)
	if err := s.profiles.SetProfile(ctx, canonical, ip, rec); err != nil {
		s.logger.WarnwCtx(ctx, "Profile upsert failed",
			"distinct_id", canonical,
			"error", err,
		)
		result.skipped(StepProfile, err.Error())
		metrics.EnrichmentStepsTotal.WithLabelValues(StepProfile, "skipped").Inc()
	} else {
		result.applied(StepProfile, "")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepProfile, "applied").Inc()
	}

	return canonical, nil
}

func (s *Service) enrichDevice(rec event.Record, result *Result) {
	ua, ok := rec.GetString(constants.FieldUserAgent)
	if !ok || ua == "" {
		result.skipped(StepDevice, "no user_agent")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepDevice, "skipped").Inc()
		return
	}

	class := device.Classify(ua)
	if class.OS != "" {
		rec.Set(constants.FieldOS, class.OS)
	} else {
		rec.Set(constants.FieldOS, constants.DefaultOS)
	}
	rec.Set(constants.FieldDevice, class.Device)
	result.applied(StepDevice, constants.FieldDevice)
	metrics.EnrichmentStepsTotal.WithLabelValues(StepDevice, "applied").Inc()
}

// enrichBalances queries all balance providers concurrently and applies the
// successes. The record itself is only written from this goroutine, after
// the join.
func (s *Service) enrichBalances(ctx context.Context, rec event.Record, principal string, result *Result) {
	if principal == "" {
		result.skipped(StepBalance, "no identity")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepBalance, "skipped").Inc()
		return
	}
	if len(s.balances) == 0 {
		result.skipped(StepBalance, "no balance providers")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepBalance, "skipped").Inc()
		return
	}

	type balanceResult struct {
		name  string
		value float64
		err   error
	}

	results := make([]balanceResult, len(s.balances))
	var wg sync.WaitGroup
	for i, p := range s.balances {
		wg.Add(1)
		go func(i int, p provider.BalanceProvider) {
			defer wg.Done()
			value, err := p.Balance(ctx, principal)
			results[i] = balanceResult{name: p.Name(), value: value, err: err}
		}(i, p)
	}
	wg.Wait()

	for _, br := range results {
		if br.err != nil {
			s.logger.WarnwCtx(ctx, "Balance provider failed",
				"provider", br.name,
				"error", br.err,
			)
			result.skipped(StepBalance, br.name+": "+br.err.Error())
			metrics.EnrichmentStepsTotal.WithLabelValues(StepBalance, "skipped").Inc()
			continue
		}
		rec.Set(br.name, br.value)
		result.applied(StepBalance, br.name)
		metrics.EnrichmentStepsTotal.WithLabelValues(StepBalance, "applied").Inc()
	}
}

func (s *Service) enrichCreator(ctx context.Context, rec event.Record, principal string, result *Result) {
	if principal == "" {
		result.skipped(StepCreator, "no identity")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepCreator, "skipped").Inc()
		return
	}

	canisterID, ok := rec.GetString(constants.FieldCanisterID)
	if !ok || canisterID == "" {
		result.skipped(StepCreator, "no canister_id")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepCreator, "skipped").Inc()
		return
	}

	canister, err := identity.Parse(canisterID)
	if err != nil {
		result.skipped(StepCreator, "invalid canister_id")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepCreator, "skipped").Inc()
		return
	}

	if s.creator == nil {
		result.skipped(StepCreator, "no creator provider")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepCreator, "skipped").Inc()
		return
	}

	isCreator, err := s.creator.IsCreator(ctx, canister.String())
	if err != nil {
		s.logger.WarnwCtx(ctx, "Creator status lookup failed",
			"canister_id", canister.String(),
			"error", err,
		)
		result.skipped(StepCreator, err.Error())
		metrics.EnrichmentStepsTotal.WithLabelValues(StepCreator, "skipped").Inc()
		return
	}

	rec.Set(constants.FieldIsCreator, isCreator)
	result.applied(StepCreator, constants.FieldIsCreator)
	metrics.EnrichmentStepsTotal.WithLabelValues(StepCreator, "applied").Inc()
}

// EnrichGeo is exported separately: the warehouse-only ingestion path runs
// geo enrichment without the identity-keyed steps.
func (s *Service) EnrichGeo(ctx context.Context, rec event.Record, result *Result) {
	ip, ok := rec.GetString(constants.FieldIPAddr)
	if !ok || ip == "" {
		result.skipped(StepGeo, "no ip_addr")
		metrics.EnrichmentStepsTotal.WithLabelValues(StepGeo, "skipped").Inc()
		return
	}

	loc, err := s.location.Resolve(ctx, ip)
	if err != nil {
		s.logger.DebugwCtx(ctx, "Geo lookup failed",
			"ip", ip,
			"error", err,
		)
		result.skipped(StepGeo, err.Error())
		metrics.EnrichmentStepsTotal.WithLabelValues(StepGeo, "skipped").Inc()
		return
	}

	rec.Set(constants.FieldCity, loc.City)
	rec.Set(constants.FieldRegion, loc.Region)
	rec.Set(constants.FieldCountry, loc.Country)
	if loc.Timezone != "" {
		rec.Set(constants.FieldTimezone, loc.Timezone)
	}
	result.applied(StepGeo, constants.FieldCountry)
	metrics.EnrichmentStepsTotal.WithLabelValues(StepGeo, "applied").Inc()
}
