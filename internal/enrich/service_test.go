package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/enrich/provider"
	"beacon/internal/event"
	"beacon/internal/logger"
	apperrors "beacon/pkg/errors"
)

const (
	testPrincipal = "2vxsx-fae"
	testCanister  = "ryjl3-tyaaa-aaaaa-aaaba-cai"
)

type fakeResolver struct {
	location *provider.Location
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, ip string) (*provider.Location, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.location, nil
}

type fakeBalance struct {
	name  string
	value float64
	err   error
}

func (f *fakeBalance) Name() string { return f.name }

func (f *fakeBalance) Balance(ctx context.Context, principal string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.value, nil
}

type fakeCreator struct {
	isCreator bool
	err       error
	calls     int
}

func (f *fakeCreator) IsCreator(ctx context.Context, canisterID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.isCreator, nil
}

type fakeProfiles struct {
	err        error
	distinctID string
	ip         string
	calls      int
}

func (f *fakeProfiles) SetProfile(ctx context.Context, distinctID, ip string, properties map[string]interface{}) error {
	f.calls++
	f.distinctID = distinctID
	f.ip = ip
	return f.err
}

func newTestService(resolver provider.LocationResolver, balances []provider.BalanceProvider, creator provider.CreatorStatusProvider, profiles ProfileUpserter) *Service {
	return NewService(resolver, balances, creator, profiles, logger.NopLogger())
}

func TestEnrich_FullyEnrichedRecord(t *testing.T) {
	resolver := &fakeResolver{location: &provider.Location{
		Country:  "Singapore",
		Region:   "Singapore",
		City:     "Singapore",
		Timezone: "Asia/Singapore",
	}}
	profiles := &fakeProfiles{}
	creator := &fakeCreator{isCreator: true}
	svc := newTestService(
		resolver,
		[]provider.BalanceProvider{
			&fakeBalance{name: "btc_balance_e8s", value: 150000},
			&fakeBalance{name: "sats_balance", value: 42},
		},
		creator,
		profiles,
	)

	rec := event.Record{
		"event":       "video_viewed",
		"principal":   testPrincipal,
		"canister_id": testCanister,
		"user_agent":  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
		"ip_addr":     "203.0.113.7",
	}

	result, err := svc.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, testPrincipal, rec["$user_id"])
	assert.Equal(t, testPrincipal, rec["distinct_id"])
	assert.Equal(t, "iOS", rec["$os"])
	assert.Equal(t, "mobile", rec["device"])
	assert.Equal(t, float64(150000), rec["btc_balance_e8s"])
	assert.Equal(t, float64(42), rec["sats_balance"])
	assert.Equal(t, true, rec["is_creator"])
	assert.Equal(t, "Singapore", rec["city"])
	assert.Equal(t, "Asia/Singapore", rec["timezone"])

	assert.Equal(t, 1, profiles.calls)
	assert.Equal(t, testPrincipal, profiles.distinctID)
	assert.Equal(t, "203.0.113.7", profiles.ip)

	for _, step := range []string{StepIdentity, StepProfile, StepDevice, StepBalance, StepCreator, StepGeo} {
		assert.True(t, result.Applied(step), "step %s should have applied", step)
	}
}

func TestEnrich_NoIdentitySkipsIdentityKeyedSteps(t *testing.T) {
	profiles := &fakeProfiles{}
	creator := &fakeCreator{}
	svc := newTestService(
		&fakeResolver{location: &provider.Location{Country: "DE"}},
		[]provider.BalanceProvider{&fakeBalance{name: "sats_balance", value: 9}},
		creator,
		profiles,
	)

	rec := event.Record{"event": "page_view", "ip_addr": "203.0.113.7"}
	result, err := svc.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 0, profiles.calls)
	assert.Equal(t, 0, creator.calls)
	assert.False(t, rec.Has("sats_balance"))
	assert.False(t, result.Applied(StepIdentity))
	assert.False(t, result.Applied(StepBalance))

	// Geo does not depend on identity.
	assert.True(t, result.Applied(StepGeo))
	assert.Equal(t, "DE", rec["country"])
}

func TestEnrich_MalformedIdentityIsFatal(t *testing.T) {
	profiles := &fakeProfiles{}
	svc := newTestService(&fakeResolver{}, nil, &fakeCreator{}, profiles)

	rec := event.Record{"event": "e", "principal": "not-a-principal"}
	_, err := svc.Enrich(context.Background(), rec)

	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidIdentity(err))
	assert.Equal(t, 0, profiles.calls)
}

func TestEnrich_ProfileUpsertFailureIsBestEffort(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("tracking unavailable")}
	svc := newTestService(&fakeResolver{err: provider.ErrNotFound}, nil, &fakeCreator{}, profiles)

	rec := event.Record{"event": "e", "principal": testPrincipal}
	result, err := svc.Enrich(context.Background(), rec)

	require.NoError(t, err)
	assert.Equal(t, testPrincipal, rec["distinct_id"])
	assert.True(t, result.Applied(StepIdentity))
	assert.False(t, result.Applied(StepProfile))
}

func TestEnrich_BalanceFailuresAreIndependent(t *testing.T) {
	svc := newTestService(
		&fakeResolver{err: provider.ErrNotFound},
		[]provider.BalanceProvider{
			&fakeBalance{name: "btc_balance_e8s", err: errors.New("upstream timeout")},
			&fakeBalance{name: "sats_balance", value: 7},
		},
		&fakeCreator{},
		&fakeProfiles{},
	)

	rec := event.Record{"event": "e", "principal": testPrincipal}
	result, err := svc.Enrich(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, rec.Has("btc_balance_e8s"))
	assert.Equal(t, float64(7), rec["sats_balance"])
	assert.True(t, result.Applied(StepBalance))
}

func TestEnrich_CreatorRequiresValidCanisterID(t *testing.T) {
	tests := []struct {
		name       string
		canisterID interface{}
		wantCalls  int
	}{
		{name: "missing canister_id", canisterID: nil, wantCalls: 0},
		{name: "invalid canister_id", canisterID: "garbage", wantCalls: 0},
		{name: "valid canister_id", canisterID: testCanister, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &fakeCreator{isCreator: true}
			svc := newTestService(&fakeResolver{err: provider.ErrNotFound}, nil, creator, &fakeProfiles{})

			rec := event.Record{"event": "e", "principal": testPrincipal}
			if tt.canisterID != nil {
				rec["canister_id"] = tt.canisterID
			}

			_, err := svc.Enrich(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, creator.calls)
			assert.Equal(t, tt.wantCalls == 1, rec.Has("is_creator"))
		})
	}
}

func TestEnrich_GeoFailureLeavesFieldsUnset(t *testing.T) {
	svc := newTestService(&fakeResolver{err: errors.New("resolver down")}, nil, &fakeCreator{}, &fakeProfiles{})

	rec := event.Record{"event": "e", "ip_addr": "203.0.113.7"}
	result, err := svc.Enrich(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, rec.Has("country"))
	assert.False(t, result.Applied(StepGeo))
}

func TestEnrich_PartiallyWiredServiceSkipsMissingProviders(t *testing.T) {
	resolver := &fakeResolver{location: &provider.Location{Country: "DE", Region: "BE", City: "Berlin"}}
	svc := newTestService(resolver, nil, nil, nil)

	rec := event.Record{
		"event":       "video_viewed",
		"principal":   testPrincipal,
		"canister_id": testCanister,
		"ip_addr":     "203.0.113.7",
	}

	result, err := svc.Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, testPrincipal, rec["distinct_id"])
	assert.Equal(t, "Berlin", rec["city"])
	assert.False(t, rec.Has("btc_balance_e8s"))
	assert.False(t, rec.Has("is_creator"))
	assert.False(t, result.Applied(StepProfile))
	assert.False(t, result.Applied(StepBalance))
	assert.False(t, result.Applied(StepCreator))
}

func TestEnrichGeo_OmitsEmptyTimezone(t *testing.T) {
	svc := newTestService(&fakeResolver{location: &provider.Location{Country: "US", Region: "CA", City: "SF"}}, nil, &fakeCreator{}, &fakeProfiles{})

	rec := event.Record{"ip_addr": "203.0.113.7"}
	var result Result
	svc.EnrichGeo(context.Background(), rec, &result)

	assert.Equal(t, "US", rec["country"])
	assert.False(t, rec.Has("timezone"))
}
