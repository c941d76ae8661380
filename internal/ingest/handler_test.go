package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/enrich"
	"beacon/internal/enrich/provider"
	"beacon/internal/logger"
	"beacon/internal/pipeline"
	"beacon/internal/sink"
	"beacon/internal/webhook"
)

const (
	testToken     = "test-access-token"
	testSecret    = "test-client-secret"
	testPrincipal = "2vxsx-fae"
)

type memTracking struct {
	mu     sync.Mutex
	events []string
}

func (m *memTracking) Track(ctx context.Context, event string, properties map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memTracking) SetProfile(ctx context.Context, distinctID, ip string, properties map[string]interface{}) error {
	return nil
}

func (m *memTracking) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type memStream struct {
	mu    sync.Mutex
	count int
}

func (m *memStream) Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	return "msg", nil
}

type memWarehouse struct {
	mu   sync.Mutex
	rows []sink.Row
}

func (m *memWarehouse) Insert(ctx context.Context, row sink.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

type stubResolver struct {
	location *provider.Location
	err      error
	calls    int
}

func (s *stubResolver) Resolve(ctx context.Context, ip string) (*provider.Location, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.location, nil
}

type stubBalance struct {
	name  string
	value float64
}

func (s *stubBalance) Name() string { return s.name }

func (s *stubBalance) Balance(ctx context.Context, principal string) (float64, error) {
	return s.value, nil
}

type stubCreator struct{ isCreator bool }

func (s *stubCreator) IsCreator(ctx context.Context, canisterID string) (bool, error) {
	return s.isCreator, nil
}

type testEnv struct {
	router    *gin.Engine
	tracking  *memTracking
	stream    *memStream
	warehouse *memWarehouse
	cached    *stubResolver
	direct    *stubResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tracking := &memTracking{}
	stream := &memStream{}
	warehouse := &memWarehouse{}
	cached := &stubResolver{location: &provider.Location{Country: "SG", Region: "SG", City: "Singapore", Timezone: "Asia/Singapore"}}
	direct := &stubResolver{location: &provider.Location{Country: "DE", Region: "BE", City: "Berlin"}}

	log := logger.NopLogger()
	engine := enrich.NewService(cached, []provider.BalanceProvider{&stubBalance{name: "btc_balance_e8s", value: 5e8}}, &stubCreator{}, tracking, log)
	dispatcher := pipeline.NewDispatcher(tracking, stream, warehouse, log)
	pipelineSvc := pipeline.NewService(engine, dispatcher, log)

	notifier := webhook.NewChatNotifier("", log)
	sentrySvc := webhook.NewSentryService(testSecret, notifier, log)

	handler := NewHandler(
		pipelineSvc,
		cached,
		direct,
		&stubBalance{name: "btc_balance_e8s", value: 5e8},
		&stubBalance{name: "sats_balance", value: 1234},
		&stubCreator{isCreator: true},
		sentrySvc,
		testToken,
		log,
	)

	router := gin.New()
	handler.RegisterRoutes(router)

	return &testEnv{
		router:    router,
		tracking:  tracking,
		stream:    stream,
		warehouse: warehouse,
		cached:    cached,
		direct:    direct,
	}
}

func (e *testEnv) request(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/health", "/healthz"} {
		w := env.request(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	}
}

func TestSendEvent_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/send_event", `{"event": "e"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(http.MethodPost, "/api/send_event", `{"event": "e"}`, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, 0, env.tracking.count())
}

func TestSendEvent_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	body := `{"event": "video_viewed", "principal": "` + testPrincipal + `"}`
	w := env.request(http.MethodPost, "/api/send_event", body, authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, env.tracking.count())
	assert.Equal(t, 1, env.stream.count)
	require.Len(t, env.warehouse.rows, 1)
	assert.Equal(t, "mp_video_viewed", env.warehouse.rows[0].Event)
}

func TestSendEvent_InvalidShape(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/send_event", `42`, authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_PAYLOAD_SHAPE", resp["error_code"])
}

func TestSendEvent_MalformedIdentity(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/send_event", `{"event": "e", "principal": "bogus!"}`, authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_IDENTITY", resp["error_code"])
}

func TestSendWarehouse_NoAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodPost, "/api/send_bigquery", `{"event": "impression"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 0, env.tracking.count())
	require.Len(t, env.warehouse.rows, 1)
	assert.Equal(t, "mp_impression", env.warehouse.rows[0].Event)
}

func TestGetIP_UsesCachedResolver(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/ip/203.0.113.7", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	var loc provider.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, "SG", loc.Country)
	assert.Equal(t, 1, env.cached.calls)
	assert.Equal(t, 0, env.direct.calls)
}

func TestGetIP_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/api/ip/203.0.113.7", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetIP_InvalidIP(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(http.MethodGet, "/api/ip/not-an-ip", "", authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIPDirect_BypassesCache(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/ip_v2/203.0.113.7", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var loc provider.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, "DE", loc.Country)
	assert.Equal(t, 0, env.cached.calls)
	assert.Equal(t, 1, env.direct.calls)
}

func TestGetIP_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.cached.err = provider.ErrNotFound

	w := env.request(http.MethodGet, "/api/ip/203.0.113.7", "", authHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetIP_ResolverFailureIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	env.cached.err = errors.New("geo api unreachable")

	w := env.request(http.MethodGet, "/api/ip/203.0.113.7", "", authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IP_CONFIG_ERROR")
}

func TestGetIPDirect_ResolverFailureIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	env.direct.err = errors.New("geo api unreachable")

	w := env.request(http.MethodGet, "/api/ip_v2/203.0.113.7", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IP_CONFIG_ERROR")
}

func TestMyIP_PrefersForwardedFor(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/my_ip", "", map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"203.0.113.7"`, w.Body.String())
}

func TestMyIP_FallsBackToPeerAddress(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/my_ip", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	// httptest sets RemoteAddr to 192.0.2.1:1234.
	assert.Equal(t, `"192.0.2.1"`, w.Body.String())
}

func TestMyTimezone(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/my_timezone", "", map[string]string{
		"X-Forwarded-For": "203.0.113.7",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"Asia/Singapore"`, w.Body.String())
}

func TestMyTimezone_ResolverFailureIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	env.cached.err = errors.New("geo api unreachable")

	w := env.request(http.MethodGet, "/api/my_timezone", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IP_CONFIG_ERROR")
}

func TestBTCBalance_ConvertsE8s(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/btc_balance/"+testPrincipal, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5.0, resp["balance"])
}

func TestSatsBalance(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/sats_balance/"+testPrincipal, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1234), resp["balance"])
}

func TestBalance_InvalidPrincipal(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/btc_balance/not-a-principal!", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIsCanisterCreator(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(http.MethodGet, "/api/is_canister_creator/ryjl3-tyaaa-aaaaa-aaaba-cai", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Body.String())
}

func TestSentryWebhook(t *testing.T) {
	env := newTestEnv(t)

	body := `{"data": {"event": {"title": "boom", "level": "error"}}}`
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	signature := hex.EncodeToString(mac.Sum(nil))

	w := env.request(http.MethodPost, "/api/sentry", body, map[string]string{
		"sentry-hook-signature": signature,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(http.MethodPost, "/api/sentry", body, map[string]string{
		"sentry-hook-signature": "bad",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(http.MethodPost, "/api/sentry", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
