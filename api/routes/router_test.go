package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/goodsin-backend/api/controllers"
	"github.com/angelmondragon/goodsin-backend/internal/catalog"
	"github.com/angelmondragon/goodsin-backend/internal/deliveries"
	"github.com/angelmondragon/goodsin-backend/internal/reports"
	"github.com/angelmondragon/goodsin-backend/internal/scans"
	"github.com/angelmondragon/goodsin-backend/pkg/config"
	dbpkg "github.com/angelmondragon/goodsin-backend/pkg/db"
	"github.com/angelmondragon/goodsin-backend/pkg/logger"
	"github.com/angelmondragon/goodsin-backend/pkg/metrics"
	"github.com/angelmondragon/goodsin-backend/pkg/migrate"
	"github.com/angelmondragon/goodsin-backend/pkg/outbox"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "test:idem:" + scope + ":" + id
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	NextCursor string          `json:"next_cursor"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	client, err := dbpkg.New(ctx, config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, migrate.AutoMigrateModels(ctx, client))

	ledger, err := scans.NewService(scans.NewRepository(client.DB()), nil, 15*time.Minute)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc, err := deliveries.NewService(deliveries.ServiceParams{
		Tx:       client,
		Repo:     deliveries.NewRepository(client.DB()),
		Scans:    ledger,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Resolver: catalog.NewRepositoryResolver(catalog.NewRepository(client.DB())),
		Metrics:  metrics.NewReceivingMetrics(reg),
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	cfg.Receiving.ScanReplayTTL = time.Hour

	handler := NewRouter(cfg, logger.Nop(), Dependencies{
		Deliveries:  svc,
		Scans:       ledger,
		Idempotency: &memStore{data: map[string]string{}},
		Gatherer:    reg,
		Readiness:   map[string]controllers.Pinger{"database": client},
	})
	return &testServer{handler: handler}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createPayload() map[string]any {
	return map[string]any{
		"delivery_number": "DN-" + uuid.NewString()[:8],
		"supplier_id":     uuid.NewString(),
		"delivery_date":   "2026-03-02T00:00:00Z",
		"items": []map[string]any{
			{
				"sku":                   "COLA",
				"description":           "Cola 330ml",
				"quantity_type":         "case",
				"case_ordered_quantity": 2,
				"units_per_case":        12,
				"outer_code":            "OUT-COLA",
				"barcode":               "EAN-COLA",
				"unit_cost":             "0.40",
				"sale_price":            "0.90",
				"tax_rate":              "20",
			},
			{
				"sku":                   "CRISPS",
				"description":           "Crisps",
				"quantity_type":         "unit",
				"unit_ordered_quantity": 5,
				"barcode":               "EAN-CRISPS",
				"unit_cost":             "0.20",
				"sale_price":            "0.50",
				"tax_rate":              "20",
			},
		},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeliveryReceivingFlow(t *testing.T) {
	srv := newTestServer(t)
	scanner := map[string]string{"X-Scanner-Id": "dock-gun-1"}

	rec, env := srv.do(t, http.MethodPost, "/api/v1/deliveries", createPayload(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created deliveries.DeliveryView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Items, 2)
	assert.Equal(t, "draft", string(created.Status))
	base := "/api/v1/deliveries/" + created.ID.String()

	var crisps deliveries.ItemView
	for _, item := range created.Items {
		if item.SKU == "CRISPS" {
			crisps = item
		}
	}

	// outer code is a case scan
	headers := map[string]string{"X-Scanner-Id": "dock-gun-1", "Idempotency-Key": "scan-1"}
	scanBody := map[string]any{"barcode": "OUT-COLA", "quantity": 1}
	rec, env = srv.do(t, http.MethodPost, base+"/scans", scanBody, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result deliveries.ScanResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Matched)
	assert.Equal(t, "case", string(result.ScanType))
	assert.Equal(t, 12, result.UnitsApplied)
	assert.Equal(t, "dock-gun-1", result.Scan.ScannedBy)
	assert.Equal(t, "receiving", string(result.DeliveryStatus))

	// a retried request replays instead of counting again
	rec, _ = srv.do(t, http.MethodPost, base+"/scans", scanBody, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = srv.do(t, http.MethodPost, base+"/scans", map[string]any{"barcode": "NOPE", "quantity": 1}, scanner)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.False(t, result.Matched)

	rec, _ = srv.do(t, http.MethodPost, base+"/items/"+crisps.ID.String()+"/unit-scans", map[string]any{"quantity": 5}, scanner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = srv.do(t, http.MethodGet, base+"/scans", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger []scans.View
	require.NoError(t, json.Unmarshal(env.Data, &ledger))
	assert.Len(t, ledger, 3)

	rec, env = srv.do(t, http.MethodGet, base+"/scans?matched=false", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &ledger))
	require.Len(t, ledger, 1)
	assert.Equal(t, "NOPE", ledger[0].Barcode)

	rec, env = srv.do(t, http.MethodGet, base+"/progress", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress deliveries.ProgressView
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, 17, progress.ReceivedUnits)
	assert.Equal(t, 29, progress.OrderedUnits)
	assert.InDelta(t, 50.0, progress.CompletionPercentage, 0.001)

	rec, env = srv.do(t, http.MethodPost, base+"/complete", nil, scanner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed deliveries.DeliveryView
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, "completed", string(completed.Status))

	rec, env = srv.do(t, http.MethodPost, base+"/items/"+crisps.ID.String()+"/unit-scans", map[string]any{"quantity": 1}, scanner)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "STATE_CONFLICT", env.Error.Code)

	rec, env = srv.do(t, http.MethodGet, base+"/discrepancies", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report deliveries.DiscrepancyReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "COLA", report.Lines[0].SKU)

	rec, _ = srv.do(t, http.MethodGet, base+"/discrepancies?format=xlsx", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reports.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestDeliveryValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodGet, "/api/v1/deliveries/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/deliveries/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = srv.do(t, http.MethodPost, "/api/v1/deliveries", map[string]any{"delivery_number": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/deliveries?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = srv.do(t, http.MethodPost, "/api/v1/deliveries", createPayload(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created deliveries.DeliveryView
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, _ = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/deliveries/%s/scans", created.ID), map[string]any{"barcode": "OUT-COLA", "quantity": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/deliveries/%s/items/%s/case-scans", created.ID, uuid.New()), map[string]any{"quantity": 1, "scanned_by": "op"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/deliveries?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []deliveries.DeliveryView
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page, 1)
}
