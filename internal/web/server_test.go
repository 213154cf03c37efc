package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrkportal/sheetengine/internal/config"
	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 10 * time.Second,
			MaxUploadBytes: 1 << 20,
		},
		Engine: config.EngineConfig{SampleSize: 10, PreviewRows: 5},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	svc := core.NewService(store.NewMemory(), cfg.ServiceOptions())
	srv, err := NewServer(svc, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func registerSales(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/tables", map[string]any{
		"id":      "sales",
		"name":    "Sales",
		"columns": []string{"Region", "Amount", "Units"},
		"rows": [][]any{
			{"North", "$1,200.50", "4"},
			{"South", "$300", "2"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServer_TablesLifecycle(t *testing.T) {
	h := newTestServer(t, nil)
	registerSales(t, h)

	rec := do(t, h, http.MethodGet, "/api/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decode[[]core.SourceInfo](t, rec)
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].ColumnCount)
	assert.Equal(t, 2, infos[0].RowCount)

	rec = do(t, h, http.MethodGet, "/api/tables/sales", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	opened := decode[core.OpenedTable](t, rec)
	assert.Equal(t, core.TypeCurrency, opened.Data.ColumnMetadata[1].DataType)
	assert.Equal(t, core.TypeNumber, opened.Data.ColumnMetadata[2].DataType)

	rec = do(t, h, http.MethodGet, "/api/tables/sales/render", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rendered := decode[core.RenderedTable](t, rec)
	assert.Equal(t, []string{"South", "$300.00", "2"}, rendered.Rows[1])

	rec = do(t, h, http.MethodGet, "/tables/sales", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1>Sales</h1>")
	assert.Contains(t, rec.Body.String(), "$1,200.50")

	rec = do(t, h, http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), `href="/tables/sales"`)

	rec = do(t, h, http.MethodPost, "/api/tables", map[string]any{"id": "sales", "columns": []string{"A"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/tables/sales", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/tables/sales", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "TBL001", errResp.Code)

	rec = do(t, h, http.MethodGet, "/tables/sales", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
}

func TestServer_RejectsBadBodies(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/tables", map[string]any{"columns": []string{"A"}, "extra": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tables", map[string]any{"columns": []string{"A", "A"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "duplicate column")

	req := httptest.NewRequest(http.MethodPost, "/api/tables", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestServer_UploadCSV(t *testing.T) {
	h := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "orders.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\xEF\xBB\xBFOrder,Total\n1,10\n2,20\n"))
	require.NoError(t, mw.WriteField("id", "orders"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tables/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	info := decode[core.SourceInfo](t, rec)
	assert.Equal(t, "orders", info.ID)
	assert.Equal(t, "orders", info.Name, "name defaults to the file name")
	assert.Equal(t, 2, info.RowCount)
}

func TestServer_ColumnSettings(t *testing.T) {
	h := newTestServer(t, nil)
	registerSales(t, h)

	rec := do(t, h, http.MethodPut, "/api/tables/sales/columns/1/type",
		map[string]string{"dataType": "Currency", "format": "currency_integer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/tables/sales/columns/0/width", map[string]int{"width": 180})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 180, decode[core.FileSettings](t, rec).ColumnWidths[0])

	rec = do(t, h, http.MethodGet, "/api/tables/sales/render", nil)
	rendered := decode[core.RenderedTable](t, rec)
	assert.Equal(t, "$300", rendered.Rows[1][1])
	assert.Equal(t, 180, rendered.Columns[0].Width)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"index not a number", "/api/tables/sales/columns/x/type", map[string]string{"dataType": "text"}, http.StatusBadRequest},
		{"index out of range", "/api/tables/sales/columns/9/width", map[string]int{"width": 100}, http.StatusBadRequest},
		{"width too small", "/api/tables/sales/columns/0/width", map[string]int{"width": 1}, http.StatusBadRequest},
		{"unknown type", "/api/tables/sales/columns/0/type", map[string]string{"dataType": "money"}, http.StatusBadRequest},
		{"missing table", "/api/tables/ghost/columns/0/width", map[string]int{"width": 100}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_CalculatedFields(t *testing.T) {
	h := newTestServer(t, nil)
	registerSales(t, h)

	rec := do(t, h, http.MethodPost, "/api/tables/sales/formula/preview", map[string]string{"formula": "DIVIDE(Amount, Units)"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[core.FormulaPreview](t, rec)
	assert.Equal(t, []any{300.125, 150.0}, preview.Values)

	rec = do(t, h, http.MethodPost, "/api/tables/sales/formula/validate", map[string]string{"formula": "SUM(Nope, 1)"})
	require.Equal(t, http.StatusOK, rec.Code)
	validation := decode[map[string]any](t, rec)
	assert.Equal(t, false, validation["valid"])
	assert.Equal(t, "FRM004", validation["code"])

	rec = do(t, h, http.MethodPost, "/api/tables/sales/calculated", map[string]string{"name": "Per Unit", "formula": "ROUND(DIVIDE(Amount, Units), 1)"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[core.OpenedTable](t, rec)
	assert.Equal(t, "Per Unit", opened.Data.Columns[3])
	assert.Equal(t, 300.1, opened.Data.Rows[0][3])

	rec = do(t, h, http.MethodPost, "/api/tables/sales/calculated", map[string]string{"name": "per unit", "formula": "SUM(Units, 1)"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tables/sales/calculated", map[string]string{"name": "Bad", "formula": "SUM(Units,"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FRM001", decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodDelete, "/api/tables/sales/calculated/Region", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/tables/sales/calculated/Per%20Unit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[core.OpenedTable](t, rec).Data.Columns, 3)
}

func TestServer_MergesAndCascade(t *testing.T) {
	h := newTestServer(t, nil)
	for _, tbl := range []map[string]any{
		{"id": "q1", "columns": []string{"SKU", "Qty"}, "rows": [][]any{{"A", "1"}}},
		{"id": "q2", "columns": []string{"SKU", "Qty"}, "rows": [][]any{{"B", "2"}}},
	} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/tables", tbl).Code)
	}

	rec := do(t, h, http.MethodPost, "/api/merges", map[string]any{
		"derivedId": "half", "name": "First half", "kind": "union",
		"sources": []map[string]string{{"sourceId": "q1"}, {"sourceId": "q2"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/merges", map[string]any{
		"derivedId": "q1", "kind": "union",
		"sources": []map[string]string{{"sourceId": "half"}, {"sourceId": "q2"}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/tables/q1/source", strings.NewReader("SKU,Qty\nA,5\nC,7\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[core.CascadeResult](t, rec)
	assert.Equal(t, []string{"half"}, result.Succeeded())

	rec = do(t, h, http.MethodPut, "/api/tables/q2/source", map[string]any{
		"columns": []string{"SKU", "Count"}, "rows": [][]any{{"B", "2"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode[core.CascadeResult](t, rec)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, core.StatusHeaderMismatch, result.Outcomes[0].Status)

	rec = do(t, h, http.MethodGet, "/api/tables/half", nil)
	assert.Len(t, decode[core.OpenedTable](t, rec).Data.Rows, 3, "a mismatch leaves the merged table untouched")

	rec = do(t, h, http.MethodPut, "/api/tables/half/source", map[string]any{"columns": []string{"SKU"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/merges", nil)
	assert.Len(t, decode[[]core.MergeSpec](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/cascades/status", nil)
	assert.Equal(t, 0, decode[core.LimiterStatus](t, rec).Active)
}

func TestServer_StatelessEngine(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/evaluate", map[string]any{
		"formula": "=IF(Qty > 1, MULTIPLY([Unit Price], Qty), 0)",
		"columns": []string{"Unit Price", "Qty"},
		"rows":    [][]any{{"2.5", "4"}, {"3", "1"}, {"x", "2"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var eval struct {
		References []string `json:"references"`
		Values     []any    `json:"values"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eval))
	assert.ElementsMatch(t, []string{"Unit Price", "Qty"}, eval.References)
	assert.Equal(t, []any{10.0, 0.0, 0.0}, eval.Values)

	rec = do(t, h, http.MethodPost, "/api/evaluate", map[string]any{"formula": "SUM(1,", "columns": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/infer", map[string]any{
		"columns": []string{"When", "Flag", "Price"},
		"rows":    [][]any{{"2024-01-05", "yes", "$4.00"}, {"2024-02-10", "no", "$5.25"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var inferred struct {
		Columns []core.ColumnMetadata `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inferred))
	require.Len(t, inferred.Columns, 3)
	assert.Equal(t, core.TypeDate, inferred.Columns[0].DataType)
	assert.Equal(t, core.TypeBoolean, inferred.Columns[1].DataType)
	assert.Equal(t, core.TypeCurrency, inferred.Columns[2].DataType)

	rec = do(t, h, http.MethodPost, "/api/format", map[string]any{"value": "45000", "dataType": "date", "format": "YYYY-MM-DD"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2023-03-15", decode[map[string]string](t, rec)["formatted"])

	rec = do(t, h, http.MethodPost, "/api/format", map[string]any{"value": 1, "dataType": "number", "format": "YYYY-MM-DD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_APIKeysStampEditor(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"ann:secret-1"}}
	})

	rec := do(t, h, http.MethodGet, "/api/tables", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind auth")

	rec = do(t, h, http.MethodPost, "/api/tables", map[string]any{"id": "t", "columns": []string{"A"}, "rows": [][]any{{"1"}}},
		"X-API-Key", "secret-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/tables/t/columns/0/width", map[string]int{"width": 90}, "X-API-Key", "secret-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ann", decode[core.FileSettings](t, rec).UpdatedBy)
}

func TestServer_RateLimitsWrites(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, WriteLimit: 1}
	})

	body := map[string]any{"columns": []string{"A"}}
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/tables", body).Code)

	rec := do(t, h, http.MethodPost, "/api/tables", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/tables", nil).Code, "reads use the general limit")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound("table not found: x"), http.StatusNotFound},
		{core.ErrValidation("bad"), http.StatusBadRequest},
		{core.ErrConflict("exists"), http.StatusConflict},
		{&core.CycleError{Path: []string{"a", "b", "a"}}, http.StatusConflict},
		{core.ErrColumnExists, http.StatusConflict},
		{core.ErrNotCalculated, http.StatusBadRequest},
		{core.ErrTooManyCascades, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "statusFor(%v)", tt.err)
	}
}
