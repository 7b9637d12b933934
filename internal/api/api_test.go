package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/Veraticus/autobooks/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	stack  *testutil.Stack
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	stack := testutil.SetupStack(t)
	reg := prometheus.NewRegistry()

	router := NewRouter(Deps{
		Engine:   stack.Engine,
		Rules:    stack.Rules,
		Ledger:   stack.DB,
		Gatherer: reg,
		Metrics:  NewHTTPMetrics(reg),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{stack: stack, server: server}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

const acmeDocument = `{
	"document_id": "inv-1",
	"vendor": "Acme Rentals",
	"amount": "₹10,000.00",
	"date": "2024-03-01",
	"tax_category": "rent",
	"raw_text": "Monthly rent for office premises"
}`

const acmeCorrection = `{"debit_account":"Rent Expense","credit_account":"Acme Rentals (Payable)","tds_applicable":true}`

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))
}

func TestEscalateAndCorrect(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/documents", acmeDocument)
	require.Equal(t, http.StatusAccepted, status, string(body))
	var escalated DocumentResult
	require.NoError(t, json.Unmarshal(body, &escalated))
	assert.Equal(t, engine.StateEscalated, escalated.State)
	require.NotNil(t, escalated.Pending)
	assert.Equal(t, model.ReasonLowConfidence, escalated.Pending.Reason)

	status, body = s.do(t, http.MethodGet, "/api/pending", "")
	require.Equal(t, http.StatusOK, status)
	var pending []model.PendingDocument
	require.NoError(t, json.Unmarshal(body, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "inv-1", pending[0].DocumentID)

	status, _ = s.do(t, http.MethodGet, "/api/pending/inv-1", "")
	assert.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodPost, "/api/pending/inv-1/correction", acmeCorrection)
	require.Equal(t, http.StatusCreated, status, string(body))
	var resolved DocumentResult
	require.NoError(t, json.Unmarshal(body, &resolved))
	require.NotNil(t, resolved.Transaction)
	assert.Equal(t, model.StatusUserConfirmed, resolved.Transaction.Status)
	assert.Equal(t, "1000.00", resolved.Transaction.TDSAmount.StringFixed(2))
	assert.Equal(t, "9000.00", resolved.Transaction.CreditAmount.StringFixed(2))

	status, _ = s.do(t, http.MethodPost, "/api/pending/inv-1/correction", acmeCorrection)
	assert.Equal(t, http.StatusConflict, status)

	// Resubmitting a corrected document neither reopens nor reposts it.
	status, _ = s.do(t, http.MethodPost, "/api/documents", acmeDocument)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.do(t, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, status)
	var rules []model.Rule
	require.NoError(t, json.Unmarshal(body, &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, "acme rentals", rules[0].VendorKey)

	status, _ = s.do(t, http.MethodGet, "/api/rules/Acme%20Rentals", "")
	assert.Equal(t, http.StatusOK, status)

	// The learned rule now auto-posts the next invoice.
	next := bytes.Replace([]byte(acmeDocument), []byte(`"inv-1"`), []byte(`"inv-2"`), 1)
	status, body = s.do(t, http.MethodPost, "/api/documents", string(next))
	require.Equal(t, http.StatusCreated, status, string(body))
	var posted DocumentResult
	require.NoError(t, json.Unmarshal(body, &posted))
	assert.Equal(t, engine.StateAutoPosted, posted.State)

	status, _ = s.do(t, http.MethodPost, "/api/documents", string(next))
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.do(t, http.MethodGet, "/api/ledger/summary", "")
	require.Equal(t, http.StatusOK, status)
	var summary storage.LedgerSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 2, summary.Entries)
	assert.Equal(t, "2000.00", summary.TotalTDS.StringFixed(2))

	status, body = s.do(t, http.MethodGet, "/api/ledger?status=AUTO_POSTED", "")
	require.Equal(t, http.StatusOK, status)
	var txs []model.Transaction
	require.NoError(t, json.Unmarshal(body, &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "inv-2", txs[0].DocumentID)
}

func TestSubmitDocumentErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed json", body: `{"vendor":`, status: http.StatusBadRequest},
		{name: "zero amount", body: `{"vendor":"Acme","amount":0}`, status: http.StatusUnprocessableEntity},
		{name: "negative amount", body: `{"vendor":"Acme","amount":"-5"}`, status: http.StatusUnprocessableEntity},
		{name: "unparseable amount", body: `{"vendor":"Acme","amount":"lots"}`, status: http.StatusUnprocessableEntity},
		{name: "missing vendor escalates", body: `{"amount":500}`, status: http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/api/documents", tt.body)
			assert.Equal(t, tt.status, status, string(body))
		})
	}
}

func TestSubmitDocumentBatch(t *testing.T) {
	s := newTestServer(t)

	body := `[
		{"document_id":"a","vendor":"Acme Rentals","amount":10000,"raw_text":"rent"},
		{"document_id":"b","vendor":"Acme Rentals","amount":"bogus"},
		{"document_id":"c","vendor":"Globex","amount":-1}
	]`
	status, data := s.do(t, http.MethodPost, "/api/documents", body)
	require.Equal(t, http.StatusOK, status, string(data))

	var results []DocumentResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 3)
	assert.Equal(t, engine.StateEscalated, results[0].State)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[1].Error, "invalid amount")
	assert.Equal(t, "b", results[1].DocumentID)
	assert.Contains(t, results[2].Error, "invalid amount")
}

func TestCorrectionErrors(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodPost, "/api/documents", acmeDocument)
	require.Equal(t, http.StatusAccepted, status)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "unknown document", path: "/api/pending/nope/correction", body: acmeCorrection, status: http.StatusNotFound},
		{name: "missing accounts", path: "/api/pending/inv-1/correction", body: `{"debit_account":"Rent Expense"}`, status: http.StatusBadRequest},
		{name: "unknown field", path: "/api/pending/inv-1/correction", body: `{"debit":"x"}`, status: http.StatusBadRequest},
		{name: "malformed", path: "/api/pending/inv-1/correction", body: `nope`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(body))
		})
	}

	status, _ = s.do(t, http.MethodGet, "/api/pending/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodGet, "/api/rules/nobody", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLedgerQueryValidation(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/ledger?status=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodGet, "/api/ledger?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, body := s.do(t, http.MethodGet, "/api/ledger", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", "")

	status, body := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `books_http_requests_total{code="200",method="GET",route="/health"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", common.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{engine.ErrPendingNotFound, http.StatusNotFound},
		{engine.ErrAlreadyResolved, http.StatusConflict},
		{fmt.Errorf("process: %w", engine.ErrAlreadyProcessed), http.StatusConflict},
		{fmt.Errorf("learn: %w", common.ErrPersistenceFailure), http.StatusServiceUnavailable},
		{common.ErrDataAbsence, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
