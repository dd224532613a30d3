package erp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erpai/verification-be/internal/errclass"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(&Config{
		BaseURL:  srv.URL,
		User:     "svc",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, testLogger())
}

func TestFetchSalesQuote(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Sales_Quote", r.URL.Path)
		assert.Equal(t, "No eq 'SQ-1001'", r.URL.Query().Get("$filter"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"No":                    "SQ-1001",
					"Sell_to_Customer_No":   "C0042",
					"Sell_to_Customer_Name": "Contoso Ltd",
					"Amount_Including_VAT":  1234.50,
				},
			},
		})
	}))

	quote, err := client.FetchSalesQuote(context.Background(), "SQ-1001")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, "SQ-1001", quote.No)
	assert.Equal(t, "Contoso Ltd", quote.SellToCustomerName)
	assert.InDelta(t, 1234.50, quote.AmountIncludingVAT, 0.001)
}

func TestEqFilterEscapesSingleQuotes(t *testing.T) {
	assert.Equal(t, "No eq 'SQ-1001'", eqFilter("No", "SQ-1001"))
	assert.Equal(t, "No eq 'O''Brien'", eqFilter("No", "O'Brien"))
}

func TestFetchSalesQuoteQuotedValue(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "No eq 'SQ''77'", r.URL.Query().Get("$filter"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[]}`))
	}))

	quote, err := client.FetchSalesQuote(context.Background(), "SQ'77")
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestFetchSalesQuoteNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[]}`))
	}))

	quote, err := client.FetchSalesQuote(context.Background(), "SQ-MISSING")
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestFetchUnauthorizedIsCritical(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))

	_, err := client.FetchJobLedgerEntries(context.Background(), "J100")
	require.Error(t, err)

	var statusErr *errclass.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, errclass.ClassCritical, errclass.Classify(err))
}

func TestFetchSalesInvoiceLinesByJob(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Sales_InvoiceSalesLines", r.URL.Path)
		assert.Equal(t, "Job_No eq 'J100'", r.URL.Query().Get("$filter"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[
			{"Document_No":"INV-9","Line_No":10000,"Description":"Consulting","Quantity":2,"Job_No":"J100"},
			{"Document_No":"INV-9","Line_No":20000,"Description":"Hardware","Quantity":1,"Job_No":"J100"}
		]}`))
	}))

	lines, err := client.FetchSalesInvoiceLinesByJob(context.Background(), "J100")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Consulting", lines[0].Description)
	assert.Equal(t, 20000, lines[1].LineNo)
}

func TestUpdateJobFieldETagFlow(t *testing.T) {
	var patchCalled bool

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Job_Card(No='J100')", r.URL.Path)

		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", `W/"JzQ0O0pW"`)
			w.Write([]byte(`{"No":"J100"}`))
		case http.MethodPatch:
			patchCalled = true
			assert.Equal(t, `W/"JzQ0O0pW"`, r.Header.Get("If-Match"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "2026-08-31", body["_x0032_nd_Check_Date"])

			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))

	err := client.UpdateJobField(context.Background(), "J100", "_x0032_nd_Check_Date", "2026-08-31")
	require.NoError(t, err)
	assert.True(t, patchCalled)
}

func TestUpdateJobFieldMissingETag(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"No":"J100"}`))
	}))

	err := client.UpdateJobField(context.Background(), "J100", "_x0032_nd_Check_Date", "2026-08-31")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ETag")
}

func TestUpdateVerificationFields(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Job_Card(No='J100')/Microsoft.NAV.updateVerificationFields", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "J100", body["jobNo"])
		assert.Equal(t, "AI LLM Service", body["checkBy"])
		assert.Equal(t, "Verified by AI LLM Service - All documents passed verification", body["comment"])
		assert.NotEmpty(t, body["checkDate"])
		assert.NotEmpty(t, body["checkTime"])

		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateVerificationFields(context.Background(), "J100",
		"Verified by AI LLM Service - All documents passed verification")
	require.NoError(t, err)
}

func TestFetchAllVerificationDataDegradesToAbsence(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/Sales_Quote":
			// Quote endpoint is down, fetch must degrade to absence
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/Sales_QuoteSalesLines":
			w.Write([]byte(`{"value":[{"Document_No":"SQ-1","Line_No":10000,"Description":"Consulting","Quantity":1}]}`))
		case "/Sales_Invoice":
			w.Write([]byte(`{"value":[{"No":"INV-9","Amount":99.5}]}`))
		case "/Sales_InvoiceSalesLines":
			w.Write([]byte(`{"value":[]}`))
		case "/Job_Ledger_Entries":
			w.Write([]byte(`{"value":[{"Entry_No":1,"Job_No":"J100","Description":"Posted"}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	data, err := client.FetchAllVerificationData(context.Background(), "SQ-1", "INV-9", "J100")
	require.NoError(t, err)

	assert.Nil(t, data.Quote)
	require.Len(t, data.QuoteLines, 1)
	require.NotNil(t, data.Invoice)
	assert.Equal(t, "INV-9", data.Invoice.No)
	assert.Empty(t, data.InvoiceLines)
	require.Len(t, data.LedgerEntries, 1)
}
