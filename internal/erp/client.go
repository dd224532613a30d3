// Package erp talks to the Business Central OData gateway. Every list
// endpoint returns the {"value": [...]} envelope and string keys are
// filtered with OData `eq` literals. Updates need an ETag fetched from
// the entity right before the PATCH.
package erp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/erpai/verification-be/internal/errclass"
	"golang.org/x/sync/errgroup"
)

// Config holds gateway connection settings.
type Config struct {
	BaseURL  string
	Company  string
	User     string
	Password string
	Timeout  time.Duration
}

// Client is the Business Central OData client.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a gateway client with basic auth.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if cfg.Company != "" {
		baseURL = fmt.Sprintf("%s/Company('%s')", baseURL, cfg.Company)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetBasicAuth(cfg.User, cfg.Password)
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(timeout)

	return &Client{
		http:   client,
		logger: logger,
	}
}

// fetchList fetches all rows of an entity set matching the filter.
func fetchList[T any](ctx context.Context, c *Client, operation, path, filter string) ([]T, error) {
	var wrapper ODataListResponse[T]

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("$filter", filter).
		SetResult(&wrapper).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	if resp.IsError() {
		return nil, &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  operation,
			Body:       string(resp.Body()),
		}
	}

	c.logger.Debug("Fetched ERP entity list",
		slog.String("operation", operation),
		slog.Int("count", len(wrapper.Value)),
	)

	return wrapper.Value, nil
}

// fetchOne fetches a single entity by filter. A miss returns nil, not an
// error, so callers can turn absence into a domain outcome.
func fetchOne[T any](ctx context.Context, c *Client, operation, path, filter string) (*T, error) {
	rows, err := fetchList[T](ctx, c, operation, path, filter)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		c.logger.Warn("No ERP record found",
			slog.String("operation", operation),
			slog.String("filter", filter),
		)
		return nil, nil
	}
	if len(rows) > 1 {
		c.logger.Warn("Expected a single ERP record, using the first",
			slog.String("operation", operation),
			slog.Int("count", len(rows)),
		)
	}
	return &rows[0], nil
}

// FetchJob fetches the job card for a job number. Returns nil when the
// job does not exist in the ERP.
func (c *Client) FetchJob(ctx context.Context, jobNo string) (*JobCard, error) {
	return fetchOne[JobCard](ctx, c, "fetch job card", "/Job_List", eqFilter("No", jobNo))
}

// FetchSalesQuote fetches a Sales Quote header by quote number.
func (c *Client) FetchSalesQuote(ctx context.Context, quoteNo string) (*SalesQuote, error) {
	return fetchOne[SalesQuote](ctx, c, "fetch sales quote", "/Sales_Quote", eqFilter("No", quoteNo))
}

// FetchSalesQuoteLines fetches all lines of a Sales Quote.
func (c *Client) FetchSalesQuoteLines(ctx context.Context, quoteNo string) ([]SalesQuoteLine, error) {
	return fetchList[SalesQuoteLine](ctx, c, "fetch sales quote lines", "/Sales_QuoteSalesLines", eqFilter("Document_No", quoteNo))
}

// FetchSalesInvoice fetches a Sales Invoice header by invoice number.
func (c *Client) FetchSalesInvoice(ctx context.Context, invoiceNo string) (*SalesInvoice, error) {
	return fetchOne[SalesInvoice](ctx, c, "fetch sales invoice", "/Sales_Invoice", eqFilter("No", invoiceNo))
}

// FetchSalesInvoiceLinesByJob fetches invoice lines linked to a job.
func (c *Client) FetchSalesInvoiceLinesByJob(ctx context.Context, jobNo string) ([]SalesInvoiceLine, error) {
	return fetchList[SalesInvoiceLine](ctx, c, "fetch sales invoice lines", "/Sales_InvoiceSalesLines", eqFilter("Job_No", jobNo))
}

// FetchJobLedgerEntries fetches ledger entries for a job.
func (c *Client) FetchJobLedgerEntries(ctx context.Context, jobNo string) ([]JobLedgerEntry, error) {
	return fetchList[JobLedgerEntry](ctx, c, "fetch job ledger entries", "/Job_Ledger_Entries", eqFilter("Job_No", jobNo))
}

// FetchAttachmentLinks fetches the attachment link row for a job.
// Returns nil when the job has no attachments registered.
func (c *Client) FetchAttachmentLinks(ctx context.Context, jobNo string) (*AttachmentLinks, error) {
	return fetchOne[AttachmentLinks](ctx, c, "fetch job attachment links", "/JobAttachmentLinks", eqFilter("No", jobNo))
}

// FetchAllVerificationData fetches quote header+lines, invoice
// header+lines and ledger entries concurrently. Each fetch that fails
// degrades to absence: reconciliation turns missing records into
// discrepancies rather than aborting the run.
func (c *Client) FetchAllVerificationData(ctx context.Context, quoteNo, invoiceNo, jobNo string) (*VerificationData, error) {
	data := &VerificationData{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		quote, err := c.FetchSalesQuote(gctx, quoteNo)
		if err != nil {
			c.logger.Warn("Failed to fetch sales quote", slog.String("quote_no", quoteNo), slog.Any("error", err))
			return nil
		}
		data.Quote = quote
		return nil
	})

	g.Go(func() error {
		lines, err := c.FetchSalesQuoteLines(gctx, quoteNo)
		if err != nil {
			c.logger.Warn("Failed to fetch sales quote lines", slog.String("quote_no", quoteNo), slog.Any("error", err))
			return nil
		}
		data.QuoteLines = lines
		return nil
	})

	g.Go(func() error {
		invoice, err := c.FetchSalesInvoice(gctx, invoiceNo)
		if err != nil {
			c.logger.Warn("Failed to fetch sales invoice", slog.String("invoice_no", invoiceNo), slog.Any("error", err))
			return nil
		}
		data.Invoice = invoice
		return nil
	})

	g.Go(func() error {
		lines, err := c.FetchSalesInvoiceLinesByJob(gctx, jobNo)
		if err != nil {
			c.logger.Warn("Failed to fetch sales invoice lines", slog.String("job_no", jobNo), slog.Any("error", err))
			return nil
		}
		data.InvoiceLines = lines
		return nil
	})

	g.Go(func() error {
		entries, err := c.FetchJobLedgerEntries(gctx, jobNo)
		if err != nil {
			c.logger.Warn("Failed to fetch job ledger entries", slog.String("job_no", jobNo), slog.Any("error", err))
			return nil
		}
		data.LedgerEntries = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("Fetched verification data",
		slog.String("job_no", jobNo),
		slog.Bool("quote_found", data.Quote != nil),
		slog.Bool("invoice_found", data.Invoice != nil),
		slog.Int("quote_lines", len(data.QuoteLines)),
		slog.Int("invoice_lines", len(data.InvoiceLines)),
		slog.Int("ledger_entries", len(data.LedgerEntries)),
	)

	return data, nil
}

// UpdateJobField patches a single field on the Job_Card entity. OData
// requires the entity's current ETag in If-Match, so the entity is read
// first.
func (c *Client) UpdateJobField(ctx context.Context, jobNo, fieldName, value string) error {
	path := fmt.Sprintf("/Job_Card(No='%s')", jobNo)

	getResp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return fmt.Errorf("fetch job card etag: %w", err)
	}
	if getResp.IsError() {
		return &errclass.HTTPStatusError{
			StatusCode: getResp.StatusCode(),
			Operation:  "fetch job card etag",
			Body:       string(getResp.Body()),
		}
	}

	etag := getResp.Header().Get("ETag")
	if etag == "" {
		return fmt.Errorf("no ETag returned for job card %s", jobNo)
	}

	patchResp, err := c.http.R().
		SetContext(ctx).
		SetHeader("If-Match", etag).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{fieldName: value}).
		Patch(path)
	if err != nil {
		return fmt.Errorf("update job card field: %w", err)
	}
	if patchResp.IsError() {
		return &errclass.HTTPStatusError{
			StatusCode: patchResp.StatusCode(),
			Operation:  "update job card field",
			Body:       string(patchResp.Body()),
		}
	}

	c.logger.Info("Updated job card field",
		slog.String("job_no", jobNo),
		slog.String("field", fieldName),
	)

	return nil
}

// UpdateVerificationFields records the verification verdict on the job
// card through the bound action, setting the check date, time, actor and
// comment in one call.
func (c *Client) UpdateVerificationFields(ctx context.Context, jobNo, comment string) error {
	now := time.Now()

	body := map[string]any{
		"jobNo":     jobNo,
		"checkDate": now.Format("2006-01-02"),
		"checkBy":   "AI LLM Service",
		"checkTime": now.Format("15:04:05"),
		"comment":   comment,
	}

	path := fmt.Sprintf("/Job_Card(No='%s')/Microsoft.NAV.updateVerificationFields", jobNo)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("update verification fields: %w", err)
	}
	if resp.IsError() {
		return &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  "update verification fields",
			Body:       string(resp.Body()),
		}
	}

	c.logger.Info("Updated verification fields", slog.String("job_no", jobNo))

	return nil
}

// eqFilter builds an OData equality filter. Single quotes in the value
// are doubled per the OData literal escaping rules.
func eqFilter(field, value string) string {
	return fmt.Sprintf("%s eq '%s'", field, strings.ReplaceAll(value, "'", "''"))
}
