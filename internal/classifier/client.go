// Package classifier calls the document AI service that classifies
// document images, extracts cross-reference identifiers and verifies
// document content against ERP data.
package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/erpai/verification-be/internal/errclass"
)

// Config holds the classifier service connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DocumentImage is one page of a document, base64 encoded.
type DocumentImage struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// NewDocumentImage encodes raw image bytes for transport.
func NewDocumentImage(data []byte, mimeType string) DocumentImage {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return DocumentImage{
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    mimeType,
	}
}

// ClassificationResult is the /classify_document response.
type ClassificationResult struct {
	DocumentType string  `json:"document_type"`
	Confidence   float64 `json:"confidence"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// Discrepancy is one field mismatch reported by verification.
type Discrepancy struct {
	DiscrepancyType string `json:"discrepancy_type"`
	FieldName       string `json:"field_name"`
	DocumentValue   string `json:"document_value"`
	ERPValue        string `json:"erp_value"`
	Severity        string `json:"severity"`
	Description     string `json:"description"`
}

// FieldConfidence reports per-field extraction and verification scores.
type FieldConfidence struct {
	FieldName              string  `json:"field_name"`
	ExtractedValue         string  `json:"extracted_value"`
	VerificationConfidence float64 `json:"verification_confidence"`
	ExtractionConfidence   float64 `json:"extraction_confidence"`
}

// VerificationResult is the /verify_document response.
type VerificationResult struct {
	Discrepancies     []Discrepancy     `json:"discrepancies"`
	FieldConfidences  []FieldConfidence `json:"field_confidences"`
	OverallConfidence float64           `json:"overall_verification_confidence"`
	ErrorMessage      string            `json:"error_message,omitempty"`
}

// Client talks to the classifier service.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a classifier client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	return &Client{
		http:   client,
		logger: logger,
	}
}

type classifyRequest struct {
	JobNo          string          `json:"job_no"`
	DocumentImages []DocumentImage `json:"document_images"`
}

// Classify determines the document kind from its images.
func (c *Client) Classify(ctx context.Context, jobNo string, images []DocumentImage) (*ClassificationResult, error) {
	var result ClassificationResult

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(classifyRequest{JobNo: jobNo, DocumentImages: images}).
		SetResult(&result).
		Post("/classify_document")
	if err != nil {
		return nil, fmt.Errorf("classify document: %w", err)
	}

	if resp.IsError() {
		return nil, &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  "classify document",
			Body:       string(resp.Body()),
		}
	}

	if result.ErrorMessage != "" {
		return nil, fmt.Errorf("classify document: %s", result.ErrorMessage)
	}

	c.logger.Debug("Classified document",
		slog.String("job_no", jobNo),
		slog.String("document_type", result.DocumentType),
		slog.Float64("confidence", result.Confidence),
	)

	return &result, nil
}

type extractRequest struct {
	JobNo          string          `json:"job_no"`
	DocumentType   string          `json:"document_type"`
	DocumentImages []DocumentImage `json:"document_images"`
}

type extractResponse struct {
	ExtractedIdentifiers map[string]string `json:"extracted_identifiers"`
	ErrorMessage         string            `json:"error_message,omitempty"`
}

// ExtractIdentifiers pulls key identifiers out of a document's images.
// Fields the service could not read come back absent or as the literal
// "Not found"; callers decide whether that is fatal.
func (c *Client) ExtractIdentifiers(ctx context.Context, jobNo, docType string, images []DocumentImage) (map[string]string, error) {
	var result extractResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(extractRequest{JobNo: jobNo, DocumentType: docType, DocumentImages: images}).
		SetResult(&result).
		Post("/extract_identifiers")
	if err != nil {
		return nil, fmt.Errorf("extract identifiers: %w", err)
	}

	if resp.IsError() {
		return nil, &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  "extract identifiers",
			Body:       string(resp.Body()),
		}
	}

	if result.ErrorMessage != "" {
		return nil, fmt.Errorf("extract identifiers: %s", result.ErrorMessage)
	}

	c.logger.Debug("Extracted identifiers",
		slog.String("job_no", jobNo),
		slog.String("document_type", docType),
		slog.Int("identifier_count", len(result.ExtractedIdentifiers)),
	)

	return result.ExtractedIdentifiers, nil
}

type verifyRequest struct {
	JobNo          string          `json:"job_no"`
	DocumentType   string          `json:"document_type"`
	DocumentImages []DocumentImage `json:"document_images"`
	ERPData        map[string]any  `json:"erp_data"`
}

// Verify checks a document's content against the structured ERP data and
// returns the field-level mismatches.
func (c *Client) Verify(ctx context.Context, jobNo, docType string, images []DocumentImage, erpData map[string]any) (*VerificationResult, error) {
	var result VerificationResult

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(verifyRequest{JobNo: jobNo, DocumentType: docType, DocumentImages: images, ERPData: erpData}).
		SetResult(&result).
		Post("/verify_document")
	if err != nil {
		return nil, fmt.Errorf("verify document: %w", err)
	}

	if resp.IsError() {
		return nil, &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  "verify document",
			Body:       string(resp.Body()),
		}
	}

	if result.ErrorMessage != "" {
		return nil, fmt.Errorf("verify document: %s", result.ErrorMessage)
	}

	c.logger.Debug("Verified document",
		slog.String("job_no", jobNo),
		slog.String("document_type", docType),
		slog.Int("discrepancies", len(result.Discrepancies)),
		slog.Float64("confidence", result.OverallConfidence),
	)

	return &result, nil
}
