package docstore

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/erpai/verification-be/internal/domain"
	"github.com/erpai/verification-be/internal/erp"
)

// AttachmentSource lists the download links registered for a job.
type AttachmentSource interface {
	FetchAttachmentLinks(ctx context.Context, jobNo string) (*erp.AttachmentLinks, error)
}

// Downloader fetches a file from an absolute URL.
type Downloader interface {
	Download(ctx context.Context, fileURL string) ([]byte, string, error)
}

// DocumentSink is the subset of Store used during acquisition.
type DocumentSink interface {
	KindExists(ctx context.Context, jobNo, kind string) (bool, error)
	FileExists(ctx context.Context, jobNo, fileName string) (bool, error)
	Insert(ctx context.Context, doc *domain.JobDocument) error
}

// Acquirer pulls attachment links from the ERP and stores the files.
type Acquirer struct {
	source     AttachmentSource
	downloader Downloader
	sink       DocumentSink
	logger     *slog.Logger
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(source AttachmentSource, downloader Downloader, sink DocumentSink, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		source:     source,
		downloader: downloader,
		sink:       sink,
		logger:     logger,
	}
}

var requiredKinds = []string{
	domain.DocKindSalesQuote,
	domain.DocKindProformaInvoice,
	domain.DocKindJobConsumption,
}

// AcquireForJob downloads and stores the job's attachments. Files whose
// names were stored before are skipped, and nothing is fetched at all
// when every required kind is already present. Returns the number of
// newly stored documents. A per-file failure skips that file only.
func (a *Acquirer) AcquireForJob(ctx context.Context, jobNo string) (int, error) {
	allPresent := true
	for _, kind := range requiredKinds {
		exists, err := a.sink.KindExists(ctx, jobNo, kind)
		if err != nil {
			return 0, err
		}
		if !exists {
			allPresent = false
			break
		}
	}
	if allPresent {
		a.logger.Info("All required documents already stored", slog.String("job_no", jobNo))
		return 0, nil
	}

	links, err := a.source.FetchAttachmentLinks(ctx, jobNo)
	if err != nil {
		return 0, err
	}
	if links == nil || strings.TrimSpace(links.FileLinks) == "" {
		a.logger.Warn("No attachment links registered for job", slog.String("job_no", jobNo))
		return 0, nil
	}

	stored := 0
	for _, raw := range strings.Split(links.FileLinks, ",") {
		fileURL := cleanURL(raw)
		if fileURL == "" {
			a.logger.Warn("Skipping invalid attachment URL",
				slog.String("job_no", jobNo),
				slog.String("url", raw),
			)
			continue
		}

		fileName := fileNameFromURL(fileURL)

		exists, err := a.sink.FileExists(ctx, jobNo, fileName)
		if err != nil {
			return stored, err
		}
		if exists {
			a.logger.Debug("Document file already stored",
				slog.String("job_no", jobNo),
				slog.String("file_name", fileName),
			)
			continue
		}

		data, contentType, err := a.downloader.Download(ctx, fileURL)
		if err != nil {
			a.logger.Warn("Failed to download attachment, skipping",
				slog.String("job_no", jobNo),
				slog.String("url", fileURL),
				slog.Any("error", err),
			)
			continue
		}

		if contentType == "" || contentType == "application/octet-stream" {
			contentType = ContentTypeFor(fileName)
		}

		doc := &domain.JobDocument{
			JobNo:        jobNo,
			DocumentType: MatchKind(fileName),
			FileName:     fileName,
			ContentType:  contentType,
			DocumentData: data,
			SourceURL:    fileURL,
		}
		if err := a.sink.Insert(ctx, doc); err != nil {
			return stored, err
		}
		stored++
	}

	a.logger.Info("Document acquisition finished",
		slog.String("job_no", jobNo),
		slog.Int("stored", stored),
	)

	return stored, nil
}

// cleanURL trims an attachment link and repairs double-encoded spaces.
// Returns "" for links that are not usable URLs.
func cleanURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || !strings.Contains(u, "http") {
		return ""
	}
	return strings.ReplaceAll(u, "%2520", "%20")
}

// fileNameFromURL extracts the decoded final path segment.
func fileNameFromURL(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	path := fileURL
	if err == nil {
		path = parsed.Path
	}

	segments := strings.Split(path, "/")
	name := segments[len(segments)-1]
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		return "unknown_file"
	}
	return name
}
