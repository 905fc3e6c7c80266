package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/model"
)

// caseIDSelector extracts the work unit from the job's otherwise opaque
// metadata document.
const caseIDSelector = "case_id"

// ZipExportOptions configures the zip export job handler.
type ZipExportOptions struct {
	Files  core.CaseFileRepository // Required: case file index
	Blobs  core.BlobStore          // Required: object storage
	Logger *slog.Logger            // Optional: structured logger

	// FetchConcurrency bounds concurrent file downloads; defaults to 4.
	FetchConcurrency int
	// SignTTL is the validity of the generated download link; defaults to 7 days.
	SignTTL time.Duration
}

// ZipExport packages a case's documents into a downloadable archive.
//
// Files that fail to download are logged and skipped rather than failing
// the whole export, even when that leaves the archive empty. Only a case
// with no files queued at all is a failure.
type ZipExport struct {
	files  core.CaseFileRepository
	blobs  core.BlobStore
	logger *slog.Logger

	fetchConcurrency int
	signTTL          time.Duration
}

// NewZipExport constructs the zip export handler.
func NewZipExport(opts ZipExportOptions) (*ZipExport, error) {
	if opts.Files == nil {
		return nil, errors.New("CaseFileRepository is required")
	}
	if opts.Blobs == nil {
		return nil, errors.New("BlobStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetchConcurrency := opts.FetchConcurrency
	if fetchConcurrency <= 0 {
		fetchConcurrency = 4
	}
	signTTL := opts.SignTTL
	if signTTL <= 0 {
		signTTL = 7 * 24 * time.Hour
	}

	return &ZipExport{
		files:            opts.Files,
		blobs:            opts.Blobs,
		logger:           logger,
		fetchConcurrency: fetchConcurrency,
		signTTL:          signTTL,
	}, nil
}

// Handle builds the archive for one claimed export job.
func (z *ZipExport) Handle(ctx context.Context, delivery *model.JobDelivery) (*HandlerResult, error) {
	caseID, err := extractCaseID(delivery.Metadata)
	if err != nil {
		return nil, err
	}

	files, err := z.files.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no files found for this case")
	}

	contents := z.fetchAll(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Failed downloads are skipped, not fatal. Even when every fetch
	// failed the export still completes with an empty archive; only a
	// case with no files queued at all fails above.
	archive, count, err := buildArchive(caseID, files, contents)
	if err != nil {
		return nil, err
	}

	archivePath := fmt.Sprintf("%s/%s/%d-archive.zip",
		delivery.OrgID, caseID, time.Now().UnixMilli())

	uploadErr := z.blobs.Upload(ctx, core.UploadParams{
		Path:        archivePath,
		Body:        archive,
		ContentType: "application/zip",
	})
	if uploadErr != nil {
		return nil, fmt.Errorf("upload archive: %w", uploadErr)
	}

	link, err := z.blobs.Sign(ctx, archivePath, z.signTTL)
	if err != nil {
		return nil, fmt.Errorf("sign archive url: %w", err)
	}

	z.logger.InfoContext(ctx, "export archive built",
		"job_id", delivery.ID,
		"case_id", caseID,
		"files", count,
		"skipped", len(files)-count,
	)

	return &HandlerResult{
		ResultURL:    link,
		Notification: z.successNotification(delivery, link),
	}, nil
}

// fetchAll downloads file contents with bounded concurrency. Failed
// downloads leave a nil entry; they are reported but do not fail the export.
func (z *ZipExport) fetchAll(ctx context.Context, files []*model.CaseFile) [][]byte {
	contents := make([][]byte, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(z.fetchConcurrency)

	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			data, err := z.blobs.Fetch(groupCtx, file.FileKey)
			if err != nil {
				z.logger.WarnContext(groupCtx, "skipping file that failed to download",
					"case_id", file.CaseID,
					"file_key", file.FileKey,
					"error", err,
				)
				return nil
			}
			contents[i] = data
			return nil
		})
	}

	// Fetch errors are swallowed per file, so this only surfaces cancellation
	_ = group.Wait()

	return contents
}

// buildArchive lays files out as <folder>/<category>/<basename>, where the
// folder carries a short case id prefix so extracted archives are
// recognizable.
func buildArchive(caseID string, files []*model.CaseFile, contents [][]byte) ([]byte, int, error) {
	folder := "expediente-" + shortCaseID(caseID)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	count := 0
	for i, file := range files {
		if contents[i] == nil {
			continue
		}

		category := file.Category
		if category == "" {
			category = "otros"
		}
		name := folder + "/" + category + "/" + path.Base(file.FileKey)

		entry, err := w.Create(name)
		if err != nil {
			return nil, 0, fmt.Errorf("create archive entry %s: %w", name, err)
		}
		if _, err := entry.Write(contents[i]); err != nil {
			return nil, 0, fmt.Errorf("write archive entry %s: %w", name, err)
		}
		count++
	}

	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("finalize archive: %w", err)
	}

	return buf.Bytes(), count, nil
}

func shortCaseID(caseID string) string {
	if len(caseID) > 8 {
		return caseID[:8]
	}
	return caseID
}

// successNotification builds the requester-facing completion notification.
// Requester-less jobs produce none.
func (z *ZipExport) successNotification(delivery *model.JobDelivery, link string) *model.CreateNotificationRequest {
	if delivery.RequesterID == nil || *delivery.RequesterID == "" {
		return nil
	}

	metadata, err := json.Marshal(model.NotificationMetadata{Link: link, External: true})
	if err != nil {
		metadata = nil
	}

	return &model.CreateNotificationRequest{
		UserID:   *delivery.RequesterID,
		OrgID:    delivery.OrgID,
		Title:    "Exportación Lista",
		Message:  "Tu archivo ZIP ha sido generado correctamente.",
		Type:     model.NotificationSuccess,
		Metadata: metadata,
	}
}

// extractCaseID pulls the case id out of the job metadata document.
func extractCaseID(metadata json.RawMessage) (string, error) {
	if len(metadata) == 0 {
		return "", errors.New("job metadata is missing")
	}

	var doc any
	if err := json.Unmarshal(metadata, &doc); err != nil {
		return "", fmt.Errorf("decode job metadata: %w", err)
	}

	value, err := jmespath.Search(caseIDSelector, doc)
	if err != nil {
		return "", fmt.Errorf("select case id: %w", err)
	}

	caseID, ok := value.(string)
	if !ok || caseID == "" {
		return "", errors.New("job metadata has no case_id")
	}
	return caseID, nil
}
