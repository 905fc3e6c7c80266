package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexia/casedesk/internal/core"
	"github.com/lexia/casedesk/internal/domain/model"
)

const (
	testCaseID = "9f8b8d4a-1c2d-4e5f-8a9b-0c1d2e3f4a5b"
	testOrgID  = "123e4567-e89b-12d3-a456-426614174000"
)

// fakeCaseFiles serves a fixed file list for one case.
type fakeCaseFiles struct {
	files   []*model.CaseFile
	listErr error
}

func (f *fakeCaseFiles) ListByCase(_ context.Context, caseID string) ([]*model.CaseFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.CaseFile
	for _, file := range f.files {
		if file.CaseID == caseID {
			out = append(out, file)
		}
	}
	return out, nil
}

// fakeBlobStore is an in-memory BlobStore. Keys in failFetch error on Fetch.
type fakeBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failFetch map[string]bool
	uploads   map[string][]byte
	uploadCT  map[string]string
	uploadErr error
	signErr   error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:   make(map[string][]byte),
		failFetch: make(map[string]bool),
		uploads:   make(map[string][]byte),
		uploadCT:  make(map[string]string),
	}
}

func (f *fakeBlobStore) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch[path] {
		return nil, errors.New("object not found")
	}
	data, ok := f.objects[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeBlobStore) Upload(_ context.Context, params core.UploadParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[params.Path] = params.Body
	f.uploadCT[params.Path] = params.ContentType
	return nil
}

func (f *fakeBlobStore) Sign(_ context.Context, path string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.example.com/" + path, nil
}

func (f *fakeBlobStore) uploadedArchive(t *testing.T) (string, []byte) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.uploads, 1)
	for path, body := range f.uploads {
		return path, body
	}
	return "", nil
}

func archiveEntries(t *testing.T, body []byte) map[string][]byte {
	t.Helper()

	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	entries := make(map[string][]byte)
	for _, file := range reader.File {
		rc, openErr := file.Open()
		require.NoError(t, openErr)
		data, readErr := io.ReadAll(rc)
		require.NoError(t, readErr)
		require.NoError(t, rc.Close())
		entries[file.Name] = data
	}
	return entries
}

func newTestZipExport(t *testing.T, files *fakeCaseFiles, blobs *fakeBlobStore) *ZipExport {
	t.Helper()

	handler, err := NewZipExport(ZipExportOptions{
		Files: files,
		Blobs: blobs,
	})
	require.NoError(t, err)
	return handler
}

func exportDelivery(requesterID string) *model.JobDelivery {
	delivery := &model.JobDelivery{
		ID:       "job-1",
		OrgID:    testOrgID,
		Type:     model.JobTypeZipExport,
		Status:   model.JobStatusPending,
		Metadata: json.RawMessage(`{"case_id": "` + testCaseID + `"}`),
	}
	if requesterID != "" {
		delivery.RequesterID = &requesterID
	}
	return delivery
}

func TestNewZipExport(t *testing.T) {
	t.Run("requires the file index", func(t *testing.T) {
		_, err := NewZipExport(ZipExportOptions{Blobs: newFakeBlobStore()})
		assert.ErrorContains(t, err, "CaseFileRepository is required")
	})

	t.Run("requires the blob store", func(t *testing.T) {
		_, err := NewZipExport(ZipExportOptions{Files: &fakeCaseFiles{}})
		assert.ErrorContains(t, err, "BlobStore is required")
	})
}

func TestZipExport_Handle(t *testing.T) {
	ctx := context.Background()
	requesterID := "550e8400-e29b-41d4-a716-446655440000"

	t.Run("builds an archive grouped by category", func(t *testing.T) {
		files := &fakeCaseFiles{files: []*model.CaseFile{
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: testOrgID + "/demandas/demanda.pdf", Category: "demandas"},
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: testOrgID + "/anexos/anexo1.pdf", Category: "anexos"},
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: testOrgID + "/misc/nota.txt", Category: ""},
		}}

		blobs := newFakeBlobStore()
		blobs.objects[testOrgID+"/demandas/demanda.pdf"] = []byte("demanda content")
		blobs.objects[testOrgID+"/anexos/anexo1.pdf"] = []byte("anexo content")
		blobs.objects[testOrgID+"/misc/nota.txt"] = []byte("nota content")

		handler := newTestZipExport(t, files, blobs)

		result, err := handler.Handle(ctx, exportDelivery(requesterID))
		require.NoError(t, err)
		require.NotNil(t, result)

		archivePath, body := blobs.uploadedArchive(t)
		assert.True(t, strings.HasPrefix(archivePath, testOrgID+"/"+testCaseID+"/"))
		assert.True(t, strings.HasSuffix(archivePath, "-archive.zip"))
		assert.Equal(t, "application/zip", blobs.uploadCT[archivePath])
		assert.Equal(t, "https://signed.example.com/"+archivePath, result.ResultURL)

		folder := "expediente-" + testCaseID[:8]
		entries := archiveEntries(t, body)
		assert.Equal(t, []byte("demanda content"), entries[folder+"/demandas/demanda.pdf"])
		assert.Equal(t, []byte("anexo content"), entries[folder+"/anexos/anexo1.pdf"])
		// Uncategorized files land in the otros folder
		assert.Equal(t, []byte("nota content"), entries[folder+"/otros/nota.txt"])
		assert.Len(t, entries, 3)

		require.NotNil(t, result.Notification)
		assert.Equal(t, requesterID, result.Notification.UserID)
		assert.Equal(t, testOrgID, result.Notification.OrgID)
		assert.Equal(t, "Exportación Lista", result.Notification.Title)
		assert.Equal(t, model.NotificationSuccess, result.Notification.Type)

		var meta model.NotificationMetadata
		require.NoError(t, json.Unmarshal(result.Notification.Metadata, &meta))
		assert.Equal(t, result.ResultURL, meta.Link)
		assert.True(t, meta.External)
	})

	t.Run("skips files that fail to download", func(t *testing.T) {
		files := &fakeCaseFiles{files: []*model.CaseFile{
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "a.pdf", Category: "anexos"},
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "b.pdf", Category: "anexos"},
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "c.pdf", Category: "anexos"},
		}}

		blobs := newFakeBlobStore()
		blobs.objects["a.pdf"] = []byte("a")
		blobs.failFetch["b.pdf"] = true
		blobs.objects["c.pdf"] = []byte("c")

		handler := newTestZipExport(t, files, blobs)

		result, err := handler.Handle(ctx, exportDelivery(requesterID))
		require.NoError(t, err)

		_, body := blobs.uploadedArchive(t)
		assert.Len(t, archiveEntries(t, body), 2)
		assert.NotEmpty(t, result.ResultURL)
	})

	t.Run("case without files fails the job", func(t *testing.T) {
		handler := newTestZipExport(t, &fakeCaseFiles{}, newFakeBlobStore())

		_, err := handler.Handle(ctx, exportDelivery(requesterID))
		require.Error(t, err)
		assert.Equal(t, "no files found for this case", err.Error())
	})

	t.Run("all downloads failing still completes the export", func(t *testing.T) {
		files := &fakeCaseFiles{files: []*model.CaseFile{
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "a.pdf", Category: "anexos"},
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "b.pdf", Category: "demandas"},
		}}
		blobs := newFakeBlobStore()
		blobs.failFetch["a.pdf"] = true
		blobs.failFetch["b.pdf"] = true

		handler := newTestZipExport(t, files, blobs)

		result, err := handler.Handle(ctx, exportDelivery(requesterID))
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.NotEmpty(t, result.ResultURL)
		assert.NotNil(t, result.Notification)

		// Every fetch was skipped, so the uploaded archive is empty.
		_, body := blobs.uploadedArchive(t)
		assert.Empty(t, archiveEntries(t, body))
	})

	t.Run("requester-less job produces no notification", func(t *testing.T) {
		files := &fakeCaseFiles{files: []*model.CaseFile{
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "a.pdf", Category: "anexos"},
		}}
		blobs := newFakeBlobStore()
		blobs.objects["a.pdf"] = []byte("a")

		handler := newTestZipExport(t, files, blobs)

		result, err := handler.Handle(ctx, exportDelivery(""))
		require.NoError(t, err)
		assert.Nil(t, result.Notification)
	})

	t.Run("upload failure fails the job", func(t *testing.T) {
		files := &fakeCaseFiles{files: []*model.CaseFile{
			{CaseID: testCaseID, OrgID: testOrgID, FileKey: "a.pdf", Category: "anexos"},
		}}
		blobs := newFakeBlobStore()
		blobs.objects["a.pdf"] = []byte("a")
		blobs.uploadErr = errors.New("bucket unavailable")

		handler := newTestZipExport(t, files, blobs)

		_, err := handler.Handle(ctx, exportDelivery(requesterID))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upload archive")
	})
}

func TestExtractCaseID(t *testing.T) {
	tests := []struct {
		name     string
		metadata json.RawMessage
		want     string
		wantErr  string
	}{
		{
			name:     "valid metadata",
			metadata: json.RawMessage(`{"case_id": "case-1"}`),
			want:     "case-1",
		},
		{
			name:     "missing metadata",
			metadata: nil,
			wantErr:  "job metadata is missing",
		},
		{
			name:     "undecodable metadata",
			metadata: json.RawMessage(`{"case_id":`),
			wantErr:  "decode job metadata",
		},
		{
			name:     "missing case id",
			metadata: json.RawMessage(`{"other": "value"}`),
			wantErr:  "job metadata has no case_id",
		},
		{
			name:     "case id is not a string",
			metadata: json.RawMessage(`{"case_id": 42}`),
			wantErr:  "job metadata has no case_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caseID, err := extractCaseID(tt.metadata)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, caseID)
		})
	}
}
