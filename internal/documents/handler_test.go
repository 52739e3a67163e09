package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"docstore-backend/internal/shared/server/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	env := newTestEnv(t, nil)
	r := gin.New()
	api := r.Group("/api/v1", middleware.Identity())
	NewHandler(env.svc).RegisterRoutes(api)
	return r, env
}

func multipartUpload(t *testing.T, meta uploadMetadata, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaPart, err := w.CreateFormField("metadata")
	if err != nil {
		t.Fatalf("create metadata part: %v", err)
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		t.Fatalf("encode metadata: %v", err)
	}

	filePart, err := w.CreateFormFile("file", meta.FileName)
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := filePart.Write([]byte(content)); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, r *gin.Engine, userID string, meta uploadMetadata, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, meta, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-Id", userID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestUploadEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	content := "pdf bytes here"

	rec := doUpload(t, r, "u1", uploadMetadata{
		Category: "invoices", FileName: "inv.pdf", MimeType: "application/pdf", SizeBytes: int64(len(content)),
	}, content)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Document.ID == "" || resp.Document.Status != StatusCompleted {
		t.Fatalf("document = %+v", resp.Document)
	}
}

func TestUploadRequiresIdentity(t *testing.T) {
	r, _ := newTestRouter(t)
	body, contentType := multipartUpload(t, uploadMetadata{FileName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1}, "x")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if errorCode(t, rec) != "missing_identity" {
		t.Fatalf("code = %s", errorCode(t, rec))
	}
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"not":"multipart"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("status = %d, code = %s", rec.Code, errorCode(t, rec))
	}
}

func TestUploadDuplicateReturnsConflict(t *testing.T) {
	r, _ := newTestRouter(t)
	meta := uploadMetadata{Category: "tax", FileName: "w2.pdf", MimeType: "application/pdf", SizeBytes: 4}

	if rec := doUpload(t, r, "u1", meta, "data"); rec.Code != http.StatusCreated {
		t.Fatalf("first upload: %d", rec.Code)
	}
	rec := doUpload(t, r, "u1", meta, "data")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "duplicate_document" {
		t.Fatalf("status = %d, code = %s", rec.Code, errorCode(t, rec))
	}
}

func TestUploadOverQuotaReturns429(t *testing.T) {
	r, env := newTestRouter(t)
	if _, err := env.usage.Adjust(context.Background(), "u1", 1, 1<<30); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	rec := doUpload(t, r, "u1", uploadMetadata{
		FileName: "over.pdf", MimeType: "application/pdf", SizeBytes: 4,
	}, "data")

	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != "quota_exceeded" {
		t.Fatalf("status = %d, code = %s", rec.Code, errorCode(t, rec))
	}
}

func TestDownloadEndpoint(t *testing.T) {
	r, env := newTestRouter(t)
	content := "downloadable content"
	doc := mustUpload(t, env, "u1", "dl.pdf", content)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID+"/download", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != content {
		t.Fatalf("body = %q, want %q", rec.Body.String(), content)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "dl.pdf") {
		t.Fatalf("content disposition = %s", cd)
	}
}

func TestDownloadUnknownReturns404(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope/download", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "not_found" {
		t.Fatalf("status = %d, code = %s", rec.Code, errorCode(t, rec))
	}
}

func TestDeleteEndpoint(t *testing.T) {
	r, env := newTestRouter(t)
	doc := mustUpload(t, env, "u1", "rm.pdf", "data")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp deleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Deleted || resp.FileCount != 0 || resp.TotalBytes != 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestListPagination(t *testing.T) {
	r, env := newTestRouter(t)
	for i := 0; i < 5; i++ {
		mustUpload(t, env, "u1", fmt.Sprintf("page-%d.pdf", i), "data")
	}

	list := func(query string) listResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/documents"+query, nil)
		req.Header.Set("X-User-Id", "u1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("list %s: status %d body %s", query, rec.Code, rec.Body.String())
		}
		var resp listResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	first := list("?pageSize=2")
	if len(first.Documents) != 2 || first.NextPageToken == "" {
		t.Fatalf("first page = %d docs, token %q", len(first.Documents), first.NextPageToken)
	}
	second := list("?pageSize=2&pageToken=" + first.NextPageToken)
	if len(second.Documents) != 2 || second.NextPageToken == "" {
		t.Fatalf("second page = %d docs, token %q", len(second.Documents), second.NextPageToken)
	}
	third := list("?pageSize=2&pageToken=" + second.NextPageToken)
	if len(third.Documents) != 1 || third.NextPageToken != "" {
		t.Fatalf("third page = %d docs, token %q", len(third.Documents), third.NextPageToken)
	}

	seen := make(map[string]bool)
	for _, page := range []listResponse{first, second, third} {
		for _, doc := range page.Documents {
			if seen[doc.ID] {
				t.Fatalf("document %s appeared twice", doc.ID)
			}
			seen[doc.ID] = true
		}
	}
	if len(seen) != 5 {
		t.Fatalf("saw %d documents, want 5", len(seen))
	}
}

func TestListFiltersByCategory(t *testing.T) {
	r, env := newTestRouter(t)
	mustUpload(t, env, "u1", "a.pdf", "data")
	if _, err := env.svc.Upload(context.Background(), "u1", UploadInput{
		Category: "receipts", FileName: "b.pdf", MimeType: "application/pdf", SizeBytes: 4,
	}, strings.NewReader("data")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?category=receipts", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Category != "receipts" {
		t.Fatalf("documents = %+v", resp.Documents)
	}
}

func TestListRejectsBadToken(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents?pageToken=garbage!", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("status = %d, code = %s", rec.Code, errorCode(t, rec))
	}
}

func TestPresignEndpoint(t *testing.T) {
	r, env := newTestRouter(t)
	doc := mustUpload(t, env, "u1", "signed.pdf", "data")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID+"/url?expirySeconds=600", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp urlResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.URL, "https://signed.example/") || resp.FileName != "signed.pdf" {
		t.Fatalf("response = %+v", resp)
	}
}
