package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docstore-backend/internal/quota"
	"docstore-backend/internal/shared/server/middleware"
	"docstore-backend/internal/shared/server/respond"
	"docstore-backend/internal/shared/telemetry"
)

const (
	metadataPartLimit = 4 << 10
	defaultPageSize   = 50
	maxPageSize       = 100
)

// Handler exposes the document service over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id/download", h.download)
	rg.GET("/documents/:id/url", h.presign)
	rg.DELETE("/documents/:id", h.remove)
}

// upload expects a multipart body with a "metadata" JSON part followed by a
// "file" part. The file part streams straight into the object store; the
// whole body is never buffered.
func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart/form-data body required", nil)
		return
	}

	part, err := mr.NextPart()
	if err != nil || part.FormName() != "metadata" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "first part must be named \"metadata\"", nil)
		return
	}
	var meta uploadMetadata
	if err := json.NewDecoder(io.LimitReader(part, metadataPartLimit)).Decode(&meta); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "metadata part is not valid JSON", nil)
		return
	}

	filePart, err := mr.NextPart()
	if err != nil || filePart.FormName() != "file" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "second part must be named \"file\"", nil)
		return
	}
	if meta.FileName == "" {
		meta.FileName = filePart.FileName()
	}
	if meta.MimeType == "" {
		meta.MimeType = filePart.Header.Get("Content-Type")
	}

	doc, err := h.Svc.Upload(c.Request.Context(), userID, UploadInput{
		Category:  meta.Category,
		FileName:  meta.FileName,
		MimeType:  meta.MimeType,
		SizeBytes: meta.SizeBytes,
	}, filePart)
	if err != nil {
		h.writeError(c, err)
		return
	}

	respond.JSON(c, http.StatusCreated, uploadResponse{Document: doc})
}

func (h *Handler) download(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	doc, rc, err := h.Svc.Download(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", doc.MimeType)
	c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Status(http.StatusOK)

	buf := make([]byte, h.Svc.ChunkSize())
	if _, err := io.CopyBuffer(c.Writer, rc, buf); err != nil {
		// Headers are out; all we can do is log the broken stream.
		telemetry.Warn("download.stream_interrupted", map[string]any{
			"document_id": doc.ID,
			"err":         err.Error(),
		})
	}
}

func (h *Handler) presign(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var expiry time.Duration
	if raw := c.Query("expirySeconds"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "expirySeconds must be a positive integer", nil)
			return
		}
		expiry = time.Duration(secs) * time.Second
	}

	grant, err := h.Svc.PresignURL(c.Request.Context(), userID, c.Param("id"), expiry)
	if err != nil {
		h.writeError(c, err)
		return
	}

	respond.OK(c, urlResponse{
		URL:       grant.URL,
		ExpiresAt: grant.ExpiresAt,
		FileName:  grant.Document.FileName,
	})
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	u, err := h.Svc.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	respond.OK(c, deleteResponse{
		Deleted:    true,
		FileCount:  u.FileCount,
		TotalBytes: u.TotalBytes,
	})
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	q := ListQuery{UserID: userID, Category: c.Query("category")}

	if raw := c.Query("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD", nil)
			return
		}
		q.Date = &day
	}

	pageSize := defaultPageSize
	if raw := c.Query("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "pageSize must be a positive integer", nil)
			return
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		pageSize = n
	}

	offset, err := decodePageToken(c.Query("pageToken"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	// One extra row tells us whether another page exists.
	q.Limit = pageSize + 1
	q.Offset = offset

	docs, err := h.Svc.List(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := listResponse{Documents: docs}
	if len(docs) > pageSize {
		resp.Documents = docs[:pageSize]
		resp.NextPageToken = encodePageToken(offset + pageSize)
	}
	if resp.Documents == nil {
		resp.Documents = []Document{}
	}

	respond.OK(c, resp)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		respond.Error(c, http.StatusBadRequest, "validation_error", validation.Error(), gin.H{"field": validation.Field})
		return
	}

	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		respond.Error(c, http.StatusTooManyRequests, "quota_exceeded", "storage quota exceeded", gin.H{
			"currentBytes":  exceeded.CurrentBytes,
			"incomingBytes": exceeded.IncomingBytes,
			"limitBytes":    exceeded.LimitBytes,
		})
		return
	}

	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrDuplicatePath):
		respond.Error(c, http.StatusConflict, "duplicate_document", ErrDuplicatePath.Error(), nil)
	case errors.Is(err, ErrStoreUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "store_unavailable", "object storage temporarily unavailable", nil)
	case errors.Is(err, ErrDBUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "database_unavailable", "metadata storage temporarily unavailable", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "operation failed", nil)
	}
}
