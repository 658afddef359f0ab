package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/storage"
)

const (
	uploadField = "file"
	dateLayout  = "2006-01-02"

	// multipartFieldAllowance covers the text fields and part headers sent
	// next to the attachment.
	multipartFieldAllowance = 64 << 10
)

var (
	errInvalidDate  = errors.New("dates must use YYYY-MM-DD or RFC 3339")
	errFileTooLarge = errors.New("uploaded file exceeds the size limit")
)

// limitUploadBody caps multipart bodies before anything parses them. A
// declared length over the cap is rejected without reading the body.
func (h *httpHandler) limitUploadBody(c *gin.Context) {
	if c.Request.Body == nil || c.ContentType() != gin.MIMEMultipartPOSTForm {
		c.Next()
		return
	}
	limit := h.maxUploadBytes + multipartFieldAllowance
	if c.Request.ContentLength > limit {
		respondBadRequest(c, "file_too_large", errFileTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	c.Next()
}

// bindPayload decodes a JSON or multipart body into target. An empty body
// leaves target untouched.
func bindPayload(c *gin.Context, target any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return bodyError(c.ShouldBind(target))
}

// bodyError reports a body cut off by limitUploadBody as errFileTooLarge.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errFileTooLarge
	}
	return err
}

// parseDate accepts a calendar date, read in the document zone, or an RFC 3339
// timestamp.
func (h *httpHandler) parseDate(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.ParseInLocation(dateLayout, trimmed, h.location); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, errInvalidDate
	}
	return &parsed, nil
}

// uploadFrom returns the attachment of a multipart request, or nil when the
// request carries none. The returned func closes the file.
func (h *httpHandler) uploadFrom(c *gin.Context) (*storage.Upload, func(), error) {
	noop := func() {}
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, noop, nil
	}
	header, err := c.FormFile(uploadField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, bodyError(err)
	}
	if header.Size > h.maxUploadBytes {
		return nil, noop, errFileTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return nil, noop, err
	}
	return &storage.Upload{Name: header.Filename, Content: file}, func() { _ = file.Close() }, nil
}

func respondUploadError(c *gin.Context, err error) {
	respondBadRequest(c, "invalid_upload", err)
}

func sendDownload(c *gin.Context, download storage.Download) {
	defer func() { _ = download.Content.Close() }()
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.Filename}))
	http.ServeContent(c.Writer, c.Request, download.Filename, time.Time{}, download.Content)
}

func queryBool(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &value, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return value, nil
}

// truncateRequested reads the truncate flag from the body or the query string.
func truncateRequested(c *gin.Context) (bool, error) {
	var payload struct {
		Truncate *bool `json:"truncate" form:"truncate"`
	}
	if err := bindPayload(c, &payload); err != nil {
		return false, err
	}
	if payload.Truncate != nil {
		return *payload.Truncate, nil
	}
	flag, err := queryBool(c, "truncate")
	if err != nil || flag == nil {
		return false, err
	}
	return *flag, nil
}
