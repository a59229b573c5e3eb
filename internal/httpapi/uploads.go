package httpapi

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"mediaflow/internal/media"
)

var errMissingUpload = errors.New("missing upload")

func (s *server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	return r.ParseMultipartForm(min(s.cfg.MaxUploadBytes, 8<<20))
}

func (s *server) handleMultipartReadError(w http.ResponseWriter, r *http.Request, field string, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxUploadBytes))
	case errors.Is(err, errMissingUpload), errors.Is(err, http.ErrMissingFile):
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", fmt.Sprintf("multipart field '%s' is required", field))
	default:
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid multipart form data")
	}
}

func uploads(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

func upload(r *http.Request, field string) (*multipart.FileHeader, error) {
	files := uploads(r, field)
	if len(files) == 0 {
		return nil, errMissingUpload
	}
	return files[0], nil
}

// normalizeUpload streams one uploaded file through the image normalizer.
func (s *server) normalizeUpload(fh *multipart.FileHeader) (*media.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload %q: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	return s.images.NormalizeImage(media.NewStream(f, fh.Filename))
}

// fieldError is reported as a 422, the same as a failed validate tag.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.reason)
}

func floatField(r *http.Request, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &fieldError{field: name, reason: "must be a number"}
	}
	return v, nil
}

func intField(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &fieldError{field: name, reason: "must be an integer"}
	}
	return v, nil
}

func cleanupMultipartForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
