package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/go-chi/chi/v5"
)

// tenantOf returns the tenant resolved by the Tenant middleware.
func tenantOf(r *http.Request) string {
	return core.TenantFromContext(r.Context())
}

func kindParam(r *http.Request) (core.Kind, error) {
	return core.ParseKind(chi.URLParam(r, "kind"))
}

// formFile reads the "file" part of a multipart upload, capped at the
// configured file size.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, string, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %v", core.ErrMalformedFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", core.ErrNoFile
	}
	return file, header.Filename, nil
}

// closeForm releases temp files left by ParseMultipartForm.
func closeForm(r *http.Request, f io.Closer) {
	if f != nil {
		f.Close()
	}
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// intQuery parses an optional non-negative integer query value.
func intQuery(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", core.ErrInvalidParameter, name, v)
	}
	return n, nil
}

// boolQuery parses an optional boolean query value.
func boolQuery(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s %q", core.ErrInvalidParameter, name, v)
	}
	return b, nil
}
