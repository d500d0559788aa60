package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/brennhill/browserctl-gateway/internal/archive"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

// maxUploadBytes bounds a multipart import/preview body. Large enough for a
// recording's worth of JPEG screenshots, small enough to not let one upload
// exhaust the process.
const maxUploadBytes = 64 << 20 // 64 MiB

type exportRequest struct {
	Format             string `json:"format"`
	Title              string `json:"title"`
	Password           string `json:"password,omitempty"`
	IncludeScreenshots bool   `json:"includeScreenshots"`
}

type exportResponse struct {
	Filename string `json:"filename"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}

	data, err := archive.Export(sess.Steps().List(), archive.ExportOptions{
		Format:             archive.Format(req.Format),
		Title:              req.Title,
		Password:           req.Password,
		IncludeScreenshots: req.IncludeScreenshots,
	})
	if err != nil {
		if errors.Is(err, archive.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "EXPORT_UNSUPPORTED_FORMAT", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
		return
	}

	filename := archive.Filename(data)

	s.mu.Lock()
	s.exports[filename] = data
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, exportResponse{Filename: filename})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	filename := r.PathValue("filename")

	s.mu.Lock()
	data, ok := s.exports[filename]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "EXPORT_NOT_FOUND", "unknown export filename")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, password, err := readUploadedArchive(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	preview, err := archive.Preview(data, archive.ImportOptions{Password: password})
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type importResponse struct {
	Title     string          `json:"title"`
	Steps     []*session.Step `json:"steps"`
	CreatedAt string          `json:"createdAt"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, password, err := readUploadedArchive(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	result, err := archive.Import(data, sess.WorkDir, s.manager.MaxStepsPerSession(), archive.ImportOptions{Password: password})
	if err != nil {
		writeArchiveError(w, err)
		return
	}

	sess.Steps().Replace(result.Steps)

	writeJSON(w, http.StatusOK, importResponse{
		Title:     result.Title,
		Steps:     result.Steps,
		CreatedAt: result.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func readUploadedArchive(w http.ResponseWriter, r *http.Request) (data []byte, password string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", err
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, r.FormValue("password"), nil
}

func writeArchiveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, archive.ErrEncryptedNoPass):
		writeJSON(w, http.StatusOK, archive.PreviewResult{Encrypted: true})
	case errors.Is(err, archive.ErrDecryptFailed):
		writeError(w, http.StatusBadRequest, "IMPORT_DECRYPT_FAILED", err.Error())
	case errors.Is(err, archive.ErrTooManySteps):
		writeError(w, http.StatusBadRequest, "IMPORT_TOO_MANY_STEPS", err.Error())
	case errors.Is(err, archive.ErrInvalidArchive):
		writeError(w, http.StatusBadRequest, "IMPORT_INVALID", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "IMPORT_FAILED", err.Error())
	}
}
