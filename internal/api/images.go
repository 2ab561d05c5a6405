package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/export"
	"github.com/go-chi/chi/v5"
)

const uploadField = "files"

type imageView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContentType    string `json:"content_type"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize *int64 `json:"compressed_size"`
	Format         string `json:"format,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Progress       int    `json:"progress"`
	PreviewURL     string `json:"preview_url"`
	DownloadName   string `json:"download_name"`
	DownloadURL    string `json:"download_url"`
}

func viewOf(rec domain.ImageRecord) imageView {
	return imageView{
		ID:             rec.ID,
		Name:           rec.Name,
		ContentType:    rec.ContentType,
		OriginalSize:   rec.OriginalSize,
		CompressedSize: rec.CompressedSize,
		Format:         rec.Format,
		Width:          rec.Width,
		Height:         rec.Height,
		Progress:       rec.Progress,
		PreviewURL:     "/v1/previews/" + rec.Preview,
		DownloadName:   rec.DownloadName(),
		DownloadURL:    fmt.Sprintf("/v1/images/%s/download", rec.ID),
	}
}

func viewsOf(records []domain.ImageRecord) []imageView {
	views := make([]imageView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewOf(rec))
	}
	return views
}

func (s *Server) handleListImages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"images":     viewsOf(s.records.List()),
		"processing": s.batch.Processing(),
	})
}

func (s *Server) handleAddImages(w http.ResponseWriter, r *http.Request) {
	if s.rejectWhileProcessing(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no files in field %q", uploadField))
		return
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}

		contentType := fh.Header.Get("Content-Type")
		if mt, _, err := mime.ParseMediaType(contentType); err != nil || mt == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		uploads = append(uploads, domain.Upload{Name: fh.Filename, ContentType: contentType, Data: data})
	}

	added := s.records.Add(uploads)
	s.metrics.imagesUploaded.Add(float64(len(added)))
	s.logger.Info().Int("added", len(added)).Int("total", s.records.Len()).Msg("images added")
	writeJSON(w, http.StatusCreated, map[string]any{"images": viewsOf(added)})
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	if s.rejectWhileProcessing(w) {
		return
	}

	id := chi.URLParam(r, "id")
	if !s.records.Remove(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearImages(w http.ResponseWriter, _ *http.Request) {
	if s.rejectWhileProcessing(w) {
		return
	}
	s.records.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.records.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return
	}

	data := rec.DownloadBytes()
	w.Header().Set("Content-Type", rec.CurrentContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rec.DownloadName(),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "export is not configured"})
		return
	}

	written, err := export.ExportAll(r.Context(), s.exporter, s.records.List())
	if err != nil {
		s.logger.Error().Err(err).Int("exported", len(written)).Msg("export failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    err.Error(),
			"exported": written,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exported": written})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.records.Previews().Resolve(chi.URLParam(r, "handle"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "preview not found"})
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

func errorStatus(err error) int {
	if errors.Is(err, domain.ErrInvalidParams) || errors.Is(err, domain.ErrInvalidPreset) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
