package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelpress/internal/batch"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/dunamismax/pixelpress/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
)

type outcomeView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Index int    `json:"index"`
	OK    bool   `json:"ok"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

func outcomeViews(outcomes []batch.Outcome) []outcomeView {
	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		v := outcomeView{ID: o.ID, Name: o.Name, Index: o.Index, OK: o.OK()}
		if o.Err != nil {
			v.Error = o.Err.Error()
			switch {
			case pipeline.IsDecodeError(o.Err):
				v.Kind = string(pipeline.KindDecode)
			case pipeline.IsEncodeError(o.Err):
				v.Kind = string(pipeline.KindEncode)
			}
		}
		views = append(views, v)
	}
	return views
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	// A started batch always runs to completion.
	ctx := context.WithoutCancel(r.Context())

	report, err := s.batch.RunStored(ctx, s.params.Get())
	var failure *batch.Failure
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"usage":    report.Usage,
			"outcomes": outcomeViews(report.Outcomes),
			"images":   viewsOf(s.records.List()),
		})
	case errors.Is(err, batch.ErrBatchInProgress):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &failure):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     failure.Error(),
			"installed": failure.Installed,
			"usage":     report.Usage,
			"outcomes":  outcomeViews(report.Outcomes),
			"images":    viewsOf(s.records.List()),
		})
	default:
		writeError(w, errorStatus(err), err)
	}
}

// handleEnqueueCompress captures the active parameters and hands the run to
// the background worker.
func (s *Server) handleEnqueueCompress(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("background queue is disabled"))
		return
	}

	info, err := s.queue.EnqueueCompress(r.Context(), queue.CompressPayload{
		RequestID:   middleware.GetReqID(r.Context()),
		Params:      s.params.Get(),
		RequestedAt: time.Now().UTC(),
	})
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		writeError(w, http.StatusConflict, errors.New("compress request already queued"))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("enqueue compress failed")
		writeError(w, http.StatusBadGateway, fmt.Errorf("enqueue compress: %w", err))
		return
	}

	s.metrics.queueEnqueued.WithLabelValues(info.Queue).Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": info.ID,
		"queue":   info.Queue,
		"images":  s.records.Len(),
	})
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.params.Get())
}

func (s *Server) handlePutParams(w http.ResponseWriter, r *http.Request) {
	var p domain.Params
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.params.Set(p); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.params.Get())
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": s.presets.List()})
}

// handleSavePreset accepts a full preset, or only a name to capture the
// active parameters.
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var p domain.Preset
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if p.Quality == 0 && p.Format == "" && p.MaxWidth == 0 {
		p = domain.PresetFromParams(p.Name, s.params.Get())
	}

	saved, err := s.presets.Save(r.Context(), p)
	if err != nil {
		s.logger.Warn().Err(err).Str("preset", p.Name).Msg("save preset failed")
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"presets": saved})
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	found, ok := s.presets.Find(chi.URLParam(r, "name"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "preset not found"})
		return
	}

	params, err := s.params.ApplyPreset(found)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.logger.Info().Str("preset", found.Name).Msg("preset applied")
	writeJSON(w, http.StatusOK, params)
}
