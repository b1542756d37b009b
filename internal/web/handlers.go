package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/dashboard"
	middleware "github.com/tejusbharadwaj/gatewaydash/internal/web/middlewares"
)

// render serves one page of the dashboard. "index" carries the form and
// embeds "panels", the read-only views that reload themselves every 2s so
// typing in the form is never interrupted.
func (s *Server) render(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := s.page.ExecuteTemplate(&buf, name, s.dash.Snapshot()); err != nil {
			s.logger.WithError(err).WithField("page", name).Error("Failed to render dashboard")
			http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	}
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.Snapshot())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitSensor validates the posted form and submits it. Browsers are sent
// back to the page; the outcome is part of the form state.
func (s *Server) submitSensor(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	draft, err := dashboard.ParseDraft(r.PostForm)
	if err != nil {
		if rerr := s.dash.Form.Reject(draft, r.PostForm, err); errors.Is(rerr, dashboard.ErrSubmissionInFlight) {
			http.Error(w, rerr.Error(), http.StatusConflict)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	err = s.dash.Form.SubmitDraft(r.Context(), draft)
	if errors.Is(err, dashboard.ErrSubmissionInFlight) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) analysisAction(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "next":
		s.dash.Analysis.Next(r.Context())
	case "prev":
		s.dash.Analysis.Prev(r.Context())
	case "reload":
		s.dash.Analysis.Load(r.Context())
	}
	http.Redirect(w, r, returnTo(r), http.StatusSeeOther)
}

// returnTo sends pagination clicks back to the panels frame when they came
// from it.
func returnTo(r *http.Request) string {
	if r.FormValue("return") == "/panels" {
		return "/panels"
	}
	return "/"
}

// analysisPage jumps to ?page=N and returns the resulting view.
func (s *Server) analysisPage(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			http.Error(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		s.dash.Analysis.GoTo(r.Context(), page)
	}
	writeJSON(w, http.StatusOK, s.dash.Analysis.Snapshot())
}

func (s *Server) recording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recordings.FetchRecording(r.Context(), mux.Vars(r)["path"])
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrInvalidRecordingPath) {
			status = http.StatusBadRequest
		}
		s.logger.WithFields(logrus.Fields{
			"request_id": middleware.RequestIDFrom(r.Context()),
			"path":       mux.Vars(r)["path"],
			"error":      err,
		}).Warn("Failed to fetch recording")
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", rec.ContentType)
	_, _ = w.Write(rec.Data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
