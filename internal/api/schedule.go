package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"hiberry/internal/auth"
	"hiberry/internal/manifest"
	"hiberry/internal/model"
)

// ScheduleHandler handles POST /v1/schedule. A run with failed partitions
// answers with the status of the first failure and the partial result.
func (s *Server) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, auth.Principal.IsAdmin, "admin"); !ok {
		return
	}
	var req model.ScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.Orders.Schedule(r.Context(), req)
	if err != nil {
		p := problemFor(err)
		p.Instance = r.URL.Path
		if res.Date != "" {
			p.Title = "Scheduling incomplete"
			p.Result = res
		}
		if p.Status >= http.StatusInternalServerError {
			s.Logger.Error("schedule failed", zap.String("date", req.Date), zap.Int("status", p.Status), zap.Error(err))
		}
		writeProblemBody(w, p)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "scheduling completed", "result": res})
}

// ManifestHandler handles GET /v1/schedule/manifest?date=
func (s *Server) ManifestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authorize(w, r, anyRole, ""); !ok {
		return
	}
	date := r.URL.Query().Get("date")
	items, err := s.Orders.List(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	body, err := manifest.Build(model.Date(date), items)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", manifest.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="manifest-%s.xlsx"`, date))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
