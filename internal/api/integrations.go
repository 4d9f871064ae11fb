package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hiberry/internal/integrations"
)

// IntegrationHandler handles POST /v1/integrations/{name}/orders, the order
// webhook of an external sales channel. Requests are authenticated by the
// adapter's signature check instead of a bearer token.
func (s *Server) IntegrationHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/integrations/")
	name, tail, _ := strings.Cut(rest, "/")
	adapter, ok := s.Integrations[name]
	if !ok || tail != "orders" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
		return
	}
	if !adapter.Verify(r.Header, body) {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bad webhook signature", r.URL.Path)
		return
	}
	log := s.Logger.With(zap.String("integration", adapter.Name()))

	in, err := adapter.MapOrder(body)
	switch {
	case errors.Is(err, integrations.ErrNotDeliverable):
		// acknowledged so the channel does not retry
		log.Info("external order ignored", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"message": "ignored", "reason": err.Error()})
		return
	case err != nil:
		log.Warn("external order could not be mapped", zap.Error(err))
		writeProblem(w, http.StatusUnprocessableEntity, "Unmappable order", err.Error(), r.URL.Path)
		return
	}

	o, err := s.Orders.Create(r.Context(), in, adapter.Name())
	if err != nil {
		s.writeError(w, r, err, newCreateResponse(o))
		return
	}
	log.Info("external order created", zap.String("order_id", o.ID), zap.Int("driver", o.Driver))
	writeJSON(w, http.StatusCreated, newCreateResponse(o))
}
