package api

import (
	"net/http"

	"hiberry/internal/auth"
	"hiberry/internal/model"
)

// createResponse is the body returned for a new order.
type createResponse struct {
	ID             string             `json:"id"`
	DeliveryDate   model.Date         `json:"delivery_date"`
	Latitude       *float64           `json:"latitude"`
	Longitude      *float64           `json:"longitude"`
	Status         model.OrderStatus  `json:"status"`
	AssignedDriver int                `json:"assigned_driver"`
	Errors         []model.OrderError `json:"errors"`
}

func newCreateResponse(o model.Order) createResponse {
	resp := createResponse{
		ID:             o.ID,
		DeliveryDate:   o.DeliveryDate,
		Status:         o.Status,
		AssignedDriver: o.Driver,
		Errors:         o.Errors,
	}
	if o.Location != nil {
		lat, lon := o.Location.Latitude, o.Location.Longitude
		resp.Latitude, resp.Longitude = &lat, &lon
	}
	if resp.Errors == nil {
		resp.Errors = []model.OrderError{}
	}
	return resp
}

// OrdersHandler handles POST/GET/PUT/DELETE /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := s.authorize(w, r, auth.Principal.CanWrite, "operator or admin")
		if !ok {
			return
		}
		var in model.OrderIn
		if !decodeJSON(w, r, &in) {
			return
		}
		o, err := s.Orders.Create(r.Context(), in, p.Username)
		if err != nil {
			s.writeError(w, r, err, newCreateResponse(o))
			return
		}
		writeJSON(w, http.StatusCreated, newCreateResponse(o))
	case http.MethodGet:
		if _, ok := s.authorize(w, r, anyRole, ""); !ok {
			return
		}
		items, err := s.Orders.List(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		if items == nil {
			items = []model.Order{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPut:
		p, ok := s.authorize(w, r, auth.Principal.CanWrite, "operator or admin")
		if !ok {
			return
		}
		var upd model.OrderUpdate
		if !decodeJSON(w, r, &upd) {
			return
		}
		o, err := s.Orders.Update(r.Context(), upd, p.Username)
		if err != nil {
			s.writeError(w, r, err, o)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodDelete:
		if _, ok := s.authorize(w, r, auth.Principal.CanWrite, "operator or admin"); !ok {
			return
		}
		q := r.URL.Query()
		if err := s.Orders.Delete(r.Context(), q.Get("delivery_date"), q.Get("id")); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
