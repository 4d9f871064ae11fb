package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"hiberry/internal/orders"
	"hiberry/internal/store"
)

// maxBody caps request payloads.
const maxBody = 1 << 20

// Problem represents an RFC7807 problem details response body. Code, Order
// and Result are extension members.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	Order    any    `json:"order,omitempty"`
	Result   any    `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeProblemBody(w, Problem{Title: title, Status: status, Detail: detail, Instance: instance})
}

func writeProblemBody(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// problemFor maps a service error to its problem body.
func problemFor(err error) Problem {
	var (
		verr *orders.ValidationError
		berr *orders.BusinessError
		serr *store.Error
	)
	switch {
	case errors.As(err, &verr):
		return Problem{Status: http.StatusBadRequest, Title: "Invalid request", Detail: err.Error()}
	case errors.As(err, &berr):
		p := Problem{Status: http.StatusBadRequest, Title: "Business rule violated", Detail: berr.Message, Code: berr.Code}
		switch berr.Code {
		case orders.CodeNoDriverAvailable:
			p.Status = http.StatusConflict
		case orders.CodeOrderNotFound:
			p.Status, p.Title = http.StatusNotFound, "Not Found"
		}
		return p
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Problem{Status: http.StatusServiceUnavailable, Title: "Request aborted", Detail: err.Error()}
	case errors.As(err, &serr):
		return Problem{Status: store.StatusCode(err), Title: "Storage error", Detail: serr.Message}
	default:
		return Problem{Status: store.StatusCode(err), Title: "Internal error", Detail: err.Error()}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, order any) {
	p := problemFor(err)
	p.Instance = r.URL.Path
	if p.Status == http.StatusConflict {
		p.Order = order
	}
	if p.Status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", p.Status), zap.Error(err))
	}
	writeProblemBody(w, p)
}
