// Package handler exposes the shift reporting API over HTTP. Handlers decode
// requests, delegate to the shift service, and map domain errors to statuses;
// no business rules live here.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mollapos/shift-service/internal/domain/auth"
	"github.com/mollapos/shift-service/internal/domain/shift"
	"github.com/mollapos/shift-service/internal/domain/staff"
)

// Handler serves the shift reporting endpoints.
type Handler struct {
	shifts *shift.Service
}

// NewHandler constructs a Handler over the shift service.
func NewHandler(shifts *shift.Service) *Handler {
	return &Handler{shifts: shifts}
}

// Routes returns the API route table. The literal /current segment takes
// precedence over the {id} wildcard under net/http pattern rules.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/shift-reports/start", h.startShift)
	mux.HandleFunc("PATCH /api/shift-reports/end", h.endShift)
	mux.HandleFunc("GET /api/shift-reports/current", h.currentProgress)
	mux.HandleFunc("GET /api/shift-reports", h.listShifts)
	mux.HandleFunc("GET /api/shift-reports/{id}", h.getShift)
	mux.HandleFunc("GET /api/shift-reports/branch/{branchID}", h.listByBranch)
	mux.HandleFunc("GET /api/shift-reports/cashier/{cashierID}", h.listByCashier)
	mux.HandleFunc("GET /api/shift-reports/cashier/{cashierID}/by-date", h.getByCashierAndDate)
	return mux
}

// writeJSON writes a 200 response with the encoder's output.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the standard error body {"code": ..., "message": ...}.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
	writeJSON(w, status, &e)
}

// respondError maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 with a generic body; the cause goes to the log, not the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		staffNF *staff.NotFoundError
		shiftNF *shift.NotFoundError
	)
	switch {
	case errors.As(err, &staffNF):
		writeError(w, http.StatusNotFound, staffNF.Error())
	case errors.As(err, &shiftNF):
		writeError(w, http.StatusNotFound, shiftNF.Error())
	case errors.Is(err, shift.ErrNoActiveShift):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, shift.ErrNoBranch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
