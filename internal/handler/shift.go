package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/mollapos/shift-service/internal/domain/sales"
	"github.com/mollapos/shift-service/internal/domain/shift"
)

// dateOnly accepts by-date queries without a time component.
const dateOnly = "2006-01-02"

type startShiftRequest struct {
	CashierID  string
	BranchID   string
	ShiftStart time.Time
}

type endShiftRequest struct {
	ShiftID   string
	CashierID string
	ShiftEnd  time.Time
}

func (h *Handler) startShift(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	var req startShiftRequest
	if len(body) > 0 {
		if req, err = decodeStartRequest(body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.CashierID == "" {
		req.CashierID = actorID(r.Context())
	}
	if req.CashierID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session, err := h.shifts.Start(r.Context(), shift.StartRequest{
		CashierID:  req.CashierID,
		BranchID:   req.BranchID,
		ShiftStart: req.ShiftStart,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeSession(&e, session)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) endShift(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	var req endShiftRequest
	if len(body) > 0 {
		if req, err = decodeEndRequest(body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.CashierID == "" {
		req.CashierID = actorID(r.Context())
	}
	if req.ShiftID == "" && req.CashierID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.shifts.End(r.Context(), shift.EndRequest{
		ShiftID:   req.ShiftID,
		CashierID: req.CashierID,
		ShiftEnd:  req.ShiftEnd,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeReport(&e, report)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) currentProgress(w http.ResponseWriter, r *http.Request) {
	cashierID := r.URL.Query().Get("cashierId")
	if cashierID == "" {
		cashierID = actorID(r.Context())
	}
	if cashierID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.shifts.CurrentProgress(r.Context(), cashierID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeReport(&e, report)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getShift(w http.ResponseWriter, r *http.Request) {
	report, err := h.shifts.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeReport(&e, report)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getByCashierAndDate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing date query parameter")
		return
	}
	date, err := parseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: "+raw)
		return
	}

	report, err := h.shifts.GetByCashierAndDate(r.Context(), r.PathValue("cashierID"), date)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeReport(&e, report)
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) listShifts(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.shifts.ListAll(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSessions(w, sessions)
}

func (h *Handler) listByBranch(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.shifts.ListByBranch(r.Context(), r.PathValue("branchID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSessions(w, sessions)
}

func (h *Handler) listByCashier(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.shifts.ListByCashier(r.Context(), r.PathValue("cashierID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSessions(w, sessions)
}

func writeSessions(w http.ResponseWriter, sessions []shift.Session) {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for i := range sessions {
			encodeSession(e, &sessions[i])
		}
	})
	writeJSON(w, http.StatusOK, &e)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(dateOnly, raw)
}

func decodeStartRequest(body []byte) (startShiftRequest, error) {
	var req startShiftRequest
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "cashierId":
			return decodeStr(d, &req.CashierID)
		case "branchId":
			return decodeStr(d, &req.BranchID)
		case "shiftStart":
			return decodeTime(d, &req.ShiftStart)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "malformed request body")
	}
	return req, nil
}

func decodeEndRequest(body []byte) (endShiftRequest, error) {
	var req endShiftRequest
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "shiftId":
			return decodeStr(d, &req.ShiftID)
		case "cashierId":
			return decodeStr(d, &req.CashierID)
		case "shiftEnd":
			return decodeTime(d, &req.ShiftEnd)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "malformed request body")
	}
	return req, nil
}

func decodeStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func decodeTime(d *jx.Decoder, dst *time.Time) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return errors.Wrapf(err, "invalid timestamp %q", s)
	}
	*dst = t
	return nil
}

func encodeSession(e *jx.Encoder, s *shift.Session) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("cashierId", func(e *jx.Encoder) { e.Str(s.CashierID) })
		e.Field("branchId", func(e *jx.Encoder) { e.Str(s.BranchID) })
		e.Field("shiftStart", func(e *jx.Encoder) { encodeTimeValue(e, s.ShiftStart) })
		e.Field("shiftEnd", func(e *jx.Encoder) {
			if s.ShiftEnd == nil {
				e.Null()
				return
			}
			encodeTimeValue(e, *s.ShiftEnd)
		})
		encodeTotals(e, s)
		e.Field("createdAt", func(e *jx.Encoder) { encodeTimeValue(e, s.CreatedAt) })
	})
}

func encodeReport(e *jx.Encoder, rep *shift.Report) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(rep.ID) })
		e.Field("cashierId", func(e *jx.Encoder) { e.Str(rep.CashierID) })
		e.Field("branchId", func(e *jx.Encoder) { e.Str(rep.BranchID) })
		e.Field("shiftStart", func(e *jx.Encoder) { encodeTimeValue(e, rep.ShiftStart) })
		e.Field("shiftEnd", func(e *jx.Encoder) {
			if rep.ShiftEnd == nil {
				e.Null()
				return
			}
			encodeTimeValue(e, *rep.ShiftEnd)
		})
		encodeTotals(e, &rep.Session)

		e.Field("paymentSummaries", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, ps := range rep.PaymentSummaries {
					encodePaymentSummary(e, ps)
				}
			})
		})
		e.Field("topProducts", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range rep.TopProducts {
					encodeProductSales(e, p)
				}
			})
		})
		e.Field("recentOrders", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range rep.RecentOrders {
					encodeOrderFact(e, &rep.RecentOrders[i])
				}
			})
		})
		e.Field("refunds", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range rep.Refunds {
					encodeRefundFact(e, &rep.Refunds[i])
				}
			})
		})
	})
}

func encodeTotals(e *jx.Encoder, s *shift.Session) {
	e.Field("totalSales", func(e *jx.Encoder) { encodeDecimal(e, s.TotalSales) })
	e.Field("totalRefunds", func(e *jx.Encoder) { encodeDecimal(e, s.TotalRefunds) })
	e.Field("netSales", func(e *jx.Encoder) { encodeDecimal(e, s.NetSales) })
	e.Field("totalOrders", func(e *jx.Encoder) { e.Int(s.TotalOrders) })
}

func encodePaymentSummary(e *jx.Encoder, ps sales.PaymentSummary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(ps.Method)) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeDecimal(e, ps.TotalAmount) })
		e.Field("transactionCount", func(e *jx.Encoder) { e.Int(ps.TransactionCount) })
		e.Field("percentage", func(e *jx.Encoder) { e.Float64(ps.Percentage) })
	})
}

func encodeProductSales(e *jx.Encoder, p sales.ProductSales) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(p.ProductID) })
		e.Field("productName", func(e *jx.Encoder) { e.Str(p.ProductName) })
		e.Field("quantitySold", func(e *jx.Encoder) { e.Int(p.QuantitySold) })
	})
}

func encodeOrderFact(e *jx.Encoder, o *sales.OrderFact) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, o.Amount) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.Method.Normalize())) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTimeValue(e, o.CreatedAt) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("productName", func(e *jx.Encoder) { e.Str(item.ProductName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
					})
				}
			})
		})
	})
}

func encodeRefundFact(e *jx.Encoder, f *sales.RefundFact) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(f.ID) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(f.OrderID) })
		e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, f.Amount) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(f.Method.Normalize())) })
		e.Field("reason", func(e *jx.Encoder) { e.Str(f.Reason) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTimeValue(e, f.CreatedAt) })
	})
}

// encodeDecimal emits the decimal as a JSON number, keeping exact digits
// instead of round-tripping through float64.
func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.String())
}

func encodeTimeValue(e *jx.Encoder, t time.Time) {
	e.Str(t.Format(time.RFC3339Nano))
}
