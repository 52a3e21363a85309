package handlers

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// ArchiveHandler serves read-only archive queries
type ArchiveHandler struct {
	reader contracts.ArchiveReader
	logger *logger.Logger
}

// NewArchiveHandler creates an archive handler
func NewArchiveHandler(reader contracts.ArchiveReader, log *logger.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: log,
	}
}

// InstrumentView is one archived instrument with its date range
type InstrumentView struct {
	Code  string `json:"code"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// BarView is one archived row; missing values are null
type BarView struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
	Amount *float64 `json:"amount"`
	Change *float64 `json:"change"`
	Factor *float64 `json:"factor"`
}

// Summary returns the archive date range and instrument count
// GET /api/archive/summary
func (h *ArchiveHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	instruments, err := h.reader.Instruments(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list instruments")
		respondError(w, http.StatusInternalServerError, "Failed to read archive")
		return
	}

	resp := map[string]interface{}{
		"instruments": len(instruments),
		"fields":      contracts.AllColumns,
	}
	if end, ok, err := h.reader.CalendarEnd(ctx); err == nil && ok {
		resp["calendar_end"] = end.Format(contracts.DateLayout)
	}
	var first time.Time
	for _, in := range instruments {
		if first.IsZero() || in.Start.Before(first) {
			first = in.Start
		}
	}
	if !first.IsZero() {
		resp["calendar_start"] = first.Format(contracts.DateLayout)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Instruments lists archived instruments
// GET /api/instruments
func (h *ArchiveHandler) Instruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.reader.Instruments(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list instruments")
		respondError(w, http.StatusInternalServerError, "Failed to read archive")
		return
	}

	out := make([]InstrumentView, 0, len(instruments))
	for _, in := range instruments {
		out = append(out, InstrumentView{
			Code:  in.Code,
			Start: in.Start.Format(contracts.DateLayout),
			End:   in.End.Format(contracts.DateLayout),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// Bars returns the archived rows of one instrument
// GET /api/instruments/{code}/bars?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *ArchiveHandler) Bars(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(mux.Vars(r)["code"])

	var start, end time.Time
	var err error
	if s := r.URL.Query().Get("start"); s != "" {
		if start, err = contracts.ParseDay(s); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'start' date format (expected YYYY-MM-DD)")
			return
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if end, err = contracts.ParseDay(s); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'end' date format (expected YYYY-MM-DD)")
			return
		}
	}

	frame, err := h.reader.Rows(r.Context(), code, contracts.AllColumns)
	if errors.Is(err, contracts.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Instrument not archived: "+code)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("code", code).Error("Failed to read bars")
		respondError(w, http.StatusInternalServerError, "Failed to read archive")
		return
	}

	out := make([]BarView, 0, frame.Len())
	for _, b := range frame.Bars() {
		if (!start.IsZero() && b.Date.Before(start)) || (!end.IsZero() && b.Date.After(end)) {
			continue
		}
		out = append(out, BarView{
			Date:   b.Date.Format(contracts.DateLayout),
			Open:   nullable(b.Open),
			High:   nullable(b.High),
			Low:    nullable(b.Low),
			Close:  nullable(b.Close),
			Volume: nullable(b.Volume),
			Amount: nullable(b.Amount),
			Change: nullable(b.Change),
			Factor: nullable(b.Factor),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// nullable maps NaN and Inf to null; encoding/json rejects both
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
