package handler

import (
	"net/http"

	"github.com/alanyoungcy/basketbot/internal/ledger"
)

// LedgerSource exposes the FIFO lot view.
type LedgerSource interface {
	Snapshot() map[string]ledger.InstrumentView
}

// LedgerHandler serves the local lot ledger.
type LedgerHandler struct {
	ledger LedgerSource
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(l LedgerSource) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// GetLedger returns every instrument's open lots.
// GET /api/ledger
func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

// GetInstrument returns one instrument's open lots.
// GET /api/ledger/{instrument}
func (h *LedgerHandler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("instrument")
	view, ok := h.ledger.Snapshot()[id]
	if !ok {
		writeError(w, http.StatusNotFound, "no lots for "+id)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
