package api

import (
	"context"
	"net/http"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/httputil"
	"github.com/newsly/newsly/internal/service/billing"
)

type transactionResponse struct {
	Success     bool                `json:"success"`
	Transaction *domain.Transaction `json:"transaction"`
}

//	POST /api/billing/transactions
func (h *handlers) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	if h.deps.Billing == nil {
		unavailable(w, "billing")
		return
	}
	var req billing.RecordInput
	if !decode(w, r, &req) {
		return
	}
	tx, created, err := h.deps.Billing.Record(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created {
		httputil.Created(w, transactionResponse{Success: true, Transaction: tx})
		return
	}
	httputil.OK(w, transactionResponse{Success: true, Transaction: tx})
}

type transactionRef struct {
	Provider    domain.PaymentProvider `json:"provider" validate:"required,oneof=stripe phonepe"`
	ProviderRef string                 `json:"providerRef" validate:"required"`
}

type transactionAction func(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error)

func (h *handlers) settle(w http.ResponseWriter, r *http.Request, pick func(Billing) transactionAction) {
	if h.deps.Billing == nil {
		unavailable(w, "billing")
		return
	}
	var req transactionRef
	if !decode(w, r, &req) {
		return
	}
	tx, err := pick(h.deps.Billing)(r.Context(), req.Provider, req.ProviderRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, transactionResponse{Success: true, Transaction: tx})
}

//	POST /api/billing/transactions/confirm
func (h *handlers) handleConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, func(b Billing) transactionAction { return b.Confirm })
}

//	POST /api/billing/transactions/fail
func (h *handlers) handleFailTransaction(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, func(b Billing) transactionAction { return b.Fail })
}

//	POST /api/billing/transactions/refund
func (h *handlers) handleRefundTransaction(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, func(b Billing) transactionAction { return b.Refund })
}

//	GET /api/billing/transactions?subscriberId=
func (h *handlers) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Billing == nil {
		unavailable(w, "billing")
		return
	}
	id := r.URL.Query().Get("subscriberId")
	if id == "" {
		httputil.BadRequest(w, "subscriberId is required")
		return
	}
	txs, err := h.deps.Billing.List(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	httputil.OK(w, map[string]any{"success": true, "transactions": txs})
}
