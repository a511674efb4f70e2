package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hubp2p/exchange-service/internal/models"
	service "github.com/hubp2p/exchange-service/internal/services"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
)

func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/transactions", h.AdminListTransactions).Methods("GET")
	r.HandleFunc("/transactions/{id}/status", h.AdminUpdateTransactionStatus).Methods("POST")
	r.HandleFunc("/transactions/{id}/notify", h.AdminResendNotification).Methods("POST")
	r.HandleFunc("/transactions/{id}/notifications", h.AdminListTransactionNotifications).Methods("GET")
	r.HandleFunc("/notifications", h.AdminListNotifications).Methods("GET")

	r.HandleFunc("/accounts", h.AdminCreateAccount).Methods("POST")
	r.HandleFunc("/accounts", h.AdminListAccounts).Methods("GET")
	r.HandleFunc("/accounts/active", h.AdminGetActiveAccount).Methods("GET")
	r.HandleFunc("/accounts/{id}/toggle", h.AdminToggleAccount).Methods("POST")
	r.HandleFunc("/accounts/{id}", h.AdminDeleteAccount).Methods("DELETE")

	r.HandleFunc("/kyc/pending", h.AdminListPendingKYC).Methods("GET")
	r.HandleFunc("/kyc/{id}/review", h.AdminReviewKYC).Methods("POST")
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
			return
		}
		limit = parsed
	}

	transactions, err := h.transactions.List(r.Context(), status, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

func (h *Handler) AdminUpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Status     string `json:"status"`
		TxHash     string `json:"tx_hash,omitempty"`
		AdminNotes string `json:"admin_notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := h.transactions.Transition(r.Context(), id, models.Status(req.Status), service.TransitionInput{
		TxHash:     req.TxHash,
		AdminNotes: req.AdminNotes,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// AdminResendNotification re-fires the staff alert for a transaction, for
// when the provider was down and the failed log row needs a retry.
func (h *Handler) AdminResendNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.notifier.Notify(r.Context(), id, service.KindStatusUpdate); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) AdminListTransactionNotifications(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	logs, err := h.notifier.ListLogsByTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) AdminListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
			return
		}
		limit = parsed
	}

	logs, err := h.notifier.ListLogs(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) AdminCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountType   string `json:"account_type"`
		PixKey        string `json:"pix_key,omitempty"`
		BankName      string `json:"bank_name,omitempty"`
		BankCode      string `json:"bank_code,omitempty"`
		AccountHolder string `json:"account_holder,omitempty"`
		Agency        string `json:"agency,omitempty"`
		AccountNumber string `json:"account_number,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.accounts.Create(r.Context(), service.CreateAccountInput{
		AccountType:   models.AccountType(req.AccountType),
		PixKey:        req.PixKey,
		BankName:      req.BankName,
		BankCode:      req.BankCode,
		AccountHolder: req.AccountHolder,
		Agency:        req.Agency,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) AdminListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) AdminGetActiveAccount(w http.ResponseWriter, r *http.Request) {
	accountType := models.AccountType(r.URL.Query().Get("type"))

	account, err := h.accounts.GetActive(r.Context(), accountType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) AdminToggleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	account, err := h.accounts.ToggleActive(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) AdminDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	if err := h.accounts.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminListPendingKYC(w http.ResponseWriter, r *http.Request) {
	verifications, err := h.kyc.ListPending(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, verifications)
}

func (h *Handler) AdminReviewKYC(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}

	var req struct {
		Action string `json:"action"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var v *models.KYCVerification
	switch req.Action {
	case "start_review":
		v, err = h.kyc.StartReview(r.Context(), id)
	case "approve":
		v, err = h.kyc.Approve(r.Context(), id)
	case "reject":
		v, err = h.kyc.Reject(r.Context(), id, req.Reason)
	default:
		h.writeError(w, http.StatusBadRequest, pkgerrors.ErrInvalidInput)
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}
