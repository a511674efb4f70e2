package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hubp2p/exchange-service/internal/changefeed"
	"github.com/hubp2p/exchange-service/internal/infrastructure/auth"
	"github.com/hubp2p/exchange-service/internal/models"
	service "github.com/hubp2p/exchange-service/internal/services"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type Handler struct {
	auth         service.AuthService
	rates        service.RateService
	transactions service.TransactionService
	accounts     service.AccountService
	kyc          service.KYCService
	notifier     service.NotifierService
	bus          *changefeed.Bus
}

func NewHandler(
	authSvc service.AuthService,
	rates service.RateService,
	transactions service.TransactionService,
	accounts service.AccountService,
	kyc service.KYCService,
	notifier service.NotifierService,
	bus *changefeed.Bus,
) *Handler {
	return &Handler{
		auth:         authSvc,
		rates:        rates,
		transactions: transactions,
		accounts:     accounts,
		kyc:          kyc,
		notifier:     notifier,
		bus:          bus,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrAccountNotFound),
		errors.Is(err, pkgerrors.ErrUserNotFound),
		errors.Is(err, pkgerrors.ErrKYCNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrAmountBelowMinimum),
		errors.Is(err, pkgerrors.ErrMissingTxHash),
		errors.Is(err, pkgerrors.ErrInvalidNetwork),
		errors.Is(err, pkgerrors.ErrMissingWallet),
		errors.Is(err, pkgerrors.ErrRejectionReason):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, pkgerrors.ErrNoActiveAccount),
		errors.Is(err, pkgerrors.ErrInvalidTransition),
		errors.Is(err, pkgerrors.ErrTransactionExpired),
		errors.Is(err, pkgerrors.ErrTransactionConflict),
		errors.Is(err, pkgerrors.ErrUsernameExists):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, pkgerrors.ErrInvalidCredentials),
		errors.Is(err, pkgerrors.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, pkgerrors.ErrNotAdmin):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, pkgerrors.ErrRateUnavailable),
		errors.Is(err, pkgerrors.ErrNotificationDispatch),
		errors.Is(err, pkgerrors.ErrNotifierNotConfigured):
		h.writeError(w, http.StatusBadGateway, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/api/quote", h.GetQuote).Methods("GET")
	r.HandleFunc("/api/transactions", h.CreateAnonymousTransaction).Methods("POST")
	r.HandleFunc("/api/transactions/{id}", h.GetTransaction).Methods("GET")
	r.HandleFunc("/api/transactions/{id}/events", h.StreamTransactionEvents).Methods("GET")
}

func (h *Handler) RegisterUserRoutes(r *mux.Router) {
	r.HandleFunc("/transactions", h.CreateUserTransaction).Methods("POST")
	r.HandleFunc("/transactions", h.ListUserTransactions).Methods("GET")
	r.HandleFunc("/kyc", h.SubmitKYC).Methods("POST")
	r.HandleFunc("/kyc", h.GetKYCStatus).Methods("GET")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	userID, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"user_id": userID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	amountStr := r.URL.Query().Get("amount_brl")
	if amountStr == "" {
		amountStr = "0"
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid amount_brl"))
		return
	}

	quote, err := h.rates.GetQuote(r.Context(), amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

type createTransactionRequest struct {
	AmountBRL     decimal.Decimal `json:"amount_brl"`
	CryptoNetwork string          `json:"crypto_network"`
	WalletAddress string          `json:"wallet_address"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

func (h *Handler) CreateAnonymousTransaction(w http.ResponseWriter, r *http.Request) {
	h.createTransaction(w, r, nil)
}

func (h *Handler) CreateUserTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}
	h.createTransaction(w, r, &userID)
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request, userID *int64) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := h.transactions.Create(r.Context(), service.CreateTransactionInput{
		UserID:        userID,
		AmountBRL:     req.AmountBRL,
		Network:       models.Network(req.CryptoNetwork),
		WalletAddress: req.WalletAddress,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) ListUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	transactions, err := h.transactions.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// StreamTransactionEvents pushes status changes for one transaction over
// SSE. The client diffs the incoming status against the one it holds, so an
// occasional duplicate event is harmless.
func (h *Handler) StreamTransactionEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	// Current state first, so a reconnecting client re-derives the countdown
	// from the server timestamps instead of a drifted local timer.
	tx, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(v any) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(models.TransactionEvent{
		Kind:          "snapshot",
		TransactionID: tx.ID,
		Number:        tx.TransactionNumber,
		NewStatus:     tx.Status,
		UpdatedAt:     tx.UpdatedAt,
	}) {
		return
	}

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if event.TransactionID != id {
				continue
			}
			if !writeEvent(event) {
				return
			}
		}
	}
}

func (h *Handler) SubmitKYC(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	var req struct {
		DocumentType   string `json:"document_type"`
		DocumentNumber string `json:"document_number"`
		DocumentURL    string `json:"document_url"`
		SelfieURL      string `json:"selfie_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	v, err := h.kyc.Submit(r.Context(), userID, service.SubmitKYCInput{
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		DocumentURL:    req.DocumentURL,
		SelfieURL:      req.SelfieURL,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) GetKYCStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	v, err := h.kyc.Current(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}
