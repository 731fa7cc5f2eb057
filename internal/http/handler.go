package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"FlowBackend/internal/flow"
	"FlowBackend/internal/services"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Checkout        *services.CheckoutService
	FlowAPIURL      string
	PublicBaseURL   string
	DownloadBaseURL string
}

func NewHandler(checkout *services.CheckoutService, flowAPIURL, publicBaseURL, downloadBaseURL string) *Handler {
	return &Handler{
		Checkout:        checkout,
		FlowAPIURL:      flowAPIURL,
		PublicBaseURL:   publicBaseURL,
		DownloadBaseURL: downloadBaseURL,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"service":           "flow-backend",
		"flow_api_url":      h.FlowAPIURL,
		"public_base_url":   h.PublicBaseURL,
		"download_base_url": h.DownloadBaseURL,
	})
}

type createPayRequest struct {
	Email string `json:"email"`
}

func (h *Handler) CreatePay(w http.ResponseWriter, r *http.Request) {
	var req createPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.Checkout.CreateCheckout(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "invalid or missing email")
		case errors.Is(err, services.ErrNoPublicBaseURL):
			writeError(w, http.StatusInternalServerError, "public base url not configured")
		case errors.Is(err, flow.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, "flow credentials not configured")
		case errors.Is(err, flow.ErrGatewayHTTP), errors.Is(err, flow.ErrGatewayResponse):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("create checkout failed: %v", err)
			writeError(w, http.StatusInternalServerError, "create checkout failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"checkoutUrl": res.CheckoutURL,
		"token":       res.Token,
	})
}

// Confirmation always answers 200: a non-success response would make the
// gateway redeliver the callback indefinitely. Internal failures are logged
// and left for the next delivery.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "bad form"})
		return
	}
	token := r.PostFormValue("token")

	result, err := h.Checkout.ProcessConfirmation(r.Context(), token)
	if err != nil {
		log.Printf("confirmation processing failed token=%s: %v", token, err)
	}

	switch result {
	case services.ConfirmMissingToken:
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "missing token"})
	case services.ConfirmOrderNotFound:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "warn": "order_not_found"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "bad form"})
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "missing token"})
		return
	}

	outcome, err := h.Checkout.ReturnStatus(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": outcome.OK, "message": outcome.Message})
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "downloadToken")

	dl, err := h.Checkout.AuthorizeDownload(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDownloadNotFound):
			writeError(w, http.StatusNotFound, "invalid or expired link")
		case errors.Is(err, services.ErrPaymentRequired):
			writeError(w, http.StatusForbidden, "payment not confirmed")
		case errors.Is(err, services.ErrProductMissing):
			writeError(w, http.StatusInternalServerError, "product file missing")
		default:
			log.Printf("download authorization failed: %v", err)
			writeError(w, http.StatusInternalServerError, "download failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+dl.Filename+`"`)
	http.ServeFile(w, r, dl.Path)
}
