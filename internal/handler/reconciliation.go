package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/courseflow/reconciliation-engine/internal/domain"
	"github.com/courseflow/reconciliation-engine/internal/service"
	customError "github.com/courseflow/reconciliation-engine/pkg/errors"
	"github.com/courseflow/reconciliation-engine/pkg/response"
)

// actorHeader identifies the accounting/admin user performing a command.
// Authentication itself happens upstream.
const actorHeader = "X-Actor"

type ReconciliationHandler struct {
	service   *service.ReconciliationService
	validator *validator.Validate
}

func NewReconciliationHandler(service *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:   service,
		validator: validator.New(),
	}
}

// Routes mounts all reconciliation endpoints on the router.
func (h *ReconciliationHandler) Routes(api *mux.Router) {
	api.HandleFunc("/invoices", h.CreateInvoice).Methods("POST")
	api.HandleFunc("/invoices/{invoiceId}", h.GetInvoice).Methods("GET")
	api.HandleFunc("/invoices/{invoiceId}/preview", h.PreviewPayment).Methods("GET")
	api.HandleFunc("/invoices/{invoiceId}/payments", h.SubmitPayment).Methods("POST")
	api.HandleFunc("/invoices/{invoiceId}/payments", h.ListPayments).Methods("GET")
	api.HandleFunc("/invoices/{invoiceId}/audit", h.InvoiceAuditTrail).Methods("GET")
	api.HandleFunc("/invoices/{invoiceId}/approve", h.ApproveInvoice).Methods("POST")
	api.HandleFunc("/invoices/{invoiceId}/reject", h.RejectInvoice).Methods("POST")
	api.HandleFunc("/invoices/{invoiceId}/post", h.PostInvoice).Methods("POST")
	api.HandleFunc("/invoices/{invoiceId}/mark-paid", h.MarkInvoiceAsPaid).Methods("POST")
	api.HandleFunc("/organizations/{orgId}/invoices", h.ListInvoices).Methods("GET")
	api.HandleFunc("/organizations/{orgId}/invoices/oldest-unpaid", h.GetOldestUnpaidInvoice).Methods("GET")
	api.HandleFunc("/payments/{paymentId}/verify", h.VerifyPayment).Methods("POST")
	api.HandleFunc("/payments/{paymentId}/reject", h.RejectPayment).Methods("POST")
	api.HandleFunc("/payments/{paymentId}/reverse", h.ReversePayment).Methods("POST")
	api.HandleFunc("/payments/{paymentId}/audit", h.PaymentAuditTrail).Methods("GET")
}

func (h *ReconciliationHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	invoice, err := h.service.CreateInvoice(r.Context(), &request)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Created(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), orgID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	now := time.Now()
	views := make([]*domain.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, domain.NewInvoiceResponse(inv, now))
	}

	response.Success(w, views)
}

func (h *ReconciliationHandler) GetOldestUnpaidInvoice(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathUUID(w, r, "orgId")
	if !ok {
		return
	}

	invoice, err := h.service.GetOldestUnpaidInvoice(r.Context(), orgID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}
	if invoice == nil {
		response.NotFound(w, "Organization has no unpaid invoices")
		return
	}

	response.Success(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) PreviewPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	amountCents, err := strconv.ParseInt(r.URL.Query().Get("amount_cents"), 10, 64)
	if err != nil {
		response.BadRequest(w, "amount_cents must be an integer", err)
		return
	}

	preview, err := h.service.PreviewPayment(r.Context(), invoiceID, amountCents)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, preview)
}

func (h *ReconciliationHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	var request domain.SubmitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	payment, err := h.service.SubmitPayment(r.Context(), invoiceID, &request)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Created(w, payment)
}

func (h *ReconciliationHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(r.Context(), invoiceID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, payments)
}

func (h *ReconciliationHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "paymentId")
	if !ok {
		return
	}

	payment, err := h.service.VerifyPayment(r.Context(), paymentID, r.Header.Get(actorHeader))
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, payment)
}

func (h *ReconciliationHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "paymentId")
	if !ok {
		return
	}

	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	payment, err := h.service.RejectPayment(r.Context(), paymentID, r.Header.Get(actorHeader), reason)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, payment)
}

func (h *ReconciliationHandler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "paymentId")
	if !ok {
		return
	}

	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	payment, err := h.service.ReversePayment(r.Context(), paymentID, r.Header.Get(actorHeader), reason)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, payment)
}

func (h *ReconciliationHandler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	invoice, err := h.service.ApproveInvoice(r.Context(), invoiceID, r.Header.Get(actorHeader))
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) RejectInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	var request domain.RejectInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	invoice, err := h.service.RejectInvoice(r.Context(), invoiceID, r.Header.Get(actorHeader), request.Reason)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) PostInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	invoice, err := h.service.PostInvoiceToOrganization(r.Context(), invoiceID, r.Header.Get(actorHeader))
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) MarkInvoiceAsPaid(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	invoice, err := h.service.MarkInvoiceAsPaid(r.Context(), invoiceID, r.Header.Get(actorHeader))
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, domain.NewInvoiceResponse(invoice, time.Now()))
}

func (h *ReconciliationHandler) InvoiceAuditTrail(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathUUID(w, r, "invoiceId")
	if !ok {
		return
	}

	entries, err := h.service.ListAuditTrail(r.Context(), domain.AuditEntityInvoice, invoiceID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, entries)
}

func (h *ReconciliationHandler) PaymentAuditTrail(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "paymentId")
	if !ok {
		return
	}

	entries, err := h.service.ListAuditTrail(r.Context(), domain.AuditEntityPayment, paymentID)
	if err != nil {
		writeBusinessError(w, err)
		return
	}

	response.Success(w, entries)
}

func (h *ReconciliationHandler) decodeReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	var request domain.PaymentDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return "", false
	}
	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return "", false
	}
	return request.Reason, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.BadRequest(w, name+" must be a valid UUID", err)
		return uuid.Nil, false
	}
	return id, true
}

// writeBusinessError maps the typed failure taxonomy onto HTTP statuses.
// Message formatting for end users stays with the UI collaborator; the
// body carries the machine-readable code.
func writeBusinessError(w http.ResponseWriter, err error) {
	var bizErr *customError.BusinessError
	if !errors.As(err, &bizErr) {
		response.InternalServerError(w, "Unexpected error", err)
		return
	}

	status := http.StatusInternalServerError
	switch bizErr.Code {
	case customError.ErrCodeNotFound:
		status = http.StatusNotFound
	case customError.ErrCodeInvalidAmount,
		customError.ErrCodeMissingMethod,
		customError.ErrCodeInvalidTransition,
		customError.ErrCodeBalanceNotZero:
		status = http.StatusUnprocessableEntity
	case customError.ErrCodeOrderingViolation,
		customError.ErrCodeDuplicateSubmission,
		customError.ErrCodeLocked:
		status = http.StatusConflict
	}

	response.ErrorWithCode(w, status, bizErr.Code, bizErr.Message, bizErr.Err)
}
