package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	caseinv "github.com/jmorland/securepay-backend/internal/domain/investigation"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
	"github.com/jmorland/securepay-backend/internal/domain/values"
	"github.com/jmorland/securepay-backend/internal/service/auditlog"
	"github.com/jmorland/securepay-backend/internal/service/identity"
	invsvc "github.com/jmorland/securepay-backend/internal/service/investigation"
	"github.com/jmorland/securepay-backend/internal/service/ledger"
	policysvc "github.com/jmorland/securepay-backend/internal/service/policy"
)

// actorHeader carries the authenticated caller's id, set by the auth proxy.
const actorHeader = "X-Actor-ID"

// Handler holds the service surface exposed over HTTP.
type Handler struct {
	identity      *identity.Service
	ledger        *ledger.Service
	investigation *invsvc.Service
	policy        *policysvc.Service
	trail         *auditlog.Trail
	validate      *validator.Validate
	logger        *slog.Logger
}

func NewHandler(
	identitySvc *identity.Service,
	ledgerSvc *ledger.Service,
	investigationSvc *invsvc.Service,
	policySvc *policysvc.Service,
	trail *auditlog.Trail,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		identity:      identitySvc,
		ledger:        ledgerSvc,
		investigation: investigationSvc,
		policy:        policySvc,
		trail:         trail,
		validate:      validator.New(),
		logger:        logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainerrors.NewValidationError("INVALID_JSON", "request body is not valid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return domainerrors.NewValidationError("INVALID_REQUEST", err.Error())
	}
	return nil
}

func actor(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(actorHeader))
	if err != nil {
		return uuid.Nil, domainerrors.NewValidationError("MISSING_ACTOR", "X-Actor-ID header must be a valid UUID")
	}
	return id, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domainerrors.NewValidationError("INVALID_ID", "path id must be a valid UUID")
	}
	return id, nil
}

// --- Users ---

type registerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Role  string `json:"role" validate:"required,oneof=customer investigator admin"`
}

type accountResponse struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Role    string    `json:"role"`
	Status  string    `json:"status"`
	Balance string    `json:"balance"`
}

func newAccountResponse(a *account.Account) accountResponse {
	return accountResponse{
		ID:      a.ID,
		Email:   a.Email,
		Name:    a.Name,
		Role:    a.Role.String(),
		Status:  a.Status.String(),
		Balance: a.Balance.String(),
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := account.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, domainerrors.NewValidationError("INVALID_ROLE", err.Error()))
		return
	}
	a, err := h.identity.Register(r.Context(), req.Email, req.Name, req.Phone, role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountResponse(a))
}

func (h *Handler) ListPendingUsers(w http.ResponseWriter, r *http.Request) {
	adminID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := h.identity.ListPending(r.Context(), adminID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	h.decideUser(w, r, h.identity.Approve)
}

func (h *Handler) RejectUser(w http.ResponseWriter, r *http.Request) {
	h.decideUser(w, r, h.identity.Reject)
}

func (h *Handler) decideUser(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, adminID, userID uuid.UUID) (*account.Account, error),
) {
	adminID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := decide(r.Context(), adminID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(a))
}

type adjustBalanceRequest struct {
	Amount float64 `json:"amount" validate:"required"`
	Reason string  `json:"reason" validate:"required"`
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	adminID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	targetID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req adjustBalanceRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	delta, err := values.NewMoneyFromFloat(req.Amount, values.USD)
	if err != nil {
		writeError(w, r, domainerrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}
	txn, err := h.ledger.AdjustBalance(r.Context(), adminID, targetID, delta, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": txn.ID,
		"amount":         txn.Amount.String(),
	})
}

func (h *Handler) VelocitySnapshot(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.ledger.VelocitySnapshot(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Payments ---

type submitPaymentRequest struct {
	RecipientID    uuid.UUID `json:"recipient_id" validate:"required"`
	Amount         float64   `json:"amount" validate:"required,gt=0"`
	Description    string    `json:"description"`
	Device         string    `json:"device"`
	Location       string    `json:"location"`
	FailedAttempts int       `json:"failed_attempts" validate:"gte=0"`
}

type submitPaymentResponse struct {
	TransactionID      uuid.UUID  `json:"transaction_id"`
	Outcome            string     `json:"outcome"`
	FinalScore         float64    `json:"final_score"`
	RiskFactors        []string   `json:"risk_factors,omitempty"`
	VelocityViolations []string   `json:"velocity_violations,omitempty"`
	Recipient          string     `json:"recipient"`
	CaseID             *uuid.UUID `json:"case_id,omitempty"`
}

func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	senderID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := values.NewMoneyFromFloat(req.Amount, values.USD)
	if err != nil {
		writeError(w, r, domainerrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	res, err := h.ledger.SubmitPayment(r.Context(), ledger.SubmitRequest{
		SenderID:       senderID,
		RecipientID:    req.RecipientID,
		Amount:         amount,
		Description:    req.Description,
		IP:             clientIP(r),
		Device:         req.Device,
		Location:       req.Location,
		FailedAttempts: req.FailedAttempts,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitPaymentResponse{
		TransactionID:      res.TransactionID,
		Outcome:            res.Outcome.String(),
		FinalScore:         res.FinalScore,
		RiskFactors:        res.RiskFactors,
		VelocityViolations: res.VelocityViolations,
		Recipient:          res.RecipientDisplayName,
		CaseID:             res.CaseID,
	})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txn, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           txn.ID,
		"type":         txn.Type,
		"sender_id":    txn.SenderID,
		"recipient_id": txn.RecipientID,
		"amount":       txn.Amount.String(),
		"currency":     txn.Currency,
		"description":  txn.Description,
		"status":       txn.Status.String(),
		"risk_score":   txn.RiskScore,
		"details":      txn.Details,
		"created_at":   txn.CreatedAt,
	})
}

type overrideRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) AdminOverride(w http.ResponseWriter, r *http.Request) {
	adminID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req overrideRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	txn, err := h.ledger.AdminOverride(r.Context(), adminID, txID, req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": txn.ID,
		"status":         txn.Status.String(),
	})
}

// --- Cases ---

type caseResponse struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	AssignedTo    *uuid.UUID `json:"assigned_to,omitempty"`
	Status        string     `json:"status"`
	Finding       string     `json:"finding,omitempty"`
	Report        string     `json:"report,omitempty"`
	Priority      string     `json:"priority"`
}

func newCaseResponse(c *caseinv.Case) caseResponse {
	return caseResponse{
		ID:            c.ID,
		TransactionID: c.TransactionID,
		AssignedTo:    c.AssignedTo,
		Status:        c.Status.String(),
		Finding:       c.Finding.String(),
		Report:        c.Report,
		Priority:      string(c.Priority),
	}
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	investigatorID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var status *caseinv.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := caseinv.Status(s)
		if !st.IsValid() {
			writeError(w, r, domainerrors.NewValidationError("INVALID_STATUS", "unknown case status"))
			return
		}
		status = &st
	}
	cases, err := h.investigation.ListCases(r.Context(), investigatorID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]caseResponse, 0, len(cases))
	for _, c := range cases {
		out = append(out, newCaseResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) AssignCase(w http.ResponseWriter, r *http.Request) {
	investigatorID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caseID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.investigation.AssignCase(r.Context(), caseID, investigatorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCaseResponse(c))
}

type resolveCaseRequest struct {
	Finding    string  `json:"finding" validate:"required,oneof=Safe Fraudulent"`
	Report     string  `json:"report"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func (h *Handler) ResolveCase(w http.ResponseWriter, r *http.Request) {
	investigatorID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caseID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req resolveCaseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.investigation.ResolveCase(r.Context(), invsvc.ResolveRequest{
		CaseID:         caseID,
		InvestigatorID: investigatorID,
		Finding:        caseinv.Finding(req.Finding),
		Report:         req.Report,
		Confidence:     req.Confidence,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCaseResponse(c))
}

// --- Settings ---

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	pol, err := h.policy.Get(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	adminID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var pol settings.Policy
	if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
		writeError(w, r, domainerrors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	if err := h.policy.Update(r.Context(), adminID, pol); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

// --- Audit trail ---

type auditEntryResponse struct {
	ID         uuid.UUID `json:"id"`
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditTrail serves the admin audit view. With entity_type and entity_id set
// it narrows to one entity; otherwise it returns recent activity, optionally
// bounded by a since timestamp (RFC 3339).
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	adminID, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, domainerrors.NewValidationError("INVALID_LIMIT", "limit must be a non-negative integer"))
			return
		}
	}

	var entries []*audit.Entry
	if entityType := q.Get("entity_type"); entityType != "" {
		entries, err = h.trail.ForEntity(r.Context(), adminID, entityType, q.Get("entity_id"), limit)
	} else {
		var since time.Time
		if raw := q.Get("since"); raw != "" {
			since, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, r, domainerrors.NewValidationError("INVALID_SINCE", "since must be an RFC 3339 timestamp"))
				return
			}
		}
		entries, err = h.trail.Recent(r.Context(), adminID, since, limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
