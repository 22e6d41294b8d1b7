// Package handler exposes the pointer registry, enforcement guard and audit
// queries over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auditmodels "veto/internal/audit/models"
	"veto/internal/enforcement"
	"veto/internal/pointer/models"
	"veto/internal/pointer/registry"
	receiptmodels "veto/internal/receipt/models"
	id "veto/pkg/domain"
	dErrors "veto/pkg/domain-errors"
	"veto/pkg/platform/httputil"
	"veto/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Registry,Guard,AuditQuery

// Registry is the pointer lifecycle surface.
type Registry interface {
	Create(ctx context.Context, req registry.CreateRequest) (*registry.CreateResult, error)
	Orphan(ctx context.Context, pointerID id.PointerID, reason string) (*registry.OrphanResult, error)
	EnsureOrganization(ctx context.Context, orgID id.OrgID, name string) (*models.Organization, error)
}

// Guard resolves pointers to data.
type Guard interface {
	Resolve(ctx context.Context, pointerID id.PointerID) (*enforcement.Resolution, error)
}

// AuditQuery is the compliance read surface.
type AuditQuery interface {
	ReceiptsFor(ctx context.Context, pointerID id.PointerID) ([]*receiptmodels.Receipt, error)
	VerifyChain(ctx context.Context, pointerID id.PointerID) (*receiptmodels.Verification, error)
	AuditTrailFor(ctx context.Context, orgID id.OrgID, subjectID string) (*auditmodels.Trail, error)
}

// Handler wires pointer endpoints to the core services.
type Handler struct {
	registry     Registry
	guard        Guard
	audit        AuditQuery
	defaultOrgID id.OrgID
	logger       *slog.Logger
}

// New constructs a pointer handler. defaultOrgID scopes audit queries that
// carry no org_id.
func New(registry Registry, guard Guard, audit AuditQuery, defaultOrgID id.OrgID, logger *slog.Logger) *Handler {
	return &Handler{
		registry:     registry,
		guard:        guard,
		audit:        audit,
		defaultOrgID: defaultOrgID,
		logger:       logger,
	}
}

// Register mounts the public API routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/pointer/create", h.HandleCreate)
	r.Get("/api/pointer/resolve/{id}", h.HandleResolve)
	r.Post("/api/pointer/orphan", h.HandleOrphan)
	r.Get("/api/receipts/{pointer_id}", h.HandleListReceipts)
	r.Get("/api/receipts/{pointer_id}/verify", h.HandleVerifyChain)
	r.Get("/api/audit/{subject_id}", h.HandleAuditTrail)
}

// RegisterAdmin mounts administrative routes. Callers guard r with the admin
// token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/organizations", h.HandleCreateOrganization)
}

// HandleCreate handles POST /api/pointer/create.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreatePointerRequest](ctx, w, r, h.logger, requestID)
	if !ok {
		return
	}

	res, err := h.registry.Create(ctx, registry.CreateRequest{
		OrgID:       req.ParsedOrgID(),
		SubjectID:   req.SubjectID,
		ContentHash: req.ContentHash,
		Payload:     req.Payload(),
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.logError(ctx, "pointer create failed", requestID, "", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "pointer created",
		"request_id", requestID,
		"pointer_id", res.Pointer.ID.String(),
		"data_reused", res.DataReused,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromCreateResult(res))
}

// HandleResolve handles GET /api/pointer/resolve/{id}.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	pointerID, err := id.ParsePointerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.guard.Resolve(ctx, pointerID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDenied) {
			h.logger.WarnContext(ctx, "resolve denied",
				"request_id", requestID,
				"pointer_id", pointerID.String(),
				"error", err,
			)
		} else {
			h.logError(ctx, "resolve failed", requestID, pointerID.String(), err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromResolution(res))
}

// HandleOrphan handles POST /api/pointer/orphan.
func (h *Handler) HandleOrphan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[OrphanPointerRequest](ctx, w, r, h.logger, requestID)
	if !ok {
		return
	}

	res, err := h.registry.Orphan(ctx, req.ParsedPointerID(), req.Reason)
	if err != nil {
		h.logError(ctx, "pointer orphan failed", requestID, req.PointerID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "pointer orphaned",
		"request_id", requestID,
		"pointer_id", res.Pointer.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, fromOrphanResult(res))
}

// HandleListReceipts handles GET /api/receipts/{pointer_id}.
func (h *Handler) HandleListReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pointerID, err := id.ParsePointerID(chi.URLParam(r, "pointer_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	receipts, err := h.audit.ReceiptsFor(ctx, pointerID)
	if err != nil {
		h.logError(ctx, "receipt listing failed", requestcontext.RequestID(ctx), pointerID.String(), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromReceipts(pointerID.String(), receipts))
}

// HandleVerifyChain handles GET /api/receipts/{pointer_id}/verify. A broken
// chain is a successful verification with valid=false.
func (h *Handler) HandleVerifyChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pointerID, err := id.ParsePointerID(chi.URLParam(r, "pointer_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.audit.VerifyChain(ctx, pointerID)
	if err != nil {
		h.logError(ctx, "chain verification failed", requestcontext.RequestID(ctx), pointerID.String(), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// HandleAuditTrail handles GET /api/audit/{subject_id}?org_id=.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := h.defaultOrgID
	if raw := strings.TrimSpace(r.URL.Query().Get("org_id")); raw != "" {
		parsed, err := id.ParseOrgID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		orgID = parsed
	}

	trail, err := h.audit.AuditTrailFor(ctx, orgID, chi.URLParam(r, "subject_id"))
	if err != nil {
		h.logError(ctx, "audit trail query failed", requestcontext.RequestID(ctx), "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trail)
}

// HandleCreateOrganization handles POST /admin/organizations.
func (h *Handler) HandleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateOrganizationRequest](ctx, w, r, h.logger, requestID)
	if !ok {
		return
	}
	org, err := h.registry.EnsureOrganization(ctx, req.ParsedOrgID(), req.Name)
	if err != nil {
		h.logError(ctx, "organization create failed", requestID, "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, &OrganizationResponse{
		OrgID:     org.ID.String(),
		Name:      org.Name,
		CreatedAt: org.CreatedAt,
	})
}

// logError logs server-side failures; client errors are not logged at error level.
func (h *Handler) logError(ctx context.Context, msg, requestID, pointerID string, err error) {
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.InfoContext(ctx, msg,
			"request_id", requestID,
			"pointer_id", pointerID,
			"error", err,
		)
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestID,
		"pointer_id", pointerID,
		"error", err,
	)
}
