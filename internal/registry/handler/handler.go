package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"credregistry/internal/registry/models"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/platform/httputil"
	"credregistry/pkg/requestcontext"
)

// Service defines the registry operations used by the handler.
type Service interface {
	Owner(ctx context.Context) (id.Address, error)
	AuthorizeIssuer(ctx context.Context, caller, address id.Address, organization string) error
	RevokeIssuer(ctx context.Context, caller, address id.Address) error
	GetIssuer(ctx context.Context, address id.Address) (*models.Issuer, error)
	IssueCredential(ctx context.Context, caller id.Address, cmd models.IssueCommand) (id.CredentialID, error)
	GetCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	VerifyCredential(ctx context.Context, code string) (*models.VerificationResult, error)
	RevokeCredential(ctx context.Context, caller id.Address, credentialID id.CredentialID) error
	ListByOwner(ctx context.Context, owner id.Address) ([]*models.Credential, error)
	ListByIssuer(ctx context.Context, issuer id.Address) ([]*models.Credential, error)
	Events(ctx context.Context, credentialID id.CredentialID) ([]*models.Event, error)
}

// Handler serves the registry endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry routes. Mutations sit behind requireAuth; owner and
// issuer checks are made by the service against the ledger.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/registry/owner", h.HandleOwner)
	r.Get("/registry/issuers/{address}", h.HandleGetIssuer)
	r.Get("/registry/issuers/{address}/credentials", h.HandleListByIssuer)
	r.Get("/registry/owners/{address}/credentials", h.HandleListByOwner)
	r.Get("/registry/credentials/{id}", h.HandleGetCredential)
	r.Get("/registry/credentials/{id}/events", h.HandleEvents)
	r.Get("/registry/verify/{code}", h.HandleVerifyCode)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/registry/issuers", h.HandleAuthorizeIssuer)
		r.Delete("/registry/issuers/{address}", h.HandleRevokeIssuer)
		r.Post("/registry/credentials", h.HandleIssueCredential)
		r.Post("/registry/credentials/{id}/revoke", h.HandleRevokeCredential)
	})
}

func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := h.service.Owner(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.OwnerResponse{Owner: owner.String()})
}

// HandleAuthorizeIssuer handles POST /registry/issuers.
func (h *Handler) HandleAuthorizeIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.AuthorizeIssuerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	address, err := id.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AuthorizeIssuer(ctx, caller, address, req.Organization); err != nil {
		h.logger.WarnContext(ctx, "authorize issuer failed",
			"request_id", requestID,
			"caller", caller,
			"issuer", address,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.IssuerResponse{
		Address:      address.String(),
		Organization: req.Organization,
		Authorized:   true,
	})
}

// HandleRevokeIssuer handles DELETE /registry/issuers/{address}.
func (h *Handler) HandleRevokeIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	address, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.RevokeIssuer(ctx, caller, address); err != nil {
		h.logger.WarnContext(ctx, "revoke issuer failed",
			"request_id", requestID,
			"caller", caller,
			"issuer", address,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetIssuer(w http.ResponseWriter, r *http.Request) {
	address, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuer, err := h.service.GetIssuer(r.Context(), address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.IssuerResponse{
		Address:      address.String(),
		Organization: issuer.Organization,
		Authorized:   issuer.Authorized,
	})
}

// HandleIssueCredential handles POST /registry/credentials. The caller is the issuer.
func (h *Handler) HandleIssueCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.IssueCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	credentialID, err := h.service.IssueCredential(ctx, caller, cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "issue credential failed",
			"request_id", requestID,
			"issuer", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.IssueCredentialResponse{CredentialID: uint64(credentialID)})
}

func (h *Handler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	credential, err := h.service.GetCredential(r.Context(), credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToCredentialResponse(credential))
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.Events(r.Context(), credentialID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.EventListResponse{Events: events})
}

// HandleRevokeCredential handles POST /registry/credentials/{id}/revoke.
func (h *Handler) HandleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := httputil.RequireCaller(ctx, h.logger, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.RevokeCredential(ctx, caller, credentialID); err != nil {
		h.logger.WarnContext(ctx, "revoke credential failed",
			"request_id", requestID,
			"caller", caller,
			"credential_id", credentialID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.service.ListByOwner)
}

func (h *Handler) HandleListByIssuer(w http.ResponseWriter, r *http.Request) {
	h.handleList(w, r, h.service.ListByIssuer)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, list func(context.Context, id.Address) ([]*models.Credential, error)) {
	address, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	credentials, err := list(r.Context(), address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := models.CredentialListResponse{Credentials: make([]models.CredentialResponse, 0, len(credentials))}
	for _, c := range credentials {
		resp.Credentials = append(resp.Credentials, models.ToCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerifyCode handles GET /registry/verify/{code}: the raw ledger verdict,
// without the image check. Unknown codes answer 200 with credential_id 0.
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	// chi matches on RawPath when it is set, so reserved characters arrive escaped.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(code)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed verification code"))
			return
		}
		code = unescaped
	}
	result, err := h.service.VerifyCredential(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToVerificationResultResponse(result))
}
