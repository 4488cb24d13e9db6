package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credregistry/internal/verification/models"
	"credregistry/pkg/platform/httputil"
	"credregistry/pkg/platform/validation"
	"credregistry/pkg/requestcontext"
)

// maxBodyBytes admits a base64 image of MaxImageBytes plus the envelope.
const maxBodyBytes = validation.MaxVerifyBodySize

// Service defines the verification operations used by the handler.
type Service interface {
	Verify(ctx context.Context, req models.Request) (*models.Result, error)
	VerifyBatch(ctx context.Context, codes []string) (*models.BatchResult, error)
}

// Handler serves the public verification endpoints. Verification needs no caller.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Post("/verify/batch", h.HandleVerifyBatch)
}

// HandleVerify handles POST /verify. Negative verdicts are 200 responses; only
// malformed input and ledger failures are errors.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, ok := httputil.DecodeAndPrepare[models.VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "verification failed",
			"request_id", requestID,
			"has_image", req.HasImage(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResultResponse(result))
}

// HandleVerifyBatch handles POST /verify/batch.
func (h *Handler) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, ok := httputil.DecodeAndPrepare[models.BatchVerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	batch, err := h.service.VerifyBatch(ctx, req.Codes)
	if err != nil {
		h.logger.WarnContext(ctx, "batch verification failed",
			"request_id", requestID,
			"batch_size", len(req.Codes),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToBatchResultResponse(batch))
}
