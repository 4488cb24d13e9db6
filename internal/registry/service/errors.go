package service

import (
	"context"
	"errors"

	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
)

const (
	msgMissingCaller         = "caller identity required"
	msgNotOwner              = "caller is not the registry owner"
	msgNotAuthorizedIssuer   = "not authorized issuer"
	msgDuplicateCode         = "verification code already used"
	msgNotAuthorizedToRevoke = "not authorized to revoke"
	msgCredentialNotFound    = "credential not found"
)

func requireCaller(caller id.Address) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, msgMissingCaller)
	}
	return nil
}

// translateErr maps store and transaction failures to domain errors. Errors that
// already carry a domain code pass through unchanged.
func translateErr(err error, action string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.CodeOf(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, action+": not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, action+": conflict")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, action+": backend unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, action+": timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}
