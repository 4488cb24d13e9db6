package models

import (
	registrymodels "credregistry/internal/registry/models"
)

// ResultResponse is the JSON shape of a verification result.
type ResultResponse struct {
	Verified     bool                       `json:"verified"`
	Reason       string                     `json:"reason"`
	CredentialID uint64                     `json:"credential_id"`
	Organization string                     `json:"organization,omitempty"`
	Issuer       string                     `json:"issuer,omitempty"`
	Owner        string                     `json:"owner,omitempty"`
	IssuedAt     int64                      `json:"issued_at,omitempty"`
	ExpiresAt    registrymodels.UnixOrNever `json:"expires_at"`
	IsRevoked    bool                       `json:"is_revoked"`
	Confidence   *float64                   `json:"confidence,omitempty"`
}

func ToResultResponse(r *Result) ResultResponse {
	resp := ResultResponse{
		Verified:   r.Verified,
		Reason:     string(r.Reason),
		ExpiresAt:  registrymodels.NewUnixOrNever(nil),
		Confidence: r.Confidence,
	}
	if onChain := r.OnChain; onChain.Found() {
		resp.CredentialID = uint64(onChain.CredentialID)
		resp.Organization = onChain.Organization
		resp.Issuer = onChain.Issuer.String()
		resp.Owner = onChain.Owner.String()
		resp.IssuedAt = onChain.IssuedAt.Unix()
		resp.ExpiresAt = registrymodels.NewUnixOrNever(onChain.ExpiresAt)
		resp.IsRevoked = onChain.IsRevoked
	}
	return resp
}

type BatchSummaryResponse struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

type BatchResultResponse struct {
	Results []ResultResponse     `json:"results"`
	Summary BatchSummaryResponse `json:"summary"`
}

func ToBatchResultResponse(b *BatchResult) BatchResultResponse {
	resp := BatchResultResponse{
		Results: make([]ResultResponse, 0, len(b.Results)),
		Summary: BatchSummaryResponse{
			Total:   b.Summary.Total,
			Valid:   b.Summary.Valid,
			Invalid: b.Summary.Invalid,
		},
	}
	for _, r := range b.Results {
		resp.Results = append(resp.Results, ToResultResponse(r))
	}
	return resp
}
