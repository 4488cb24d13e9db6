// Package models holds the verification protocol's request, result and state types.
package models

import (
	registrymodels "credregistry/internal/registry/models"
	"credregistry/pkg/platform/validation"
)

// Reason explains a negative verdict. The empty reason means verified.
type Reason string

const (
	ReasonVerified          Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonRevoked           Reason = "revoked"
	ReasonExpired           Reason = "expired"
	ReasonSimilarityTooLow  Reason = "similarity_too_low"
	ReasonOracleUnavailable Reason = "oracle_unavailable"
)

// Label is the reason as a metric label.
func (r Reason) Label() string {
	if r == ReasonVerified {
		return "verified"
	}
	return string(r)
}

// State is a step of a single verification.
type State string

const (
	StateSubmitted      State = "submitted"
	StateOnChainChecked State = "on_chain_checked"
	StateImageChecked   State = "image_checked"
	StateResolved       State = "resolved"
)

const (
	// MaxBatchSize bounds the codes accepted by one batch verification.
	MaxBatchSize = validation.MaxBatchCodes
	// MaxImageBytes bounds the decoded image sent to the similarity oracle.
	MaxImageBytes = 5 << 20
)

// Request is one verification: a code and, optionally, the presented image.
type Request struct {
	VerificationCode string
	Image            []byte
}

// HasImage reports whether the request asks for an image check.
func (r Request) HasImage() bool {
	return len(r.Image) > 0
}

// Result is the outcome of a verification. OnChain is always set once the
// ledger lookup succeeded, even when a later step fails.
type Result struct {
	Verified   bool
	Reason     Reason
	OnChain    *registrymodels.VerificationResult
	Confidence *float64
	Trail      []State
}

// NewResult starts a result in the submitted state.
func NewResult() *Result {
	return &Result{Trail: []State{StateSubmitted}}
}

// Enter records a state transition.
func (r *Result) Enter(state State) {
	r.Trail = append(r.Trail, state)
}

// State is the latest state reached.
func (r *Result) State() State {
	if len(r.Trail) == 0 {
		return StateSubmitted
	}
	return r.Trail[len(r.Trail)-1]
}

// Resolve finishes the verification with reason.
func (r *Result) Resolve(reason Reason) {
	r.Reason = reason
	r.Verified = reason == ReasonVerified
	r.Enter(StateResolved)
}

// BatchSummary counts the verdicts of a batch.
type BatchSummary struct {
	Total   int
	Valid   int
	Invalid int
}

// BatchResult holds per-code results in input order.
type BatchResult struct {
	Results []*Result
	Summary BatchSummary
}

// Summarize counts verified and unverified results.
func Summarize(results []*Result) BatchSummary {
	summary := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r != nil && r.Verified {
			summary.Valid++
		} else {
			summary.Invalid++
		}
	}
	return summary
}
