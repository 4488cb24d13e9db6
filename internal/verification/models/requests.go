package models

import (
	"encoding/base64"
	"strings"

	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/validation"
)

// VerifyRequest is the POST /verify payload. Image is standard base64.
type VerifyRequest struct {
	VerificationCode string `json:"verification_code" validate:"required,notblank,max=130"`
	Image            string `json:"image,omitempty" validate:"omitempty,base64"`
}

func (r *VerifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.VerificationCode = strings.TrimSpace(r.VerificationCode)
	r.Image = strings.TrimSpace(r.Image)
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ToRequest decodes the image and bounds its size.
func (r *VerifyRequest) ToRequest() (Request, error) {
	req := Request{VerificationCode: r.VerificationCode}
	if r.Image == "" {
		return req, nil
	}
	if base64.StdEncoding.DecodedLen(len(r.Image)) > MaxImageBytes+2 {
		return Request{}, dErrors.New(dErrors.CodeBadRequest, "image is too large")
	}
	image, err := base64.StdEncoding.DecodeString(r.Image)
	if err != nil {
		return Request{}, dErrors.New(dErrors.CodeBadRequest, "image must be base64")
	}
	if len(image) > MaxImageBytes {
		return Request{}, dErrors.New(dErrors.CodeBadRequest, "image is too large")
	}
	req.Image = image
	return req, nil
}

// BatchVerifyRequest is the POST /verify/batch payload.
type BatchVerifyRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,max=100,dive,required,notblank,max=130"`
}

func (r *BatchVerifyRequest) Normalize() {
	if r == nil {
		return
	}
	for i, code := range r.Codes {
		r.Codes[i] = strings.TrimSpace(code)
	}
}

func (r *BatchVerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}
