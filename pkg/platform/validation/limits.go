package validation

import (
	"fmt"

	dErrors "credregistry/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxRegistryBodySize bounds registry mutations, which carry hashes and short strings.
	MaxRegistryBodySize = 1 << 20

	// MaxVerifyBodySize bounds verification requests, which may carry a base64 image.
	MaxVerifyBodySize = 8 << 20
)

// Slice element count limits
const (
	// MaxBatchCodes is the maximum number of codes in one batch verification.
	MaxBatchCodes = 100
)

// String element length limits
const (
	// MaxVerificationCodeLength is the maximum length of a normalized verification code.
	MaxVerificationCodeLength = 128

	// MaxOrganizationLength is the maximum length of an issuer organization name.
	MaxOrganizationLength = 256
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
