// Package validation validates inbound request payloads.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
)

var validate = validator.New()

// BatchRequest is the payload of both the synchronous and asynchronous
// batch endpoints.
type BatchRequest struct {
	Keywords  []string `json:"keywords" validate:"required,min=1,max=200,dive,min=1"`
	ChunkSize *int     `json:"chunk_size" validate:"omitempty,min=1,max=50"`
}

// DefaultChunkSize applies when the request omits chunk_size.
const DefaultChunkSize = 20

// EffectiveChunkSize returns the requested chunk size or the default.
func (r *BatchRequest) EffectiveChunkSize() int {
	if r.ChunkSize == nil {
		return DefaultChunkSize
	}
	return *r.ChunkSize
}

// ValidateBatchRequest checks the payload bounds: 1..200 non-empty
// keywords, chunk size within [1, 50].
func ValidateBatchRequest(request *BatchRequest) error {
	if err := validate.Struct(request); err != nil {
		return apperrors.NewValidationError(describeValidationError(err))
	}
	for _, kw := range request.Keywords {
		if strings.TrimSpace(kw) == "" {
			return apperrors.NewValidationError("keywords must not be blank")
		}
	}
	return nil
}

func describeValidationError(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return "invalid request payload"
	}

	first := validationErrors[0]
	switch first.Field() {
	case "Keywords":
		switch first.Tag() {
		case "required", "min":
			return "keywords must contain between 1 and 200 entries"
		case "max":
			return "keywords must contain between 1 and 200 entries"
		}
		return "keywords entries must be non-empty"
	case "ChunkSize":
		return "chunk_size must be between 1 and 50"
	}
	return "invalid request payload"
}
