package automate

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeDuplicateAttributeKey = "DUPLICATE_ATTRIBUTE_KEY"
	ErrCodeInvalidAttributes     = "INVALID_ATTRIBUTES"
	ErrCodeInvalidFqClassName    = "INVALID_FQ_CLASS_NAME"
	ErrCodeInvalidDescriptor     = "INVALID_DESCRIPTOR"
	ErrCodeUnauthorizedActor     = "UNAUTHORIZED_ACTOR"
	ErrCodeUserIDRequired        = "USER_ID_REQUIRED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeGroupNotFound         = "GROUP_NOT_FOUND"
	ErrCodeObjectNotFound        = "OBJECT_NOT_FOUND"
	ErrCodeUnknownObjectType     = "UNKNOWN_OBJECT_TYPE"
	ErrCodeEngineFailure         = "ENGINE_FAILURE"
	ErrCodeQueueSubmitFailed     = "QUEUE_SUBMIT_FAILED"
	ErrCodeInvalidPayload        = "INVALID_PAYLOAD"
)

var (
	ErrDuplicateAttributeKey = apperrors.New("attribute key already exists", apperrors.CategoryConflict).
					WithTextCode(ErrCodeDuplicateAttributeKey)
	ErrInvalidAttributes = apperrors.New("unsupported attribute map", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidAttributes)
	ErrInvalidFqClassName = apperrors.New("invalid fully qualified class name", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidFqClassName)
	ErrInvalidDescriptor = apperrors.New("invalid automation object descriptor", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidDescriptor)
	ErrUnauthorizedActor = apperrors.New("user object not passed in", apperrors.CategoryValidation).
				WithTextCode(ErrCodeUnauthorizedActor)
	ErrUserIDRequired = apperrors.New("user_id not specified in Automation request", apperrors.CategoryValidation).
				WithTextCode(ErrCodeUserIDRequired)
	ErrUserNotFound = apperrors.New("user not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeUserNotFound)
	ErrGroupNotFound = apperrors.New("group not found", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeGroupNotFound)
	ErrObjectNotFound = apperrors.New("object not found", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeObjectNotFound)
	ErrUnknownObjectType = apperrors.New("unknown object type", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeUnknownObjectType)
	ErrEngineFailure = apperrors.New("workflow engine failure", apperrors.CategoryExternal).
				WithTextCode(ErrCodeEngineFailure)
	ErrQueueSubmitFailed = apperrors.New("queue submission failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodeQueueSubmitFailed)
	ErrInvalidPayload = apperrors.New("invalid delivery payload", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidPayload)
)

// NewError clones base, overriding its message and attaching source and metadata.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrEngineFailure
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// Errorf is NewError with a formatted message and no source.
func Errorf(base *apperrors.Error, format string, args ...any) *apperrors.Error {
	return NewError(base, fmt.Sprintf(format, args...), nil, nil)
}

// ErrorCode returns the text code carried by err, if any.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return code != "" && ErrorCode(err) == code
}
