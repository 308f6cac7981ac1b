package emitter

import (
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeInvalidHandlerKind     = "INVALID_HANDLER_KIND"
	ErrCodeMissingActionType      = "MISSING_ACTION_TYPE"
	ErrCodeActionTypeMismatch     = "ACTION_TYPE_MISMATCH"
	ErrCodeDuplicateType          = "DUPLICATE_TYPE"
	ErrCodeNameCollision          = "NAME_COLLISION"
	ErrCodeUnregisteredHandler    = "UNREGISTERED_HANDLER"
	ErrCodeRegistrySealed         = "REGISTRY_SEALED"
	ErrCodeInvalidInjectionTarget = "INVALID_INJECTION_TARGET"
	ErrCodeDispatchFailed         = "DISPATCH_FAILED"
	ErrCodeHandlerPanic           = "HANDLER_PANIC"
	ErrCodeDispatchCanceled       = "DISPATCH_CANCELED"
	ErrCodeInvalidConfig          = "INVALID_CONFIG"
)

var (
	ErrInvalidHandlerKind = errors.New("only static functions can be decorated", errors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidHandlerKind)
	ErrMissingActionType = errors.New("action type should be defined", errors.CategoryValidation).
				WithTextCode(ErrCodeMissingActionType)
	ErrActionTypeMismatch = errors.New("action type does not match handler type", errors.CategoryValidation).
				WithTextCode(ErrCodeActionTypeMismatch)
	ErrDuplicateType = errors.New("handler with such type already exists", errors.CategoryConflict).
				WithTextCode(ErrCodeDuplicateType)
	ErrNameCollision = errors.New("property with such name already exists", errors.CategoryConflict).
				WithTextCode(ErrCodeNameCollision)
	ErrUnregisteredHandler = errors.New("handler metadata cannot be found", errors.CategoryBadInput).
				WithTextCode(ErrCodeUnregisteredHandler)
	ErrRegistrySealed = errors.New("cannot register handlers after registry has been initialized", errors.CategoryConflict).
				WithTextCode(ErrCodeRegistrySealed)
	ErrInvalidInjectionTarget = errors.New("invalid injection target", errors.CategoryBadInput).
					WithTextCode(ErrCodeInvalidInjectionTarget)
	ErrDispatchFailed = errors.New("dispatch failed", errors.CategoryHandler).
				WithTextCode(ErrCodeDispatchFailed)
	ErrHandlerPanic = errors.New("handler panicked", errors.CategoryHandler).
			WithTextCode(ErrCodeHandlerPanic)
	ErrDispatchCanceled = errors.New("dispatch canceled", errors.CategoryConflict).
				WithTextCode(ErrCodeDispatchCanceled)
	ErrInvalidConfig = errors.New("invalid configuration", errors.CategoryValidation).
				WithTextCode(ErrCodeInvalidConfig)
)

// ErrSuperseded is the cancellation cause recorded when a newer emit replaces a
// pending dispatch of the same type.
var ErrSuperseded = stderrors.New("dispatch superseded by a newer emit")

// ErrCanceledByCaller is the cancellation cause recorded by Completion.Cancel.
var ErrCanceledByCaller = stderrors.New("dispatch canceled by caller")

func newError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
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

// ErrorCode returns the text code of a go-errors error in the chain, or "".
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsKind reports whether any error in the chain carries the given text code.
func IsKind(err error, code string) bool {
	for err != nil {
		next := stderrors.Unwrap(err)
		if ge, ok := err.(*errors.Error); ok {
			if ge.TextCode == code {
				return true
			}
			if next == nil {
				next = ge.Source
			}
		}
		err = next
	}
	return false
}
