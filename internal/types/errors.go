package types

import (
	"errors"
	"fmt"
)

const (
	CodeValidation          = "VALIDATION"
	CodeNoActiveTab         = "NO_ACTIVE_TAB"
	CodeNoSelection         = "NO_SELECTION"
	CodeTabNotFound         = "TAB_NOT_FOUND"
	CodeAdapterUnresponsive = "ADAPTER_UNRESPONSIVE"
	CodeDeliveryTimeout     = "DELIVERY_TIMEOUT"
	CodeUploadUnsupported   = "UPLOAD_UNSUPPORTED"
	CodeInputFieldNotFound  = "INPUT_FIELD_NOT_FOUND"
	CodeSendButtonNotFound  = "SEND_BUTTON_NOT_FOUND"
	CodeTextInsertFailed    = "TEXT_INSERT_FAILED"
	CodeEvalFailure         = "EVAL_FAILURE"
	CodeEvalTimeout         = "EVAL_TIMEOUT"
	CodeCDPUnavailable      = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a *CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost CodedError in err, or "".
func CodeOf(err error) string {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return ""
	}
	return coded.Code
}
