package cdpcontrol

import "github.com/dgnsrekt/chatrelay/internal/types"

// CodedError is re-exported so callers of this package can match errors
// without importing types.
type CodedError = types.CodedError

const (
	CodeValidation          = types.CodeValidation
	CodeTabNotFound         = types.CodeTabNotFound
	CodeNoActiveTab         = types.CodeNoActiveTab
	CodeAdapterUnresponsive = types.CodeAdapterUnresponsive
	CodeEvalFailure         = types.CodeEvalFailure
	CodeEvalTimeout         = types.CodeEvalTimeout
	CodeCDPUnavailable      = types.CodeCDPUnavailable
)

func newError(code, msg string, cause error) error {
	return types.NewError(code, msg, cause)
}
