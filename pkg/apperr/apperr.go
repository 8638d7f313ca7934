package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason    = "reason"
	MetaStage     = "stage"
	MetaField     = "field"
	MetaBatchID   = "batch_id"
	MetaRecipient = "recipient"
	MetaFn        = "fn"
	MetaSelector  = "selector"
	MetaURL       = "url"

	StagePreparation = "preparation"
	StageBrowser     = "browser"
	StageSession     = "session"
	StageNavigation  = "navigation"
	StageCompose     = "compose"
	StageAttachment  = "attachment"
	StageSend        = "send"
	StageVerify      = "verify"
	StageDiscovery   = "discovery"
	StageStore       = "store"
	StageTransport   = "transport"

	CodeInternal           = "internal"
	CodeInvalidArgument    = "invalid_argument"
	CodeNotFound           = "not_found"
	CodeUnavailable        = "unavailable"
	CodeTimeout            = "timeout"
	CodeBusy               = "busy"
	CodeBrowserNotReady    = "browser_not_ready"
	CodeSessionUnavailable = "session_unavailable"
	CodeNotAuthenticated   = "not_authenticated"
	CodeActionFailed       = "action_failed"
	CodeCancelled          = "cancelled"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func NotFoundError(op string, err error) error {
	return Wrap(op, CodeNotFound, err, map[string]any{
		MetaReason: "not_found",
	})
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return CodeInternal
}

// ReasonOf returns the reason recorded on the outermost *Error that has one.
func ReasonOf(err error) string {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return ""
		}

		if reason, ok := appErr.Metadata[MetaReason].(string); ok && reason != "" {
			return reason
		}

		err = appErr.Err
	}

	return ""
}

// MessageOf returns the innermost error text without the Op prefixes
// added by each wrapping layer.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()

	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			break
		}

		if appErr.Err == nil {
			return appErr.Op
		}

		msg = appErr.Err.Error()
		err = appErr.Err
	}

	return msg
}
