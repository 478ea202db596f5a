package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInvalidState    Code = "INVALID_STATE_TRANSITION"
	CodeDependency      Code = "DEPENDENCY_ERROR"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// Reason narrows a Code to the specific rule that rejected the operation.
type Reason string

const (
	ReasonInvalidQuantity        Reason = "InvalidQuantity"
	ReasonInvalidSerial          Reason = "InvalidSerial"
	ReasonMissingField           Reason = "MissingField"
	ReasonInvalidField           Reason = "InvalidField"
	ReasonQRsUnavailable         Reason = "QRsUnavailable"
	ReasonBundleNotOwned         Reason = "BundleNotOwned"
	ReasonBundleAlreadyAssigned  Reason = "BundleAlreadyAssigned"
	ReasonTransferBlocked        Reason = "TransferBlocked"
	ReasonAgentInactive          Reason = "AgentInactive"
	ReasonAgentExists            Reason = "AgentExists"
	ReasonInProgress             Reason = "InProgress"
	ReasonForbiddenTransition    Reason = "ForbiddenTransition"
	ReasonAlreadyTerminal        Reason = "AlreadyTerminal"
	ReasonInvalidStateTransition Reason = "InvalidStateTransition"
	ReasonVoiceCallsDisabled     Reason = "VoiceCallsDisabled"
	ReasonNotOwner               Reason = "NotOwner"
	ReasonRoleRequired           Reason = "RoleRequired"
	ReasonStorageUpload          Reason = "StorageUpload"
	ReasonImageRender            Reason = "ImageRender"
	ReasonNotFound               Reason = "NotFound"
)

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed"},
	CodeForbidden:       {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:        {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:        {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeInvalidState:    {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed"},
	CodeDependency:      {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable"},
	CodeInternal:        {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeUnauthenticated: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	reason  Reason
	message string
	ids     []string
	cause   error
}

func New(code Code, reason Reason, message string) *Error {
	return &Error{code: code, reason: reason, message: message}
}

func Wrap(code Code, reason Reason, err error, message string) *Error {
	return &Error{code: code, reason: reason, message: message, cause: err}
}

// WithIDs attaches the offending entity ids so callers can retry correctly.
func (e *Error) WithIDs(ids ...string) *Error {
	e.ids = append(e.ids, ids...)
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Reason() Reason {
	if e == nil {
		return ""
	}
	return e.reason
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) IDs() []string {
	if e == nil {
		return nil
	}
	return e.ids
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.code, e.message)
	if len(e.ids) > 0 {
		msg += " [" + strings.Join(e.ids, ", ") + "]"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func HasReason(err error, reason Reason) bool {
	typed := As(err)
	return typed != nil && typed.Reason() == reason
}

func Validation(reason Reason, message string) *Error {
	return New(CodeValidation, reason, message)
}

func Conflict(reason Reason, message string, ids ...string) *Error {
	return New(CodeConflict, reason, message).WithIDs(ids...)
}

func InvalidState(reason Reason, message string) *Error {
	return New(CodeInvalidState, reason, message)
}

func NotFound(entity, id string) *Error {
	return New(CodeNotFound, ReasonNotFound, entity+" not found").WithIDs(id)
}

func Forbidden(reason Reason, message string) *Error {
	return New(CodeForbidden, reason, message)
}

func Dependency(reason Reason, err error, message string) *Error {
	return Wrap(CodeDependency, reason, err, message)
}
