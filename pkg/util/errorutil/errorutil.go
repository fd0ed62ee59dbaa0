package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to API consumers.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeConflict               = "CONFLICT"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeOutOfOrderMilestone    = "OUT_OF_ORDER_MILESTONE"
	CodeAlreadyRated           = "ALREADY_RATED"
	CodeNotRatable             = "NOT_RATABLE"
	CodeUnassigned             = "UNASSIGNED"
	CodeNoMatch                = "NO_MATCH"
	CodeIneligibleAgent        = "INELIGIBLE_AGENT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeReferentialIntegrity   = "REFERENTIAL_INTEGRITY"
	CodeInternal               = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrValidation             = &DomainError{Code: CodeValidation}
	ErrNotFound               = &DomainError{Code: CodeNotFound}
	ErrUnauthorized           = &DomainError{Code: CodeUnauthorized}
	ErrForbidden              = &DomainError{Code: CodeForbidden}
	ErrInvalidTransition      = &DomainError{Code: CodeInvalidTransition}
	ErrOutOfOrderMilestone    = &DomainError{Code: CodeOutOfOrderMilestone}
	ErrAlreadyRated           = &DomainError{Code: CodeAlreadyRated}
	ErrNotRatable             = &DomainError{Code: CodeNotRatable}
	ErrUnassigned             = &DomainError{Code: CodeUnassigned}
	ErrNoMatch                = &DomainError{Code: CodeNoMatch}
	ErrIneligibleAgent        = &DomainError{Code: CodeIneligibleAgent}
	ErrConcurrentModification = &DomainError{Code: CodeConcurrentModification}
	ErrReferentialIntegrity   = &DomainError{Code: CodeReferentialIntegrity}
	ErrConflict               = &DomainError{Code: CodeConflict}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInvalidTransition(from, to string, allowed []string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("invalid transition from %s to %s", from, to),
		http.StatusConflict,
		map[string]any{"from": from, "to": to, "allowed": allowed})
}

func NewOutOfOrderMilestone(milestone, reason string) error {
	return NewDomainError(CodeOutOfOrderMilestone, reason, http.StatusConflict,
		map[string]any{"milestone": milestone})
}

func NewAlreadyRated(requestID string) error {
	return NewDomainError(CodeAlreadyRated, "request already rated", http.StatusConflict,
		map[string]any{"request_id": requestID})
}

func NewNotRatable(requestID, status string) error {
	return NewDomainError(CodeNotRatable, "only resolved or closed requests can be rated", http.StatusConflict,
		map[string]any{"request_id": requestID, "status": status})
}

func NewUnassigned(requestID string) error {
	return NewDomainError(CodeUnassigned, "request has no assigned agent", http.StatusConflict,
		map[string]any{"request_id": requestID})
}

func NewNoMatch(requestID string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["request_id"] = requestID
	return NewDomainError(CodeNoMatch, "no eligible agent for request", http.StatusUnprocessableEntity, details)
}

func NewIneligibleAgent(agentID, reason string) error {
	return NewDomainError(CodeIneligibleAgent, reason, http.StatusUnprocessableEntity,
		map[string]any{"agent_id": agentID})
}

func NewConcurrentModification(resource, id string) error {
	return NewDomainError(CodeConcurrentModification,
		fmt.Sprintf("%s was modified concurrently", resource),
		http.StatusConflict,
		map[string]any{"id": id})
}

func NewReferentialIntegrity(message string, details map[string]any) error {
	return NewDomainError(CodeReferentialIntegrity, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus == 0 {
			copied := *domainErr
			copied.HTTPStatus = http.StatusInternalServerError
			return &copied
		}
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts err to a DomainError, preserving nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
