// Package shared holds the error kinds, events and small value objects that
// every domain package uses. It imports nothing outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is against these; the
// HTTP layer maps each kind to a status code.
var (
	ErrNotFound  = errors.New("entity not found")
	ErrConflict  = errors.New("entity already exists")
	ErrForbidden = errors.New("forbidden")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrLockNotAcquired        = errors.New("lock not acquired")
)

// DomainError attaches the failing domain and operation to an error kind.
type DomainError struct {
	Domain  string // "queue", "group", "matchmaking"...
	Op      string
	Kind    error
	Message string
	Err     error // optional cause
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the cause when there is one and the kind otherwise.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches another DomainError with the same domain, op and message, the
// kind, or anything in the cause chain.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if t, ok := target.(*DomainError); ok {
		other = t
	}
	switch {
	case other != nil && other.Domain == e.Domain && other.Op == e.Op && other.Message == e.Message:
		return true
	case e.Kind != nil && errors.Is(e.Kind, target):
		return true
	default:
		return e.Err != nil && errors.Is(e.Err, target)
	}
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with a cause; err may be nil.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	de := NewDomainError(domain, op, kind, message)
	de.Err = err
	return de
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrAlreadyQueued        = NewDomainError("queue", "Enqueue", ErrConflict, "already queued for this course")
	ErrAlreadyInCourseGroup = NewDomainError("queue", "Enqueue", ErrConflict, "already a member of a group in this course")
	ErrTicketNotFound       = NewDomainError("queue", "Find", ErrNotFound, "ticket not found")
	ErrGroupTicketNotFound  = NewDomainError("queue", "FindGroupTicket", ErrNotFound, "group ticket not found")
	ErrTicketNotOwned       = NewDomainError("queue", "Withdraw", ErrForbidden, "ticket belongs to another user")
	ErrStaleTicket          = NewDomainError("queue", "Dequeue", ErrNotFound, "ticket was removed concurrently")
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrGroupNotFound     = NewDomainError("group", "Find", ErrNotFound, "group not found")
	ErrGroupFull         = NewDomainError("group", "AddMember", ErrValidation, "group is at capacity")
	ErrDuplicateMember   = NewDomainError("group", "AddMember", ErrValidation, "member already in group")
	ErrMemberInOtherGrp  = NewDomainError("group", "AddMember", ErrConflict, "user already belongs to a group in this course")
	ErrNotAGroupMember   = NewDomainError("group", "RemoveMember", ErrNotFound, "user is not a member of the group")
	ErrInvalidCapacity   = NewDomainError("group", "Validate", ErrValidation, "capacity violates course size policy")
	ErrGroupDisbanded    = NewDomainError("group", "Mutate", ErrInvalidState, "group has been disbanded")
	ErrGroupAlreadyFull  = NewDomainError("group", "Enqueue", ErrValidation, "group is already full")
	ErrGroupAlreadyQueue = NewDomainError("group", "Enqueue", ErrConflict, "group is already queued")
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE, IDENTITY, MATCHMAKING
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCourseNotFound = NewDomainError("course", "Find", ErrNotFound, "course not found")
	ErrNotEnrolled    = NewDomainError("course", "CheckEnrollment", ErrForbidden, "user is not enrolled in the course")
	ErrUserNotFound   = NewDomainError("identity", "Find", ErrNotFound, "user not found")
	ErrCourseLocked   = NewDomainError("matchmaking", "Lock", ErrLockNotAcquired, "course batch is running elsewhere")
)

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool  { return errors.Is(err, ErrConflict) }
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsValidation covers every kind that means the caller sent bad input.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
