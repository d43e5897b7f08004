package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusDraft                   Status = "draft"
	StatusSubmitted               Status = "submitted"
	StatusAdditionalInfoRequested Status = "additional_info_requested"
	StatusApprovedNotPaid         Status = "approved_not_paid"
	StatusApprovedPaid            Status = "approved_paid"
	StatusDeclined                Status = "declined"
)

// NumStatuses is the size of the status enum.
const NumStatuses = 6

// Statuses lists every status in canonical order.
var Statuses = [NumStatuses]Status{
	StatusDraft,
	StatusSubmitted,
	StatusAdditionalInfoRequested,
	StatusApprovedNotPaid,
	StatusApprovedPaid,
	StatusDeclined,
}

var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus converts external input into a Status.
func ParseStatus(s string) (Status, error) {
	candidate := Status(strings.TrimSpace(s))
	if candidate.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return candidate, nil
}

// Index returns the position of s in Statuses, or -1 if s is not a known status.
func (s Status) Index() int {
	for i, candidate := range Statuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Index() >= 0 }

func (s Status) String() string { return string(s) }

// Label is the human readable name shown in emails and tables.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusSubmitted:
		return "Submitted"
	case StatusAdditionalInfoRequested:
		return "Info Requested"
	case StatusApprovedNotPaid:
		return "Approved (Not Paid)"
	case StatusApprovedPaid:
		return "Approved (Paid)"
	case StatusDeclined:
		return "Declined"
	default:
		return string(s)
	}
}

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Roles lists every defined role.
var Roles = []Role{RoleAdmin, RoleUser}

var ErrInvalidRole = errors.New("invalid role")

func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(s)) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Actor is the authenticated party a check or mutation is performed for.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
