package models

import dErrors "erp/pkg/domain-errors"

// Status is the approval state of a user record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCanceled  Status = "canceled"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted, StatusCanceled},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusCanceled},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows s → to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status from external input.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+v)
	}
	return s, nil
}

// Role is the job function of a user inside the ERP.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}
