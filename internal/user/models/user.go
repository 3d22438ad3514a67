package models

import (
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	id "erp/pkg/domain"
	dErrors "erp/pkg/domain-errors"
)

// User is the aggregate root of the users resource family.
//
// Invariants:
//   - Email is a valid address and unique (case-insensitive) across users
//   - FirstName and LastName are non-empty and at most 128 characters
//   - Status transitions follow the approval lifecycle:
//     draft → submitted → approved | rejected
//     draft | submitted → canceled
//     rejected → draft (on profile update)
//   - Approved users cannot be deleted
//   - CreatedAt is immutable after construction
type User struct {
	ID           id.UserID  `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	Status       Status     `json:"status"`
	RejectReason string     `json:"reject_reason,omitempty"`
	InviteHash   string     `json:"-"`
	InvitedAt    *time.Time `json:"invited_at,omitempty"`
	Workflows    []string   `json:"workflows"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const maxNameLength = 128

var workflowName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// NewUser validates input and returns a draft user.
func NewUser(userID id.UserID, email, firstName, lastName string, role Role, now time.Time) (*User, error) {
	u := &User{
		ID:        userID,
		Status:    StatusDraft,
		Workflows: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.setProfile(email, firstName, lastName, role); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) setProfile(email, firstName, lastName string, role Role) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return dErrors.New(dErrors.CodeInvariantViolation, "email must be a valid address")
	}
	if err := validateName("first name", firstName); err != nil {
		return err
	}
	if err := validateName("last name", lastName); err != nil {
		return err
	}
	if !role.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown role: "+string(role))
	}
	u.Email = email
	u.FirstName = strings.TrimSpace(firstName)
	u.LastName = strings.TrimSpace(lastName)
	u.Role = role
	return nil
}

func validateName(field, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, field+" cannot be empty")
	}
	if len(v) > maxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, field+" must be 128 characters or less")
	}
	return nil
}

// Profile is a partial update. Nil fields are left unchanged.
type Profile struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *Role
}

// CanUpdate checks that the profile may be edited in the current status.
func (u *User) CanUpdate() error {
	switch u.Status {
	case StatusSubmitted:
		return dErrors.New(dErrors.CodeInvalidState, "user is awaiting approval and cannot be edited")
	case StatusCanceled:
		return dErrors.New(dErrors.CodeInvalidState, "canceled users cannot be edited")
	}
	return nil
}

// ApplyUpdate merges p into the user. A rejected user returns to draft so it
// can be resubmitted.
func (u *User) ApplyUpdate(p Profile, now time.Time) error {
	if err := u.CanUpdate(); err != nil {
		return err
	}
	email, first, last, role := u.Email, u.FirstName, u.LastName, u.Role
	if p.Email != nil {
		email = *p.Email
	}
	if p.FirstName != nil {
		first = *p.FirstName
	}
	if p.LastName != nil {
		last = *p.LastName
	}
	if p.Role != nil {
		role = *p.Role
	}
	if err := u.setProfile(email, first, last, role); err != nil {
		return err
	}
	if u.Status == StatusRejected {
		u.Status = StatusDraft
		u.RejectReason = ""
	}
	u.UpdatedAt = now
	return nil
}

// CanDelete refuses deletion of approved users.
func (u *User) CanDelete() error {
	if u.Status == StatusApproved {
		return dErrors.New(dErrors.CodeInvalidState, "approved users cannot be deleted")
	}
	return nil
}

func (u *User) transition(to Status, now time.Time) error {
	if !u.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvalidState,
			"cannot move user from "+string(u.Status)+" to "+string(to))
	}
	u.Status = to
	u.UpdatedAt = now
	return nil
}

func (u *User) Submit(now time.Time) error {
	return u.transition(StatusSubmitted, now)
}

func (u *User) Approve(now time.Time) error {
	if err := u.transition(StatusApproved, now); err != nil {
		return err
	}
	u.RejectReason = ""
	return nil
}

// Reject requires a reason so the requester knows what to fix.
func (u *User) Reject(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "reject reason cannot be empty")
	}
	if err := u.transition(StatusRejected, now); err != nil {
		return err
	}
	u.RejectReason = reason
	return nil
}

func (u *User) Cancel(now time.Time) error {
	return u.transition(StatusCanceled, now)
}

// MarkInvited records that an invitation was sent. Only approved users can be
// invited; re-sending replaces the previous invitation.
func (u *User) MarkInvited(inviteHash string, now time.Time) error {
	if u.Status != StatusApproved {
		return dErrors.New(dErrors.CodeInvalidState, "only approved users can be invited")
	}
	u.InviteHash = inviteHash
	invitedAt := now
	u.InvitedAt = &invitedAt
	u.UpdatedAt = now
	return nil
}

// AddWorkflow records that workflow was triggered for the user.
func (u *User) AddWorkflow(workflow string, now time.Time) error {
	if !workflowName.MatchString(workflow) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"workflow name must be lowercase letters, digits, '-' or '_' (max 64)")
	}
	if u.Status == StatusCanceled {
		return dErrors.New(dErrors.CodeInvalidState, "cannot trigger workflows for canceled users")
	}
	if !slices.Contains(u.Workflows, workflow) {
		u.Workflows = append(u.Workflows, workflow)
	}
	u.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (u *User) Clone() *User {
	c := *u
	c.Workflows = append([]string{}, u.Workflows...)
	if u.InvitedAt != nil {
		t := *u.InvitedAt
		c.InvitedAt = &t
	}
	return &c
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
