package handler

import (
	"strings"
	"time"

	"erp/internal/user/models"
	"erp/internal/user/service"
	"erp/pkg/commonevent"
	dErrors "erp/pkg/domain-errors"
	"erp/pkg/platform/audit"
)

const maxNameLength = 128

func validationError(msg string) error {
	return dErrors.New(dErrors.CodeValidation, msg)
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	if !strings.Contains(email, "@") {
		return validationError("email must contain @")
	}
	return nil
}

func validateName(field, v string) error {
	if v == "" {
		return validationError(field + " is required")
	}
	if len(v) > maxNameLength {
		return validationError(field + " must be 128 characters or less")
	}
	return nil
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func (r *CreateUserRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if r.Role == "" {
		r.Role = string(models.RoleEmployee)
	}
}

func (r *CreateUserRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if err := validateName("first_name", r.FirstName); err != nil {
		return err
	}
	if err := validateName("last_name", r.LastName); err != nil {
		return err
	}
	if !models.Role(r.Role).IsValid() {
		return validationError("unknown role: " + r.Role)
	}
	return nil
}

func (r *CreateUserRequest) toInput() service.CreateInput {
	return service.CreateInput{
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      models.Role(r.Role),
	}
}

// UpdateUserRequest is the body of PATCH /users/{id}. Omitted fields keep
// their current value.
type UpdateUserRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Role      *string `json:"role,omitempty"`
}

func trimPtr(p *string, lower bool) {
	if p == nil {
		return
	}
	v := strings.TrimSpace(*p)
	if lower {
		v = strings.ToLower(v)
	}
	*p = v
}

func (r *UpdateUserRequest) Normalize() {
	trimPtr(r.Email, true)
	trimPtr(r.FirstName, false)
	trimPtr(r.LastName, false)
	trimPtr(r.Role, true)
}

func (r *UpdateUserRequest) Validate() error {
	if r.Email == nil && r.FirstName == nil && r.LastName == nil && r.Role == nil {
		return validationError("at least one field must be provided")
	}
	if r.Email != nil {
		if err := validateEmail(*r.Email); err != nil {
			return err
		}
	}
	if r.FirstName != nil {
		if err := validateName("first_name", *r.FirstName); err != nil {
			return err
		}
	}
	if r.LastName != nil {
		if err := validateName("last_name", *r.LastName); err != nil {
			return err
		}
	}
	if r.Role != nil && !models.Role(*r.Role).IsValid() {
		return validationError("unknown role: " + *r.Role)
	}
	return nil
}

func (r *UpdateUserRequest) toProfile() models.Profile {
	p := models.Profile{Email: r.Email, FirstName: r.FirstName, LastName: r.LastName}
	if r.Role != nil {
		role := models.Role(*r.Role)
		p.Role = &role
	}
	return p
}

// RejectRequest is the body of POST /users/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Normalize() { r.Reason = strings.TrimSpace(r.Reason) }

func (r *RejectRequest) Validate() error {
	if r.Reason == "" {
		return validationError("reason is required")
	}
	if len(r.Reason) > 1024 {
		return validationError("reason must be 1024 characters or less")
	}
	return nil
}

// TriggerWorkflowRequest is the body of POST /users/{id}/workflows.
type TriggerWorkflowRequest struct {
	Workflow string `json:"workflow"`
}

func (r *TriggerWorkflowRequest) Normalize() {
	r.Workflow = strings.ToLower(strings.TrimSpace(r.Workflow))
}

func (r *TriggerWorkflowRequest) Validate() error {
	if r.Workflow == "" {
		return validationError("workflow is required")
	}
	return nil
}

// VerifyInvitationRequest is the body of POST /users/{id}/invitation/verify.
type VerifyInvitationRequest struct {
	Token string `json:"token"`
}

func (r *VerifyInvitationRequest) Normalize() { r.Token = strings.TrimSpace(r.Token) }

func (r *VerifyInvitationRequest) Validate() error {
	if r.Token == "" {
		return validationError("token is required")
	}
	return nil
}

type UserResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	RejectReason string     `json:"reject_reason,omitempty"`
	InvitedAt    *time.Time `json:"invited_at,omitempty"`
	Workflows    []string   `json:"workflows"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toUserResponse(u *models.User) UserResponse {
	workflows := u.Workflows
	if workflows == nil {
		workflows = []string{}
	}
	return UserResponse{
		ID:           u.ID.String(),
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         string(u.Role),
		Status:       string(u.Status),
		RejectReason: u.RejectReason,
		InvitedAt:    u.InvitedAt,
		Workflows:    workflows,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
	Count int            `json:"count"`
}

type InvitationResponse struct {
	User            UserResponse `json:"user"`
	InvitationToken string       `json:"invitation_token"`
}

type EventResponse struct {
	ID        string            `json:"id"`
	Event     commonevent.Event `json:"event"`
	Category  string            `json:"category"`
	Timestamp time.Time         `json:"timestamp"`
	Reason    string            `json:"reason,omitempty"`
	Workflow  string            `json:"workflow,omitempty"`
	ActorID   string            `json:"actor_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type EventsResponse struct {
	UserID string          `json:"user_id"`
	Events []EventResponse `json:"events"`
	Count  int             `json:"count"`
}

func toEventResponse(e audit.Event) EventResponse {
	return EventResponse{
		ID:        e.ID.String(),
		Event:     e.Action,
		Category:  string(e.Category),
		Timestamp: e.Timestamp,
		Reason:    e.Reason,
		Workflow:  e.Workflow,
		ActorID:   e.ActorID,
		RequestID: e.RequestID,
	}
}
