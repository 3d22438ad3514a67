package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"erp/internal/user/models"
	"erp/internal/user/store"
	"erp/pkg/commonevent"
	id "erp/pkg/domain"
	dErrors "erp/pkg/domain-errors"
	"erp/pkg/requestcontext"
)

// CreateInput carries the fields of a new user.
type CreateInput struct {
	Email     string
	FirstName string
	LastName  string
	Role      models.Role
}

// Invitation is returned once by SendInvitation. Only a bcrypt hash of Token
// is stored.
type Invitation struct {
	User  *models.User
	Token string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "create", id.UserID{})
	defer func() { done(err) }()

	u, err := models.NewUser(id.NewUserID(), in.Email, in.FirstName, in.LastName, in.Role, requestcontext.Now(ctx))
	if err != nil {
		return nil, wrapUserErr(err)
	}
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Create(txCtx, u); err != nil {
			return wrapUserErr(err)
		}
		return s.emit(txCtx, commonevent.Created, u, eventDetail{})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, userID id.UserID) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "get", userID)
	defer func() { done(err) }()

	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return u, nil
}

// List returns users, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, status models.Status) (users []*models.User, err error) {
	ctx, done := s.trace(ctx, "list", id.UserID{})
	defer func() { done(err) }()

	if status != "" && !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status: "+string(status))
	}
	users, err = s.users.List(ctx, store.ListFilter{Status: status})
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return users, nil
}

// Update applies a partial profile change. Updating a rejected user moves it
// back to draft.
func (s *Service) Update(ctx context.Context, userID id.UserID, p models.Profile) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "update", userID)
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	return s.transition(ctx, userID, commonevent.Updated, eventDetail{}, func(u *models.User) error {
		return u.ApplyUpdate(p, now)
	})
}

// Delete removes a user. Approved users are protected: the refusal itself is
// recorded as a deleteRejected event and the caller gets a conflict.
func (s *Service) Delete(ctx context.Context, userID id.UserID) (err error) {
	ctx, done := s.trace(ctx, "delete", userID)
	defer func() { done(err) }()

	if err := requireUserID(userID); err != nil {
		return err
	}
	var refused *models.User
	var refusal error
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		u, err := s.users.DeleteIf(txCtx, userID, (*models.User).CanDelete)
		if err != nil {
			if u != nil && dErrors.HasCode(err, dErrors.CodeInvalidState) {
				refused, refusal = u, err
			}
			return wrapUserErr(err)
		}
		return s.emit(txCtx, commonevent.Deleted, u, eventDetail{})
	})
	if refused == nil {
		return err
	}

	de, _ := dErrors.As(refusal)
	if emitErr := s.emit(ctx, commonevent.DeleteRejected, refused, eventDetail{reason: de.Message}); emitErr != nil {
		return emitErr
	}
	return dErrors.New(dErrors.CodeConflict, de.Message)
}

func (s *Service) Submit(ctx context.Context, userID id.UserID) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "submit", userID)
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	return s.transition(ctx, userID, commonevent.Submit, eventDetail{}, func(u *models.User) error {
		return u.Submit(now)
	})
}

func (s *Service) Approve(ctx context.Context, userID id.UserID) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "approve", userID)
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	return s.transition(ctx, userID, commonevent.Approved, eventDetail{}, func(u *models.User) error {
		return u.Approve(now)
	})
}

func (s *Service) Reject(ctx context.Context, userID id.UserID, reason string) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "reject", userID)
	defer func() { done(err) }()

	reason = strings.TrimSpace(reason)
	now := requestcontext.Now(ctx)
	return s.transition(ctx, userID, commonevent.Rejected, eventDetail{reason: reason}, func(u *models.User) error {
		return u.Reject(reason, now)
	})
}

func (s *Service) Cancel(ctx context.Context, userID id.UserID) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "cancel", userID)
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	return s.transition(ctx, userID, commonevent.Canceled, eventDetail{}, func(u *models.User) error {
		return u.Cancel(now)
	})
}

// SendInvitation issues a fresh invitation token for an approved user.
// Re-sending invalidates the previous token.
func (s *Service) SendInvitation(ctx context.Context, userID id.UserID) (inv *Invitation, err error) {
	ctx, done := s.trace(ctx, "send_invitation", userID)
	defer func() { done(err) }()

	token, err := s.newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate invitation token")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash invitation token")
	}

	now := requestcontext.Now(ctx)
	u, err := s.transition(ctx, userID, commonevent.Sent, eventDetail{}, func(u *models.User) error {
		return u.MarkInvited(string(hash), now)
	})
	if err != nil {
		return nil, err
	}
	return &Invitation{User: u, Token: token}, nil
}

// VerifyInvitation checks token against the stored invitation hash.
func (s *Service) VerifyInvitation(ctx context.Context, userID id.UserID, token string) (err error) {
	ctx, done := s.trace(ctx, "verify_invitation", userID)
	defer func() { done(err) }()

	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.InviteHash == "" {
		return dErrors.New(dErrors.CodeInvalidState, "user has no pending invitation")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.InviteHash), []byte(token)); err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid invitation token")
	}
	return nil
}

// TriggerWorkflow records that a named workflow was started for the user.
func (s *Service) TriggerWorkflow(ctx context.Context, userID id.UserID, workflow string) (user *models.User, err error) {
	ctx, done := s.trace(ctx, "trigger_workflow", userID)
	defer func() { done(err) }()

	workflow = strings.TrimSpace(workflow)
	now := requestcontext.Now(ctx)
	return s.transition(ctx, userID, commonevent.TriggeredWorkflow, eventDetail{workflow: workflow}, func(u *models.User) error {
		return u.AddWorkflow(workflow, now)
	})
}

func generateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
