// Package store persists users. Every implementation reports missing rows with
// sentinel.ErrNotFound and duplicate emails with sentinel.ErrConflict.
package store

import (
	"context"

	"erp/internal/user/models"
	id "erp/pkg/domain"
)

// ListFilter narrows List results. Zero value lists every user.
type ListFilter struct {
	Status models.Status
	Limit  int
}

// Store is the contract shared by the memory, postgres and cached stores.
type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	List(ctx context.Context, filter ListFilter) ([]*models.User, error)
	// Execute loads the user, lets fn validate and mutate it and persists the
	// result atomically. Nothing is written when fn returns an error.
	Execute(ctx context.Context, userID id.UserID, fn func(*models.User) error) (*models.User, error)
	// DeleteIf removes the user when check passes. The loaded user is returned
	// even when check refuses so callers can report on it.
	DeleteIf(ctx context.Context, userID id.UserID, check func(*models.User) error) (*models.User, error)
}
