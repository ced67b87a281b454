package users

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vidstream/client/internal/models"
	"github.com/vidstream/client/internal/policy"
)

var (
	// ErrNotAdmin indicates the current user lacks the administrator role.
	ErrNotAdmin = errors.New("administrator role required")
	// ErrSelfProtection indicates an attempt to modify or delete one's own
	// account record. Rejected before any request is issued.
	ErrSelfProtection = errors.New("own account cannot be modified or deleted")
)

// Directory is the admin REST surface. The API client satisfies it.
type Directory interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) error
	DeleteUser(ctx context.Context, id string) error
}

// Identity supplies the acting user. The session satisfies it.
type Identity interface {
	User() models.User
}

// Service is the org-admin user management surface. Every operation consults
// the access policy before a request leaves the process, so forbidden actions
// produce zero network side effects.
type Service struct {
	directory Directory
	identity  Identity
	logger    *slog.Logger
}

// NewService wires the user management surface.
func NewService(directory Directory, identity Identity, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		directory: directory,
		identity:  identity,
		logger:    logger,
	}
}

// List returns the organization's user directory.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	if s.identity.User().Role != models.RoleAdmin {
		return nil, ErrNotAdmin
	}
	return s.directory.ListUsers(ctx)
}

// ChangeRole updates target's role.
func (s *Service) ChangeRole(ctx context.Context, target models.User, role models.Role) error {
	actor := s.identity.User()
	if !policy.CanChangeRole(actor, target) {
		if actor.ID == target.ID {
			return ErrSelfProtection
		}
		return ErrNotAdmin
	}

	if err := s.directory.UpdateUserRole(ctx, target.ID, role); err != nil {
		return err
	}
	s.logger.Info("user role updated", "userId", target.ID, "role", role)
	return nil
}

// Delete removes target's account.
func (s *Service) Delete(ctx context.Context, target models.User) error {
	actor := s.identity.User()
	if !policy.CanDeleteUser(actor, target) {
		if actor.ID == target.ID {
			return ErrSelfProtection
		}
		return ErrNotAdmin
	}

	if err := s.directory.DeleteUser(ctx, target.ID); err != nil {
		return err
	}
	s.logger.Info("user deleted", "userId", target.ID)
	return nil
}

// RoleCounts tallies the directory by role for the admin overview.
func RoleCounts(users []models.User) map[models.Role]int {
	counts := make(map[models.Role]int, 3)
	for _, u := range users {
		counts[u.Role]++
	}
	return counts
}
