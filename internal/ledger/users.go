package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bass5068/bottle-redeem/internal/model"
)

type NewUser struct {
	ID    string
	Email string
	Name  string
	Image *string
	Role  model.Role
}

type PointsSummary struct {
	Points int64
	Name   string
	Image  *string
}

func (s *Service) GetUser(ctx context.Context, id string) (model.User, error) {
	user, err := s.store.Reader().GetUser(ctx, id)
	if err != nil {
		return model.User{}, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.store.Reader().ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, in NewUser) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.User{}, fmt.Errorf("%w: unknown role", ErrInvalidInput)
	}
	id := in.ID
	if id == "" {
		id = newID()
	}
	now := s.clock()
	user := model.User{
		ID:        id,
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Image:     in.Image,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Reader().CreateUser(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrConflict
		}
		return model.User{}, err
	}
	return user, nil
}

// SyncUser returns the caller's row, creating it on first sign-in. A row that already
// exists under the same email is returned as is.
func (s *Service) SyncUser(ctx context.Context, in NewUser) (model.User, bool, error) {
	if in.ID == "" {
		return model.User{}, false, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	reader := s.store.Reader()
	user, err := reader.GetUser(ctx, in.ID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, false, err
	}
	if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" {
		user, err := reader.GetUserByEmail(ctx, email)
		if err == nil {
			return user, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, false, err
		}
	}
	in.Role = model.RoleUser
	created, err := s.CreateUser(ctx, in)
	if errors.Is(err, ErrConflict) {
		// lost a race with a parallel first sign-in
		existing, getErr := reader.GetUser(ctx, in.ID)
		if getErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return model.User{}, false, err
	}
	return created, true, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id, name string, image *string) (model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	var updated model.User
	err := s.store.WithinTx(ctx, func(q Queries) error {
		current, err := q.GetUser(ctx, id)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if image == nil {
			image = current.Image
		}
		updated, err = q.UpdateUserProfile(ctx, id, name, image, s.clock())
		return notFound(err, ErrUserNotFound)
	})
	if err != nil {
		return model.User{}, err
	}
	return updated, nil
}

func (s *Service) SetUserImage(ctx context.Context, id, imageURL string) (model.User, error) {
	var updated model.User
	err := s.store.WithinTx(ctx, func(q Queries) error {
		current, err := q.GetUser(ctx, id)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		updated, err = q.UpdateUserProfile(ctx, id, current.Name, &imageURL, s.clock())
		return notFound(err, ErrUserNotFound)
	})
	if err != nil {
		return model.User{}, err
	}
	return updated, nil
}

func (s *Service) PointsSummary(ctx context.Context, id string) (PointsSummary, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return PointsSummary{}, err
	}
	return PointsSummary{Points: user.Points, Name: user.Name, Image: user.Image}, nil
}
