package profile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/money-diary/internal/domain/ledger"
)

// AccountReader resolves accounts and their ownership.
type AccountReader interface {
	GetOwnedAccount(ctx context.Context, userID, id uuid.UUID) (*ledger.Account, error)
}

// Service implements the profile store operations.
type Service struct {
	repo     Repository
	accounts AccountReader
	logger   *slog.Logger
}

// NewService creates a new profile service.
func NewService(repo Repository, accounts AccountReader, logger *slog.Logger) *Service {
	return &Service{repo: repo, accounts: accounts, logger: logger}
}

// Create validates and stores a new profile owned by userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, p *Profile) (*Profile, error) {
	p.ID = uuid.Nil
	p.UserID = userID
	p.ApplyDefaults()
	if err := Validate(p); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetOwnedAccount(ctx, userID, p.AccountID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("import profile created", "user_id", userID, "profile_id", p.ID, "default", p.IsDefault)
	return p, nil
}

// Get returns a profile owned by userID. Profiles of other users are reported
// as missing.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// List returns the user's profiles, optionally for one account.
func (s *Service) List(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID) ([]Profile, error) {
	profiles, err := s.repo.List(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// GetDefault returns the default profile for an account.
func (s *Service) GetDefault(ctx context.Context, userID, accountID uuid.UUID) (*Profile, error) {
	return s.repo.GetDefault(ctx, userID, accountID)
}

// Update replaces the profile. An update that changes nothing returns the
// stored profile untouched.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, p *Profile) (*Profile, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	p.ID = id
	p.UserID = userID
	p.CreatedAt = current.CreatedAt
	p.ApplyDefaults()
	if err := Validate(p); err != nil {
		return nil, err
	}
	if SameSettings(current, p) {
		return current, nil
	}
	if p.AccountID != current.AccountID {
		if _, err := s.accounts.GetOwnedAccount(ctx, userID, p.AccountID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("import profile updated", "user_id", userID, "profile_id", id)
	return p, nil
}

// Delete removes a profile unless an import using it is still running.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}

	active, err := s.repo.CountActiveImports(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrActiveImport
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("import profile deleted", "user_id", userID, "profile_id", id)
	return nil
}
