package services

import (
	"context"
	"log/slog"
	"strings"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
)

// MemberService registers members and maintains member tiers
type MemberService struct {
	*core
}

// CreateMember registers a borrower, optionally on a named tier
func (s *MemberService) CreateMember(ctx context.Context, input CreateMemberInput) (*models.Member, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.Errorf(domain.KindValidation, "member name is required")
	}
	member := &models.Member{
		Name:  name,
		Email: strings.TrimSpace(input.Email),
	}
	if input.TierName != "" {
		tier, err := s.store.Tiers().GetByName(ctx, input.TierName)
		if err != nil {
			return nil, err
		}
		if tier.Disabled {
			return nil, domain.Errorf(domain.KindInvalidState, "membership tier %s is disabled", tier.Name)
		}
		member.MemberTierID = &tier.ID
	}
	if err := s.store.Members().Create(ctx, member); err != nil {
		return nil, err
	}
	return s.store.Members().GetWithTier(ctx, member.ID)
}

// GetMember returns a member with its tier
func (s *MemberService) GetMember(ctx context.Context, id uint) (*models.Member, error) {
	return s.store.Members().GetWithTier(ctx, id)
}

// SetDisabled blocks or unblocks a member
func (s *MemberService) SetDisabled(ctx context.Context, id uint, disabled bool) (*models.Member, error) {
	var member *models.Member
	err := s.run(ctx, []string{memberKey(id)}, func(tx *scope) error {
		m, err := tx.Members().GetByID(ctx, id)
		if err != nil {
			return err
		}
		m.Disabled = disabled
		if err := tx.Members().Save(ctx, m); err != nil {
			return err
		}
		member, err = tx.Members().GetWithTier(ctx, id)
		return err
	})
	return member, err
}

// SaveTier validates and creates or updates a tier by name
func (s *MemberService) SaveTier(ctx context.Context, tier *models.MemberTier) (*models.MemberTier, bool, error) {
	tier.Name = strings.TrimSpace(tier.Name)
	if err := tier.Validate(); err != nil {
		return nil, false, err
	}

	created := false
	err := s.run(ctx, []string{"tier:" + tier.Name}, func(tx *scope) error {
		existing, err := tx.Tiers().First(ctx, repositories.Where(repositories.Eq("name", tier.Name)))
		if err != nil {
			return err
		}
		if existing == nil {
			created = true
			return tx.Tiers().Create(ctx, tier)
		}
		tier.ID = existing.ID
		tier.CreatedAt = existing.CreatedAt
		return tx.Tiers().Save(ctx, tier)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("member tier created", slog.String("tier", tier.Name))
	}
	return tier, created, nil
}

// ListTiers returns every tier by priority, highest first
func (s *MemberService) ListTiers(ctx context.Context) ([]models.MemberTier, error) {
	return s.store.Tiers().Find(ctx, repositories.Query{Order: "priority_level DESC, name ASC"})
}
