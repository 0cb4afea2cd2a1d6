package repositories

import (
	"context"
	"errors"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"

	"gorm.io/gorm"
)

// memberRepository implements MemberRepository interface
type memberRepository struct {
	gormRepository[models.Member]
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{newGormRepository[models.Member](db, domain.ErrMemberNotFound)}
}

// GetWithTier gets a member with its tier preloaded
func (r *memberRepository) GetWithTier(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).Preload("Tier").Where("id = ?", id).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, wrapErr(err, "get member")
	}
	return &member, nil
}

// tierRepository implements TierRepository interface
type tierRepository struct {
	gormRepository[models.MemberTier]
}

var errTierNotFound = &domain.Error{Kind: domain.KindNotFound, Message: "member tier not found"}

// NewTierRepository creates a new member tier repository
func NewTierRepository(db *gorm.DB) TierRepository {
	return &tierRepository{newGormRepository[models.MemberTier](db, errTierNotFound)}
}

// GetByName gets a tier by its unique name
func (r *tierRepository) GetByName(ctx context.Context, name string) (*models.MemberTier, error) {
	var tier models.MemberTier
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errTierNotFound
		}
		return nil, wrapErr(err, "get tier by name")
	}
	return &tier, nil
}
