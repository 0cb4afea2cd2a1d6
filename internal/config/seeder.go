package config

import (
	"context"
	"log"
	"strings"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"

	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db     *gorm.DB
	policy *PolicyFile
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, policy *PolicyFile) *Seeder {
	return &Seeder{db: db, policy: policy}
}

// Run executes all seeders
func (s *Seeder) Run(ctx context.Context, withDemo bool) error {
	log.Println("🌱 Running database seeders...")

	created, err := s.SeedTiers(ctx)
	if err != nil {
		return err
	}
	log.Printf("✅ Member tiers seeded (%d new)", created)

	if withDemo {
		if err := s.seedDemoMembers(ctx); err != nil {
			log.Printf("⚠️ Demo member seeder skipped: %v", err)
		}
	}

	log.Println("✅ Database seeding completed")
	return nil
}

// SeedTiers inserts policy tiers whose name does not exist yet
func (s *Seeder) SeedTiers(ctx context.Context) (int, error) {
	tiers, err := s.policy.TierModels()
	if err != nil {
		return 0, err
	}

	repo := repositories.NewTierRepository(s.db)
	created := 0
	for i := range tiers {
		exists, err := repo.Exists(ctx, repositories.Where(repositories.Eq("name", tiers[i].Name)))
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := repo.Create(ctx, &tiers[i]); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// seedDemoMembers adds one member per tier for development
// This is for development/testing only
func (s *Seeder) seedDemoMembers(ctx context.Context) error {
	members := repositories.NewMemberRepository(s.db)
	count, err := members.Count(ctx, repositories.Query{})
	if err != nil || count > 0 {
		return err
	}

	tiers, err := repositories.NewTierRepository(s.db).Find(ctx, repositories.Query{Order: "priority_level ASC"})
	if err != nil {
		return err
	}
	for _, tier := range tiers {
		tierID := tier.ID
		demo := &models.Member{
			Name:         "Demo " + tier.Name,
			Email:        "demo." + strings.ToLower(tier.Name) + "@library.local",
			MemberTierID: &tierID,
		}
		if err := members.Create(ctx, demo); err != nil {
			return err
		}
		log.Printf("🌱 Demo member created: %s (id=%d)", demo.Name, demo.ID)
	}
	return nil
}
