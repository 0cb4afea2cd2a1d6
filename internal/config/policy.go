package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

//go:embed default_policy.toml
var defaultPolicyTOML []byte

// PolicyFile is the TOML layout of a circulation policy
type PolicyFile struct {
	Circulation CirculationPolicy `toml:"circulation"`
	Tiers       []TierPolicy      `toml:"tiers"`
}

// CirculationPolicy holds the system-wide defaults
type CirculationPolicy struct {
	DefaultLoanDays      int    `toml:"default_loan_days"`
	DefaultRenewalDays   int    `toml:"default_renewal_days"`
	ReservationHoldDays  int    `toml:"reservation_hold_days"`
	DefaultLateFeePerDay string `toml:"default_late_fee_per_day"`
	DefaultPriority      int    `toml:"default_priority"`
	DefaultMaxBooks      int    `toml:"default_max_books"`
	DefaultMaxRenewals   int    `toml:"default_max_renewals"`
}

// TierPolicy is one member tier to seed
type TierPolicy struct {
	Name                 string `toml:"name"`
	Description          string `toml:"description"`
	PriorityLevel        int    `toml:"priority_level"`
	PriorityReservations bool   `toml:"priority_reservations"`
	MaxBooksAllowed      int    `toml:"max_books_allowed"`
	LoanPeriodDays       int    `toml:"loan_period_days"`
	LateFeePerDay        string `toml:"late_fee_per_day"`
	MaxRenewalsAllowed   int    `toml:"max_renewals_allowed"`
	RenewalPeriodDays    int    `toml:"renewal_period_days"`
	CanReserveBooks      bool   `toml:"can_reserve_books"`
	CanRenewOnline       bool   `toml:"can_renew_online"`
	Disabled             bool   `toml:"disabled"`
}

// LoadPolicy reads the policy file at path, or the embedded default when
// path is empty
func LoadPolicy(path string) (*PolicyFile, error) {
	data := defaultPolicyTOML
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		data = raw
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a TOML policy
func ParsePolicy(data []byte) (*PolicyFile, error) {
	policy := &PolicyFile{}
	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if _, err := policy.Domain(0); err != nil {
		return nil, err
	}
	if _, err := policy.TierModels(); err != nil {
		return nil, err
	}
	return policy, nil
}

// Domain converts the circulation section into a domain policy, falling back
// to built-in defaults for unset values
func (p *PolicyFile) Domain(lockTimeout time.Duration) (domain.Policy, error) {
	out := domain.DefaultPolicy()
	c := p.Circulation

	setPositive := func(dst *int, v int, name string) error {
		switch {
		case v < 0:
			return fmt.Errorf("policy: %s cannot be negative", name)
		case v > 0:
			*dst = v
		}
		return nil
	}
	checks := []struct {
		dst  *int
		v    int
		name string
	}{
		{&out.DefaultLoanDays, c.DefaultLoanDays, "default_loan_days"},
		{&out.DefaultRenewalDays, c.DefaultRenewalDays, "default_renewal_days"},
		{&out.ReservationHoldDays, c.ReservationHoldDays, "reservation_hold_days"},
		{&out.DefaultPriority, c.DefaultPriority, "default_priority"},
		{&out.DefaultMaxBooks, c.DefaultMaxBooks, "default_max_books"},
		{&out.DefaultMaxRenewals, c.DefaultMaxRenewals, "default_max_renewals"},
	}
	for _, ch := range checks {
		if err := setPositive(ch.dst, ch.v, ch.name); err != nil {
			return domain.Policy{}, err
		}
	}
	if out.DefaultPriority > 10 {
		return domain.Policy{}, fmt.Errorf("policy: default_priority must be between 1 and 10")
	}

	if c.DefaultLateFeePerDay != "" {
		fee, err := decimal.NewFromString(c.DefaultLateFeePerDay)
		if err != nil || fee.IsNegative() {
			return domain.Policy{}, fmt.Errorf("policy: invalid default_late_fee_per_day %q", c.DefaultLateFeePerDay)
		}
		out.DefaultLateFeePerDay = fee
	}
	if lockTimeout > 0 {
		out.LockTimeout = lockTimeout
	}
	return out, nil
}

// TierModels converts the tier list into validated models
func (p *PolicyFile) TierModels() ([]models.MemberTier, error) {
	tiers := make([]models.MemberTier, 0, len(p.Tiers))
	seen := make(map[string]bool, len(p.Tiers))
	for _, t := range p.Tiers {
		if seen[t.Name] {
			return nil, fmt.Errorf("policy: tier %q is defined twice", t.Name)
		}
		seen[t.Name] = true

		tier := models.MemberTier{
			Name:                 t.Name,
			Description:          t.Description,
			PriorityLevel:        t.PriorityLevel,
			PriorityReservations: t.PriorityReservations,
			MaxBooksAllowed:      t.MaxBooksAllowed,
			LoanPeriodDays:       t.LoanPeriodDays,
			MaxRenewalsAllowed:   t.MaxRenewalsAllowed,
			RenewalPeriodDays:    t.RenewalPeriodDays,
			CanReserveBooks:      t.CanReserveBooks,
			CanRenewOnline:       t.CanRenewOnline,
			Disabled:             t.Disabled,
		}
		if t.LateFeePerDay != "" {
			fee, err := decimal.NewFromString(t.LateFeePerDay)
			if err != nil {
				return nil, fmt.Errorf("policy: tier %q has invalid late_fee_per_day %q", t.Name, t.LateFeePerDay)
			}
			tier.LateFeePerDay = decimal.NewNullDecimal(fee)
		}
		if err := tier.Validate(); err != nil {
			return nil, fmt.Errorf("policy: tier %q: %w", t.Name, err)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}
