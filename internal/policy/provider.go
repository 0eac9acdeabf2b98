package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

// Provider returns the booking policy of a tenant: its stored override when
// one exists, the configured defaults otherwise.
type Provider struct {
	defaults  domain.TenantPolicy
	overrides store.PolicyReader
}

func NewProvider(defaults domain.TenantPolicy, overrides store.PolicyReader) *Provider {
	return &Provider{defaults: defaults, overrides: overrides}
}

func (p *Provider) TenantPolicy(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
	if p.overrides == nil || tenantID == uuid.Nil {
		return p.defaults, nil
	}
	pol, err := p.overrides.GetTenantPolicy(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return p.defaults, nil
	}
	if err != nil {
		return domain.TenantPolicy{}, err
	}
	if pol.SlotStepMinutes <= 0 {
		pol.SlotStepMinutes = p.defaults.SlotStepMinutes
	}
	return pol, nil
}
