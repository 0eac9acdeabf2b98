package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type fakeOverrides struct {
	getFn func(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error)
}

func (f *fakeOverrides) GetTenantPolicy(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
	if f.getFn == nil {
		panic("GetTenantPolicy not configured")
	}
	return f.getFn(ctx, tenantID)
}

func TestProvider_TenantPolicy(t *testing.T) {
	defaults := domain.TenantPolicy{MinAdvanceHours: 1, CancellationMinimumHours: 24, SlotStepMinutes: 15}
	tenant := uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	boom := errors.New("db down")

	tests := []struct {
		name    string
		get     func(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error)
		want    domain.TenantPolicy
		wantErr error
	}{
		{
			name: "no override",
			get: func(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
				return domain.TenantPolicy{}, store.ErrNotFound
			},
			want: defaults,
		},
		{
			name: "override keeps default step",
			get: func(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
				return domain.TenantPolicy{MinAdvanceHours: 4, CancellationMinimumHours: 48}, nil
			},
			want: domain.TenantPolicy{MinAdvanceHours: 4, CancellationMinimumHours: 48, SlotStepMinutes: 15},
		},
		{
			name: "store error",
			get: func(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
				return domain.TenantPolicy{}, boom
			},
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(defaults, &fakeOverrides{getFn: tt.get})
			got, err := p.TenantPolicy(context.Background(), tenant)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("TenantPolicy error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("policy = %+v, want %+v", got, tt.want)
			}
		})
	}

	if got, _ := NewProvider(defaults, nil).TenantPolicy(context.Background(), tenant); got != defaults {
		t.Fatalf("nil overrides should return defaults")
	}
}
