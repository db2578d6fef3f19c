package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/internal/store"
)

func newAuth(tenantID string) domain.Authorization {
	return domain.Authorization{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Protocol:  domain.ProtocolDelegatedToken,
		Status:    domain.StatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestMemoryStore_CreateAndGetByID(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	auth := newAuth("tenant-a")

	require.NoError(t, s.Create(ctx, auth))

	got, err := s.GetByID(ctx, "tenant-a", auth.ID, false)
	require.NoError(t, err)
	assert.Equal(t, auth.ID, got.ID)

	_, err = s.GetByID(ctx, "tenant-b", auth.ID, false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetByID(ctx, "tenant-a", uuid.New(), false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_Create_Conflict(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	auth := newAuth("tenant-a")

	require.NoError(t, s.Create(ctx, auth))
	err := s.Create(ctx, auth)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestMemoryStore_Update(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	auth := newAuth("tenant-a")
	require.NoError(t, s.Create(ctx, auth))

	revokedStatus := domain.StatusRevoked
	reason := "fraud"
	updated, err := s.Update(ctx, "tenant-a", auth.ID, store.FieldPatch{
		Status:        &revokedStatus,
		RevokedReason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRevoked, updated.Status)
	assert.Equal(t, "fraud", updated.RevokedReason)

	_, err = s.Update(ctx, "tenant-b", auth.ID, store.FieldPatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_SoftDeleteRestorePurge(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	auth := newAuth("tenant-a")
	require.NoError(t, s.Create(ctx, auth))

	now := time.Now()
	require.NoError(t, s.SoftDelete(ctx, "tenant-a", auth.ID, now))

	_, err := s.GetByID(ctx, "tenant-a", auth.ID, false)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetByID(ctx, "tenant-a", auth.ID, true)
	require.NoError(t, err)
	require.NotNil(t, got.SoftDeleteAt)

	require.NoError(t, s.Restore(ctx, "tenant-a", auth.ID))
	got, err = s.GetByID(ctx, "tenant-a", auth.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got.SoftDeleteAt)

	require.NoError(t, s.Purge(ctx, "tenant-a", auth.ID))
	_, err = s.GetByID(ctx, "tenant-a", auth.ID, true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStore_Restore_RevokedIsRejected(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	auth := newAuth("tenant-a")
	auth.Status = domain.StatusRevoked
	require.NoError(t, s.Create(ctx, auth))
	require.NoError(t, s.SoftDelete(ctx, "tenant-a", auth.ID, time.Now()))

	err := s.Restore(ctx, "tenant-a", auth.ID)
	assert.ErrorIs(t, err, store.ErrNotSoftDeleted)
}

func TestMemoryStore_ListPurgeable(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	old := newAuth("tenant-a")
	oldDeleteAt := time.Now().Add(-48 * time.Hour)
	old.SoftDeleteAt = &oldDeleteAt
	old.RetentionDays = 1
	require.NoError(t, s.Create(ctx, old))

	recent := newAuth("tenant-a")
	recentDeleteAt := time.Now()
	recent.SoftDeleteAt = &recentDeleteAt
	recent.RetentionDays = 30
	require.NoError(t, s.Create(ctx, recent))

	purgeable, err := s.ListPurgeable(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, purgeable, 1)
	assert.Equal(t, old.ID, purgeable[0].ID)
}

func TestMemoryStore_Search(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, newAuth("tenant-a")))
	}
	require.NoError(t, s.Create(ctx, newAuth("tenant-b")))

	page, err := s.Search(ctx, store.Filter{TenantID: "tenant-a"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Items, 3)

	page, err = s.Search(ctx, store.Filter{IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)

	_, err = s.Search(ctx, store.Filter{Limit: store.MaxSearchLimit + 1})
	assert.ErrorIs(t, err, store.ErrLimitExceeded)
}
