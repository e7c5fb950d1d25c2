package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/mediateca/vodrag/test/database"
)

func TestChannelServiceCreate(t *testing.T) {
	stores, _ := testdb.NewTestStores(t)
	svc := NewChannelService(stores.Channels)
	ctx := context.Background()

	_, err := svc.Create(ctx, "   ")
	assert.True(t, IsValidationError(err))

	channel, err := svc.Create(ctx, " https://www.youtube.com/@historia ")
	require.NoError(t, err)
	assert.Equal(t, "historia", channel.Name)
	assert.Equal(t, "https://www.youtube.com/@historia", channel.URL)

	_, err = svc.Create(ctx, "https://www.youtube.com/@historia")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestChannelServiceNotFoundMapping(t *testing.T) {
	stores, _ := testdb.NewTestStores(t)
	svc := NewChannelService(stores.Channels)
	ctx := context.Background()

	_, err := svc.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetStats(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateName(ctx, 999, "nuevo nombre")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, 999), ErrNotFound)
}

func TestChannelServiceUpdateName(t *testing.T) {
	stores, _ := testdb.NewTestStores(t)
	svc := NewChannelService(stores.Channels)
	ctx := context.Background()

	channel, err := svc.Create(ctx, "https://www.youtube.com/@historia")
	require.NoError(t, err)

	_, err = svc.UpdateName(ctx, channel.ID, "  ")
	assert.True(t, IsValidationError(err))

	updated, err := svc.UpdateName(ctx, channel.ID, " Historia de España ")
	require.NoError(t, err)
	assert.Equal(t, "Historia de España", updated.Name)
}
