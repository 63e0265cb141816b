package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseRepositoryWithoutRedisIsLocalOnly(t *testing.T) {
	repo := NewLeaseRepository(nil, "edu:")

	first, err := repo.Acquire(context.Background(), "ledger:mutation", time.Second)
	require.NoError(t, err)
	second, err := repo.Acquire(context.Background(), "ledger:mutation", time.Second)
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.NoError(t, repo.Release(context.Background(), "ledger:mutation", first))
}
