package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest []string
	assert.ErrorIs(t, repo.Get(ctx, "scheduler:history:class-1:math", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", []string{"v"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "scheduler:history:class-1:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}
