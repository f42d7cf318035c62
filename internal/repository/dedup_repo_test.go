package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/testutil"
)

func TestDedupRepository_Claim(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDedupRepository(db)

	claimed, err := repo.Claim("100", "req-1", "chat")
	require.NoError(t, err)
	assert.True(t, claimed)

	// 同键二次抢占失败
	claimed, err = repo.Claim("100", "req-1", "chat")
	require.NoError(t, err)
	assert.False(t, claimed)

	// 不同端点是另一个档位
	claimed, err = repo.Claim("100", "req-1", "checkout")
	require.NoError(t, err)
	assert.True(t, claimed)

	// 不同用户互不影响
	claimed, err = repo.Claim("200", "req-1", "chat")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDedupRepository_MarkAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDedupRepository(db)

	_, err := repo.Claim("100", "req-1", "chat")
	require.NoError(t, err)

	require.NoError(t, repo.MarkCompleted("100", "req-1", "chat", `{"response":"hi"}`))

	row, err := repo.Get("100", "req-1", "chat")
	require.NoError(t, err)
	assert.Equal(t, model.DedupStatusCompleted, row.Status)
	assert.Equal(t, `{"response":"hi"}`, row.Response)
}

func TestDedupRepository_ResetFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDedupRepository(db)

	_, err := repo.Claim("100", "req-1", "chat")
	require.NoError(t, err)

	// processing 状态不能被重置
	reset, err := repo.ResetFailed("100", "req-1", "chat")
	require.NoError(t, err)
	assert.False(t, reset)

	require.NoError(t, repo.MarkFailed("100", "req-1", "chat", "relay timeout"))

	reset, err = repo.ResetFailed("100", "req-1", "chat")
	require.NoError(t, err)
	assert.True(t, reset)

	row, err := repo.Get("100", "req-1", "chat")
	require.NoError(t, err)
	assert.Equal(t, model.DedupStatusProcessing, row.Status)
	assert.Empty(t, row.Error)

	// 已经重置过的行不会被并发重试再次拿到
	reset, err = repo.ResetFailed("100", "req-1", "chat")
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestDedupRepository_PruneOlderThan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewDedupRepository(db)

	_, err := repo.Claim("100", "old-done", "chat")
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompleted("100", "old-done", "chat", "{}"))

	_, err = repo.Claim("100", "old-processing", "chat")
	require.NoError(t, err)

	// 回拨 updated_at 模拟超龄
	old := time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, db.Model(&model.RequestDedup{}).
		Where("telegram_id = ?", "100").
		Update("updated_at", old).Error)

	pruned, err := repo.PruneOlderThan(time.Now().UTC().Add(-48 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	// processing 行不清理
	_, err = repo.Get("100", "old-processing", "chat")
	assert.NoError(t, err)

	_, err = repo.Get("100", "old-done", "chat")
	assert.Error(t, err)
}
