package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1ldc/tgllm_go_server/internal/model"
	"github.com/w1ldc/tgllm_go_server/internal/testutil"
)

func TestEntitlementRepository_ReplacePlanRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewEntitlementRepository(db)
	expires := time.Now().UTC().Add(30 * 24 * time.Hour)
	testutil.TestEntitlement(t, db, "100", "dailyCap", "200", &expires)
	testutil.TestEntitlement(t, db, "100", "plan_code", `"lite"`, &expires)

	err := repo.ReplacePlanRows("100", []model.Entitlement{
		{TelegramID: "100", Key: "dailyCap", Value: "1000", Source: model.EntitlementSourcePlan, ExpiresAt: &expires},
		{TelegramID: "100", Key: "priority", Value: `"high"`, Source: model.EntitlementSourcePlan, ExpiresAt: &expires},
		{TelegramID: "100", Key: "plan_code", Value: `"pro"`, Source: model.EntitlementSourcePlan, ExpiresAt: &expires},
	})
	require.NoError(t, err)

	rows, err := repo.ListValid("100")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	cap, err := repo.GetValidByKey("100", "dailyCap")
	require.NoError(t, err)
	assert.Equal(t, "1000", cap.Value)
}

func TestEntitlementRepository_GetValidByKey_Expired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewEntitlementRepository(db)
	past := time.Now().UTC().Add(-time.Hour)
	testutil.TestEntitlement(t, db, "100", "dailyCap", "200", &past)

	_, err := repo.GetValidByKey("100", "dailyCap")
	assert.Error(t, err)

	// 永不过期的行始终有效
	testutil.TestEntitlement(t, db, "200", "dailyCap", "500", nil)
	row, err := repo.GetValidByKey("200", "dailyCap")
	require.NoError(t, err)
	assert.Equal(t, "500", row.Value)
}

func TestEntitlementRepository_DeletePlanRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewEntitlementRepository(db)
	testutil.TestEntitlement(t, db, "100", "dailyCap", "200", nil)
	testutil.TestEntitlement(t, db, "100", "plan_code", `"lite"`, nil)

	deleted, err := repo.DeletePlanRows("100")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	rows, err := repo.ListValid("100")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
