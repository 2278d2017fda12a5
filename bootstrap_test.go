package bank_test

import (
	"context"
	"testing"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-bank"
)

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := bank.NewRepositoryManager(db)

	seed := bank.AdminSeed{Username: "root", Email: " Root@Bank.Test ", Password: testPassword}

	admin, err := bank.EnsureAdmin(ctx, repo.Users(), seed, nil)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, bank.UserStatusApproved, admin.Status)
	assert.Equal(t, "root@bank.test", admin.Email)

	want, err := hashid.NewUUID("root@bank.test")
	require.NoError(t, err)
	assert.Equal(t, want, admin.ID)

	again, err := bank.EnsureAdmin(ctx, repo.Users(), bank.AdminSeed{
		Username: "other",
		Email:    "other@bank.test",
		Password: "something-else",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
	assert.Equal(t, "root", again.Username)

	var count int
	count, err = db.NewSelect().Model((*bank.User)(nil)).Where("is_admin = ?", true).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnsureAdminRequiresSeed(t *testing.T) {
	repo := bank.NewRepositoryManager(newTestDB(t))

	_, err := bank.EnsureAdmin(context.Background(), repo.Users(), bank.AdminSeed{Username: "root"}, nil)
	require.Error(t, err)
	assert.True(t, bank.HasTextCode(err, bank.TextCodeValidation))
}
