package cockroach

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialchat-backend/internal/domain"
)

// testPool connects to COCKROACH_TEST_URL and applies the schema.
// Every test uses fresh user ids so runs do not interfere.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("COCKROACH_TEST_URL")
	if url == "" {
		t.Skip("COCKROACH_TEST_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/cockroach/001_chat.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return pool
}

func insertMessage(t *testing.T, pool *pgxpool.Pool, id, sender, receiver uuid.UUID, content string, at time.Time) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO messages (id, sender_id, receiver_id, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, sender, receiver, content, at)
	require.NoError(t, err)
}

func TestIntegration_HistoryOrderAndIsolation(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	base := time.Now().UTC().Truncate(time.Microsecond)
	tieLow := uuid.MustParse("00000000-0000-7000-8000-000000000001")
	tieHigh := uuid.MustParse("00000000-0000-7000-8000-000000000002")

	// Inserted out of order, with another pair interleaved and a created_at tie
	insertMessage(t, pool, uuid.New(), bob, alice, "third", base.Add(2*time.Second))
	insertMessage(t, pool, uuid.New(), alice, carol, "other pair", base.Add(time.Second))
	insertMessage(t, pool, tieHigh, alice, bob, "second", base)
	insertMessage(t, pool, tieLow, bob, alice, "first", base)

	messages, err := repo.GetChatHistory(ctx, bob, alice)
	require.NoError(t, err)

	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, contents)
}

func TestIntegration_SoftDeleteHidesMessage(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepository(pool)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	kept, err := repo.StoreMessage(ctx, alice, bob, "kept")
	require.NoError(t, err)
	deleted, err := repo.StoreMessage(ctx, alice, bob, "deleted")
	require.NoError(t, err)

	assert.ErrorIs(t, repo.SoftDelete(ctx, deleted.ID, bob), domain.ErrNotFound)
	require.NoError(t, repo.SoftDelete(ctx, deleted.ID, alice))
	assert.ErrorIs(t, repo.SoftDelete(ctx, deleted.ID, alice), domain.ErrNotFound)

	messages, err := repo.GetChatHistory(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, kept.ID, messages[0].ID)
}

func TestIntegration_GateNeedsBothLiveEdges(t *testing.T) {
	pool := testPool(t)
	repo := NewFollowRepository(pool)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	canChat := func() bool {
		ok, err := repo.CanUsersChat(ctx, alice, bob)
		require.NoError(t, err)
		return ok
	}

	_, err := repo.Follow(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, canChat())

	_, err = repo.Follow(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, canChat())

	require.NoError(t, repo.Unfollow(ctx, bob, alice))
	assert.False(t, canChat())

	follow, err := repo.Follow(ctx, bob, alice)
	require.NoError(t, err)
	assert.Nil(t, follow.DeletedAt)
	assert.True(t, canChat())
}

func TestIntegration_KeysInsertIfAbsent(t *testing.T) {
	pool := testPool(t)
	repo := NewKeysRepository(pool)
	ctx := context.Background()
	userID := uuid.New()

	stored, err := repo.StoreUserKeys(ctx, &domain.UserKeyMaterial{UserID: userID, PublicKey: "winner", EncryptedPrivateKey: "w"})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.StoreUserKeys(ctx, &domain.UserKeyMaterial{UserID: userID, PublicKey: "loser", EncryptedPrivateKey: "l"})
	require.NoError(t, err)
	assert.False(t, stored)

	publicKey, err := repo.GetUserPublicKey(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "winner", publicKey)
}
