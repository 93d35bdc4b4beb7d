package cassandra

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialchat-backend/internal/database"
	"socialchat-backend/internal/domain"
)

const testKeyspace = "socialchat_test"

// testDB connects to CASSANDRA_TEST_HOSTS and applies the schema in a test keyspace
func testDB(t *testing.T) *database.CassandraDB {
	t.Helper()
	hosts := os.Getenv("CASSANDRA_TEST_HOSTS")
	if hosts == "" {
		t.Skip("CASSANDRA_TEST_HOSTS not set")
	}

	cluster := gocql.NewCluster(strings.Split(hosts, ",")...)
	cluster.Consistency = gocql.One
	cluster.Timeout = 10 * time.Second

	admin, err := cluster.CreateSession()
	require.NoError(t, err)
	err = admin.Query(`CREATE KEYSPACE IF NOT EXISTS ` + testKeyspace +
		` WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`).Exec()
	admin.Close()
	require.NoError(t, err)

	cluster.Keyspace = testKeyspace
	session, err := cluster.CreateSession()
	require.NoError(t, err)
	t.Cleanup(session.Close)

	schema, err := os.ReadFile("../../../migrations/cassandra/001_chat.cql")
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(schema), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			require.NoError(t, session.Query(stmt).Exec())
		}
	}

	return &database.CassandraDB{Session: session}
}

func TestIntegration_HistoryOrderAndIsolation(t *testing.T) {
	repo := NewMessageRepository(testDB(t))
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	for _, m := range []struct {
		from, to uuid.UUID
		content  string
	}{
		{alice, bob, "first"},
		{alice, carol, "other pair"},
		{bob, alice, "second"},
		{alice, bob, "third"},
	} {
		_, err := repo.StoreMessage(ctx, m.from, m.to, m.content)
		require.NoError(t, err)
		// Keep created_at distinct at millisecond precision
		time.Sleep(2 * time.Millisecond)
	}

	messages, err := repo.GetChatHistory(ctx, bob, alice)
	require.NoError(t, err)

	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, contents)
}

func TestIntegration_SoftDeleteSenderOnly(t *testing.T) {
	repo := NewMessageRepository(testDB(t))
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	kept, err := repo.StoreMessage(ctx, alice, bob, "kept")
	require.NoError(t, err)
	deleted, err := repo.StoreMessage(ctx, alice, bob, "deleted")
	require.NoError(t, err)

	assert.ErrorIs(t, repo.SoftDelete(ctx, deleted.ID, bob), domain.ErrNotFound)
	assert.ErrorIs(t, repo.SoftDelete(ctx, uuid.New(), alice), domain.ErrNotFound)
	require.NoError(t, repo.SoftDelete(ctx, deleted.ID, alice))

	messages, err := repo.GetChatHistory(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, kept.ID, messages[0].ID)
}
