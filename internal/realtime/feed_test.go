package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studymates/internal/application"
)

func newTestFeed(t *testing.T) *Feed {
	t.Helper()

	server, err := StartEmbeddedServer("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return NewFeed(nc, nil)
}

func TestFeed_PublishAndSubscribe(t *testing.T) {
	feed := newTestFeed(t)
	ctx := context.Background()

	bySession := make(chan Event, 4)
	unsubscribe, err := feed.Subscribe(application.TableJoinRequests, "session_id", "s1", func(e Event) { bySession <- e })
	require.NoError(t, err)
	defer func() { _ = unsubscribe() }()

	byID := make(chan Event, 4)
	_, err = feed.Subscribe(application.TableJoinRequests, "id", "r1", func(e Event) { byID <- e })
	require.NoError(t, err)

	other := make(chan Event, 4)
	_, err = feed.Subscribe(application.TableJoinRequests, "session_id", "s2", func(e Event) { other <- e })
	require.NoError(t, err)
	require.NoError(t, feed.Flush(ctx))

	at := time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)
	err = feed.Publish(ctx, application.Change{
		Table:      application.TableJoinRequests,
		Action:     application.ChangeInsert,
		RecordID:   "r1",
		Filters:    map[string]string{"session_id": "s1", "requester_id": "u2"},
		Record:     map[string]string{"status": "pending"},
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, feed.Flush(ctx))

	select {
	case e := <-bySession:
		assert.Equal(t, "insert", e.Action)
		assert.Equal(t, "r1", e.RecordID)
		assert.True(t, e.OccurredAt.Equal(at))
		var record map[string]string
		require.NoError(t, json.Unmarshal(e.Record, &record))
		assert.Equal(t, "pending", record["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected event on session filter")
	}

	select {
	case e := <-byID:
		assert.Equal(t, "s1", e.Filters["session_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected event on id filter")
	}

	select {
	case e := <-other:
		t.Fatalf("unexpected event for another session: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeed_SubjectSanitizesTokens(t *testing.T) {
	feed := NewFeed(nil, nil)

	assert.Equal(t, "studymates.changes.users.email.a@b_com", feed.Subject("users", "email", "a@b.com"))
	assert.Equal(t, "studymates.changes.users.id._", feed.Subject("users", "id", ""))
	assert.Equal(t, "studymates.changes.users.id.x_y_", feed.Subject("users", "id", "x*y>"))
}

func TestFeed_PublishWithoutConnection(t *testing.T) {
	feed := NewFeed(nil, nil)
	assert.Error(t, feed.Publish(context.Background(), application.Change{Table: "users"}))
}
