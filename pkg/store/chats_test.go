package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediateca/vodrag/pkg/models"
)

func TestGetOrCreateSession(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")

	session, err := stores.Chats.GetOrCreate(ctx, nil, "¿de qué trata el canal?", &ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "¿de qué trata el canal?", session.Title)
	require.NotNil(t, session.ChannelID)
	assert.Equal(t, ch.ID, *session.ChannelID)

	// An existing ID resumes the session.
	idStr := session.ID.String()
	resumed, err := stores.Chats.GetOrCreate(ctx, &idStr, "otra pregunta", nil)
	require.NoError(t, err)
	assert.Equal(t, session.ID, resumed.ID)
	assert.Equal(t, session.Title, resumed.Title)

	// Clients sometimes send the UUID wrapped in quotes.
	quoted := `"` + idStr + `"`
	resumed, err = stores.Chats.GetOrCreate(ctx, &quoted, "otra", nil)
	require.NoError(t, err)
	assert.Equal(t, session.ID, resumed.ID)
}

func TestGetOrCreateSessionFallsBackToNew(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	// Malformed and unknown IDs both start a fresh session.
	malformed := "not-a-uuid"
	session, err := stores.Chats.GetOrCreate(ctx, &malformed, "pregunta", nil)
	require.NoError(t, err)
	assert.Equal(t, "pregunta", session.Title)

	unknown := uuid.New().String()
	fresh, err := stores.Chats.GetOrCreate(ctx, &unknown, "pregunta dos", nil)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, fresh.ID)
	assert.NotEqual(t, unknown, fresh.ID.String())
}

func TestAddMessagePairAndList(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	session, err := stores.Chats.GetOrCreate(ctx, nil, "pregunta", nil)
	require.NoError(t, err)

	sources := json.RawMessage(`[{"video_id":"vid1","score":0.9}]`)
	require.NoError(t, stores.Chats.AddMessagePair(ctx, session.ID, "¿qué es masa madre?", "Es un fermento natural.", sources))

	messages, err := stores.Chats.Messages(ctx, session.ID, 100)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "¿qué es masa madre?", messages[0].Content)
	assert.Nil(t, messages[0].Sources)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.JSONEq(t, string(sources), string(messages[1].Sources))

	count, err := stores.Chats.MessageCount(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecentContextReturnsChronological(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	session, err := stores.Chats.GetOrCreate(ctx, nil, "pregunta", nil)
	require.NoError(t, err)

	for i, qa := range [][2]string{{"p1", "r1"}, {"p2", "r2"}, {"p3", "r3"}} {
		require.NoError(t, stores.Chats.AddMessagePair(ctx, session.ID, qa[0], qa[1], nil))
		if i < 2 {
			time.Sleep(5 * time.Millisecond)
		}
	}

	// The last 4 messages, oldest first.
	recent, err := stores.Chats.RecentContext(ctx, session.ID, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, "p2", recent[0].Content)
	assert.Equal(t, "r2", recent[1].Content)
	assert.Equal(t, "p3", recent[2].Content)
	assert.Equal(t, "r3", recent[3].Content)
}

func TestListSessions(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	first, err := stores.Chats.GetOrCreate(ctx, nil, "primera", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := stores.Chats.GetOrCreate(ctx, nil, "segunda", nil)
	require.NoError(t, err)

	require.NoError(t, stores.Chats.AddMessagePair(ctx, first.ID, "p", "r", nil))

	sessions, err := stores.Chats.List(ctx, 0, 50)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID, "list must be newest first")
	assert.Equal(t, 0, sessions[0].MessageCount)
	assert.Equal(t, first.ID, sessions[1].ID)
	assert.Equal(t, 2, sessions[1].MessageCount)
}

func TestSessionVideosRoundTrip(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	ch := createTestChannel(ctx, t, stores, "https://www.youtube.com/@canal")
	createTestVideo(ctx, t, stores, ch.ID, "vid1")
	createTestVideo(ctx, t, stores, ch.ID, "vid2")

	session, err := stores.Chats.GetOrCreate(ctx, nil, "pregunta", &ch.ID)
	require.NoError(t, err)

	require.NoError(t, stores.Chats.ReplaceSessionVideos(ctx, session.ID, []string{"vid1", "vid2"}))
	ids, err := stores.Chats.SessionVideos(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vid1", "vid2"}, ids)

	// Replacing swaps the whole scope.
	require.NoError(t, stores.Chats.ReplaceSessionVideos(ctx, session.ID, []string{"vid2"}))
	ids, err = stores.Chats.SessionVideos(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"vid2"}, ids)
}

func TestDeleteSessionCascades(t *testing.T) {
	stores, pool := newTestStores(t)
	ctx := context.Background()

	session, err := stores.Chats.GetOrCreate(ctx, nil, "pregunta", nil)
	require.NoError(t, err)
	require.NoError(t, stores.Chats.AddMessagePair(ctx, session.ID, "p", "r", nil))

	require.NoError(t, stores.Chats.Delete(ctx, session.ID))

	_, err = stores.Chats.Get(ctx, session.ID)
	assert.True(t, IsNotFound(err))

	var orphaned int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM chat_messages WHERE session_id = $1`, session.ID).Scan(&orphaned))
	assert.Zero(t, orphaned)

	err = stores.Chats.Delete(ctx, session.ID)
	assert.True(t, IsNotFound(err))
}
