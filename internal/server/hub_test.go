package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"github.com/dragonvein/dragonvein-server-go/internal/memstore"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type feedMessage struct {
	Type   string          `json:"type"`
	TeamID int64           `json:"teamId"`
	Data   json.RawMessage `json:"data"`
}

func readFeed(t *testing.T, conn *websocket.Conn) feedMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg feedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcastsCommittedChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zaptest.NewLogger(t)
	store := memstore.New(logger)
	require.NoError(t, store.Seed(ctx, []reward.Card{
		{Suit: hand.SuitSpades, Rank: hand.RankKing},
		{Suit: hand.SuitHearts, Rank: hand.RankThree},
	}, nil, false))

	svc := reward.NewService(store, reward.Options{
		Sites: []reward.Site{{ID: 1}},
		Rand:  rand.New(zeroSource{}),
	}, logger)

	hub := NewHub(config.WebSocketConfig{WriteTimeout: time.Second, PingInterval: time.Minute}, nil, logger)
	go hub.Run(ctx)
	svc.SetNotifier(hub)

	api := NewAPI(svc, hub, config.AuthConfig{}, logger)
	srv := httptest.NewServer(api.Router(config.HTTPConfig{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	initial := readFeed(t, conn)
	assert.Equal(t, MsgBattlefield, initial.Type)

	// subscribe to team 1 so team 2 draws are filtered out
	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgSubscribe, TeamID: 1}))
	// give the read pump a moment to apply the subscription
	time.Sleep(50 * time.Millisecond)

	_, err = svc.Draw(ctx, 2, 2, 1)
	require.NoError(t, err)
	_, err = svc.Draw(ctx, 1, 1, 1)
	require.NoError(t, err)

	msg := readFeed(t, conn)
	require.Equal(t, MsgDraw, msg.Type)
	assert.Equal(t, int64(1), msg.TeamID)

	out, err := svc.Challenge(ctx, 1, []int64{2})
	require.NoError(t, err)
	require.True(t, out.Accepted)

	msg = readFeed(t, conn)
	require.Equal(t, MsgBattlefield, msg.Type)
	var st battlefieldState
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	require.NotNil(t, st.ControllingTeam)
	assert.Equal(t, int64(1), *st.ControllingTeam)
	assert.Equal(t, int64(1), st.Version)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dragonvein.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://dragonvein.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		// nothing drains the broadcast channel
		for i := 0; i < 500; i++ {
			hub.BattlefieldChanged(reward.BattlefieldState{ControllingTeam: 1, Version: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier blocked")
	}
}
