package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	StartManager()
	os.Exit(m.Run())
}

// dialTestClient поднимает тестовый сервер и подключает к нему клиента
// от имени указанного пользователя
func dialTestClient(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", userID)
	}, Handler())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	want := clientCount(userID) + 1
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	waitRegistered(t, userID, want)
	return conn
}

func clientCount(userID string) int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.clientsByUser[userID])
}

func waitRegistered(t *testing.T, userID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if clientCount(userID) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("соединение не зарегистрировано")
}

// Статусные события и ответы на ping пишутся в одно соединение из разных
// горутин. Запись обязана быть сериализована: gorilla/websocket допускает
// только одного пишущего, одновременная запись роняет процесс паникой
func TestConcurrentWritesSingleConnection(t *testing.T) {
	conn := dialTestClient(t, "user-ws-1")

	const statusEvents = 50
	const pings = 20

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < statusEvents; i++ {
			SendRideStatusUpdate("user-ws-1", "ride-1", "ASSIGNED")
		}
	}()
	go func() {
		defer wg.Done()
		ping, _ := json.Marshal(map[string]string{"type": "ping"})
		for i := 0; i < pings; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}()

	statuses, pongs := 0, 0
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for statuses < statusEvents || pongs < pings {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "соединение не должно обрываться")

		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		switch msg["type"] {
		case RideStatusUpdateType:
			statuses++
		case "pong":
			pongs++
		}
	}
	wg.Wait()

	assert.Equal(t, statusEvents, statuses)
	assert.Equal(t, pings, pongs)
}

// У пользователя может быть несколько устройств: событие приходит на каждое
func TestBroadcastFanOut(t *testing.T) {
	first := dialTestClient(t, "user-ws-2")
	second := dialTestClient(t, "user-ws-2")

	SendRideStatusUpdate("user-ws-2", "ride-2", "COMPLETED")

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, RideStatusUpdateType, msg.Type)
	}
}
