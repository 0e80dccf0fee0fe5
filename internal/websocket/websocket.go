package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Типы сообщений, отправляемых клиентам
const (
	RideStatusUpdateType     = "RIDE_STATUS_UPDATE"
	DriverLocationUpdateType = "DRIVER_LOCATION_UPDATE"
)

// Message - формат исходящего сообщения
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Manager хранит активные соединения, сгруппированные по пользователю.
// У одного пользователя может быть несколько вкладок или устройств.
type Manager struct {
	clientsByUser map[string]map[*client]bool
	register      chan *client
	unregister    chan *client
	mutex         sync.RWMutex
}

type client struct {
	conn    *websocket.Conn
	userID  string
	writeMu sync.Mutex
}

// write сериализует запись в соединение: gorilla/websocket допускает
// только одного пишущего одновременно
func (cl *client) write(data []byte) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	return cl.conn.WriteMessage(websocket.TextMessage, data)
}

var manager = &Manager{
	clientsByUser: make(map[string]map[*client]bool),
	register:      make(chan *client),
	unregister:    make(chan *client),
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS для WebSocket решается на уровне reverse proxy
	},
}

// StartManager запускает цикл регистрации соединений
func StartManager() {
	go func() {
		for {
			select {
			case cl := <-manager.register:
				manager.mutex.Lock()
				if _, ok := manager.clientsByUser[cl.userID]; !ok {
					manager.clientsByUser[cl.userID] = make(map[*client]bool)
				}
				manager.clientsByUser[cl.userID][cl] = true
				manager.mutex.Unlock()
				log.Printf("WebSocket: пользователь %s подключен", cl.userID)

			case cl := <-manager.unregister:
				manager.mutex.Lock()
				if clients, ok := manager.clientsByUser[cl.userID]; ok {
					if _, exists := clients[cl]; exists {
						delete(clients, cl)
						cl.conn.Close()
					}
					if len(clients) == 0 {
						delete(manager.clientsByUser, cl.userID)
					}
				}
				manager.mutex.Unlock()
				log.Printf("WebSocket: пользователь %s отключен", cl.userID)
			}
		}
	}()
	log.Printf("WebSocket Manager запущен")
}

// broadcastToUser отправляет сообщение во все соединения пользователя
func (m *Manager) broadcastToUser(userID string, message *Message) {
	m.mutex.RLock()
	clients, exists := m.clientsByUser[userID]
	if !exists || len(clients) == 0 {
		m.mutex.RUnlock()
		return
	}
	targets := make([]*client, 0, len(clients))
	for cl := range clients {
		targets = append(targets, cl)
	}
	m.mutex.RUnlock()

	jsonMessage, err := json.Marshal(message)
	if err != nil {
		log.Printf("WebSocket: ошибка кодирования сообщения: %v", err)
		return
	}

	for _, cl := range targets {
		go func(cl *client) {
			if err := cl.write(jsonMessage); err != nil {
				m.unregister <- cl
			}
		}(cl)
	}
}

// Handler устанавливает WebSocket-соединение для авторизованного пользователя.
// Подключается после JWT middleware, поэтому user_id всегда в контексте.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.String(http.StatusUnauthorized, "Требуется авторизация")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket: ошибка установления соединения: %v", err)
			return
		}

		cl := &client{conn: conn, userID: userID.(string)}
		manager.register <- cl
		go readLoop(cl)
	}
}

// readLoop читает входящие сообщения; поддерживается только ping
func readLoop(cl *client) {
	defer func() {
		manager.unregister <- cl
	}()

	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}

		var data map[string]interface{}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}
		if msgType, ok := data["type"].(string); ok && msgType == "ping" {
			pong, _ := json.Marshal(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})
			if err := cl.write(pong); err != nil {
				return
			}
		}
	}
}

// SendRideStatusUpdate уведомляет пользователя о смене статуса поездки
func SendRideStatusUpdate(userID, rideID, status string) {
	manager.broadcastToUser(userID, &Message{
		Type: RideStatusUpdateType,
		Payload: map[string]interface{}{
			"ride_id": rideID,
			"status":  status,
		},
	})
}

// SendDriverLocationUpdate уведомляет заказчика о положении водителя
func SendDriverLocationUpdate(userID, rideID string, latitude, longitude float64) {
	manager.broadcastToUser(userID, &Message{
		Type: DriverLocationUpdateType,
		Payload: map[string]interface{}{
			"ride_id":   rideID,
			"latitude":  latitude,
			"longitude": longitude,
		},
	})
}
