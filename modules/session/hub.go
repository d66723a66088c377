package session

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

// 메시지 타입
const (
	MessageState         = "state"
	MessageRequestState  = "request_state"
	MessageSessionClosed = "session_closed"
)

// Message - WebSocket으로 주고받는 메시지
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	State     *State `json:"state,omitempty"`
}

// Client - 연결된 화면 하나
type Client struct {
	conn      *websocket.Conn
	sessionID string
	clientID  string
	send      chan []byte
}

// Hub - 세션별 WebSocket 구독자 관리
type Hub struct {
	rooms            map[string]map[string]*Client
	mutex            sync.RWMutex
	totalConnections int
}

// NewHub - Hub 생성
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*Client)}
}

// addClient - 등록과 동시에 첫 메시지를 버퍼에 넣음
func (h *Hub) addClient(c *Client, initial []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room, ok := h.rooms[c.sessionID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.sessionID] = room
	}
	room[c.clientID] = c
	h.totalConnections++
	if initial != nil {
		c.send <- initial
	}

	log.Printf("👤 Client %s joined session %s (Clients: %d, Total Connections: %d)",
		c.clientID, c.sessionID, len(room), h.totalConnections)
	return len(room)
}

func (h *Hub) removeClient(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room := h.rooms[c.sessionID]
	if existing, ok := room[c.clientID]; ok && existing == c {
		close(c.send)
		delete(room, c.clientID)
		log.Printf("👋 Client %s left session %s (Remaining: %d)", c.clientID, c.sessionID, len(room))
	}
	if len(room) == 0 {
		delete(h.rooms, c.sessionID)
	}
}

// Broadcast - 세션의 모든 구독자에게 전송 (버퍼가 찬 클라이언트는 끊음)
func (h *Hub) Broadcast(sessionID string, message Message) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for clientID, client := range h.rooms[sessionID] {
		select {
		case client.send <- messageBytes:
		default:
			close(client.send)
			delete(h.rooms[sessionID], clientID)
			log.Printf("⚠️ Dropped slow client %s from session %s", clientID, sessionID)
		}
	}
}

// Disconnect - 세션 종료 알림 후 모든 구독자 연결 해제
func (h *Hub) Disconnect(sessionID string) {
	h.Broadcast(sessionID, Message{Type: MessageSessionClosed, SessionID: sessionID})

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for clientID, client := range h.rooms[sessionID] {
		close(client.send)
		log.Printf("🔌 Disconnecting client %s from session %s", clientID, sessionID)
	}
	delete(h.rooms, sessionID)
}

// ClientCount - 세션의 현재 구독자 수
func (h *Hub) ClientCount(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[sessionID])
}

// Stats - (총 접속 수, 현재 접속 수)
func (h *Hub) Stats() (total int, current int) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for _, room := range h.rooms {
		current += len(room)
	}
	return h.totalConnections, current
}

// HandleWebSocket - /ws?session={id} 상태 구독
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	session, err := m.Get(sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		clientID:  uuid.NewString(),
		send:      make(chan []byte, 256),
	}

	// 접속 직후 현재 상태 1회 전송
	state := session.Snapshot()
	initial, err := json.Marshal(Message{Type: MessageState, SessionID: sessionID, State: &state})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
	}
	m.hub.addClient(client, initial)

	go client.writePump()
	go client.readPump(m.hub, session)
}

// 클라이언트로부터 메시지 읽기 (상태 재요청만 처리)
func (c *Client) readPump(hub *Hub, session *Session) {
	defer func() {
		hub.removeClient(c)
		c.conn.Close()
	}()

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		switch message.Type {
		case MessageRequestState:
			state := session.Snapshot()
			hub.Broadcast(c.sessionID, Message{Type: MessageState, SessionID: c.sessionID, State: &state})
		default:
			log.Printf("Ignoring message type '%s' from client %s", message.Type, c.clientID)
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
