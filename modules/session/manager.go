package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// emptyGrace - 레퍼런스/히스토리 없이 방치된 세션 유지 시간
const emptyGrace = 10 * time.Minute

// Metrics - 서버 메트릭
type Metrics struct {
	TotalSessions     int       `json:"totalSessions"`
	ActiveSessions    int       `json:"activeSessions"`
	TotalGenerations  int       `json:"totalGenerations"`
	FailedGenerations int       `json:"failedGenerations"`
	TotalConnections  int       `json:"totalConnections"`
	CurrentClients    int       `json:"currentClients"`
	StartTime         time.Time `json:"startTime"`
	Uptime            string    `json:"uptime"`
}

// Summary - 세션 목록 조회용 요약
type Summary struct {
	SessionID    string    `json:"sessionId"`
	UserName     string    `json:"userName"`
	ClientCount  int       `json:"clientCount"`
	HistoryCount int       `json:"historyCount"`
	Phase        Phase     `json:"phase"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Age          string    `json:"age"`
	Inactive     string    `json:"inactive"`
}

// Manager - 세션 매니저
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	hub      *Hub
	now      func() time.Time

	inactiveThreshold time.Duration
	expiredThreshold  time.Duration

	metricsMutex      sync.Mutex
	startTime         time.Time
	totalSessions     int
	totalGenerations  int
	failedGenerations int
}

// NewManager - 세션 매니저 생성
func NewManager(inactive, expire time.Duration) *Manager {
	return newManagerWithClock(inactive, expire, time.Now)
}

func newManagerWithClock(inactive, expire time.Duration, now func() time.Time) *Manager {
	return &Manager{
		sessions:          make(map[string]*Session),
		hub:               NewHub(),
		now:               now,
		inactiveThreshold: inactive,
		expiredThreshold:  expire,
		startTime:         now(),
	}
}

// Hub - WebSocket hub
func (m *Manager) Hub() *Hub { return m.hub }

// StartTrial - 체험 시작 (새 세션 생성)
// trialID는 체험 한도 키, 새로고침 후에도 같은 값을 넘기면 사용량이 이어짐 (비어있으면 새로 발급)
func (m *Manager) StartTrial(name, trialID string) *Session {
	id := uuid.NewString()
	session := newSession(id, name, trialID, m.now)
	session.onChange = func(st State) {
		m.hub.Broadcast(id, Message{Type: MessageState, SessionID: id, State: &st})
	}

	m.mutex.Lock()
	m.sessions[id] = session
	active := len(m.sessions)
	m.mutex.Unlock()

	m.metricsMutex.Lock()
	m.totalSessions++
	total := m.totalSessions
	m.metricsMutex.Unlock()

	log.Printf("✅ Created new session: %s for %s (Total: %d, Active: %d)", id, session.user.Name, total, active)
	return session
}

// Get - 세션 조회
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// End - 세션 종료 (페이지 새로고침 = 상태 초기화)
func (m *Manager) End(id string) error {
	m.mutex.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.hub.Disconnect(id)
	log.Printf("👋 Session %s ended", id)
	return nil
}

// RecordGeneration - 생성 결과 메트릭
func (m *Manager) RecordGeneration(success bool) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.totalGenerations++
	if !success {
		m.failedGenerations++
	}
}

// Metrics - 현재 메트릭
func (m *Manager) Metrics() Metrics {
	m.mutex.RLock()
	active := len(m.sessions)
	m.mutex.RUnlock()

	total, current := m.hub.Stats()

	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	return Metrics{
		TotalSessions:     m.totalSessions,
		ActiveSessions:    active,
		TotalGenerations:  m.totalGenerations,
		FailedGenerations: m.failedGenerations,
		TotalConnections:  total,
		CurrentClients:    current,
		StartTime:         m.startTime,
		Uptime:            m.now().Sub(m.startTime).String(),
	}
}

// Summaries - 세션별 요약
func (m *Manager) Summaries() []Summary {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	now := m.now()
	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		st := s.Snapshot()
		out = append(out, Summary{
			SessionID:    st.SessionID,
			UserName:     st.User.Name,
			ClientCount:  m.hub.ClientCount(st.SessionID),
			HistoryCount: len(st.History),
			Phase:        st.Phase,
			CreatedAt:    st.CreatedAt,
			LastActivity: st.LastActivity,
			Age:          now.Sub(st.CreatedAt).String(),
			Inactive:     now.Sub(st.LastActivity).String(),
		})
	}
	return out
}

// CleanupEmptySessions - 구독자 없고 레퍼런스/히스토리도 없는 세션 정리
func (m *Manager) CleanupEmptySessions() int {
	now := m.now()
	var removed []string

	m.mutex.Lock()
	for id, s := range m.sessions {
		st := s.Snapshot()
		isEmpty := !st.HasReference && len(st.History) == 0 && st.Phase != PhaseGenerating
		if isEmpty && m.hub.ClientCount(id) == 0 && s.idleSince(now) > emptyGrace {
			delete(m.sessions, id)
			removed = append(removed, id)
			log.Printf("🧹 Cleaned up empty session: %s", id)
		}
	}
	active := len(m.sessions)
	m.mutex.Unlock()

	if len(removed) > 0 {
		log.Printf("🗑️  Cleaned up %d empty sessions (Active: %d)", len(removed), active)
	}
	return len(removed)
}

// CleanupExpiredSessions - 만료(생성 후 expire 경과) 또는 비활성(구독자 없이 inactive 경과) 세션 정리
func (m *Manager) CleanupExpiredSessions() int {
	now := m.now()
	var removed []string

	m.mutex.Lock()
	for id, s := range m.sessions {
		isExpired := s.age(now) > m.expiredThreshold
		isInactive := s.idleSince(now) > m.inactiveThreshold && m.hub.ClientCount(id) == 0
		if isExpired || isInactive {
			delete(m.sessions, id)
			removed = append(removed, id)

			reason := "expired"
			if !isExpired {
				reason = "inactive"
			}
			log.Printf("⏰ Cleaned up %s session: %s (Age: %v, Inactive: %v)",
				reason, id, s.age(now), s.idleSince(now))
		}
	}
	active := len(m.sessions)
	m.mutex.Unlock()

	for _, id := range removed {
		m.hub.Disconnect(id)
	}
	if len(removed) > 0 {
		log.Printf("🧼 Cleaned up %d expired/inactive sessions (Active: %d)", len(removed), active)
	}
	return len(removed)
}

// StartCleanupRoutine - 정기적 정리 작업 시작 (ctx 취소 시 종료)
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupEmptySessions()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpiredSessions()
			}
		}
	}()

	log.Printf("🔄 Started session cleanup routines (Empty: 5min, Expired: 30min)")
}
