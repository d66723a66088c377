package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"

	"github.com/google/uuid"

	"lyra-atelier-server/modules/common/model"
)

// ErrNoGeneration - 취소할 생성 작업 없음
var ErrNoGeneration = errors.New("no generation in progress")

// Context - 외부 호출용 context (CancelGeneration 시 취소됨)
func (t *Ticket) Context() context.Context { return t.ctx }

// BeginGeneration - 생성 시작 (phase=generating), 외부 호출에 필요한 입력을 Ticket으로 반환
// 동시에 한 건만 허용, 레퍼런스 필수
func (s *Session) BeginGeneration(ctx context.Context, mode model.AppMode) (*Ticket, error) {
	var ticket *Ticket
	err := s.mutate(func() error {
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		if s.reference == nil {
			return ErrNoReference
		}

		genCtx, cancel := context.WithCancel(ctx)
		ticket = &Ticket{
			id:            uuid.NewString(),
			ctx:           genCtx,
			cancel:        cancel,
			Mode:          mode,
			TrialID:       s.user.TrialID,
			Reference:     s.reference,
			Prompt:        s.prompt,
			Size:          s.size,
			Poster:        s.poster,
			Concepts:      append([]model.CreativeConcept{}, s.concepts...),
			previousMode:  s.mode,
			previousPhase: s.phase,
		}
		s.ticket = ticket
		s.releaseCameraLocked()
		s.errMsg = ""
		s.phase = PhaseGenerating
		if mode != model.ModePosterGeneration {
			s.mode = mode
		}
		log.Printf("⏳ [Session %s] Generation started (mode=%s, size=%s)", s.id, mode, ticket.Size)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// CompleteGeneration - 결과 저장 후 결과 화면으로 (히스토리 맨 앞에 추가)
func (s *Session) CompleteGeneration(t *Ticket, label string, data []byte, mimeType string) (*model.GeneratedImage, error) {
	var img *model.GeneratedImage
	err := s.mutate(func() error {
		if s.ticket == nil || s.ticket.id != t.id {
			return ErrStaleTicket
		}
		s.ticket = nil
		t.cancel()

		id := s.newHistoryIDLocked()
		result := &Result{
			GeneratedImage: model.GeneratedImage{
				ID:        id,
				URL:       fmt.Sprintf("/api/sessions/%s/images/%s", s.id, id),
				Type:      label,
				Timestamp: s.now().UnixMilli(),
			},
			Data:     data,
			MIMEType: mimeType,
		}
		s.history = append([]*Result{result}, s.history...)
		s.current = result
		s.mode = model.ModeResult
		s.phase = PhaseResult
		s.credentialsRequired = false

		copied := result.GeneratedImage
		img = &copied
		log.Printf("✅ [Session %s] Generation completed: %s (%s, %d bytes)", s.id, id, label, len(data))
		return nil
	})
	return img, err
}

// FailGeneration - 이전 화면으로 복귀 후 에러 메시지 표시
func (s *Session) FailGeneration(t *Ticket, message string, credentials bool) error {
	return s.mutate(func() error {
		if s.ticket == nil || s.ticket.id != t.id {
			return ErrStaleTicket
		}
		s.ticket = nil
		t.cancel()
		s.mode = t.previousMode
		s.phase = t.previousPhase
		if s.phase == PhaseGenerating || (s.phase == PhaseResult && s.current == nil) {
			s.phase = s.restingPhaseLocked()
		}
		s.errMsg = message
		if credentials {
			s.credentialsRequired = true
		}
		log.Printf("❌ [Session %s] Generation failed: %s", s.id, message)
		return nil
	})
}

// CancelGeneration - 진행 중인 외부 호출 취소 (상태 복귀는 FailGeneration에서)
func (s *Session) CancelGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticket == nil {
		return ErrNoGeneration
	}
	log.Printf("🛑 [Session %s] Generation cancel requested", s.id)
	s.ticket.cancel()
	return nil
}

const (
	historyAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	historyIDLength   = 4
	historyIDAttempts = 16
)

// randomHistoryID - base36 대문자 n자리
var randomHistoryID = func(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = historyAlphabet[rand.IntN(len(historyAlphabet))]
	}
	return string(b)
}

// newHistoryIDLocked - 4자리 base36 ID (세션 내 고유), 충돌이 계속되면 한 자리씩 늘림
func (s *Session) newHistoryIDLocked() string {
	for length := historyIDLength; ; length++ {
		for attempt := 0; attempt < historyIDAttempts; attempt++ {
			id := randomHistoryID(length)
			if !s.hasHistoryLocked(id) {
				return id
			}
		}
	}
}

func (s *Session) hasHistoryLocked(id string) bool {
	for _, r := range s.history {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Generating - 진행 중인 생성이 있는지
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}
