package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lyra-atelier-server/modules/common/model"
)

// Phase - 캔버스 진행 단계
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreviewing Phase = "previewing"
	PhaseGenerating Phase = "generating"
	PhaseResult     Phase = "result"
)

var (
	ErrNoReference           = errors.New("capture or import an eyewear photo first")
	ErrGenerationInFlight    = errors.New("a generation is already in progress")
	ErrCameraClosed          = errors.New("camera is not open")
	ErrInvalidTab            = errors.New("invalid navigation tab")
	ErrInvalidFacing         = errors.New("invalid camera facing mode")
	ErrInvalidImageSize      = errors.New("invalid image size")
	ErrInvalidPoster         = errors.New("poster visual prompt is required")
	ErrUnknownHistory        = errors.New("history item not found")
	ErrUnknownRecommendation = errors.New("poster recommendation not found")
	ErrUnknownConcept        = errors.New("creative concept not found")
	ErrStaleTicket           = errors.New("generation ticket is no longer active")
)

// DefaultTrialName - 체험 사용자 기본 이름
const DefaultTrialName = "试用体验官"

// DefaultPosterConfig - 포스터 모드 초기값
func DefaultPosterConfig() model.PosterConfig {
	return model.PosterConfig{
		Title:        "LYRA",
		Subtitle:     "The Creative Atelier",
		Style:        model.PosterStyleMinimalist,
		IncludeModel: false,
		ColorPalette: "Monochrome black and ivory",
		FontType:     "High-contrast serif",
		Layout:       "Top Void",
		VisualPrompt: "Eyewear resting on polished travertine, low camera angle, cinematic rim light, soft gradient backdrop",
	}
}

// Result - 생성 결과 (이미지 바이너리 포함, 메모리에만 보관)
type Result struct {
	model.GeneratedImage
	Data     []byte
	MIMEType string
}

// Ticket - 진행 중인 생성 요청 1건
type Ticket struct {
	id            string
	ctx           context.Context
	cancel        context.CancelFunc
	Mode          model.AppMode
	TrialID       string
	Reference     []byte
	Prompt        string
	Size          model.ImageSize
	Poster        model.PosterConfig
	Concepts      []model.CreativeConcept
	previousMode  model.AppMode
	previousPhase Phase
}

// Session - 사용자 한 명의 화면 상태
type Session struct {
	id           string
	createdAt    time.Time
	lastActivity time.Time
	now          func() time.Time
	onChange     func(State)

	mu                  sync.Mutex
	user                model.User
	tab                 model.NavTab
	mode                model.AppMode
	phase               Phase
	cameraOpen          bool
	facing              model.CameraFacingMode
	reference           []byte
	referenceVersion    int
	current             *Result
	prompt              string
	size                model.ImageSize
	errMsg              string
	credentialsRequired bool
	history             []*Result
	poster              model.PosterConfig
	recommendations     []model.PosterRecommendation
	concepts            []model.CreativeConcept
	suggestions         []string
	ticket              *Ticket
}

func newSession(id, name, trialID string, now func() time.Time) *Session {
	if strings.TrimSpace(name) == "" {
		name = DefaultTrialName
	}
	if trialID = strings.TrimSpace(trialID); trialID == "" {
		trialID = uuid.NewString()
	}
	t := now()
	return &Session{
		id:           id,
		createdAt:    t,
		lastActivity: t,
		now:          now,
		user:         model.User{Name: strings.TrimSpace(name), TrialID: trialID},
		tab:          model.TabCreate,
		mode:         model.ModeDashboard,
		phase:        PhaseIdle,
		facing:       model.FacingEnvironment,
		size:         model.Size1K,
		poster:       DefaultPosterConfig(),
	}
}

// ID - 세션 ID
func (s *Session) ID() string { return s.id }

// mutate - lock 안에서 상태 변경 후 snapshot을 onChange로 전달
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.lastActivity = s.now()
	st := s.snapshotLocked()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(st)
	}
	return err
}

// restingPhaseLocked - 생성 중이 아닐 때의 기본 phase
func (s *Session) restingPhaseLocked() Phase {
	if s.reference == nil && s.current == nil {
		return PhaseIdle
	}
	if s.mode == model.ModeResult && s.current != nil {
		return PhaseResult
	}
	if s.reference == nil {
		return PhaseIdle
	}
	return PhasePreviewing
}

func (s *Session) busyLocked() bool {
	return s.phase == PhaseGenerating
}

// SelectTab - 탭 전환 (CREATE 선택 시 대시보드로, 다른 탭으로 가면 카메라 해제)
func (s *Session) SelectTab(tab model.NavTab) error {
	return s.mutate(func() error {
		if !model.ValidTab(tab) {
			return fmt.Errorf("%w: %s", ErrInvalidTab, tab)
		}
		s.tab = tab
		if tab != model.TabCreate {
			s.releaseCameraLocked()
			return nil
		}
		if !s.busyLocked() {
			s.mode = model.ModeDashboard
			s.phase = s.restingPhaseLocked()
		}
		return nil
	})
}

func (s *Session) releaseCameraLocked() {
	if s.cameraOpen {
		log.Printf("📷 [Session %s] Camera released", s.id)
	}
	s.cameraOpen = false
}

// OpenCamera - 카메라 열기 (이미 열려 있으면 해제 후 다시 획득)
func (s *Session) OpenCamera(facing model.CameraFacingMode) error {
	return s.mutate(func() error {
		if facing == "" {
			facing = s.facing
		}
		if !model.ValidFacing(facing) {
			return fmt.Errorf("%w: %s", ErrInvalidFacing, facing)
		}
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		s.releaseCameraLocked()
		s.cameraOpen = true
		s.facing = facing
		s.errMsg = ""
		log.Printf("📷 [Session %s] Camera opened (facing=%s)", s.id, facing)
		return nil
	})
}

// FlipCamera - 전면/후면 전환
func (s *Session) FlipCamera() error {
	return s.mutate(func() error {
		if !s.cameraOpen {
			return ErrCameraClosed
		}
		if s.facing == model.FacingUser {
			s.facing = model.FacingEnvironment
		} else {
			s.facing = model.FacingUser
		}
		log.Printf("📷 [Session %s] Camera flipped (facing=%s)", s.id, s.facing)
		return nil
	})
}

// CloseCamera - 카메라 해제
func (s *Session) CloseCamera() error {
	return s.mutate(func() error {
		s.releaseCameraLocked()
		return nil
	})
}

// Normalizer - 원본 이미지를 레퍼런스 JPEG로 변환 (mirror=true면 좌우 반전)
type Normalizer func(data []byte, mirror bool) ([]byte, error)

// CaptureFrame - 카메라 프레임을 레퍼런스로 (전면 카메라는 좌우 반전)
func (s *Session) CaptureFrame(frame []byte, normalize Normalizer) error {
	return s.mutate(func() error {
		if !s.cameraOpen {
			return ErrCameraClosed
		}
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		ref, err := normalize(frame, s.facing == model.FacingUser)
		if err != nil {
			s.errMsg = err.Error()
			return err
		}
		s.releaseCameraLocked()
		s.loadReferenceLocked(ref)
		return nil
	})
}

// ImportFile - 로컬 파일을 레퍼런스로
func (s *Session) ImportFile(data []byte, normalize Normalizer) error {
	return s.mutate(func() error {
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		ref, err := normalize(data, false)
		if err != nil {
			s.errMsg = err.Error()
			return err
		}
		s.loadReferenceLocked(ref)
		return nil
	})
}

func (s *Session) loadReferenceLocked(ref []byte) {
	s.reference = ref
	s.referenceVersion++
	s.current = nil
	s.concepts = nil
	s.recommendations = nil
	s.errMsg = ""
	s.tab = model.TabCreate
	s.mode = model.ModeDashboard
	s.phase = PhasePreviewing
	log.Printf("🖼️ [Session %s] Reference loaded (%d bytes, v%d)", s.id, len(ref), s.referenceVersion)
}

// ClearCanvas - 레퍼런스/결과 비우기
func (s *Session) ClearCanvas() error {
	return s.mutate(func() error {
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		s.reference = nil
		s.current = nil
		s.concepts = nil
		s.recommendations = nil
		s.mode = model.ModeDashboard
		s.phase = PhaseIdle
		return nil
	})
}

// EnterPosterMode - 포스터 설정 화면으로
func (s *Session) EnterPosterMode() error {
	return s.mutate(func() error {
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		if s.reference == nil {
			return ErrNoReference
		}
		s.mode = model.ModePosterGeneration
		s.phase = PhasePreviewing
		return nil
	})
}

// ReturnToDashboard - 결과 화면에서 다시 렌더링 설정으로
func (s *Session) ReturnToDashboard() error {
	return s.mutate(func() error {
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		s.mode = model.ModeDashboard
		s.phase = s.restingPhaseLocked()
		return nil
	})
}

// SetPrompt - 추가 프롬프트 입력
func (s *Session) SetPrompt(prompt string) error {
	return s.mutate(func() error {
		s.prompt = prompt
		return nil
	})
}

// SetImageSize - 해상도 선택
func (s *Session) SetImageSize(size model.ImageSize) error {
	return s.mutate(func() error {
		if !model.ValidImageSize(size) {
			return fmt.Errorf("%w: %s", ErrInvalidImageSize, size)
		}
		s.size = size
		return nil
	})
}

// UpdatePosterConfig - 포스터 설정 수동 편집
func (s *Session) UpdatePosterConfig(cfg model.PosterConfig) error {
	return s.mutate(func() error {
		cfg.VisualPrompt = strings.TrimSpace(cfg.VisualPrompt)
		if cfg.VisualPrompt == "" {
			return ErrInvalidPoster
		}
		s.poster = cfg
		return nil
	})
}

// ApplyRecommendation - 추천 포스터 설정 적용
func (s *Session) ApplyRecommendation(index int) error {
	return s.mutate(func() error {
		if index < 0 || index >= len(s.recommendations) {
			return fmt.Errorf("%w: %d", ErrUnknownRecommendation, index)
		}
		s.poster = s.recommendations[index].PosterConfig
		if !s.busyLocked() && s.reference != nil {
			s.mode = model.ModePosterGeneration
			s.phase = PhasePreviewing
		}
		return nil
	})
}

// SetRecommendations - 포스터 추천 결과 저장
func (s *Session) SetRecommendations(recs []model.PosterRecommendation) error {
	return s.mutate(func() error {
		s.recommendations = recs
		s.errMsg = ""
		return nil
	})
}

// Concept - 분석된 컨셉 조회
func (s *Session) Concept(index int) (model.CreativeConcept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.concepts) {
		return model.CreativeConcept{}, fmt.Errorf("%w: %d", ErrUnknownConcept, index)
	}
	return s.concepts[index], nil
}

// SetConcepts - 크리에이티브 컨셉 저장
func (s *Session) SetConcepts(concepts []model.CreativeConcept) error {
	return s.mutate(func() error {
		s.concepts = concepts
		s.errMsg = ""
		return nil
	})
}

// SetSuggestions - 추천 키워드 저장
func (s *Session) SetSuggestions(suggestions []string) error {
	return s.mutate(func() error {
		s.suggestions = suggestions
		s.errMsg = ""
		return nil
	})
}

// PickSuggestion - 추천 키워드를 프롬프트에 합치고 추천 목록 비움
func (s *Session) PickSuggestion(suggestion string, merge func(prompt, suggestion string) string) error {
	return s.mutate(func() error {
		s.prompt = merge(s.prompt, suggestion)
		s.suggestions = nil
		return nil
	})
}

// ReportError - 단일 에러 메시지 필드에 표시
func (s *Session) ReportError(message string, credentials bool) error {
	return s.mutate(func() error {
		s.errMsg = message
		if credentials {
			s.credentialsRequired = true
		}
		return nil
	})
}

// ClearError - 에러 메시지/키 재선택 플래그 해제
func (s *Session) ClearError() error {
	return s.mutate(func() error {
		s.errMsg = ""
		s.credentialsRequired = false
		return nil
	})
}

// Reference - 현재 레퍼런스 JPEG와 화면 모드 (분석 요청용)
func (s *Session) Reference() ([]byte, model.AppMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reference == nil {
		return nil, s.mode, ErrNoReference
	}
	return s.reference, s.mode, nil
}

// PromptAndMode - 프롬프트 보조 위젯용
func (s *Session) PromptAndMode() (string, model.AppMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt, s.mode
}

// TrialID - 체험 사용자 ID
func (s *Session) TrialID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.TrialID
}

// Image - 히스토리 이미지 (id == "current"면 현재 결과)
func (s *Session) Image(id string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "current" {
		if s.current == nil {
			return nil, ErrUnknownHistory
		}
		return s.current, nil
	}
	for _, r := range s.history {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownHistory, id)
}

// ReferenceImage - 미리보기용 레퍼런스 JPEG
func (s *Session) ReferenceImage() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference, s.reference != nil
}

// ViewHistory - 지난 결과 다시 보기
func (s *Session) ViewHistory(id string) error {
	return s.mutate(func() error {
		if s.busyLocked() {
			return ErrGenerationInFlight
		}
		for _, r := range s.history {
			if r.ID == id {
				s.current = r
				s.tab = model.TabCreate
				s.mode = model.ModeResult
				s.phase = PhaseResult
				s.releaseCameraLocked()
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownHistory, id)
	})
}

// History - 최신순 히스토리
func (s *Session) History() []model.GeneratedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Session) historyLocked() []model.GeneratedImage {
	out := make([]model.GeneratedImage, len(s.history))
	for i, r := range s.history {
		out[i] = r.GeneratedImage
	}
	return out
}
