package session

import (
	"fmt"
	"time"

	"lyra-atelier-server/modules/common/model"
)

// CameraState - 카메라 상태
type CameraState struct {
	Open   bool                   `json:"open"`
	Facing model.CameraFacingMode `json:"facing"`
}

// State - 클라이언트 렌더링용 스냅샷
type State struct {
	SessionID           string                       `json:"sessionId"`
	User                model.User                   `json:"user"`
	Tab                 model.NavTab                 `json:"tab"`
	Mode                model.AppMode                `json:"mode"`
	Phase               Phase                        `json:"phase"`
	Camera              CameraState                  `json:"camera"`
	HasReference        bool                         `json:"hasReference"`
	PreviewURL          string                       `json:"previewUrl,omitempty"`
	CurrentResult       *model.GeneratedImage        `json:"currentResult,omitempty"`
	Prompt              string                       `json:"prompt"`
	ImageSize           model.ImageSize              `json:"imageSize"`
	Error               string                       `json:"error,omitempty"`
	CredentialsRequired bool                         `json:"credentialsRequired"`
	GenerationEnabled   bool                         `json:"generationEnabled"`
	History             []model.GeneratedImage       `json:"history"`
	Poster              model.PosterConfig           `json:"poster"`
	Recommendations     []model.PosterRecommendation `json:"recommendations"`
	Concepts            []model.CreativeConcept      `json:"concepts"`
	Suggestions         []string                     `json:"suggestions"`
	CreatedAt           time.Time                    `json:"createdAt"`
	LastActivity        time.Time                    `json:"lastActivity"`
}

// Snapshot - 현재 상태 복사본
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		SessionID:           s.id,
		User:                s.user,
		Tab:                 s.tab,
		Mode:                s.mode,
		Phase:               s.phase,
		Camera:              CameraState{Open: s.cameraOpen, Facing: s.facing},
		HasReference:        s.reference != nil,
		Prompt:              s.prompt,
		ImageSize:           s.size,
		Error:               s.errMsg,
		CredentialsRequired: s.credentialsRequired,
		GenerationEnabled:   s.reference != nil && s.phase != PhaseGenerating,
		History:             s.historyLocked(),
		Poster:              s.poster,
		Recommendations:     append([]model.PosterRecommendation{}, s.recommendations...),
		Concepts:            append([]model.CreativeConcept{}, s.concepts...),
		Suggestions:         append([]string{}, s.suggestions...),
		CreatedAt:           s.createdAt,
		LastActivity:        s.lastActivity,
	}

	// 결과 화면은 결과 이미지, 그 외에는 레퍼런스 미리보기
	switch {
	case s.phase == PhaseResult && s.current != nil:
		st.PreviewURL = s.current.URL
	case s.reference != nil:
		st.PreviewURL = fmt.Sprintf("/api/sessions/%s/reference?v=%d", s.id, s.referenceVersion)
	}
	if s.current != nil {
		img := s.current.GeneratedImage
		st.CurrentResult = &img
	}
	return st
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) age(now time.Time) time.Duration {
	return now.Sub(s.createdAt)
}
