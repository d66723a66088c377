package enhancer

import (
	"context"
	"errors"
	"log"
	"strings"

	"lyra-atelier-server/modules/common/gemini"
	"lyra-atelier-server/modules/common/model"
	"lyra-atelier-server/modules/session"
)

// 화면에 표시되는 실패 메시지
const (
	MsgOptimizeFailed = "优化失败，请重试"
	MsgSuggestFailed  = "无法获取建议"
)

// ErrEmptySuggestion - 빈 추천 키워드 선택
var ErrEmptySuggestion = errors.New("suggestion is empty")

// Assistant - 텍스트 모델 호출 (studio.Service)
type Assistant interface {
	OptimizePrompt(ctx context.Context, input string, mode model.AppMode) (string, error)
	PromptSuggestions(ctx context.Context, mode model.AppMode) ([]string, error)
}

// Service - 프롬프트 보조 위젯
type Service struct {
	assistant Assistant
}

// NewService - Service 생성
func NewService(assistant Assistant) *Service {
	return &Service{assistant: assistant}
}

// Optimize - 현재 프롬프트를 다듬어 교체 (빈 프롬프트는 그대로)
func (e *Service) Optimize(ctx context.Context, s *session.Session) (string, error) {
	prompt, mode := s.PromptAndMode()
	if strings.TrimSpace(prompt) == "" {
		return prompt, nil
	}

	optimized, err := e.assistant.OptimizePrompt(ctx, prompt, mode)
	if err != nil {
		log.Printf("❌ [Enhancer] Optimize failed for session %s: %v", s.ID(), err)
		s.ReportError(MsgOptimizeFailed, gemini.IsCredentialError(err))
		return "", err
	}

	log.Printf("✨ [Enhancer] Prompt optimized for session %s", s.ID())
	return optimized, s.SetPrompt(optimized)
}

// Suggest - 현재 모드 기준 키워드 추천
func (e *Service) Suggest(ctx context.Context, s *session.Session) ([]string, error) {
	_, mode := s.PromptAndMode()

	suggestions, err := e.assistant.PromptSuggestions(ctx, mode)
	if err != nil {
		log.Printf("❌ [Enhancer] Suggestions failed for session %s: %v", s.ID(), err)
		s.ReportError(MsgSuggestFailed, gemini.IsCredentialError(err))
		return nil, err
	}
	return suggestions, s.SetSuggestions(suggestions)
}

// Pick - 추천 키워드 선택
func (e *Service) Pick(s *session.Session, suggestion string) error {
	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		return ErrEmptySuggestion
	}
	return s.PickSuggestion(suggestion, Merge)
}

// Merge - 빈 프롬프트면 키워드만, 아니면 ", "로 이어붙임
func Merge(prompt, suggestion string) string {
	if strings.TrimSpace(prompt) == "" {
		return suggestion
	}
	return prompt + ", " + suggestion
}
