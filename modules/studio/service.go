package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"lyra-atelier-server/modules/common/fallback"
	"lyra-atelier-server/modules/common/gemini"
	"lyra-atelier-server/modules/common/model"
)

// ErrNoReference - 레퍼런스 이미지 없이 호출됨
var ErrNoReference = errors.New("reference image is required")

// Reference - 사용자가 올린 안경 사진
type Reference struct {
	Data     []byte
	MIMEType string
}

// Service - 생성형 이미지 서비스 클라이언트 (요청 조립 + 응답 파싱)
type Service struct {
	gen        gemini.ContentGenerator
	imageModel string
	textModel  string
}

// NewService - Service 생성
func NewService(gen gemini.ContentGenerator, imageModel, textModel string) *Service {
	log.Printf("✅ [Studio] Service initialized (image=%s, text=%s)", imageModel, textModel)
	return &Service{
		gen:        gen,
		imageModel: imageModel,
		textModel:  textModel,
	}
}

// referenceContent - [inline image, instruction text] 구성
func referenceContent(ref Reference, instruction string) ([]*genai.Content, error) {
	if len(ref.Data) == 0 {
		return nil, ErrNoReference
	}
	mimeType := ref.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromBytes(ref.Data, mimeType),
			genai.NewPartFromText(instruction),
		},
	}}, nil
}

func textContent(instruction string) []*genai.Content {
	return []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(instruction)},
	}}
}

func imageConfig() *genai.GenerateContentConfig {
	// 기본 이미지 모델은 ImageSize(1K/2K/4K)를 지원하지 않아 비율만 전달
	return &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: ImageAspectRatio},
	}
}

func jsonConfig(schema *genai.Schema) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
}

func (s *Service) generateImage(ctx context.Context, ref Reference, prompt string) (*gemini.Image, error) {
	contents, err := referenceContent(ref, prompt)
	if err != nil {
		return nil, err
	}

	log.Printf("📤 [Studio] Calling %s (ref=%d bytes, prompt=%s)", s.imageModel, len(ref.Data), fallback.Truncate(prompt, 60))
	result, err := s.gen.GenerateContent(ctx, s.imageModel, contents, imageConfig())
	if err != nil {
		log.Printf("❌ [Studio] Gemini API error: %v", err)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	img, err := gemini.FirstImage(result)
	if err != nil {
		log.Printf("⚠️ [Studio] Response contained no image part")
		return nil, err
	}

	log.Printf("✅ [Studio] Image generated: %d bytes (%s)", len(img.Data), img.MIMEType)
	return img, nil
}

// GenerateEyewearImage - 시나리오 기반 모델컷/크리에이티브컷 생성
// size는 검증만 하고 모델에는 전달하지 않음
func (s *Service) GenerateEyewearImage(ctx context.Context, ref Reference, scenario string, size model.ImageSize, additional string) (*gemini.Image, error) {
	log.Printf("🎨 [Studio] Eyewear shot - size=%s, scenario=%s", size, fallback.Truncate(scenario, 40))
	return s.generateImage(ctx, ref, BuildEyewearPrompt(scenario, additional))
}

// GeneratePosterImage - 포스터 생성
func (s *Service) GeneratePosterImage(ctx context.Context, ref Reference, cfg model.PosterConfig, size model.ImageSize, additional string) (*gemini.Image, error) {
	log.Printf("🖼️ [Studio] Poster - size=%s, title=%s, layout=%s", size, cfg.Title, cfg.Layout)
	return s.generateImage(ctx, ref, BuildPosterPrompt(cfg, additional))
}

func (s *Service) generateJSON(ctx context.Context, contents []*genai.Content, schema *genai.Schema, out interface{}) error {
	result, err := s.gen.GenerateContent(ctx, s.textModel, contents, jsonConfig(schema))
	if err != nil {
		log.Printf("❌ [Studio] Gemini API error: %v", err)
		return fmt.Errorf("structured request failed: %w", err)
	}

	text := strings.TrimSpace(gemini.Text(result))
	if text == "" {
		text = "[]"
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// GenerateCreativeConcepts - 레퍼런스를 분석해 촬영 컨셉 3개 제안
func (s *Service) GenerateCreativeConcepts(ctx context.Context, ref Reference) ([]model.CreativeConcept, error) {
	contents, err := referenceContent(ref, conceptsInstruction)
	if err != nil {
		return nil, err
	}

	var raw []model.CreativeConcept
	if err := s.generateJSON(ctx, contents, conceptsSchema(), &raw); err != nil {
		return nil, err
	}

	concepts := make([]model.CreativeConcept, 0, len(raw))
	for _, c := range raw {
		c.Prompt = strings.TrimSpace(c.Prompt)
		if c.Prompt == "" {
			continue
		}
		c.Title = fallback.SafeString(c.Title, fmt.Sprintf("Concept %d", len(concepts)+1))
		concepts = append(concepts, c)
	}

	log.Printf("💡 [Studio] %d creative concepts received", len(concepts))
	return concepts, nil
}

// SuggestPosterConfigs - 아트디렉터 역할로 포스터 설정 3개 제안
func (s *Service) SuggestPosterConfigs(ctx context.Context, ref Reference) ([]model.PosterRecommendation, error) {
	contents, err := referenceContent(ref, posterDirectorInstruction)
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := s.generateJSON(ctx, contents, posterSchema(), &raw); err != nil {
		return nil, err
	}

	recs := make([]model.PosterRecommendation, 0, len(raw))
	for _, m := range raw {
		visual := fallback.SafeString(m["visualPrompt"], "")
		if visual == "" {
			continue
		}
		recs = append(recs, model.PosterRecommendation{
			Name:        fallback.SafeString(m["name"], fmt.Sprintf("Poster %d", len(recs)+1)),
			Description: fallback.SafeString(m["description"], ""),
			PosterConfig: model.PosterConfig{
				Title:        fallback.SafeString(m["title"], ""),
				Subtitle:     fallback.SafeString(m["subtitle"], ""),
				Style:        fallback.SafeString(m["style"], model.PosterStyleMinimalist),
				IncludeModel: fallback.SafeBool(m["includeModel"], false),
				ColorPalette: fallback.SafeString(m["colorPalette"], ""),
				FontType:     fallback.SafeString(m["fontType"], ""),
				Layout:       fallback.SafeString(m["layout"], "Top Void"),
				VisualPrompt: visual,
			},
		})
	}

	log.Printf("💡 [Studio] %d poster recommendations received", len(recs))
	return recs, nil
}

// OptimizePrompt - 자유 입력 프롬프트 다듬기 (빈 응답이면 원문 유지)
func (s *Service) OptimizePrompt(ctx context.Context, input string, mode model.AppMode) (string, error) {
	result, err := s.gen.GenerateContent(ctx, s.textModel, textContent(BuildOptimizeInstruction(input, mode)), nil)
	if err != nil {
		log.Printf("❌ [Studio] Optimize failed: %v", err)
		return "", fmt.Errorf("prompt optimization failed: %w", err)
	}

	optimized := strings.TrimSpace(gemini.Text(result))
	if optimized == "" {
		return input, nil
	}
	return optimized, nil
}

// PromptSuggestions - 모드별 촬영 키워드 추천
func (s *Service) PromptSuggestions(ctx context.Context, mode model.AppMode) ([]string, error) {
	var raw []string
	if err := s.generateJSON(ctx, textContent(BuildSuggestionsInstruction(mode)), keywordsSchema(), &raw); err != nil {
		return nil, err
	}
	return fallback.NonEmptyStrings(raw), nil
}
