package atelier

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lyra-atelier-server/modules/common/gemini"
	"lyra-atelier-server/modules/common/model"
	"lyra-atelier-server/modules/common/quota"
	"lyra-atelier-server/modules/common/utils"
	"lyra-atelier-server/modules/session"
	"lyra-atelier-server/modules/studio"
)

// Kind - 생성 종류
type Kind string

const (
	KindModel    Kind = "model"
	KindCreative Kind = "creative"
	KindPoster   Kind = "poster"
	KindConcept  Kind = "concept"
)

// 화면에 표시되는 실패 메시지
const (
	msgQuotaExceeded   = "试用次数已用完"
	msgConceptsFailed  = "灵感分析失败，请重试"
	msgPostersFailed   = "海报推荐失败，请重试"
	msgGenerateDefault = "生成失败，请重试"
	msgCanceled        = "已取消生成"
)

// Studio - 생성형 서비스 (studio.Service)
type Studio interface {
	GenerateEyewearImage(ctx context.Context, ref studio.Reference, scenario string, size model.ImageSize, additional string) (*gemini.Image, error)
	GeneratePosterImage(ctx context.Context, ref studio.Reference, cfg model.PosterConfig, size model.ImageSize, additional string) (*gemini.Image, error)
	GenerateCreativeConcepts(ctx context.Context, ref studio.Reference) ([]model.CreativeConcept, error)
	SuggestPosterConfigs(ctx context.Context, ref studio.Reference) ([]model.PosterRecommendation, error)
}

// Controller - 세션 상태 전이 + 외부 호출 조율
type Controller struct {
	sessions *session.Manager
	studio   Studio
	limiter  quota.Limiter
}

// NewController - Controller 생성
func NewController(sessions *session.Manager, st Studio, limiter quota.Limiter) *Controller {
	return &Controller{
		sessions: sessions,
		studio:   st,
		limiter:  limiter,
	}
}

func reference(data []byte) studio.Reference {
	return studio.Reference{Data: data, MIMEType: "image/jpeg"}
}

// normalize - 디코딩 실패는 ErrInvalidImage로
func normalize(data []byte, mirror bool) ([]byte, error) {
	out, err := utils.NormalizeReference(data, mirror)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return out, nil
}

// CaptureFrame - 카메라 프레임 캡처 (전면 카메라는 좌우 반전, JPEG q90)
func (c *Controller) CaptureFrame(s *session.Session, frame []byte) error {
	return s.CaptureFrame(frame, normalize)
}

// ImportFile - 로컬 파일 업로드
func (c *Controller) ImportFile(s *session.Session, data []byte) error {
	return s.ImportFile(data, normalize)
}

// Generate - 모델컷/크리에이티브컷/포스터/컨셉 생성
// conceptIndex는 KindConcept일 때만 사용
func (c *Controller) Generate(ctx context.Context, s *session.Session, kind Kind, conceptIndex int) (*model.GeneratedImage, *quota.Usage, error) {
	mode, label, err := kindMode(kind)
	if err != nil {
		return nil, nil, err
	}
	if kind == KindConcept {
		if _, err := s.Concept(conceptIndex); err != nil {
			return nil, nil, err
		}
	}

	ticket, err := s.BeginGeneration(ctx, mode)
	if err != nil {
		return nil, nil, err
	}

	// 체험 한도는 외부 호출 전에 확인
	usage, err := c.limiter.Check(ctx, ticket.TrialID)
	if err != nil {
		msg := msgGenerateDefault
		if errors.Is(err, quota.ErrQuotaExceeded) {
			msg = msgQuotaExceeded
		}
		c.fail(s, ticket, msg, false)
		return nil, usage, err
	}

	img, err := c.render(ticket.Context(), ticket, kind, conceptIndex)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) {
			msg = msgCanceled
		}
		c.fail(s, ticket, msg, gemini.IsCredentialError(err))
		return nil, usage, err
	}

	if consumed, err := c.limiter.Consume(ctx, ticket.TrialID); err != nil {
		log.Printf("⚠️ [Atelier] Failed to consume trial credit for %s: %v", ticket.TrialID, err)
	} else {
		usage = consumed
	}

	record, err := s.CompleteGeneration(ticket, label, img.Data, img.MIMEType)
	if err != nil {
		return nil, usage, err
	}
	c.sessions.RecordGeneration(true)
	log.Printf("✅ [Atelier] %s generated for session %s (%s)", label, s.ID(), record.ID)
	return record, usage, nil
}

func (c *Controller) fail(s *session.Session, ticket *session.Ticket, msg string, credentials bool) {
	c.sessions.RecordGeneration(false)
	if err := s.FailGeneration(ticket, msg, credentials); err != nil {
		log.Printf("⚠️ [Atelier] Failed to restore session %s: %v", s.ID(), err)
	}
}

func (c *Controller) render(ctx context.Context, t *session.Ticket, kind Kind, conceptIndex int) (*gemini.Image, error) {
	ref := reference(t.Reference)
	switch kind {
	case KindModel:
		return c.studio.GenerateEyewearImage(ctx, ref, studio.ModelShotScenario, t.Size, t.Prompt)
	case KindCreative:
		return c.studio.GenerateEyewearImage(ctx, ref, studio.CreativeShotScenario, t.Size, t.Prompt)
	case KindConcept:
		if conceptIndex < 0 || conceptIndex >= len(t.Concepts) {
			return nil, fmt.Errorf("%w: %d", session.ErrUnknownConcept, conceptIndex)
		}
		return c.studio.GenerateEyewearImage(ctx, ref, t.Concepts[conceptIndex].Prompt, t.Size, t.Prompt)
	default:
		return c.studio.GeneratePosterImage(ctx, ref, t.Poster, t.Size, t.Prompt)
	}
}

func kindMode(kind Kind) (model.AppMode, string, error) {
	switch kind {
	case KindModel:
		return model.ModeModelShot, model.TypeModelShot, nil
	case KindCreative, KindConcept:
		return model.ModeCreativeShot, model.TypeCreativeShot, nil
	case KindPoster:
		return model.ModePosterGeneration, model.TypePoster, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

// ErrUnknownKind - 지원하지 않는 생성 종류
var ErrUnknownKind = errors.New("unknown generation kind")

// AnalyzeConcepts - 레퍼런스 분석으로 크리에이티브 컨셉 받기
func (c *Controller) AnalyzeConcepts(ctx context.Context, s *session.Session) ([]model.CreativeConcept, error) {
	ref, _, err := s.Reference()
	if err != nil {
		return nil, err
	}

	concepts, err := c.studio.GenerateCreativeConcepts(ctx, reference(ref))
	if err != nil {
		log.Printf("❌ [Atelier] Concept analysis failed for session %s: %v", s.ID(), err)
		s.ReportError(msgConceptsFailed, gemini.IsCredentialError(err))
		return nil, err
	}
	return concepts, s.SetConcepts(concepts)
}

// SuggestPosters - 아트디렉터 포스터 추천
func (c *Controller) SuggestPosters(ctx context.Context, s *session.Session) ([]model.PosterRecommendation, error) {
	ref, _, err := s.Reference()
	if err != nil {
		return nil, err
	}

	recs, err := c.studio.SuggestPosterConfigs(ctx, reference(ref))
	if err != nil {
		log.Printf("❌ [Atelier] Poster suggestions failed for session %s: %v", s.ID(), err)
		s.ReportError(msgPostersFailed, gemini.IsCredentialError(err))
		return nil, err
	}
	return recs, s.SetRecommendations(recs)
}

// Usage - 체험 사용량 조회
func (c *Controller) Usage(ctx context.Context, s *session.Session) (*quota.Usage, error) {
	usage, err := c.limiter.Check(ctx, s.TrialID())
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return usage, nil
	}
	return usage, err
}
