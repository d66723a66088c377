package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrCredentials - 설정된 모든 키가 인증/조회 단계에서 거절됨
var ErrCredentials = errors.New("gemini credentials rejected")

// GenerateContent - 429 에러 시 같은 키로 재시도, 인증 실패 시 다음 키로 넘어감
// 각 키당 최대 retriesPerKey번 시도
func (c *Client) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	if len(c.apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	var lastErr error
	credentialFailures := 0

	// 각 API 키로 시도
	for keyIndex, apiKey := range c.apiKeys {
		if len(c.apiKeys) > 1 {
			log.Printf("🔑 [Gemini Retry] Trying API key #%d/%d", keyIndex+1, len(c.apiKeys))
		}

		for attempt := 1; attempt <= c.retriesPerKey; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 Retry attempt %d/%d for key #%d", attempt, c.retriesPerKey, keyIndex+1)
			}

			models, err := c.modelsFor(ctx, apiKey)
			if err != nil {
				log.Printf("⚠️  [Gemini Retry] Failed to create client with key #%d (attempt %d): %v", keyIndex+1, attempt, err)
				lastErr = err
				continue
			}

			result, err := models.GenerateContent(ctx, model, contents, config)
			if err == nil {
				if attempt > 1 || keyIndex > 0 {
					log.Printf("✅ [Gemini Retry] Success with API key #%d (attempt %d/%d)", keyIndex+1, attempt, c.retriesPerKey)
				}
				return result, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			// 인증/조회 실패 - 이 키는 포기하고 다음 키로
			if IsCredentialError(err) {
				log.Printf("🔐 [Gemini Retry] Key #%d rejected: %v", keyIndex+1, err)
				credentialFailures++
				c.forget(apiKey)
				break
			}

			// 429가 아닌 다른 에러면 바로 반환 (재시도 안 함)
			if !is429Error(err) {
				log.Printf("❌ [Gemini Retry] Key #%d failed with non-429 error: %v", keyIndex+1, err)
				return nil, err
			}

			log.Printf("⚠️  [Gemini Retry] Key #%d hit rate limit (429) on attempt %d/%d", keyIndex+1, attempt, c.retriesPerKey)

			if attempt < c.retriesPerKey {
				log.Printf("   ⏳ Waiting %v before retry...", c.retryDelay)
				if err := wait(ctx, c.retryDelay); err != nil {
					return nil, err
				}
			}
		}
	}

	// 모든 키가 인증 실패
	if credentialFailures == len(c.apiKeys) {
		return nil, fmt.Errorf("%w (%d keys tried): %v", ErrCredentials, len(c.apiKeys), lastErr)
	}

	return nil, fmt.Errorf("all %d API keys exhausted (%d attempts each), last error: %w", len(c.apiKeys), c.retriesPerKey, lastErr)
}

// is429Error - 429 Rate Limit 에러인지 확인
func is429Error(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource_exhausted")
}

// IsCredentialError - 키 인증/엔티티 조회 실패 여부 (키 재선택이 필요한 에러)
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentials) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "Requested entity was not found") ||
		strings.Contains(errStr, "API key not valid") ||
		strings.Contains(errStr, "API_KEY_INVALID") ||
		strings.Contains(errStr, "PERMISSION_DENIED")
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
