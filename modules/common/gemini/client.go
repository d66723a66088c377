package gemini

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"google.golang.org/genai"

	"lyra-atelier-server/modules/common/config"
	"lyra-atelier-server/modules/common/vertexai"
)

// ContentGenerator - genai.Models.GenerateContent 시그니처 (테스트에서 fake로 대체)
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ModelsFactory - API 키 하나에 대한 ContentGenerator 생성
type ModelsFactory func(ctx context.Context, apiKey string) (ContentGenerator, error)

// Client - 여러 API 키를 돌려가며 호출하는 Gemini 클라이언트
type Client struct {
	apiKeys       []string
	retriesPerKey int
	retryDelay    time.Duration
	factory       ModelsFactory

	mu     sync.Mutex
	models map[string]ContentGenerator
}

// NewClient - 설정에 맞는 backend(Gemini API / Vertex AI)로 클라이언트 생성
func NewClient(cfg *config.Config) *Client {
	keys := cfg.GeminiAPIKeys
	factory := geminiAPIFactory
	if cfg.GeminiBackend == config.BackendVertexAI {
		// Vertex는 ADC 인증이라 키 슬롯 하나만 사용
		keys = []string{""}
		factory = vertexFactory(cfg.VertexAIProject, cfg.VertexAILocation)
	}

	log.Printf("✅ [Gemini] Client initialized (backend=%s, keys=%d)", cfg.GeminiBackend, len(keys))
	return NewClientWithFactory(keys, cfg.GeminiRetryPerKey, cfg.GeminiRetryDelay, factory)
}

// NewClientWithFactory - factory를 직접 지정해서 생성
func NewClientWithFactory(apiKeys []string, retriesPerKey int, retryDelay time.Duration, factory ModelsFactory) *Client {
	if retriesPerKey < 1 {
		retriesPerKey = 1
	}
	return &Client{
		apiKeys:       apiKeys,
		retriesPerKey: retriesPerKey,
		retryDelay:    retryDelay,
		factory:       factory,
		models:        make(map[string]ContentGenerator),
	}
}

// modelsFor - 키별 ContentGenerator 캐시
func (c *Client) modelsFor(ctx context.Context, apiKey string) (ContentGenerator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[apiKey]; ok {
		return m, nil
	}
	m, err := c.factory(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	c.models[apiKey] = m
	return m, nil
}

// forget - 인증 실패한 키의 캐시 제거
func (c *Client) forget(apiKey string) {
	c.mu.Lock()
	delete(c.models, apiKey)
	c.mu.Unlock()
}

func geminiAPIFactory(ctx context.Context, apiKey string) (ContentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client.Models, nil
}

func vertexFactory(project, location string) ModelsFactory {
	return func(ctx context.Context, _ string) (ContentGenerator, error) {
		client, err := vertexai.NewClient(ctx, project, location)
		if err != nil {
			return nil, err
		}
		return client.Models, nil
	}
}
