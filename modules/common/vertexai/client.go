package vertexai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// loadCredentials - 서비스 계정 JSON (환경변수 → 파일 순), 둘 다 없으면 nil (ADC 사용)
func loadCredentials() (*auth.Credentials, error) {
	var credsData []byte

	if credsJSON := os.Getenv("VERTEXAI_CREDENTIALS_JSON"); credsJSON != "" {
		// 1. 배포 환경용
		log.Println("✅ [VertexAI] Using VERTEXAI_CREDENTIALS_JSON from environment")
		credsData = []byte(credsJSON)
	} else if credsPath := os.Getenv("VERTEXAI_CREDENTIALS_PATH"); credsPath != "" {
		// 2. 로컬 테스트용
		log.Printf("✅ [VertexAI] Using credentials from file: %s", credsPath)
		data, err := os.ReadFile(credsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsData = data
	} else {
		// 3. Application Default Credentials
		log.Println("⚠️  [VertexAI] No explicit credentials found, using Application Default Credentials")
		return nil, nil
	}

	var probe map[string]interface{}
	if err := json.Unmarshal(credsData, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON credentials: %w", err)
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes:          []string{cloudPlatformScope},
		CredentialsJSON: credsData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return creds, nil
}

// NewClient - Vertex AI backend genai 클라이언트 생성
func NewClient(ctx context.Context, project, location string) (*genai.Client, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     project,
		Location:    location,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	log.Printf("✅ [VertexAI] Client initialized for project=%s, location=%s", project, location)
	return client, nil
}
