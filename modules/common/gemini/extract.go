package gemini

import (
	"errors"
	"strings"

	"google.golang.org/genai"
)

// ErrNoImage - 응답에 inline 이미지 part가 없음
var ErrNoImage = errors.New("No image generated.")

// Image - 응답에서 꺼낸 inline 이미지
type Image struct {
	Data     []byte
	MIMEType string
}

// FirstImage - 첫 번째 inline 이미지 part 반환
func FirstImage(result *genai.GenerateContentResponse) (*Image, error) {
	if result == nil {
		return nil, ErrNoImage
	}

	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return &Image{Data: part.InlineData.Data, MIMEType: mimeType}, nil
			}
		}
	}
	return nil, ErrNoImage
}

// Text - 첫 번째 candidate의 text part들을 이어붙임 (thought part 제외)
func Text(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	candidate := result.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
