package atelier

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lyra-atelier-server/modules/common/gemini"
	"lyra-atelier-server/modules/common/model"
	"lyra-atelier-server/modules/common/quota"
	"lyra-atelier-server/modules/common/utils"
	"lyra-atelier-server/modules/enhancer"
	"lyra-atelier-server/modules/session"
)

// 에러 코드
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeCredentialsRequired = "CREDENTIALS_REQUIRED"
	CodeCanceled            = "CANCELED"
	CodeInternal            = "INTERNAL_ERROR"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidImage   = errors.New("invalid image")
)

// Response - 공통 응답
type Response struct {
	Success         bool                         `json:"success"`
	ErrorMessage    string                       `json:"errorMessage,omitempty"`
	ErrorCode       string                       `json:"errorCode,omitempty"`
	State           *session.State               `json:"state,omitempty"`
	Image           *model.GeneratedImage        `json:"image,omitempty"`
	Usage           *quota.Usage                 `json:"usage,omitempty"`
	Prompt          *string                      `json:"prompt,omitempty"`
	Suggestions     []string                     `json:"suggestions,omitempty"`
	Concepts        []model.CreativeConcept      `json:"concepts,omitempty"`
	Recommendations []model.PosterRecommendation `json:"recommendations,omitempty"`
	History         []model.GeneratedImage       `json:"history,omitempty"`
	DataURL         string                       `json:"dataUrl,omitempty"`
}

// Presets - 선택 가능한 옵션 목록
type Presets struct {
	PosterStyles []string          `json:"posterStyles"`
	ImageSizes   []model.ImageSize `json:"imageSizes"`
	Scenarios    map[string]string `json:"scenarios"`
	AspectRatio  string            `json:"aspectRatio"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ [Atelier] Failed to encode response: %v", err)
	}
}

// classify - 에러를 HTTP 상태/에러 코드로 변환
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrUnknownHistory),
		errors.Is(err, session.ErrUnknownRecommendation),
		errors.Is(err, session.ErrUnknownConcept):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, context.Canceled):
		return http.StatusConflict, CodeCanceled
	case errors.Is(err, session.ErrGenerationInFlight),
		errors.Is(err, session.ErrNoReference),
		errors.Is(err, session.ErrNoGeneration),
		errors.Is(err, session.ErrCameraClosed),
		errors.Is(err, session.ErrStaleTicket):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrUnknownKind),
		errors.Is(err, utils.ErrEmptyImage),
		errors.Is(err, enhancer.ErrEmptySuggestion),
		errors.Is(err, session.ErrInvalidTab),
		errors.Is(err, session.ErrInvalidFacing),
		errors.Is(err, session.ErrInvalidImageSize),
		errors.Is(err, session.ErrInvalidPoster):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests, CodeQuotaExceeded
	case gemini.IsCredentialError(err):
		return http.StatusUnauthorized, CodeCredentialsRequired
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(w http.ResponseWriter, err error, state *session.State) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("❌ [Atelier] Request failed: %v", err)
	}
	writeJSON(w, status, Response{
		Success:      false,
		ErrorMessage: err.Error(),
		ErrorCode:    code,
		State:        state,
	})
}
