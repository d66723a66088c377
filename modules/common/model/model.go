package model

// AppMode - 화면 모드
type AppMode string

const (
	ModeDashboard        AppMode = "DASHBOARD"
	ModeModelShot        AppMode = "MODEL_SHOT"
	ModeCreativeShot     AppMode = "CREATIVE_SHOT"
	ModePosterGeneration AppMode = "POSTER_GENERATION"
	ModeResult           AppMode = "RESULT"
)

// NavTab - 네비게이션 탭
type NavTab string

const (
	TabCreate  NavTab = "CREATE"
	TabGallery NavTab = "GALLERY"
	TabProfile NavTab = "PROFILE"
)

// ValidTab - 탭 유효성 검사
func ValidTab(tab NavTab) bool {
	switch tab {
	case TabCreate, TabGallery, TabProfile:
		return true
	}
	return false
}

// ImageSize - 출력 해상도 등급
type ImageSize string

const (
	Size1K ImageSize = "1K"
	Size2K ImageSize = "2K"
	Size4K ImageSize = "4K"
)

// ImageSizes - 선택 가능한 해상도 목록
var ImageSizes = []ImageSize{Size1K, Size2K, Size4K}

// ValidImageSize - 해상도 유효성 검사
func ValidImageSize(size ImageSize) bool {
	for _, s := range ImageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// CameraFacingMode - 카메라 방향
type CameraFacingMode string

const (
	FacingUser        CameraFacingMode = "user"
	FacingEnvironment CameraFacingMode = "environment"
)

// ValidFacing - 카메라 방향 유효성 검사
func ValidFacing(facing CameraFacingMode) bool {
	return facing == FacingUser || facing == FacingEnvironment
}

// User - 세션 사용자 (체험용, 인증 없음)
type User struct {
	Name    string `json:"name"`
	TrialID string `json:"trialId"`
}

// GeneratedImage - 생성 결과 기록
type GeneratedImage struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// CreativeConcept - 이미지 분석으로 받은 촬영 컨셉
type CreativeConcept struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// PosterStyle 프리셋
const (
	PosterStyleMinimalist = "极简主义 (Minimalist)"
	PosterStyleLuxury     = "高端奢华 (Luxury)"
	PosterStyleStreet     = "街头潮流 (Street)"
	PosterStyleBoldPop    = "大胆波普 (Bold/Pop)"
	PosterStyleNature     = "自然清新 (Nature)"
)

// PosterStyles - UI에 노출되는 스타일 목록
var PosterStyles = []string{
	PosterStyleMinimalist,
	PosterStyleLuxury,
	PosterStyleStreet,
	PosterStyleBoldPop,
	PosterStyleNature,
}

// PosterConfig - 포스터 생성 설정
type PosterConfig struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Style        string `json:"style"`
	IncludeModel bool   `json:"includeModel"`
	ColorPalette string `json:"colorPalette"`
	FontType     string `json:"fontType"`
	Layout       string `json:"layout"`
	VisualPrompt string `json:"visualPrompt"`
}

// PosterRecommendation - 아트디렉터 추천 포스터 설정
type PosterRecommendation struct {
	PosterConfig
	Name        string `json:"name"`
	Description string `json:"description"`
}

// 결과 카테고리 라벨
const (
	TypeModelShot    = "Model Shot"
	TypeCreativeShot = "Creative Shot"
	TypePoster       = "Poster"
)
