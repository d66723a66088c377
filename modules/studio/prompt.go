package studio

import (
	"fmt"
	"strings"

	"lyra-atelier-server/modules/common/model"
)

// 기본 시나리오 프리셋
const (
	ModelShotScenario    = "High-end fashion model, luxury studio lighting, high contrast, elegant facial features"
	CreativeShotScenario = "Minimalist creative eyewear photography, architectural abstract background, soft cinematic shadows"
)

// ImageAspectRatio - 결과 이미지 비율 (세로형 캠페인 컷)
const ImageAspectRatio = "3:4"

// PhotorealismInstruction - 모든 이미지 생성 프롬프트 앞에 붙는 지시문
const PhotorealismInstruction = `
PHOTOREALISM MANDATE:
- You are a world-class commercial fashion photographer.
- MODEL AESTHETICS: STUNNINGLY BEAUTIFUL models, high-fashion makeup, exquisite facial symmetry.
- LIGHTING: Cinematic, directional, high-contrast lighting. Use rim lights, soft-boxes, or dramatic natural sunlight.
- EYEWEAR: Perfectly preserved shape, material texture, and lens refraction from the reference image.
`

const conceptsInstruction = "Analyze style and provide 3 high-end artistic photography concepts with titles (ZH), descriptions (ZH), and dense English prompts."

const posterDirectorInstruction = `
Act as an Art Director. Suggest 3 high-impact poster concepts.
CRITICAL: Define a "Negative Space" layout for each (e.g., Top Void, Bottom-Left Void).
Visual Prompt MUST describe cinematic lighting, dynamic camera angles (low/high), and background textures.
Return JSON Array of 3 items with name, description, title, subtitle, style, includeModel, colorPalette, fontType, layout, visualPrompt.
`

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return strings.TrimSpace(s)
}

// BuildEyewearPrompt - 모델컷/크리에이티브컷 프롬프트
func BuildEyewearPrompt(scenario, additional string) string {
	var sb strings.Builder
	sb.WriteString(PhotorealismInstruction)
	sb.WriteString("Reference: Exactly replicate the eyewear in the attached image.\n")
	fmt.Fprintf(&sb, "Scenario: %s\n", scenario)
	fmt.Fprintf(&sb, "User Request: %s\n", orNone(additional))
	sb.WriteString("Ensure the result is 8k, ultra-detailed, and suitable for a high-end luxury brand.\n")
	return sb.String()
}

// BuildPosterPrompt - 포스터 프롬프트 (네거티브 스페이스 확보)
func BuildPosterPrompt(cfg model.PosterConfig, additional string) string {
	var sb strings.Builder
	sb.WriteString("TASK: Generate a Professional Advertising Poster.\n")
	fmt.Fprintf(&sb, "COMPOSITION: %s. STRICTLY provide large NEGATIVE SPACE for typography.\n", cfg.Layout)
	fmt.Fprintf(&sb, "VISUALS: %s\n", cfg.VisualPrompt)
	if cfg.Style != "" {
		fmt.Fprintf(&sb, "STYLE: %s\n", cfg.Style)
	}
	if cfg.ColorPalette != "" {
		fmt.Fprintf(&sb, "PALETTE: %s\n", cfg.ColorPalette)
	}
	if cfg.IncludeModel {
		sb.WriteString("CASTING: A professional model wears the eyewear.\n")
	} else {
		sb.WriteString("CASTING: Product only, no people.\n")
	}
	fmt.Fprintf(&sb, "TYPOGRAPHY: Render the text \"%s\" and \"%s\" in %s font, integrated stylishly into the negative space.\n",
		cfg.Title, cfg.Subtitle, cfg.FontType)
	sb.WriteString("PRODUCT: Eyewear from reference must be identical.\n")
	sb.WriteString("VIBE: Global Campaign, high-impact billboard, 8k.\n")
	fmt.Fprintf(&sb, "User Overrides: %s\n", orNone(additional))
	return sb.String()
}

// BuildOptimizeInstruction - 프롬프트 최적화 요청문
func BuildOptimizeInstruction(input string, mode model.AppMode) string {
	return fmt.Sprintf("Optimize this image prompt for a luxury eyewear campaign in %s mode: %q. Keep it concise and cinematic.", mode, input)
}

// BuildSuggestionsInstruction - 키워드 추천 요청문
func BuildSuggestionsInstruction(mode model.AppMode) string {
	return fmt.Sprintf("Suggest 3 photography keywords for %s mode. Return JSON array of strings.", mode)
}
