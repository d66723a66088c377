package studio

import "google.golang.org/genai"

func stringSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeString}
}

// conceptsSchema - [{title, description, prompt}]
func conceptsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":       stringSchema(),
				"description": stringSchema(),
				"prompt":      stringSchema(),
			},
			Required: []string{"title", "description", "prompt"},
		},
	}
}

// posterSchema - 포스터 추천 배열
func posterSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":         stringSchema(),
				"description":  stringSchema(),
				"title":        stringSchema(),
				"subtitle":     stringSchema(),
				"style":        stringSchema(),
				"includeModel": {Type: genai.TypeBoolean},
				"colorPalette": stringSchema(),
				"fontType":     stringSchema(),
				"layout":       stringSchema(),
				"visualPrompt": stringSchema(),
			},
			Required: []string{"name", "visualPrompt"},
		},
	}
}

// keywordsSchema - ["...", "..."]
func keywordsSchema() *genai.Schema {
	return &genai.Schema{
		Type:  genai.TypeArray,
		Items: stringSchema(),
	}
}
