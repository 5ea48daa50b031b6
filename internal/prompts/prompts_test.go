package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStripsNewlinesAndBraces(t *testing.T) {
	in := "a photo\nof {something}\r\n  with   spaces"
	assert.Equal(t, "a photo of (something) with spaces", Sanitize(in))
}

func TestBuildBatchPromptIsDeterministic(t *testing.T) {
	a := BuildBatchPrompt("sunset over hills", nil)
	b := BuildBatchPrompt("sunset over hills", nil)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "USER DESCRIPTION:\nsunset over hills")
	assert.Contains(t, a, "\"categories\"")
	assert.NotContains(t, a, "EDITORIAL REQUIREMENT")
}

func TestBuildBatchPromptEditorialBlock(t *testing.T) {
	p := BuildBatchPrompt("street protest", &EditorialData{City: "Prague", Country: "Czech Republic", Date: "04 08 2016"})
	assert.Contains(t, p, "EDITORIAL REQUIREMENT:")
	assert.Contains(t, p, "PRAGUE, CZECH REPUBLIC - 04 08 2016:")
}

func TestBuildBatchPromptSkipsIncompleteEditorialData(t *testing.T) {
	p := BuildBatchPrompt("street protest", &EditorialData{City: "Prague"})
	assert.NotContains(t, p, "EDITORIAL REQUIREMENT")
}

func TestBuildAlternativePromptKnownEffect(t *testing.T) {
	p := BuildAlternativePrompt("_bw", "Sunset", "A sunset over hills", []string{"sunset", "hills"}, false)
	assert.Contains(t, p, "EDIT TYPE: _bw")
	assert.Contains(t, p, "black and white")
	assert.Contains(t, p, "ORIGINAL KEYWORDS: sunset, hills")
	assert.Contains(t, p, "This is commercial content.")
	assert.Contains(t, p, "\"categories\": {}")
}

func TestBuildAlternativePromptUnknownEffectFallsBack(t *testing.T) {
	p := BuildAlternativePrompt("_sepia", "Sunset", "A sunset", nil, true)
	assert.Contains(t, p, "EDIT TYPE: _sepia")
	assert.Contains(t, p, `"sepia" effect`)
	assert.Contains(t, p, "This is editorial content.")
}
