// Package prompts builds the exact text sent to the AI provider. All
// functions are pure so a prompt can be rebuilt for retries and cost
// estimates without consulting mutable state.
package prompts

import (
	"fmt"
	"strings"
)

const jsonSchema = "OUTPUT JSON ONLY with this schema:\n" +
	"{\n" +
	"  \"title\": \"A concise, descriptive title (max 80 characters)\",\n" +
	"  \"description\": \"A detailed description (max 200 characters)\",\n" +
	"  \"keywords\": [\"keyword1\", \"keyword2\", \"...\"],\n" +
	"  \"categories\": {\n" +
	"    \"shutterstock\": [\"Primary\", \"Secondary\"],\n" +
	"    \"adobestock\": [\"Single\"],\n" +
	"    \"dreamstime\": [\"Category 1\", \"Category 2\", \"Category 3\"]\n" +
	"  }\n" +
	"}\n"

const alternativeJSONSchema = "OUTPUT JSON ONLY with this schema:\n" +
	"{\n" +
	"  \"title\": \"A concise, descriptive title (max 80 characters)\",\n" +
	"  \"description\": \"A detailed description (max 200 characters)\",\n" +
	"  \"keywords\": [\"keyword1\", \"keyword2\", \"...\"],\n" +
	"  \"categories\": {}\n" +
	"}\n"

// effectInstructions describes each supported edit tag for the provider.
// Unknown tags fall back to a generic instruction instead of failing.
var effectInstructions = map[string]string{
	"_bw":       "The edited image is a black and white conversion of the original. Mention the monochrome look in title and description and add keywords like 'black and white', 'monochrome'.",
	"_negative": "The edited image is a color-inverted negative of the original. Mention the inverted colors in title and description and add keywords like 'negative', 'inverted'.",
	"_sharpen":  "The edited image is a sharpened version of the original with enhanced detail. Keep the metadata close to the original and add keywords like 'sharp', 'detailed'.",
	"_misty":    "The edited image has a soft misty fog effect. Mention the dreamy, hazy atmosphere in title and description and add keywords like 'mist', 'fog', 'dreamy'.",
	"_blurred":  "The edited image is heavily blurred, suitable as an abstract background. Mention the blur in title and description and add keywords like 'blur', 'abstract', 'background'.",
}

// EditorialData is the caption context embedded into editorial prompts.
type EditorialData struct {
	City    string
	Country string
	Date    string
}

// Sanitize prepares free text for embedding into a prompt: newlines are
// flattened, braces become parentheses so the structured-output contract
// cannot be broken, and whitespace runs collapse.
func Sanitize(s string) string {
	replacer := strings.NewReplacer(
		"\r\n", " ",
		"\n", " ",
		"\r", " ",
		"{", "(",
		"}", ")",
	)
	return strings.Join(strings.Fields(replacer.Replace(s)), " ")
}

// BuildBatchPrompt builds the prompt for an original image. editorial may
// be nil for commercial content; an incomplete editorial block is omitted.
func BuildBatchPrompt(userDescription string, editorial *EditorialData) string {
	editorialBlock := ""
	if editorial != nil {
		city := strings.TrimSpace(editorial.City)
		country := strings.TrimSpace(editorial.Country)
		date := strings.TrimSpace(editorial.Date)
		if city != "" && country != "" && date != "" {
			editorialBlock = "EDITORIAL REQUIREMENT:\n" +
				"- This is editorial content.\n" +
				fmt.Sprintf("- The description MUST start with: %s, %s - %s: \n",
					strings.ToUpper(city), strings.ToUpper(country), date)
		}
	}

	return "You are a professional stock photography metadata generator.\n" +
		"Based on the image and the user's description, generate metadata for stock photo platforms.\n" +
		"\n" +
		"USER DESCRIPTION:\n" +
		Sanitize(userDescription) + "\n" +
		"\n" +
		editorialBlock +
		jsonSchema +
		"\n" +
		"RULES:\n" +
		"- All text must be in English.\n" +
		"- Keywords must be relevant, unique, and lowercase if possible.\n" +
		"- Avoid trademarks and brand names.\n" +
		"- Use only the JSON object, no extra text.\n"
}

// BuildAlternativePrompt builds the text-only prompt for a derived effect
// variant, reusing the original's confirmed metadata.
func BuildAlternativePrompt(editTag, originalTitle, originalDescription string, originalKeywords []string, editorial bool) string {
	editorialNote := "This is commercial content."
	if editorial {
		editorialNote = "This is editorial content."
	}

	effectNote, ok := effectInstructions[editTag]
	if !ok {
		effectNote = fmt.Sprintf("The edited image was modified with the %q effect. Adjust title, description and keywords to reflect that edit.", strings.TrimPrefix(editTag, "_"))
	}

	return "You are a professional stock photography metadata generator.\n" +
		editorialNote + "\n" +
		"We already have metadata for the ORIGINAL image. Generate metadata for the EDITED version.\n" +
		"\n" +
		"EDIT TYPE: " + editTag + "\n" +
		"EDIT DESCRIPTION: " + effectNote + "\n" +
		"ORIGINAL TITLE: " + Sanitize(originalTitle) + "\n" +
		"ORIGINAL DESCRIPTION: " + Sanitize(originalDescription) + "\n" +
		"ORIGINAL KEYWORDS: " + Sanitize(strings.Join(originalKeywords, ", ")) + "\n" +
		"\n" +
		alternativeJSONSchema +
		"\n" +
		"RULES:\n" +
		"- All text must be in English.\n" +
		"- Focus on the edit effect in title/description.\n" +
		"- Keywords must be relevant, unique, and lowercase if possible.\n" +
		"- Avoid trademarks and brand names.\n" +
		"- Use only the JSON object, no extra text.\n"
}
