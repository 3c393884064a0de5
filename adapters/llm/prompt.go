package llm

import "google.golang.org/genai"

// assistantSystemPrompt frames every request. Replies are spoken aloud,
// so the prompt pushes hard for short plain sentences.
const assistantSystemPrompt = `You are a hands-free voice assistant for restaurant staff.
You help with commercial kitchen equipment: fryers, grills, ovens, ice machines,
refrigeration, dish machines, and beverage equipment.

Rules:
- Answer in short, complete sentences that sound natural when read aloud.
- Give one step at a time for procedures.
- No markdown, no bullet points, no headings. Plain spoken prose only.
- If a repair needs a certified technician or involves gas or high voltage, say so first.
- If you are not sure about a specific model, say what is generally true and suggest
  checking the unit's manual.`

// geminiSafetySettings relax nothing; kitchen troubleshooting talk can
// trip overly eager dangerous-content filters, so only the strongest
// categories stay at default.
var geminiSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
	},
}
