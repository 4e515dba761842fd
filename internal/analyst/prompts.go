package analyst

import (
	"fmt"
	"strings"

	"github.com/oneiroslab/oneiros/backend/internal/journal"
)

const transcribePrompt = `Transcribe the following dream recording exactly.
After transcription, perform a deep psychological analysis based on Jungian archetypes and dream symbolism.
Return the results as a single JSON object with exactly this shape and no other text:
{
  "transcript": string,
  "analysis": {
    "summary": string,
    "emotionalTheme": string,
    "archetypes": [{"name": string, "description": string}],
    "keySymbols": [{"symbol": string, "interpretation": string}]
  }
}
All fields are required; archetypes and keySymbols may be empty arrays.`

func imagePrompt(analysis journal.DreamAnalysis, size journal.ImageSize) string {
	symbols := make([]string, 0, len(analysis.KeySymbols))
	for _, keySymbol := range analysis.KeySymbols {
		symbols = append(symbols, keySymbol.Symbol)
	}
	return fmt.Sprintf(`A vivid, surrealist oil painting representing a dream with the core emotional theme: %q.
The painting should feature these symbols: %s.
Style: Surrealism, deeply atmospheric, evocative of Salvador Dali and Rene Magritte, ethereal lighting, dreamlike proportions.
Render at %s resolution with a square 1:1 aspect ratio.`,
		analysis.EmotionalTheme, strings.Join(symbols, ", "), size)
}

func chatSystemPrompt(dreamContext string) string {
	return fmt.Sprintf(`You are a professional Jungian dream analyst. You are helping the user explore their dream symbols.
Context of the dream: %s.
Be insightful, encouraging, and psychological. Focus on the collective unconscious and individual growth.`,
		dreamContext)
}
