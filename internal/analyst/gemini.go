package analyst

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/oneiroslab/oneiros/backend/internal/credentials"
	"github.com/oneiroslab/oneiros/backend/internal/journal"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const credentialRejectedMarker = "Requested entity was not found"

var errMissingGate = errors.New("analyst: credential gate is required")

// GeminiConfig describes the models behind the three capabilities.
type GeminiConfig struct {
	Gate       credentials.Gate
	TextModel  string
	ImageModel string
	Logger     *zap.Logger
}

// Gemini implements Provider against the Gemini API. Text capabilities go
// through langchaingo; image generation talks to the genai SDK directly
// because langchaingo does not surface inline image bytes.
type Gemini struct {
	gate       credentials.Gate
	textModel  string
	imageModel string
	logger     *zap.Logger
}

// NewGemini constructs the provider. Clients are created per call so a
// replacement credential takes effect without a restart.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.Gate == nil {
		return nil, errMissingGate
	}
	if strings.TrimSpace(cfg.TextModel) == "" {
		return nil, fmt.Errorf("analyst: text model is required")
	}
	if strings.TrimSpace(cfg.ImageModel) == "" {
		return nil, fmt.Errorf("analyst: image model is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		gate:       cfg.Gate,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		logger:     logger,
	}, nil
}

// transcriptionPayload mirrors the JSON shape the model is instructed to
// return. Field names follow the provider-side schema, not ours.
type transcriptionPayload struct {
	Transcript string          `json:"transcript"`
	Analysis   analysisPayload `json:"analysis"`
}

type analysisPayload struct {
	Summary        string             `json:"summary"`
	EmotionalTheme string             `json:"emotionalTheme"`
	Archetypes     []archetypePayload `json:"archetypes"`
	KeySymbols     []keySymbolPayload `json:"keySymbols"`
}

type archetypePayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type keySymbolPayload struct {
	Symbol         string `json:"symbol"`
	Interpretation string `json:"interpretation"`
}

func (g *Gemini) TranscribeAndAnalyze(ctx context.Context, audio []byte) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{}, fmt.Errorf("analyst: empty audio payload")
	}

	model, err := g.newTextClient(ctx)
	if err != nil {
		return Transcription{}, err
	}

	message := llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart("audio/wav", audio),
			llms.TextPart(transcribePrompt),
		},
	}

	response, err := model.GenerateContent(ctx, []llms.MessageContent{message}, llms.WithJSONMode())
	if err != nil {
		return Transcription{}, g.classify(err)
	}
	if len(response.Choices) == 0 {
		return Transcription{}, fmt.Errorf("%w: empty response", ErrMalformedAnalysis)
	}

	return decodeTranscription(response.Choices[0].Content)
}

// decodeTranscription strictly parses the structured response. A free-text
// reply is not an acceptable substitute, so any decode or schema failure
// aborts the capture.
func decodeTranscription(raw string) (Transcription, error) {
	var payload transcriptionPayload
	decoder := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	if strings.TrimSpace(payload.Transcript) == "" {
		return Transcription{}, fmt.Errorf("%w: missing transcript", ErrMalformedAnalysis)
	}

	analysis := journal.DreamAnalysis{
		Summary:        payload.Analysis.Summary,
		EmotionalTheme: payload.Analysis.EmotionalTheme,
		Archetypes:     make([]journal.Archetype, 0, len(payload.Analysis.Archetypes)),
		KeySymbols:     make([]journal.KeySymbol, 0, len(payload.Analysis.KeySymbols)),
	}
	for _, archetype := range payload.Analysis.Archetypes {
		analysis.Archetypes = append(analysis.Archetypes, journal.Archetype{
			Name:        archetype.Name,
			Description: archetype.Description,
		})
	}
	for _, symbol := range payload.Analysis.KeySymbols {
		analysis.KeySymbols = append(analysis.KeySymbols, journal.KeySymbol{
			Symbol:         symbol.Symbol,
			Interpretation: symbol.Interpretation,
		})
	}
	if err := analysis.Validate(); err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	return Transcription{Transcript: payload.Transcript, Analysis: analysis}, nil
}

func (g *Gemini) GenerateImage(ctx context.Context, analysis journal.DreamAnalysis, size journal.ImageSize) (string, error) {
	apiKey, err := g.gate.APIKey()
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("analyst: image client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.imageModel)
	response, err := model.GenerateContent(ctx, genai.Text(imagePrompt(analysis, size)))
	if err != nil {
		return "", g.classify(err)
	}

	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				return fmt.Sprintf("data:%s;base64,%s",
					blob.MIMEType, base64.StdEncoding.EncodeToString(blob.Data)), nil
			}
		}
	}
	return "", ErrNoImagePayload
}

func (g *Gemini) Reply(ctx context.Context, dreamContext string, history []journal.ChatTurn, message string) (string, error) {
	model, err := g.newTextClient(ctx)
	if err != nil {
		return "", err
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, chatSystemPrompt(dreamContext)))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == journal.ChatRoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Text))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, message))

	response, err := model.GenerateContent(ctx, messages)
	if err != nil {
		return "", g.classify(err)
	}
	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Content) == "" {
		return "", fmt.Errorf("analyst: empty chat reply")
	}
	return response.Choices[0].Content, nil
}

func (g *Gemini) newTextClient(ctx context.Context) (llms.Model, error) {
	apiKey, err := g.gate.APIKey()
	if err != nil {
		return nil, err
	}
	model, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(g.textModel),
	)
	if err != nil {
		return nil, fmt.Errorf("analyst: text client: %w", err)
	}
	return model, nil
}

// classify maps the provider's entity-not-found responses onto the
// credential-rejected class so the orchestrator can reset the gate.
func (g *Gemini) classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), credentialRejectedMarker) {
		return fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}
	return err
}
