package analyst

import (
	"context"
	"errors"

	"github.com/oneiroslab/oneiros/backend/internal/journal"
)

var (
	// ErrCredentialRejected indicates the provider no longer accepts the
	// configured API key (the entity-not-found class of response).
	ErrCredentialRejected = errors.New("analyst: provider rejected credential")
	// ErrMalformedAnalysis indicates the provider returned something other
	// than the requested structured transcript+analysis payload.
	ErrMalformedAnalysis = errors.New("analyst: malformed analysis payload")
	// ErrNoImagePayload indicates the image model returned no inline image.
	ErrNoImagePayload = errors.New("analyst: no image payload in response")
)

// Transcription is the combined result of the transcribe+analyze capability.
// Transcript and analysis always arrive together.
type Transcription struct {
	Transcript string
	Analysis   journal.DreamAnalysis
}

// Provider is the opaque generative-AI boundary. Each call is stateless:
// chat resupplies the full prior history and dream context every time, so
// nothing survives a restart on the provider side.
type Provider interface {
	// TranscribeAndAnalyze transcribes the recording and produces the
	// structured psychological analysis. The response is schema-validated;
	// free text is rejected with ErrMalformedAnalysis.
	TranscribeAndAnalyze(ctx context.Context, audio []byte) (Transcription, error)

	// GenerateImage renders an illustration for the analysis at the given
	// resolution tier and returns it as an embeddable data URI.
	GenerateImage(ctx context.Context, analysis journal.DreamAnalysis, size journal.ImageSize) (string, error)

	// Reply produces the next assistant turn for a dream conversation.
	Reply(ctx context.Context, dreamContext string, history []journal.ChatTurn, message string) (string, error)
}
