package journal

import (
	"errors"
	"fmt"
	"strings"
)

// ChatRole enumerates the two speakers in a dream conversation.
type ChatRole string

const (
	// ChatRoleUser marks a turn written by the journal owner.
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant marks a turn produced by the analyst model.
	ChatRoleAssistant ChatRole = "assistant"
)

// ImageSize enumerates the fixed resolution tiers for dream illustrations.
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

var (
	// ErrInvalidRecordID indicates an empty or oversized record identifier.
	ErrInvalidRecordID = errors.New("journal: invalid record id")
	// ErrInvalidTranscript indicates an empty transcript payload.
	ErrInvalidTranscript = errors.New("journal: invalid transcript")
	// ErrInvalidAnalysis indicates the analysis failed schema validation.
	ErrInvalidAnalysis = errors.New("journal: invalid analysis")
	// ErrInvalidChatRole indicates an unknown chat role value.
	ErrInvalidChatRole = errors.New("journal: invalid chat role")
	// ErrInvalidChatText indicates an empty chat message.
	ErrInvalidChatText = errors.New("journal: invalid chat text")
	// ErrInvalidImageSize indicates an unknown resolution tier.
	ErrInvalidImageSize = errors.New("journal: invalid image size")
)

const maxIdentifierLength = 190

// RecordID represents a validated dream record identifier.
type RecordID string

// NewRecordID validates raw input and returns a RecordID.
func NewRecordID(rawInput string) (RecordID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordID, maxIdentifierLength)
	}
	return RecordID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RecordID) String() string {
	return string(id)
}

// ParseChatRole validates a raw role value.
func ParseChatRole(value string) (ChatRole, error) {
	switch ChatRole(strings.ToLower(strings.TrimSpace(value))) {
	case ChatRoleUser:
		return ChatRoleUser, nil
	case ChatRoleAssistant:
		return ChatRoleAssistant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChatRole, value)
	}
}

// ParseImageSize validates a raw resolution tier.
func ParseImageSize(value string) (ImageSize, error) {
	switch ImageSize(strings.ToUpper(strings.TrimSpace(value))) {
	case ImageSize1K:
		return ImageSize1K, nil
	case ImageSize2K:
		return ImageSize2K, nil
	case ImageSize4K:
		return ImageSize4K, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidImageSize, value)
	}
}

// Archetype names one Jungian archetype surfaced by the analysis.
type Archetype struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// KeySymbol pairs a dream symbol with its interpretation.
type KeySymbol struct {
	Symbol         string `json:"symbol"`
	Interpretation string `json:"interpretation"`
}

// DreamAnalysis is the structured interpretation attached to a record.
// It is immutable once attached.
type DreamAnalysis struct {
	Summary        string      `json:"summary"`
	EmotionalTheme string      `json:"emotional_theme"`
	Archetypes     []Archetype `json:"archetypes"`
	KeySymbols     []KeySymbol `json:"key_symbols"`
}

// Validate enforces the structured-output schema the provider is instructed
// to return. Archetypes and key symbols may be empty but their entries must
// be fully populated.
func (a DreamAnalysis) Validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("%w: missing summary", ErrInvalidAnalysis)
	}
	if strings.TrimSpace(a.EmotionalTheme) == "" {
		return fmt.Errorf("%w: missing emotional theme", ErrInvalidAnalysis)
	}
	for index, archetype := range a.Archetypes {
		if strings.TrimSpace(archetype.Name) == "" || strings.TrimSpace(archetype.Description) == "" {
			return fmt.Errorf("%w: archetype %d incomplete", ErrInvalidAnalysis, index)
		}
	}
	for index, symbol := range a.KeySymbols {
		if strings.TrimSpace(symbol.Symbol) == "" || strings.TrimSpace(symbol.Interpretation) == "" {
			return fmt.Errorf("%w: key symbol %d incomplete", ErrInvalidAnalysis, index)
		}
	}
	return nil
}

// ChatTurn is one message in a record's conversation. Turns are append-only
// and insertion order is conversation order.
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// NewChatTurn validates the role and text of a turn.
func NewChatTurn(role ChatRole, text string) (ChatTurn, error) {
	if _, err := ParseChatRole(string(role)); err != nil {
		return ChatTurn{}, err
	}
	if strings.TrimSpace(text) == "" {
		return ChatTurn{}, fmt.Errorf("%w: empty", ErrInvalidChatText)
	}
	return ChatTurn{Role: role, Text: text}, nil
}

// DreamRecord is one journaled dream. Transcript and analysis are set
// together at creation and never change; the image is write-once; the chat
// history only grows.
type DreamRecord struct {
	ID               string        `json:"id"`
	CreatedAtSeconds int64         `json:"created_at_s"`
	Transcript       string        `json:"transcript"`
	Analysis         DreamAnalysis `json:"analysis"`
	ImageURL         string        `json:"image_url,omitempty"`
	ChatHistory      []ChatTurn    `json:"chat_history"`
}

// HasImage reports whether an illustration has been attached.
func (r DreamRecord) HasImage() bool {
	return r.ImageURL != ""
}

// Clone returns a deep copy so callers cannot mutate stored state. Slices
// stay non-nil so the record always serializes with arrays, never null.
func (r DreamRecord) Clone() DreamRecord {
	copied := r
	copied.ChatHistory = append(make([]ChatTurn, 0, len(r.ChatHistory)), r.ChatHistory...)
	copied.Analysis.Archetypes = append(make([]Archetype, 0, len(r.Analysis.Archetypes)), r.Analysis.Archetypes...)
	copied.Analysis.KeySymbols = append(make([]KeySymbol, 0, len(r.Analysis.KeySymbols)), r.Analysis.KeySymbols...)
	return copied
}
