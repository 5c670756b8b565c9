package domain

import (
	"strings"
	"time"
)

// Variation bounds for a single request.
const (
	MinVariations = 1
	MaxVariations = 5
)

// BudgetTier is a coarse cost/quality classification driving option tuning.
type BudgetTier string

// Supported budget tiers.
const (
	BudgetTierBudget   BudgetTier = "budget"
	BudgetTierMidRange BudgetTier = "mid-range"
	BudgetTierLuxury   BudgetTier = "luxury"
)

// Valid reports whether the tier is one of the fixed enum values.
func (t BudgetTier) Valid() bool {
	switch t {
	case BudgetTierBudget, BudgetTierMidRange, BudgetTierLuxury:
		return true
	default:
		return false
	}
}

// RoomType identifies the room being designed.
type RoomType string

// Known room types. Unknown values are accepted and phrased generically.
const (
	RoomLivingRoom RoomType = "living-room"
	RoomBedroom    RoomType = "bedroom"
	RoomKitchen    RoomType = "kitchen"
	RoomBathroom   RoomType = "bathroom"
	RoomDiningRoom RoomType = "dining-room"
	RoomOffice     RoomType = "office"
	RoomKidsRoom   RoomType = "kids-room"
	RoomOutdoor    RoomType = "outdoor"
)

// SizeClass is the approximate size of the room.
type SizeClass string

// Supported size classes.
const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Quality is the requested output quality tier.
type Quality string

// Quality tiers understood by every provider.
const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
)

// ProviderKind is the closed set of supported backends.
type ProviderKind string

// Supported provider kinds.
const (
	ProviderKindOpenAI    ProviderKind = "openai"
	ProviderKindReplicate ProviderKind = "replicate"
	ProviderKindEcho      ProviderKind = "echo"
)

// ImageKind selects the storage path prefix for persisted images.
type ImageKind string

// Persisted image kinds.
const (
	ImageKindOutput      ImageKind = "output"
	ImageKindRegenerated ImageKind = "regenerated"
)

// PromptTemplate is the structured description a prompt is built from.
type PromptTemplate struct {
	RoomType         RoomType   `json:"room_type"`
	Style            string     `json:"style"`
	Size             SizeClass  `json:"size"`
	BudgetTier       BudgetTier `json:"budget_tier"`
	ColorScheme      string     `json:"color_scheme,omitempty"`
	Materials        []string   `json:"materials,omitempty"`
	Requirements     string     `json:"requirements,omitempty"`
	ReferenceContext string     `json:"reference_context,omitempty"`
}

// GenerationRequest is a caller's request for design images. It is never mutated
// once submitted.
type GenerationRequest struct {
	UserID         string         `json:"user_id"`
	DesignID       string         `json:"design_id"`
	Template       PromptTemplate `json:"template"`
	Provider       string         `json:"provider,omitempty"`
	Model          string         `json:"model,omitempty"`
	VariationCount int            `json:"variation_count,omitempty"`
	// VariationIndex selects which variation prompt is dispatched. Zero is the base prompt.
	VariationIndex int  `json:"variation_index,omitempty"`
	Regenerate     bool `json:"regenerate,omitempty"`
}

// Variations returns the requested variation count, defaulting by budget tier
// when the caller left it unset.
func (r *GenerationRequest) Variations() int {
	if r.VariationCount > 0 {
		return r.VariationCount
	}
	return DefaultVariations(r.Template.BudgetTier)
}

// ImageKind returns the storage kind for images produced by this request.
func (r *GenerationRequest) ImageKind() ImageKind {
	if r.Regenerate {
		return ImageKindRegenerated
	}
	return ImageKindOutput
}

// Validate checks the request envelope. Template fields are validated by the prompt builder.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return NewGenerationError(CodeInvalidPrompt, "user id is required", nil)
	}
	if strings.TrimSpace(r.DesignID) == "" {
		return NewGenerationError(CodeInvalidPrompt, "design id is required", nil)
	}
	// The design id becomes a storage path segment.
	if r.DesignID == "." || r.DesignID == ".." || strings.ContainsAny(r.DesignID, `/\`) {
		return NewGenerationError(CodeInvalidPrompt, "design id must be a single path segment", nil)
	}
	if r.VariationCount < 0 || r.VariationCount > MaxVariations {
		return NewGenerationError(CodeInvalidPrompt, "variation count must be between 1 and 5", nil)
	}
	if r.VariationIndex < 0 || r.VariationIndex >= r.Variations() {
		return NewGenerationError(CodeInvalidPrompt, "variation index is out of range", nil)
	}
	return nil
}

// GenerationOptions are resolved generation parameters. They are derived from the
// template and the selected provider, never supplied raw by a caller.
type GenerationOptions struct {
	Model          string  `json:"model"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	NumOutputs     int     `json:"num_outputs"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
	InferenceSteps int     `json:"inference_steps,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	Quality        Quality `json:"quality"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`

	// Prompts holds one prompt per output image. Images past its end use the
	// prompt passed alongside the options.
	Prompts []string `json:"-"`
}

// Pixels returns the output area of a single image.
func (o GenerationOptions) Pixels() int {
	return o.Width * o.Height
}

// PromptAt returns the prompt for image i.
func (o GenerationOptions) PromptAt(i int, fallback string) string {
	if i >= 0 && i < len(o.Prompts) && o.Prompts[i] != "" {
		return o.Prompts[i]
	}
	return fallback
}

// PromptRun returns the prompt for image start and how many images from start,
// up to limit, share it. Providers that render several images per call batch by
// run so every image keeps its own prompt.
func (o GenerationOptions) PromptRun(start, limit int, fallback string) (string, int) {
	prompt := o.PromptAt(start, fallback)
	n := 1
	for n < limit && o.PromptAt(start+n, fallback) == prompt {
		n++
	}
	return prompt, n
}

// GenerationMetadata carries request context and timing for a result.
type GenerationMetadata struct {
	RequestID        string    `json:"request_id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	DesignID         string    `json:"design_id,omitempty"`
	OriginalPrompt   string    `json:"original_prompt,omitempty"`
	OptimizedPrompt  string    `json:"optimized_prompt,omitempty"`
	VariationPrompts []string  `json:"variation_prompts,omitempty"`
	RevisedPrompts   []string  `json:"revised_prompts,omitempty"`
	Attempts         int       `json:"attempts,omitempty"`
	FallbackUsed     bool      `json:"fallback_used,omitempty"`
	Seed             int64     `json:"seed,omitempty"`
	DurationMs       int64     `json:"duration_ms"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// GenerationResult is the normalized outcome of a generation.
type GenerationResult struct {
	Success    bool                `json:"success"`
	Images     []string            `json:"images"`
	Cost       float64             `json:"cost"`
	ModelUsed  string              `json:"model_used,omitempty"`
	Provider   string              `json:"provider,omitempty"`
	Parameters GenerationOptions   `json:"parameters"`
	Metadata   *GenerationMetadata `json:"metadata,omitempty"`
	Error      *GenerationError    `json:"error,omitempty"`
}

// CostEntry is one recorded, completed generation.
type CostEntry struct {
	ID        string    `json:"id"         bson:"id"`
	UserID    string    `json:"user_id"    bson:"user_id"`
	DesignID  string    `json:"design_id"  bson:"design_id"`
	Provider  string    `json:"provider"   bson:"provider"`
	Model     string    `json:"model"      bson:"model"`
	Images    int       `json:"images"     bson:"images"`
	Cost      float64   `json:"cost"       bson:"cost"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// CostSummary is a point-in-time snapshot of a user's spend.
type CostSummary struct {
	UserID          string     `json:"user_id"`
	Total           float64    `json:"total"`
	Today           float64    `json:"today"`
	Month           float64    `json:"month"`
	GenerationCount int        `json:"generation_count"`
	LastGeneration  *time.Time `json:"last_generation,omitempty"`
	DailyLimit      float64    `json:"daily_limit"`
	MonthlyLimit    float64    `json:"monthly_limit"`
	CanGenerate     bool       `json:"can_generate"`
	RemainingDaily  float64    `json:"remaining_daily"`
	ComputedAt      time.Time  `json:"computed_at"`
}
