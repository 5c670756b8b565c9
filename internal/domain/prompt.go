package domain

import (
	"fmt"
	"strings"
)

const qualitySuffix = "professional interior photography, photorealistic, highly detailed, natural lighting, 8k"

//nolint:gochecknoglobals // fixed phrasing tables
var (
	styleKeywords = map[string]string{
		"modern":       "modern style with clean lines, minimal ornamentation and a neutral base palette",
		"contemporary": "contemporary style with current trends, curved silhouettes and mixed textures",
		"minimalist":   "minimalist style with uncluttered surfaces, hidden storage and a restrained palette",
		"scandinavian": "scandinavian style with light woods, cozy textiles and bright airy space",
		"industrial":   "industrial style with exposed brick, raw metal and concrete finishes",
		"traditional":  "traditional style with classic furniture, rich wood tones and symmetrical layout",
		"bohemian":     "bohemian style with layered patterns, plants and eclectic global decor",
		"mid-century":  "mid-century modern style with tapered legs, organic shapes and warm walnut",
		"farmhouse":    "modern farmhouse style with shiplap, reclaimed wood and vintage accents",
		"coastal":      "coastal style with breezy whites, soft blues and natural fibers",
		"japandi":      "japandi style blending japanese restraint with scandinavian warmth",
		"art-deco":     "art deco style with geometric patterns, brass accents and bold glamour",
	}

	roomPhrases = map[RoomType]string{
		RoomLivingRoom: "a welcoming living room with a comfortable seating area arranged for conversation",
		RoomBedroom:    "a restful bedroom centered on the bed with soft layered bedding",
		RoomKitchen:    "a functional kitchen with well-organized cabinetry, countertops and task lighting",
		RoomBathroom:   "a serene bathroom with a vanity, clean tilework and spa-like fixtures",
		RoomDiningRoom: "an inviting dining room with a dining table set for gathering",
		RoomOffice:     "a productive home office with an ergonomic desk setup and good storage",
		RoomKidsRoom:   "a playful kids room with safe furniture and generous storage for toys",
		RoomOutdoor:    "an outdoor living space with weather-resistant furniture and planting",
	}

	budgetPhrases = map[BudgetTier]string{
		BudgetTierBudget:   "using affordable, practical materials and ready-made furniture",
		BudgetTierMidRange: "using quality mid-range materials with a few statement pieces",
		BudgetTierLuxury:   "using premium luxury materials such as marble, solid hardwoods and designer furniture",
	}

	sizePhrases = map[SizeClass]string{
		SizeSmall:  "in a compact space that makes efficient use of every corner",
		SizeMedium: "in a medium-sized space with balanced proportions",
		SizeLarge:  "in a spacious, open room with generous circulation",
	}

	colorPhrases = map[string]string{
		"neutral":    "a neutral color palette of whites, beiges and greys",
		"warm":       "a warm color palette of terracotta, ochre and cream",
		"cool":       "a cool color palette of blues, greens and soft greys",
		"monochrome": "a monochrome black and white palette",
		"earthy":     "an earthy palette of olive, clay and natural wood",
		"pastel":     "a soft pastel palette",
		"bold":       "a bold, saturated accent palette",
	}

	defaultVariationModifiers = []string{
		"with different lighting and camera angle",
		"with an alternative furniture arrangement",
		"with an alternative color palette",
		"with different decor accessories and artwork",
		"photographed at golden hour from a wide angle",
	}
)

// PromptBuilder turns prompt templates into text prompts. It is pure and safe for
// concurrent use.
type PromptBuilder struct {
	modifiers []string
}

// NewPromptBuilder creates a prompt builder with the default variation modifiers.
func NewPromptBuilder() *PromptBuilder {
	return NewPromptBuilderWithModifiers(defaultVariationModifiers)
}

// NewPromptBuilderWithModifiers creates a prompt builder with custom modifier phrases.
func NewPromptBuilderWithModifiers(modifiers []string) *PromptBuilder {
	copied := make([]string, len(modifiers))
	copy(copied, modifiers)
	return &PromptBuilder{modifiers: copied}
}

// BuildPrompt composes the base prompt for a template.
func (b *PromptBuilder) BuildPrompt(tpl PromptTemplate) (string, error) {
	if err := validateTemplate(tpl); err != nil {
		return "", err
	}

	parts := []string{
		"Interior design of " + roomPhrase(tpl.RoomType),
		"in " + styleKeyword(tpl.Style),
	}

	if phrase, ok := sizePhrases[tpl.Size]; ok {
		parts = append(parts, phrase)
	}

	parts = append(parts, budgetPhrases[tpl.BudgetTier])

	if color := strings.TrimSpace(tpl.ColorScheme); color != "" {
		if phrase, ok := colorPhrases[strings.ToLower(color)]; ok {
			parts = append(parts, "with "+phrase)
		} else {
			parts = append(parts, "with a "+color+" color scheme")
		}
	}

	if materials := cleanList(tpl.Materials); len(materials) > 0 {
		parts = append(parts, "featuring "+strings.Join(materials, ", "))
	}

	if requirements := strings.TrimSpace(tpl.Requirements); requirements != "" {
		parts = append(parts, requirements)
	}

	if reference := strings.TrimSpace(tpl.ReferenceContext); reference != "" {
		parts = append(parts, "inspired by the reference image: "+reference)
	}

	return strings.Join(parts, ", ") + ". " + qualitySuffix, nil
}

// BuildVariationPrompts returns the base prompt followed by up to count-1
// variants. The total is capped at the number of modifier phrases; modifiers are
// never repeated.
func (b *PromptBuilder) BuildVariationPrompts(basePrompt string, count int) []string {
	total := count
	if total > len(b.modifiers) {
		total = len(b.modifiers)
	}
	if total < 1 {
		total = 1
	}

	prompts := make([]string, 0, total)
	prompts = append(prompts, basePrompt)
	for i := 0; i < total-1; i++ {
		prompts = append(prompts, basePrompt+" Variation: "+b.modifiers[i]+".")
	}

	return prompts
}

// OptimizeForProvider applies backend-specific phrasing to a prompt.
func (b *PromptBuilder) OptimizeForProvider(prompt string, kind ProviderKind) string {
	switch kind {
	case ProviderKindReplicate:
		// Diffusion models respond to comma separated quality tokens.
		return prompt + ", masterpiece, best quality, sharp focus, architectural digest"
	case ProviderKindOpenAI:
		// DALL-E prefers a natural language sentence and rewrites terse token lists.
		sentence := strings.TrimSuffix(strings.TrimSpace(prompt), ".")
		return "Create a realistic photograph showing " + lowerFirst(sentence) + "."
	default:
		return prompt
	}
}

// DefaultVariations returns the variation count used when a request does not
// specify one.
func DefaultVariations(tier BudgetTier) int {
	switch tier {
	case BudgetTierBudget:
		return 1
	case BudgetTierLuxury:
		return 4
	default:
		return 2
	}
}

func validateTemplate(tpl PromptTemplate) error {
	var missing []string
	if strings.TrimSpace(string(tpl.RoomType)) == "" {
		missing = append(missing, "room type")
	}
	if strings.TrimSpace(tpl.Style) == "" {
		missing = append(missing, "style")
	}
	if strings.TrimSpace(string(tpl.Size)) == "" {
		missing = append(missing, "size")
	}
	if len(missing) > 0 {
		return NewGenerationError(CodeInvalidPrompt,
			fmt.Sprintf("missing required template fields: %s", strings.Join(missing, ", ")), nil)
	}
	if !tpl.BudgetTier.Valid() {
		return NewGenerationError(CodeInvalidPrompt,
			fmt.Sprintf("budget tier must be one of budget, mid-range, luxury (got %q)", tpl.BudgetTier), nil)
	}
	return nil
}

func roomPhrase(room RoomType) string {
	if phrase, ok := roomPhrases[room]; ok {
		return phrase
	}
	return "a " + strings.ReplaceAll(string(room), "-", " ")
}

func styleKeyword(style string) string {
	key := strings.ToLower(strings.TrimSpace(style))
	if keyword, ok := styleKeywords[key]; ok {
		return keyword
	}
	return key + " style"
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
