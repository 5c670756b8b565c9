package domain

const (
	wideAspectNum = 7 // 1792x1024
	wideAspectDen = 4

	budgetMaxSteps      = 25
	luxuryMinSteps      = 50
	luxuryGuidanceBoost = 1.5
)

// TuneOptions overlays budget tier and room geometry on a provider's defaults.
// The requested variation count always wins so callers get exactly that many images.
func TuneOptions(defaults GenerationOptions, tpl PromptTemplate, variations int) GenerationOptions {
	opts := defaults
	opts.NumOutputs = variations

	switch tpl.BudgetTier {
	case BudgetTierBudget:
		opts.Quality = QualityStandard
		if opts.InferenceSteps > budgetMaxSteps {
			opts.InferenceSteps = budgetMaxSteps
		}
	case BudgetTierLuxury:
		opts.Quality = QualityHD
		if opts.InferenceSteps < luxuryMinSteps {
			opts.InferenceSteps = luxuryMinSteps
		}
		if opts.GuidanceScale > 0 {
			opts.GuidanceScale += luxuryGuidanceBoost
		}
	case BudgetTierMidRange:
		if opts.Quality == "" {
			opts.Quality = QualityStandard
		}
	}

	side := opts.Width
	if opts.Height < side {
		side = opts.Height
	}

	switch tpl.RoomType {
	case RoomLivingRoom, RoomDiningRoom:
		opts.Width = side * wideAspectNum / wideAspectDen
		opts.Height = side
	case RoomBathroom:
		opts.Width = side
		opts.Height = side * wideAspectNum / wideAspectDen
	}

	return opts
}
