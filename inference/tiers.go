package inference

// Tier is the display band for an effectiveness rating
type Tier string

const (
	TierHigh     Tier = "high"
	TierModerate Tier = "moderate"
	TierLow      Tier = "low"
)

// Lower bounds of the high and moderate tiers, both inclusive
const (
	HighTierThreshold     = 8.0
	ModerateTierThreshold = 5.0
)

// TierFor bands a rating: >= 8 high, [5, 8) moderate, otherwise low
func TierFor(rating float64) Tier {
	switch {
	case rating >= HighTierThreshold:
		return TierHigh
	case rating >= ModerateTierThreshold:
		return TierModerate
	default:
		return TierLow
	}
}

// Level is the kind of notice a renderer should show: success, warning or error
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one user-facing line of an interpretation
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Interpretation is what a renderer needs to display a prediction
type Interpretation struct {
	Tier       Tier   `json:"tier"`
	Rating     Notice `json:"rating"`
	SideEffect Notice `json:"side_effect"`
}

// Interpret maps a result to its display tier and notices
func Interpret(result PredictionResult) Interpretation {
	tier := TierFor(result.EffectivenessRating)

	out := Interpretation{Tier: tier}
	switch tier {
	case TierHigh:
		out.Rating = Notice{Level: LevelSuccess, Message: "The drug is predicted to be highly effective."}
	case TierModerate:
		out.Rating = Notice{Level: LevelWarning, Message: "The drug may be moderately effective."}
	default:
		out.Rating = Notice{Level: LevelError, Message: "The drug is predicted to have low effectiveness."}
	}

	if result.SideEffectRisk {
		out.SideEffect = Notice{Level: LevelWarning, Message: "This drug is likely to have side effects. Monitor carefully."}
	} else {
		out.SideEffect = Notice{Level: LevelSuccess, Message: "No significant side effects predicted."}
	}

	return out
}
