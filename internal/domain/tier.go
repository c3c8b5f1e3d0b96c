package domain

// Alert band boundaries in centimeters.
const (
	WarningThresholdCm = 400
	DangerThresholdCm  = 800
)

// Tier is one alert classification band. MaxCm < 0 means unbounded above.
type Tier struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Color       string `json:"color"`
	Description string `json:"description"`
	MinCm       int    `json:"min_cm"`
	MaxCm       int    `json:"max_cm"`
}

var (
	TierNormal = Tier{
		Name:        "normal",
		Label:       "Normal",
		Color:       "#2e7d32",
		Description: "Water level within the usual range.",
		MinCm:       0,
		MaxCm:       WarningThresholdCm,
	}
	TierWarning = Tier{
		Name:        "warning",
		Label:       "Warnung",
		Color:       "#f9a825",
		Description: "Elevated water level, flooding possible in low-lying areas.",
		MinCm:       WarningThresholdCm,
		MaxCm:       DangerThresholdCm,
	}
	TierDanger = Tier{
		Name:        "danger",
		Label:       "Gefahr",
		Color:       "#c62828",
		Description: "Critical water level, flood protection measures required.",
		MinCm:       DangerThresholdCm,
		MaxCm:       -1,
	}
)

// Tiers returns the alert bands in ascending order, for threshold overlays.
func Tiers() []Tier {
	return []Tier{TierNormal, TierWarning, TierDanger}
}

// ClassifyLevel maps a water level to its alert tier. Total: every level,
// including negative ones, lands in exactly one band (lower bound closed,
// upper bound open, DANGER unbounded above).
func ClassifyLevel(levelCm int) Tier {
	switch {
	case levelCm < WarningThresholdCm:
		return TierNormal
	case levelCm < DangerThresholdCm:
		return TierWarning
	default:
		return TierDanger
	}
}
