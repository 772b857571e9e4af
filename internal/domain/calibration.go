package domain

// CalibrationRule raises the trust score to Floor when its CEL expression holds.
//
// Available variables: phishing_status (string), review_count (int),
// sentiment_score (double), bot_probability (int), trust_score (int).
type CalibrationRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Floor       int    `json:"floor"`
	Enabled     bool   `json:"enabled"`
}

// DefaultCalibrationRules keeps official marketplaces with healthy review sets
// from being scored too harshly.
func DefaultCalibrationRules() []CalibrationRule {
	return []CalibrationRule{
		{
			ID:         "safe-high-volume",
			Name:       "Safe domain, high volume",
			Expression: `phishing_status == "Safe" && review_count >= 50 && sentiment_score > 0.4 && bot_probability <= 60`,
			Floor:      80,
			Enabled:    true,
		},
		{
			ID:         "safe-mid-volume",
			Name:       "Safe domain, medium volume",
			Expression: `phishing_status == "Safe" && review_count >= 20 && sentiment_score > 0.3 && bot_probability <= 70`,
			Floor:      70,
			Enabled:    true,
		},
	}
}
