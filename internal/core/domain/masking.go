package domain

// MaskingRule flags text matching Pattern. Rules are evaluated by descending Priority.
type MaskingRule struct {
	Pattern     string `json:"pattern" mapstructure:"pattern"`
	Replacement string `json:"replacement" mapstructure:"replacement"`
	Priority    int    `json:"priority" mapstructure:"priority"`
}
