package models

// AnalysisResult is the interpreted answer of one completed risk analysis
type AnalysisResult struct {
	AnalysisType    string     `json:"analysis_type"`
	Result          string     `json:"result"`
	Confidence      float64    `json:"confidence"` // 0-1
	Recommendations []string   `json:"recommendations"`
	RiskLevel       AlarmLevel `json:"risk_level"`
	RawRiskLevel    string     `json:"raw_risk_level,omitempty"` // label as returned by the capability
	Timestamp       float64    `json:"timestamp"`
}

// ClampConfidence forces a confidence score into [0,1]
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
