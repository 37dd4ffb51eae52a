package models

import "strings"

// AlarmLevel is the severity ladder shared by rules, alarms and analyses
type AlarmLevel string

const (
	LevelNormal  AlarmLevel = "normal"
	LevelWarning AlarmLevel = "warning"
	LevelDanger  AlarmLevel = "danger"
)

// AtRisk reports whether the level calls for an alarm
func (l AlarmLevel) AtRisk() bool {
	return l == LevelWarning || l == LevelDanger
}

// AlarmType classifies what produced an alarm
type AlarmType string

const (
	AlarmThreshold AlarmType = "threshold"
	AlarmTrend     AlarmType = "trend"
	AlarmAnomaly   AlarmType = "anomaly"
	AlarmSystem    AlarmType = "system"
)

// AlarmEvent is a fired alarm. Acknowledged is the only field that changes after creation.
type AlarmEvent struct {
	ID           string     `json:"id,omitempty"` // assigned by persistence
	Seq          uint64     `json:"seq"`          // assigned by the alarm engine
	Type         AlarmType  `json:"alarm_type"`
	Level        AlarmLevel `json:"alarm_level"`
	Parameter    Parameter  `json:"parameter_name"`
	Value        float64    `json:"parameter_value"`
	Threshold    float64    `json:"threshold_value"`
	Message      string     `json:"message"`
	Timestamp    float64    `json:"timestamp"`
	Acknowledged bool       `json:"acknowledged"`
}

// ParseRiskLevel maps an analysis risk label onto an alarm level.
// The analysis capability answers with Chinese labels; English ones are accepted too.
func ParseRiskLevel(label string) AlarmLevel {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "危险", "danger":
		return LevelDanger
	case "警告", "warning":
		return LevelWarning
	default:
		return LevelNormal
	}
}
