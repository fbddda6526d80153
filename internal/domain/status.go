package domain

import "strings"

var healthStatusLabels = map[string]string{
	"growing":           "Growing",
	"stable":            "Stable",
	"declining":         "Declining",
	"insufficient_data": "Insufficient Data",
}

// HealthStatusLabel returns a human-readable label for a health status.
func HealthStatusLabel(status string) string {
	if label, ok := healthStatusLabels[status]; ok {
		return label
	}

	return "Unknown"
}

// ParseHealthStatus returns the status for a given label or code (case-insensitive).
func ParseHealthStatus(label string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	_, ok := healthStatusLabels[normalized]

	return normalized, ok
}
