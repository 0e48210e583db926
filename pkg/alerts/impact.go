package alerts

// Impact is an operational-domain impact assessment attached to an alert
// for the dashboard's impact panel
type Impact struct {
	Domain string `json:"domain"`
	Level  string `json:"level"`
	Note   string `json:"note"`
}

// ImpactsFor maps an alert category to its operational impact assessment
func ImpactsFor(category Category) []Impact {
	switch category {
	case CategoryGPSSpoofSuspected, CategoryGPSJump:
		return []Impact{
			{Domain: "Aviation", Level: "HIGH", Note: "Navigation integrity risk near airport/flight routes"},
			{Domain: "Maritime", Level: "MEDIUM", Note: "Course deviation risk for port approaches"},
			{Domain: "Telecom", Level: "LOW", Note: "Timing source degradation"},
		}
	case CategoryGPSAccuracyDegraded:
		return []Impact{
			{Domain: "Aviation", Level: "MEDIUM", Note: "Degraded positioning precision for approaches"},
			{Domain: "Telecom", Level: "LOW", Note: "Timing source degradation"},
		}
	case CategoryGPSJammingSuspected:
		return []Impact{
			{Domain: "Aviation", Level: "HIGH", Note: "Loss of GNSS guidance in affected area"},
			{Domain: "Telecom", Level: "MEDIUM", Note: "Timing holdover required at cell sites"},
		}
	case CategoryWeatherRateAnomaly:
		return []Impact{
			{Domain: "Aviation", Level: "MEDIUM", Note: "HF comms degraded; GNSS accuracy impacted"},
			{Domain: "Power", Level: "MEDIUM", Note: "Geomagnetically induced currents risk"},
			{Domain: "Telecom", Level: "MEDIUM", Note: "Ionospheric disturbance adds signal noise"},
		}
	}
	return []Impact{{Domain: "General", Level: "LOW", Note: "Monitor"}}
}
