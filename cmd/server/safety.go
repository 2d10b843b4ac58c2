package main

// ============================================================================
// Safety Classifier
// ============================================================================
//
// Shared by the request handler and the notification labels. The coastal
// orientation at the deployment site makes 225–315° offshore (blowing out to
// sea) and 45–135° onshore.

func isOffshore(d int) bool { return d >= 225 && d <= 315 }
func isOnshore(d int) bool  { return d >= 45 && d <= 135 }

// ClassifySafety maps a direction and speed to the five-level label. Rules
// apply top-down; the first match wins.
func ClassifySafety(speedKnots float64, dirDeg int) SafetyLevel {
	switch {
	case speedKnots < 5:
		return SafetyLow
	case isOffshore(dirDeg) || speedKnots > 30:
		return SafetyDanger
	case isOnshore(dirDeg) && speedKnots >= 12 && speedKnots <= 25:
		return SafetyHigh
	case isOnshore(dirDeg) && speedKnots >= 5 && speedKnots < 12:
		return SafetyGood
	case speedKnots >= 8 && speedKnots <= 15:
		return SafetyGood
	default:
		return SafetyMedium
	}
}
