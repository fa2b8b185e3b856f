package netquality

// Classify grades a link. Tiers are checked worst first and the first match
// wins. rtt is in milliseconds and nil when unknown; loss is a percentage.
//
// With an unknown RTT the link is excellent unless degradeWithoutRTT is set,
// in which case the loss half of each tier still applies.
func Classify(rtt *float64, loss float64, t Thresholds, degradeWithoutRTT bool) Quality {
	if rtt == nil {
		if !degradeWithoutRTT {
			return QualityExcellent
		}
		return classifyLoss(loss, t)
	}

	r := *rtt
	switch {
	case r > t.PoorRTT || loss > t.PoorLoss:
		return QualityPoor
	case r > t.FairRTT || loss > t.FairLoss:
		return QualityFair
	case r > t.GoodRTT || loss > t.GoodLoss:
		return QualityGood
	default:
		return QualityExcellent
	}
}

func classifyLoss(loss float64, t Thresholds) Quality {
	switch {
	case loss > t.PoorLoss:
		return QualityPoor
	case loss > t.FairLoss:
		return QualityFair
	case loss > t.GoodLoss:
		return QualityGood
	default:
		return QualityExcellent
	}
}
