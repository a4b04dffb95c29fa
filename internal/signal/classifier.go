package signal

import "regexp"

// Kind is the result of message classification
type Kind int

const (
	KindUnknown Kind = iota
	KindSignal
	KindAlert
)

func (k Kind) String() string {
	switch k {
	case KindSignal:
		return "signal"
	case KindAlert:
		return "alert"
	default:
		return "unknown"
	}
}

var (
	alertMarker = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*x\s+ALERT\b`)

	signalMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:contract|ca|address)\s*:`),
		regexp.MustCompile(`(?i)market\s*cap|\bmc\b`),
		regexp.MustCompile(`(?i)\bchain\s*:`),
		regexp.MustCompile(`(?i)\b(?:confidence|score)\b`),
	}
)

// Classify decides whether text announces a new token, reports an alert,
// or neither. Alert markers win over signal keywords.
func Classify(text string) Kind {
	if alertMarker.MatchString(text) {
		return KindAlert
	}
	for _, re := range signalMarkers {
		if re.MatchString(text) {
			return KindSignal
		}
	}
	return KindUnknown
}
