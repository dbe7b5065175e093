package domain

// Verdict is the classifier's judgment of the current avatar image.
type Verdict string

const (
	VerdictAcceptable           Verdict = "acceptable"
	VerdictLikelyGeneric        Verdict = "likely_generic"
	VerdictSuspiciousBrightness Verdict = "suspicious_brightness"
	VerdictNeedsVerification    Verdict = "needs_verification"
	VerdictAnalysisFailed       Verdict = "analysis_failed"
)

func (v Verdict) String() string {
	return string(v)
}

// Assessment pairs a verdict with a human readable reason and image statistics.
type Assessment struct {
	Verdict      Verdict
	Reason       string
	URL          string
	UniqueColors int
	Brightness   float64
}

// PersonaType steers search query construction only; it is never persisted.
type PersonaType string

const (
	PersonaHistorical   PersonaType = "historical"
	PersonaFictional    PersonaType = "fictional"
	PersonaCoach        PersonaType = "coach"
	PersonaMythological PersonaType = "mythological"
	PersonaUnknown      PersonaType = "unknown"
)

func (t PersonaType) String() string {
	return string(t)
}
