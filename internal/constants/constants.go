package constants

import "time"

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}{
	FailureThreshold: 3,                // 3 consecutive failures open the circuit
	ResetTimeout:     30 * time.Second, // wait before a trial request
}

var APIConfig = struct {
	RecordsTimeout  time.Duration
	RecordsPageSize int
	UserAgent       string
}{
	RecordsTimeout:  20 * time.Second,
	RecordsPageSize: 100,
	UserAgent:       "Mozilla/5.0 (compatible; PersonaAvatarBot/1.0)",
}

// RateLimit holds the fixed pauses between external calls.
var RateLimit = struct {
	BetweenSearchQueries time.Duration
	BetweenRecords       time.Duration
}{
	BetweenSearchQueries: 1 * time.Second,
	BetweenRecords:       2 * time.Second,
}

var SearchConfig = struct {
	MaxCandidates     int
	MaxQueries        int
	ResultsPerQuery   int64
	MaxTitleQueries   int
	CacheTTL          time.Duration
	MemoryCacheSize   int
	WikiBaseURL       string
	WikiTimeout       time.Duration
	TextSuppression   string
	SafeSearch        string
	DefaultImageSize  string
	DefaultPriority   int
	ExtensionBoost    int
	QualityBoost      int
	TrustedBoost      int
	WikiPriorityBonus int
}{
	MaxCandidates:     15,
	MaxQueries:        4,
	ResultsPerQuery:   10,
	MaxTitleQueries:   2,
	CacheTTL:          24 * time.Hour,
	MemoryCacheSize:   512,
	WikiBaseURL:       "https://en.wikipedia.org/wiki/",
	WikiTimeout:       15 * time.Second,
	TextSuppression:   "-text -words -quote -meme -poster",
	SafeSearch:        "active",
	DefaultImageSize:  "large",
	DefaultPriority:   1,
	ExtensionBoost:    2,
	QualityBoost:      1,
	TrustedBoost:      3,
	WikiPriorityBonus: 1,
}

var ImageConfig = struct {
	AnalysisMaxDimension int
	MinUniqueColors      int
	MinBrightness        float64
	MaxBrightness        float64
	TargetSize           int
	JPEGQuality          int
	MinDimension         int
	MaxAspectRatio       float64
	MinBytes             int64
	MaxBytes             int64
	MaxPixels            int64
	FetchTimeout         time.Duration
}{
	AnalysisMaxDimension: 200,
	MinUniqueColors:      50,
	MinBrightness:        15,
	MaxBrightness:        240,
	TargetSize:           400,
	JPEGQuality:          90,
	MinDimension:         200,
	MaxAspectRatio:       2.0,
	MinBytes:             5 * 1024,
	MaxBytes:             10 * 1024 * 1024,
	MaxPixels:            25_000_000, // ~100 MB as RGBA
	FetchTimeout:         15 * time.Second,
}
