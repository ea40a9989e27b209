package constants

import "time"

var UploadLimits = struct {
	MaxBytes     int64
	AllowedTypes []string
}{
	MaxBytes:     5 * 1024 * 1024, // 5MB
	AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
}

var DemographicLimits = struct {
	MinAge int
	MaxAge int
}{
	MinAge: 5,
	MaxAge: 100,
}

var NarratorConfig = struct {
	Interval time.Duration
}{
	Interval: 1500 * time.Millisecond,
}

var CollaboratorConfig = struct {
	Timeout         time.Duration
	OpenRouterURL   string
	AppReferer      string
	AppTitle        string
	AnalysisModel   string
	ImageModel      string
	GeminiAnalysis  string
	GeminiImage     string
	PreviewMaxRunes int
}{
	Timeout:         180 * time.Second, // 0 disables the bound
	OpenRouterURL:   "https://openrouter.ai/api/v1",
	AppReferer:      "https://ai-hair-salon.vercel.app",
	AppTitle:        "AI Hair Salon",
	AnalysisModel:   "google/gemini-2.0-flash-001",
	ImageModel:      "google/gemini-3-pro-image-preview",
	GeminiAnalysis:  "gemini-2.5-flash",
	GeminiImage:     "gemini-2.5-flash-image",
	PreviewMaxRunes: 200,
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	RateLimitTimeout time.Duration
}{
	FailureThreshold: 3,                // 3회 연속 실패 시 Circuit OPEN
	ResetTimeout:     30 * time.Second, // 기본 재시도 대기 시간
	RateLimitTimeout: 5 * time.Minute,  // 429 전용
}

var ReportConfig = struct {
	Kind          string
	ImagePrefix   string
	DefaultImgExt string
	RadarSize     float64
	RadarRatio    float64
	SeverityIcons int
}{
	Kind:          "aesthetic-protocol",
	ImagePrefix:   "hairstyle",
	DefaultImgExt: "png",
	RadarSize:     300,
	RadarRatio:    0.4,
	SeverityIcons: 7,
}

var ServerConfig = struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	WSWriteTimeout  time.Duration
	SessionIdleTTL  time.Duration
	PruneInterval   time.Duration
}{
	ReadTimeout:     15 * time.Second,
	WriteTimeout:    60 * time.Second,
	IdleTimeout:     60 * time.Second,
	ShutdownTimeout: 10 * time.Second,
	WSWriteTimeout:  5 * time.Second,
	SessionIdleTTL:  30 * time.Minute,
	PruneInterval:   5 * time.Minute,
}
