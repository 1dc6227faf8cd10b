package models

// ============================================================
// CONFIGURATION
// ============================================================

type Config struct {
	KioskID      string
	KioskToken   string
	Host         string
	Port         string
	UseSSL       bool
	SocketHost   string
	SocketPort   string
	SocketUseSSL bool
}

type DetectorConfig struct {
	Enabled        bool
	CascadePath    string
	MinFaceSize    int
	MinConfidence  float64
	DetectionWidth int
	JPEGQuality    int // 85-95 recommended
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Enabled:        true,
		CascadePath:    "haarcascade_frontalface_default.xml",
		MinFaceSize:    80,
		MinConfidence:  0.5,
		DetectionWidth: 320,
		JPEGQuality:    90,
	}
}
