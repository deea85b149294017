package output

// Printer renders output to stdout.
type Printer interface {
	Print(v any) error
}

// SessionRow is one cached session.
type SessionRow struct {
	VideoID  string  `json:"video_id"`
	Position float64 `json:"position"`
	Speed    float64 `json:"speed"`
	Volume   float64 `json:"volume"`
	Version  uint64  `json:"version"`
}

// SessionsResult carries the cached session list.
type SessionsResult struct {
	Sessions []SessionRow `json:"sessions"`
}

// ForgetResult reports a dropped cache entry.
type ForgetResult struct {
	VideoID string `json:"video_id"`
}
