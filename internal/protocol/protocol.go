// Package protocol defines the message types shared by the control
// API and its clients: scan results, capture outcomes, and progress
// events. Field names are part of the wire format; changing one breaks
// existing clients.
package protocol

// Action names for progress and command events.
const (
	ActionScanForVideos     = "scanForVideos"
	ActionAutoScanForVideos = "autoScanForVideos"
	ActionProcessVideo      = "processVideo"
	ActionProcessAllVideos  = "processAllVideos"
	ActionCancelCapture     = "cancelCapture"
	ActionUpdateBadge       = "updateBadge"
	ActionTranscriptOpened  = "transcriptButtonClicked"
	ActionProgress          = "transcriptProgress"
)

// VideoSummary describes one video found by a scan.
type VideoSummary struct {
	ID       string `json:"id"`
	VideoID  string `json:"videoId"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
}

// ScanResponse lists the videos on the current page.
type ScanResponse struct {
	Videos []VideoSummary `json:"videos"`
	Count  int            `json:"count"`
}

// CaptureResult reports one finished or failed capture.
type CaptureResult struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName,omitempty"`
	Path     string `json:"path,omitempty"`
	Segments int    `json:"segments,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProgressEvent is one progress update for a running capture. The
// batch fields are set only during a process-all run.
type ProgressEvent struct {
	Action     string  `json:"action"`
	VideoID    string  `json:"videoId"`
	Fraction   float64 `json:"fraction"`
	State      string  `json:"state"`
	Segments   int     `json:"segments"`
	BatchIndex int     `json:"batchIndex,omitempty"`
	BatchTotal int     `json:"batchTotal,omitempty"`
}

// BadgeUpdate carries the found-video count.
type BadgeUpdate struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}
