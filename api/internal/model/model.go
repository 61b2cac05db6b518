// Package model holds the data shapes shared across the pipeline: Job,
// Analysis Record, Verdict, Detector Signals (spec §3).
package model

import (
	"encoding/json"
	"time"

	"imageverify/api/internal/scenario"
)

// Tier is the user's subscription tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Priority is the job queue's strict-priority ordering key (spec §4.3).
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

// User mirrors the users table (spec §3, §6).
type User struct {
	UserID              int64
	Handle              string
	Tier                Tier
	DailyQuotaRemaining int
	QuotaResetDate       time.Time
}

// Job is the record enqueued by the ingress side and consumed by a worker
// (spec §3 "Job"). Every Job must carry a valid Scenario — the queue
// rejects any that don't (spec §4.3 invariant).
type Job struct {
	JobID           string            `json:"job_id"`
	UserID          int64             `json:"user_id"`
	ChatID          int64             `json:"chat_id"`
	SourceMessageID int               `json:"source_message_id"`
	ProgressMsgID   int               `json:"progress_msg_id"`
	BlobKey         string            `json:"blob_key"`
	Tier            Tier              `json:"tier"`
	Scenario        scenario.Scenario `json:"scenario"`
	PreserveEXIF    bool              `json:"preserve_exif"`
	Priority        Priority          `json:"priority"`
	Attempts        int               `json:"attempts"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Verdict is the closed enum a fused detection collapses to (spec §3).
type Verdict string

const (
	VerdictReal         Verdict = "real"
	VerdictAIGenerated  Verdict = "ai_generated"
	VerdictManipulated  Verdict = "manipulated"
	VerdictInconclusive Verdict = "inconclusive"
)

// FusionResult is the output of the verdict-fusion rule (spec §4.5).
type FusionResult struct {
	Verdict    Verdict
	Confidence float64
	Reason     string
}

// VisualWatermark is a nullable detector flag (spec §3).
type VisualWatermark struct {
	Generator  string  `json:"generator"`
	Text       string  `json:"text"`
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
}

// GPS is optional extracted metadata (spec §3).
type GPS struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt,omitempty"`
}

// DetectorSignals is the bundle the analysis API returns per call, which
// the core fuses into a Verdict without ever calling the API itself again
// (spec §3 "Detector Signals", §4.5).
type DetectorSignals struct {
	AIHeuristic       float64 `json:"ai_heuristic"`
	FFTScore          float64 `json:"fft_score"`
	MetadataRisk      float64 `json:"metadata_risk"`
	FaceSwapScore     float64 `json:"face_swap_score"`
	FaceDetected      bool    `json:"face_detected"`
	VisualWatermark   *VisualWatermark `json:"visual_watermark,omitempty"`
	C2PAWatermark     bool    `json:"c2pa_watermark"`
	AISoftwareInEXIF  bool    `json:"ai_software_in_exif"`
	ScreenshotDetected bool   `json:"screenshot_detected"`

	CameraMake        string   `json:"camera_make,omitempty"`
	CameraModel       string   `json:"camera_model,omitempty"`
	Software          string   `json:"software,omitempty"`
	CreatorTool       string   `json:"creator_tool,omitempty"`
	CaptureTimestamp  string   `json:"capture_timestamp,omitempty"`
	GPS               *GPS     `json:"gps,omitempty"`
	ExifFieldCount    int      `json:"exif_field_count,omitempty"`
	DeviceSerial      string   `json:"device_serial,omitempty"`
	LensSerial        string   `json:"lens_serial,omitempty"`
}

// AnalysisRecord is persisted after analysis completes (spec §3).
type AnalysisRecord struct {
	AnalysisID       string
	UserID           int64
	Scenario         scenario.Scenario
	Verdict          Verdict
	Confidence       float64
	Reason           string
	ProcessingTimeMs int
	ResultBlob       json.RawMessage
	ImageSHA256      string
	PHash            string
	CreatedAt        time.Time
}
