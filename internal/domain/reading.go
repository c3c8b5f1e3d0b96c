package domain

import "time"

// Reading is one normalized gauge measurement. It is immutable after
// creation; the history store persists copies, never the original.
type Reading struct {
	WaterLevelCm int       `json:"water_level_cm"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Timestamp    time.Time `json:"timestamp"`
	GraphicURL   string    `json:"graphic_url,omitempty"`

	// OutOfRange marks levels outside the nominal [0, 2000] cm range.
	// Such readings are kept, not rejected.
	OutOfRange bool `json:"out_of_range,omitempty"`

	// ApproxTime marks readings whose timestamp could not be reconstructed
	// from Datum/Uhrzeit and was substituted with the current time.
	ApproxTime bool `json:"approx_time,omitempty"`
}

// TierChange describes a refresh cycle crossing an alert band boundary.
// It is what alert sinks (Kafka, Telegram) receive.
type TierChange struct {
	From    Tier      `json:"from"`
	To      Tier      `json:"to"`
	LevelCm int       `json:"level_cm"`
	At      time.Time `json:"at"`
}
