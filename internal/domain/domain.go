package domain

import "time"

// Position is the exposure held over one step: short, flat or long.
type Position int8

const (
	PositionShort Position = -1
	PositionFlat  Position = 0
	PositionLong  Position = 1
)

type SignalDirection string

const (
	DirectionLong  SignalDirection = "long"
	DirectionShort SignalDirection = "short"
	DirectionFlat  SignalDirection = "flat"
)

func (p Position) Direction() SignalDirection {
	switch {
	case p > 0:
		return DirectionLong
	case p < 0:
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// Signal is the latest model call for a symbol.
type Signal struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	Date      time.Time       `json:"date"`
	ModelKey  string          `json:"model"`
	ProbUp    float64         `json:"prob_up"`
	Position  Position        `json:"position"`
	Direction SignalDirection `json:"direction"`
}

// ModelArtifact is a trained classifier persisted for one symbol and interval.
type ModelArtifact struct {
	ID             int64
	Symbol         string
	Interval       string
	ModelKey       string
	Version        int
	SchemaVersion  string
	TrainedFrom    time.Time
	TrainedTo      time.Time
	MetricsJSON    string
	ArtifactFormat string
	Blob           []byte
	CreatedAt      time.Time
}

// SupportedIntervals lists bar intervals the downloader understands.
var SupportedIntervals = []string{"1d", "1wk", "1mo"}

func IsSupportedInterval(interval string) bool {
	for _, si := range SupportedIntervals {
		if si == interval {
			return true
		}
	}
	return false
}
