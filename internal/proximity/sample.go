// Package proximity turns wireless advertisement signal readings into
// light power transitions.
package proximity

import "time"

// OutOfRangeRSSI is the sentinel reading meaning "definitely not present":
// the minimum representable signal strength for the transport in use.
const OutOfRangeRSSI = -127

// Sample is one observed advertisement event.
type Sample struct {
	RSSI int       `json:"rssi"`
	Time time.Time `json:"time"`
}

// Classification is the derived automation state for a batch of samples.
type Classification int

const (
	// Unknown is the state before the first batch has been classified.
	Unknown Classification = iota
	// InRange means the beacon is present.
	InRange
	// OutOfRange means the beacon is definitely not present.
	OutOfRange
)

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case InRange:
		return "in_range"
	case OutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// Classify derives the state for one batch of concurrently received
// samples. A single sentinel reading classifies the whole batch
// OutOfRange: the sentinel is a hard "not present" signal and wins over any
// other concurrently reported reading. An empty batch stays Unknown.
func Classify(batch []Sample) Classification {
	if len(batch) == 0 {
		return Unknown
	}
	for _, s := range batch {
		if s.RSSI <= OutOfRangeRSSI {
			return OutOfRange
		}
	}
	return InRange
}
