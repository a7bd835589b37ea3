package model

import "time"

// IndicatorKind classifies an extracted indicator.
type IndicatorKind int

const (
	// IndicatorIP is a syntactically valid dotted-quad IPv4 address.
	IndicatorIP IndicatorKind = iota + 1
)

func (k IndicatorKind) String() string {
	switch k {
	case IndicatorIP:
		return "ip"
	default:
		return "unknown"
	}
}

// IndicatorMatch is one indicator found in a raw line.
type IndicatorMatch struct {
	Kind  IndicatorKind
	Value string
}

// ParsedMetadata holds fields recovered from the raw line. Every field is
// optional: empty strings and a nil ObservedAt mean "not found".
type ParsedMetadata struct {
	Level      string
	AppName    string
	ObservedAt *time.Time
}

// Event is one ingested record. It is created by an input adapter, enriched
// once by the normalization stage and consumed by the output sink.
// Ownership moves with the event across each queue.
type Event struct {
	Source     string
	Line       string
	IngestedAt time.Time
	Indicators []IndicatorMatch
	Metadata   ParsedMetadata
}

// NewEvent stamps a raw line with its source and the current UTC time.
func NewEvent(source, line string) *Event {
	return &Event{
		Source:     source,
		Line:       line,
		IngestedAt: time.Now().UTC(),
	}
}
