package types

import (
	"fmt"
	"time"
)

// Channel identifies the measurement type of a reading. It is also the
// store's partition key.
type Channel string

const (
	// ChannelVoltage holds voltage readings.
	ChannelVoltage Channel = "Voltage"
	// ChannelCurrent holds current readings.
	ChannelCurrent Channel = "Current"
)

// String returns the channel token as it appears in ingested rows.
func (c Channel) String() string {
	return string(c)
}

// Valid reports whether c is one of the recognized channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVoltage, ChannelCurrent:
		return true
	default:
		return false
	}
}

// ParseChannel matches a token against the channel names.
// Matching is exact and case-sensitive.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel: %q", s)
	}
	return c, nil
}

// AllChannels returns every recognized channel in a fixed order.
func AllChannels() []Channel {
	return []Channel{ChannelCurrent, ChannelVoltage}
}

// Reading is a single timestamped, valued, channel-tagged measurement.
type Reading struct {
	Time    int64 // Unix seconds
	Value   float64
	Channel Channel
}

// Stored drops the channel tag.
func (r Reading) Stored() StoredReading {
	return StoredReading{Time: r.Time, Value: r.Value}
}

// StoredReading is a reading inside its channel partition.
type StoredReading struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// KeyedReading is one element of a bulk upsert: the time-key and the
// reading stored under it.
type KeyedReading struct {
	Key     int64
	Reading StoredReading
}

// ReadingBatch groups accepted readings per channel.
type ReadingBatch struct {
	byChannel map[Channel][]KeyedReading
	count     int
}

// NewReadingBatch creates an empty batch.
func NewReadingBatch() *ReadingBatch {
	return &ReadingBatch{byChannel: make(map[Channel][]KeyedReading, 2)}
}

// Add appends a reading to its channel's partition, keyed by its time.
func (b *ReadingBatch) Add(r Reading) {
	b.byChannel[r.Channel] = append(b.byChannel[r.Channel], KeyedReading{
		Key:     r.Time,
		Reading: r.Stored(),
	})
	b.count++
}

// Channels returns the channels present in the batch in AllChannels order,
// followed by any other channel in the batch.
func (b *ReadingBatch) Channels() []Channel {
	out := make([]Channel, 0, len(b.byChannel))
	for _, c := range AllChannels() {
		if len(b.byChannel[c]) > 0 {
			out = append(out, c)
		}
	}
	for c, items := range b.byChannel {
		if !c.Valid() && len(items) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// For returns the keyed readings collected for c.
func (b *ReadingBatch) For(c Channel) []KeyedReading {
	return b.byChannel[c]
}

// Len returns the number of readings in the batch.
func (b *ReadingBatch) Len() int {
	return b.count
}

// Rejection records a row that failed validation.
type Rejection struct {
	Row     string    `json:"row"`
	Reasons []string  `json:"reasons"`
	At      time.Time `json:"at"`
	Session string    `json:"session,omitempty"`
}
