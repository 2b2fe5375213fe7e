// Package types defines the core data model shared by heliwatch packages:
// channel identity, time windows, waveform segments, DataLink packets,
// display markers and session state.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// EncodingMiniSEED is the DataLink stream-id suffix for miniSEED payloads.
const EncodingMiniSEED = "MSEED"

// ChannelID identifies a single seismic channel by its SEED codes.
// Values are immutable; copy freely.
type ChannelID struct {
	Network  string `json:"network" yaml:"network" msgpack:"network"`
	Station  string `json:"station" yaml:"station" msgpack:"station"`
	Location string `json:"location" yaml:"location" msgpack:"location"`
	Channel  string `json:"channel" yaml:"channel" msgpack:"channel"`
}

// String renders the dotted NET.STA.LOC.CHA form.
func (c ChannelID) String() string {
	return fmt.Sprintf("%s.%s.%s.%s", c.Network, c.Station, c.Location, c.Channel)
}

// MatchPattern renders the DataLink match pattern for this channel,
// e.g. "UW_JCW__EHZ/MSEED".
func (c ChannelID) MatchPattern(encoding string) string {
	return fmt.Sprintf("%s_%s_%s_%s/%s", c.Network, c.Station, c.Location, c.Channel, encoding)
}

// StreamID is the DataLink stream identifier packets for this channel carry.
// It has the same shape as the match pattern.
func (c ChannelID) StreamID(encoding string) string {
	return c.MatchPattern(encoding)
}

// Validate checks that the mandatory codes are present.
// The location code may legitimately be empty.
func (c ChannelID) Validate() error {
	var errs []error
	if c.Network == "" {
		errs = append(errs, errors.New("network code is required"))
	}
	if c.Station == "" {
		errs = append(errs, errors.New("station code is required"))
	}
	if c.Channel == "" {
		errs = append(errs, errors.New("channel code is required"))
	}
	return errors.Join(errs...)
}

// ParseChannelID parses the dotted NET.STA.LOC.CHA form.
func ParseChannelID(s string) (ChannelID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return ChannelID{}, fmt.Errorf("invalid channel %q: want NET.STA.LOC.CHA", s)
	}
	id := ChannelID{
		Network:  parts[0],
		Station:  parts[1],
		Location: parts[2],
		Channel:  parts[3],
	}
	if err := id.Validate(); err != nil {
		return ChannelID{}, fmt.Errorf("invalid channel %q: %w", s, err)
	}
	return id, nil
}
