package types

import (
	"testing"
)

func TestChannelID_MatchPattern(t *testing.T) {
	ch := ChannelID{Network: "UW", Station: "JCW", Location: "", Channel: "EHZ"}

	if got, want := ch.MatchPattern(EncodingMiniSEED), "UW_JCW__EHZ/MSEED"; got != want {
		t.Errorf("MatchPattern = %q, want %q", got, want)
	}
	if got, want := ch.String(), "UW.JCW..EHZ"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestParseChannelID(t *testing.T) {
	tests := []struct {
		in      string
		want    ChannelID
		wantErr bool
	}{
		{"UW.JCW..EHZ", ChannelID{"UW", "JCW", "", "EHZ"}, false},
		{"CO.BIRD.00.HHZ", ChannelID{"CO", "BIRD", "00", "HHZ"}, false},
		{" CO.BIRD.00.HHZ ", ChannelID{"CO", "BIRD", "00", "HHZ"}, false},
		{"UW.JCW.EHZ", ChannelID{}, true},
		{".JCW..EHZ", ChannelID{}, true},
		{"UW...EHZ", ChannelID{}, true},
		{"UW.JCW..", ChannelID{}, true},
		{"", ChannelID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChannelID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChannelID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseChannelID(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
