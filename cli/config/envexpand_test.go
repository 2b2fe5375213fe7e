package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("HW_STATION", "JCW")
	t.Setenv("HW_EMPTY", "")
	t.Setenv("HW_URL", "rtserve.iris.washington.edu:18000")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "station: ${HW_STATION}", "station: JCW"},
		{"unset", "station: ${HW_UNSET_12345}", "station: "},
		{"fallback when unset", "network: ${HW_UNSET_12345:-UW}", "network: UW"},
		{"fallback ignored when set", "station: ${HW_STATION:-RCM}", "station: JCW"},
		{"fallback when empty", "location: ${HW_EMPTY:-00}", "location: 00"},
		{"empty fallback", "location: ${HW_UNSET_12345:-}", "location: "},
		{"fallback with colon", "url: ${HW_UNSET_12345:-localhost:18000}", "url: localhost:18000"},
		{"several", "${HW_STATION}@${HW_URL}", "JCW@rtserve.iris.washington.edu:18000"},
		{"adjacent", "${HW_STATION}${HW_STATION}", "JCWJCW"},
		{"no references", "span: 24h", "span: 24h"},
		{"bare dollar untouched", "amp: $5 ${not valid}", "amp: $5 ${not valid}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_WholeFile(t *testing.T) {
	t.Setenv("ARCHIVE_BUCKET", "seismic")
	t.Setenv("REDIS_PASS", "secret")

	input := `archive:
  backend: s3
  path: ${ARCHIVE_BUCKET}/heliwatch
adapter:
  url: redis://:${REDIS_PASS}@${REDIS_HOST:-localhost}:6379/0`

	want := `archive:
  backend: s3
  path: seismic/heliwatch
adapter:
  url: redis://:secret@localhost:6379/0`

	if got := ExpandEnv(input); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
