package display

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestKittyEncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).Encode(nil); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("empty data wrote %q", buf.String())
	}
}

func TestKittyEncodeSingle(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("small image")
	if err := NewKittyEncoder(&buf).Encode(data); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := buf.String()
	want := escapeStart + "a=T,f=100,q=2;" + base64.StdEncoding.EncodeToString(data) + escapeEnd
	if out != want {
		t.Fatalf("Encode() = %q, want %q", out, want)
	}
}

func TestKittyEncodeChunked(t *testing.T) {
	var buf bytes.Buffer
	data := make([]byte, 10000)
	if err := NewKittyEncoder(&buf).Encode(data); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, escapeStart+"a=T,f=100,q=2,m=1;") {
		t.Errorf("first chunk missing continuation start: %q", out[:40])
	}
	if !strings.Contains(out, escapeStart+"m=0;") {
		t.Error("final chunk missing m=0 terminator")
	}
	if !strings.HasSuffix(out, escapeEnd) {
		t.Error("output does not end with escape terminator")
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		size  int
		want  int
	}{
		{"exact", strings.Repeat("a", 8), 4, 2},
		{"remainder", strings.Repeat("a", 9), 4, 3},
		{"smaller than chunk", "ab", 4, 1},
		{"empty", "", 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitIntoChunks(tt.input, tt.size); len(got) != tt.want {
				t.Errorf("splitIntoChunks() produced %d chunks, want %d", len(got), tt.want)
			}
		})
	}
}
