package colorutil

import (
	"image/color"
	"testing"

	"github.com/gogpu/gg"
)

func TestToHex(t *testing.T) {
	tests := []struct {
		in   gg.RGBA
		want string
	}{
		{gg.RGBA{R: 1, G: 0, B: 0, A: 1}, "#ff0000"},
		{gg.RGBA{R: 0, G: 0, B: 1, A: 0.5}, "#0000ff80"},
		{gg.RGBA{R: 2, G: -1, B: 0, A: 1}, "#ff0000"},
	}
	for _, tt := range tests {
		if got := ToHex(tt.in); got != tt.want {
			t.Errorf("ToHex(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToHexRoundTrip(t *testing.T) {
	for _, s := range []string{"#e53935", "#000000", "#ffffff", "#12345678"} {
		if got := ToHex(gg.Hex(s)); got != s {
			t.Errorf("ToHex(Hex(%q)) = %q", s, got)
		}
	}
}

func TestWithAlpha(t *testing.T) {
	got := WithAlpha(color.RGBA{R: 255, A: 255}, 0.5)
	if got.R != 255 || got.A != 128 {
		t.Errorf("WithAlpha = %+v", got)
	}
	if got := WithAlpha(White, 3); got.A != 255 {
		t.Errorf("alpha not clamped: %+v", got)
	}
}
