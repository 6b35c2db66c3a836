package ico

import (
	"image"
	"image/color"
	"testing"
)

func TestAnalyzeAlphaClasses(t *testing.T) {
	opaque := makeImage(4, 4, func(x, y int) color.NRGBA {
		return color.NRGBA{R: 10, A: 255}
	})
	s := analyze(opaque)
	if s.hasAlpha || s.hasPartialAlpha {
		t.Errorf("Opaque image: expected no alpha flags, got hasAlpha=%v hasPartialAlpha=%v",
			s.hasAlpha, s.hasPartialAlpha)
	}

	binary := makeImage(4, 4, func(x, y int) color.NRGBA {
		if x == 0 {
			return color.NRGBA{}
		}
		return color.NRGBA{R: 10, A: 255}
	})
	s = analyze(binary)
	if !s.hasAlpha {
		t.Error("Binary transparency: expected hasAlpha")
	}
	if s.hasPartialAlpha {
		t.Error("Binary transparency: expected no hasPartialAlpha")
	}

	partial := makeImage(4, 4, func(x, y int) color.NRGBA {
		return color.NRGBA{R: 10, A: 128}
	})
	s = analyze(partial)
	if !s.hasAlpha || !s.hasPartialAlpha {
		t.Errorf("Partial alpha: expected both flags, got hasAlpha=%v hasPartialAlpha=%v",
			s.hasAlpha, s.hasPartialAlpha)
	}
}

func TestAnalyzePaletteOrder(t *testing.T) {
	// Colors are recorded in first-seen order, duplicates ignored.
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(3, 0, color.NRGBA{B: 255, A: 255})

	s := analyze(img)
	want := []rgbTriple{{R: 255}, {G: 255}, {B: 255}}
	if len(s.palette) != len(want) {
		t.Fatalf("Expected %d palette entries, got %d", len(want), len(s.palette))
	}
	for i, c := range want {
		if s.palette[i] != c {
			t.Errorf("Palette slot %d: expected %v, got %v", i, c, s.palette[i])
		}
		if got := s.colorIndex(c); got != i {
			t.Errorf("colorIndex(%v): expected %d, got %d", c, i, got)
		}
	}

	// Colors outside the palette fall back to slot 0.
	if got := s.colorIndex(rgbTriple{R: 1, G: 2, B: 3}); got != 0 {
		t.Errorf("Expected fallback index 0 for unknown color, got %d", got)
	}
}

func TestAnalyzeColorOverflow(t *testing.T) {
	// Exactly 256 distinct colors still tracks the full set.
	exact := makeImage(16, 16, func(x, y int) color.NRGBA {
		return color.NRGBA{R: uint8(x), G: uint8(y), A: 255}
	})
	s := analyze(exact)
	if s.tooManyColors {
		t.Error("256 colors should not overflow the tracker")
	}
	if len(s.palette) != 256 {
		t.Errorf("Expected 256 palette entries, got %d", len(s.palette))
	}

	// The 257th distinct color discards the set for the rest of the pass.
	over := makeImage(17, 17, func(x, y int) color.NRGBA {
		return color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x * y), A: 255}
	})
	s = analyze(over)
	if !s.tooManyColors {
		t.Error("289 colors should overflow the tracker")
	}
	if s.palette != nil || s.paletteIndex != nil {
		t.Error("Overflowed tracker should discard its color set")
	}
}

func TestSelectFormat(t *testing.T) {
	stats := func(colors int, partialAlpha bool) *imageStats {
		s := &imageStats{}
		if colors > maxPaletteColors {
			s.tooManyColors = true
		} else {
			for i := 0; i < colors; i++ {
				s.palette = append(s.palette, rgbTriple{R: uint8(i), G: uint8(i >> 8)})
			}
		}
		s.hasPartialAlpha = partialAlpha
		s.hasAlpha = partialAlpha
		return s
	}

	tests := []struct {
		name          string
		stats         *imageStats
		width, height int
		want          pixelFormat
	}{
		{"partial alpha forces PNG", stats(2, true), 4, 4, pixelFormat{PNG: true}},
		{"over 64x64 forces PNG", stats(3, false), 65, 64, pixelFormat{PNG: true}},
		{"exactly 64x64 stays BMP", stats(300, false), 64, 64, pixelFormat{Depth: 24}},
		{"one color", stats(1, false), 16, 16, pixelFormat{Depth: 1}},
		{"two colors", stats(2, false), 16, 16, pixelFormat{Depth: 1}},
		{"three colors", stats(3, false), 16, 16, pixelFormat{Depth: 4}},
		{"sixteen colors", stats(16, false), 16, 16, pixelFormat{Depth: 4}},
		{"seventeen colors, tiny image", stats(17, false), 16, 16, pixelFormat{Depth: 24}},
		{"seventeen colors, 511 pixels", stats(17, false), 7, 73, pixelFormat{Depth: 24}},
		{"seventeen colors, 512 pixels", stats(17, false), 8, 64, pixelFormat{Depth: 8}},
		{"256 colors, large image", stats(256, false), 32, 32, pixelFormat{Depth: 8}},
		{"too many colors", stats(300, false), 32, 32, pixelFormat{Depth: 24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectFormat(tt.stats, tt.width, tt.height)
			if got != tt.want {
				t.Errorf("selectFormat(%d colors, %dx%d) = %+v, want %+v",
					len(tt.stats.palette), tt.width, tt.height, got, tt.want)
			}
		})
	}
}
