package ico

import "image"

// maxPaletteColors is the largest color table any supported DIB depth can
// hold; past this point an image cannot be palette-encoded.
const maxPaletteColors = 256

// rgbTriple is a palette color. Alpha is handled separately by the AND mask.
type rgbTriple struct {
	R, G, B uint8
}

// imageStats summarizes a single pass over an image: how its alpha channel is
// used, and the set of distinct RGB triples in first-seen order as long as
// that set stays small enough to palette-encode.
type imageStats struct {
	hasAlpha        bool // any pixel with alpha != 255
	hasPartialAlpha bool // any pixel with alpha strictly between 0 and 255

	// palette holds the distinct colors in first-seen order and paletteIndex
	// maps each color to its slot. Both become nil once a 257th color is
	// seen, which also bounds the memory spent on tracking.
	palette       []rgbTriple
	paletteIndex  map[rgbTriple]int
	tooManyColors bool
}

// analyze scans img once and never fails.
func analyze(img *image.NRGBA) *imageStats {
	s := &imageStats{paletteIndex: make(map[rgbTriple]int)}

	width, height := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			r, g, b, a := row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]

			if a != 255 {
				s.hasAlpha = true
				if a != 0 {
					s.hasPartialAlpha = true
				}
			}

			if s.tooManyColors {
				continue
			}
			c := rgbTriple{r, g, b}
			if _, seen := s.paletteIndex[c]; seen {
				continue
			}
			if len(s.palette) == maxPaletteColors {
				s.palette = nil
				s.paletteIndex = nil
				s.tooManyColors = true
				continue
			}
			s.paletteIndex[c] = len(s.palette)
			s.palette = append(s.palette, c)
		}
	}

	return s
}

// colorIndex returns the palette slot for c. Colors outside the palette fall
// back to slot 0; that is a deliberate default, not an error.
func (s *imageStats) colorIndex(c rgbTriple) int {
	if i, ok := s.paletteIndex[c]; ok {
		return i
	}
	return 0
}

// pixelFormat is the representation chosen for one entry: an embedded PNG, or
// a DIB at one of the supported bit depths.
type pixelFormat struct {
	PNG   bool
	Depth uint16 // 1, 4, 8 or 24; meaningful only when PNG is false
}

const (
	// maxBMPPixels is the largest image the encoder will store as a DIB;
	// anything bigger compresses far better as PNG.
	maxBMPPixels = 64 * 64

	// smallPalettedPixels is the point below which a 24 bpp DIB is smaller
	// than an 8 bpp one, since the latter always carries a 1 KiB color table.
	smallPalettedPixels = 512
)

// selectFormat picks the cheapest representation that preserves the image.
// It is a pure function of the statistics and dimensions. Partial alpha
// always forces PNG: the DIB depths emitted here cannot represent it, while
// binary transparency is covered by the AND mask at any depth.
func selectFormat(s *imageStats, width, height int) pixelFormat {
	pixels := width * height
	switch {
	case s.hasPartialAlpha || pixels > maxBMPPixels:
		return pixelFormat{PNG: true}
	case !s.tooManyColors && len(s.palette) <= 2:
		return pixelFormat{Depth: 1}
	case !s.tooManyColors && len(s.palette) <= 16:
		return pixelFormat{Depth: 4}
	case !s.tooManyColors:
		if pixels < smallPalettedPixels {
			return pixelFormat{Depth: 24}
		}
		return pixelFormat{Depth: 8}
	default:
		return pixelFormat{Depth: 24}
	}
}
