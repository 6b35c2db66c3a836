package ico

import (
	"encoding/binary"
	"fmt"
	"image"
)

const bmpInfoHeaderSize = 40

// bmpRowStride returns the byte length of one row at the given bit depth,
// padded to a 4-byte boundary. The AND mask uses the same rule at 1 bpp.
func bmpRowStride(width, bits int) int {
	return (width*bits + 31) / 32 * 4
}

// paletteSlots returns the number of color-table entries a DIB at the given
// depth carries. Truecolor depths have no table.
func paletteSlots(depth uint16) int {
	if depth > 8 {
		return 0
	}
	return 1 << depth
}

// encodeBMP serializes img as a headerless ICO DIB payload: a 40-byte
// BITMAPINFOHEADER whose height field is doubled to cover the trailing AND
// mask, a color table for paletted depths, the pixel rows bottom-up, and the
// 1 bpp AND mask rows bottom-up. Rows pack samples MSB-first and every row is
// zero-padded to 4 bytes.
func encodeBMP(img *image.NRGBA, depth uint16, stats *imageStats) []byte {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	xorStride := bmpRowStride(width, int(depth))
	andStride := bmpRowStride(width, 1)
	slots := paletteSlots(depth)

	buf := make([]byte, bmpInfoHeaderSize+slots*4+(xorStride+andStride)*height)

	// Only the size, dimensions, plane count and depth matter inside an ICO
	// payload; the remaining header fields stay zero.
	binary.LittleEndian.PutUint32(buf[0:], bmpInfoHeaderSize)
	binary.LittleEndian.PutUint32(buf[4:], uint32(width))
	binary.LittleEndian.PutUint32(buf[8:], uint32(height*2))
	binary.LittleEndian.PutUint16(buf[12:], 1)
	binary.LittleEndian.PutUint16(buf[14:], depth)

	// Color table: B, G, R, 0 per entry, zero-padded to the full table size.
	// Truecolor depths have zero slots and get no table at all.
	palette := stats.palette
	if len(palette) > slots {
		palette = palette[:slots]
	}
	for i, c := range palette {
		off := bmpInfoHeaderSize + i*4
		buf[off] = c.B
		buf[off+1] = c.G
		buf[off+2] = c.R
	}

	pixelOffset := bmpInfoHeaderSize + slots*4
	for y := 0; y < height; y++ {
		row := buf[pixelOffset+(height-1-y)*xorStride:]
		src := img.Pix[y*img.Stride:]

		for x := 0; x < width; x++ {
			r, g, b, a := src[x*4], src[x*4+1], src[x*4+2], src[x*4+3]
			switch depth {
			case 1, 4, 8:
				idx := stats.colorIndex(rgbTriple{r, g, b})
				if idx >= slots {
					idx = 0
				}
				switch depth {
				case 1:
					if idx != 0 {
						row[x/8] |= 0x80 >> uint(x%8)
					}
				case 4:
					if x%2 == 0 {
						row[x/2] |= byte(idx) << 4
					} else {
						row[x/2] |= byte(idx)
					}
				case 8:
					row[x] = byte(idx)
				}
			case 24:
				row[x*3] = b
				row[x*3+1] = g
				row[x*3+2] = r
			case 32:
				row[x*4] = b
				row[x*4+1] = g
				row[x*4+2] = r
				row[x*4+3] = a
			}
		}
	}

	// AND mask: one bit per pixel, set exactly where the source alpha is 0.
	// Partial transparency counts as opaque here; 1-bit granularity cannot
	// represent it.
	maskOffset := pixelOffset + height*xorStride
	for y := 0; y < height; y++ {
		row := buf[maskOffset+(height-1-y)*andStride:]
		src := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			if src[x*4+3] == 0 {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
	}

	return buf
}

// decodeBMP decodes a headerless ICO DIB payload, returning the image and the
// bit depth declared by its BITMAPINFOHEADER.
func decodeBMP(data []byte) (*image.NRGBA, uint16, error) {
	if len(data) < bmpInfoHeaderSize {
		return nil, 0, fmt.Errorf("BMP payload too short: need at least %d bytes for header", bmpInfoHeaderSize)
	}

	headerLen := binary.LittleEndian.Uint32(data[0:])
	if headerLen < bmpInfoHeaderSize || uint64(headerLen) > uint64(len(data)) {
		return nil, 0, fmt.Errorf("invalid BMP header size: %d", headerLen)
	}

	width := int32(binary.LittleEndian.Uint32(data[4:]))
	// The height field covers both the color rows and the AND mask rows, so
	// the actual image height is half of it.
	height := int32(binary.LittleEndian.Uint32(data[8:])) / 2
	depth := binary.LittleEndian.Uint16(data[14:])

	if width <= 0 || height <= 0 || width > maxSide || height > maxSide {
		return nil, 0, fmt.Errorf("invalid BMP dimensions: %dx%d", width, height)
	}

	body := data[headerLen:]
	switch depth {
	case 1, 4, 8:
		return decodePalettedBMP(body, int(width), int(height), depth)
	case 24, 32:
		return decodeTruecolorBMP(body, int(width), int(height), depth)
	default:
		return nil, 0, fmt.Errorf("unsupported BMP bit depth: %d", depth)
	}
}

// decodePalettedBMP decodes 1, 4 and 8 bpp data: a full-size color table,
// bottom-up index rows, then the AND mask.
func decodePalettedBMP(data []byte, width, height int, depth uint16) (*image.NRGBA, uint16, error) {
	slots := paletteSlots(depth)
	tableLen := slots * 4
	if len(data) < tableLen {
		return nil, 0, fmt.Errorf("BMP color table truncated: have %d bytes, want %d", len(data), tableLen)
	}

	palette := make([]rgbTriple, slots)
	for i := range palette {
		off := i * 4
		palette[i] = rgbTriple{R: data[off+2], G: data[off+1], B: data[off]}
	}

	pixels := data[tableLen:]
	stride := bmpRowStride(width, int(depth))
	if len(pixels) < height*stride {
		return nil, 0, fmt.Errorf("BMP pixel data truncated: have %d bytes, want %d", len(pixels), height*stride)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		// Rows are stored bottom-to-top.
		row := pixels[(height-1-y)*stride:]
		dst := img.Pix[y*img.Stride:]

		for x := 0; x < width; x++ {
			var idx int
			switch depth {
			case 1:
				idx = int(row[x/8]>>uint(7-x%8)) & 1
			case 4:
				if x%2 == 0 {
					idx = int(row[x/2] >> 4)
				} else {
					idx = int(row[x/2] & 0x0F)
				}
			case 8:
				idx = int(row[x])
			}
			c := palette[idx]
			dst[x*4] = c.R
			dst[x*4+1] = c.G
			dst[x*4+2] = c.B
			dst[x*4+3] = 255
		}
	}

	if err := applyANDMask(img, pixels[height*stride:], width, height); err != nil {
		return nil, 0, err
	}
	return img, depth, nil
}

// decodeTruecolorBMP decodes 24 and 32 bpp data. At 32 bpp the alpha comes
// from the stored channel and the AND mask is ignored; at 24 bpp the mask is
// the only alpha source and must be present.
func decodeTruecolorBMP(data []byte, width, height int, depth uint16) (*image.NRGBA, uint16, error) {
	bytesPerPixel := int(depth) / 8
	stride := bmpRowStride(width, int(depth))
	if len(data) < height*stride {
		return nil, 0, fmt.Errorf("BMP pixel data truncated: have %d bytes, want %d", len(data), height*stride)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := data[(height-1-y)*stride:]
		dst := img.Pix[y*img.Stride:]

		for x := 0; x < width; x++ {
			// BMP stores B, G, R(, A).
			p := row[x*bytesPerPixel:]
			dst[x*4] = p[2]
			dst[x*4+1] = p[1]
			dst[x*4+2] = p[0]
			if depth == 32 {
				dst[x*4+3] = p[3]
			} else {
				dst[x*4+3] = 255
			}
		}
	}

	if depth == 32 {
		return img, depth, nil
	}
	if err := applyANDMask(img, data[height*stride:], width, height); err != nil {
		return nil, 0, err
	}
	return img, depth, nil
}

// applyANDMask reads the bottom-up 1 bpp transparency mask that trails the
// color rows and clears the alpha of every pixel whose mask bit is set.
func applyANDMask(img *image.NRGBA, mask []byte, width, height int) error {
	stride := bmpRowStride(width, 1)
	if len(mask) < height*stride {
		return fmt.Errorf("BMP AND mask truncated: have %d bytes, want %d", len(mask), height*stride)
	}

	for y := 0; y < height; y++ {
		row := mask[(height-1-y)*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			if row[x/8]>>uint(7-x%8)&1 == 1 {
				dst[x*4+3] = 0
			}
		}
	}
	return nil
}
