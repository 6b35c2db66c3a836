package ico

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"image"
	"io"
)

// pngSignature is the 8-byte PNG file signature. The container decoder sniffs
// payloads against its first four bytes.
var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	pngColorTruecolor      = 2
	pngColorTruecolorAlpha = 6
)

// crcTable is the reflected CRC-32 lookup table (polynomial 0xEDB88320) used
// by PNG chunk trailers, built once per process.
var crcTable = makeCRCTable()

func makeCRCTable() *[256]uint32 {
	var table [256]uint32
	for i := range table {
		c := uint32(i)
		for k := 0; k < 8; k++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		table[i] = c
	}
	return &table
}

// crc32Sum computes the PNG chunk CRC-32 over the concatenation of its
// arguments (chunk type bytes followed by chunk data).
func crc32Sum(parts ...[]byte) uint32 {
	c := ^uint32(0)
	for _, part := range parts {
		for _, b := range part {
			c = crcTable[byte(c)^b] ^ (c >> 8)
		}
	}
	return ^c
}

// adler32Sum computes the Adler-32 checksum that closes the zlib stream
// inside the IDAT chunk.
func adler32Sum(data []byte) uint32 {
	const mod = 65521
	a, b := uint32(1), uint32(0)
	for _, x := range data {
		a = (a + uint32(x)) % mod
		b = (b + a) % mod
	}
	return b<<16 | a
}

// encodePNG serializes img as a minimal, self-contained PNG: the signature,
// an IHDR (bit depth 8, truecolor with or without alpha), a single IDAT
// holding one zlib/deflate stream of unfiltered scanlines, and an IEND.
func encodePNG(img *image.NRGBA, withAlpha bool) ([]byte, error) {
	width, height := img.Rect.Dx(), img.Rect.Dy()

	samples := 3
	colorType := byte(pngColorTruecolor)
	if withAlpha {
		samples = 4
		colorType = pngColorTruecolorAlpha
	}

	// Every scanline gets a leading filter-type byte of 0 ("none"), then its
	// samples in R, G, B(, A) order.
	raw := make([]byte, 0, height*(1+width*samples))
	for y := 0; y < height; y++ {
		raw = append(raw, 0)
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		if withAlpha {
			raw = append(raw, row...)
		} else {
			for x := 0; x < width; x++ {
				raw = append(raw, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	}

	// zlib wrapper: method 8 with a 32 KiB window, default-level flag, no
	// preset dictionary, deflate body, then a big-endian Adler-32 of the
	// uncompressed scanlines.
	var zbuf bytes.Buffer
	zbuf.Write([]byte{0x78, 0x9C})
	fw, err := flate.NewWriter(&zbuf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(raw); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	var adler [4]byte
	binary.BigEndian.PutUint32(adler[:], adler32Sum(raw))
	zbuf.Write(adler[:])

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(height))
	ihdr[8] = 8 // bit depth
	ihdr[9] = colorType
	// compression, filter and interlace methods stay 0

	var buf bytes.Buffer
	buf.Write(pngSignature)
	writeChunk(&buf, "IHDR", ihdr)
	writeChunk(&buf, "IDAT", zbuf.Bytes())
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes(), nil
}

// writeChunk emits one PNG chunk: big-endian length, 4-byte type, data, and a
// big-endian CRC-32 over type and data.
func writeChunk(buf *bytes.Buffer, chunkType string, data []byte) {
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(data)))
	buf.Write(word[:])
	buf.WriteString(chunkType)
	buf.Write(data)
	binary.BigEndian.PutUint32(word[:], crc32Sum([]byte(chunkType), data))
	buf.Write(word[:])
}

// decodePNG decodes the truecolor subset of PNG that appears inside icon
// payloads: bit depth 8, color type 2 or 6, no interlacing. All five scanline
// filter types are reversed, since foreign icon files carry filtered PNGs.
// It returns the image and the effective bits per pixel (24 or 32).
func decodePNG(data []byte) (*image.NRGBA, uint16, error) {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return nil, 0, fmt.Errorf("bad PNG signature")
	}

	var (
		width, height int
		colorType     byte
		idat          []byte
		sawIHDR       bool
		sawIEND       bool
	)

	rest := data[len(pngSignature):]
	for !sawIEND {
		if len(rest) < 12 {
			return nil, 0, fmt.Errorf("truncated PNG chunk")
		}
		length := binary.BigEndian.Uint32(rest[0:])
		if uint64(len(rest)) < 12+uint64(length) {
			return nil, 0, fmt.Errorf("truncated PNG chunk")
		}
		chunkType := string(rest[4:8])
		body := rest[8 : 8+length]

		crc := binary.BigEndian.Uint32(rest[8+length:])
		if crc != crc32Sum(rest[4:8], body) {
			return nil, 0, fmt.Errorf("PNG chunk %q has a bad CRC", chunkType)
		}

		switch chunkType {
		case "IHDR":
			if sawIHDR {
				return nil, 0, fmt.Errorf("PNG has a duplicate IHDR chunk")
			}
			if len(body) != 13 {
				return nil, 0, fmt.Errorf("PNG IHDR has length %d, want 13", len(body))
			}
			width = int(binary.BigEndian.Uint32(body[0:]))
			height = int(binary.BigEndian.Uint32(body[4:]))
			bitDepth := body[8]
			colorType = body[9]
			interlace := body[12]
			if width <= 0 || height <= 0 {
				return nil, 0, fmt.Errorf("invalid PNG dimensions: %dx%d", width, height)
			}
			if bitDepth != 8 || interlace != 0 ||
				(colorType != pngColorTruecolor && colorType != pngColorTruecolorAlpha) {
				return nil, 0, fmt.Errorf("unsupported PNG format: bit depth %d, color type %d, interlace %d",
					bitDepth, colorType, interlace)
			}
			sawIHDR = true
		case "IDAT":
			if !sawIHDR {
				return nil, 0, fmt.Errorf("PNG IDAT chunk appears before IHDR")
			}
			idat = append(idat, body...)
		case "IEND":
			sawIEND = true
		}

		rest = rest[12+length:]
	}

	if !sawIHDR {
		return nil, 0, fmt.Errorf("PNG is missing its IHDR chunk")
	}
	if len(idat) == 0 {
		return nil, 0, fmt.Errorf("PNG has no IDAT data")
	}

	raw, err := inflateZlib(idat)
	if err != nil {
		return nil, 0, err
	}

	samples := 3
	bitsPerPixel := uint16(24)
	if colorType == pngColorTruecolorAlpha {
		samples = 4
		bitsPerPixel = 32
	}
	if len(raw) != height*(1+width*samples) {
		return nil, 0, fmt.Errorf("PNG scanline data has %d bytes, want %d", len(raw), height*(1+width*samples))
	}

	pixels, err := unfilterScanlines(raw, width, height, samples)
	if err != nil {
		return nil, 0, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := pixels[y*width*samples:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			dst[x*4] = row[x*samples]
			dst[x*4+1] = row[x*samples+1]
			dst[x*4+2] = row[x*samples+2]
			if samples == 4 {
				dst[x*4+3] = row[x*samples+3]
			} else {
				dst[x*4+3] = 255
			}
		}
	}

	return img, bitsPerPixel, nil
}

// inflateZlib unwraps the two-byte zlib header, inflates the deflate body and
// verifies the trailing Adler-32 against the decompressed bytes.
func inflateZlib(z []byte) ([]byte, error) {
	if len(z) < 6 {
		return nil, fmt.Errorf("zlib stream too short: %d bytes", len(z))
	}
	cmf, flg := z[0], z[1]
	if cmf&0x0F != 8 {
		return nil, fmt.Errorf("zlib compression method %d is not deflate", cmf&0x0F)
	}
	if flg&0x20 != 0 {
		return nil, fmt.Errorf("zlib preset dictionaries are not supported")
	}
	if (uint32(cmf)<<8|uint32(flg))%31 != 0 {
		return nil, fmt.Errorf("corrupt zlib header")
	}

	fr := flate.NewReader(bytes.NewReader(z[2 : len(z)-4]))
	defer fr.Close()
	raw, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("inflating PNG data: %w", err)
	}

	want := binary.BigEndian.Uint32(z[len(z)-4:])
	if got := adler32Sum(raw); got != want {
		return nil, fmt.Errorf("zlib checksum mismatch: got %08x, want %08x", got, want)
	}
	return raw, nil
}

// unfilterScanlines reverses PNG row filtering, returning the bare sample
// rows without their leading filter-type bytes.
func unfilterScanlines(raw []byte, width, height, samples int) ([]byte, error) {
	rowLen := width * samples
	out := make([]byte, height*rowLen)
	prev := make([]byte, rowLen) // the zero row above the image

	for y := 0; y < height; y++ {
		filterType := raw[y*(rowLen+1)]
		src := raw[y*(rowLen+1)+1 : y*(rowLen+1)+1+rowLen]
		cur := out[y*rowLen : (y+1)*rowLen]
		copy(cur, src)

		switch filterType {
		case 0: // None
		case 1: // Sub
			for i := samples; i < rowLen; i++ {
				cur[i] += cur[i-samples]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= samples {
					left = cur[i-samples]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= samples {
					left = cur[i-samples]
					upLeft = prev[i-samples]
				}
				cur[i] += paethPredictor(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown PNG filter type %d on row %d", filterType, y)
		}

		prev = cur
	}

	return out, nil
}

// paethPredictor is the predictor function for PNG filter type 4.
func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := absInt(p - int(a))
	pb := absInt(p - int(b))
	pc := absInt(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
