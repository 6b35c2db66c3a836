package ico

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
)

var (
	// ErrNoImages is returned when Encode is called with an empty image list.
	ErrNoImages = errors.New("ico: no images to encode")

	// ErrTooManyImages is returned when the image list exceeds what the
	// 16-bit directory count field can hold.
	ErrTooManyImages = errors.New("ico: too many images for one container")

	// ErrImageTooLarge is returned when an image's dimensions fall outside
	// the 1..256 range a directory entry can express.
	ErrImageTooLarge = errors.New("ico: image dimensions must be between 1x1 and 256x256 pixels")
)

// Hotspot is the click point of a cursor entry, in pixels from the top-left
// corner of that entry's image.
type Hotspot struct {
	X, Y uint16
}

// Encode writes images to w as a single ICO or CUR file. Each image is stored
// either as an embedded PNG or as a DIB at the cheapest depth that preserves
// it. hotspots applies only to cursors and may be nil, in which case every
// hotspot is (0,0); when non-nil its length must match the image list.
func Encode(w io.Writer, images []image.Image, resourceType ResourceType, hotspots []Hotspot) error {
	if len(images) == 0 {
		return ErrNoImages
	}
	if len(images) > maxEntries {
		return fmt.Errorf("%w: got %d, the directory count field is 16-bit", ErrTooManyImages, len(images))
	}
	if resourceType != ResourceIcon && resourceType != ResourceCursor {
		return fmt.Errorf("ico: unsupported resource type: %d (want 1 for ICO or 2 for CUR)", resourceType)
	}
	if hotspots != nil && len(hotspots) != len(images) {
		return fmt.Errorf("ico: got %d hotspots for %d images", len(hotspots), len(images))
	}

	entries := make([]DirectoryEntry, len(images))
	payloads := make([][]byte, len(images))

	for i, src := range images {
		img := toNRGBA(src)
		width, height := img.Rect.Dx(), img.Rect.Dy()
		if width < 1 || height < 1 || width > maxSide || height > maxSide {
			return fmt.Errorf("%w: image %d is %dx%d", ErrImageTooLarge, i, width, height)
		}

		stats := analyze(img)
		format := selectFormat(stats, width, height)

		var payload []byte
		var bitsPerPixel uint16
		if format.PNG {
			bitsPerPixel = 24
			if stats.hasAlpha {
				bitsPerPixel = 32
			}
			p, err := encodePNG(img, stats.hasAlpha)
			if err != nil {
				return fmt.Errorf("ico: encoding image %d as PNG: %w", i, err)
			}
			payload = p
		} else {
			bitsPerPixel = format.Depth
			payload = encodeBMP(img, format.Depth, stats)
		}
		payloads[i] = payload

		// uint8(256) wraps to 0, which is exactly the on-disk encoding.
		entry := DirectoryEntry{
			Width:  uint8(width),
			Height: uint8(height),
			Size:   uint32(len(payload)),
		}
		if !format.PNG && format.Depth <= 8 && len(stats.palette) < maxPaletteColors {
			entry.ColorCount = uint8(len(stats.palette))
		}
		if resourceType == ResourceCursor {
			if hotspots != nil {
				entry.Planes = hotspots[i].X
				entry.BitCount = hotspots[i].Y
			}
		} else {
			entry.Planes = 1
			entry.BitCount = bitsPerPixel
		}
		entries[i] = entry
	}

	// Payloads follow the header and directory back to back, so each offset
	// is a running total starting right after the last directory entry.
	offset := uint32(headerSize + entrySize*len(entries))
	for i := range entries {
		entries[i].Offset = offset
		offset += entries[i].Size
	}

	header := Header{Type: uint16(resourceType), Count: uint16(len(images))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("ico: writing header: %w", err)
	}
	for i := range entries {
		if err := binary.Write(w, binary.LittleEndian, entries[i]); err != nil {
			return fmt.Errorf("ico: writing directory entry %d: %w", i, err)
		}
	}
	for i, payload := range payloads {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("ico: writing image %d: %w", i, err)
		}
	}

	return nil
}

// toNRGBA returns img as an NRGBA buffer anchored at the origin, copying only
// when the source is not already in that form.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
