// Package ico implements the Windows ICO and CUR container formats.
// A container holds one or more images, each stored either as a headerless
// device-independent bitmap (1, 4, 8, 24 or 32 bits per pixel, followed by a
// 1-bit transparency mask) or as an embedded PNG. The encoder picks the
// cheapest representation per image; the decoder returns the images together
// with per-entry metadata such as cursor hotspots.
package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
)

// ResourceType distinguishes icon containers from cursor containers.
type ResourceType uint16

const (
	ResourceIcon   ResourceType = 1
	ResourceCursor ResourceType = 2
)

const (
	headerSize = 6     // ICONDIR
	entrySize  = 16    // ICONDIRENTRY
	maxEntries = 65535 // the directory count field is 16-bit
	maxSide    = 256   // entry width/height are stored as a single byte
)

// Header represents the ICONDIR file header
type Header struct {
	Reserved uint16 // Always 0
	Type     uint16 // 1 for ICO, 2 for CUR
	Count    uint16 // Number of images
}

// DirectoryEntry represents an ICONDIRENTRY directory record. Two of its
// fields are reused depending on the resource type: for icons Planes and
// BitCount hold the color plane count and bits per pixel, for cursors they
// hold the hotspot X and Y coordinates.
type DirectoryEntry struct {
	Width      uint8  // Width in pixels (0 means 256)
	Height     uint8  // Height in pixels (0 means 256)
	ColorCount uint8  // Number of palette colors (0 means 256 or no palette)
	Reserved   uint8  // Always 0
	Planes     uint16 // Color planes (ICO) or hotspot X (CUR)
	BitCount   uint16 // Bits per pixel (ICO) or hotspot Y (CUR)
	Size       uint32 // Size of image data in bytes
	Offset     uint32 // Offset to image data from beginning of file
}

// EntryMetadata carries the per-entry information that does not live in the
// pixel data itself. It is index-aligned with ICO.Images.
type EntryMetadata struct {
	HotspotX     uint16 // cursor hotspot, zero for icons
	HotspotY     uint16
	BitsPerPixel uint16 // derived from the payload, not the directory
	IsPNG        bool   // payload was an embedded PNG rather than a DIB
}

// ICO represents a decoded ICO or CUR file
type ICO struct {
	Header   Header
	Entries  []DirectoryEntry
	Images   []image.Image
	Metadata []EntryMetadata
}

// Type reports whether the container holds icons or cursors.
func (ico *ICO) Type() ResourceType {
	return ResourceType(ico.Header.Type)
}

// GetWidth returns the actual width, handling the special case where 0 means 256
func (e DirectoryEntry) GetWidth() int {
	if e.Width == 0 {
		return 256
	}
	return int(e.Width)
}

// GetHeight returns the actual height, handling the special case where 0 means 256
func (e DirectoryEntry) GetHeight() int {
	if e.Height == 0 {
		return 256
	}
	return int(e.Height)
}

// GetBestImage returns the image with the highest resolution from the container.
// If multiple images have the same resolution, it returns the first one found.
func (ico *ICO) GetBestImage() image.Image {
	if len(ico.Images) == 0 {
		return nil
	}

	bestIndex := 0
	bestSize := ico.Entries[0].GetWidth() * ico.Entries[0].GetHeight()

	for i, entry := range ico.Entries {
		size := entry.GetWidth() * entry.GetHeight()
		if size > bestSize {
			bestSize = size
			bestIndex = i
		}
	}

	return ico.Images[bestIndex]
}

// GetImageBySize returns the image that best matches the requested size.
// It finds the image with dimensions closest to the requested width and height.
func (ico *ICO) GetImageBySize(width, height int) image.Image {
	if len(ico.Images) == 0 {
		return nil
	}

	bestIndex := 0
	bestScore := scoreSizeMatch(ico.Entries[0], width, height)

	for i, entry := range ico.Entries {
		score := scoreSizeMatch(entry, width, height)
		if score < bestScore {
			bestScore = score
			bestIndex = i
		}
	}

	return ico.Images[bestIndex]
}

// GetAvailableSizes returns a slice of available image sizes in the container.
// Each element contains the width and height of an available image.
func (ico *ICO) GetAvailableSizes() []image.Point {
	sizes := make([]image.Point, len(ico.Entries))
	for i, entry := range ico.Entries {
		sizes[i] = image.Point{
			X: entry.GetWidth(),
			Y: entry.GetHeight(),
		}
	}
	return sizes
}

// scoreSizeMatch calculates how well an image size matches the requested size.
// Lower scores indicate better matches.
func scoreSizeMatch(entry DirectoryEntry, targetWidth, targetHeight int) int {
	widthDiff := entry.GetWidth() - targetWidth
	heightDiff := entry.GetHeight() - targetHeight
	return widthDiff*widthDiff + heightDiff*heightDiff
}

// Config represents the metadata of a container without decoding the image data.
type Config struct {
	Type   ResourceType
	Width  int
	Height int
	Count  int
}

// DecodeConfig decodes just the configuration (metadata) of an ICO or CUR
// file without decoding the image data. It returns the dimensions of the
// largest image and the total number of images in the file.
func DecodeConfig(r io.Reader) (Config, error) {
	// Read just enough data for header and directory entries
	headerBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return Config{}, fmt.Errorf("ico: failed to read header: %w", err)
	}

	header := Header{}
	if err := binary.Read(bytes.NewReader(headerBuf), binary.LittleEndian, &header); err != nil {
		return Config{}, fmt.Errorf("ico: failed to parse header: %w", err)
	}

	if err := validateHeader(header); err != nil {
		return Config{}, err
	}

	// Read directory entries
	entryBuf := make([]byte, entrySize*int(header.Count))
	if _, err := io.ReadFull(r, entryBuf); err != nil {
		return Config{}, fmt.Errorf("ico: failed to read directory entries: %w", err)
	}

	// Find the largest image
	var maxWidth, maxHeight int
	buf := bytes.NewReader(entryBuf)
	for i := 0; i < int(header.Count); i++ {
		var entry DirectoryEntry
		if err := binary.Read(buf, binary.LittleEndian, &entry); err != nil {
			return Config{}, fmt.Errorf("ico: failed to read directory entry %d: %w", i, err)
		}

		width := entry.GetWidth()
		height := entry.GetHeight()
		if width*height > maxWidth*maxHeight {
			maxWidth = width
			maxHeight = height
		}
	}

	return Config{
		Type:   ResourceType(header.Type),
		Width:  maxWidth,
		Height: maxHeight,
		Count:  int(header.Count),
	}, nil
}

// validateHeader checks the fixed ICONDIR fields shared by Decode and
// DecodeConfig.
func validateHeader(header Header) error {
	if header.Reserved != 0 {
		return fmt.Errorf("ico: invalid file: reserved field must be 0")
	}
	if header.Type != uint16(ResourceIcon) && header.Type != uint16(ResourceCursor) {
		return fmt.Errorf("ico: unsupported resource type: %d (want 1 for ICO or 2 for CUR)", header.Type)
	}
	if header.Count == 0 {
		return fmt.Errorf("ico: file contains no images")
	}
	return nil
}
