package ico

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
)

// Decode decodes an ICO or CUR file from the given reader
func Decode(r io.Reader) (*ICO, error) {
	// Read all data into memory for easier parsing
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ico: failed to read data: %w", err)
	}

	if len(data) < headerSize {
		return nil, fmt.Errorf("ico: file too short: need at least %d bytes for header", headerSize)
	}

	// Parse header
	header := Header{}
	buf := bytes.NewReader(data)
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("ico: failed to read header: %w", err)
	}

	if err := validateHeader(header); err != nil {
		return nil, err
	}

	// Parse directory entries
	entries := make([]DirectoryEntry, header.Count)
	for i := 0; i < int(header.Count); i++ {
		if err := binary.Read(buf, binary.LittleEndian, &entries[i]); err != nil {
			return nil, fmt.Errorf("ico: failed to read directory entry %d: %w", i, err)
		}
	}

	// Decode the payloads
	images := make([]image.Image, header.Count)
	metadata := make([]EntryMetadata, header.Count)
	for i, entry := range entries {
		end := uint64(entry.Offset) + uint64(entry.Size)
		if uint64(entry.Offset) >= uint64(len(data)) || end > uint64(len(data)) {
			return nil, fmt.Errorf("ico: image %d extends beyond file boundary", i)
		}

		img, meta, err := decodeEntry(data[entry.Offset:end])
		if err != nil {
			return nil, fmt.Errorf("ico: failed to decode image %d: %w", i, err)
		}
		if header.Type == uint16(ResourceCursor) {
			// For cursors the directory's plane/depth fields hold the hotspot.
			meta.HotspotX = entry.Planes
			meta.HotspotY = entry.BitCount
		}
		images[i] = img
		metadata[i] = meta
	}

	return &ICO{
		Header:   header,
		Entries:  entries,
		Images:   images,
		Metadata: metadata,
	}, nil
}

// decodeEntry sniffs a payload's leading bytes and dispatches: PNG payloads
// start with the PNG signature, everything else is a headerless DIB.
func decodeEntry(payload []byte) (image.Image, EntryMetadata, error) {
	if len(payload) >= 4 && bytes.Equal(payload[:4], pngSignature[:4]) {
		img, bitsPerPixel, err := decodePNG(payload)
		if err != nil {
			return nil, EntryMetadata{}, err
		}
		return img, EntryMetadata{BitsPerPixel: bitsPerPixel, IsPNG: true}, nil
	}

	img, bitsPerPixel, err := decodeBMP(payload)
	if err != nil {
		return nil, EntryMetadata{}, err
	}
	return img, EntryMetadata{BitsPerPixel: bitsPerPixel}, nil
}
