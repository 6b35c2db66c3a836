package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	bmp "github.com/jsummers/gobmp"
	"golang.org/x/image/draw"

	ico "github.com/lofcz/TinyImage-sub003"
)

var (
	output   = flag.String("o", "", "Output file (defaults to the input name with .ico or .cur)")
	sizeList = flag.String("sizes", "16,32,48,64,128,256", "Comma-separated list of square sizes to emit")
	cursor   = flag.Bool("cursor", false, "Write a CUR file instead of an ICO")
	hotspot  = flag.String("hotspot", "0,0", "Cursor hotspot as 'x,y', relative to the largest size")
	verbose  = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <source.png|source.bmp>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Build a multi-size ICO or CUR file from a PNG or BMP source image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s logo.png                       # logo.ico with the default sizes\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -sizes=16,32 -o=app.ico a.bmp  # two sizes from a BMP source\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -cursor -hotspot=2,2 arrow.png # a cursor with its click point\n", os.Args[0])
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	srcPath := flag.Arg(0)

	sizes, err := parseSizes(*sizeList)
	if err != nil {
		log.Fatalf("Invalid -sizes: %v", err)
	}

	src, err := loadImage(srcPath)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", srcPath, err)
	}

	resourceType := ico.ResourceIcon
	ext := ".ico"
	if *cursor {
		resourceType = ico.ResourceCursor
		ext = ".cur"
	}

	outPath := *output
	if outPath == "" {
		outPath = strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ext
	}

	images := make([]image.Image, len(sizes))
	for i, size := range sizes {
		images[i] = scaleImage(src, size)
		if *verbose {
			fmt.Printf("Scaled to %dx%d\n", size, size)
		}
	}

	var hotspots []ico.Hotspot
	if *cursor {
		hx, hy, err := parseHotspot(*hotspot)
		if err != nil {
			log.Fatalf("Invalid -hotspot: %v", err)
		}
		// Scale the hotspot with each entry so it stays on the same feature.
		base := sizes[0]
		for _, size := range sizes {
			if size > base {
				base = size
			}
		}
		hotspots = make([]ico.Hotspot, len(sizes))
		for i, size := range sizes {
			hotspots[i] = ico.Hotspot{
				X: uint16(int(hx) * size / base),
				Y: uint16(int(hy) * size / base),
			}
		}
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", outPath, err)
	}
	defer outFile.Close()

	if err := ico.Encode(outFile, images, resourceType, hotspots); err != nil {
		log.Fatalf("Failed to encode: %v", err)
	}

	fmt.Printf("Wrote %s with sizes %v\n", outPath, sizes)
}

// loadImage reads a PNG or BMP source image, picking the decoder by file
// extension.
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		return bmp.Decode(file)
	case ".png":
		return png.Decode(file)
	default:
		return nil, fmt.Errorf("unsupported source format %q (want .png or .bmp)", filepath.Ext(path))
	}
}

// scaleImage resizes src to a size x size square with Catmull-Rom
// interpolation.
func scaleImage(src image.Image, size int) image.Image {
	if b := src.Bounds(); b.Dx() == size && b.Dy() == size {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// parseSizes parses the comma-separated size list, sorted as given.
func parseSizes(spec string) ([]int, error) {
	parts := strings.Split(spec, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad size %q", part)
		}
		if size < 1 || size > 256 {
			return nil, fmt.Errorf("size %d out of range (1-256)", size)
		}
		sizes = append(sizes, size)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes given")
	}
	return sizes, nil
}

// parseHotspot parses a "x,y" pair.
func parseHotspot(spec string) (uint16, uint16, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want 'x,y', got %q", spec)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || x < 0 || x > 255 {
		return 0, 0, fmt.Errorf("bad x coordinate %q", parts[0])
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || y < 0 || y > 255 {
		return 0, 0, fmt.Errorf("bad y coordinate %q", parts[1])
	}
	return uint16(x), uint16(y), nil
}
