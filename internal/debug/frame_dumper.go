// Package debug provides ad hoc inspection tools for the emulator core,
// used when chasing a rendering bug that needs more than a running window.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FrameDumper writes PPU frame buffer snapshots to disk as they are produced,
// for later inspection outside the running emulator.
type FrameDumper struct {
	outputDir    string
	dumpEnabled  bool
	frameCount   uint64
	maxDumps     int
	dumpInterval int // dump every N frames
	pixelFilter  func(x, y int, rgb uint32) bool
}

// NewFrameDumper creates a frame dumper writing into outputDir.
func NewFrameDumper(outputDir string) *FrameDumper {
	return &FrameDumper{
		outputDir:    outputDir,
		maxDumps:     10,
		dumpInterval: 1,
	}
}

// Enable activates frame dumping, creating outputDir if needed.
func (fd *FrameDumper) Enable() {
	fd.dumpEnabled = true
	os.MkdirAll(fd.outputDir, 0755)
}

// Disable deactivates frame dumping.
func (fd *FrameDumper) Disable() {
	fd.dumpEnabled = false
}

// SetMaxDumps caps how many frames will be written before dumping stops.
func (fd *FrameDumper) SetMaxDumps(max int) {
	fd.maxDumps = max
}

// SetDumpInterval sets how many frames elapse between dumps.
func (fd *FrameDumper) SetDumpInterval(interval int) {
	fd.dumpInterval = interval
}

// SetPixelFilter restricts dumps to pixels the filter accepts; nil dumps
// everything.
func (fd *FrameDumper) SetPixelFilter(filter func(x, y int, rgb uint32) bool) {
	fd.pixelFilter = filter
}

// DumpFrameBuffer writes a 256x240 frame buffer to a plain-text hex grid.
func (fd *FrameDumper) DumpFrameBuffer(frameBuffer [256 * 240]uint32, frameNum uint64) error {
	if !fd.dumpEnabled || frameNum%uint64(fd.dumpInterval) != 0 || fd.frameCount >= uint64(fd.maxDumps) {
		return nil
	}

	filePath := filepath.Join(fd.outputDir, fmt.Sprintf("frame_%06d_%s.txt", frameNum, time.Now().Format("150405")))
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create frame dump: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "Frame Buffer Dump\nFrame Number: %d\nTimestamp: %s\nDimensions: 256x240\n===================\n\n",
		frameNum, time.Now().Format(time.RFC3339))

	for y := 0; y < 240; y++ {
		fmt.Fprintf(file, "Line %03d: ", y)
		for x := 0; x < 256; x++ {
			pixel := frameBuffer[y*256+x]
			if fd.pixelFilter != nil && !fd.pixelFilter(x, y, pixel) {
				continue
			}
			if x%16 == 0 && x > 0 {
				fmt.Fprintf(file, "\n          ")
			}
			fmt.Fprintf(file, "%06X ", pixel)
		}
		fmt.Fprintf(file, "\n")
	}

	fd.frameCount++
	return nil
}

// DumpFrameBufferRGB writes a frame buffer with per-pixel RGB breakdown and
// an overall color frequency table, useful for spotting a palette or
// compositing bug at a glance.
func (fd *FrameDumper) DumpFrameBufferRGB(frameBuffer [256 * 240]uint32, frameNum uint64) error {
	if !fd.dumpEnabled {
		return nil
	}

	filePath := filepath.Join(fd.outputDir, fmt.Sprintf("frame_rgb_%06d_%s.txt", frameNum, time.Now().Format("150405")))
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create rgb frame dump: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "Frame Buffer RGB Dump\nFrame Number: %d\nTimestamp: %s\nFormat: X,Y: RGB(r,g,b) #RRGGBB\n========================\n\n",
		frameNum, time.Now().Format(time.RFC3339))

	colorFreq := make(map[uint32]int)
	for y := 0; y < 240; y++ {
		for x := 0; x < 256; x++ {
			pixel := frameBuffer[y*256+x]
			if fd.pixelFilter != nil && !fd.pixelFilter(x, y, pixel) {
				continue
			}
			colorFreq[pixel]++
			if pixel != 0 || fd.pixelFilter != nil {
				r, g, b := (pixel>>16)&0xFF, (pixel>>8)&0xFF, pixel&0xFF
				fmt.Fprintf(file, "%3d,%3d: RGB(%3d,%3d,%3d) #%06X\n", x, y, r, g, b, pixel)
			}
		}
	}

	fmt.Fprintf(file, "\nColor Frequency Analysis:\nColor      | Count | Percentage\n-----------|-------|----------\n")
	totalPixels := 256 * 240
	for color, count := range colorFreq {
		percentage := float64(count) / float64(totalPixels) * 100
		r, g, b := (color>>16)&0xFF, (color>>8)&0xFF, color&0xFF
		fmt.Fprintf(file, "#%06X | %5d | %6.2f%%  RGB(%3d,%3d,%3d)\n", color, count, percentage, r, g, b)
	}

	return nil
}

// CreateRegionFilter creates a filter for a rectangular subregion.
func CreateRegionFilter(x1, y1, x2, y2 int) func(x, y int, rgb uint32) bool {
	return func(x, y int, rgb uint32) bool {
		return x >= x1 && x <= x2 && y >= y1 && y <= y2
	}
}

// CreateColorRangeFilter creates a filter matching an inclusive RGB range.
func CreateColorRangeFilter(minRGB, maxRGB uint32) func(x, y int, rgb uint32) bool {
	return func(x, y int, rgb uint32) bool {
		return rgb >= minRGB && rgb <= maxRGB
	}
}
