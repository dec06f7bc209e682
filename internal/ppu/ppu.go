// Package ppu implements the Picture Processing Unit for the NES (2C02).
package ppu

import (
	"gones/internal/memory"

	"github.com/golang/glog"
)

// PPU represents the NES Picture Processing Unit (2C02).
type PPU struct {
	// CPU-visible registers
	ppuCtrl   uint8 // $2000
	ppuMask   uint8 // $2001
	ppuStatus uint8 // $2002
	oamAddr   uint8 // $2003

	// Loopy scroll/address state
	v uint16 // current VRAM address (15 bits)
	t uint16 // temporary VRAM address / address latch (15 bits)
	x uint8  // fine X scroll (3 bits)
	w bool   // write toggle, shared by PPUSCROLL/PPUADDR

	memory *memory.PPUMemory

	scanline   int // -1 (pre-render) through 260
	cycle      int // 0 through 340
	frameCount uint64
	oddFrame   bool
	readBuffer uint8 // PPUDATA read-ahead buffer

	oam [256]uint8

	// Background pipeline: latches for the tile under fetch, shift registers
	// for the tile being rendered.
	ntByte    uint8
	atByte    uint8
	tileLSB   uint8
	tileMSB   uint8
	patternLo uint16
	patternHi uint16
	attrLo    uint16
	attrHi    uint16

	// Foreground pipeline, evaluated once per scanline (see evaluateSprites).
	pendingSprites  []spriteSlot
	spriteOverflow  bool
	sprite0HitLatch bool

	frameBuffer [256 * 240]uint32

	nmiCallback           func()
	frameCompleteCallback func()

	backgroundEnabled bool
	spritesEnabled    bool
	renderingEnabled  bool

	cycleCount uint64
}

// spriteSlot is one sprite prepared for rendering on the scanline it was
// evaluated for. Pattern rows are pre-flipped so the renderer only ever reads
// MSB-first.
type spriteSlot struct {
	x         uint8
	patternLo uint8
	patternHi uint8
	palette   uint8
	priority  uint8 // 0 = in front of background, 1 = behind
	isZero    bool
}

const maxSpritesPerScanline = 8

// New creates a new PPU instance.
func New() *PPU {
	p := &PPU{}
	p.Reset()
	return p
}

// Reset resets the PPU to its power-up state.
func (p *PPU) Reset() {
	p.ppuCtrl = 0
	p.ppuMask = 0
	p.ppuStatus = 0xA0
	p.oamAddr = 0

	p.v = 0
	p.t = 0
	p.x = 0
	p.w = false

	p.scanline = -1
	p.cycle = 0
	p.frameCount = 0
	p.oddFrame = false
	p.readBuffer = 0

	p.ntByte, p.atByte, p.tileLSB, p.tileMSB = 0, 0, 0, 0
	p.patternLo, p.patternHi, p.attrLo, p.attrHi = 0, 0, 0, 0

	p.pendingSprites = nil
	p.spriteOverflow = false
	p.sprite0HitLatch = false

	p.backgroundEnabled = false
	p.spritesEnabled = false
	p.renderingEnabled = false

	p.cycleCount = 0

	for i := range p.oam {
		p.oam[i] = 0
	}
	for i := range p.frameBuffer {
		p.frameBuffer[i] = 0
	}
}

// SetMemory sets the PPU memory interface (nametables, CHR, palette RAM).
func (p *PPU) SetMemory(mem *memory.PPUMemory) {
	p.memory = mem
}

// SetNMICallback installs the function invoked when the PPU raises NMI.
func (p *PPU) SetNMICallback(callback func()) {
	p.nmiCallback = callback
}

// SetFrameCompleteCallback installs the function invoked once per completed frame.
func (p *PPU) SetFrameCompleteCallback(callback func()) {
	p.frameCompleteCallback = callback
}

// ReadRegister reads from a CPU-visible PPU register ($2000-$2007).
// Write-only registers return the low 5 bits of PPUSTATUS, approximating
// open-bus behavior.
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address {
	case 0x2002:
		status := p.ppuStatus
		p.ppuStatus &^= 0x80 // clear VBlank flag
		p.w = false
		return status
	case 0x2004:
		return p.oam[p.oamAddr]
	case 0x2007:
		return p.readPPUData()
	default:
		return p.ppuStatus & 0x1F
	}
}

// WriteRegister writes to a CPU-visible PPU register ($2000-$2007).
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address {
	case 0x2000:
		p.ppuCtrl = value
		p.t = (p.t & 0xF3FF) | ((uint16(value) & 0x03) << 10)
		p.updateRenderingFlags()
	case 0x2001:
		p.ppuMask = value
		p.updateRenderingFlags()
	case 0x2003:
		p.oamAddr = value
	case 0x2004:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 0x2005:
		p.writePPUScroll(value)
	case 0x2006:
		p.writePPUAddr(value)
	case 0x2007:
		p.writePPUData(value)
	}
}

// WriteOAM writes to OAM directly, used by the bus's OAM DMA transfer.
func (p *PPU) WriteOAM(address uint8, value uint8) {
	p.oam[address] = value
}

// Step advances the PPU by one dot (341 dots per scanline, 262 scanlines
// per frame, with the usual odd-frame dot skip on the pre-render line).
func (p *PPU) Step() {
	p.cycleCount++
	p.cycle++
	if p.cycle > 340 {
		p.cycle = 0
		p.scanline++
		if p.scanline > 260 {
			p.scanline = -1
			p.frameCount++
			p.oddFrame = !p.oddFrame
			if p.frameCompleteCallback != nil {
				p.frameCompleteCallback()
			}
		}
	}

	if p.scanline == 0 && p.cycle == 0 && p.oddFrame && p.backgroundEnabled {
		p.cycle = 1
	}

	p.renderCycle()
}

// renderCycle drives PPUSTATUS transitions, pixel output, and the
// background/sprite pipelines for the current dot.
func (p *PPU) renderCycle() {
	if p.scanline == -1 && p.cycle == 1 {
		p.ppuStatus &^= 0xE0 // clear VBlank, sprite 0 hit, sprite overflow
		p.sprite0HitLatch = false
		p.spriteOverflow = false
	}

	if p.scanline == 241 && p.cycle == 1 {
		p.ppuStatus |= 0x80
		if p.ppuCtrl&0x80 != 0 && p.nmiCallback != nil {
			p.nmiCallback()
		}
	}

	if p.memory == nil {
		return
	}

	visible := p.scanline >= 0 && p.scanline < 240
	if visible && p.cycle >= 1 && p.cycle <= 256 {
		p.renderPixel()
	}

	if !p.renderingEnabled || (p.scanline != -1 && !visible) {
		return
	}

	dot := p.cycle
	if (dot >= 1 && dot <= 256) || (dot >= 321 && dot <= 336) {
		p.shiftBackgroundRegisters()
	}
	if (dot >= 2 && dot <= 257) || (dot >= 322 && dot <= 337) {
		p.backgroundFetch(dot)
	}
	if dot == 256 {
		p.incrementY()
	}
	if dot == 257 {
		p.copyX()
		p.evaluateSprites()
	}
	if p.scanline == -1 && dot >= 280 && dot <= 304 {
		p.copyY()
	}
}

// backgroundFetch performs the one memory access due at this dot in the
// 8-cycle tile fetch cadence, and reloads the shift registers every 8th dot.
func (p *PPU) backgroundFetch(dot int) {
	switch dot % 8 {
	case 1:
		p.reloadShiftRegisters()
		p.ntByte = p.memory.Read(0x2000 | (p.v & 0x0FFF))
	case 3:
		addr := 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
		attr := p.memory.Read(addr)
		shift := ((p.v >> 4) & 4) | (p.v & 2)
		p.atByte = (attr >> shift) & 0x03
	case 5:
		fineY := (p.v >> 12) & 0x07
		p.tileLSB = p.memory.Read(p.backgroundPatternBase() + uint16(p.ntByte)*16 + fineY)
	case 7:
		fineY := (p.v >> 12) & 0x07
		p.tileMSB = p.memory.Read(p.backgroundPatternBase() + uint16(p.ntByte)*16 + fineY + 8)
	case 0:
		p.incrementX()
	}
}

// backgroundPatternBase returns the CHR base address selected by PPUCTRL bit 4.
func (p *PPU) backgroundPatternBase() uint16 {
	if p.ppuCtrl&0x10 != 0 {
		return 0x1000
	}
	return 0x0000
}

// reloadShiftRegisters loads the low byte of each shift register with the
// tile just fetched; the high byte still holds the previous tile, draining
// out over the next 8 shifts.
func (p *PPU) reloadShiftRegisters() {
	p.patternLo = (p.patternLo & 0xFF00) | uint16(p.tileLSB)
	p.patternHi = (p.patternHi & 0xFF00) | uint16(p.tileMSB)

	var loFill, hiFill uint16
	if p.atByte&0x01 != 0 {
		loFill = 0xFF
	}
	if p.atByte&0x02 != 0 {
		hiFill = 0xFF
	}
	p.attrLo = (p.attrLo & 0xFF00) | loFill
	p.attrHi = (p.attrHi & 0xFF00) | hiFill
}

func (p *PPU) shiftBackgroundRegisters() {
	p.patternLo <<= 1
	p.patternHi <<= 1
	p.attrLo <<= 1
	p.attrHi <<= 1
}

// backgroundPixel returns the palette-relative pixel (0 = transparent) and
// palette index for the current dot, honoring fine X and the left-column mask.
func (p *PPU) backgroundPixel(x int) (pixel, palette uint8) {
	if !p.backgroundEnabled {
		return 0, 0
	}
	if x < 8 && p.ppuMask&0x02 == 0 {
		return 0, 0
	}
	shift := uint(15 - p.x)
	lsb := uint8((p.patternLo >> shift) & 1)
	msb := uint8((p.patternHi >> shift) & 1)
	pixel = (msb << 1) | lsb
	alo := uint8((p.attrLo >> shift) & 1)
	ahi := uint8((p.attrHi >> shift) & 1)
	palette = (ahi << 1) | alo
	return pixel, palette
}

// evaluateSprites scans OAM for the sprites visible on the next scanline,
// keeping at most eight in priority (OAM index) order and setting the
// overflow flag when more were found. Matching hardware's per-dot OAM scan
// pixel-for-pixel isn't necessary to reproduce its observable behavior, so
// this evaluates the whole scanline as a batch at dot 257, the point real
// hardware starts fetching sprite data for the line about to be drawn.
func (p *PPU) evaluateSprites() {
	target := p.scanline + 1
	if target > 239 {
		p.pendingSprites = p.pendingSprites[:0]
		return
	}

	height := 8
	if p.ppuCtrl&0x20 != 0 {
		height = 16
	}

	slots := p.pendingSprites[:0]
	found := 0
	for i := 0; i < 64; i++ {
		base := i * 4
		y := int(p.oam[base])
		row := target - y - 1
		if row < 0 || row >= height {
			continue
		}
		found++
		if len(slots) >= maxSpritesPerScanline {
			p.spriteOverflow = true
			continue
		}

		tile := p.oam[base+1]
		attr := p.oam[base+2]
		x := p.oam[base+3]
		flipV := attr&0x80 != 0
		flipH := attr&0x40 != 0

		r := row
		if flipV {
			r = height - 1 - row
		}

		var patternBase uint16
		var tileIndex uint8
		if height == 16 {
			if tile&0x01 != 0 {
				patternBase = 0x1000
			}
			tileIndex = tile &^ 0x01
			if r >= 8 {
				tileIndex++
				r -= 8
			}
		} else {
			if p.ppuCtrl&0x08 != 0 {
				patternBase = 0x1000
			}
			tileIndex = tile
		}

		addr := patternBase + uint16(tileIndex)*16 + uint16(r)
		lo := p.memory.Read(addr)
		hi := p.memory.Read(addr + 8)
		if flipH {
			lo = reverseBits(lo)
			hi = reverseBits(hi)
		}

		slots = append(slots, spriteSlot{
			x:         x,
			patternLo: lo,
			patternHi: hi,
			palette:   attr & 0x03,
			priority:  (attr >> 5) & 0x01,
			isZero:    i == 0,
		})
	}
	p.pendingSprites = slots
	if found > maxSpritesPerScanline {
		p.spriteOverflow = true
	}
}

func reverseBits(b uint8) uint8 {
	var r uint8
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// spritePixel returns the first non-transparent sprite pixel under x, in OAM
// priority order, along with its palette, priority bit, and whether it is
// sprite 0.
func (p *PPU) spritePixel(x int) (pixel, palette, priority uint8, isZero bool) {
	if !p.spritesEnabled {
		return 0, 0, 0, false
	}
	if x < 8 && p.ppuMask&0x04 == 0 {
		return 0, 0, 0, false
	}
	for _, s := range p.pendingSprites {
		col := x - int(s.x)
		if col < 0 || col > 7 {
			continue
		}
		bit := uint(7 - col)
		lsb := (s.patternLo >> bit) & 1
		msb := (s.patternHi >> bit) & 1
		px := (msb << 1) | lsb
		if px == 0 {
			continue
		}
		return px, s.palette, s.priority, s.isZero
	}
	return 0, 0, 0, false
}

// renderPixel composites the background and sprite pixel at the current dot
// into the frame buffer and updates the sprite-0-hit flag.
func (p *PPU) renderPixel() {
	x := p.cycle - 1
	y := p.scanline

	bgPixel, bgPalette := p.backgroundPixel(x)
	sprPixel, sprPalette, sprPriority, isZero := p.spritePixel(x)

	if isZero && bgPixel != 0 && sprPixel != 0 && p.backgroundEnabled && p.spritesEnabled && x != 255 {
		p.ppuStatus |= 0x40
		p.sprite0HitLatch = true
	}

	var paletteAddr uint16
	switch {
	case bgPixel == 0 && sprPixel == 0:
		paletteAddr = 0x3F00
	case bgPixel == 0:
		paletteAddr = 0x3F10 + uint16(sprPalette)*4 + uint16(sprPixel)
	case sprPixel == 0:
		paletteAddr = 0x3F00 + uint16(bgPalette)*4 + uint16(bgPixel)
	case sprPriority == 0:
		paletteAddr = 0x3F10 + uint16(sprPalette)*4 + uint16(sprPixel)
	default:
		paletteAddr = 0x3F00 + uint16(bgPalette)*4 + uint16(bgPixel)
	}

	colorIndex := p.memory.Read(paletteAddr)
	if p.ppuMask&0x01 != 0 {
		colorIndex &= 0x30 // greyscale
	}
	p.frameBuffer[y*256+x] = NESColorToRGB(colorIndex)
}

func (p *PPU) updateRenderingFlags() {
	p.backgroundEnabled = p.ppuMask&0x08 != 0
	p.spritesEnabled = p.ppuMask&0x10 != 0
	p.renderingEnabled = p.backgroundEnabled || p.spritesEnabled
}

// writePPUScroll handles writes to PPUSCROLL ($2005).
func (p *PPU) writePPUScroll(value uint8) {
	if !p.w {
		p.t = (p.t & 0xFFE0) | (uint16(value) >> 3)
		p.x = value & 0x07
		p.w = true
	} else {
		p.t = (p.t & 0x8FFF) | ((uint16(value) & 0x07) << 12)
		p.t = (p.t & 0xFC1F) | ((uint16(value) & 0xF8) << 2)
		p.w = false
	}
}

// writePPUAddr handles writes to PPUADDR ($2006).
func (p *PPU) writePPUAddr(value uint8) {
	if !p.w {
		p.t = (p.t & 0x80FF) | ((uint16(value) & 0x3F) << 8)
		p.w = true
	} else {
		p.t = (p.t & 0xFF00) | uint16(value)
		p.v = p.t
		p.w = false
	}
}

// readPPUData handles reads from PPUDATA ($2007), including the one-read
// lag for everything below the palette range.
func (p *PPU) readPPUData() uint8 {
	var data uint8
	if p.memory == nil {
		data = 0
	} else if p.v >= 0x3F00 {
		data = p.memory.Read(p.v)
		p.readBuffer = p.memory.Read(p.v & 0x2FFF)
	} else {
		data = p.readBuffer
		p.readBuffer = p.memory.Read(p.v)
	}
	p.advanceDataAddress()
	return data
}

// writePPUData handles writes to PPUDATA ($2007).
func (p *PPU) writePPUData(value uint8) {
	if p.memory != nil {
		p.memory.Write(p.v, value)
	}
	p.advanceDataAddress()
}

func (p *PPU) advanceDataAddress() {
	if p.ppuCtrl&0x04 != 0 {
		p.v += 32
	} else {
		p.v++
	}
	p.v &= 0x3FFF
}

// GetFrameBuffer returns the current frame buffer.
func (p *PPU) GetFrameBuffer() [256 * 240]uint32 {
	return p.frameBuffer
}

// GetFrameCount returns the number of frames completed.
func (p *PPU) GetFrameCount() uint64 {
	return p.frameCount
}

// GetScanline returns the current scanline (-1 through 260).
func (p *PPU) GetScanline() int {
	return p.scanline
}

// GetCycle returns the current dot within the scanline.
func (p *PPU) GetCycle() int {
	return p.cycle
}

// IsRenderingEnabled reports whether background or sprite rendering is on.
func (p *PPU) IsRenderingEnabled() bool {
	return p.renderingEnabled
}

// IsVBlank reports whether the VBlank flag is currently set.
func (p *PPU) IsVBlank() bool {
	return p.ppuStatus&0x80 != 0
}

// IsSprite0Hit reports whether sprite 0 hit has latched this frame.
func (p *PPU) IsSprite0Hit() bool {
	return p.sprite0HitLatch
}

// IsSpriteOverflow reports whether more than eight sprites were found on
// some scanline this frame.
func (p *PPU) IsSpriteOverflow() bool {
	return p.spriteOverflow
}

// GetCycleCount returns the total number of PPU dots elapsed since reset.
func (p *PPU) GetCycleCount() uint64 {
	return p.cycleCount
}

// nesColorPalette is the NTSC 2C02 palette, 64 entries of 0x00RRGGBB.
var nesColorPalette = [64]uint32{
	0xFF666666, 0xFF002A88, 0xFF1412A7, 0xFF3B00A4, 0xFF5C007E, 0xFF6E0040, 0xFF6C0600, 0xFF561D00,
	0xFF333500, 0xFF0B4800, 0xFF005200, 0xFF004F08, 0xFF00404D, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFADADAD, 0xFF155FD9, 0xFF4240FF, 0xFF7527FE, 0xFFA01ACC, 0xFFB71E7B, 0xFFB53120, 0xFF994E00,
	0xFF6B6D00, 0xFF388700, 0xFF0C9300, 0xFF008F32, 0xFF007C8D, 0xFF000000, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFF64B0FF, 0xFF9290FF, 0xFFC676FF, 0xFFF36AFF, 0xFFFE6ECC, 0xFFFE8170, 0xFFEA9E22,
	0xFFBCBE00, 0xFF88D800, 0xFF5CE430, 0xFF45E082, 0xFF48CDDE, 0xFF4F4F4F, 0xFF000000, 0xFF000000,
	0xFFFFFEFF, 0xFFC0DFFF, 0xFFD3D2FF, 0xFFE8C8FF, 0xFFFBC2FF, 0xFFFEC4EA, 0xFFFECCC5, 0xFFF7D8A5,
	0xFFE4E594, 0xFFCFF29B, 0xFFBEFBB3, 0xFFB8F8D8, 0xFFB8F8F8, 0xFF000000, 0xFF000000, 0xFF000000,
}

// NESColorToRGB converts a 6-bit NES color index into an 0x00RRGGBB value.
func NESColorToRGB(colorIndex uint8) uint32 {
	if colorIndex >= 64 {
		glog.Warningf("ppu: palette index %d out of range, clamping to 0", colorIndex)
		return nesColorPalette[0] & 0x00FFFFFF
	}
	return nesColorPalette[colorIndex] & 0x00FFFFFF
}

// incrementX increments the coarse X scroll in v, wrapping into the
// adjacent horizontal nametable.
func (p *PPU) incrementX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

// incrementY increments fine Y in v, carrying into coarse Y and the vertical
// nametable as it overflows.
func (p *PPU) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
	} else {
		p.v &^= 0x7000
		y := (p.v & 0x03E0) >> 5
		switch y {
		case 29:
			y = 0
			p.v ^= 0x0800
		case 31:
			y = 0
		default:
			y++
		}
		p.v = (p.v &^ 0x03E0) | (y << 5)
	}
}

// copyX copies the horizontal position bits (coarse X, horizontal nametable)
// from t into v, at dot 257 of every rendering scanline.
func (p *PPU) copyX() {
	p.v = (p.v & 0xFBE0) | (p.t & 0x041F)
}

// copyY copies the vertical position bits (fine Y, coarse Y, vertical
// nametable) from t into v, during dots 280-304 of the pre-render scanline.
func (p *PPU) copyY() {
	p.v = (p.v & 0x841F) | (p.t & 0x7BE0)
}
