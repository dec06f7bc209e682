package cartridge

import "testing"

// Test MMC1 (Mapper 1) serial shift register protocol and bank switching.

func writeMMC1(m *Mapper001, address uint16, value uint8) {
	for i := 0; i < 5; i++ {
		m.WritePRG(address, (value>>uint(i))&0x01)
	}
}

func newMMC1TestCart(prgBanks, chrBanks int) (*Cartridge, *Mapper001) {
	cart := &Cartridge{
		prgROM:    make([]uint8, prgBanks*0x4000),
		chrROM:    make([]uint8, chrBanks*0x1000),
		mapperID:  1,
		mirror:    MirrorHorizontal,
		hasCHRRAM: chrBanks == 0,
	}
	for bank := 0; bank < prgBanks; bank++ {
		for i := 0; i < 0x4000; i++ {
			cart.prgROM[bank*0x4000+i] = uint8(bank)
		}
	}
	mapper := NewMapper001(cart)
	cart.mapper = mapper
	return cart, mapper
}

func TestMapper001_ResetBitForcesPRGMode3(t *testing.T) {
	_, m := newMMC1TestCart(4, 2)
	m.control = 0x00
	m.WritePRG(0x8000, 0x80)
	if m.prgMode() != 3 {
		t.Errorf("reset write should force PRG mode 3, got %d", m.prgMode())
	}
	if m.shiftCount != 0 {
		t.Errorf("reset write should clear shift count, got %d", m.shiftCount)
	}
}

func TestMapper001_FifthWriteLatchesControlRegister(t *testing.T) {
	_, m := newMMC1TestCart(4, 2)
	// control = 0b11010 -> mirroring=2 (vertical), prgMode=2, chrMode=1
	writeMMC1(m, 0x8000, 0x1A)
	if m.control&0x03 != 0x02 {
		t.Errorf("expected vertical mirroring bits, got control=%#x", m.control)
	}
	if m.prgMode() != 2 {
		t.Errorf("expected PRG mode 2, got %d", m.prgMode())
	}
	if m.chrMode() != 1 {
		t.Errorf("expected CHR mode 1, got %d", m.chrMode())
	}
}

func TestMapper001_PRGBankSelect16KBMode(t *testing.T) {
	cart, m := newMMC1TestCart(8, 2)
	writeMMC1(m, 0x8000, 0x0C) // PRG mode 3: fix last bank at 0xC000
	writeMMC1(m, 0xE000, 0x02) // select PRG bank 2 at 0x8000

	if got := m.ReadPRG(0x8000); got != 2 {
		t.Errorf("expected switchable bank 2 at 0x8000, got %d", got)
	}
	lastBank := uint8(len(cart.prgROM)/0x4000 - 1)
	if got := m.ReadPRG(0xC000); got != lastBank {
		t.Errorf("expected fixed last bank %d at 0xC000, got %d", lastBank, got)
	}
}

func TestMapper001_PRGBankSelect32KBMode(t *testing.T) {
	_, m := newMMC1TestCart(8, 2)
	writeMMC1(m, 0x8000, 0x00) // PRG mode 0: 32KB mode
	writeMMC1(m, 0xE000, 0x04) // prgBank=4 -> even bank 4 at $8000, odd bank 5 at $C000

	if got := m.ReadPRG(0x8000); got != 4 {
		t.Errorf("expected bank 4 at 0x8000 in 32KB mode, got %d", got)
	}
	if got := m.ReadPRG(0xC000); got != 5 {
		t.Errorf("expected bank 5 at 0xC000 in 32KB mode, got %d", got)
	}
}

func TestMapper001_PRGRAMEnableBit(t *testing.T) {
	_, m := newMMC1TestCart(4, 2)
	writeMMC1(m, 0xE000, 0x10) // bit 4 set disables PRG-RAM
	m.WritePRG(0x6000, 0x42)
	if got := m.ReadPRG(0x6000); got == 0x42 {
		t.Errorf("expected PRG-RAM writes to be ignored while disabled")
	}

	writeMMC1(m, 0xE000, 0x00) // bit 4 clear re-enables PRG-RAM
	m.WritePRG(0x6000, 0x42)
	if got := m.ReadPRG(0x6000); got != 0x42 {
		t.Errorf("expected PRG-RAM write 0x42, got 0x%02X", got)
	}
}

func TestMapper001_CHRBankSwitching4KBMode(t *testing.T) {
	cart, m := newMMC1TestCart(4, 4)
	for bank := 0; bank < 4; bank++ {
		for i := 0; i < 0x1000; i++ {
			cart.chrROM[bank*0x1000+i] = uint8(0x10 + bank)
		}
	}
	writeMMC1(m, 0x8000, 0x10) // CHR mode 1 (4KB), PRG mode 0
	writeMMC1(m, 0xA000, 0x01) // chrBank0 = 1
	writeMMC1(m, 0xC000, 0x03) // chrBank1 = 3

	if got := m.ReadCHR(0x0000); got != 0x11 {
		t.Errorf("expected CHR bank 1 at 0x0000, got 0x%02X", got)
	}
	if got := m.ReadCHR(0x1000); got != 0x13 {
		t.Errorf("expected CHR bank 3 at 0x1000, got 0x%02X", got)
	}
}

func TestMapper001_CHRBankSwitching8KBMode(t *testing.T) {
	cart, m := newMMC1TestCart(4, 4)
	for bank := 0; bank < 4; bank++ {
		for i := 0; i < 0x1000; i++ {
			cart.chrROM[bank*0x1000+i] = uint8(0x20 + bank)
		}
	}
	writeMMC1(m, 0x8000, 0x00) // CHR mode 0 (8KB)
	writeMMC1(m, 0xA000, 0x02) // chrBank0 selects 8KB pair starting at even bank 2

	if got := m.ReadCHR(0x0000); got != 0x22 {
		t.Errorf("expected bank 2 at 0x0000, got 0x%02X", got)
	}
	if got := m.ReadCHR(0x1000); got != 0x23 {
		t.Errorf("expected bank 3 at 0x1000, got 0x%02X", got)
	}
}

func TestMapper001_CHRRAMWritesAllowedWhenNoCHRROM(t *testing.T) {
	cart := &Cartridge{
		prgROM:    make([]uint8, 0x4000),
		chrROM:    make([]uint8, 0x2000),
		mapperID:  1,
		hasCHRRAM: true,
	}
	m := NewMapper001(cart)
	m.WriteCHR(0x0010, 0x99)
	if got := m.ReadCHR(0x0010); got != 0x99 {
		t.Errorf("expected CHR-RAM write to persist, got 0x%02X", got)
	}
}

func TestMapper001_DynamicMirroringOverridesHeader(t *testing.T) {
	cart, m := newMMC1TestCart(4, 2)
	cart.mirror = MirrorHorizontal
	writeMMC1(m, 0x8000, 0x02) // mirroring bits = 2 -> vertical
	if got := cart.GetMirrorMode(); got != MirrorVertical {
		t.Errorf("expected mapper-reported vertical mirroring, got %v", got)
	}
}
