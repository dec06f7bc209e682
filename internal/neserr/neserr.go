// Package neserr defines the fatal error kinds the emulator core can raise,
// distinguishing construction-time refusals from runtime faults so callers
// can tell "this ROM is unsupported" from "this bus address is a gap".
package neserr

import "fmt"

// InvalidAddress reports a bus decode gap: an address no component claims.
type InvalidAddress struct {
	Address uint16
}

func (e *InvalidAddress) Error() string {
	return fmt.Sprintf("invalid address: $%04X maps to no bus target", e.Address)
}

// ReadOnly reports a write to a register or memory region that only supports reads.
type ReadOnly struct {
	Address uint16
}

func (e *ReadOnly) Error() string {
	return fmt.Sprintf("write to read-only address $%04X", e.Address)
}

// WriteOnly reports a read from a register that only supports writes.
type WriteOnly struct {
	Address uint16
}

func (e *WriteOnly) Error() string {
	return fmt.Sprintf("read from write-only address $%04X", e.Address)
}

// InvalidOpcode reports an opcode byte with no entry in the decode table.
type InvalidOpcode struct {
	Opcode uint8
	PC     uint16
}

func (e *InvalidOpcode) Error() string {
	return fmt.Sprintf("invalid opcode $%02X at PC=$%04X", e.Opcode, e.PC)
}

// UnsupportedRom reports an iNES header naming a mapper or timing this core
// does not implement (only mapper 0/NROM and mapper 1/MMC1, NTSC only).
type UnsupportedRom struct {
	Reason string
}

func (e *UnsupportedRom) Error() string {
	return "unsupported ROM: " + e.Reason
}

// BadPalette reports a palette file of the wrong length (must be exactly
// 192 bytes: 64 RGB triples).
type BadPalette struct {
	Length int
}

func (e *BadPalette) Error() string {
	return fmt.Sprintf("bad palette file: expected 192 bytes, got %d", e.Length)
}
