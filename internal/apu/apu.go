// Package apu implements the register-level surface of the NES Audio
// Processing Unit. Audio synthesis is out of scope for this core: the APU
// here exists only so the CPU's register reads and writes behave the way
// real software expects, not to produce samples.
package apu

// APU is a register-accurate stub: writes to $4000-$4013, $4015 and $4017
// are accepted and discarded, and $4015 always reads back 0 (no channel
// ever reports a nonzero length counter, and no IRQ flag is ever set).
type APU struct {
	cycles uint64
}

// New creates a new APU stub.
func New() *APU {
	return &APU{}
}

// Reset resets the APU stub to its initial state.
func (apu *APU) Reset() {
	apu.cycles = 0
}

// Step advances the APU's cycle count. It performs no audio synthesis.
func (apu *APU) Step() {
	apu.cycles++
}

// WriteRegister accepts a write to any APU register and discards it.
func (apu *APU) WriteRegister(address uint16, value uint8) {
}

// ReadStatus reads the APU status register ($4015). Since no channel is
// ever active, this always reads 0.
func (apu *APU) ReadStatus() uint8 {
	return 0
}

// GetSamples returns no audio samples; this core does not synthesize audio.
func (apu *APU) GetSamples() []float32 {
	return nil
}

// SetSampleRate is a no-op retained for interface compatibility with hosts
// that configure an audio output rate.
func (apu *APU) SetSampleRate(rate int) {
}

// GetSampleRate always reports 0: there is no audio output to rate-convert.
func (apu *APU) GetSampleRate() int {
	return 0
}
