package cpu

import (
	"testing"
)

// InterruptTest represents a test case for CPU interrupt behavior
type InterruptTest struct {
	Name           string
	Setup          func(*CPUTestHelper)
	TriggerAction  func(*CPUTestHelper) // Action to trigger interrupt
	ExpectedPC     uint16               // Expected PC after interrupt
	ExpectedSP     uint8                // Expected stack pointer after interrupt
	ExpectedI      bool                 // Expected interrupt flag state
	ExpectedCycles uint64               // Expected cycle count for interrupt
	StackChecks    []StackCheck         // Expected stack contents
}

// StackCheck represents expected stack content at a specific stack position
type StackCheck struct {
	Offset uint8 // Offset from stack page (0x0100 + offset)
	Value  uint8 // Expected value
}

// TestResetSequence tests the CPU reset behavior
func TestResetSequence(t *testing.T) {
	tests := []InterruptTest{
		{
			Name: "Reset_Sequence",
			Setup: func(h *CPUTestHelper) {
				h.Memory.SetBytes(0xFFFC, 0x00, 0x80) // Reset to $8000

				h.CPU.A = 0x55
				h.CPU.X = 0xAA
				h.CPU.Y = 0xFF
				h.CPU.SP = 0x00
				h.CPU.PC = 0x1234
				h.CPU.N = true
				h.CPU.V = true
				h.CPU.D = true
				h.CPU.I = false
				h.CPU.Z = true
				h.CPU.C = true
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Reset()
			},
			ExpectedPC: 0x8000,
			ExpectedSP: 0xFD,
			ExpectedI:  true,
		},
		{
			Name: "Reset_Vector_Different_Address",
			Setup: func(h *CPUTestHelper) {
				h.Memory.SetBytes(0xFFFC, 0x34, 0x12) // Reset to $1234
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Reset()
			},
			ExpectedPC: 0x1234,
			ExpectedSP: 0xFD,
			ExpectedI:  true,
		},
		{
			Name: "Reset_Via_Pending_Interrupt",
			Setup: func(h *CPUTestHelper) {
				h.Memory.SetBytes(0xFFFC, 0x00, 0x90) // Reset to $9000
				h.LoadProgram(0x8000, 0xEA)           // NOP so Step has something to fetch if reset didn't fire
				h.CPU.PC = 0x8000
				h.CPU.SP = 0xFF
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.RequestReset()
				h.CPU.Step()
			},
			ExpectedPC:     0x9000,
			ExpectedSP:     0xFD,
			ExpectedI:      true,
			ExpectedCycles: 7,
		},
	}

	runInterruptTests(t, tests)
}

// TestIRQSequence tests IRQ interrupt handling
func TestIRQSequence(t *testing.T) {
	tests := []InterruptTest{
		{
			Name: "IRQ_Normal_Sequence",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFE, 0x00, 0x90) // IRQ handler at $9000
				h.LoadProgram(0x8123, 0xEA)            // NOP at PC, IRQ fires before fetch
				h.CPU.PC = 0x8123
				h.CPU.SP = 0xFF
				h.CPU.SetStatusByte(0x24)
				h.CPU.I = false
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.TriggerIRQ()
				h.CPU.Step()
			},
			ExpectedPC:     0x9000,
			ExpectedSP:     0xFC,
			ExpectedI:      true,
			ExpectedCycles: 7,
			StackChecks: []StackCheck{
				{Offset: 0xFF, Value: 0x81},
				{Offset: 0xFE, Value: 0x23},
				{Offset: 0xFD, Value: 0x20},
			},
		},
		{
			Name: "IRQ_Disabled_NoEffect",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.LoadProgram(0x8456, 0xEA) // NOP
				h.CPU.PC = 0x8456
				h.CPU.SP = 0xFF
				h.CPU.I = true
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.TriggerIRQ()
				h.CPU.Step() // executes the NOP instead, IRQ stays masked
			},
			ExpectedPC: 0x8457,
			ExpectedSP: 0xFF,
			ExpectedI:  true,
		},
		{
			Name: "IRQ_StatusRegister_BFlag_Clear",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFE, 0x00, 0xA0)
				h.LoadProgram(0x8789, 0xEA)
				h.CPU.PC = 0x8789
				h.CPU.SP = 0xFF
				h.CPU.I = false
				h.CPU.B = true
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.TriggerIRQ()
				h.CPU.Step()
			},
			ExpectedPC: 0xA000,
			ExpectedSP: 0xFC,
			ExpectedI:  true,
			StackChecks: []StackCheck{
				{Offset: 0xFD, Value: 0x20},
			},
		},
	}

	runInterruptTests(t, tests)
}

// TestNMISequence tests NMI interrupt handling
func TestNMISequence(t *testing.T) {
	tests := []InterruptTest{
		{
			Name: "NMI_Normal_Sequence",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFA, 0x00, 0xB0)
				h.LoadProgram(0x8ABC, 0xEA)
				h.CPU.PC = 0x8ABC
				h.CPU.SP = 0xFF
				h.CPU.SetStatusByte(0x42)
				h.CPU.I = false
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.TriggerNMI()
				h.CPU.Step()
			},
			ExpectedPC:     0xB000,
			ExpectedSP:     0xFC,
			ExpectedI:      true,
			ExpectedCycles: 7,
			StackChecks: []StackCheck{
				{Offset: 0xFF, Value: 0x8A},
				{Offset: 0xFE, Value: 0xBC},
				{Offset: 0xFD, Value: 0x62},
			},
		},
		{
			Name: "NMI_IgnoresInterruptFlag",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFA, 0x34, 0x12)
				h.LoadProgram(0x8DEF, 0xEA)
				h.CPU.PC = 0x8DEF
				h.CPU.SP = 0xFF
				h.CPU.I = true
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.TriggerNMI()
				h.CPU.Step()
			},
			ExpectedPC:     0x1234,
			ExpectedSP:     0xFC,
			ExpectedI:      true,
			ExpectedCycles: 7,
		},
		{
			Name: "NMI_StatusRegister_BFlag_Clear",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFA, 0x00, 0xC0)
				h.LoadProgram(0x8111, 0xEA)
				h.CPU.PC = 0x8111
				h.CPU.SP = 0xFF
				h.CPU.B = true
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.TriggerNMI()
				h.CPU.Step()
			},
			ExpectedPC: 0xC000,
			ExpectedSP: 0xFC,
			ExpectedI:  true,
			StackChecks: []StackCheck{
				{Offset: 0xFD, Value: 0x24},
			},
		},
	}

	runInterruptTests(t, tests)
}

// TestBRKInstruction tests the BRK instruction (software interrupt)
func TestBRKInstruction(t *testing.T) {
	tests := []InterruptTest{
		{
			Name: "BRK_Normal_Sequence",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFE, 0x00, 0xD0)
				h.LoadProgram(0x8000, 0x00) // BRK
				h.CPU.SP = 0xFF
				h.CPU.SetStatusByte(0x24)
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Step()
			},
			ExpectedPC:     0xD000,
			ExpectedSP:     0xFC,
			ExpectedI:      true,
			ExpectedCycles: 7,
			StackChecks: []StackCheck{
				{Offset: 0xFF, Value: 0x80},
				{Offset: 0xFE, Value: 0x02},
				{Offset: 0xFD, Value: 0x34},
			},
		},
		{
			Name: "BRK_StatusRegister_BFlag_Set",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.Memory.SetBytes(0xFFFE, 0x56, 0x78)
				h.LoadProgram(0x8000, 0x00)
				h.CPU.SP = 0xFF
				h.CPU.B = false
				h.CPU.I = false
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Step()
			},
			ExpectedPC: 0x7856,
			ExpectedSP: 0xFC,
			ExpectedI:  true,
			StackChecks: []StackCheck{
				{Offset: 0xFD, Value: 0x30},
			},
		},
		{
			Name: "BRK_PCIncrement",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8200)
				h.Memory.SetBytes(0xFFFE, 0x00, 0xE0)
				h.LoadProgram(0x8200, 0x00)
				h.CPU.SP = 0xFF
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Step()
			},
			ExpectedPC: 0xE000,
			ExpectedI:  true,
			StackChecks: []StackCheck{
				{Offset: 0xFF, Value: 0x82},
				{Offset: 0xFE, Value: 0x02},
			},
		},
	}

	runInterruptTests(t, tests)
}

// TestRTIInstruction tests the RTI instruction (return from interrupt)
func TestRTIInstruction(t *testing.T) {
	tests := []InterruptTest{
		{
			Name: "RTI_Normal_Sequence",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.CPU.SP = 0xFC
				h.Memory.SetByte(0x01FD, 0x42)
				h.Memory.SetByte(0x01FE, 0x34)
				h.Memory.SetByte(0x01FF, 0x12)
				h.LoadProgram(0x8000, 0x40) // RTI
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Step()
			},
			ExpectedPC:     0x1234,
			ExpectedSP:     0xFF,
			ExpectedCycles: 6,
		},
		{
			Name: "RTI_StatusRegister_Restore",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.CPU.SP = 0xFC
				h.Memory.SetByte(0x01FD, 0xE7)
				h.Memory.SetByte(0x01FE, 0x56)
				h.Memory.SetByte(0x01FF, 0x78)
				h.CPU.SetStatusByte(0x00)
				h.LoadProgram(0x8000, 0x40)
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Step()
			},
			ExpectedPC: 0x7856,
			ExpectedSP: 0xFF,
			ExpectedI:  true,
		},
		{
			Name: "RTI_IgnoresBFlag",
			Setup: func(h *CPUTestHelper) {
				h.SetupResetVector(0x8000)
				h.CPU.SP = 0xFC
				h.Memory.SetByte(0x01FD, 0x30)
				h.Memory.SetByte(0x01FE, 0x00)
				h.Memory.SetByte(0x01FF, 0x90)
				h.CPU.B = false
				h.LoadProgram(0x8000, 0x40)
			},
			TriggerAction: func(h *CPUTestHelper) {
				h.CPU.Step()
			},
			ExpectedPC: 0x9000,
			ExpectedSP: 0xFF,
		},
	}

	runInterruptTests(t, tests)
}

// TestInterruptPriority tests interrupt priority and edge cases
func TestInterruptPriority(t *testing.T) {
	t.Run("NMI_Priority_Over_IRQ", func(t *testing.T) {
		helper := NewCPUTestHelper()
		helper.SetupResetVector(0x8000)

		helper.Memory.SetBytes(0xFFFA, 0x00, 0xA0) // NMI vector
		helper.Memory.SetBytes(0xFFFE, 0x00, 0xB0) // IRQ vector
		helper.LoadProgram(0x8123, 0xEA)

		helper.CPU.PC = 0x8123
		helper.CPU.SP = 0xFF
		helper.CPU.I = false

		helper.CPU.TriggerNMI()
		helper.CPU.TriggerIRQ() // level IRQ stays asserted but NMI services first

		helper.CPU.Step()

		if helper.CPU.PC != 0xA000 {
			t.Errorf("Expected PC=0xA000 (NMI), got 0x%04X", helper.CPU.PC)
		}

		// IRQ line is still asserted and I is now set by the NMI handler, so
		// the next Step must not re-enter an interrupt handler.
		pcAfterNMI := helper.CPU.PC
		helper.CPU.Step()
		if helper.CPU.PC == pcAfterNMI {
			t.Error("expected the instruction at the NMI vector to execute")
		}
	})

	t.Run("Multiple_NMI_EdgeDetection", func(t *testing.T) {
		helper := NewCPUTestHelper()
		helper.SetupResetVector(0x8000)
		helper.Memory.SetBytes(0xFFFA, 0x00, 0xC0)
		helper.LoadProgram(0x8456, 0xEA)

		helper.CPU.PC = 0x8456
		helper.CPU.SP = 0xFF

		// SetNMI models the PPU's line: only the falling edge latches.
		helper.CPU.SetNMI(true)
		helper.CPU.SetNMI(false)
		if helper.CPU.PendingInterrupt() != InterruptNMI {
			t.Fatal("expected NMI to be latched on falling edge")
		}

		helper.CPU.Step()
		if helper.CPU.PC != 0xC000 {
			t.Errorf("Expected PC=0xC000, got 0x%04X", helper.CPU.PC)
		}

		// No further edge, so the next Step must not retrigger NMI.
		pc := helper.CPU.PC
		helper.CPU.Step()
		if helper.CPU.PC == pc {
			t.Error("NMI should not retrigger without a new falling edge")
		}
	})
}

// TestInterruptDuringInstruction tests interrupt timing
func TestInterruptDuringInstruction(t *testing.T) {
	t.Run("IRQ_During_LongInstruction", func(t *testing.T) {
		helper := NewCPUTestHelper()
		helper.SetupResetVector(0x8000)
		helper.Memory.SetBytes(0xFFFE, 0x00, 0xD0)

		helper.LoadProgram(0x8000, 0xFE, 0x00, 0x30) // INC $3000,X
		helper.CPU.X = 0x10
		helper.Memory.SetByte(0x3010, 0x55)
		helper.CPU.I = false
		helper.CPU.SP = 0xFF

		// IRQ asserted mid-instruction (no instruction boundary crossed yet)
		// is only serviced at the *next* Step, never interrupting the one
		// in flight - instructions commit atomically.
		cycles := helper.CPU.Step()
		helper.CPU.TriggerIRQ()
		if cycles != 7 {
			t.Errorf("Expected 7 cycles for INC instruction, got %d", cycles)
		}
		if helper.Memory.Read(0x3010) != 0x56 {
			t.Error("INC instruction should have completed before IRQ")
		}

		helper.CPU.Step()

		if helper.CPU.PC != 0xD000 {
			t.Errorf("Expected PC=0xD000 after IRQ, got 0x%04X", helper.CPU.PC)
		}
	})
}

// TestInterruptStackOverflow tests stack behavior during interrupts
func TestInterruptStackOverflow(t *testing.T) {
	t.Run("IRQ_With_LowStack", func(t *testing.T) {
		helper := NewCPUTestHelper()
		helper.SetupResetVector(0x8000)
		helper.Memory.SetBytes(0xFFFE, 0x00, 0xE0)
		helper.LoadProgram(0x8789, 0xEA)

		helper.CPU.PC = 0x8789
		helper.CPU.SP = 0x02
		helper.CPU.I = false

		helper.CPU.TriggerIRQ()
		helper.CPU.Step()

		if helper.CPU.SP != 0xFF {
			t.Errorf("Expected SP=0xFF after stack wrap, got 0x%02X", helper.CPU.SP)
		}

		if helper.Memory.Read(0x0102) != 0x87 {
			t.Error("PC high should be at wrapped stack location")
		}
		if helper.Memory.Read(0x0101) != 0x89 {
			t.Error("PC low should be at wrapped stack location")
		}
		if helper.Memory.Read(0x0100) == 0 {
			t.Error("Status should be at wrapped stack location")
		}
	})
}

// runInterruptTests executes a list of interrupt tests
func runInterruptTests(t *testing.T, tests []InterruptTest) {
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			helper := NewCPUTestHelper()

			if test.Setup != nil {
				test.Setup(helper)
			}

			helper.CPU.cycles = 0

			if test.TriggerAction != nil {
				test.TriggerAction(helper)
			}

			if test.ExpectedPC != 0 {
				if helper.CPU.PC != test.ExpectedPC {
					t.Errorf("Expected PC=0x%04X, got 0x%04X", test.ExpectedPC, helper.CPU.PC)
				}
			}

			if test.ExpectedSP != 0 {
				if helper.CPU.SP != test.ExpectedSP {
					t.Errorf("Expected SP=0x%02X, got 0x%02X", test.ExpectedSP, helper.CPU.SP)
				}
			}

			if helper.CPU.I != test.ExpectedI {
				t.Errorf("Expected I flag=%v, got %v", test.ExpectedI, helper.CPU.I)
			}

			if test.ExpectedCycles != 0 {
				if helper.CPU.cycles != test.ExpectedCycles {
					t.Errorf("Expected %d cycles, got %d", test.ExpectedCycles, helper.CPU.cycles)
				}
			}

			for _, check := range test.StackChecks {
				address := uint16(0x0100) + uint16(check.Offset)
				actual := helper.Memory.Read(address)
				if actual != check.Value {
					t.Errorf("Expected stack[0x%04X]=0x%02X, got 0x%02X",
						address, check.Value, actual)
				}
			}
		})
	}
}
