// system_chip_test.go - Interrupt, DMA and timer tests
//
// License: GPLv3 or later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSystemChip() (*SystemChip, *CPU_X88, *Memory, *IOBus) {
	mem := NewMemory(nil)
	bus := NewIOBus()
	cpu := NewCPU_X88(mem, bus, nil)
	cpu.CS = 0x0000
	cpu.IP = 0x0100
	sys := NewSystemChip(bus, cpu, mem, nil)
	return sys, cpu, mem, bus
}

// TestDMA_FlipFlopPairing checks that two successive writes of L then H
// produce base = H<<8|L, and that a flip-flop reset makes the next
// write the low byte again.
func TestDMA_FlipFlopPairing(t *testing.T) {
	_, _, _, bus := newTestSystemChip()

	bus.Write(0x04, 0x34) // Channel 2 address, low
	bus.Write(0x04, 0x12) // high
	assert.Equal(t, byte(0x34), bus.Read(0x04))
	assert.Equal(t, byte(0x12), bus.Read(0x04))

	// Writing half a pair then resetting the flip-flop restarts at
	// the low byte.
	bus.Write(0x06, 0x78)
	bus.Write(0x0C, 0x00) // Clear flip-flop
	bus.Write(0x06, 0xCD)
	bus.Write(0x06, 0xAB)
	assert.Equal(t, byte(0xCD), bus.Read(0x06))
	assert.Equal(t, byte(0xAB), bus.Read(0x06))
}

func TestDMA_DirectionEnforced(t *testing.T) {
	sys, _, mem, bus := newTestSystemChip()

	// Program channel 2: base 0x2000, count 3, page 0.
	bus.Write(0x04, 0x00)
	bus.Write(0x04, 0x20)
	bus.Write(0x05, 0x03)
	bus.Write(0x05, 0x00)
	bus.Write(0x81, 0x00)

	// Mode set to read-from-memory: a to-memory transfer must refuse.
	bus.Write(0x0B, 0x4A) // Channel 2, read transfer
	ran := false
	sys.DMAToMemory(2, func() byte { ran = true; return 0 })
	assert.False(t, ran, "write-to-memory with read mode must not run")

	// Now write-to-memory mode: the transfer moves count+1 bytes.
	bus.Write(0x0B, 0x46) // Channel 2, write transfer
	n := byte(0)
	sys.DMAToMemory(2, func() byte { n++; return n })
	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, byte(i+1), mem.Read(0x2000+i))
	}

	// And the reverse path.
	var got []byte
	sys.DMAFromMemory(2, func(b byte) { got = append(got, b) })
	assert.Empty(t, got, "from-memory with write mode must not run")

	bus.Write(0x0B, 0x4A)
	sys.DMAFromMemory(2, func(b byte) { got = append(got, b) })
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestIRQ_PendingRetainedAndRetried(t *testing.T) {
	sys, cpu, mem, bus := newTestSystemChip()

	// Vector 8+6 = 14 at physical 0x38.
	mem.Write(0x38, 0x00)
	mem.Write(0x39, 0x03)
	mem.Write(0x3A, 0x00)
	mem.Write(0x3B, 0x60)

	bus.Write(0x21, 0xFF) // Unmask everything.

	// CPU has interrupts disabled: the line stays pending.
	cpu.setFlag(x88FlagIF, false)
	sys.Irq(IRQFloppyDisk)
	assert.True(t, sys.irqPending[IRQFloppyDisk])
	assert.NotEqual(t, uint16(0x6000), cpu.CS)

	// Enable interrupts and tick past the rescan boundary.
	cpu.setFlag(x88FlagIF, true)
	for i := 0; i < 8; i++ {
		sys.Tick()
	}
	assert.False(t, sys.irqPending[IRQFloppyDisk])
	assert.Equal(t, uint16(0x6000), cpu.CS)
	assert.Equal(t, uint16(0x0300), cpu.IP)
}

func TestIRQ_MaskedLineIgnored(t *testing.T) {
	sys, cpu, _, bus := newTestSystemChip()

	bus.Write(0x21, 0x00) // Everything masked.
	cpu.setFlag(x88FlagIF, true)
	sys.Irq(IRQKeyboard)
	assert.False(t, sys.irqPending[IRQKeyboard])
	assert.Equal(t, uint16(0x0100), cpu.IP, "masked IRQ must not dispatch")
}

func TestKeyboard_ClockEnableSelfTest(t *testing.T) {
	sys, cpu, mem, bus := newTestSystemChip()

	// Vector 9 for the keyboard IRQ.
	mem.Write(0x24, 0x00)
	mem.Write(0x25, 0x01)
	mem.Write(0x26, 0x00)
	mem.Write(0x27, 0x70)
	bus.Write(0x21, 0xFF)
	cpu.setFlag(x88FlagIF, true)

	// Rising edge of the clock-enable bit posts the 0xAA self-test
	// scancode.
	bus.Write(0x61, 0x40)
	assert.Equal(t, byte(0xAA), bus.Read(0x60))
	assert.Equal(t, uint16(0x7000), cpu.CS)

	// Bit 7 clears the scancode register.
	bus.Write(0x61, 0xC0)
	assert.Equal(t, byte(0x00), bus.Read(0x60))

	// With the clock enabled a key press latches and interrupts.
	sys.KeyboardPress(0x1E)
	assert.Equal(t, byte(0x1E), bus.Read(0x60))
}

func TestKeyboard_PressIgnoredWithoutClock(t *testing.T) {
	sys, _, _, bus := newTestSystemChip()

	bus.Write(0x61, 0x00)
	sys.KeyboardPress(0x1E)
	assert.Equal(t, byte(0x00), bus.Read(0x60))
}

func TestSwitch_NibbleBanking(t *testing.T) {
	_, _, _, bus := newTestSystemChip()

	// Switches boot as 0b01011100. Control bit 2 selects the low
	// nibble; otherwise the high nibble is returned. Timer 2 output
	// rides on bits 4-5.
	bus.Write(0x61, 0x04)
	assert.Equal(t, byte(0x0C), bus.Read(0x62)&0x0F)

	bus.Write(0x61, 0x00)
	assert.Equal(t, byte(0x05), bus.Read(0x62)&0x0F)
}

func TestPIT_LatchAndReadback(t *testing.T) {
	sys, _, _, bus := newTestSystemChip()

	// Program counter 0: rl=11 (LSB then MSB).
	bus.Write(0x43, 0x34)
	bus.Write(0x40, 0x78)
	bus.Write(0x40, 0x56)
	assert.Equal(t, uint16(0x5678), sys.pit[0].counter)

	// Reading with rl=11 returns LSB then MSB.
	assert.Equal(t, byte(0x78), bus.Read(0x40))
	assert.Equal(t, byte(0x56), bus.Read(0x40))

	// A control write with rl=00 snapshots the counter into the latch.
	bus.Write(0x43, 0x04)
	assert.Equal(t, uint16(0x5678), sys.pit[0].latch)
}

func TestPIT_Timer0RaisesIRQ(t *testing.T) {
	sys, cpu, mem, bus := newTestSystemChip()

	mem.Write(0x20, 0x00) // Vector 8
	mem.Write(0x21, 0x02)
	mem.Write(0x22, 0x00)
	mem.Write(0x23, 0x30)
	bus.Write(0x21, 0x01)
	cpu.setFlag(x88FlagIF, true)

	// Load a small count; rl=11.
	bus.Write(0x43, 0x36)
	bus.Write(0x40, 0x04)
	bus.Write(0x40, 0x00)

	for i := 0; i < 32 && cpu.CS != 0x3000; i++ {
		sys.Tick()
	}
	assert.Equal(t, uint16(0x3000), cpu.CS, "timer must raise IRQ 0")
}
