// uart_chip_test.go - UART register and FIFO tests
//
// License: GPLv3 or later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeTTY is a scripted TTYPort for tests.
type fakeTTY struct {
	input   []byte
	output  []byte
	divisor uint16
	lcr     byte
}

func (f *fakeTTY) Poll() (byte, bool) {
	if len(f.input) == 0 {
		return 0, false
	}
	b := f.input[0]
	f.input = f.input[1:]
	return b, true
}

func (f *fakeTTY) Send(b byte) {
	f.output = append(f.output, b)
}

func (f *fakeTTY) Configure(divisor uint16, lcr byte) error {
	f.divisor = divisor
	f.lcr = lcr
	return nil
}

func newTestUART() (*UARTChip, *fakeTTY, *GlueChip, *SystemChip, *IOBus) {
	mem := NewMemory(nil)
	bus := NewIOBus()
	cpu := NewCPU_X88(mem, bus, nil)
	sys := NewSystemChip(bus, cpu, mem, nil)
	glue := NewGlueChip(bus, sys)
	tty := &fakeTTY{}
	uart := NewUARTChip(bus, sys, glue, tty, nil)

	bus.Write(gluePortMode, 0x89) // Chip-select the UART.
	return uart, tty, glue, sys, bus
}

// TestUART_DivisorLatchSwitch checks the state-sensitive register
// aliasing: with DLAB set, port 0 reads the divisor-low byte instead of
// anything previously written to the holding register.
func TestUART_DivisorLatchSwitch(t *testing.T) {
	_, tty, _, _, bus := newTestUART()

	bus.Write(uartPortTHR, 0x41) // Enqueued for transmit.

	bus.Write(uartPortLCR, 0x83) // DLAB on, 8N1.
	bus.Write(uartPortTHR, 0x0C) // Divisor low: 9600 baud.
	bus.Write(uartPortIER, 0x00) // Divisor high.

	assert.Equal(t, byte(0x0C), bus.Read(uartPortRBR),
		"DLAB read must return the divisor, not the queued byte")
	assert.Equal(t, uint16(0x000C), tty.divisor)

	bus.Write(uartPortLCR, 0x03) // DLAB off.
	assert.NotEqual(t, byte(0x0C), bus.Read(uartPortRBR))
}

func TestUART_ChipSelectGating(t *testing.T) {
	_, _, _, _, bus := newTestUART()

	bus.Write(gluePortMode, 0x81) // Disabled by BIOS.
	bus.Write(uartPortSR, 0x42)
	assert.Equal(t, byte(0x00), bus.Read(uartPortSR))

	bus.Write(gluePortMode, 0xD9) // Enabled after boot.
	bus.Write(uartPortSR, 0x42)
	assert.Equal(t, byte(0x42), bus.Read(uartPortSR))
}

func TestUART_ReceivePath(t *testing.T) {
	uart, tty, _, sys, bus := newTestUART()

	bus.Write(0x21, 0xFF)        // Unmask IRQ 4; CPU IF clear.
	bus.Write(uartPortIER, 0x01) // RBR interrupt enable.

	tty.input = []byte{0x55}
	uart.Tick()

	assert.NotZero(t, bus.Read(uartPortLSR)&uartLsrDataReady)
	assert.True(t, sys.irqPending[IRQCom1])
	assert.Equal(t, byte(uartIirRBR), uart.iir)

	// Reading the buffer drains the FIFO and drops data-ready.
	assert.Equal(t, byte(0x55), bus.Read(uartPortRBR))
	assert.Zero(t, bus.Read(uartPortLSR)&uartLsrDataReady)
	assert.Equal(t, byte(uartIirNoPending), uart.iir)

	// Empty buffer reads as zero.
	assert.Equal(t, byte(0x00), bus.Read(uartPortRBR))
}

func TestUART_TransmitPath(t *testing.T) {
	uart, tty, _, _, bus := newTestUART()

	bus.Write(uartPortTHR, 0x41)
	bus.Write(uartPortTHR, 0x42)

	uart.Tick()
	uart.Tick()
	assert.Equal(t, []byte{0x41, 0x42}, tty.output)
}

func TestUART_THRInterruptClearedByIIRRead(t *testing.T) {
	uart, _, _, _, bus := newTestUART()

	bus.Write(uartPortIER, 0x02) // THR interrupt enable.
	assert.Equal(t, byte(uartIirTHR), uart.iir)

	assert.Equal(t, byte(uartIirTHR), bus.Read(uartPortIIR))
	assert.Equal(t, byte(uartIirNoPending), uart.iir)
	assert.Equal(t, byte(uartIirNoPending), bus.Read(uartPortIIR))
}

func TestUART_LineControlReachesTTY(t *testing.T) {
	_, tty, _, _, bus := newTestUART()

	bus.Write(uartPortLCR, 0x9B) // DLAB + 7 bits + odd parity.
	bus.Write(uartPortTHR, 0x06) // 19200 baud.
	bus.Write(uartPortIER, 0x00)

	assert.Equal(t, uint16(6), tty.divisor)
	assert.Equal(t, byte(0x9B), tty.lcr)
}
