// uart_chip.go - 8250-style UART for the XT Engine
//
// The register file mirrors the classic part: the divisor latch access
// bit of the line control register switches ports 0 and 1 between the
// data/interrupt registers and the divisor halves. Bytes pass through
// two FIFOs to an external TTY device, one byte each way per tick.
//
// License: GPLv3 or later

package main

import (
	"io"
)

const uartFIFOSize = 1024

// UART port map.
const (
	uartIOBase  = 0x3F8
	uartPortTHR = uartIOBase + 0 // Transmitter Holding Register
	uartPortRBR = uartIOBase + 0 // Receive Buffer Register
	uartPortIER = uartIOBase + 1 // Interrupt Enable Register
	uartPortIIR = uartIOBase + 2 // Interrupt Identification Register
	uartPortFCR = uartIOBase + 2 // FIFO Control Register (write)
	uartPortLCR = uartIOBase + 3 // Line Control Register
	uartPortMCR = uartIOBase + 4 // Modem Control Register
	uartPortLSR = uartIOBase + 5 // Line Status Register
	uartPortMSR = uartIOBase + 6 // Modem Status Register
	uartPortSR  = uartIOBase + 7 // Scratch Register
)

// Interrupt enable bit offsets.
const (
	uartIerRBR = 0
	uartIerTHR = 1
)

// Interrupt identification values.
const (
	uartIirNoPending = 1
	uartIirTHR       = 2
	uartIirRBR       = 4
)

// Line status flags.
const (
	uartLsrTransmitShiftEmpty   = 0x40
	uartLsrTransmitHoldingEmpty = 0x20
	uartLsrDataReady            = 0x01
)

// Modem status flags.
const (
	uartMsrCarrierDetect = 0x80
	uartMsrDataSetReady  = 0x20
	uartMsrClearToSend   = 0x10
)

// TTYPort is the external character device behind the UART.
type TTYPort interface {
	// Poll returns one pending input byte, if any. It never blocks.
	Poll() (byte, bool)
	// Send writes one byte out.
	Send(b byte)
	// Configure applies the divisor-derived baud rate and the line
	// control framing to the device.
	Configure(divisor uint16, lcr byte) error
}

type byteFIFO struct {
	buf  [uartFIFOSize]byte
	head int
	tail int
}

func (f *byteFIFO) read() (byte, bool) {
	if f.tail == f.head {
		return 0, false
	}
	b := f.buf[f.tail]
	f.tail = (f.tail + 1) % uartFIFOSize
	return b, true
}

func (f *byteFIFO) write(b byte) {
	if (f.head+1)%uartFIFOSize == f.tail {
		return // Full, drop.
	}
	f.buf[f.head] = b
	f.head = (f.head + 1) % uartFIFOSize
}

// UARTChip is the serial controller.
type UARTChip struct {
	ier     byte
	iir     byte
	lcr     byte
	mcr     byte
	lsr     byte
	msr     byte
	scratch byte

	divisor uint16

	rx byteFIFO
	tx byteFIFO

	tty TTYPort

	sys    *SystemChip
	glue   *GlueChip
	trace  *TraceRing
	panicf func(format string, args ...any)
}

// NewUARTChip wires the UART onto the I/O bus and attaches the external
// TTY device.
func NewUARTChip(io *IOBus, sys *SystemChip, glue *GlueChip, tty TTYPort,
	panicf func(format string, args ...any)) *UARTChip {
	if panicf == nil {
		panicf = func(string, ...any) {}
	}
	u := &UARTChip{
		iir:    uartIirNoPending,
		lsr:    uartLsrTransmitShiftEmpty | uartLsrTransmitHoldingEmpty,
		msr:    uartMsrCarrierDetect | uartMsrDataSetReady | uartMsrClearToSend,
		tty:    tty,
		sys:    sys,
		glue:   glue,
		trace:  NewTraceRing(256),
		panicf: panicf,
	}

	for p := uint16(uartIOBase); p <= uartPortSR; p++ {
		io.HookRead(p, u.registerRead)
		io.HookWrite(p, u.registerWrite)
	}

	return u
}

func (u *UARTChip) dlab() bool {
	return u.lcr>>7 != 0
}

func (u *UARTChip) divisorLow() byte  { return byte(u.divisor) }
func (u *UARTChip) divisorHigh() byte { return byte(u.divisor >> 8) }

// updateTTYSettings pushes the programmed divisor and framing to the
// external device. Invalid divisors are ignored.
func (u *UARTChip) updateTTYSettings() {
	if err := u.tty.Configure(u.divisor, u.lcr); err != nil {
		u.panicf("TTY configuration failed: %v\n", err)
	}
}

func (u *UARTChip) registerRead(port uint16) byte {
	if !u.glue.UARTChipSelect() {
		return 0
	}

	switch port {
	case uartPortRBR:
		if u.dlab() {
			u.trace.Addf("DLL read:  0x%02x\n", u.divisorLow())
			return u.divisorLow()
		}
		if u.iir == uartIirRBR {
			// Reading RBR clears a pending receive interrupt.
			u.iir = uartIirNoPending
		}
		u.lsr &^= uartLsrDataReady
		if value, ok := u.rx.read(); ok {
			u.trace.Addf("<<< %02x\n", value)
			return value
		}
		u.trace.Addf("RBR read:  empty\n")
		return 0

	case uartPortIER:
		if u.dlab() {
			u.trace.Addf("DLH read:  0x%02x\n", u.divisorHigh())
			return u.divisorHigh()
		}
		return u.ier

	case uartPortIIR:
		value := u.iir
		if u.iir == uartIirTHR {
			// Reading IIR clears a pending transmit interrupt.
			u.iir = uartIirNoPending
		}
		u.trace.Addf("IIR read:  0x%02x\n", value)
		return value

	case uartPortLCR:
		return u.lcr
	case uartPortMCR:
		return u.mcr
	case uartPortSR:
		return u.scratch
	case uartPortLSR:
		u.trace.Addf("LSR read:  0x%02x\n", u.lsr)
		return u.lsr
	case uartPortMSR:
		return u.msr
	}
	return 0
}

func (u *UARTChip) registerWrite(port uint16, value byte) {
	if !u.glue.UARTChipSelect() {
		return
	}

	switch port {
	case uartPortTHR:
		if u.dlab() {
			u.trace.Addf("DLL write: 0x%02x\n", value)
			u.divisor = (u.divisor & 0xFF00) | uint16(value)
			u.updateTTYSettings()
			return
		}
		u.trace.Addf(">>> %02x\n", value)
		u.tx.write(value)
		if (u.ier>>uartIerTHR)&1 != 0 {
			u.iir = uartIirTHR
			u.sys.Irq(IRQCom1)
		}

	case uartPortIER:
		if u.dlab() {
			u.trace.Addf("DLH write: 0x%02x\n", value)
			u.divisor = (u.divisor & 0x00FF) | (uint16(value) << 8)
			u.updateTTYSettings()
			return
		}
		u.trace.Addf("IER write: 0x%02x\n", value)
		u.ier = value
		// The holding register is always empty here, so enabling the
		// THR interrupt fires one immediately.
		if (u.ier>>uartIerTHR)&1 != 0 {
			u.iir = uartIirTHR
			u.sys.Irq(IRQCom1)
		}

	case uartPortFCR:
		// Not present on the 8250.
		u.trace.Addf("FCR write: 0x%02x\n", value)

	case uartPortLCR:
		u.trace.Addf("LCR write: 0x%02x\n", value)
		u.lcr = value
		u.updateTTYSettings()

	case uartPortMCR:
		u.mcr = value

	case uartPortSR:
		u.scratch = value
	}
}

// Tick exchanges at most one byte each way with the external TTY: a
// pending input byte lands on the RX FIFO (raising IRQ 4 when enabled),
// and one queued output byte goes out.
func (u *UARTChip) Tick() {
	if b, ok := u.tty.Poll(); ok {
		u.rx.write(b)
		u.lsr |= uartLsrDataReady
		if (u.ier>>uartIerRBR)&1 != 0 {
			u.iir = uartIirRBR
			u.sys.Irq(IRQCom1)
		}
	}

	if b, ok := u.tx.read(); ok {
		u.tty.Send(b)
	}
}

// TraceDump writes the UART trace ring.
func (u *UARTChip) TraceDump(w io.Writer) {
	u.trace.Dump(w)
}
