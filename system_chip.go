// system_chip.go - Integrated system controller for the XT Engine
//
// One chip owns the interrupt controller, the four-channel DMA
// controller, the three interval timers and the keyboard interface, the
// way the single-chip XT clones integrated them. Devices raise IRQs and
// request DMA transfers through this chip only.
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"io"
)

// IRQ line assignments.
const (
	IRQTimer      = 0
	IRQKeyboard   = 1
	IRQMouse      = 2
	IRQCom2       = 3
	IRQCom1       = 4
	IRQHardDisk   = 5
	IRQFloppyDisk = 6
	IRQLpt1       = 7
)

// DMA channel assignments.
const (
	DMAFloppyDisk = 2
	DMAHardDisk   = 3
)

// System chip port map.
const (
	portKeyboardData  = 0x60
	portControl       = 0x61
	portSwitch        = 0x62
	portConfiguration = 0x63

	portDMACh0Address   = 0x00
	portDMACh3WordCount = 0x07
	portDMAFlipFlop     = 0x0C
	portDMAMode         = 0x0B

	portDMACh0Page = 0x87
	portDMACh1Page = 0x83
	portDMACh2Page = 0x81
	portDMACh3Page = 0x82

	portIRQMask = 0x21
	portNMIMask = 0xA0

	portPITCounter0 = 0x40
	portPITCounter1 = 0x41
	portPITCounter2 = 0x42
	portPITControl  = 0x43
)

// PIT modes referenced by the chip logic.
const (
	pitModeTerminalCount = 0
)

// DMA mode register transfer directions (bits 3:2).
const (
	dmaModeWrite = 1 // Device to memory.
	dmaModeRead  = 2 // Memory to device.
)

// pitCounter is one interval-timer channel: control byte, live counter,
// latch and the read/load flip-flop.
type pitCounter struct {
	control byte // bcd(0) mode(1-3) rl(4-5), counter select stripped
	counter uint16
	latch   uint16
	flip    bool
}

func (p *pitCounter) bcd() byte  { return p.control & 1 }
func (p *pitCounter) mode() byte { return (p.control >> 1) & 7 }
func (p *pitCounter) rl() byte   { return (p.control >> 4) & 3 }

// SystemChip bundles the interrupt, DMA and timer controllers plus the
// keyboard shift register and the control/switch/configuration ports.
type SystemChip struct {
	ctrl         byte // Control register
	conf         byte // Configuration register
	scancode     byte
	switches     byte
	timer2Output bool

	dmaReg      [8]uint16 // Address and word count per channel, interleaved
	dmaFlipFlop bool
	dmaPage     [4]byte
	dmaMode     [4]byte

	irqMask    byte
	nmiMask    byte
	irqPending [8]bool

	pit [3]pitCounter

	cycle int

	cpu    *CPU_X88
	mem    *Memory
	panicf func(format string, args ...any)
}

// NewSystemChip wires the chip onto the I/O bus and into the CPU.
func NewSystemChip(io *IOBus, cpu *CPU_X88, mem *Memory, panicf func(format string, args ...any)) *SystemChip {
	if panicf == nil {
		panicf = func(string, ...any) {}
	}
	sc := &SystemChip{
		cpu:    cpu,
		mem:    mem,
		panicf: panicf,
		// Initial DIP switches: no FPU, 640K RAM, CGA 80 columns,
		// 2 floppy drives.
		switches: 0b01011100,
	}

	io.HookRead(portKeyboardData, func(uint16) byte { return sc.scancode })
	io.HookRead(portControl, func(uint16) byte { return sc.ctrl })
	io.HookWrite(portControl, sc.ctrlWrite)
	io.HookRead(portSwitch, sc.switchRead)
	io.HookRead(portConfiguration, func(uint16) byte { return sc.conf })
	io.HookWrite(portConfiguration, func(_ uint16, v byte) { sc.conf = v })

	for p := uint16(portDMACh0Address); p <= portDMACh3WordCount; p++ {
		io.HookRead(p, sc.dmaRegRead)
		io.HookWrite(p, sc.dmaRegWrite)
	}
	io.HookWrite(portDMAMode, func(_ uint16, v byte) { sc.dmaMode[v&3] = v & 0xFC })
	io.HookWrite(portDMAFlipFlop, func(_ uint16, _ byte) { sc.dmaFlipFlop = false })
	io.HookWrite(portDMACh0Page, func(_ uint16, v byte) { sc.dmaPage[0] = v })
	io.HookWrite(portDMACh1Page, func(_ uint16, v byte) { sc.dmaPage[1] = v })
	io.HookWrite(portDMACh2Page, func(_ uint16, v byte) { sc.dmaPage[2] = v })
	io.HookWrite(portDMACh3Page, func(_ uint16, v byte) { sc.dmaPage[3] = v })

	io.HookRead(portIRQMask, func(uint16) byte { return sc.irqMask })
	io.HookWrite(portIRQMask, func(_ uint16, v byte) { sc.irqMask = v })
	io.HookWrite(portNMIMask, func(_ uint16, v byte) { sc.nmiMask = v })

	for p := uint16(portPITCounter0); p <= portPITCounter2; p++ {
		io.HookRead(p, sc.pitCounterRead)
		io.HookWrite(p, sc.pitCounterWrite)
	}
	io.HookWrite(portPITControl, sc.pitControlWrite)

	return sc
}

// ctrlWrite handles the control register: bit 7 clears the keyboard data
// register, a rising edge on the clock-enable bit (6) answers the POST
// self-test with the 0xAA scancode.
func (sc *SystemChip) ctrlWrite(_ uint16, value byte) {
	if (value>>7)&1 != 0 {
		sc.scancode = 0
	}
	if (sc.ctrl>>6)&1 == 0 && (value>>6)&1 != 0 {
		sc.scancode = 0xAA
		sc.Irq(IRQKeyboard)
	}
	sc.ctrl = value
}

// switchRead returns one nibble of the DIP switches selected by control
// bit 2, with the timer 2 output mirrored onto bits 4 and 5.
func (sc *SystemChip) switchRead(uint16) byte {
	var value byte
	if (sc.ctrl>>2)&1 != 0 {
		value = sc.switches & 0xF
	} else {
		value = sc.switches >> 4
	}
	if sc.timer2Output {
		value |= 1 << 4
		value |= 1 << 5
	}
	return value
}

// -----------------------------------------------------------------------------
// DMA controller
// -----------------------------------------------------------------------------

// dmaRegRead reads the address/count registers one byte at a time
// through the shared flip-flop: low byte first, then high byte.
func (sc *SystemChip) dmaRegRead(port uint16) byte {
	if sc.dmaFlipFlop {
		sc.dmaFlipFlop = false
		return byte(sc.dmaReg[port&7] >> 8)
	}
	sc.dmaFlipFlop = true
	return byte(sc.dmaReg[port&7])
}

func (sc *SystemChip) dmaRegWrite(port uint16, value byte) {
	if sc.dmaFlipFlop {
		sc.dmaFlipFlop = false
		sc.dmaReg[port&7] += uint16(value) << 8
	} else {
		sc.dmaFlipFlop = true
		sc.dmaReg[port&7] = uint16(value)
	}
}

func (sc *SystemChip) dmaAddress(channel int) uint32 {
	return uint32(sc.dmaReg[channel*2]) + (uint32(sc.dmaPage[channel]) << 16)
}

// DMAToMemory runs a device-to-memory block transfer on a channel,
// pulling count+1 bytes from the source callback. The transfer only runs
// if the channel mode is programmed for writing to memory.
func (sc *SystemChip) DMAToMemory(channel int, source func() byte) {
	if (sc.dmaMode[channel]>>2)&0x3 != dmaModeWrite {
		return
	}
	address := sc.dmaAddress(channel)
	count := sc.dmaReg[channel*2+1]
	for i := uint32(0); i <= uint32(count); i++ {
		sc.mem.Write(address+i, source())
	}
}

// DMAFromMemory runs a memory-to-device block transfer on a channel,
// pushing count+1 bytes into the sink callback. The transfer only runs
// if the channel mode is programmed for reading from memory.
func (sc *SystemChip) DMAFromMemory(channel int, sink func(byte)) {
	if (sc.dmaMode[channel]>>2)&0x3 != dmaModeRead {
		return
	}
	address := sc.dmaAddress(channel)
	count := sc.dmaReg[channel*2+1]
	for i := uint32(0); i <= uint32(count); i++ {
		sink(sc.mem.Read(address + i))
	}
}

// -----------------------------------------------------------------------------
// Interrupt controller
// -----------------------------------------------------------------------------

// Irq asserts an IRQ line. A masked-in line is delivered to the CPU
// immediately; if the CPU rejects it (interrupts disabled) the line is
// retained as pending and retried on later ticks.
func (sc *SystemChip) Irq(irqNo int) {
	if (sc.irqMask>>irqNo)&1 != 0 {
		sc.irqPending[irqNo] = sc.cpu.Irq(irqNo)
	}
}

// -----------------------------------------------------------------------------
// Timers
// -----------------------------------------------------------------------------

func (sc *SystemChip) pitCounterRead(port uint16) byte {
	p := &sc.pit[port-portPITCounter0]

	switch p.rl() {
	case 0b00: // Latched read.
		if p.flip {
			p.flip = false
			return byte(p.latch >> 8)
		}
		p.flip = true
		return byte(p.latch)

	case 0b01: // LSB only.
		return byte(p.counter)

	case 0b10: // MSB only.
		return byte(p.counter >> 8)

	case 0b11: // LSB, then MSB.
		if p.flip {
			p.flip = false
			return byte(p.counter >> 8)
		}
		p.flip = true
		return byte(p.counter)
	}
	return 0
}

func (sc *SystemChip) pitCounterWrite(port uint16, value byte) {
	p := &sc.pit[port-portPITCounter0]

	switch p.rl() {
	case 0b00:
		sc.panicf("PIT latched load mode not implemented!\n")

	case 0b01: // Load LSB only.
		p.counter = uint16(value)

	case 0b10: // Load MSB only.
		p.counter = uint16(value) << 8

	case 0b11: // Load LSB, then MSB.
		if p.flip {
			p.flip = false
			p.counter = (p.counter & 0x00FF) | (uint16(value) << 8)
		} else {
			p.flip = true
			p.counter = uint16(value)
		}
	}
}

// pitControlWrite selects a counter and programs its control byte. A
// read/load discipline of 00 snapshots the live counter into the latch.
func (sc *SystemChip) pitControlWrite(_ uint16, value byte) {
	sel := value >> 6
	if sel > 2 {
		sc.panicf("Illegal PIT counter selected: %d\n", sel)
		return
	}

	p := &sc.pit[sel]
	p.control = value & 0x3F

	if p.rl() == 0 {
		p.latch = p.counter
	}

	if sel == 2 {
		sc.timer2Output = p.mode() == pitModeTerminalCount
	}
}

// -----------------------------------------------------------------------------
// Tick, keyboard, status
// -----------------------------------------------------------------------------

// Tick advances the chip by one scheduler step. Every six steps the
// pending IRQ lines are rescanned and each timer counter decrements
// twice; this ratio keeps the POST timer check happy without real
// cycle accounting.
func (sc *SystemChip) Tick() {
	sc.cycle++
	if sc.cycle <= 6 {
		return
	}
	sc.cycle = 0

	for i := 0; i < 8; i++ {
		if sc.irqPending[i] {
			sc.Irq(i)
		}
	}

	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			sc.pit[i].counter--
			if sc.pit[i].counter == 0 {
				if i == 0 {
					sc.Irq(IRQTimer)
				} else if i == 2 {
					sc.timer2Output = false
				}
			}
		}
	}
}

// KeyboardPress latches a scancode and raises IRQ 1, provided the
// keyboard clock is enabled.
func (sc *SystemChip) KeyboardPress(scancode byte) {
	if (sc.ctrl>>6)&1 != 0 {
		sc.scancode = scancode
		sc.Irq(IRQKeyboard)
	}
}

func (sc *SystemChip) cpuSpeed() int {
	switch {
	case (sc.conf>>7)&1 != 0:
		return 9540000 // Double, 9.54MHz
	case (sc.conf>>6)&1 != 0:
		return 7155000 // Turbo, 7.16MHz
	default:
		return 4770000 // Standard, 4.77MHz
	}
}

func (sc *SystemChip) systemMemorySize() int {
	switch (sc.switches >> 2) & 0x3 {
	case 0:
		return 128
	case 1:
		return 256
	case 2:
		return 512
	case 3:
		return 640
	}
	return 0
}

// Dump writes a status report for the debug monitor.
func (sc *SystemChip) Dump(w io.Writer) {
	fmt.Fprintf(w, "Keyboard Data Register: 0x%02x\n", sc.scancode)
	fmt.Fprintf(w, "Control Register      : 0x%02x\n", sc.ctrl)
	fmt.Fprintf(w, "Configuration Register: 0x%02x\n", sc.conf)
	fmt.Fprintf(w, "  CPU Speed: %.2fMHz\n", float64(sc.cpuSpeed())/1000000.0)
	fmt.Fprintf(w, "Switches: 0x%02x\n", sc.switches)
	installed := "No"
	if (sc.switches>>1)&1 != 0 {
		installed = "Yes"
	}
	fmt.Fprintf(w, "  8087 Installed: %s\n", installed)
	fmt.Fprintf(w, "  System Memory : %dKB\n", sc.systemMemorySize())
	fmt.Fprintf(w, "  Video Type    : %d\n", (sc.switches>>4)&0x3)
	fmt.Fprintf(w, "  Floppy Drives : %d\n", ((sc.switches>>6)&0x3)+1)
	fmt.Fprintf(w, "Timer 2 Output: %v\n", sc.timer2Output)
	fmt.Fprintf(w, "IRQ Mask: 0x%02x\n", sc.irqMask)
	fmt.Fprintf(w, "NMI Mask: 0x%02x\n", sc.nmiMask)

	for i := 0; i < 4; i++ {
		fmt.Fprintf(w, "DMA Channel %d:\n", i)
		fmt.Fprintf(w, "  Address   : 0x%04x\n", sc.dmaReg[i*2])
		fmt.Fprintf(w, "  Word Count: 0x%04x\n", sc.dmaReg[i*2+1])
		fmt.Fprintf(w, "  Page      : 0x%02x\n", sc.dmaPage[i])
		fmt.Fprintf(w, "  Mode      : 0x%02x\n", sc.dmaMode[i])
	}

	for i := 0; i < 3; i++ {
		fmt.Fprintf(w, "PIT Channel %d:\n", i)
		fmt.Fprintf(w, "  Control  : 0x%02x\n", sc.pit[i].control)
		fmt.Fprintf(w, "    BCD    : %d\n", sc.pit[i].bcd())
		fmt.Fprintf(w, "    Mode   : %d\n", sc.pit[i].mode())
		fmt.Fprintf(w, "    R/L    : %d\n", sc.pit[i].rl())
		fmt.Fprintf(w, "  Counter  : 0x%04x\n", sc.pit[i].counter)
		fmt.Fprintf(w, "  Latch    : 0x%04x\n", sc.pit[i].latch)
		fmt.Fprintf(w, "  Flip-Flop: %v\n", sc.pit[i].flip)
	}
}
