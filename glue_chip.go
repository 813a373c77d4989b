// glue_chip.go - Board glue chip for the XT Engine
//
// The glue chip carries the board mode register that chip-selects the
// UART, an undocumented handshake register the BIOS pokes during POST,
// and the onboard mouse interface.
//
// License: GPLv3 or later

package main

// Ports.
const (
	gluePortMode   = 0x230
	gluePortReg232 = 0x232 // Undocumented register

	gluePortMouseData      = 0x23C
	gluePortMouseSignature = 0x23D
	gluePortMouseControl   = 0x23E
	gluePortMouseConfig    = 0x23F
)

// GlueChip holds the mode byte and the mouse registers.
type GlueChip struct {
	mode           byte
	mouseSignature byte
	mouseControl   byte
	mouseData      byte

	sys *SystemChip
}

// NewGlueChip wires the glue chip onto the I/O bus.
func NewGlueChip(io *IOBus, sys *SystemChip) *GlueChip {
	g := &GlueChip{sys: sys}

	io.HookRead(gluePortMode, func(uint16) byte { return g.mode })
	io.HookWrite(gluePortMode, func(_ uint16, v byte) { g.mode = v })

	io.HookWrite(gluePortReg232, func(_ uint16, v byte) {
		// The BIOS detects the onboard mouse with this handshake.
		if v == 0x99 && g.mode == 0x89 {
			g.mouseSignature = 0
		}
	})

	for p := uint16(gluePortMouseData); p <= gluePortMouseConfig; p++ {
		io.HookRead(p, g.mouseRead)
		io.HookWrite(p, g.mouseWrite)
	}

	return g
}

func (g *GlueChip) mouseRead(port uint16) byte {
	switch port {
	case gluePortMouseData:
		return g.mouseData

	case gluePortMouseSignature:
		return g.mouseSignature

	case gluePortMouseControl:
		// The control register toggles between 0x07 and 0x0F.
		if g.mouseControl == 0x07 {
			g.mouseControl = 0x0F
		} else {
			g.mouseControl = 0x07
		}
		return g.mouseControl

	case gluePortMouseConfig:
		return 0xFF
	}
	return 0xFF
}

func (g *GlueChip) mouseWrite(port uint16, value byte) {
	if port == gluePortMouseSignature {
		g.mouseSignature = value
	}
}

// MouseData latches a mouse event byte and raises the mouse IRQ.
func (g *GlueChip) MouseData(data byte) {
	g.mouseData = data
	g.sys.Irq(IRQMouse)
}

// UARTChipSelect reports whether the mode byte currently enables the
// UART: 0x89 (enabled by BIOS), 0xD9 (enabled after boot) select it,
// 0x81 (disabled by BIOS) and anything unknown deselect it.
func (g *GlueChip) UARTChipSelect() bool {
	switch g.mode {
	case 0x89, 0xD9:
		return true
	default:
		return false
	}
}
