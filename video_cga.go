// video_cga.go - CGA register file and terminal renderer for the XT Engine
//
// The CGA chip owns the status, mode and CRTC ports; the screen itself
// is the guest text buffer at 0xB8000, which the renderer paints onto
// the host terminal with ANSI colors and a code-page-437 translation.
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"io"
	"strings"
)

// Ports.
const (
	cgaPortCRTCSelect   = 0x3D4
	cgaPortCRTCRegister = 0x3D5
	cgaPortMode         = 0x3D8
	cgaPortStatus       = 0x3DA
)

const (
	cgaTextBase = 0xB8000
	cgaRows     = 25
)

// CRTC cursor position registers.
const (
	crtcCursorHigh = 0x0E
	crtcCursorLow  = 0x0F
)

// CGAChip holds the mode register and the CRTC register file.
type CGAChip struct {
	mode         byte
	crtcSelect   byte
	crtcRegister [256]byte
	statusToggle bool
}

// NewCGAChip wires the video ports onto the I/O bus.
func NewCGAChip(io *IOBus) *CGAChip {
	cga := &CGAChip{}

	io.HookRead(cgaPortStatus, cga.statusRead)
	io.HookWrite(cgaPortMode, func(_ uint16, v byte) { cga.mode = v })
	io.HookWrite(cgaPortCRTCSelect, func(_ uint16, v byte) { cga.crtcSelect = v })
	io.HookWrite(cgaPortCRTCRegister, func(_ uint16, v byte) {
		cga.crtcRegister[cga.crtcSelect] = v
	})
	io.HookRead(cgaPortCRTCRegister, func(uint16) byte {
		return cga.crtcRegister[cga.crtcSelect]
	})

	return cga
}

// statusRead strobes the retrace and vsync bits so firmware polling for
// a retrace window always makes progress.
func (cga *CGAChip) statusRead(uint16) byte {
	cga.statusToggle = !cga.statusToggle
	if cga.statusToggle {
		return 0x09
	}
	return 0x00
}

// Columns reports 80 or 40 columns per the mode register.
func (cga *CGAChip) Columns() int {
	if cga.mode&1 != 0 {
		return 80
	}
	return 40
}

// CursorPos returns the linear cursor cell from the CRTC registers.
func (cga *CGAChip) CursorPos() uint16 {
	return uint16(cga.crtcRegister[crtcCursorLow]) |
		(uint16(cga.crtcRegister[crtcCursorHigh]) << 8)
}

// cgaColorMap converts the CGA color nibble order to the ANSI one.
var cgaColorMap = [8]int{0, 4, 2, 6, 1, 5, 3, 7}

// cp437Runes translates the glyphs firmware actually draws; everything
// unmapped renders as '.'.
var cp437Runes = map[byte]rune{
	0xB3: '│', 0xBA: '║',
	0xC4: '─', 0xCD: '═',
	0xC5: '┼', 0xCE: '╬',
	0xC9: '╔', 0xDA: '┌', 0xD5: '╒', 0xD6: '╓',
	0xB7: '╖', 0xB8: '╕', 0xBB: '╗', 0xBF: '┐',
	0xC0: '└', 0xC8: '╚', 0xD3: '╙', 0xD4: '╘',
	0xBC: '╝', 0xBD: '╜', 0xBE: '╛', 0xD9: '┘',
	0xC1: '┴', 0xCA: '╩', 0xCF: '╧', 0xD0: '╨',
	0xC2: '┬', 0xCB: '╦', 0xD1: '╤', 0xD2: '╥',
	0xC3: '├', 0xC6: '╞', 0xC7: '╟', 0xCC: '╠',
	0xB4: '┤', 0xB5: '╡', 0xB6: '╢', 0xB9: '╣',
	0xB0: '░', 0xB1: '▒', 0xB2: '▓',
	0xDB: '█', 0xDC: '▄', 0xDF: '▀',
	0x07: '•', 0x09: '○', 0x0A: '◙',
	0x18: '↑', 0x19: '↓', 0x1A: '→', 0x1B: '←',
	0x1E: '▲', 0x1F: '▼',
	0xE3: 'π', 0xF1: '±', 0xF2: '≥', 0xF3: '≤', 0xF8: '°',
}

func cgaGlyph(b byte) rune {
	if b >= 0x20 && b < 0x7F {
		return rune(b)
	}
	if r, ok := cp437Runes[b]; ok {
		return r
	}
	return '.'
}

// RenderScreen draws the full text buffer. Every refresh repaints from
// the top-left; cells carry the foreground and background nibbles of
// their attribute byte, with the bold and blink bits mapped to the
// matching SGR attributes.
func (cga *CGAChip) RenderScreen(mem *Memory, w io.Writer) {
	var sb strings.Builder
	sb.WriteString("\x1b[H")

	columns := cga.Columns()
	lastAttrib := -1
	for i := 0; i < cgaRows*columns; i++ {
		if i > 0 && i%columns == 0 {
			sb.WriteString("\x1b[0m\r\n")
			lastAttrib = -1
		}
		ch := mem.Read(uint32(cgaTextBase + i*2))
		attrib := mem.Read(uint32(cgaTextBase + i*2 + 1))

		if int(attrib) != lastAttrib {
			fg := cgaColorMap[attrib&0x7]
			bold := (attrib >> 3) & 1
			bg := cgaColorMap[(attrib>>4)&0x7]
			blink := (attrib >> 7) & 1

			sb.WriteString("\x1b[0")
			if bold != 0 {
				sb.WriteString(";1")
			}
			if blink != 0 {
				sb.WriteString(";5")
			}
			fmt.Fprintf(&sb, ";%d;%dm", 30+fg, 40+bg)
			lastAttrib = int(attrib)
		}
		sb.WriteRune(cgaGlyph(ch))
	}
	sb.WriteString("\x1b[0m")

	// Park the host cursor on the CRTC cursor cell.
	pos := int(cga.CursorPos())
	fmt.Fprintf(&sb, "\x1b[%d;%dH", pos/columns+1, pos%columns+1)

	io.WriteString(w, sb.String())
}
