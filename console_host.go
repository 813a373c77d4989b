// console_host.go - Host terminal front-end for the XT Engine
//
// Puts the controlling terminal into raw mode, translates host key
// bytes into XT make/break scancode sequences for the system chip, and
// periodically repaints the CGA text buffer. The debug monitor borrows
// the terminal back through Pause/Resume.
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

const consoleScancodeFIFOSize = 8

// consoleScancodes maps printable host bytes to XT make codes.
var consoleScancodes = map[byte]byte{
	'1': 0x02, '2': 0x03, '3': 0x04, '4': 0x05, '5': 0x06,
	'6': 0x07, '7': 0x08, '8': 0x09, '9': 0x0A, '0': 0x0B,

	'a': 0x1E, 'b': 0x30, 'c': 0x2E, 'd': 0x20, 'e': 0x12,
	'f': 0x21, 'g': 0x22, 'h': 0x23, 'i': 0x17, 'j': 0x24,
	'k': 0x25, 'l': 0x26, 'm': 0x32, 'n': 0x31, 'o': 0x18,
	'p': 0x19, 'q': 0x10, 'r': 0x13, 's': 0x1F, 't': 0x14,
	'u': 0x16, 'v': 0x2F, 'w': 0x11, 'x': 0x2D, 'y': 0x15,
	'z': 0x2C,

	' ': 0x39, ',': 0x33, '-': 0x0C, '.': 0x34, '/': 0x35,
	';': 0x27, '=': 0x0D, '[': 0x1A, '\'': 0x28, '\\': 0x2B,
	'\r': 0x1C, '\n': 0x1C, '\t': 0x0F, ']': 0x1B, '`': 0x29,
	0x7F: 0x0E, 0x08: 0x0E, // Backspace
	0x1B: 0x01, // Escape

	'!': 0x02, '@': 0x03, '#': 0x04, '$': 0x05, '%': 0x06,
	'^': 0x07, '&': 0x08, '*': 0x09, '(': 0x0A, ')': 0x0B,

	'A': 0x1E, 'B': 0x30, 'C': 0x2E, 'D': 0x20, 'E': 0x12,
	'F': 0x21, 'G': 0x22, 'H': 0x23, 'I': 0x17, 'J': 0x24,
	'K': 0x25, 'L': 0x26, 'M': 0x32, 'N': 0x31, 'O': 0x18,
	'P': 0x19, 'Q': 0x10, 'R': 0x13, 'S': 0x1F, 'T': 0x14,
	'U': 0x16, 'V': 0x2F, 'W': 0x11, 'X': 0x2D, 'Y': 0x15,
	'Z': 0x2C,

	'<': 0x33, '_': 0x0C, '>': 0x34, '?': 0x35, ':': 0x27,
	'+': 0x0D, '{': 0x1A, '"': 0x28, '|': 0x2B, '}': 0x1B,
	'~': 0x29,
}

// consoleCursorScancodes maps the final byte of an ESC [ sequence.
var consoleCursorScancodes = map[byte]byte{
	'A': 0x48, // Up
	'B': 0x50, // Down
	'C': 0x4D, // Right
	'D': 0x4B, // Left
	'H': 0x47, // Home
	'F': 0x4F, // End
}

func consoleShifted(ch byte) bool {
	if ch >= 'A' && ch <= 'Z' {
		return true
	}
	switch ch {
	case '!', '@', '#', '$', '%', '^', '&', '*', '(', ')',
		'<', '_', '>', '?', ':', '+', '{', '"', '|', '}', '~':
		return true
	}
	return false
}

// ConsoleHost owns the raw-mode terminal session.
type ConsoleHost struct {
	fd       int
	oldState *term.State
	raw      bool

	fifo     [consoleScancodeFIFOSize]byte
	fifoHead int
	fifoTail int

	sys *SystemChip
}

// NewConsoleHost prepares the front-end; the terminal switches to raw
// mode on Start.
func NewConsoleHost(sys *SystemChip) *ConsoleHost {
	return &ConsoleHost{
		fd:  int(os.Stdin.Fd()),
		sys: sys,
	}
}

// Start puts stdin into raw non-blocking mode and clears the screen.
func (ch *ConsoleHost) Start() error {
	oldState, err := term.MakeRaw(ch.fd)
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	ch.oldState = oldState
	ch.raw = true

	if err := syscall.SetNonblock(ch.fd, true); err != nil {
		term.Restore(ch.fd, ch.oldState)
		ch.raw = false
		return fmt.Errorf("failed to set nonblocking stdin: %w", err)
	}

	fmt.Print("\x1b[2J\x1b[?25l")
	return nil
}

// Pause restores the terminal for the debug monitor.
func (ch *ConsoleHost) Pause() {
	if !ch.raw {
		return
	}
	syscall.SetNonblock(ch.fd, false)
	term.Restore(ch.fd, ch.oldState)
	ch.raw = false
	fmt.Print("\x1b[?25h\r\n")
}

// Resume puts the terminal back into raw mode after the monitor.
func (ch *ConsoleHost) Resume() {
	if ch.raw {
		return
	}
	if oldState, err := term.MakeRaw(ch.fd); err == nil {
		ch.oldState = oldState
		ch.raw = true
	}
	syscall.SetNonblock(ch.fd, true)
	fmt.Print("\x1b[2J\x1b[?25l")
}

// Stop restores the terminal at shutdown.
func (ch *ConsoleHost) Stop() {
	ch.Pause()
}

func (ch *ConsoleHost) fifoRead() byte {
	if ch.fifoTail == ch.fifoHead {
		return 0
	}
	scancode := ch.fifo[ch.fifoTail]
	ch.fifoTail = (ch.fifoTail + 1) % consoleScancodeFIFOSize
	return scancode
}

func (ch *ConsoleHost) fifoWrite(scancode byte) {
	if (ch.fifoHead+1)%consoleScancodeFIFOSize == ch.fifoTail {
		return // Full
	}
	ch.fifo[ch.fifoHead] = scancode
	ch.fifoHead = (ch.fifoHead + 1) % consoleScancodeFIFOSize
}

// readKey fetches one host key without blocking, folding ESC [ cursor
// sequences into their XT scancodes. Returns the scancode and the raw
// character (0 for sequences).
func (ch *ConsoleHost) readKey() (byte, byte, bool) {
	var buf [1]byte
	n, err := syscall.Read(ch.fd, buf[:])
	if err != nil || n != 1 {
		return 0, 0, false
	}

	if buf[0] == 0x1B {
		// Either a bare Escape or the start of a sequence.
		n, err = syscall.Read(ch.fd, buf[:])
		if err != nil || n != 1 {
			return 0x01, 0x1B, true
		}
		if buf[0] != '[' {
			return 0x01, 0x1B, true
		}
		n, err = syscall.Read(ch.fd, buf[:])
		if err != nil || n != 1 {
			return 0, 0, false
		}
		if scancode, ok := consoleCursorScancodes[buf[0]]; ok {
			return scancode, 0, true
		}
		return 0, 0, false
	}

	if scancode, ok := consoleScancodes[buf[0]]; ok {
		return scancode, buf[0], true
	}
	return 0, 0, false
}

// TickKeyboard drains at most one scancode into the system chip per
// call. Shifted characters are wrapped in left-shift make/break codes
// through the FIFO; break codes always follow their make codes.
func (ch *ConsoleHost) TickKeyboard() {
	if scancode := ch.fifoRead(); scancode != 0 {
		ch.sys.KeyboardPress(scancode)
		return
	}

	scancode, raw, ok := ch.readKey()
	if !ok || scancode == 0 {
		return
	}

	if raw != 0 && consoleShifted(raw) {
		ch.sys.KeyboardPress(0x2A)        // Left Shift make
		ch.fifoWrite(scancode)            // Make
		ch.fifoWrite(scancode + 0x80)     // Break
		ch.fifoWrite(0xAA)                // Left Shift break
	} else {
		ch.sys.KeyboardPress(scancode)    // Make
		ch.fifoWrite(scancode + 0x80)     // Break
	}
}

// KeyWaiting reports whether stdin has a byte ready, for the keyboard
// wait relaxation.
func KeyWaiting(fd int) bool {
	var fds syscall.FdSet
	fds.Bits[fd/64] = 1 << (uint(fd) % 64)
	tv := syscall.Timeval{Sec: 0, Usec: 1000}
	n, err := syscall.Select(fd+1, &fds, nil, nil, &tv)
	return err == nil && n > 0
}
