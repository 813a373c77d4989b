// tty_host.go - Host character-device pass-through for the UART
//
// Opens a host TTY and adapts it to the UART's TTYPort contract: polled
// non-blocking reads, blocking one-byte writes, and termios
// reconfiguration when the guest reprograms the divisor latch or line
// control register.
//
// License: GPLv3 or later

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// uartBaud maps divisor values to termios speed flags; the divisors
// encode the standard rates from 50 to 115200 baud.
var uartBaud = map[uint16]uint32{
	2304: unix.B50,
	1047: unix.B110,
	384:  unix.B300,
	192:  unix.B600,
	96:   unix.B1200,
	48:   unix.B2400,
	24:   unix.B4800,
	12:   unix.B9600,
	6:    unix.B19200,
	3:    unix.B38400,
	2:    unix.B57600,
	1:    unix.B115200,
}

// HostTTY is a TTYPort backed by a host character device.
type HostTTY struct {
	fd int
}

// OpenHostTTY opens the host device for the UART pass-through.
func OpenHostTTY(device string) (*HostTTY, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open of '%s' failed: %w", device, err)
	}
	return &HostTTY{fd: fd}, nil
}

// Poll returns one pending byte from the device without blocking.
func (t *HostTTY) Poll() (byte, bool) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n <= 0 {
		return 0, false
	}
	var buf [1]byte
	if n, err := unix.Read(t.fd, buf[:]); err != nil || n != 1 {
		return 0, false
	}
	return buf[0], true
}

// Send writes one byte to the device; the write may block, which is the
// only place the UART path yields to the host.
func (t *HostTTY) Send(b byte) {
	buf := [1]byte{b}
	unix.Write(t.fd, buf[:])
}

// Configure reprograms the device line settings from the guest-visible
// divisor and line control register. Divisors outside the standard rate
// table are ignored.
func (t *HostTTY) Configure(divisor uint16, lcr byte) error {
	speed, ok := uartBaud[divisor]
	if !ok {
		return nil // Invalid baudrate, just ignore it.
	}

	tios, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr failed: %w", err)
	}

	// Raw mode.
	tios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tios.Oflag &^= unix.OPOST
	tios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD

	// Data bits.
	switch lcr & 0x3 {
	case 0b00:
		tios.Cflag |= unix.CS5
	case 0b01:
		tios.Cflag |= unix.CS6
	case 0b10:
		tios.Cflag |= unix.CS7
	default:
		tios.Cflag |= unix.CS8
	}

	// Parity.
	switch (lcr >> 3) & 0x3 {
	case 0b01:
		tios.Cflag |= unix.PARENB | unix.PARODD
	case 0b11:
		tios.Cflag |= unix.PARENB
	}

	tios.Cflag &^= unix.CBAUD
	tios.Cflag |= speed
	tios.Ispeed = speed
	tios.Ospeed = speed

	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, tios); err != nil {
		return fmt.Errorf("tcsetattr failed: %w", err)
	}
	return nil
}
