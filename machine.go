// machine.go - Machine assembly and scheduler for the XT Engine
//
// The machine owns every component and threads non-owning handles into
// each device at bring-up. The scheduler loop alternates one CPU
// instruction with one system-chip tick; the slower device ticks run on
// fixed divisors of the instruction count.
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Scheduler divisors.
const (
	machineSlowTickDivisor = 10000 // Keyboard, screen, network
	machineUARTTickDivisor = 100
)

// MachineConfig carries everything the command line decides.
type MachineConfig struct {
	BIOSROMFile    string
	BIOSROMAddress uint32
	FloppyAImage   string
	FloppyBImage   string
	HardDiskImage  string
	FloppySPT      int
	TTYDevice      string
	EDFSRoot       string
	CPURelax       bool
	CPUTrace       bool
}

// Machine is the whole emulated computer.
type Machine struct {
	mem  *Memory
	io   *IOBus
	cpu  *CPU_X88
	sys  *SystemChip
	glue *GlueChip
	fdc  *FDCChip
	hdc  *HDCChip
	uart *UARTChip
	nic  *NICChip
	peer *NetPeer
	edfs *EDFS
	rtc  *RTCChip
	cga  *CGAChip

	console *ConsoleHost
	monitor *DebugMonitor
	trace   *CPUTrace

	relax bool

	panicMsg   string
	debugBreak atomic.Bool
}

// Panicf is the machine panic hook: guest-side programming errors
// enqueue a message and break into the debug monitor at the next
// scheduler boundary instead of killing the process.
func (m *Machine) Panicf(format string, args ...any) {
	if m.panicMsg == "" {
		m.panicMsg = fmt.Sprintf(format, args...)
	}
	m.debugBreak.Store(true)
}

// RequestBreak asks for a debugger entry at the next boundary; wired to
// SIGINT.
func (m *Machine) RequestBreak() {
	m.debugBreak.Store(true)
}

// NewMachine builds and wires the full device complement.
func NewMachine(config MachineConfig) (*Machine, error) {
	m := &Machine{relax: config.CPURelax}
	panicf := m.Panicf

	m.mem = NewMemory(panicf)
	m.io = NewIOBus()
	m.cpu = NewCPU_X88(m.mem, m.io, panicf)

	if config.CPUTrace {
		m.trace = NewCPUTrace()
		m.cpu.trace = m.trace
	}

	m.sys = NewSystemChip(m.io, m.cpu, m.mem, panicf)
	m.glue = NewGlueChip(m.io, m.sys)
	m.fdc = NewFDCChip(m.io, m.sys, panicf)
	m.rtc = NewRTCChip(m.io)
	m.cga = NewCGAChip(m.io)

	if config.EDFSRoot != "" {
		m.edfs = NewEDFS(config.EDFSRoot, panicf)
	}
	m.peer = NewNetPeer(m.edfs, panicf)
	m.nic = NewNICChip(m.io, m.sys, m.peer)

	if config.TTYDevice != "" {
		tty, err := OpenHostTTY(config.TTYDevice)
		if err != nil {
			return nil, err
		}
		m.uart = NewUARTChip(m.io, m.sys, m.glue, tty, panicf)
	}

	if err := m.mem.LoadROM(config.BIOSROMFile, config.BIOSROMAddress); err != nil {
		return nil, err
	}

	if config.FloppyAImage != "" {
		if err := m.fdc.ImageLoad(0, config.FloppyAImage, config.FloppySPT); err != nil {
			return nil, err
		}
	}
	if config.FloppyBImage != "" {
		if err := m.fdc.ImageLoad(1, config.FloppyBImage, config.FloppySPT); err != nil {
			return nil, err
		}
	}
	if config.HardDiskImage != "" {
		m.hdc = NewHDCChip(m.io, m.sys, panicf)
		if err := m.hdc.ImageLoad(config.HardDiskImage); err != nil {
			return nil, err
		}
	}

	m.console = NewConsoleHost(m.sys)
	m.monitor = NewDebugMonitor(m)

	return m, nil
}

// int16hWait reports whether the CPU sits exactly on the BIOS keyboard
// services entry, meaning firmware is spinning for a keystroke.
func (m *Machine) int16hWait() bool {
	entryIP := uint16(m.mem.Read(0x58)) | (uint16(m.mem.Read(0x59)) << 8)
	entryCS := uint16(m.mem.Read(0x5A)) | (uint16(m.mem.Read(0x5B)) << 8)
	return m.cpu.CS == entryCS && m.cpu.IP == entryIP
}

// Run is the scheduler: it never returns except through the monitor's
// quit command.
func (m *Machine) Run() error {
	if err := m.console.Start(); err != nil {
		return err
	}
	defer m.console.Stop()

	singleStep := false
	cycle := 0

	m.cpu.Reset()
	for {
		m.cpu.Step()
		m.sys.Tick()

		if cycle%machineSlowTickDivisor == 0 {
			m.console.TickKeyboard()
			m.cga.RenderScreen(m.mem, os.Stdout)
			m.peer.Tick()
			m.nic.Tick()
		}

		if m.uart != nil && cycle%machineUARTTickDivisor == 0 {
			m.uart.Tick()
		}

		if m.relax && m.int16hWait() {
			// Firmware is waiting on INT 16h; yield the host CPU by
			// poll-sleeping on stdin for a moment.
			m.cga.RenderScreen(m.mem, os.Stdout)
			KeyWaiting(int(os.Stdin.Fd()))
		}

		if singleStep || m.debugBreak.Load() {
			m.debugBreak.Store(false)
			m.console.Pause()
			if m.panicMsg != "" {
				fmt.Print(m.panicMsg)
				m.panicMsg = ""
			}
			singleStep = m.monitor.Run()
			if !singleStep {
				m.console.Resume()
			}
		}

		cycle++
	}
}
