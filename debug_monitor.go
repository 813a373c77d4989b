// debug_monitor.go - Interactive debug monitor for the XT Engine
//
// Entered on SIGINT or when a device reports a guest-side programming
// error through the panic hook. The emulation is paused while the
// monitor runs; every component hands over its trace ring for
// inspection, and floppy/hard-disk images can be swapped or saved.
//
// License: GPLv3 or later

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// DebugMonitor drives the command prompt over the machine's components.
type DebugMonitor struct {
	m *Machine
}

func NewDebugMonitor(m *Machine) *DebugMonitor {
	return &DebugMonitor{m: m}
}

func (dm *DebugMonitor) help() {
	fmt.Println("Debugger Commands:")
	fmt.Println("  q              - Quit")
	fmt.Println("  ? | h          - Help")
	fmt.Println("  c              - Continue")
	fmt.Println("  s              - Step")
	fmt.Println("  t [extended]   - CPU Trace")
	fmt.Println("  i              - Interrupt Trace")
	fmt.Println("  d <addr> [end] - Dump Memory")
	fmt.Println("  r              - CPU State")
	fmt.Println("  g              - System Chip Status")
	fmt.Println("  f              - FDC Trace")
	fmt.Println("  x              - HDC Trace")
	fmt.Println("  e              - COM1/UART Trace")
	fmt.Println("  p              - NIC Trace")
	fmt.Println("  n              - Network Trace")
	fmt.Println("  y              - EtherDFS Trace")
	fmt.Println("  a <filename>   - Load Floppy A:")
	fmt.Println("  b <filename>   - Load Floppy B:")
	fmt.Println("  A [filename]   - Save Floppy A:")
	fmt.Println("  B [filename]   - Save Floppy B:")
	fmt.Println("  W [filename]   - Save Hard Disk Image")
}

// overwriteOK asks before clobbering an existing file.
func (dm *DebugMonitor) overwriteOK(in *bufio.Scanner, filename string) bool {
	st, err := os.Stat(filename)
	if err != nil {
		return os.IsNotExist(err)
	}
	if !st.Mode().IsRegular() {
		fmt.Println("Filename is not a file!")
		return false
	}
	for {
		fmt.Printf("\rOverwrite '%s' (y/n) ? ", filename)
		if !in.Scan() {
			return false
		}
		switch strings.TrimSpace(in.Text()) {
		case "y":
			return true
		case "n":
			return false
		}
	}
}

// Run reads commands until continue or step. Returns true when the next
// instruction should break again (single step).
func (dm *DebugMonitor) Run() bool {
	m := dm.m
	in := bufio.NewScanner(os.Stdin)

	fmt.Println()
	for {
		fmt.Printf("\r%04X:%04X> ", m.cpu.CS, m.cpu.IP)

		if !in.Scan() {
			os.Exit(0)
		}
		argv := strings.Fields(in.Text())
		if len(argv) == 0 {
			continue
		}

		switch argv[0] {
		case "q":
			os.Exit(0)

		case "?", "h":
			dm.help()

		case "c":
			return false

		case "s":
			return true

		case "t":
			if m.trace == nil {
				fmt.Println("CPU trace not enabled!")
				break
			}
			m.trace.Dump(os.Stdout, len(argv) >= 2)

		case "i":
			if m.trace == nil {
				fmt.Println("CPU trace not enabled!")
				break
			}
			m.trace.DumpInterrupts(os.Stdout)

		case "d":
			if len(argv) < 2 {
				fmt.Println("Missing argument!")
				break
			}
			var start, end uint32
			fmt.Sscanf(argv[1], "%x", &start)
			if len(argv) >= 3 {
				fmt.Sscanf(argv[2], "%x", &end)
			} else {
				end = start + 0xFF
				if end > 0xFFFFF {
					end = 0xFFFFF
				}
			}
			m.mem.Dump(os.Stdout, start, end)

		case "r":
			spew.Fdump(os.Stdout, snapshotOf(m.cpu))

		case "g":
			m.sys.Dump(os.Stdout)

		case "f":
			m.fdc.TraceDump(os.Stdout)

		case "x":
			if m.hdc != nil {
				m.hdc.TraceDump(os.Stdout)
			}

		case "e":
			if m.uart != nil {
				m.uart.TraceDump(os.Stdout)
			}

		case "p":
			m.nic.TraceDump(os.Stdout)

		case "n":
			m.peer.TraceDump(os.Stdout)

		case "y":
			if m.edfs != nil {
				m.edfs.TraceDump(os.Stdout)
			}

		case "a", "b":
			if len(argv) < 2 {
				fmt.Println("Missing argument!")
				break
			}
			ds := 0
			if argv[0] == "b" {
				ds = 1
			}
			if err := m.fdc.ImageLoad(ds, argv[1], 0); err != nil {
				fmt.Println(err)
			}

		case "A", "B":
			ds := 0
			if argv[0] == "B" {
				ds = 1
			}
			filename := m.fdc.floppy[ds].filename
			if len(argv) >= 2 {
				filename = argv[1]
			}
			if dm.overwriteOK(in, filename) {
				if err := m.fdc.ImageSave(ds, filename); err != nil {
					fmt.Println(err)
				}
			}

		case "W":
			if m.hdc == nil {
				break
			}
			filename := m.hdc.filename
			if len(argv) >= 2 {
				filename = argv[1]
			}
			if dm.overwriteOK(in, filename) {
				if err := m.hdc.ImageSave(filename); err != nil {
					fmt.Println(err)
				}
			}
		}
	}
}
