// main.go - Entry point for the XT Engine
//
// License: GPLv3 or later

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

const (
	defaultBIOSROMFile    = "rom/bios.bin"
	defaultBIOSROMAddress = 0xF8000
)

func main() {
	var config MachineConfig
	var romAddress string

	flag.StringVar(&config.FloppyAImage, "a", "", "Load floppy image `FILE` into floppy drive A:")
	flag.StringVar(&config.FloppyBImage, "b", "", "Load floppy image `FILE` into floppy drive B:")
	flag.StringVar(&config.HardDiskImage, "w", "", "Load hard disk image `FILE` for C:")
	flag.IntVar(&config.FloppySPT, "s", 0, "Override `SPT` sectors-per-track for floppy images")
	flag.StringVar(&config.BIOSROMFile, "r", defaultBIOSROMFile, "Use `FILE` for BIOS ROM instead of the default")
	flag.StringVar(&romAddress, "x", "", "Load BIOS ROM at (hex) `ADDR` instead of the default")
	flag.StringVar(&config.TTYDevice, "t", "", "Passthrough COM1 to `TTY` device")
	flag.StringVar(&config.EDFSRoot, "e", "", "Serve `DIR` to the guest over EtherDFS")
	flag.BoolVar(&config.CPURelax, "k", false, "Relax the host CPU while firmware waits for a keystroke")
	flag.BoolVar(&config.CPUTrace, "T", false, "Record the CPU instruction trace ring")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s <options>\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(),
			"\nDefault BIOS ROM '%s' @ 0x%05x\n", defaultBIOSROMFile, defaultBIOSROMAddress)
		fmt.Fprintf(flag.CommandLine.Output(),
			"Using Ctrl+C will break into debugger, use 'q' from there to quit.\n\n")
	}
	flag.Parse()

	config.BIOSROMAddress = defaultBIOSROMAddress
	if romAddress != "" {
		addr, err := strconv.ParseUint(romAddress, 16, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid BIOS ROM address: '%s'\n", romAddress)
			os.Exit(1)
		}
		config.BIOSROMAddress = uint32(addr)
	}

	machine, err := NewMachine(config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		for range sigCh {
			machine.RequestBreak()
		}
	}()

	if err := machine.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
