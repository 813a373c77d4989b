// fdc_chip.go - Floppy-disk controller for the XT Engine
//
// A multi-phase command/parameter/result state machine over three ports:
// the digital output register, the main status register and the data
// FIFO. Sector data moves over DMA channel 2; completion is signalled on
// IRQ 6 and acknowledged through the sense-interrupt-status command.
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"io"
	"os"
)

const (
	FloppySizeMax    = 2949120 // 2.88M format
	floppySectorSize = 512
	floppyHPC        = 2 // Heads per cylinder
)

// Controller phases. Read and write commands walk their own chains of
// parameter and result states so that every FIFO access is checked
// against the protocol.
type fdcState int

const (
	fdcStateIdle fdcState = iota
	fdcStateCmdSisSt0
	fdcStateCmdSisPcn
	fdcStateCmdSpecifySrtHut
	fdcStateCmdSpecifyHltNd
	fdcStateCmdRecalibDs
	fdcStateCmdSeekDs
	fdcStateCmdSeekNcn
	fdcStateCmdSdsDs
	fdcStateCmdSdsSt3

	fdcStateCmdWriteDs
	fdcStateCmdWriteCPrior
	fdcStateCmdWriteHPrior
	fdcStateCmdWriteRPrior
	fdcStateCmdWriteNPrior
	fdcStateCmdWriteEot
	fdcStateCmdWriteGpl
	fdcStateCmdWriteDtl
	fdcStateCmdWriteSt0
	fdcStateCmdWriteSt1
	fdcStateCmdWriteSt2
	fdcStateCmdWriteCAfter
	fdcStateCmdWriteHAfter
	fdcStateCmdWriteRAfter
	fdcStateCmdWriteNAfter

	fdcStateCmdReadDs
	fdcStateCmdReadCPrior
	fdcStateCmdReadHPrior
	fdcStateCmdReadRPrior
	fdcStateCmdReadNPrior
	fdcStateCmdReadEot
	fdcStateCmdReadGpl
	fdcStateCmdReadDtl
	fdcStateCmdReadSt0
	fdcStateCmdReadSt1
	fdcStateCmdReadSt2
	fdcStateCmdReadCAfter
	fdcStateCmdReadHAfter
	fdcStateCmdReadRAfter
	fdcStateCmdReadNAfter
)

// Ports.
const (
	fdcPortDOR  = 0x3F2 // Digital Output Register
	fdcPortMSR  = 0x3F4 // Main Status Register
	fdcPortFIFO = 0x3F5
)

// Commands.
const (
	fdcCmdSpecify = 0x03
	fdcCmdSds     = 0x04 // Sense Drive Status
	fdcCmdWrite   = 0x05
	fdcCmdRead    = 0x06
	fdcCmdRecalib = 0x07
	fdcCmdSis     = 0x08 // Sense Interrupt Status
	fdcCmdSeek    = 0x0F
)

// DOR bits.
const (
	fdcDorReset = 2
	fdcDorDmaEn = 3
)

// MSR bits.
const (
	fdcMsrCmdBusy = 4
	fdcMsrDio     = 6
	fdcMsrRqm     = 7
)

// ST0 bits.
const (
	fdcSt0DriveSel0    = 0
	fdcSt0DriveSel1    = 1
	fdcSt0HeadNoAtInt  = 2
	fdcSt0SeekComplete = 5
	fdcSt0CmdStatus0   = 6
	fdcSt0CmdStatus1   = 7
)

// ST1 bits.
const (
	fdcSt1SectorNotFound = 2
)

// floppyDrive is one logical drive: the in-memory image, its geometry
// and the byte position of an in-progress DMA transfer.
type floppyDrive struct {
	loaded   bool
	filename string
	data     [FloppySizeMax]byte
	spt      byte // Sectors per track
	size     int  // Actual image size
	pos      int  // Transfer position
}

// FDCChip is the floppy-disk controller with its four drives.
type FDCChip struct {
	state fdcState
	msr   byte
	st0   byte
	st1   byte
	st2   byte
	st3   byte
	pcn   byte // Present cylinder number

	pendingIrq bool
	dorReset   bool

	cmdCylinder byte
	cmdHead     byte
	cmdSector   byte
	cmdNumber   byte

	floppy [4]floppyDrive

	sys    *SystemChip
	trace  *TraceRing
	panicf func(format string, args ...any)
}

// NewFDCChip wires the controller onto the I/O bus.
func NewFDCChip(io *IOBus, sys *SystemChip, panicf func(format string, args ...any)) *FDCChip {
	if panicf == nil {
		panicf = func(string, ...any) {}
	}
	fdc := &FDCChip{
		sys:    sys,
		trace:  NewTraceRing(256),
		panicf: panicf,
	}
	fdc.reset()

	io.HookWrite(fdcPortDOR, fdc.dorWrite)
	io.HookRead(fdcPortMSR, fdc.msrRead)
	io.HookRead(fdcPortFIFO, fdc.fifoRead)
	io.HookWrite(fdcPortFIFO, fdc.fifoWrite)

	return fdc
}

func (fdc *FDCChip) reset() {
	fdc.state = fdcStateIdle
	fdc.msr = 1 << fdcMsrRqm
	fdc.st0 = (1 << fdcSt0CmdStatus0) | (1 << fdcSt0CmdStatus1)
	fdc.st1 = 0
	fdc.st2 = 0
	fdc.pcn = 0
	fdc.pendingIrq = false
	fdc.dorReset = true
}

func (fdc *FDCChip) msrSet(bit int)   { fdc.msr |= 1 << bit }
func (fdc *FDCChip) msrClear(bit int) { fdc.msr &^= 1 << bit }
func (fdc *FDCChip) st0Set(bit int)   { fdc.st0 |= 1 << bit }
func (fdc *FDCChip) st0Clear(bit int) { fdc.st0 &^= 1 << bit }

// st0DriveSelUpdate latches the drive select and head number from a
// command parameter into ST0.
func (fdc *FDCChip) st0DriveSelUpdate(value byte) {
	fdc.st0 = (fdc.st0 &^ 0x3) | (value & 0x3)
	if (value>>2)&1 != 0 {
		fdc.st0Set(fdcSt0HeadNoAtInt)
	} else {
		fdc.st0Clear(fdcSt0HeadNoAtInt)
	}
}

func (fdc *FDCChip) raiseIrq() {
	fdc.sys.Irq(IRQFloppyDisk)
	fdc.pendingIrq = true
}

// imageDMA positions the selected drive at the commanded CHS address and
// runs the block transfer on DMA channel 2. Returns false if no image is
// loaded in the drive.
func (fdc *FDCChip) imageDMA(readOperation bool) bool {
	ds := int(fdc.st0 & 0x3)
	drive := &fdc.floppy[ds]

	if !drive.loaded {
		return false
	}

	// LBA = ((cylinder * HPC + head) * SPT) + sector - 1
	lba := (uint32(fdc.cmdCylinder)*floppyHPC+uint32(fdc.cmdHead))*
		uint32(drive.spt) + uint32(fdc.cmdSector) - 1
	drive.pos = int(lba) * floppySectorSize

	if readOperation {
		fdc.sys.DMAToMemory(DMAFloppyDisk, func() byte {
			b := drive.data[drive.pos]
			drive.pos++
			if drive.pos > drive.size {
				drive.pos = 0
				fdc.panicf("Overrun during FDC read callback!\n")
			}
			return b
		})
	} else {
		fdc.sys.DMAFromMemory(DMAFloppyDisk, func(b byte) {
			drive.data[drive.pos] = b
			drive.pos++
			if drive.pos > drive.size {
				drive.pos = 0
				fdc.panicf("Overrun during FDC write callback!\n")
			}
		})
	}

	return true
}

// dorWrite handles the digital output register. Dropping the reset bit
// performs a pseudo-reset; enabling DMA afterwards produces the reset
// completion IRQ the BIOS waits for.
func (fdc *FDCChip) dorWrite(_ uint16, value byte) {
	fdc.trace.Addf("DOR write: 0x%02x\n", value)

	if (value>>fdcDorReset)&1 == 0 {
		fdc.reset()
		return
	}

	if (value>>fdcDorDmaEn)&1 == 1 && fdc.dorReset {
		fdc.dorReset = false
		fdc.raiseIrq()
	}
}

func (fdc *FDCChip) msrRead(uint16) byte {
	fdc.trace.Addf("MSR read: 0x%02x\n", fdc.msr)
	return fdc.msr
}

// fifoRead serves the result phases. The direction bit of the MSR drops
// with the final result byte of every command.
func (fdc *FDCChip) fifoRead(uint16) byte {
	switch fdc.state {
	case fdcStateCmdSisSt0:
		fdc.state = fdcStateCmdSisPcn
		if !fdc.pendingIrq {
			fdc.trace.Addf("FIFO read: SIS/ST0: 0x80\n")
			return 0x80 // No IRQ pending.
		}
		fdc.pendingIrq = false
		fdc.trace.Addf("FIFO read: SIS/ST0: 0x%02x\n", fdc.st0)
		return fdc.st0

	case fdcStateCmdSisPcn:
		fdc.msrClear(fdcMsrDio)
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.state = fdcStateIdle
		fdc.trace.Addf("FIFO read: SIS/PCN: 0x%02x\n", fdc.pcn)
		return fdc.pcn

	case fdcStateCmdSdsSt3:
		fdc.msrClear(fdcMsrDio)
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.state = fdcStateIdle
		fdc.trace.Addf("FIFO read: SDS/ST3: 0x%02x\n", fdc.st3)
		return fdc.st3

	case fdcStateCmdWriteSt0:
		fdc.pendingIrq = false
		fdc.state = fdcStateCmdWriteSt1
		return fdc.st0
	case fdcStateCmdWriteSt1:
		fdc.state = fdcStateCmdWriteSt2
		return fdc.st1
	case fdcStateCmdWriteSt2:
		fdc.state = fdcStateCmdWriteCAfter
		return fdc.st2
	case fdcStateCmdWriteCAfter:
		fdc.state = fdcStateCmdWriteHAfter
		return fdc.cmdCylinder
	case fdcStateCmdWriteHAfter:
		fdc.state = fdcStateCmdWriteRAfter
		return fdc.cmdHead
	case fdcStateCmdWriteRAfter:
		fdc.state = fdcStateCmdWriteNAfter
		return fdc.cmdSector
	case fdcStateCmdWriteNAfter:
		fdc.msrClear(fdcMsrDio)
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.state = fdcStateIdle
		return fdc.cmdNumber

	case fdcStateCmdReadSt0:
		fdc.pendingIrq = false
		fdc.state = fdcStateCmdReadSt1
		return fdc.st0
	case fdcStateCmdReadSt1:
		fdc.state = fdcStateCmdReadSt2
		return fdc.st1
	case fdcStateCmdReadSt2:
		fdc.state = fdcStateCmdReadCAfter
		return fdc.st2
	case fdcStateCmdReadCAfter:
		fdc.state = fdcStateCmdReadHAfter
		return fdc.cmdCylinder
	case fdcStateCmdReadHAfter:
		fdc.state = fdcStateCmdReadRAfter
		return fdc.cmdHead
	case fdcStateCmdReadRAfter:
		fdc.state = fdcStateCmdReadNAfter
		return fdc.cmdSector
	case fdcStateCmdReadNAfter:
		fdc.msrClear(fdcMsrDio)
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.state = fdcStateIdle
		return fdc.cmdNumber
	}

	fdc.panicf("Unexpected FDC FIFO read!\n")
	return 0
}

// fifoWrite serves the command and parameter phases.
func (fdc *FDCChip) fifoWrite(_ uint16, value byte) {
	switch fdc.state {
	case fdcStateIdle:
		switch {
		case value == fdcCmdSis:
			fdc.trace.Addf("FIFO write: SIS\n")
			fdc.msrSet(fdcMsrDio)
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdSisSt0

		case value == fdcCmdSds:
			fdc.trace.Addf("FIFO write: SDS\n")
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdSdsDs

		case value == fdcCmdSpecify:
			fdc.trace.Addf("FIFO write: Specify\n")
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdSpecifySrtHut

		case value == fdcCmdRecalib:
			fdc.trace.Addf("FIFO write: Recalib\n")
			fdc.st0Clear(fdcSt0SeekComplete)
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdRecalibDs

		case value == fdcCmdSeek:
			fdc.trace.Addf("FIFO write: Seek\n")
			fdc.st0Clear(fdcSt0SeekComplete)
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdSeekDs

		case value&0x1F == fdcCmdRead:
			fdc.trace.Addf("FIFO write: Read\n")
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdReadDs

		case value&0x1F == fdcCmdWrite:
			fdc.trace.Addf("FIFO write: Write\n")
			fdc.msrSet(fdcMsrCmdBusy)
			fdc.state = fdcStateCmdWriteDs

		default:
			fdc.panicf("Unhandled FDC command: 0x%02x\n", value)
		}

	case fdcStateCmdSdsDs:
		fdc.trace.Addf("FIFO write: SDS/DS: 0x%02x\n", value)
		fdc.st0DriveSelUpdate(value)
		fdc.msrSet(fdcMsrDio)
		fdc.state = fdcStateCmdSdsSt3

	case fdcStateCmdSpecifySrtHut:
		fdc.state = fdcStateCmdSpecifyHltNd

	case fdcStateCmdSpecifyHltNd:
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.state = fdcStateIdle

	case fdcStateCmdRecalibDs:
		fdc.trace.Addf("FIFO write: Recalib/DS: 0x%02x\n", value)
		fdc.pcn = 0
		fdc.st0Set(fdcSt0SeekComplete)
		fdc.st0Clear(fdcSt0CmdStatus0)
		fdc.st0Clear(fdcSt0CmdStatus1)
		fdc.st0DriveSelUpdate(value)
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.raiseIrq()
		fdc.state = fdcStateIdle

	case fdcStateCmdSeekDs:
		fdc.st0DriveSelUpdate(value)
		fdc.state = fdcStateCmdSeekNcn

	case fdcStateCmdSeekNcn:
		fdc.trace.Addf("FIFO write: Seek/NCN: 0x%02x\n", value)
		fdc.pcn = value
		fdc.st0Set(fdcSt0SeekComplete)
		fdc.msrClear(fdcMsrCmdBusy)
		fdc.raiseIrq()
		fdc.state = fdcStateIdle

	case fdcStateCmdWriteDs:
		fdc.st0DriveSelUpdate(value)
		fdc.state = fdcStateCmdWriteCPrior
	case fdcStateCmdWriteCPrior:
		fdc.cmdCylinder = value
		fdc.state = fdcStateCmdWriteHPrior
	case fdcStateCmdWriteHPrior:
		fdc.cmdHead = value
		fdc.state = fdcStateCmdWriteRPrior
	case fdcStateCmdWriteRPrior:
		fdc.cmdSector = value
		fdc.state = fdcStateCmdWriteNPrior
	case fdcStateCmdWriteNPrior:
		fdc.cmdNumber = value
		fdc.state = fdcStateCmdWriteEot
	case fdcStateCmdWriteEot:
		fdc.state = fdcStateCmdWriteGpl
	case fdcStateCmdWriteGpl:
		fdc.state = fdcStateCmdWriteDtl
	case fdcStateCmdWriteDtl:
		fdc.trace.Addf("FIFO write: Write C=%d H=%d R=%d\n",
			fdc.cmdCylinder, fdc.cmdHead, fdc.cmdSector)
		fdc.finishTransfer(false)
		fdc.state = fdcStateCmdWriteSt0

	case fdcStateCmdReadDs:
		fdc.st0DriveSelUpdate(value)
		fdc.state = fdcStateCmdReadCPrior
	case fdcStateCmdReadCPrior:
		fdc.cmdCylinder = value
		fdc.state = fdcStateCmdReadHPrior
	case fdcStateCmdReadHPrior:
		fdc.cmdHead = value
		fdc.state = fdcStateCmdReadRPrior
	case fdcStateCmdReadRPrior:
		fdc.cmdSector = value
		fdc.state = fdcStateCmdReadNPrior
	case fdcStateCmdReadNPrior:
		fdc.cmdNumber = value
		fdc.state = fdcStateCmdReadEot
	case fdcStateCmdReadEot:
		fdc.state = fdcStateCmdReadGpl
	case fdcStateCmdReadGpl:
		fdc.state = fdcStateCmdReadDtl
	case fdcStateCmdReadDtl:
		fdc.trace.Addf("FIFO write: Read C=%d H=%d R=%d\n",
			fdc.cmdCylinder, fdc.cmdHead, fdc.cmdSector)
		fdc.finishTransfer(true)
		fdc.state = fdcStateCmdReadSt0

	default:
		fdc.panicf("Unexpected FDC FIFO write! (0x%02x)\n", value)
	}
}

// finishTransfer runs the DMA block move and latches success or
// sector-not-found into ST0/ST1, then raises the completion IRQ and
// turns the FIFO around for the result phase.
func (fdc *FDCChip) finishTransfer(readOperation bool) {
	if fdc.imageDMA(readOperation) {
		fdc.st0Clear(fdcSt0CmdStatus0)
		fdc.st0Clear(fdcSt0CmdStatus1)
		fdc.st1 = 0
	} else {
		fdc.st0Set(fdcSt0CmdStatus0)
		fdc.st0Clear(fdcSt0CmdStatus1)
		fdc.st1 = 1 << fdcSt1SectorNotFound
	}
	fdc.raiseIrq()
	fdc.msrSet(fdcMsrDio)
}

// ImageLoad loads a flat floppy image into a drive. With no override the
// sectors-per-track value is autodetected from the BIOS parameter block.
func (fdc *FDCChip) ImageLoad(ds int, filename string, sptOverride int) error {
	drive := &fdc.floppy[ds]
	drive.loaded = false

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("floppy image load failed: %w", err)
	}
	if len(data) > FloppySizeMax {
		return fmt.Errorf("too large floppy image: '%s'", filename)
	}
	copy(drive.data[:], data)
	drive.size = len(data)

	if sptOverride > 0 {
		drive.spt = byte(sptOverride)
	} else {
		// Autodetect from the volume boot record.
		drive.spt = drive.data[0x18]
		// 9 = 720K, 18 = 1.44M, 36 = 2.88M.
		if drive.spt != 9 && drive.spt != 18 && drive.spt != 36 {
			return fmt.Errorf("unknown sectors-per-track for floppy image: '%s'", filename)
		}
	}

	drive.filename = filename
	drive.loaded = true
	return nil
}

// ImageSave writes a drive's image back out. An empty filename reuses
// the load path.
func (fdc *FDCChip) ImageSave(ds int, filename string) error {
	drive := &fdc.floppy[ds]
	if !drive.loaded {
		return fmt.Errorf("no image loaded")
	}
	if filename == "" {
		filename = drive.filename
	}
	if err := os.WriteFile(filename, drive.data[:drive.size], 0644); err != nil {
		return fmt.Errorf("floppy image save failed: %w", err)
	}
	drive.filename = filename
	return nil
}

// TraceDump writes the controller trace ring.
func (fdc *FDCChip) TraceDump(w io.Writer) {
	fdc.trace.Dump(w)
}
