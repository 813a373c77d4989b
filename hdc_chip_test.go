// hdc_chip_test.go - Hard-disk controller tests
//
// License: GPLv3 or later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHDC() (*HDCChip, *SystemChip, *Memory, *IOBus) {
	mem := NewMemory(nil)
	bus := NewIOBus()
	cpu := NewCPU_X88(mem, bus, nil)
	sys := NewSystemChip(bus, cpu, mem, nil)
	hdc := NewHDCChip(bus, sys, nil)
	hdc.loaded = true
	return hdc, sys, mem, bus
}

// hdcCommand drives the select + six command bytes protocol.
func hdcCommand(bus *IOBus, cmd byte, params ...byte) {
	bus.Write(hdcPortDriveSel, 0x00)
	bus.Write(hdcPortData, cmd)
	for _, p := range params {
		bus.Write(hdcPortData, p)
	}
	for len(params) < 5 {
		bus.Write(hdcPortData, 0x00)
		params = append(params, 0)
	}
}

// hdcCHSParams encodes drive 0, head, sector and cylinder the way the
// command block carries them.
func hdcCHSParams(cyl uint16, head, sec byte) []byte {
	return []byte{
		head & 0x1F,
		(sec & 0x3F) | byte(cyl>>8)<<6,
		byte(cyl),
		0x00,
		0x00,
	}
}

func programDMA3(bus *IOBus, page byte, base uint16, count uint16, mode byte) {
	bus.Write(0x0C, 0x00)
	bus.Write(0x06, byte(base))
	bus.Write(0x06, byte(base>>8))
	bus.Write(0x07, byte(count))
	bus.Write(0x07, byte(count>>8))
	bus.Write(0x82, page)
	bus.Write(0x0B, mode)
}

func TestHDC_SelectStartsCommand(t *testing.T) {
	hdc, _, _, bus := newTestHDC()

	bus.Write(hdcPortDriveSel, 0x00)
	status := bus.Read(hdcPortStatus)
	assert.NotZero(t, status&(1<<hdcStatusReq))
	assert.NotZero(t, status&(1<<hdcStatusXbsy))
	assert.NotZero(t, status&(1<<hdcStatusCD))
	assert.Zero(t, status&(1<<hdcStatusIO))
	assert.Equal(t, hdcStateCommand, hdc.state)
}

func TestHDC_DMARoundTrip(t *testing.T) {
	hdc, _, mem, bus := newTestHDC()

	bus.Write(hdcPortMask, 0x03) // DMA and IRQ enabled.

	// Write one sector from memory at CHS 2/1/5.
	for i := uint32(0); i < 512; i++ {
		mem.Write(0x5000+i, byte(i^0x5A))
	}
	programDMA3(bus, 0x00, 0x5000, 0x1FF, 0x4B) // Read from memory
	hdcCommand(bus, hdcCmdWrite, hdcCHSParams(2, 1, 5)...)
	assert.Zero(t, bus.Read(hdcPortData)) // Status byte.

	lba := (uint32(2)*diskHeads+1)*diskSectors + 5
	for i := uint32(0); i < 512; i++ {
		require.Equal(t, byte(i^0x5A), hdc.data[lba*512+i])
	}

	// Read it back to a different address.
	programDMA3(bus, 0x00, 0x6000, 0x1FF, 0x47) // Write to memory
	hdcCommand(bus, hdcCmdRead, hdcCHSParams(2, 1, 5)...)
	assert.Zero(t, bus.Read(hdcPortData))

	for i := uint32(0); i < 512; i++ {
		require.Equal(t, byte(i^0x5A), mem.Read(0x6000+i))
	}
}

func TestHDC_PIORead(t *testing.T) {
	hdc, _, _, bus := newTestHDC()

	// Stage sector data at CHS 0/0/0.
	for i := 0; i < 512; i++ {
		hdc.data[i] = byte(i)
	}

	bus.Write(hdcPortMask, 0x02) // IRQ only, no DMA: PIO path.
	hdcCommand(bus, hdcCmdRead, hdcCHSParams(0, 0, 0)...)

	status := bus.Read(hdcPortStatus)
	assert.NotZero(t, status&(1<<hdcStatusIO))

	for i := 0; i < 512; i++ {
		require.Equal(t, byte(i), bus.Read(hdcPortData))
	}
	assert.Equal(t, hdcStateStatus, hdc.state)
	assert.Zero(t, bus.Read(hdcPortData)) // Completion status.
	assert.Equal(t, hdcStateIdle, hdc.state)
}

func TestHDC_PIOAdvancesCHS(t *testing.T) {
	hdc, _, _, bus := newTestHDC()

	// Two sectors starting at the last sector of head 0: the walk
	// must wrap into head 1 sector 0.
	base := uint32(diskSectors-1) * 512
	for i := uint32(0); i < 512; i++ {
		hdc.data[base+i] = 0x11
	}
	head1 := uint32(diskSectors) * 512
	for i := uint32(0); i < 512; i++ {
		hdc.data[head1+i] = 0x22
	}

	bus.Write(hdcPortMask, 0x00)
	hdcCommand(bus, hdcCmdRead, hdcCHSParams(0, 0, diskSectors-1)...)

	for i := 0; i < 512; i++ {
		require.Equal(t, byte(0x11), bus.Read(hdcPortData))
	}
	assert.Equal(t, byte(1), hdc.head)
	assert.Equal(t, byte(0), hdc.sector)
}

func TestHDC_Recalibrate(t *testing.T) {
	_, _, _, bus := newTestHDC()

	bus.Write(hdcPortMask, 0x02)
	hdcCommand(bus, hdcCmdRecalibrate, 0x00, 0x00, 0x00, 0x00, 0x00)
	assert.Equal(t, byte(0x00), bus.Read(hdcPortData))

	// Drive 1 is never present.
	hdcCommand(bus, hdcCmdRecalibrate, 0x20, 0x00, 0x00, 0x00, 0x00)
	assert.Equal(t, byte(0x22), bus.Read(hdcPortData))
}

func TestHDC_InitializeDrive(t *testing.T) {
	hdc, _, _, bus := newTestHDC()

	hdcCommand(bus, hdcCmdInitializeDrive, 0x00, 0x00, 0x00, 0x00, 0x00)
	assert.Equal(t, hdcStateInitializeDrive, hdc.state)

	// Eight trailing configuration bytes complete the command.
	for i := 0; i < 8; i++ {
		bus.Write(hdcPortData, 0x00)
	}
	assert.Equal(t, hdcStateStatus, hdc.state)
	assert.Zero(t, bus.Read(hdcPortData))
}

func TestHDC_StatusReadClearsIRQBit(t *testing.T) {
	_, _, _, bus := newTestHDC()

	bus.Write(hdcPortMask, 0x02)
	hdcCommand(bus, hdcCmdTestDrive, 0x00, 0x00, 0x00, 0x00, 0x00)

	status := bus.Read(hdcPortStatus)
	assert.NotZero(t, status&(1<<hdcStatusIrq))
	status = bus.Read(hdcPortStatus)
	assert.Zero(t, status&(1<<hdcStatusIrq))
}

func TestHDC_ConfigReportsFixedGeometry(t *testing.T) {
	_, _, _, bus := newTestHDC()
	assert.Equal(t, byte(0xFF), bus.Read(hdcPortDriveCfg))
}
