// rtc_chip_test.go - Real-time clock tests
//
// License: GPLv3 or later

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRTC(now time.Time) (*RTCChip, *IOBus) {
	bus := NewIOBus()
	rtc := NewRTCChip(bus)
	rtc.now = func() time.Time { return now }
	return rtc, bus
}

func TestRTC_DecimalDigits(t *testing.T) {
	// 1994-07-06 12:34:56, a Wednesday.
	now := time.Date(1994, 7, 6, 12, 34, 56, 0, time.Local)
	_, bus := newTestRTC(now)

	bus.Read(rtcPortS1) // Burn the probe read.
	assert.Equal(t, byte(6), bus.Read(rtcPortS1))
	assert.Equal(t, byte(5), bus.Read(rtcPortS10))
	assert.Equal(t, byte(4), bus.Read(rtcPortMI1))
	assert.Equal(t, byte(3), bus.Read(rtcPortMI10))
	assert.Equal(t, byte(2), bus.Read(rtcPortH1))
	assert.Equal(t, byte(1), bus.Read(rtcPortH10))
	assert.Equal(t, byte(6), bus.Read(rtcPortD1))
	assert.Equal(t, byte(0), bus.Read(rtcPortD10))
	assert.Equal(t, byte(7), bus.Read(rtcPortMO1))
	assert.Equal(t, byte(0), bus.Read(rtcPortMO10))
	assert.Equal(t, byte(4), bus.Read(rtcPortY1))
	// Year tens counts from 1980: (94/10 + 2) % 10.
	assert.Equal(t, byte(1), bus.Read(rtcPortY10))
	assert.Equal(t, byte(3), bus.Read(rtcPortW))
}

func TestRTC_BIOSProbe(t *testing.T) {
	now := time.Date(2000, 1, 1, 0, 0, 30, 0, time.Local)
	_, bus := newTestRTC(now)

	// The first seconds-units read returns (sec-2) mod 10 exactly
	// once, so two successive BIOS reads see the value change.
	first := bus.Read(rtcPortS1)
	second := bus.Read(rtcPortS1)
	assert.Equal(t, byte(8), first)
	assert.Equal(t, byte(0), second)
	assert.Equal(t, byte(0), bus.Read(rtcPortS1))
}

func TestRTC_ControlRegisters(t *testing.T) {
	_, bus := newTestRTC(time.Now())

	bus.Write(rtcPortCD, 0xFF)
	// The busy bit (bit 1) always reads clear.
	assert.Equal(t, byte(0x0D), bus.Read(rtcPortCD))

	bus.Write(rtcPortCE, 0x0A)
	bus.Write(rtcPortCF, 0x05)
	assert.Equal(t, byte(0x0A), bus.Read(rtcPortCE))
	assert.Equal(t, byte(0x05), bus.Read(rtcPortCF))
}
