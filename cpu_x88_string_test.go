// cpu_x88_string_test.go - String instruction and repeat prefix tests
//
// License: GPLv3 or later

package main

import (
	"testing"
)

func TestX88_RepMovsb(t *testing.T) {
	cpu, mem, _ := newTestMachine()

	cpu.DS = 0x1000
	cpu.SI = 0x0000
	cpu.ES = 0x2000
	cpu.DI = 0x0000
	cpu.CX = 4
	cpu.setFlag(x88FlagDF, false)

	src := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	for i, b := range src {
		mem.Write(0x10000+uint32(i), b)
	}

	load(cpu, mem, 0xF3, 0xA4) // REP MOVSB
	cpu.Step()

	for i, b := range src {
		if got := mem.Read(0x20000 + uint32(i)); got != b {
			t.Errorf("dest[%d]: got 0x%02X, want 0x%02X", i, got, b)
		}
	}
	if cpu.CX != 0 {
		t.Errorf("CX: got %d, want 0", cpu.CX)
	}
	if cpu.SI != 4 || cpu.DI != 4 {
		t.Errorf("SI/DI: got %d/%d, want 4/4", cpu.SI, cpu.DI)
	}
}

func TestX88_RepMovsbBackward(t *testing.T) {
	cpu, mem, _ := newTestMachine()

	cpu.DS = 0x1000
	cpu.SI = 0x0003
	cpu.ES = 0x2000
	cpu.DI = 0x0003
	cpu.CX = 4
	cpu.setFlag(x88FlagDF, true)

	for i := 0; i < 4; i++ {
		mem.Write(0x10000+uint32(i), byte(i+1))
	}

	load(cpu, mem, 0xF3, 0xA4) // REP MOVSB, DF=1
	cpu.Step()

	for i := 0; i < 4; i++ {
		if got := mem.Read(0x20000 + uint32(i)); got != byte(i+1) {
			t.Errorf("dest[%d]: got 0x%02X, want 0x%02X", i, got, i+1)
		}
	}
	if cpu.SI != 0xFFFF || cpu.DI != 0xFFFF {
		t.Errorf("SI/DI after DF=1: got %04X/%04X", cpu.SI, cpu.DI)
	}
}

func TestX88_RepeScasb(t *testing.T) {
	cpu, mem, _ := newTestMachine()

	cpu.ES = 0x2000
	cpu.DI = 0x0000
	cpu.CX = 8
	cpu.SetAL(0x41)

	// Five matching bytes, then a mismatch.
	for i := 0; i < 5; i++ {
		mem.Write(0x20000+uint32(i), 0x41)
	}
	mem.Write(0x20005, 0x42)

	load(cpu, mem, 0xF3, 0xAE) // REPE SCASB
	cpu.Step()

	if cpu.getFlag(x88FlagZF) {
		t.Error("ZF must be clear after hitting the mismatch")
	}
	if cpu.DI != 6 {
		t.Errorf("DI: got %d, want 6", cpu.DI)
	}
	if cpu.CX != 2 {
		t.Errorf("CX: got %d, want 2", cpu.CX)
	}
}

func TestX88_RepneScasbFindsByte(t *testing.T) {
	cpu, mem, _ := newTestMachine()

	cpu.ES = 0x2000
	cpu.DI = 0x0000
	cpu.CX = 8
	cpu.SetAL(0x00)

	data := []byte{0x10, 0x20, 0x00, 0x30}
	for i, b := range data {
		mem.Write(0x20000+uint32(i), b)
	}

	load(cpu, mem, 0xF2, 0xAE) // REPNE SCASB
	cpu.Step()

	if !cpu.getFlag(x88FlagZF) {
		t.Error("ZF must be set at the match")
	}
	if cpu.DI != 3 {
		t.Errorf("DI: got %d, want 3", cpu.DI)
	}
}

func TestX88_CmpsbSegmentOverride(t *testing.T) {
	cpu, mem, _ := newTestMachine()

	// The source side of CMPS honors the override, the destination
	// stays in ES.
	cpu.ES = 0x2000
	cpu.SS = 0x3000
	cpu.SI = 0x0000
	cpu.DI = 0x0000
	mem.Write(0x30000, 0x55)
	mem.Write(0x20000, 0x55)

	load(cpu, mem, 0x36, 0xA6) // SS: CMPSB
	cpu.Step()

	if !cpu.getFlag(x88FlagZF) {
		t.Error("CMPSB with SS override must compare SS:SI to ES:DI")
	}
	if cpu.SI != 1 || cpu.DI != 1 {
		t.Errorf("SI/DI: got %d/%d, want 1/1", cpu.SI, cpu.DI)
	}
}

func TestX88_Xlat(t *testing.T) {
	cpu, mem, _ := newTestMachine()

	cpu.DS = 0x1000
	cpu.BX = 0x0200
	cpu.SetAL(0x05)
	mem.Write(0x10205, 0x99)

	load(cpu, mem, 0xD7) // XLAT
	cpu.Step()

	if cpu.AL() != 0x99 {
		t.Errorf("XLAT: got 0x%02X, want 0x99", cpu.AL())
	}
}
