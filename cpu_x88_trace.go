// cpu_x88_trace.go - Instruction and interrupt trace rings for the 8088 core
//
// Tracing is off unless a CPUTrace is attached to the CPU; when detached
// the hot path pays a single nil check per instruction. Each entry keeps
// the pre-instruction register snapshot plus the machine-code bytes the
// instruction consumed; mnemonics and operands are reconstructed by the
// dumper so recording stays cheap.
//
// License: GPLv3 or later

package main

import (
	"fmt"
	"io"
)

const (
	cpuTraceEntries = 1024
	intTraceEntries = 256
	traceMCMax      = 8
)

// CPUSnapshot is the register state captured before an instruction runs.
type CPUSnapshot struct {
	AX, BX, CX, DX uint16
	SI, DI, BP, SP uint16
	IP             uint16
	CS, DS, ES, SS uint16
	Flags          uint16
}

func snapshotOf(c *CPU_X88) CPUSnapshot {
	return CPUSnapshot{
		AX: c.AX, BX: c.BX, CX: c.CX, DX: c.DX,
		SI: c.SI, DI: c.DI, BP: c.BP, SP: c.SP,
		IP: c.IP,
		CS: c.CS, DS: c.DS, ES: c.ES, SS: c.SS,
		Flags: c.Flags,
	}
}

type traceEntry struct {
	snap  CPUSnapshot
	mc    [traceMCMax]byte
	mcLen int
	valid bool
}

type intTraceEntry struct {
	vector byte
	snap   CPUSnapshot
	valid  bool
}

// CPUTrace holds the circular instruction and interrupt rings.
type CPUTrace struct {
	entries [cpuTraceEntries]traceEntry
	n       int
	cur     *traceEntry

	ints [intTraceEntries]intTraceEntry
	intN int
}

func NewCPUTrace() *CPUTrace {
	return &CPUTrace{}
}

func (t *CPUTrace) start(c *CPU_X88) {
	e := &t.entries[t.n]
	e.snap = snapshotOf(c)
	e.mcLen = 0
	e.valid = true
	t.cur = e
}

func (t *CPUTrace) mc(b byte) {
	if t.cur != nil && t.cur.mcLen < traceMCMax {
		t.cur.mc[t.cur.mcLen] = b
		t.cur.mcLen++
	}
}

func (t *CPUTrace) end() {
	t.n = (t.n + 1) % cpuTraceEntries
	t.cur = nil
}

func (t *CPUTrace) interrupt(vector byte, c *CPU_X88) {
	e := &t.ints[t.intN]
	e.vector = vector
	e.snap = snapshotOf(c)
	e.valid = true
	t.intN = (t.intN + 1) % intTraceEntries
}

// -----------------------------------------------------------------------------
// Dump-time decoding
// -----------------------------------------------------------------------------

var traceReg8Names = [8]string{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"}
var traceReg16Names = [8]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}
var traceEANames = [8]string{"bx+si", "bx+di", "bp+si", "bp+di", "si", "di", "bp", "bx"}

var traceGrp1Names = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}
var traceGrp2Names = [8]string{"rol", "ror", "rcl", "rcr", "shl", "shr", "shl", "sar"}
var traceGrp3Names = [8]string{"test", "test", "not", "neg", "mul", "imul", "div", "idiv"}
var traceGrp5Names = [8]string{"inc", "dec", "call", "callf", "jmp", "jmpf", "push", "push"}

var traceMnemonics = map[byte]string{
	0x06: "push", 0x07: "pop", 0x0E: "push", 0x0F: "pop",
	0x16: "push", 0x17: "pop", 0x1E: "push", 0x1F: "pop",
	0x27: "daa", 0x2F: "das", 0x37: "aaa", 0x3F: "aas",
	0x84: "test", 0x85: "test", 0x86: "xchg", 0x87: "xchg",
	0x88: "mov", 0x89: "mov", 0x8A: "mov", 0x8B: "mov",
	0x8C: "mov", 0x8D: "lea", 0x8E: "mov", 0x8F: "pop",
	0x90: "nop", 0x98: "cbw", 0x99: "cwd", 0x9A: "callf",
	0x9B: "wait", 0x9C: "pushf", 0x9D: "popf", 0x9E: "sahf", 0x9F: "lahf",
	0xA0: "mov", 0xA1: "mov", 0xA2: "mov", 0xA3: "mov",
	0xA4: "movsb", 0xA5: "movsw", 0xA6: "cmpsb", 0xA7: "cmpsw",
	0xA8: "test", 0xA9: "test",
	0xAA: "stosb", 0xAB: "stosw", 0xAC: "lodsb", 0xAD: "lodsw",
	0xAE: "scasb", 0xAF: "scasw",
	0xC2: "retn", 0xC3: "retn", 0xC4: "les", 0xC5: "lds",
	0xC6: "mov", 0xC7: "mov", 0xCA: "retf", 0xCB: "retf",
	0xCC: "int3", 0xCD: "int", 0xCE: "into", 0xCF: "iret",
	0xD4: "aam", 0xD5: "aad", 0xD7: "xlat",
	0xE0: "loopne", 0xE1: "loope", 0xE2: "loop", 0xE3: "jcxz",
	0xE4: "in", 0xE5: "in", 0xE6: "out", 0xE7: "out",
	0xE8: "call", 0xE9: "jmp", 0xEA: "jmpf", 0xEB: "jmp",
	0xEC: "in", 0xED: "in", 0xEE: "out", 0xEF: "out",
	0xF4: "hlt", 0xF5: "cmc", 0xF8: "clc", 0xF9: "stc",
	0xFA: "cli", 0xFB: "sti", 0xFC: "cld", 0xFD: "std",
}

var traceJccNames = [16]string{
	"jo", "jno", "jb", "jnb", "jz", "jnz", "jbe", "jnbe",
	"js", "jns", "jp", "jnp", "jl", "jnl", "jle", "jnle",
}

var traceALUNames = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}

// decodeMnemonic reconstructs prefixes and the mnemonic from the recorded
// machine-code bytes.
func decodeMnemonic(mc []byte) string {
	prefix := ""
	i := 0
	for i < len(mc) {
		switch mc[i] {
		case 0x26:
			prefix += "es: "
		case 0x2E:
			prefix += "cs: "
		case 0x36:
			prefix += "ss: "
		case 0x3E:
			prefix += "ds: "
		case 0xF0:
			prefix += "lock "
		case 0xF2:
			prefix += "repne "
		case 0xF3:
			prefix += "repe "
		default:
			goto decoded
		}
		i++
	}
decoded:
	if i >= len(mc) {
		return prefix + "?"
	}
	op := mc[i]
	modrmReg := byte(0)
	if i+1 < len(mc) {
		modrmReg = (mc[i+1] >> 3) & 7
	}

	switch {
	case op < 0x40 && (op&7) < 6:
		return prefix + traceALUNames[op>>3]
	case op >= 0x40 && op <= 0x47:
		return prefix + "inc " + traceReg16Names[op&7]
	case op >= 0x48 && op <= 0x4F:
		return prefix + "dec " + traceReg16Names[op&7]
	case op >= 0x50 && op <= 0x57:
		return prefix + "push " + traceReg16Names[op&7]
	case op >= 0x58 && op <= 0x5F:
		return prefix + "pop " + traceReg16Names[op&7]
	case op >= 0x70 && op <= 0x7F:
		return prefix + traceJccNames[op&0xF]
	case op >= 0x80 && op <= 0x83:
		return prefix + traceGrp1Names[modrmReg]
	case op >= 0x91 && op <= 0x97:
		return prefix + "xchg " + traceReg16Names[op&7] + ",ax"
	case op >= 0xB0 && op <= 0xB7:
		return prefix + "mov " + traceReg8Names[op&7]
	case op >= 0xB8 && op <= 0xBF:
		return prefix + "mov " + traceReg16Names[op&7]
	case op >= 0xD0 && op <= 0xD3:
		return prefix + traceGrp2Names[modrmReg]
	case op >= 0xD8 && op <= 0xDF:
		return prefix + "esc"
	case op == 0xF6 || op == 0xF7:
		return prefix + traceGrp3Names[modrmReg]
	case op == 0xFE:
		return prefix + traceGrp5Names[modrmReg&1]
	case op == 0xFF:
		return prefix + traceGrp5Names[modrmReg]
	}

	if name, ok := traceMnemonics[op]; ok {
		return prefix + name
	}
	return prefix + fmt.Sprintf("db 0x%02x", op)
}

// Dump renders the instruction ring in circular order. The extended form
// appends the full pre-instruction register snapshot to every line.
func (t *CPUTrace) Dump(w io.Writer, extended bool) {
	dumpOne := func(e *traceEntry) {
		if !e.valid {
			return
		}
		fmt.Fprintf(w, "%04X:%04X  ", e.snap.CS, e.snap.IP)
		for i := 0; i < traceMCMax; i++ {
			if i < e.mcLen {
				fmt.Fprintf(w, "%02x", e.mc[i])
			} else {
				fmt.Fprintf(w, "  ")
			}
		}
		fmt.Fprintf(w, "  %s", decodeMnemonic(e.mc[:e.mcLen]))
		if extended {
			fmt.Fprintf(w,
				"  ax=%04x bx=%04x cx=%04x dx=%04x si=%04x di=%04x bp=%04x sp=%04x ds=%04x es=%04x ss=%04x f=%04x",
				e.snap.AX, e.snap.BX, e.snap.CX, e.snap.DX,
				e.snap.SI, e.snap.DI, e.snap.BP, e.snap.SP,
				e.snap.DS, e.snap.ES, e.snap.SS, e.snap.Flags)
		}
		fmt.Fprintf(w, "\n")
	}

	for i := t.n; i < cpuTraceEntries; i++ {
		dumpOne(&t.entries[i])
	}
	for i := 0; i < t.n; i++ {
		dumpOne(&t.entries[i])
	}
}

// DumpInterrupts renders the interrupt ring in circular order.
func (t *CPUTrace) DumpInterrupts(w io.Writer) {
	dumpOne := func(e *intTraceEntry) {
		if !e.valid {
			return
		}
		fmt.Fprintf(w, "INT 0x%02X  from %04X:%04X  ax=%04x bx=%04x cx=%04x dx=%04x\n",
			e.vector, e.snap.CS, e.snap.IP,
			e.snap.AX, e.snap.BX, e.snap.CX, e.snap.DX)
	}

	for i := t.intN; i < intTraceEntries; i++ {
		dumpOne(&t.ints[i])
	}
	for i := 0; i < t.intN; i++ {
		dumpOne(&t.ints[i])
	}
}
