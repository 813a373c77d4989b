// cpu_x88.go - 8088 CPU Emulator
//
// This implements the 8-bit-bus 16-bit CPU at the heart of the XT Engine:
// - Full 8088 instruction set with real-mode segmentation
// - Exact flag semantics for every ALU operation
// - Hardware interrupt delivery through the system chip
// - Port I/O through the machine I/O bus
//
// License: GPLv3 or later

package main

// Flag bit positions in the flags word.
const (
	x88FlagCF = 1 << 0  // Carry Flag
	x88FlagPF = 1 << 2  // Parity Flag
	x88FlagAF = 1 << 4  // Auxiliary Carry Flag
	x88FlagZF = 1 << 6  // Zero Flag
	x88FlagSF = 1 << 7  // Sign Flag
	x88FlagTF = 1 << 8  // Trap Flag
	x88FlagIF = 1 << 9  // Interrupt Enable Flag
	x88FlagDF = 1 << 10 // Direction Flag
	x88FlagOF = 1 << 11 // Overflow Flag
)

// Segment register indices, matching the ModR/M segment-register encoding.
const (
	x88SegES = 0
	x88SegCS = 1
	x88SegSS = 2
	x88SegDS = 3
)

// Repeat prefix states.
const (
	repNone = 0
	repEZ   = 1 // REPE/REPZ
	repNENZ = 2 // REPNE/REPNZ
)

// Architectural interrupt vectors.
const (
	intDivideError = 0
	intSingleStep  = 1
	intNMI         = 2
	intBreakpoint  = 3
	intOverflow    = 4
)

// ModR/M mod field values.
const (
	modDispZero   = 0
	modDispLoSign = 1
	modDispHiLo   = 2
	modRegister   = 3
)

// CPU_X88 represents the 8088 CPU state.
type CPU_X88 struct {
	// Segment registers
	ES uint16
	CS uint16
	SS uint16
	DS uint16

	// Pointer and index registers
	IP uint16
	SP uint16
	BP uint16
	SI uint16
	DI uint16

	// General registers, byte-addressable through the accessors below
	AX uint16
	BX uint16
	CX uint16
	DX uint16

	// Flags word
	Flags uint16

	// Halted waits for the next accepted IRQ or NMI.
	Halted bool

	// Current instruction state. Prefixes last exactly one instruction
	// and are reset at the top of Step.
	prefixSeg   int // Segment override (-1 = none, else x88Seg*)
	prefixRep   int // Repeat prefix (repNone/repEZ/repNENZ)
	opcode      byte
	modrm       byte
	modrmLoaded bool
	ea          uint16 // Cached effective address offset
	eaSeg       int    // Default segment for the cached address
	eaLoaded    bool

	mem *Memory
	io  *IOBus

	trace *CPUTrace

	panicf func(format string, args ...any)

	// Instruction dispatch table
	baseOps [256]func(*CPU_X88)
}

// NewCPU_X88 creates a new 8088 CPU wired to memory and the I/O bus.
func NewCPU_X88(mem *Memory, io *IOBus, panicf func(format string, args ...any)) *CPU_X88 {
	if panicf == nil {
		panicf = func(string, ...any) {}
	}
	cpu := &CPU_X88{
		mem:    mem,
		io:     io,
		panicf: panicf,
	}
	cpu.initBaseOps()
	cpu.Reset()
	return cpu
}

// Reset puts the CPU into its power-on state: execution starts at
// FFFF:0000, which aliases the top of the address space where the BIOS
// ROM lives.
func (c *CPU_X88) Reset() {
	c.Flags = 0x0000
	c.IP = 0x0000
	c.CS = 0xFFFF
	c.DS = 0x0000
	c.SS = 0x0000
	c.ES = 0x0000
	c.Halted = false
	c.prefixSeg = -1
	c.prefixRep = repNone
}

// -----------------------------------------------------------------------------
// Register access
// -----------------------------------------------------------------------------

// AL returns the low byte of AX.
func (c *CPU_X88) AL() byte { return byte(c.AX) }

// AH returns the high byte of AX.
func (c *CPU_X88) AH() byte { return byte(c.AX >> 8) }

// SetAL sets the low byte of AX.
func (c *CPU_X88) SetAL(v byte) { c.AX = (c.AX & 0xFF00) | uint16(v) }

// SetAH sets the high byte of AX.
func (c *CPU_X88) SetAH(v byte) { c.AX = (c.AX & 0x00FF) | (uint16(v) << 8) }

func (c *CPU_X88) BL() byte      { return byte(c.BX) }
func (c *CPU_X88) BH() byte      { return byte(c.BX >> 8) }
func (c *CPU_X88) SetBL(v byte)  { c.BX = (c.BX & 0xFF00) | uint16(v) }
func (c *CPU_X88) SetBH(v byte)  { c.BX = (c.BX & 0x00FF) | (uint16(v) << 8) }
func (c *CPU_X88) CL() byte      { return byte(c.CX) }
func (c *CPU_X88) CH() byte      { return byte(c.CX >> 8) }
func (c *CPU_X88) SetCL(v byte)  { c.CX = (c.CX & 0xFF00) | uint16(v) }
func (c *CPU_X88) SetCH(v byte)  { c.CX = (c.CX & 0x00FF) | (uint16(v) << 8) }
func (c *CPU_X88) DL() byte      { return byte(c.DX) }
func (c *CPU_X88) DH() byte      { return byte(c.DX >> 8) }
func (c *CPU_X88) SetDL(v byte)  { c.DX = (c.DX & 0xFF00) | uint16(v) }
func (c *CPU_X88) SetDH(v byte)  { c.DX = (c.DX & 0x00FF) | (uint16(v) << 8) }

// getReg8 returns an 8-bit register by index (AL CL DL BL AH CH DH BH).
func (c *CPU_X88) getReg8(idx byte) byte {
	switch idx & 7 {
	case 0:
		return c.AL()
	case 1:
		return c.CL()
	case 2:
		return c.DL()
	case 3:
		return c.BL()
	case 4:
		return c.AH()
	case 5:
		return c.CH()
	case 6:
		return c.DH()
	case 7:
		return c.BH()
	}
	return 0
}

// setReg8 sets an 8-bit register by index.
func (c *CPU_X88) setReg8(idx byte, v byte) {
	switch idx & 7 {
	case 0:
		c.SetAL(v)
	case 1:
		c.SetCL(v)
	case 2:
		c.SetDL(v)
	case 3:
		c.SetBL(v)
	case 4:
		c.SetAH(v)
	case 5:
		c.SetCH(v)
	case 6:
		c.SetDH(v)
	case 7:
		c.SetBH(v)
	}
}

// getReg16 returns a 16-bit register by index (AX CX DX BX SP BP SI DI).
func (c *CPU_X88) getReg16(idx byte) uint16 {
	switch idx & 7 {
	case 0:
		return c.AX
	case 1:
		return c.CX
	case 2:
		return c.DX
	case 3:
		return c.BX
	case 4:
		return c.SP
	case 5:
		return c.BP
	case 6:
		return c.SI
	case 7:
		return c.DI
	}
	return 0
}

// setReg16 sets a 16-bit register by index.
func (c *CPU_X88) setReg16(idx byte, v uint16) {
	switch idx & 7 {
	case 0:
		c.AX = v
	case 1:
		c.CX = v
	case 2:
		c.DX = v
	case 3:
		c.BX = v
	case 4:
		c.SP = v
	case 5:
		c.BP = v
	case 6:
		c.SI = v
	case 7:
		c.DI = v
	}
}

// getSeg returns a segment register by index.
func (c *CPU_X88) getSeg(idx int) uint16 {
	switch idx & 3 {
	case x88SegES:
		return c.ES
	case x88SegCS:
		return c.CS
	case x88SegSS:
		return c.SS
	case x88SegDS:
		return c.DS
	}
	return 0
}

// setSeg sets a segment register by index.
func (c *CPU_X88) setSeg(idx int, v uint16) {
	switch idx & 3 {
	case x88SegES:
		c.ES = v
	case x88SegCS:
		c.CS = v
	case x88SegSS:
		c.SS = v
	case x88SegDS:
		c.DS = v
	}
}

// -----------------------------------------------------------------------------
// Flag helpers
// -----------------------------------------------------------------------------

func (c *CPU_X88) getFlag(flag uint16) bool {
	return (c.Flags & flag) != 0
}

func (c *CPU_X88) setFlag(flag uint16, set bool) {
	if set {
		c.Flags |= flag
	} else {
		c.Flags &^= flag
	}
}

func (c *CPU_X88) flagBit(flag uint16) uint16 {
	if c.getFlag(flag) {
		return 1
	}
	return 0
}

// parity returns true if the byte has even parity.
func parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return (v & 1) == 0
}

// -----------------------------------------------------------------------------
// Memory access
// -----------------------------------------------------------------------------

// fetch reads the next machine-code byte at CS:IP.
func (c *CPU_X88) fetch() byte {
	mc := c.mem.ReadSeg(c.CS, c.IP)
	c.IP++
	if c.trace != nil {
		c.trace.mc(mc)
	}
	return mc
}

// fetch16 reads the next little-endian machine-code word.
func (c *CPU_X88) fetch16() uint16 {
	lo := c.fetch()
	hi := c.fetch()
	return uint16(lo) | (uint16(hi) << 8)
}

// segFor resolves the segment value to use for a data access, applying
// the active segment override on top of the instruction's default.
func (c *CPU_X88) segFor(def int) uint16 {
	if c.prefixSeg >= 0 {
		return c.getSeg(c.prefixSeg)
	}
	return c.getSeg(def)
}

func (c *CPU_X88) memRead8(def int, off uint16) byte {
	return c.mem.ReadSeg(c.segFor(def), off)
}

func (c *CPU_X88) memWrite8(def int, off uint16, v byte) {
	c.mem.WriteSeg(c.segFor(def), off, v)
}

func (c *CPU_X88) memRead16(def int, off uint16) uint16 {
	seg := c.segFor(def)
	return uint16(c.mem.ReadSeg(seg, off)) | (uint16(c.mem.ReadSeg(seg, off+1)) << 8)
}

func (c *CPU_X88) memWrite16(def int, off uint16, v uint16) {
	seg := c.segFor(def)
	c.mem.WriteSeg(seg, off, byte(v))
	c.mem.WriteSeg(seg, off+1, byte(v>>8))
}

// -----------------------------------------------------------------------------
// Stack operations
// -----------------------------------------------------------------------------

func (c *CPU_X88) push16(v uint16) {
	c.SP -= 2
	c.mem.WriteSeg(c.SS, c.SP, byte(v))
	c.mem.WriteSeg(c.SS, c.SP+1, byte(v>>8))
}

func (c *CPU_X88) pop16() uint16 {
	v := uint16(c.mem.ReadSeg(c.SS, c.SP)) | (uint16(c.mem.ReadSeg(c.SS, c.SP+1)) << 8)
	c.SP += 2
	return v
}

// -----------------------------------------------------------------------------
// ModR/M decoding
// -----------------------------------------------------------------------------

// fetchModRM fetches and caches the ModR/M byte.
func (c *CPU_X88) fetchModRM() byte {
	if !c.modrmLoaded {
		c.modrm = c.fetch()
		c.modrmLoaded = true
	}
	return c.modrm
}

func (c *CPU_X88) modrmMod() byte { return c.fetchModRM() >> 6 }
func (c *CPU_X88) modrmReg() byte { return (c.fetchModRM() >> 3) & 7 }
func (c *CPU_X88) modrmRM() byte  { return c.fetchModRM() & 7 }

// effectiveAddress computes (and caches) the offset and default segment
// for the current ModR/M memory operand. Displacement bytes are consumed
// exactly once; read-modify-write instructions hit the cache on the
// write-back access.
func (c *CPU_X88) effectiveAddress() (uint16, int) {
	if c.eaLoaded {
		return c.ea, c.eaSeg
	}

	mod := c.modrmMod()
	rm := c.modrmRM()

	var disp uint16
	switch mod {
	case modDispLoSign:
		disp = uint16(int16(int8(c.fetch())))
	case modDispHiLo:
		disp = c.fetch16()
	}

	var off uint16
	seg := x88SegDS

	switch rm {
	case 0: // [BX+SI]
		off = c.BX + c.SI + disp
	case 1: // [BX+DI]
		off = c.BX + c.DI + disp
	case 2: // [BP+SI]
		off = c.BP + c.SI + disp
		seg = x88SegSS
	case 3: // [BP+DI]
		off = c.BP + c.DI + disp
		seg = x88SegSS
	case 4: // [SI]
		off = c.SI + disp
	case 5: // [DI]
		off = c.DI + disp
	case 6: // [BP] or direct address
		if mod == modDispZero {
			off = c.fetch16()
		} else {
			off = c.BP + disp
			seg = x88SegSS
		}
	case 7: // [BX]
		off = c.BX + disp
	}

	c.ea = off
	c.eaSeg = seg
	c.eaLoaded = true
	return off, seg
}

// readRM8 reads the 8-bit register or memory operand selected by ModR/M.
func (c *CPU_X88) readRM8() byte {
	if c.modrmMod() == modRegister {
		return c.getReg8(c.modrmRM())
	}
	off, seg := c.effectiveAddress()
	return c.memRead8(seg, off)
}

// writeRM8 writes the 8-bit register or memory operand selected by ModR/M.
func (c *CPU_X88) writeRM8(v byte) {
	if c.modrmMod() == modRegister {
		c.setReg8(c.modrmRM(), v)
		return
	}
	off, seg := c.effectiveAddress()
	c.memWrite8(seg, off, v)
}

// readRM16 reads the 16-bit register or memory operand selected by ModR/M.
func (c *CPU_X88) readRM16() uint16 {
	if c.modrmMod() == modRegister {
		return c.getReg16(c.modrmRM())
	}
	off, seg := c.effectiveAddress()
	return c.memRead16(seg, off)
}

// writeRM16 writes the 16-bit register or memory operand selected by ModR/M.
func (c *CPU_X88) writeRM16(v uint16) {
	if c.modrmMod() == modRegister {
		c.setReg16(c.modrmRM(), v)
		return
	}
	off, seg := c.effectiveAddress()
	c.memWrite16(seg, off, v)
}

// readEA16At reads a word at a byte delta from the cached effective
// address; used for the segment half of far pointers (LES/LDS, CALLF/JMPF
// through memory).
func (c *CPU_X88) readEA16At(delta uint16) uint16 {
	off, seg := c.effectiveAddress()
	return c.memRead16(seg, off+delta)
}

// -----------------------------------------------------------------------------
// Interrupts
// -----------------------------------------------------------------------------

// interrupt performs the architectural interrupt sequence: push flags,
// CS and IP, clear TF and IF, and vector through the table in the first
// kilobyte of memory.
func (c *CPU_X88) interrupt(vector byte) {
	if c.trace != nil {
		c.trace.interrupt(vector, c)
	}
	c.SP -= 6
	c.mem.WriteSeg(c.SS, c.SP, byte(c.IP))
	c.mem.WriteSeg(c.SS, c.SP+1, byte(c.IP>>8))
	c.mem.WriteSeg(c.SS, c.SP+2, byte(c.CS))
	c.mem.WriteSeg(c.SS, c.SP+3, byte(c.CS>>8))
	c.mem.WriteSeg(c.SS, c.SP+4, byte(c.Flags))
	c.mem.WriteSeg(c.SS, c.SP+5, byte(c.Flags>>8))

	addr := uint32(vector) * 4
	c.IP = uint16(c.mem.Read(addr)) | (uint16(c.mem.Read(addr+1)) << 8)
	c.CS = uint16(c.mem.Read(addr+2)) | (uint16(c.mem.Read(addr+3)) << 8)

	c.setFlag(x88FlagTF, false)
	c.setFlag(x88FlagIF, false)
}

// Irq delivers a hardware interrupt request for IRQ line n. The CPU
// always wakes from halt. If interrupts are disabled the request is
// rejected and reported back as pending; the system chip retries it on
// a later tick.
func (c *CPU_X88) Irq(n int) bool {
	c.Halted = false
	if !c.getFlag(x88FlagIF) {
		return true // Retained as pending.
	}
	c.interrupt(byte(n) + 8)
	return false
}

// -----------------------------------------------------------------------------
// Instruction execution
// -----------------------------------------------------------------------------

// Step executes a single instruction, including any prefixes.
func (c *CPU_X88) Step() {
	if c.Halted {
		return // Waiting for IRQ.
	}

	c.prefixSeg = -1
	c.prefixRep = repNone
	c.modrmLoaded = false
	c.eaLoaded = false

	if c.trace != nil {
		c.trace.start(c)
	}

	for {
		c.opcode = c.fetch()

		switch c.opcode {
		case 0x26: // ES:
			c.prefixSeg = x88SegES
		case 0x2E: // CS:
			c.prefixSeg = x88SegCS
		case 0x36: // SS:
			c.prefixSeg = x88SegSS
		case 0x3E: // DS:
			c.prefixSeg = x88SegDS
		case 0xF0: // LOCK: recognized, single-processor machine
		case 0xF2: // REPNE/REPNZ
			c.prefixRep = repNENZ
		case 0xF3: // REPE/REPZ
			c.prefixRep = repEZ
		default:
			if handler := c.baseOps[c.opcode]; handler != nil {
				handler(c)
			} else {
				c.panicf("Unhandled opcode: 0x%02x\n", c.opcode)
			}
			if c.trace != nil {
				c.trace.end()
			}
			return
		}
	}
}

// initBaseOps fills the opcode dispatch table.
func (c *CPU_X88) initBaseOps() {
	c.baseOps[0x00] = (*CPU_X88).opADD_Eb_Gb
	c.baseOps[0x01] = (*CPU_X88).opADD_Ev_Gv
	c.baseOps[0x02] = (*CPU_X88).opADD_Gb_Eb
	c.baseOps[0x03] = (*CPU_X88).opADD_Gv_Ev
	c.baseOps[0x04] = (*CPU_X88).opADD_AL_Ib
	c.baseOps[0x05] = (*CPU_X88).opADD_AX_Iv
	c.baseOps[0x06] = func(c *CPU_X88) { c.push16(c.ES) }
	c.baseOps[0x07] = func(c *CPU_X88) { c.ES = c.pop16() }
	c.baseOps[0x08] = (*CPU_X88).opOR_Eb_Gb
	c.baseOps[0x09] = (*CPU_X88).opOR_Ev_Gv
	c.baseOps[0x0A] = (*CPU_X88).opOR_Gb_Eb
	c.baseOps[0x0B] = (*CPU_X88).opOR_Gv_Ev
	c.baseOps[0x0C] = (*CPU_X88).opOR_AL_Ib
	c.baseOps[0x0D] = (*CPU_X88).opOR_AX_Iv
	c.baseOps[0x0E] = func(c *CPU_X88) { c.push16(c.CS) }
	c.baseOps[0x0F] = func(c *CPU_X88) { c.CS = c.pop16() } // POP CS, 8088 only
	c.baseOps[0x10] = (*CPU_X88).opADC_Eb_Gb
	c.baseOps[0x11] = (*CPU_X88).opADC_Ev_Gv
	c.baseOps[0x12] = (*CPU_X88).opADC_Gb_Eb
	c.baseOps[0x13] = (*CPU_X88).opADC_Gv_Ev
	c.baseOps[0x14] = (*CPU_X88).opADC_AL_Ib
	c.baseOps[0x15] = (*CPU_X88).opADC_AX_Iv
	c.baseOps[0x16] = func(c *CPU_X88) { c.push16(c.SS) }
	c.baseOps[0x17] = func(c *CPU_X88) { c.SS = c.pop16() }
	c.baseOps[0x18] = (*CPU_X88).opSBB_Eb_Gb
	c.baseOps[0x19] = (*CPU_X88).opSBB_Ev_Gv
	c.baseOps[0x1A] = (*CPU_X88).opSBB_Gb_Eb
	c.baseOps[0x1B] = (*CPU_X88).opSBB_Gv_Ev
	c.baseOps[0x1C] = (*CPU_X88).opSBB_AL_Ib
	c.baseOps[0x1D] = (*CPU_X88).opSBB_AX_Iv
	c.baseOps[0x1E] = func(c *CPU_X88) { c.push16(c.DS) }
	c.baseOps[0x1F] = func(c *CPU_X88) { c.DS = c.pop16() }
	c.baseOps[0x20] = (*CPU_X88).opAND_Eb_Gb
	c.baseOps[0x21] = (*CPU_X88).opAND_Ev_Gv
	c.baseOps[0x22] = (*CPU_X88).opAND_Gb_Eb
	c.baseOps[0x23] = (*CPU_X88).opAND_Gv_Ev
	c.baseOps[0x24] = (*CPU_X88).opAND_AL_Ib
	c.baseOps[0x25] = (*CPU_X88).opAND_AX_Iv
	c.baseOps[0x27] = (*CPU_X88).opDAA
	c.baseOps[0x28] = (*CPU_X88).opSUB_Eb_Gb
	c.baseOps[0x29] = (*CPU_X88).opSUB_Ev_Gv
	c.baseOps[0x2A] = (*CPU_X88).opSUB_Gb_Eb
	c.baseOps[0x2B] = (*CPU_X88).opSUB_Gv_Ev
	c.baseOps[0x2C] = (*CPU_X88).opSUB_AL_Ib
	c.baseOps[0x2D] = (*CPU_X88).opSUB_AX_Iv
	c.baseOps[0x2F] = (*CPU_X88).opDAS
	c.baseOps[0x30] = (*CPU_X88).opXOR_Eb_Gb
	c.baseOps[0x31] = (*CPU_X88).opXOR_Ev_Gv
	c.baseOps[0x32] = (*CPU_X88).opXOR_Gb_Eb
	c.baseOps[0x33] = (*CPU_X88).opXOR_Gv_Ev
	c.baseOps[0x34] = (*CPU_X88).opXOR_AL_Ib
	c.baseOps[0x35] = (*CPU_X88).opXOR_AX_Iv
	c.baseOps[0x37] = (*CPU_X88).opAAA
	c.baseOps[0x38] = (*CPU_X88).opCMP_Eb_Gb
	c.baseOps[0x39] = (*CPU_X88).opCMP_Ev_Gv
	c.baseOps[0x3A] = (*CPU_X88).opCMP_Gb_Eb
	c.baseOps[0x3B] = (*CPU_X88).opCMP_Gv_Ev
	c.baseOps[0x3C] = (*CPU_X88).opCMP_AL_Ib
	c.baseOps[0x3D] = (*CPU_X88).opCMP_AX_Iv
	c.baseOps[0x3F] = (*CPU_X88).opAAS

	for i := 0; i < 8; i++ {
		idx := byte(i)
		c.baseOps[0x40+i] = func(c *CPU_X88) { c.setReg16(idx, c.inc16(c.getReg16(idx))) }
		c.baseOps[0x48+i] = func(c *CPU_X88) { c.setReg16(idx, c.dec16(c.getReg16(idx))) }
		c.baseOps[0x50+i] = func(c *CPU_X88) { c.push16(c.getReg16(idx)) }
	}
	c.baseOps[0x54] = func(c *CPU_X88) {
		// PUSH SP stores the already-decremented stack pointer.
		c.SP -= 2
		c.mem.WriteSeg(c.SS, c.SP, byte(c.SP))
		c.mem.WriteSeg(c.SS, c.SP+1, byte(c.SP>>8))
	}
	c.baseOps[0x58] = func(c *CPU_X88) { c.AX = c.pop16() }
	c.baseOps[0x59] = func(c *CPU_X88) { c.CX = c.pop16() }
	c.baseOps[0x5A] = func(c *CPU_X88) { c.DX = c.pop16() }
	c.baseOps[0x5B] = func(c *CPU_X88) { c.BX = c.pop16() }
	c.baseOps[0x5C] = func(c *CPU_X88) {
		// POP SP loads the popped value, not the incremented SP.
		v := uint16(c.mem.ReadSeg(c.SS, c.SP)) | (uint16(c.mem.ReadSeg(c.SS, c.SP+1)) << 8)
		c.SP = v
	}
	c.baseOps[0x5D] = func(c *CPU_X88) { c.BP = c.pop16() }
	c.baseOps[0x5E] = func(c *CPU_X88) { c.SI = c.pop16() }
	c.baseOps[0x5F] = func(c *CPU_X88) { c.DI = c.pop16() }

	c.baseOps[0x70] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagOF)) }
	c.baseOps[0x71] = func(c *CPU_X88) { c.jcc(!c.getFlag(x88FlagOF)) }
	c.baseOps[0x72] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagCF)) }
	c.baseOps[0x73] = func(c *CPU_X88) { c.jcc(!c.getFlag(x88FlagCF)) }
	c.baseOps[0x74] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagZF)) }
	c.baseOps[0x75] = func(c *CPU_X88) { c.jcc(!c.getFlag(x88FlagZF)) }
	c.baseOps[0x76] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagCF) || c.getFlag(x88FlagZF)) }
	c.baseOps[0x77] = func(c *CPU_X88) { c.jcc(!c.getFlag(x88FlagCF) && !c.getFlag(x88FlagZF)) }
	c.baseOps[0x78] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagSF)) }
	c.baseOps[0x79] = func(c *CPU_X88) { c.jcc(!c.getFlag(x88FlagSF)) }
	c.baseOps[0x7A] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagPF)) }
	c.baseOps[0x7B] = func(c *CPU_X88) { c.jcc(!c.getFlag(x88FlagPF)) }
	c.baseOps[0x7C] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagSF) != c.getFlag(x88FlagOF)) }
	c.baseOps[0x7D] = func(c *CPU_X88) { c.jcc(c.getFlag(x88FlagSF) == c.getFlag(x88FlagOF)) }
	c.baseOps[0x7E] = func(c *CPU_X88) {
		c.jcc(c.getFlag(x88FlagZF) || (c.getFlag(x88FlagSF) != c.getFlag(x88FlagOF)))
	}
	c.baseOps[0x7F] = func(c *CPU_X88) {
		c.jcc(!c.getFlag(x88FlagZF) && (c.getFlag(x88FlagSF) == c.getFlag(x88FlagOF)))
	}

	c.baseOps[0x80] = (*CPU_X88).opGrp1_Eb_Ib
	c.baseOps[0x81] = (*CPU_X88).opGrp1_Ev_Iv
	c.baseOps[0x82] = (*CPU_X88).opGrp1_Eb_Ib // Alias of 0x80.
	c.baseOps[0x83] = (*CPU_X88).opGrp1_Ev_Ib
	c.baseOps[0x84] = (*CPU_X88).opTEST_Eb_Gb
	c.baseOps[0x85] = (*CPU_X88).opTEST_Ev_Gv
	c.baseOps[0x86] = (*CPU_X88).opXCHG_Eb_Gb
	c.baseOps[0x87] = (*CPU_X88).opXCHG_Ev_Gv
	c.baseOps[0x88] = (*CPU_X88).opMOV_Eb_Gb
	c.baseOps[0x89] = (*CPU_X88).opMOV_Ev_Gv
	c.baseOps[0x8A] = (*CPU_X88).opMOV_Gb_Eb
	c.baseOps[0x8B] = (*CPU_X88).opMOV_Gv_Ev
	c.baseOps[0x8C] = (*CPU_X88).opMOV_Ew_Sw
	c.baseOps[0x8D] = (*CPU_X88).opLEA
	c.baseOps[0x8E] = (*CPU_X88).opMOV_Sw_Ew
	c.baseOps[0x8F] = (*CPU_X88).opPOP_Ev

	c.baseOps[0x90] = func(c *CPU_X88) {} // NOP
	for i := 1; i < 8; i++ {
		idx := byte(i)
		c.baseOps[0x90+i] = func(c *CPU_X88) {
			tmp := c.AX
			c.AX = c.getReg16(idx)
			c.setReg16(idx, tmp)
		}
	}

	c.baseOps[0x98] = (*CPU_X88).opCBW
	c.baseOps[0x99] = (*CPU_X88).opCWD
	c.baseOps[0x9A] = (*CPU_X88).opCALL_far
	c.baseOps[0x9B] = func(c *CPU_X88) { c.panicf("WAIT not implemented!\n") }
	c.baseOps[0x9C] = func(c *CPU_X88) { c.push16(c.Flags) }
	c.baseOps[0x9D] = (*CPU_X88).opPOPF
	c.baseOps[0x9E] = (*CPU_X88).opSAHF
	c.baseOps[0x9F] = (*CPU_X88).opLAHF

	c.baseOps[0xA0] = (*CPU_X88).opMOV_AL_moffs
	c.baseOps[0xA1] = (*CPU_X88).opMOV_AX_moffs
	c.baseOps[0xA2] = (*CPU_X88).opMOV_moffs_AL
	c.baseOps[0xA3] = (*CPU_X88).opMOV_moffs_AX
	c.baseOps[0xA4] = (*CPU_X88).opMOVSB
	c.baseOps[0xA5] = (*CPU_X88).opMOVSW
	c.baseOps[0xA6] = (*CPU_X88).opCMPSB
	c.baseOps[0xA7] = (*CPU_X88).opCMPSW
	c.baseOps[0xA8] = (*CPU_X88).opTEST_AL_Ib
	c.baseOps[0xA9] = (*CPU_X88).opTEST_AX_Iv
	c.baseOps[0xAA] = (*CPU_X88).opSTOSB
	c.baseOps[0xAB] = (*CPU_X88).opSTOSW
	c.baseOps[0xAC] = (*CPU_X88).opLODSB
	c.baseOps[0xAD] = (*CPU_X88).opLODSW
	c.baseOps[0xAE] = (*CPU_X88).opSCASB
	c.baseOps[0xAF] = (*CPU_X88).opSCASW

	for i := 0; i < 8; i++ {
		idx := byte(i)
		c.baseOps[0xB0+i] = func(c *CPU_X88) { c.setReg8(idx, c.fetch()) }
		c.baseOps[0xB8+i] = func(c *CPU_X88) { c.setReg16(idx, c.fetch16()) }
	}

	c.baseOps[0xC2] = (*CPU_X88).opRET_imm16
	c.baseOps[0xC3] = (*CPU_X88).opRET
	c.baseOps[0xC4] = (*CPU_X88).opLES
	c.baseOps[0xC5] = (*CPU_X88).opLDS
	c.baseOps[0xC6] = (*CPU_X88).opMOV_Eb_Ib
	c.baseOps[0xC7] = (*CPU_X88).opMOV_Ev_Iv
	c.baseOps[0xCA] = (*CPU_X88).opRETF_imm16
	c.baseOps[0xCB] = (*CPU_X88).opRETF
	c.baseOps[0xCC] = func(c *CPU_X88) { c.interrupt(intBreakpoint) }
	c.baseOps[0xCD] = func(c *CPU_X88) { c.interrupt(c.fetch()) }
	c.baseOps[0xCE] = func(c *CPU_X88) {
		if c.getFlag(x88FlagOF) {
			c.interrupt(intOverflow)
		}
	}
	c.baseOps[0xCF] = (*CPU_X88).opIRET

	c.baseOps[0xD0] = func(c *CPU_X88) { c.opGrp2_Eb(1) }
	c.baseOps[0xD1] = func(c *CPU_X88) { c.opGrp2_Ev(1) }
	c.baseOps[0xD2] = func(c *CPU_X88) { c.opGrp2_Eb(c.CL()) }
	c.baseOps[0xD3] = func(c *CPU_X88) { c.opGrp2_Ev(c.CL()) }
	c.baseOps[0xD4] = (*CPU_X88).opAAM
	c.baseOps[0xD5] = (*CPU_X88).opAAD
	c.baseOps[0xD7] = (*CPU_X88).opXLAT
	for i := 0xD8; i <= 0xDF; i++ {
		c.baseOps[i] = (*CPU_X88).opESC
	}

	c.baseOps[0xE0] = (*CPU_X88).opLOOPNE
	c.baseOps[0xE1] = (*CPU_X88).opLOOPE
	c.baseOps[0xE2] = (*CPU_X88).opLOOP
	c.baseOps[0xE3] = func(c *CPU_X88) { c.jcc(c.CX == 0) }
	c.baseOps[0xE4] = func(c *CPU_X88) { c.SetAL(c.io.Read(uint16(c.fetch()))) }
	c.baseOps[0xE5] = func(c *CPU_X88) {
		port := uint16(c.fetch())
		c.SetAL(c.io.Read(port))
		c.SetAH(c.io.Read(port + 1))
	}
	c.baseOps[0xE6] = func(c *CPU_X88) { c.io.Write(uint16(c.fetch()), c.AL()) }
	c.baseOps[0xE7] = func(c *CPU_X88) {
		port := uint16(c.fetch())
		c.io.Write(port, c.AL())
		c.io.Write(port+1, c.AH())
	}
	c.baseOps[0xE8] = (*CPU_X88).opCALL_rel16
	c.baseOps[0xE9] = func(c *CPU_X88) { c.IP += c.fetch16() }
	c.baseOps[0xEA] = (*CPU_X88).opJMP_far
	c.baseOps[0xEB] = func(c *CPU_X88) { c.jcc(true) }
	c.baseOps[0xEC] = func(c *CPU_X88) { c.SetAL(c.io.Read(c.DX)) }
	c.baseOps[0xED] = func(c *CPU_X88) {
		c.SetAL(c.io.Read(c.DX))
		c.SetAH(c.io.Read(c.DX + 1))
	}
	c.baseOps[0xEE] = func(c *CPU_X88) { c.io.Write(c.DX, c.AL()) }
	c.baseOps[0xEF] = func(c *CPU_X88) {
		c.io.Write(c.DX, c.AL())
		c.io.Write(c.DX+1, c.AH())
	}

	c.baseOps[0xF4] = func(c *CPU_X88) { c.Halted = true }
	c.baseOps[0xF5] = func(c *CPU_X88) { c.setFlag(x88FlagCF, !c.getFlag(x88FlagCF)) }
	c.baseOps[0xF6] = (*CPU_X88).opGrp3_Eb
	c.baseOps[0xF7] = (*CPU_X88).opGrp3_Ev
	c.baseOps[0xF8] = func(c *CPU_X88) { c.setFlag(x88FlagCF, false) }
	c.baseOps[0xF9] = func(c *CPU_X88) { c.setFlag(x88FlagCF, true) }
	c.baseOps[0xFA] = func(c *CPU_X88) { c.setFlag(x88FlagIF, false) }
	c.baseOps[0xFB] = func(c *CPU_X88) { c.setFlag(x88FlagIF, true) }
	c.baseOps[0xFC] = func(c *CPU_X88) { c.setFlag(x88FlagDF, false) }
	c.baseOps[0xFD] = func(c *CPU_X88) { c.setFlag(x88FlagDF, true) }
	c.baseOps[0xFE] = (*CPU_X88).opGrp4_Eb
	c.baseOps[0xFF] = (*CPU_X88).opGrp5_Ev
}

// jcc fetches the rel8 target and branches when the condition holds.
func (c *CPU_X88) jcc(cond bool) {
	disp := int8(c.fetch())
	if cond {
		c.IP += uint16(int16(disp))
	}
}
