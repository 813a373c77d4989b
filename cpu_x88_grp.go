// cpu_x88_grp.go - 8088 group opcodes and string instructions
//
// The group opcodes select their sub-operation from the reg field of the
// ModR/M byte. String instructions live here too because the repeat
// prefixes share their loop structure.
//
// License: GPLv3 or later

package main

// Sub-operation selectors from the ModR/M reg field.
const (
	grpALUAdd = 0
	grpALUOr  = 1
	grpALUAdc = 2
	grpALUSbb = 3
	grpALUAnd = 4
	grpALUSub = 5
	grpALUXor = 6
	grpALUCmp = 7

	grpShiftRol = 0
	grpShiftRor = 1
	grpShiftRcl = 2
	grpShiftRcr = 3
	grpShiftShl = 4
	grpShiftShr = 5
	grpShiftSar = 7

	grpUnaryTest  = 0
	grpUnaryTest2 = 1
	grpUnaryNot   = 2
	grpUnaryNeg   = 3
	grpUnaryMul   = 4
	grpUnaryImul  = 5
	grpUnaryDiv   = 6
	grpUnaryIdiv  = 7

	grpIncDecInc  = 0
	grpIncDecDec  = 1
	grpXferCall   = 2
	grpXferCallF  = 3
	grpXferJmp    = 4
	grpXferJmpF   = 5
	grpXferPush   = 6
	grpXferPush2  = 7
)

// =============================================================================
// Group 1: immediate ALU operations
// =============================================================================

func (c *CPU_X88) opGrp1_Eb_Ib() {
	c.fetchModRM()
	value := c.readRM8()
	data := c.fetch()

	switch c.modrmReg() {
	case grpALUAdd:
		value = c.add8(value, data)
	case grpALUOr:
		value = c.or8(value, data)
	case grpALUAdc:
		value = c.adc8(value, data)
	case grpALUSbb:
		value = c.sbb8(value, data)
	case grpALUAnd:
		value = c.and8(value, data)
	case grpALUSub:
		value = c.sub8(value, data)
	case grpALUXor:
		value = c.xor8(value, data)
	case grpALUCmp:
		c.cmp8(value, data)
	}

	c.writeRM8(value)
}

func (c *CPU_X88) opGrp1_Ev_Iv() {
	c.fetchModRM()
	value := c.readRM16()
	data := c.fetch16()
	c.grp1_16(value, data)
}

// opGrp1_Ev_Ib sign-extends its 8-bit immediate to 16 bits.
func (c *CPU_X88) opGrp1_Ev_Ib() {
	c.fetchModRM()
	value := c.readRM16()
	data := uint16(int16(int8(c.fetch())))
	c.grp1_16(value, data)
}

func (c *CPU_X88) grp1_16(value, data uint16) {
	switch c.modrmReg() {
	case grpALUAdd:
		value = c.add16(value, data)
	case grpALUOr:
		value = c.or16(value, data)
	case grpALUAdc:
		value = c.adc16(value, data)
	case grpALUSbb:
		value = c.sbb16(value, data)
	case grpALUAnd:
		value = c.and16(value, data)
	case grpALUSub:
		value = c.sub16(value, data)
	case grpALUXor:
		value = c.xor16(value, data)
	case grpALUCmp:
		c.cmp16(value, data)
	}

	c.writeRM16(value)
}

// =============================================================================
// Group 2: shifts and rotates
// =============================================================================

func (c *CPU_X88) opGrp2_Eb(count byte) {
	c.fetchModRM()
	value := c.readRM8()

	switch c.modrmReg() {
	case grpShiftRol:
		value = c.rol8(value, count)
	case grpShiftRor:
		value = c.ror8(value, count)
	case grpShiftRcl:
		value = c.rcl8(value, count)
	case grpShiftRcr:
		value = c.rcr8(value, count)
	case grpShiftShl:
		value = c.shl8(value, count)
	case grpShiftShr:
		value = c.shr8(value, count)
	case grpShiftSar:
		value = c.sar8(value, count)
	default:
		c.panicf("Unhandled shift opcode: 0x%x\n", c.modrmReg())
	}

	c.writeRM8(value)
}

func (c *CPU_X88) opGrp2_Ev(count byte) {
	c.fetchModRM()
	value := c.readRM16()

	switch c.modrmReg() {
	case grpShiftRol:
		value = c.rol16(value, count)
	case grpShiftRor:
		value = c.ror16(value, count)
	case grpShiftRcl:
		value = c.rcl16(value, count)
	case grpShiftRcr:
		value = c.rcr16(value, count)
	case grpShiftShl:
		value = c.shl16(value, count)
	case grpShiftShr:
		value = c.shr16(value, count)
	case grpShiftSar:
		value = c.sar16(value, count)
	default:
		c.panicf("Unhandled shift opcode: 0x%x\n", c.modrmReg())
	}

	c.writeRM16(value)
}

// =============================================================================
// Group 3: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV
// =============================================================================

func (c *CPU_X88) opGrp3_Eb() {
	c.fetchModRM()
	value := c.readRM8()

	switch c.modrmReg() {
	case grpUnaryTest, grpUnaryTest2:
		c.and8(c.fetch(), value)
	case grpUnaryNot:
		value = ^value
	case grpUnaryNeg:
		value = c.sub8(0, value)
	case grpUnaryMul:
		c.mul8(value)
		return // No write-back.
	case grpUnaryImul:
		c.imul8(value)
		return
	case grpUnaryDiv:
		c.div8(value)
		return
	case grpUnaryIdiv:
		c.idiv8(value)
		return
	}

	c.writeRM8(value)
}

func (c *CPU_X88) opGrp3_Ev() {
	c.fetchModRM()
	value := c.readRM16()

	switch c.modrmReg() {
	case grpUnaryTest, grpUnaryTest2:
		c.and16(c.fetch16(), value)
	case grpUnaryNot:
		value = ^value
	case grpUnaryNeg:
		value = c.sub16(0, value)
	case grpUnaryMul:
		c.mul16(value)
		return
	case grpUnaryImul:
		c.imul16(value)
		return
	case grpUnaryDiv:
		c.div16(value)
		return
	case grpUnaryIdiv:
		c.idiv16(value)
		return
	}

	c.writeRM16(value)
}

// =============================================================================
// Group 4 and 5: INC/DEC and indirect transfers
// =============================================================================

func (c *CPU_X88) opGrp4_Eb() {
	c.fetchModRM()
	value := c.readRM8()

	switch c.modrmReg() {
	case grpIncDecInc:
		value = c.inc8(value)
	case grpIncDecDec:
		value = c.dec8(value)
	default:
		c.panicf("Unhandled 0xFE opcode: 0x%x\n", c.modrmReg())
	}

	c.writeRM8(value)
}

func (c *CPU_X88) opGrp5_Ev() {
	c.fetchModRM()
	value := c.readRM16()

	switch c.modrmReg() {
	case grpIncDecInc:
		value = c.inc16(value)
	case grpIncDecDec:
		value = c.dec16(value)

	case grpXferCall:
		c.push16(c.IP)
		c.IP = value
		return

	case grpXferCallF:
		c.push16(c.CS)
		c.push16(c.IP)
		c.IP = value
		c.CS = c.readEA16At(2)
		return

	case grpXferJmp:
		c.IP = value
		return

	case grpXferJmpF:
		c.IP = value
		c.CS = c.readEA16At(2)
		return

	case grpXferPush, grpXferPush2:
		if c.modrmMod() == modRegister && c.modrmRM() == 4 {
			// Pushing SP stores the decremented value.
			value -= 2
		}
		c.push16(value)
		return
	}

	c.writeRM16(value)
}

// =============================================================================
// String instructions
//
// The source operand honors a segment override (default DS:SI); the
// destination is always ES:DI. Under a repeat prefix the count register
// guards the loop; CMPS and SCAS additionally condition on the zero flag
// matching the prefix polarity.
// =============================================================================

func (c *CPU_X88) stringStep8() uint16 {
	if c.getFlag(x88FlagDF) {
		return 0xFFFF // -1
	}
	return 1
}

func (c *CPU_X88) stringStep16() uint16 {
	if c.getFlag(x88FlagDF) {
		return 0xFFFE // -2
	}
	return 2
}

func (c *CPU_X88) movsb() {
	c.mem.WriteSeg(c.ES, c.DI, c.memRead8(x88SegDS, c.SI))
	step := c.stringStep8()
	c.SI += step
	c.DI += step
}

func (c *CPU_X88) movsw() {
	c.mem.WriteSeg(c.ES, c.DI, c.memRead8(x88SegDS, c.SI))
	c.mem.WriteSeg(c.ES, c.DI+1, c.memRead8(x88SegDS, c.SI+1))
	step := c.stringStep16()
	c.SI += step
	c.DI += step
}

func (c *CPU_X88) cmpsb() {
	c.cmp8(c.memRead8(x88SegDS, c.SI), c.mem.ReadSeg(c.ES, c.DI))
	step := c.stringStep8()
	c.SI += step
	c.DI += step
}

func (c *CPU_X88) cmpsw() {
	data := uint16(c.mem.ReadSeg(c.ES, c.DI)) | (uint16(c.mem.ReadSeg(c.ES, c.DI+1)) << 8)
	c.cmp16(c.memRead16(x88SegDS, c.SI), data)
	step := c.stringStep16()
	c.SI += step
	c.DI += step
}

func (c *CPU_X88) stosb() {
	c.mem.WriteSeg(c.ES, c.DI, c.AL())
	c.DI += c.stringStep8()
}

func (c *CPU_X88) stosw() {
	c.mem.WriteSeg(c.ES, c.DI, c.AL())
	c.mem.WriteSeg(c.ES, c.DI+1, c.AH())
	c.DI += c.stringStep16()
}

func (c *CPU_X88) lodsb() {
	c.SetAL(c.memRead8(x88SegDS, c.SI))
	c.SI += c.stringStep8()
}

func (c *CPU_X88) lodsw() {
	c.SetAL(c.memRead8(x88SegDS, c.SI))
	c.SetAH(c.memRead8(x88SegDS, c.SI+1))
	c.SI += c.stringStep16()
}

func (c *CPU_X88) scasb() {
	c.cmp8(c.AL(), c.mem.ReadSeg(c.ES, c.DI))
	c.DI += c.stringStep8()
}

func (c *CPU_X88) scasw() {
	data := uint16(c.mem.ReadSeg(c.ES, c.DI)) | (uint16(c.mem.ReadSeg(c.ES, c.DI+1)) << 8)
	c.cmp16(c.AX, data)
	c.DI += c.stringStep16()
}

// repPlain runs a MOVS/STOS/LODS style primitive, looping on CX under
// either repeat prefix.
func (c *CPU_X88) repPlain(op func()) {
	if c.prefixRep == repNone {
		op()
		return
	}
	for c.CX != 0 {
		op()
		c.CX--
	}
}

// repCond runs a CMPS/SCAS style primitive, continuing while the zero
// flag matches the repeat prefix polarity.
func (c *CPU_X88) repCond(op func()) {
	switch c.prefixRep {
	case repNone:
		op()

	case repEZ:
		if c.CX != 0 {
			op()
			c.CX--
			for c.CX != 0 && c.getFlag(x88FlagZF) {
				op()
				c.CX--
			}
		}

	case repNENZ:
		if c.CX != 0 {
			op()
			c.CX--
			for c.CX != 0 && !c.getFlag(x88FlagZF) {
				op()
				c.CX--
			}
		}
	}
}

func (c *CPU_X88) opMOVSB() { c.repPlain(c.movsb) }
func (c *CPU_X88) opMOVSW() { c.repPlain(c.movsw) }
func (c *CPU_X88) opCMPSB() { c.repCond(c.cmpsb) }
func (c *CPU_X88) opCMPSW() { c.repCond(c.cmpsw) }
func (c *CPU_X88) opSTOSB() { c.repPlain(c.stosb) }
func (c *CPU_X88) opSTOSW() { c.repPlain(c.stosw) }
func (c *CPU_X88) opLODSB() { c.repPlain(c.lodsb) }
func (c *CPU_X88) opLODSW() { c.repPlain(c.lodsw) }
func (c *CPU_X88) opSCASB() { c.repCond(c.scasb) }
func (c *CPU_X88) opSCASW() { c.repCond(c.scasw) }
