// net_peer.go - Synthetic network peer for the XT Engine
//
// A tiny userspace IP stack living at the other end of the emulated
// Ethernet segment. It answers ARP, ICMP echo and DHCP itself, and
// bridges guest TCP/UDP conversations onto real host sockets. There is
// exactly one peer at a well-known address; outbound frames the peer
// does not understand are dropped on the floor like a quiet wire.
//
// License: GPLv3 or later

package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	netMTU                     = 1514
	netSocketsMax              = 5
	netSocketInactivityTimeout = 1000000
	netSocketAckWait           = 100

	// Host socket timing: connects are synchronous, polls use a tiny
	// read window because an already-expired deadline would fail
	// without delivering buffered data.
	netTCPConnectTimeout = 10 * time.Second
	netPollWindow        = time.Millisecond
)

// The local MAC is the address of the emulated network card, the remote
// MAC is the one and only remote host on the emulated network. All six
// bytes of each address are repeated for simplicity.
const (
	netMACRemote = 0x11
	netMACLocal  = 0x22
)

// Hardcoded IPv4 addresses as 32-bit big-endian values.
var (
	netIPRemote uint32 = 0x0A000001 // 10.0.0.1
	netIPLocal  uint32 = 0x0A000002 // 10.0.0.2
)

// TCP flag combinations the peer recognizes.
const (
	tcpFlagsSyn    = 0x02
	tcpFlagsRst    = 0x04
	tcpFlagsAck    = 0x10
	tcpFlagsFinAck = 0x11
	tcpFlagsSynAck = 0x12
	tcpFlagsRstAck = 0x14
	tcpFlagsPshAck = 0x18
)

type netUDPSocket struct {
	conn              *net.UDPConn
	inactivityTimeout int
	srcPort           uint16
	dstPort           uint16
	dstIP             uint32
}

type netTCPSocket struct {
	conn              net.Conn
	inactivityTimeout int
	srcPort           uint16
	dstPort           uint16
	dstIP             uint32
	sendSeq           uint32 // Next number to send to the client.
	recvSeq           uint32 // Last received number from the client.
	finAckSent        bool   // Set during graceful shutdown.
	ackWait           int    // Flow-control wait counter.
}

// NetPeer holds the pending receive frame and the socket tables.
type NetPeer struct {
	rxFrame [netMTU]byte
	rxLen   uint16
	rxReady bool
	ipID    uint16

	udpSockets [netSocketsMax]netUDPSocket
	tcpSockets [netSocketsMax]netTCPSocket

	edfs *EDFS

	trace  *TraceRing
	panicf func(format string, args ...any)
}

// NewNetPeer builds the peer. The EDFS server is optional.
func NewNetPeer(edfs *EDFS, panicf func(format string, args ...any)) *NetPeer {
	if panicf == nil {
		panicf = func(string, ...any) {}
	}
	p := &NetPeer{
		edfs:   edfs,
		trace:  NewTraceRing(256),
		panicf: panicf,
	}
	for i := range p.tcpSockets {
		p.tcpSockets[i].sendSeq = uint32(i) * 0x1000000
	}
	return p
}

func netTraceIP(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// -----------------------------------------------------------------------------
// Checksums
// -----------------------------------------------------------------------------

// ipChecksum is the standard ones'-complement header sum. The initial
// accumulator of -1 pairs with the 0x0001 the reply builders pre-seed
// into the checksum field, so the field itself cancels out of the sum.
func ipChecksum(buffer []byte) uint16 {
	add := int32(-1)
	for i := 0; i < len(buffer); i += 2 {
		add += int32(buffer[i]) << 8
		if i+1 < len(buffer) {
			add += int32(buffer[i+1])
		}
	}
	for add>>16 != 0 {
		add = (add & 0xFFFF) + (add >> 16)
	}
	return ^uint16(add)
}

// protoChecksum covers a TCP or UDP header and payload together with the
// IPv4 pseudo header. The reserved UDP value 0x0000 maps to 0xFFFF.
func protoChecksum(buffer []byte, srcIP, dstIP uint32, proto byte) uint16 {
	add := uint32(0)

	add += srcIP >> 16
	add += srcIP & 0xFFFF
	add += dstIP >> 16
	add += dstIP & 0xFFFF
	add += uint32(proto)
	add += uint32(len(buffer))

	for i := 0; i < len(buffer); i += 2 {
		add += uint32(buffer[i]) << 8
		if i+1 < len(buffer) {
			add += uint32(buffer[i+1])
		}
	}
	for add>>16 != 0 {
		add = (add & 0xFFFF) + (add >> 16)
	}
	checksum := ^uint16(add)

	if proto == 17 && checksum == 0x0000 {
		return 0xFFFF
	}
	return checksum
}

// -----------------------------------------------------------------------------
// Reply builders
// -----------------------------------------------------------------------------

func (p *NetPeer) ethernetReply() {
	for i := 0; i < 6; i++ {
		p.rxFrame[i] = netMACLocal      // Destination MAC
		p.rxFrame[6+i] = netMACRemote   // Source MAC
	}
}

func (p *NetPeer) ipv4Reply(ipLen uint16, proto byte, srcIP uint32) {
	p.rxFrame[0x0C] = 0x08 // Ethertype = IP
	p.rxFrame[0x0D] = 0x00
	p.rxFrame[0x0E] = 0x45 // Version + IHL
	p.rxFrame[0x0F] = 0x00 // TOS
	p.rxFrame[0x10] = byte(ipLen >> 8)
	p.rxFrame[0x11] = byte(ipLen)
	p.rxFrame[0x12] = byte(p.ipID >> 8)
	p.rxFrame[0x13] = byte(p.ipID)
	p.rxFrame[0x14] = 0x00 // Flags + fragment offset
	p.rxFrame[0x15] = 0x00
	p.rxFrame[0x16] = 0x40 // TTL
	p.rxFrame[0x17] = proto
	p.rxFrame[0x18] = 0x00 // Header checksum seed
	p.rxFrame[0x19] = 0x01

	p.rxFrame[0x1A] = byte(srcIP >> 24)
	p.rxFrame[0x1B] = byte(srcIP >> 16)
	p.rxFrame[0x1C] = byte(srcIP >> 8)
	p.rxFrame[0x1D] = byte(srcIP)

	p.rxFrame[0x1E] = byte(netIPLocal >> 24)
	p.rxFrame[0x1F] = byte(netIPLocal >> 16)
	p.rxFrame[0x20] = byte(netIPLocal >> 8)
	p.rxFrame[0x21] = byte(netIPLocal)

	checksum := ipChecksum(p.rxFrame[0x0E : 0x0E+20])
	p.rxFrame[0x18] = byte(checksum >> 8)
	p.rxFrame[0x19] = byte(checksum)

	p.ipID++
}

func (p *NetPeer) udpReply(recvBytes int, srcIP uint32, srcPort, dstPort uint16) {
	p.rxFrame[0x22] = byte(srcPort >> 8)
	p.rxFrame[0x23] = byte(srcPort)
	p.rxFrame[0x24] = byte(dstPort >> 8)
	p.rxFrame[0x25] = byte(dstPort)
	p.rxFrame[0x26] = byte((8 + recvBytes) >> 8)
	p.rxFrame[0x27] = byte(8 + recvBytes)
	p.rxFrame[0x28] = 0x00
	p.rxFrame[0x29] = 0x00

	checksum := protoChecksum(p.rxFrame[0x22:0x22+8+recvBytes], srcIP, netIPLocal, 17)
	p.rxFrame[0x28] = byte(checksum >> 8)
	p.rxFrame[0x29] = byte(checksum)
}

func (p *NetPeer) tcpReply(length int, socketIndex int, flags byte) {
	sock := &p.tcpSockets[socketIndex]

	p.trace.Addf("TCP [%d] rx: flags = %02x\n", socketIndex, flags)

	srcIP := sock.dstIP
	srcPort := sock.dstPort
	dstPort := sock.srcPort
	sendAck := sock.recvSeq
	sendSeq := sock.sendSeq

	p.rxFrame[0x22] = byte(srcPort >> 8)
	p.rxFrame[0x23] = byte(srcPort)
	p.rxFrame[0x24] = byte(dstPort >> 8)
	p.rxFrame[0x25] = byte(dstPort)

	p.rxFrame[0x26] = byte(sendSeq >> 24)
	p.rxFrame[0x27] = byte(sendSeq >> 16)
	p.rxFrame[0x28] = byte(sendSeq >> 8)
	p.rxFrame[0x29] = byte(sendSeq)

	p.rxFrame[0x2A] = byte(sendAck >> 24)
	p.rxFrame[0x2B] = byte(sendAck >> 16)
	p.rxFrame[0x2C] = byte(sendAck >> 8)
	p.rxFrame[0x2D] = byte(sendAck)

	p.rxFrame[0x2E] = 0x50 // Data offset
	p.rxFrame[0x2F] = flags
	p.rxFrame[0x30] = 0xFF // Window size
	p.rxFrame[0x31] = 0x00
	p.rxFrame[0x32] = 0x00 // Checksum
	p.rxFrame[0x33] = 0x00
	p.rxFrame[0x34] = 0x00 // Urgent pointer
	p.rxFrame[0x35] = 0x00

	checksum := protoChecksum(p.rxFrame[0x22:0x22+length], srcIP, netIPLocal, 6)
	p.rxFrame[0x32] = byte(checksum >> 8)
	p.rxFrame[0x33] = byte(checksum)
}

// -----------------------------------------------------------------------------
// ARP and ICMP
// -----------------------------------------------------------------------------

func (p *NetPeer) handleARP(txFrame []byte, txLen uint16) {
	if txLen < 0x29 {
		return
	}

	oper := uint16(txFrame[0x14])<<8 + uint16(txFrame[0x15])
	if oper != 1 {
		return // Only ARP requests.
	}

	p.rxFrame[0x0C] = 0x08 // Ethertype = ARP
	p.rxFrame[0x0D] = 0x06
	p.rxFrame[0x0E] = 0x00 // HTYPE = Ethernet
	p.rxFrame[0x0F] = 0x01
	p.rxFrame[0x10] = 0x08 // PTYPE = IPv4
	p.rxFrame[0x11] = 0x00
	p.rxFrame[0x12] = 0x06 // HLEN
	p.rxFrame[0x13] = 0x04 // PLEN
	p.rxFrame[0x14] = 0x00 // OPER = 2 = reply
	p.rxFrame[0x15] = 0x02

	whoHasIP := uint32(txFrame[0x26])<<24 + uint32(txFrame[0x27])<<16 +
		uint32(txFrame[0x28])<<8 + uint32(txFrame[0x29])

	var mac byte
	var ip uint32
	switch whoHasIP {
	case netIPRemote:
		mac, ip = netMACRemote, netIPRemote
	case netIPLocal:
		mac, ip = netMACLocal, netIPLocal
	default:
		return // Unknown IP.
	}

	for i := 0; i < 6; i++ {
		p.rxFrame[0x16+i] = mac // Sender MAC
	}
	p.rxFrame[0x1C] = byte(ip >> 24) // Sender IP
	p.rxFrame[0x1D] = byte(ip >> 16)
	p.rxFrame[0x1E] = byte(ip >> 8)
	p.rxFrame[0x1F] = byte(ip)

	for i := 0; i < 6; i++ {
		p.rxFrame[0x20+i] = netMACLocal // Destination MAC
	}
	p.rxFrame[0x26] = byte(netIPLocal >> 24) // Destination IP
	p.rxFrame[0x27] = byte(netIPLocal >> 16)
	p.rxFrame[0x28] = byte(netIPLocal >> 8)
	p.rxFrame[0x29] = byte(netIPLocal)

	p.ethernetReply()
	p.rxLen = 0x2A
	p.rxReady = true
}

func (p *NetPeer) handleICMP(txFrame []byte, txLen uint16) {
	if txFrame[0x22] != 8 {
		return // Only echo requests.
	}

	dstIP := uint32(txFrame[0x1E])<<24 + uint32(txFrame[0x1F])<<16 +
		uint32(txFrame[0x20])<<8 + uint32(txFrame[0x21])
	if dstIP != netIPRemote {
		return // Ignore other addresses.
	}

	p.rxFrame[0x22] = 0x00 // Type = echo reply
	p.rxFrame[0x23] = 0x00 // Code
	p.rxFrame[0x24] = 0x00 // Checksum seed
	p.rxFrame[0x25] = 0x01

	// Same identifier, sequence number and payload.
	for i := uint16(0x26); i < txLen; i++ {
		p.rxFrame[i] = txFrame[i]
	}

	checksum := ipChecksum(p.rxFrame[0x22:txLen])
	p.rxFrame[0x24] = byte(checksum >> 8)
	p.rxFrame[0x25] = byte(checksum)

	p.ipv4Reply(txLen-14, 1, netIPRemote)
	p.ethernetReply()
	p.rxLen = txLen
	p.rxReady = true
}

// -----------------------------------------------------------------------------
// UDP
// -----------------------------------------------------------------------------

func (p *NetPeer) udpClose(socketIndex int) {
	p.udpSockets[socketIndex].conn.Close()
	p.udpSockets[socketIndex].conn = nil
	p.trace.Addf("UDP [%d] close\n", socketIndex)
}

func (p *NetPeer) handleUDP(txFrame []byte) {
	dstIP := uint32(txFrame[0x1E])<<24 + uint32(txFrame[0x1F])<<16 +
		uint32(txFrame[0x20])<<8 + uint32(txFrame[0x21])

	srcPort := uint16(txFrame[0x22])<<8 + uint16(txFrame[0x23])
	dstPort := uint16(txFrame[0x24])<<8 + uint16(txFrame[0x25])
	sendLen := uint16(txFrame[0x26])<<8 + uint16(txFrame[0x27])

	// Intercept broadcast attempts.
	if dstIP == 0xFFFFFFFF {
		if dstPort == 67 && srcPort == 68 {
			p.handleDHCP(txFrame)
		}
		return
	}

	socketIndex := -1

	// Reuse an open socket for this conversation if there is one.
	for i := 0; i < netSocketsMax; i++ {
		if p.udpSockets[i].conn != nil &&
			p.udpSockets[i].srcPort == srcPort &&
			p.udpSockets[i].dstIP == dstIP {
			socketIndex = i
			break
		}
	}

	if socketIndex == -1 {
		for i := 0; i < netSocketsMax; i++ {
			if p.udpSockets[i].conn == nil {
				socketIndex = i
				break
			}
		}
		if socketIndex == -1 {
			p.panicf("No more UDP sockets available!\n")
			return
		}

		conn, err := net.ListenUDP("udp4", nil)
		if err != nil {
			p.panicf("UDP socket failed: %v\n", err)
			return
		}
		p.udpSockets[socketIndex].conn = conn
		p.udpSockets[socketIndex].srcPort = srcPort
		p.udpSockets[socketIndex].dstPort = dstPort
		p.udpSockets[socketIndex].dstIP = dstIP
	}

	p.udpSockets[socketIndex].inactivityTimeout = 0

	dst := &net.UDPAddr{
		IP:   net.IPv4(byte(dstIP>>24), byte(dstIP>>16), byte(dstIP>>8), byte(dstIP)),
		Port: int(dstPort),
	}
	sendBytes, err := p.udpSockets[socketIndex].conn.WriteToUDP(
		txFrame[0x2A:0x2A+int(sendLen)-8], dst)
	if err != nil {
		p.panicf("UDP send failed: %v\n", err)
		p.udpClose(socketIndex)
		return
	}

	p.trace.Addf("UDP [%d] send: %d -> %s:%d (%d bytes)\n",
		socketIndex, srcPort, netTraceIP(dstIP), dstPort, sendBytes)
}

func (p *NetPeer) checkUDPSocket(socketIndex int) {
	sock := &p.udpSockets[socketIndex]

	sock.conn.SetReadDeadline(time.Now().Add(netPollWindow))
	recvBytes, addr, err := sock.conn.ReadFromUDP(p.rxFrame[0x2A:netMTU])

	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			// Close after a certain time of inactivity.
			sock.inactivityTimeout++
			if sock.inactivityTimeout > netSocketInactivityTimeout {
				p.udpClose(socketIndex)
			}
			return
		}
		p.panicf("UDP recv failed: %v\n", err)
		p.udpClose(socketIndex)
		return
	}
	sock.inactivityTimeout = 0

	ip4 := addr.IP.To4()
	srcIP := uint32(ip4[0])<<24 + uint32(ip4[1])<<16 + uint32(ip4[2])<<8 + uint32(ip4[3])
	srcPort := uint16(addr.Port)
	dstPort := sock.srcPort

	p.trace.Addf("UDP [%d] recv: %d <- %s:%d (%d bytes)\n",
		socketIndex, dstPort, netTraceIP(srcIP), srcPort, recvBytes)

	p.udpReply(recvBytes, srcIP, srcPort, dstPort)
	p.ipv4Reply(uint16(20+8+recvBytes), 17, srcIP)
	p.ethernetReply()
	p.rxLen = uint16(14 + 20 + 8 + recvBytes)
	p.rxReady = true
}

// -----------------------------------------------------------------------------
// DHCP
// -----------------------------------------------------------------------------

// handleDHCP synthesizes the OFFER/ACK conversation for the fixed
// addresses. The message-type option is assumed to come first.
func (p *NetPeer) handleDHCP(txFrame []byte) {
	if !(txFrame[0x116] == 0x63 && txFrame[0x117] == 0x82 &&
		txFrame[0x118] == 0x53 && txFrame[0x119] == 0x63) {
		return // No magic cookie, not DHCP.
	}

	var msgType byte
	switch txFrame[0x11C] {
	case 0x01: // DHCPDISCOVER
		msgType = 0x02 // DHCPOFFER
	case 0x03: // DHCPREQUEST
		msgType = 0x05 // DHCPACK
	default:
		return
	}

	p.rxFrame[0x2A] = 2 // OP = BOOTREPLY
	p.rxFrame[0x2B] = txFrame[0x2B]
	p.rxFrame[0x2C] = txFrame[0x2C]
	p.rxFrame[0x2D] = txFrame[0x2D]
	p.rxFrame[0x2E] = txFrame[0x2E] // XID
	p.rxFrame[0x2F] = txFrame[0x2F]
	p.rxFrame[0x30] = txFrame[0x30]
	p.rxFrame[0x31] = txFrame[0x31]
	for i := 0x32; i < 0x3A; i++ {
		p.rxFrame[i] = 0 // SECS, FLAGS, CIADDR
	}
	p.rxFrame[0x3A] = byte(netIPLocal >> 24) // YIADDR
	p.rxFrame[0x3B] = byte(netIPLocal >> 16)
	p.rxFrame[0x3C] = byte(netIPLocal >> 8)
	p.rxFrame[0x3D] = byte(netIPLocal)
	p.rxFrame[0x3E] = byte(netIPRemote >> 24) // SIADDR
	p.rxFrame[0x3F] = byte(netIPRemote >> 16)
	p.rxFrame[0x40] = byte(netIPRemote >> 8)
	p.rxFrame[0x41] = byte(netIPRemote)
	for i := 0x42; i < 0x46; i++ {
		p.rxFrame[i] = 0 // GIADDR
	}
	for i := 0; i < 208; i++ {
		p.rxFrame[0x46+i] = 0
	}

	p.rxFrame[0x116] = 0x63 // DHCP magic cookie
	p.rxFrame[0x117] = 0x82
	p.rxFrame[0x118] = 0x53
	p.rxFrame[0x119] = 0x63

	p.rxFrame[0x11A] = 0x35 // Message type
	p.rxFrame[0x11B] = 0x01
	p.rxFrame[0x11C] = msgType

	p.rxFrame[0x11D] = 0x01 // Subnet mask
	p.rxFrame[0x11E] = 0x04
	p.rxFrame[0x11F] = 0xFF
	p.rxFrame[0x120] = 0xFF
	p.rxFrame[0x121] = 0xFF
	p.rxFrame[0x122] = 0x00

	p.rxFrame[0x123] = 0x03 // Gateway
	p.rxFrame[0x124] = 0x04
	p.rxFrame[0x125] = byte(netIPRemote >> 24)
	p.rxFrame[0x126] = byte(netIPRemote >> 16)
	p.rxFrame[0x127] = byte(netIPRemote >> 8)
	p.rxFrame[0x128] = byte(netIPRemote)

	p.rxFrame[0x129] = 0x36 // DHCP server
	p.rxFrame[0x12A] = 0x04
	p.rxFrame[0x12B] = byte(netIPRemote >> 24)
	p.rxFrame[0x12C] = byte(netIPRemote >> 16)
	p.rxFrame[0x12D] = byte(netIPRemote >> 8)
	p.rxFrame[0x12E] = byte(netIPRemote)

	p.rxFrame[0x12F] = 0x33 // Lease time
	p.rxFrame[0x130] = 0x04
	p.rxFrame[0x131] = 0xFF
	p.rxFrame[0x132] = 0xFF
	p.rxFrame[0x133] = 0xFF
	p.rxFrame[0x134] = 0xFF

	for i := 0x135; i < 0x24E; i++ {
		p.rxFrame[i] = 0
	}

	p.udpReply(548, netIPRemote, 67, 68)
	p.ipv4Reply(20+8+548, 17, netIPRemote)
	p.ethernetReply()
	p.rxLen = 14 + 20 + 8 + 548
	p.rxReady = true
}

// -----------------------------------------------------------------------------
// TCP
// -----------------------------------------------------------------------------

// tcpClose shuts a slot down, optionally sending a final packet (ACK or
// RST+ACK) on the way out. The sequence counter rewinds to the slot's
// base so a fresh connection starts clean.
func (p *NetPeer) tcpClose(socketIndex int, flags byte) {
	if flags > 0 {
		p.tcpReply(20, socketIndex, flags)
		p.ipv4Reply(20+20, 6, p.tcpSockets[socketIndex].dstIP)
		p.ethernetReply()
		p.rxLen = 14 + 20 + 20
		p.rxReady = true
	}

	p.tcpSockets[socketIndex].conn.Close()
	p.tcpSockets[socketIndex].conn = nil
	p.tcpSockets[socketIndex].sendSeq = uint32(socketIndex) * 0x1000000
	p.trace.Addf("TCP [%d] close\n", socketIndex)
}

func (p *NetPeer) handleTCP(txFrame []byte) {
	ipLen := uint16(txFrame[0x10])<<8 + uint16(txFrame[0x11])

	dstIP := uint32(txFrame[0x1E])<<24 + uint32(txFrame[0x1F])<<16 +
		uint32(txFrame[0x20])<<8 + uint32(txFrame[0x21])

	srcPort := uint16(txFrame[0x22])<<8 + uint16(txFrame[0x23])
	dstPort := uint16(txFrame[0x24])<<8 + uint16(txFrame[0x25])

	recvSeq := uint32(txFrame[0x26])<<24 + uint32(txFrame[0x27])<<16 +
		uint32(txFrame[0x28])<<8 + uint32(txFrame[0x29])

	dataOffset := txFrame[0x2E] >> 4
	flags := txFrame[0x2F]
	winSize := uint16(txFrame[0x30])<<8 + uint16(txFrame[0x31])

	socketIndex := -1

	if flags == tcpFlagsSyn {
		for i := 0; i < netSocketsMax; i++ {
			if p.tcpSockets[i].conn == nil {
				socketIndex = i
				break
			}
		}
		if socketIndex == -1 {
			p.panicf("No more TCP sockets available!\n")
			return
		}

		p.trace.Addf("TCP [%d] open: %d -- %s:%d\n", socketIndex,
			srcPort, netTraceIP(dstIP), dstPort)

		// Connect synchronously; its latency bounds the emulated
		// connect.
		addr := fmt.Sprintf("%s:%d", netTraceIP(dstIP), dstPort)
		conn, err := net.DialTimeout("tcp4", addr, netTCPConnectTimeout)
		if err != nil {
			return // Times out on the guest side.
		}

		sock := &p.tcpSockets[socketIndex]
		sock.conn = conn
		sock.srcPort = srcPort
		sock.dstPort = dstPort
		sock.dstIP = dstIP
		sock.recvSeq = recvSeq + 1
		sock.inactivityTimeout = 0
		sock.finAckSent = false
		sock.ackWait = 0

		p.tcpReply(20, socketIndex, tcpFlagsSynAck)
		sock.sendSeq++ // Increment after!

		p.ipv4Reply(20+20, 6, dstIP)
		p.ethernetReply()
		p.rxLen = 14 + 20 + 20
		p.rxReady = true
		return
	}

	// Anything else belongs to an active connection.
	for i := 0; i < netSocketsMax; i++ {
		if p.tcpSockets[i].conn != nil &&
			p.tcpSockets[i].srcPort == srcPort &&
			p.tcpSockets[i].dstPort == dstPort &&
			p.tcpSockets[i].dstIP == dstIP {
			socketIndex = i
			break
		}
	}
	if socketIndex == -1 {
		return // No active connection, just ignore it.
	}

	sock := &p.tcpSockets[socketIndex]
	sock.inactivityTimeout = 0

	p.trace.Addf("TCP [%d] tx: flags = %02x win = %d\n",
		socketIndex, flags, winSize)

	switch flags {
	case tcpFlagsAck:
		// Possibly let the next incoming packet through.
		sock.ackWait = 0

	case tcpFlagsRst:
		// Ignore.

	case tcpFlagsPshAck:
		sock.ackWait = 0

		dataIndex := 0x22 + int(dataOffset)*4
		dataLen := int(ipLen) - 20 - int(dataOffset)*4

		sendBytes, err := sock.conn.Write(txFrame[dataIndex : dataIndex+dataLen])
		if err != nil {
			p.panicf("TCP send failed: %v\n", err)
			p.tcpClose(socketIndex, tcpFlagsRstAck)
			return
		}

		p.trace.Addf("TCP [%d] send: %d -> %s:%d (%d bytes)\n",
			socketIndex, srcPort, netTraceIP(dstIP), dstPort, sendBytes)

		sock.recvSeq = recvSeq + uint32(dataLen)

		p.tcpReply(20, socketIndex, tcpFlagsAck)
		p.ipv4Reply(20+20, 6, dstIP)
		p.ethernetReply()
		p.rxLen = 14 + 20 + 20
		p.rxReady = true

	case tcpFlagsFinAck:
		if sock.finAckSent {
			// The remote host closed first; this is the final ACK.
			p.tcpClose(socketIndex, tcpFlagsAck)
		} else {
			// The guest closed; terminate quickly with RST+ACK.
			p.tcpClose(socketIndex, tcpFlagsRstAck)
		}

	case tcpFlagsRstAck:
		p.tcpClose(socketIndex, tcpFlagsAck)

	default:
		p.panicf("Unhandled TCP flags: %02x\n", flags)
		p.tcpClose(socketIndex, tcpFlagsRstAck)
	}
}

func (p *NetPeer) checkTCPSocket(socketIndex int) {
	sock := &p.tcpSockets[socketIndex]
	srcIP := sock.dstIP

	if sock.ackWait > 0 {
		// Wait for the client's ACK so its stack is not overwhelmed
		// with back-to-back packets.
		sock.ackWait--
		return
	}

	sock.conn.SetReadDeadline(time.Now().Add(netPollWindow))
	recvBytes, err := sock.conn.Read(p.rxFrame[0x36:netMTU])

	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			sock.inactivityTimeout++
			if sock.inactivityTimeout > netSocketInactivityTimeout {
				p.tcpClose(socketIndex, tcpFlagsRstAck)
			}
			return
		}
		if errors.Is(err, io.EOF) {
			// The remote socket closed; start a graceful shutdown.
			if !sock.finAckSent {
				p.tcpReply(20, socketIndex, tcpFlagsFinAck)
				sock.sendSeq++ // Increment after!
				p.ipv4Reply(20+20, 6, srcIP)
				p.ethernetReply()
				p.rxLen = 14 + 20 + 20
				p.rxReady = true
				sock.finAckSent = true
			}
			return
		}
		p.panicf("TCP recv failed: %v\n", err)
		p.tcpClose(socketIndex, tcpFlagsRstAck)
		return
	}
	if recvBytes == 0 {
		return
	}

	sock.inactivityTimeout = 0
	sock.ackWait = netSocketAckWait

	p.trace.Addf("TCP [%d] recv: %d <- %s:%d (%d bytes)\n", socketIndex,
		sock.srcPort, netTraceIP(sock.dstIP), sock.dstPort, recvBytes)

	p.tcpReply(20+recvBytes, socketIndex, tcpFlagsPshAck)
	sock.sendSeq += uint32(recvBytes) // Increment after!

	p.ipv4Reply(uint16(20+20+recvBytes), 6, srcIP)
	p.ethernetReply()
	p.rxLen = uint16(14 + 20 + 20 + recvBytes)
	p.rxReady = true
}

// -----------------------------------------------------------------------------
// Frame dispatch and polling
// -----------------------------------------------------------------------------

func (p *NetPeer) handleIPv4(txFrame []byte, txLen uint16) {
	switch txFrame[0x17] {
	case 1: // ICMP
		p.handleICMP(txFrame, txLen)
	case 6: // TCP
		p.handleTCP(txFrame)
	case 17: // UDP
		p.handleUDP(txFrame)
	}
}

// TxFrame inspects one outgoing Ethernet frame and produces whatever
// reply the peer owes for it.
func (p *NetPeer) TxFrame(txFrame []byte, txLen uint16) {
	ethertype := uint16(txFrame[0xC])<<8 + uint16(txFrame[0xD])

	switch ethertype {
	case 0x0806: // ARP
		p.handleARP(txFrame, txLen)
	case 0x0800: // IPv4
		p.handleIPv4(txFrame, txLen)
	case 0xEDF5: // EtherDFS
		if p.edfs != nil {
			p.edfs.HandlePacket(p, txFrame, txLen)
		}
	}
}

// Tick polls every active host socket once. A pending receive frame
// blocks further polling until the NIC has consumed it.
func (p *NetPeer) Tick() {
	for i := 0; i < netSocketsMax; i++ {
		if p.rxReady {
			return // Never overwrite a pending frame.
		}
		if p.udpSockets[i].conn != nil {
			p.checkUDPSocket(i)
		}
	}

	for i := 0; i < netSocketsMax; i++ {
		if p.rxReady {
			return
		}
		if p.tcpSockets[i].conn != nil {
			p.checkTCPSocket(i)
		}
	}
}

// TraceDump writes the peer trace ring.
func (p *NetPeer) TraceDump(w io.Writer) {
	p.trace.Dump(w)
}
