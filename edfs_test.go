// edfs_test.go - Filesystem-over-Ethernet tests
//
// License: GPLv3 or later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEDFS(t *testing.T) (*EDFS, *NetPeer, string) {
	t.Helper()
	root := t.TempDir()
	edfs := NewEDFS(root, nil)
	peer := NewNetPeer(edfs, nil)
	return edfs, peer, root
}

// edfsRequest assembles a protocol frame: version 2 (checksummed when
// asked), sequence, function code and payload.
func edfsRequest(fn byte, checksummed bool, payload []byte) []byte {
	frame := make([]byte, 0x3C+len(payload))
	for i := 0; i < 6; i++ {
		frame[i] = netMACRemote
		frame[6+i] = netMACLocal
	}
	frame[0x0C] = 0xED
	frame[0x0D] = 0xF5
	frame[0x38] = edfsVersion
	if checksummed {
		frame[0x38] |= 0x80
	}
	frame[0x39] = 0x01 // Sequence
	frame[0x3B] = fn
	copy(frame[0x3C:], payload)
	return frame
}

func edfsResult(p *NetPeer) uint16 {
	return uint16(p.rxFrame[0x3A]) | uint16(p.rxFrame[0x3B])<<8
}

func TestEDFS_BSDChecksumOfZerosIsZero(t *testing.T) {
	assert.Equal(t, uint16(0), bsdChecksum(make([]byte, 64)))
	assert.NotEqual(t, uint16(0), bsdChecksum([]byte{0x01}))
}

func TestEDFS_Path83Translation(t *testing.T) {
	assert.Equal(t, "\\SUBDIR\\LONGFILE.TXT",
		unixpathToPath83("/subdir/longfilename.txt1"))
	assert.Equal(t, "FILE    TXT", path83ToFileFCB("\\DIR\\FILE.TXT"))
	assert.Equal(t, ".          ", path83ToFileFCB("."))
	assert.Equal(t, "..         ", path83ToFileFCB(".."))
	assert.Equal(t, "\\A", path83Dirname("\\A\\B"))
}

func TestEDFS_FCBMatching(t *testing.T) {
	assert.True(t, edfsMatch("FILE    TXT", "FILE    TXT"))
	assert.True(t, edfsMatch("FILE    TXT", "????????TXT"))
	assert.True(t, edfsMatch("FILE    TXT", "???????????"))
	assert.False(t, edfsMatch("FILE    TXT", "OTHER   TXT"))
}

func TestEDFS_MkdirGetattr(t *testing.T) {
	edfs, peer, root := newTestEDFS(t)

	peer.TxFrame(edfsRequest(edfsFnMkdir, false, []byte("\\X")), uint16(0x3C+2))
	require.True(t, peer.rxReady)
	assert.Equal(t, uint16(edfsResultOK), edfsResult(peer))

	st, err := os.Stat(filepath.Join(root, "X"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	// The cluster table now maps the new directory.
	_, cluster, ok := edfs.clusterLookup83("\\X")
	assert.True(t, ok)
	assert.NotZero(t, cluster)

	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnGetAttr, false, []byte("\\X")), uint16(0x3C+2))
	require.True(t, peer.rxReady)
	assert.Equal(t, uint16(edfsResultOK), edfsResult(peer))
	assert.Equal(t, byte(0x10), peer.rxFrame[0x44], "directory attribute")
}

func TestEDFS_MkdirRmdirFreesCluster(t *testing.T) {
	edfs, peer, _ := newTestEDFS(t)

	peer.TxFrame(edfsRequest(edfsFnMkdir, false, []byte("\\Y")), uint16(0x3C+2))
	_, cluster, ok := edfs.clusterLookup83("\\Y")
	require.True(t, ok)

	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnRmdir, false, []byte("\\Y")), uint16(0x3C+2))
	assert.Equal(t, uint16(edfsResultOK), edfsResult(peer))

	assert.Empty(t, edfs.cluster[cluster].path, "cluster must be freed")
	_, _, ok = edfs.clusterLookup83("\\Y")
	assert.False(t, ok)
}

func TestEDFS_FindFirstNoMatch(t *testing.T) {
	_, peer, _ := newTestEDFS(t)

	// FINDFIRST: attribute byte then the pattern path.
	payload := append([]byte{0x10}, []byte("\\NOPE????.???")...)
	peer.TxFrame(edfsRequest(edfsFnFindFirst, false, payload), uint16(0x3D+len(payload)-1))
	require.True(t, peer.rxReady)
	assert.Equal(t, uint16(edfsResultNoMoreMatch), edfsResult(peer))
}

func TestEDFS_FindFirstMatches(t *testing.T) {
	_, peer, root := newTestEDFS(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "HELLO.TXT"),
		[]byte("hi"), 0644))

	payload := append([]byte{0x10}, []byte("\\HELLO.TXT")...)
	peer.TxFrame(edfsRequest(edfsFnFindFirst, false, payload), uint16(0x3D+len(payload)-1))
	require.True(t, peer.rxReady)
	assert.Equal(t, uint16(edfsResultOK), edfsResult(peer))
	assert.Equal(t, "HELLO   TXT", string(peer.rxFrame[0x3D:0x48]))
	assert.Equal(t, byte(0x00), peer.rxFrame[0x3C], "file attribute")
}

func TestEDFS_CreateWriteRead(t *testing.T) {
	edfs, peer, _ := newTestEDFS(t)

	// CREATE \DATA.BIN: attrib word + padding up to the path at 0x42.
	payload := make([]byte, 6+len("\\DATA.BIN"))
	copy(payload[6:], "\\DATA.BIN")
	peer.TxFrame(edfsRequest(edfsFnCreate, false, payload), uint16(0x42+len("\\DATA.BIN")))
	require.True(t, peer.rxReady)
	require.Equal(t, uint16(edfsResultOK), edfsResult(peer))

	_, cluster, ok := edfs.clusterLookup83("\\DATA.BIN")
	require.True(t, ok)

	// WRITEFILE appends at offset 0.
	data := []byte("payload bytes")
	payload = make([]byte, 6+len(data))
	payload[4] = byte(cluster)
	payload[5] = byte(cluster >> 8)
	copy(payload[6:], data)
	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnWriteFile, false, payload), uint16(0x42+len(data)))
	require.Equal(t, uint16(edfsResultOK), edfsResult(peer))
	assert.Equal(t, uint16(len(data)),
		uint16(peer.rxFrame[0x3C])|uint16(peer.rxFrame[0x3D])<<8)

	// READFILE returns the same bytes.
	payload = make([]byte, 8)
	payload[4] = byte(cluster)
	payload[5] = byte(cluster >> 8)
	payload[6] = byte(len(data))
	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnReadFile, false, payload), uint16(0x3C+8))
	require.Equal(t, uint16(edfsResultOK), edfsResult(peer))
	assert.Equal(t, uint16(0x3C+len(data)), peer.rxLen)
	assert.Equal(t, data, peer.rxFrame[0x3C:0x3C+uint16(len(data))])
}

func TestEDFS_DeleteAndRename(t *testing.T) {
	edfs, peer, root := newTestEDFS(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "OLD.TXT"),
		[]byte("x"), 0644))
	// Discover it so the cluster table knows the path.
	payload := append([]byte{0x10}, []byte("\\OLD.TXT")...)
	peer.TxFrame(edfsRequest(edfsFnFindFirst, false, payload), uint16(0x3D+len(payload)-1))
	require.Equal(t, uint16(edfsResultOK), edfsResult(peer))

	// RENAME carries the source length, then both paths.
	src := "\\OLD.TXT"
	dst := "\\NEW.TXT"
	payload = make([]byte, 1+len(src)+len(dst))
	payload[0] = byte(len(src))
	copy(payload[1:], src)
	copy(payload[1+len(src):], dst)
	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnRename, false, payload), uint16(0x3D+len(src)+len(dst)))
	require.Equal(t, uint16(edfsResultOK), edfsResult(peer))

	_, err := os.Stat(filepath.Join(root, "NEW.TXT"))
	assert.NoError(t, err)
	_, _, ok := edfs.clusterLookup83("\\NEW.TXT")
	assert.True(t, ok)

	// DELETE removes it again.
	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnDelete, false, []byte(dst)), uint16(0x3C+len(dst)))
	require.Equal(t, uint16(edfsResultOK), edfsResult(peer))
	_, err = os.Stat(filepath.Join(root, "NEW.TXT"))
	assert.True(t, os.IsNotExist(err))
}

func TestEDFS_ReplyChecksum(t *testing.T) {
	_, peer, _ := newTestEDFS(t)

	// With the version high bit set the reply is checksummed.
	peer.TxFrame(edfsRequest(edfsFnDiskSpace, true, nil), 0x3C)
	require.True(t, peer.rxReady)

	want := bsdChecksum(peer.rxFrame[0x38:peer.rxLen])
	got := uint16(peer.rxFrame[0x36]) | uint16(peer.rxFrame[0x37])<<8
	assert.Equal(t, want, got)

	// Without it the checksum field reads zero.
	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnDiskSpace, false, nil), 0x3C)
	assert.Zero(t, uint16(peer.rxFrame[0x36])|uint16(peer.rxFrame[0x37])<<8)
}

func TestEDFS_UnknownFunction(t *testing.T) {
	_, peer, _ := newTestEDFS(t)

	peer.TxFrame(edfsRequest(0x7E, false, nil), 0x3C)
	require.True(t, peer.rxReady)
	assert.Equal(t, uint16(edfsResultInvalidFunction), edfsResult(peer))
}

func TestEDFS_WriteMiddleOfFileRefused(t *testing.T) {
	edfs, peer, root := newTestEDFS(t)

	panicked := false
	edfs.panicf = func(string, ...any) { panicked = true }

	require.NoError(t, os.WriteFile(filepath.Join(root, "F.BIN"),
		[]byte("0123456789"), 0644))
	payload := append([]byte{0x10}, []byte("\\F.BIN")...)
	peer.TxFrame(edfsRequest(edfsFnFindFirst, false, payload), uint16(0x3D+len(payload)-1))
	_, cluster, ok := edfs.clusterLookup83("\\F.BIN")
	require.True(t, ok)

	// Offset 5 is inside the file: refused with access-denied.
	payload = make([]byte, 7)
	payload[0] = 5
	payload[4] = byte(cluster)
	payload[5] = byte(cluster >> 8)
	payload[6] = 'Z'
	peer.rxReady = false
	peer.TxFrame(edfsRequest(edfsFnWriteFile, false, payload), uint16(0x42+1))
	assert.Equal(t, uint16(edfsResultAccessDenied), edfsResult(peer))
	assert.True(t, panicked)
}
