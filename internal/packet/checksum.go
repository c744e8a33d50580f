package packet

// ChecksumIndex returns the position of the checksum slot for capacity n.
func ChecksumIndex(n int) int { return n - 2 }

// BCC returns the XOR of the payload bytes preceding the checksum slot.
func BCC(window []byte) byte {
	var sum byte
	for _, b := range window[1 : len(window)-2] {
		sum ^= b
	}
	return sum
}

// SealChecksum stores the BCC of the payload in the checksum slot.
func (f *Frame) SealChecksum() {
	f.buf[ChecksumIndex(len(f.buf))] = BCC(f.buf)
}

// XORChecksum validates markers and the BCC held in the checksum slot. It
// matches the signature of framer validators and is opt-in: the base link
// only checks markers.
func XORChecksum(window []byte) bool {
	if !HasMarkers(window) || len(window) < MinCapacity {
		return false
	}
	return window[ChecksumIndex(len(window))] == BCC(window)
}
