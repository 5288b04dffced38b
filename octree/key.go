package octree

// A Key is the Morton code of an integer cell coordinate. Bit 3*i of the
// key holds bit i of x, bit 3*i+1 bit i of y and bit 3*i+2 bit i of z, so
// the three lowest bits of a key at depth D are the octant of the cell
// inside its level D-1 parent.
type Key uint64

// EncodeKey interleaves the bits of a cell coordinate. Only the low 21 bits
// of each coordinate are used.
func EncodeKey(x, y, z uint32) Key {
	return Key(splitBy3(x) | (splitBy3(y) << 1) | (splitBy3(z) << 2))
}

// Decode returns the cell coordinate encoded in this key.
func (k Key) Decode() (x, y, z uint32) {
	return uint32(compact1By2(uint64(k))), uint32(compact1By2(uint64(k) >> 1)), uint32(compact1By2(uint64(k) >> 2))
}

// Ancestor returns the key of the cell that contains k, levels above it.
func (k Key) Ancestor(levels int) Key {
	return k >> (3 * uint(levels))
}

// Octant returns the position of the cell within its parent.
func (k Key) Octant() uint8 {
	return uint8(k & 7)
}

// splitBy3 expands a 21-bit integer to 63 bits, inserting 2 zeros after each bit.
func splitBy3(v uint32) uint64 {
	x := uint64(v) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

// compact1By2 extracts every third bit.
func compact1By2(x uint64) uint64 {
	x &= 0x1249249249249249
	x = (x ^ (x >> 2)) & 0x10c30c30c30c30c3
	x = (x ^ (x >> 4)) & 0x100f00f00f00f00f
	x = (x ^ (x >> 8)) & 0x1f0000ff0000ff
	x = (x ^ (x >> 16)) & 0x1f00000000ffff
	x = (x ^ (x >> 32)) & 0x1fffff
	return x
}

// Octant index of a cell coordinate at the given bit position. The octant
// layout matches the three low bits of a Key.
func OctantAt(x, y, z uint32, bit uint) uint8 {
	return uint8((x>>bit)&1 | ((y>>bit)&1)<<1 | ((z>>bit)&1)<<2)
}
