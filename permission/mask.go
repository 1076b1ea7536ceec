package permission

// MaxPermissions is the number of distinct permissions a Registry can hold.
const MaxPermissions = 256

// Mask is a fixed-width permission bitmask.
type Mask [MaxPermissions / 64]uint64

func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	m[bit/64] |= 1 << uint(bit%64)
}

func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxPermissions {
		return false
	}
	return m[bit/64]&(1<<uint(bit%64)) != 0
}

// Union returns the bitwise OR of m and other.
func (m Mask) Union(other Mask) Mask {
	for i := range m {
		m[i] |= other[i]
	}
	return m
}
