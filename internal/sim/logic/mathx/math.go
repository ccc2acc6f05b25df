package mathx

// MaxExponent bounds 2^n+1 side lengths so the shift cannot overflow and a
// grid of that side stays addressable.
const MaxExponent = 30

// Pow2Plus1 returns 2^n+1. n must be in [0, MaxExponent].
func Pow2Plus1(n int) int {
	return 1<<uint(n) + 1
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Mix64 is the splitmix64 finalizer.
func Mix64(z uint64) uint64 {
	return mix64(z)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// DeriveSeed returns the seed of variant i of a batch started from seed.
// Variant 0 keeps the base seed so a batch of one matches a single run.
func DeriveSeed(seed int64, i int) int64 {
	if i == 0 {
		return seed
	}
	return int64(Hash2(seed, i, 0) >> 1)
}
