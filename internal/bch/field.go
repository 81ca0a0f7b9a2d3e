package bch

// GF(2^7) arithmetic for the BCH(127,64) code. The field is generated by a
// primitive alpha with alpha^7 = alpha^3 + 1 (polynomial x^7 + x^3 + 1).

const (
	fieldPoly  = 0x89 // x^7 + x^3 + 1
	fieldOrder = 127  // nonzero elements
)

var (
	gfExp [fieldOrder]int
	gfLog [fieldOrder + 1]int
)

func init() {
	x := 1
	for i := 0; i < fieldOrder; i++ {
		gfExp[i] = x
		gfLog[x] = i
		x <<= 1
		if x&0x80 != 0 {
			x ^= fieldPoly
		}
	}
	initGenerator()
}

func gfMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[(gfLog[a]+gfLog[b])%fieldOrder]
}

func gfInv(a int) int {
	return gfExp[(fieldOrder-gfLog[a])%fieldOrder]
}

// alphaPow returns alpha^i for any integer exponent.
func alphaPow(i int) int {
	i %= fieldOrder
	if i < 0 {
		i += fieldOrder
	}
	return gfExp[i]
}

// polyEval evaluates a polynomial with GF(2^7) coefficients (constant term
// first) at x.
func polyEval(coeffs []int, x int) int {
	y := 0
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = gfMul(y, x) ^ coeffs[i]
	}
	return y
}
