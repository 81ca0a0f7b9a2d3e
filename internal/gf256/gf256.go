// Package gf256 implements arithmetic over GF(2^8) with the AES reduction
// polynomial x^8 + x^4 + x^3 + x + 1. Shamir secret sharing in this codebase
// is byte-wise over this field.
package gf256

var (
	expTable [255]byte
	logTable [256]byte
)

func init() {
	poly := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(poly)
		logTable[poly] = byte(i)

		// multiply poly by the generator x + 1
		poly = (poly << 1) ^ poly
		if poly&0x100 != 0 {
			poly ^= 0x11B
		}
	}
}

// Add is addition in GF(2^8). Subtraction is the same operation in
// characteristic 2.
func Add(a, b byte) byte { return a ^ b }

// Mul multiplies two field elements via log/antilog tables.
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[(int(logTable[a])+int(logTable[b]))%255]
}

// Inv returns the multiplicative inverse. Inv(0) is undefined and panics,
// since a zero denominator upstream is always a caller bug.
func Inv(a byte) byte {
	if a == 0 {
		panic("gf256: inverse of zero")
	}
	return expTable[(255-int(logTable[a]))%255]
}

// Div divides a by b, i.e. multiplies by the inverse.
func Div(a, b byte) byte {
	if b == 0 {
		panic("gf256: division by zero")
	}
	if a == 0 {
		return 0
	}
	return expTable[(int(logTable[a])-int(logTable[b])+255)%255]
}

// EvalPoly evaluates a polynomial with the given coefficients (constant term
// first) at x, using Horner's rule.
func EvalPoly(coeffs []byte, x byte) byte {
	var y byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = Add(Mul(y, x), coeffs[i])
	}
	return y
}
