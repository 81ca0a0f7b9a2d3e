package gf256

import "testing"

func TestMulIdentities(t *testing.T) {
	for a := 0; a < 256; a++ {
		if Mul(byte(a), 1) != byte(a) {
			t.Fatalf("a*1 != a for a=%d", a)
		}
		if Mul(byte(a), 0) != 0 {
			t.Fatalf("a*0 != 0 for a=%d", a)
		}
	}
}

func TestMulCommutative(t *testing.T) {
	for a := 1; a < 256; a += 7 {
		for b := 1; b < 256; b += 11 {
			if Mul(byte(a), byte(b)) != Mul(byte(b), byte(a)) {
				t.Fatalf("multiplication not commutative for %d,%d", a, b)
			}
		}
	}
}

func TestInverse(t *testing.T) {
	for a := 1; a < 256; a++ {
		if Mul(byte(a), Inv(byte(a))) != 1 {
			t.Fatalf("a * a^-1 != 1 for a=%d", a)
		}
	}
}

func TestDiv(t *testing.T) {
	for a := 1; a < 256; a += 5 {
		for b := 1; b < 256; b += 9 {
			q := Div(byte(a), byte(b))
			if Mul(q, byte(b)) != byte(a) {
				t.Fatalf("(a/b)*b != a for %d,%d", a, b)
			}
		}
	}
}

func TestKnownProducts(t *testing.T) {
	// 0x53 * 0xCA = 0x01 under the AES polynomial
	if Mul(0x53, 0xCA) != 0x01 {
		t.Fatalf("0x53*0xCA = %#x, want 0x01", Mul(0x53, 0xCA))
	}
}

func TestEvalPoly(t *testing.T) {
	// f(x) = 5 + 3x, f(0) = 5
	coeffs := []byte{5, 3}
	if EvalPoly(coeffs, 0) != 5 {
		t.Fatalf("f(0) = %d, want 5", EvalPoly(coeffs, 0))
	}
	if EvalPoly(coeffs, 1) != Add(5, 3) {
		t.Fatalf("f(1) = %d, want %d", EvalPoly(coeffs, 1), Add(5, 3))
	}
}
