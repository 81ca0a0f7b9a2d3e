// Package bch implements the binary BCH(127,64) code correcting up to 10 bit
// errors, the block code behind the code-offset fuzzy extractor. The
// generator polynomial is derived at init from the minimal polynomials of
// alpha^1..alpha^20, so encode and decode are bit-for-bit reproducible across
// builds without a hardcoded coefficient table.
package bch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// N is the code block length in bits.
	N = 127
	// K is the message length in bits.
	K = 64
	// T is the number of correctable bit errors.
	T = 10

	// PackedLen is the byte length of a packed codeword.
	PackedLen = 16
	// MessageLen is the byte length of a message.
	MessageLen = 8
)

// ErrUncorrectable is returned when the received word carries more errors
// than the code can correct, or when the error locator is inconsistent.
// Callers must treat it as a hard reject, never as a different valid word.
var ErrUncorrectable = errors.New("bch: uncorrectable error pattern")

// generator holds g(x) as GF(2) coefficients, constant term first.
// Degree is N-K = 63.
var generator []int

func initGenerator() {
	covered := make([]bool, fieldOrder)
	generator = []int{1}
	for i := 1; i <= 2*T; i++ {
		if covered[i] {
			continue
		}
		// cyclotomic coset of i under doubling mod 127
		coset := []int{}
		for j := i; !covered[j]; j = (j * 2) % fieldOrder {
			covered[j] = true
			coset = append(coset, j)
		}
		// minimal polynomial: product of (x + alpha^j) over the coset
		minPoly := []int{1}
		for _, j := range coset {
			minPoly = polyMulGF(minPoly, []int{alphaPow(j), 1})
		}
		generator = polyMulGF(generator, minPoly)
	}
	if len(generator) != N-K+1 {
		panic(fmt.Sprintf("bch: generator degree %d, want %d", len(generator)-1, N-K))
	}
	for i, c := range generator {
		if c != 0 && c != 1 {
			panic(fmt.Sprintf("bch: generator coefficient %d at x^%d not binary", c, i))
		}
	}
}

func polyMulGF(a, b []int) []int {
	out := make([]int, len(a)+len(b)-1)
	for i, ai := range a {
		if ai == 0 {
			continue
		}
		for j, bj := range b {
			out[i+j] ^= gfMul(ai, bj)
		}
	}
	return out
}

// Encode systematically encodes an 8-byte message into a packed 127-bit
// codeword: c(x) = m(x)*x^(n-k) + (m(x)*x^(n-k) mod g(x)).
func Encode(message []byte) ([]byte, error) {
	if len(message) != MessageLen {
		return nil, fmt.Errorf("bch: message must be %d bytes, got %d", MessageLen, len(message))
	}
	bits := make([]int, N)
	for i := 0; i < K; i++ {
		bits[N-K+i] = int(message[i/8]>>(uint(i)%8)) & 1
	}
	// long division of m(x)*x^(n-k) by g(x); remainder fills the low bits
	rem := make([]int, N)
	copy(rem, bits)
	for i := N - 1; i >= N-K; i-- {
		if rem[i] == 0 {
			continue
		}
		for j, g := range generator {
			rem[i-(N-K)+j] ^= g
		}
	}
	for i := 0; i < N-K; i++ {
		bits[i] = rem[i]
	}
	return packBits(bits), nil
}

// RandomCodeword draws a uniformly random codeword, reading the message bits
// from r (crypto/rand in production, fixed readers in tests).
func RandomCodeword(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	msg := make([]byte, MessageLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("fail to draw random message: %w", err)
	}
	return Encode(msg)
}

// Decode corrects up to T bit errors in a packed received word and returns
// the corrected codeword. Patterns beyond the correction budget are rejected
// with ErrUncorrectable whenever the syndrome structure exposes them.
func Decode(received []byte) ([]byte, error) {
	if len(received) != PackedLen {
		return nil, fmt.Errorf("bch: received word must be %d bytes, got %d", PackedLen, len(received))
	}
	bits := unpackBits(received)

	syndromes := make([]int, 2*T+1) // 1-indexed
	clean := true
	for i := 1; i <= 2*T; i++ {
		s := 0
		for p := 0; p < N; p++ {
			if bits[p] != 0 {
				s ^= alphaPow(i * p)
			}
		}
		syndromes[i] = s
		if s != 0 {
			clean = false
		}
	}
	if clean {
		return packBits(bits), nil
	}

	sigma, degree := berlekampMassey(syndromes)
	if degree > T {
		return nil, ErrUncorrectable
	}
	// the locator degree must match the BM length or the pattern is bogus
	actual := 0
	for i, coeff := range sigma {
		if coeff != 0 {
			actual = i
		}
	}
	if actual != degree {
		return nil, ErrUncorrectable
	}

	// Chien search: position p is in error when sigma(alpha^-p) = 0.
	positions := make([]int, 0, degree)
	for p := 0; p < N; p++ {
		if polyEval(sigma, alphaPow(-p)) == 0 {
			positions = append(positions, p)
		}
	}
	if len(positions) != degree {
		return nil, ErrUncorrectable
	}
	for _, p := range positions {
		bits[p] ^= 1
	}

	// corrected word must be a codeword; a miscorrection shows up here
	for i := 1; i <= 2*T; i++ {
		s := 0
		for p := 0; p < N; p++ {
			if bits[p] != 0 {
				s ^= alphaPow(i * p)
			}
		}
		if s != 0 {
			return nil, ErrUncorrectable
		}
	}
	return packBits(bits), nil
}

// Message extracts the systematic 8-byte message from a packed codeword.
func Message(codeword []byte) ([]byte, error) {
	if len(codeword) != PackedLen {
		return nil, fmt.Errorf("bch: codeword must be %d bytes, got %d", PackedLen, len(codeword))
	}
	bits := unpackBits(codeword)
	msg := make([]byte, MessageLen)
	for i := 0; i < K; i++ {
		if bits[N-K+i] != 0 {
			msg[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return msg, nil
}

// berlekampMassey finds the minimal error locator polynomial for the given
// syndromes (1-indexed). Returns the locator (constant term first) and its
// degree.
func berlekampMassey(syndromes []int) ([]int, int) {
	c := make([]int, 2*T+1)
	b := make([]int, 2*T+1)
	c[0], b[0] = 1, 1
	length := 0
	m := 1
	disc := 1

	for n := 0; n < 2*T; n++ {
		d := syndromes[n+1]
		for i := 1; i <= length; i++ {
			d ^= gfMul(c[i], syndromes[n+1-i])
		}
		if d == 0 {
			m++
		} else if 2*length <= n {
			prev := make([]int, len(c))
			copy(prev, c)
			coef := gfMul(d, gfInv(disc))
			for i := 0; i+m < len(c); i++ {
				c[i+m] ^= gfMul(coef, b[i])
			}
			length = n + 1 - length
			copy(b, prev)
			disc = d
			m = 1
		} else {
			coef := gfMul(d, gfInv(disc))
			for i := 0; i+m < len(c); i++ {
				c[i+m] ^= gfMul(coef, b[i])
			}
			m++
		}
	}
	return c[:length+1], length
}

func packBits(bits []int) []byte {
	out := make([]byte, PackedLen)
	for i, bit := range bits {
		if bit != 0 {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

func unpackBits(packed []byte) []int {
	bits := make([]int, N)
	for i := 0; i < N; i++ {
		bits[i] = int(packed[i/8]>>(uint(i)%8)) & 1
	}
	return bits
}
