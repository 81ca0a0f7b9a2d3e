package bch

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestGeneratorShape(t *testing.T) {
	if len(generator) != N-K+1 {
		t.Fatalf("generator degree %d, want %d", len(generator)-1, N-K)
	}
	if generator[0] != 1 || generator[N-K] != 1 {
		t.Fatal("generator must be monic with nonzero constant term")
	}
}

func TestEncodeDecodeClean(t *testing.T) {
	msg := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x23, 0x45, 0x67}
	codeword, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(codeword)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, codeword) {
		t.Fatal("clean codeword changed by decoder")
	}
	recovered, err := Message(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, msg) {
		t.Fatalf("message roundtrip: got %x want %x", recovered, msg)
	}
}

func flipBits(codeword []byte, positions []int) []byte {
	out := append([]byte(nil), codeword...)
	for _, p := range positions {
		out[p/8] ^= 1 << (uint(p) % 8)
	}
	return out
}

func TestDecodeCorrectsUpToT(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 50; trial++ {
		msg := make([]byte, MessageLen)
		rng.Read(msg)
		codeword, err := Encode(msg)
		if err != nil {
			t.Fatal(err)
		}

		numErrors := 1 + rng.Intn(T)
		positions := rng.Perm(N)[:numErrors]
		corrupted := flipBits(codeword, positions)

		decoded, err := Decode(corrupted)
		if err != nil {
			t.Fatalf("trial %d: decode failed with %d errors: %v", trial, numErrors, err)
		}
		if !bytes.Equal(decoded, codeword) {
			t.Fatalf("trial %d: decoded to a different codeword", trial)
		}
	}
}

func TestDecodeMaxErrors(t *testing.T) {
	msg := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	codeword, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	positions := []int{0, 13, 27, 41, 55, 69, 83, 97, 111, 125}
	decoded, err := Decode(flipBits(codeword, positions))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, codeword) {
		t.Fatal("decoded to a different codeword at exactly T errors")
	}
}

func TestDecodeRejectsBeyondBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	msg := make([]byte, MessageLen)
	rng.Read(msg)
	codeword, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}

	rejected := 0
	for trial := 0; trial < 30; trial++ {
		positions := rng.Perm(N)[:2*T+5]
		decoded, err := Decode(flipBits(codeword, positions))
		if err != nil {
			if !errors.Is(err, ErrUncorrectable) {
				t.Fatalf("unexpected error type: %v", err)
			}
			rejected++
			continue
		}
		// a heavy pattern may land inside another codeword's ball; it must
		// never silently decode back to the original
		if bytes.Equal(decoded, codeword) {
			t.Fatal("decoder claimed to correct a pattern beyond its budget")
		}
	}
	if rejected == 0 {
		t.Fatal("decoder never rejected heavy error patterns")
	}
}

func TestRandomCodewordDeterministicReader(t *testing.T) {
	seed := bytes.Repeat([]byte{0xAB}, MessageLen)
	c1, err := RandomCodeword(bytes.NewReader(seed))
	if err != nil {
		t.Fatal(err)
	}
	c2, err := RandomCodeword(bytes.NewReader(seed))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c1, c2) {
		t.Fatal("codeword must be a function of the reader bytes")
	}
}

func TestEncodeRejectsBadLength(t *testing.T) {
	if _, err := Encode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short message")
	}
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short received word")
	}
}
