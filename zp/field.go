// Package zp implements arithmetic in the prime field Z_p used to carry
// secret shares, plus matrices over Z_p and a fixed-point encoding of reals.
package zp

import (
	"crypto/rand"
	"io"
	"math/big"

	"golang.org/x/xerrors"
)

// DefaultModulus is the prime 2^255 - 19.
var DefaultModulus = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// Field is the prime field Z_p. Elements are *big.Int in [0, p).
type Field struct {
	P    *big.Int
	half *big.Int
}

// NewField returns the field of integers modulo the prime p.
func NewField(p *big.Int) (*Field, error) {
	if p == nil || p.Cmp(big.NewInt(2)) < 0 || !p.ProbablyPrime(20) {
		return nil, xerrors.Errorf("modulus %v is not a prime", p)
	}
	return &Field{
		P:    new(big.Int).Set(p),
		half: new(big.Int).Rsh(p, 1),
	}, nil
}

// DefaultField returns Z_p with p = DefaultModulus.
func DefaultField() *Field {
	f, err := NewField(DefaultModulus)
	if err != nil {
		// DefaultModulus is a known prime
		panic(err)
	}
	return f
}

// Bits returns the bit length of the modulus.
func (f *Field) Bits() int {
	return f.P.BitLen()
}

// Mod reduces any integer into [0, p).
func (f *Field) Mod(a *big.Int) *big.Int {
	res := new(big.Int).Mod(a, f.P)
	return res
}

// Add returns a + b mod p
func (f *Field) Add(a, b *big.Int) *big.Int {
	sum := new(big.Int).Add(a, b)
	return sum.Mod(sum, f.P)
}

// Sub returns a - b mod p
func (f *Field) Sub(a, b *big.Int) *big.Int {
	dif := new(big.Int).Sub(a, b)
	return dif.Mod(dif, f.P)
}

// Mul returns a * b mod p
func (f *Field) Mul(a, b *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	return prod.Mod(prod, f.P)
}

// Neg returns -a mod p
func (f *Field) Neg(a *big.Int) *big.Int {
	neg := new(big.Int).Neg(a)
	return neg.Mod(neg, f.P)
}

// Inv returns a^-1 mod p.
func (f *Field) Inv(a *big.Int) (*big.Int, error) {
	if a.Sign() == 0 {
		return nil, xerrors.Errorf("zero has no inverse")
	}
	return new(big.Int).ModInverse(a, f.P), nil
}

// Rand draws a uniform element of Z_p. A nil reader means crypto/rand.
func (f *Field) Rand(r io.Reader) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, f.P)
	if err != nil {
		return nil, xerrors.Errorf("failed to sample field element: %v", err)
	}
	return n, nil
}

// RandBits draws a uniform integer in [0, 2^bits). It must fit the field.
func (f *Field) RandBits(r io.Reader, bits uint) (*big.Int, error) {
	if int(bits) >= f.Bits() {
		return nil, xerrors.Errorf("%d random bits do not fit a %d-bit field", bits, f.Bits())
	}
	if r == nil {
		r = rand.Reader
	}
	bound := new(big.Int).Lsh(big.NewInt(1), bits)
	n, err := rand.Int(r, bound)
	if err != nil {
		return nil, xerrors.Errorf("failed to sample masking value: %v", err)
	}
	return n, nil
}

// Signed maps an element to its centered representative in (-p/2, p/2].
func (f *Field) Signed(a *big.Int) *big.Int {
	v := new(big.Int).Mod(a, f.P)
	if v.Cmp(f.half) > 0 {
		v.Sub(v, f.P)
	}
	return v
}
