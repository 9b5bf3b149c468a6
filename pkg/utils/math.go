package utils

import (
	"encoding/binary"
	"errors"
	"math"
)

// cosineEpsilon keeps CosineSimilarity finite for zero vectors.
const cosineEpsilon = 1e-8

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}

// CosineSimilarity returns dot(a,b) / (|a|*|b| + 1e-8). The vectors must have equal length;
// callers filter mismatched dimensions first. Returns 0 when the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + cosineEpsilon)
}

// ErrInvalidEmbedding is returned when an encoded embedding has a length that is not a
// multiple of four bytes.
var ErrInvalidEmbedding = errors.New("invalid embedding encoding")

// EncodeEmbedding serializes a vector as little-endian float32 values.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, ErrInvalidEmbedding
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
