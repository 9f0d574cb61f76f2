package kernels

import (
	"math/rand"
	"testing"
)

// Helper function to generate random float32 slices
func generateRandomFloat32(size int) []float32 {
	data := make([]float32, size)
	for i := range data {
		data[i] = rand.Float32()*200 - 100 // Range: -100 to 100
	}
	return data
}

// Benchmark vector addition
func BenchmarkAdd_Pure_1K(b *testing.B) {
	a := generateRandomFloat32(1024)
	v := generateRandomFloat32(1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range a {
			a[j] += v[j]
		}
	}
}

func BenchmarkAdd_Unrolled_1K(b *testing.B) {
	a := generateRandomFloat32(1024)
	v := generateRandomFloat32(1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AddInPlace(a, v)
	}
}

func BenchmarkAdd_Unrolled_16K(b *testing.B) {
	a := generateRandomFloat32(16384)
	v := generateRandomFloat32(16384)
	b.SetBytes(16384 * 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AddInPlace(a, v)
	}
}

// Benchmark dot product, the FIR inner loop
func BenchmarkDot_Pure_64(b *testing.B) {
	a := generateRandomFloat32(64)
	v := generateRandomFloat32(64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var sum float32
		for j := range a {
			sum += a[j] * v[j]
		}
		_ = sum
	}
}

func BenchmarkDot_Unrolled_64(b *testing.B) {
	a := generateRandomFloat32(64)
	v := generateRandomFloat32(64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Dot(a, v)
	}
}

func BenchmarkScale_4K(b *testing.B) {
	a := generateRandomFloat32(4096)
	dst := make([]float32, len(a))
	b.SetBytes(4096 * 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Scale(dst, a, 0.5)
	}
}

func BenchmarkApplyTanh_4K(b *testing.B) {
	fn, err := Lookup("tanh")
	if err != nil {
		b.Fatal(err)
	}
	a := generateRandomFloat32(4096)
	dst := make([]float32, len(a))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Apply(fn, dst, a)
	}
}
