package pool

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPut_ExactSize(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"0", 0},
		{"100B", 100},
		{"4K", 4096},
		{"64K", 65536},
		{"300K", 300000},
		{"1M", 1048576},
		{"3M", 3 * 1048576},
		{"16M", Size16M},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Get(tt.size)
			require.Len(t, b, tt.size)
			Put(b)
		})
	}
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{1, 0},
		{4096, 0},
		{4097, 1},
		{65536, 1},
		{65537, 2},
		{262145, 3},
		{1048577, 4},
		{Size4M + 1, 5},
		{Size16M, 5},
		{Size16M + 1, -1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, bucketIndex(tt.size), "size %d", tt.size)
	}
}

func TestGet_Oversized(t *testing.T) {
	b := Get(Size16M + 10)
	require.Len(t, b, Size16M+10)
	Put(b) // dropped, must not panic
}

func TestPut_Foreign(t *testing.T) {
	Put(nil)
	Put(make([]byte, 100))
	Put(make([]byte, 5000))

	b := Get(4096)
	require.Len(t, b, 4096)
	require.GreaterOrEqual(t, cap(b), Size4K)
	Put(b)
}

func TestReuse(t *testing.T) {
	const size = 70000
	b := Get(size)
	b[0] = 0xAB
	Put(b)
	runtime.GC()

	for i := 0; i < 10; i++ {
		buf := Get(size)
		require.Len(t, buf, size)
		require.Equal(t, Size256K, cap(buf))
		Put(buf)
	}
}

func TestConcurrency(t *testing.T) {
	const goroutines = 16
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				for _, size := range []int{128, 8192, 131072, 524288} {
					b := Get(size)
					for j := range b {
						b[j] = byte(j)
					}
					Put(b)
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkGet(b *testing.B) {
	for _, size := range []int{Size4K, Size256K, Size4M} {
		b.Run(runtimeName(size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				Put(Get(size))
			}
		})
	}
}

func runtimeName(size int) string {
	switch size {
	case Size4K:
		return "4K"
	case Size256K:
		return "256K"
	default:
		return "4M"
	}
}
