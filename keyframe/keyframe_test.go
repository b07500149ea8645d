package keyframe

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func noise(w, h int, seed int64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(seed))
	rng.Read(img.Pix)
	return img
}

func TestCache_RoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(comp.String(), func(t *testing.T) {
			c, err := New(10, comp)
			require.NoError(t, err)
			defer c.Close()

			src := noise(33, 17, 1)
			require.NoError(t, c.Put(20, src))

			dst := image.NewNRGBA(src.Rect)
			require.NoError(t, c.Restore(20, dst))
			require.Equal(t, src.Pix, dst.Pix)
		})
	}
}

func TestCache_CopyOnInsert(t *testing.T) {
	c, err := New(5, CompressionNone)
	require.NoError(t, err)
	src := noise(4, 4, 2)
	want := append([]byte(nil), src.Pix...)
	require.NoError(t, c.Put(0, src))

	for i := range src.Pix {
		src.Pix[i] = 0
	}
	dst := image.NewNRGBA(src.Rect)
	require.NoError(t, c.Restore(0, dst))
	require.Equal(t, want, dst.Pix)
}

func TestCache_Nearest(t *testing.T) {
	c, err := New(10, CompressionNone)
	require.NoError(t, err)
	img := noise(2, 2, 3)
	for _, i := range []int{0, 10, 30} {
		require.NoError(t, c.Put(i, img))
	}

	tests := []struct {
		target int
		want   int
		ok     bool
	}{
		{0, 0, false},
		{1, 0, true},
		{10, 0, true},
		{11, 10, true},
		{25, 10, true},
		{30, 10, true},
		{31, 30, true},
		{99, 30, true},
	}
	for _, tt := range tests {
		k, ok := c.Nearest(tt.target)
		require.Equal(t, tt.ok, ok, "target %d", tt.target)
		if ok {
			require.Equal(t, tt.want, k, "target %d", tt.target)
		}
	}
}

func TestCache_PutRejectsUnaligned(t *testing.T) {
	c, err := New(10, CompressionNone)
	require.NoError(t, err)
	require.ErrorIs(t, c.Put(5, noise(1, 1, 0)), ErrNotKeyframe)
	require.ErrorIs(t, c.Put(-10, noise(1, 1, 0)), ErrNotKeyframe)
}

func TestCache_RestoreErrors(t *testing.T) {
	c, err := New(1, CompressionZstd)
	require.NoError(t, err)
	defer c.Close()

	require.ErrorIs(t, c.Restore(3, image.NewNRGBA(image.Rect(0, 0, 1, 1))), ErrMissing)

	require.NoError(t, c.Put(3, noise(4, 4, 4)))
	require.ErrorIs(t, c.Restore(3, image.NewNRGBA(image.Rect(0, 0, 5, 4))), ErrSize)
}

func TestCache_Accounting(t *testing.T) {
	c, err := New(2, CompressionNone)
	require.NoError(t, err)
	img := noise(8, 8, 5)
	require.NoError(t, c.Put(0, img))
	require.NoError(t, c.Put(2, img))
	require.NoError(t, c.Put(2, img))
	require.Equal(t, 2, c.Len())
	require.Equal(t, 2*len(img.Pix), c.Bytes())
	require.True(t, c.Has(2))

	c.Clear()
	require.Zero(t, c.Len())
	require.Zero(t, c.Bytes())
	require.False(t, c.Has(0))
}

func TestCache_ZstdShrinksFlatCanvas(t *testing.T) {
	c, err := New(1, CompressionZstd)
	require.NoError(t, err)
	defer c.Close()
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	require.NoError(t, c.Put(0, img))
	require.Less(t, c.Bytes(), len(img.Pix)/10)
}

func TestCache_SubImage(t *testing.T) {
	c, err := New(1, CompressionNone)
	require.NoError(t, err)
	big := noise(10, 10, 6)
	sub := big.SubImage(image.Rect(2, 2, 5, 6)).(*image.NRGBA)
	require.NoError(t, c.Put(0, sub))

	dst := image.NewNRGBA(sub.Rect)
	require.NoError(t, c.Restore(0, dst))
	for y := 2; y < 6; y++ {
		for x := 2; x < 5; x++ {
			require.Equal(t, sub.NRGBAAt(x, y), dst.NRGBAAt(x, y))
		}
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(0, CompressionNone)
	require.ErrorIs(t, err, ErrStride)
	_, err = New(1, Compression(7))
	require.ErrorIs(t, err, ErrCompression)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "ZSTD": CompressionZstd} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseCompression("lz4")
	require.ErrorIs(t, err, ErrCompression)
}
