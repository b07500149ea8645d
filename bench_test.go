package gifseek

import (
	"context"
	"image"
	"testing"

	"github.com/deepteams/gifseek/internal/giftest"
	"github.com/deepteams/gifseek/keyframe"
)

// benchAnimation returns a 320x240 animation of n frames, each a moving
// patterned block.
func benchAnimation(n int) []byte {
	frames := make([]giftest.Frame, n)
	for i := range frames {
		x, y := (i*13)%256, (i*7)%176
		r := image.Rect(x, y, x+64, y+64)
		pix := make([]byte, 64*64)
		for p := range pix {
			pix[p] = byte((p/64 + p%64 + i) % 8)
		}
		frames[i] = giftest.Frame{Rect: r, Pix: pix, Disposal: byte(i % 4), Delay: 4}
	}
	frames[0] = giftest.Solid(image.Rect(0, 0, 320, 240), giftest.White)
	return giftest.New(320, 240, frames...).Bytes()
}

func BenchmarkOpen(b *testing.B) {
	data := benchAnimation(60)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Open(data, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func benchSeek(b *testing.B, opts *Options, warm bool) {
	data := benchAnimation(60)
	s := NewSession(opts)
	defer s.Close()
	if err := s.Load(context.Background(), data); err != nil {
		b.Fatal(err)
	}
	if warm {
		if err := s.SeekTo(59); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.SeekTo(55 - i%10); err != nil {
			b.Fatal(err)
		}
		if !warm {
			b.StopTimer()
			if err := s.Load(context.Background(), data); err != nil {
				b.Fatal(err)
			}
			b.StartTimer()
		}
	}
}

func BenchmarkSeek_Cold(b *testing.B) { benchSeek(b, nil, false) }
func BenchmarkSeek_Warm(b *testing.B) { benchSeek(b, nil, true) }

func BenchmarkSeek_WarmZstd(b *testing.B) {
	benchSeek(b, &Options{KeyframeCompression: keyframe.CompressionZstd}, true)
}

func BenchmarkAdvance(b *testing.B) {
	s := NewSession(nil)
	defer s.Close()
	if err := s.Load(context.Background(), benchAnimation(60)); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.AdvanceOneStep(); err != nil {
			b.Fatal(err)
		}
	}
}
