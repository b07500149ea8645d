// Package gifseek decodes animated GIFs and provides random access to their
// composited frames.
//
// A Source is built once from the encoded bytes. A Session owns the
// composited canvas of one Source at a time and exposes seeking, stepping
// and timed playback. Seeks restart from the nearest keyframe snapshot, so
// scrubbing does not replay the animation from its first frame.
//
// Basic usage:
//
//	s := gifseek.NewSession(&gifseek.Options{Sink: sink})
//	defer s.Close()
//	if err := s.Load(ctx, data); err != nil {
//		return err
//	}
//	err := s.SeekTo(42)
//	img, err := s.Snapshot()
package gifseek
