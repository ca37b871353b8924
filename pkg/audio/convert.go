package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Converter converts frames to a target format. It logs once when the first
// mismatching frame arrives and once when a misaligned frame is dropped.
// Not safe for concurrent use; create one per stream.
type Converter struct {
	Target Format

	mismatch sync.Once
	corrupt  sync.Once
}

// Convert returns frame in the target format. Frames already in the target
// format are returned as is. Misaligned frames come back with nil Data.
func (c *Converter) Convert(frame Frame) Frame {
	src := frame.Format()
	if len(frame.Data)%src.BytesPerFrame() != 0 {
		c.corrupt.Do(func() {
			slog.Warn("audio: dropping misaligned PCM frame", "bytes", len(frame.Data), "format", src)
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if src == c.Target {
		return frame
	}
	c.mismatch.Do(func() {
		slog.Info("audio: converting stream", "from", src, "to", c.Target)
	})

	pcm := frame.Data
	// Downmix before resampling so stereo input is only resampled once.
	if src.Channels == 2 && c.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
		src.Channels = 1
	}
	pcm = Resample(pcm, src.Channels, src.SampleRate, c.Target.SampleRate)
	if src.Channels == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return Frame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame from in and forwards it on the returned
// channel, which is closed when in closes. Empty frames are dropped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		c := Converter{Target: target}
		for frame := range in {
			if f := c.Convert(frame); len(f.Data) > 0 {
				out <- f
			}
		}
	}()
	return out
}

func sample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[2*i:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[2*i:], uint16(v))
}

// MonoToStereo duplicates every mono sample into both channels. A trailing
// odd byte is ignored.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, 4*n)
	for i := range n {
		v := sample(pcm, i)
		putSample(out, 2*i, v)
		putSample(out, 2*i+1, v)
	}
	return out
}

// StereoToMono averages the left and right channel of every frame.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, 2*n)
	for i := range n {
		l, r := int32(sample(pcm, 2*i)), int32(sample(pcm, 2*i+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// Resample converts interleaved PCM with the given channel count from
// srcRate to dstRate by linear interpolation. Equal or non-positive rates
// return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	channels = max(channels, 1)
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]byte, 2*channels*dstFrames)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			a := float64(sample(pcm, idx*channels+ch))
			b := float64(sample(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(a*(1-frac)+b*frac))
		}
	}
	return out
}

// String implements [fmt.Stringer], e.g. "16000Hz mono".
func (f Format) String() string {
	var layout string
	switch f.Channels {
	case 1:
		layout = "mono"
	case 2:
		layout = "stereo"
	default:
		layout = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, layout)
}
