package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

const frameSize = Channels * BytesPerSample

// pcmSource is the reader handed to the output device. It resamples mono
// s16le PCM by linear interpolation to apply the playback rate, which also
// shifts pitch. Bytes can be appended while it is being read.
type pcmSource struct {
	mu      sync.Mutex
	data    []byte
	pos     float64 // read position in source frames
	rate    float64
	ended   bool // no more bytes will be appended
	drained bool
}

func newPCMSource(data []byte, rate float64, ended bool) *pcmSource {
	if rate <= 0 {
		rate = 1
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &pcmSource{data: buf, rate: rate, ended: ended}
}

func (s *pcmSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(s.data) / frameSize
	n := 0
	for n+frameSize <= len(p) {
		i := int(s.pos)
		if i >= frames {
			break
		}
		var v float64
		if i+1 < frames {
			a, b := s.sample(i), s.sample(i+1)
			v = a + (b-a)*(s.pos-float64(i))
		} else if s.ended {
			v = s.sample(i)
		} else {
			// the next frame has not arrived yet
			break
		}
		binary.LittleEndian.PutUint16(p[n:], uint16(int16(math.Round(v))))
		s.pos += s.rate
		n += frameSize
	}
	if n > 0 {
		return n, nil
	}
	if s.ended {
		s.drained = true
		return 0, io.EOF
	}

	// underrun while a stream is still arriving
	n = len(p) - len(p)%frameSize
	clear(p[:n])
	return n, nil
}

func (s *pcmSource) sample(i int) float64 {
	return float64(int16(binary.LittleEndian.Uint16(s.data[i*frameSize:])))
}

func (s *pcmSource) append(data []byte) {
	s.mu.Lock()
	s.data = append(s.data, data...)
	s.mu.Unlock()
}

func (s *pcmSource) finish() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

func (s *pcmSource) setRate(rate float64) {
	if rate <= 0 {
		return
	}
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

// seek moves the read position to d, clamped to the bytes received.
func (s *pcmSource) seek(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := float64(len(s.data) / frameSize)
	s.pos = math.Max(0, math.Min(d*SampleRate, frames))
	s.drained = false
}

// state returns the read position and the length received in seconds,
// the rate, and whether every byte has been read.
func (s *pcmSource) state() (pos, length, rate float64, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(s.data) / frameSize
	return s.pos / SampleRate, float64(frames) / SampleRate, s.rate, s.drained || (s.ended && int(s.pos) >= frames)
}
