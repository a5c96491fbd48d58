package audio

import "io"

// voice is one playing stream on the output device. *oto.Player
// satisfies it.
type voice interface {
	Play()
	Pause()
	IsPlaying() bool
	BufferedSize() int
	SetVolume(volume float64)
	Close() error
}

// backend opens voices on the output device.
type backend interface {
	NewVoice(r io.Reader) voice
}
