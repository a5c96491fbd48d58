//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoErr     error
)

type otoBackend struct {
	ctx *oto.Context
}

// newBackend opens the process-wide oto context. oto allows only one per
// process, so every OtoPlayer shares it.
func newBackend(buffer time.Duration) (backend, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   buffer,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	return otoBackend{ctx: otoContext}, nil
}

func (b otoBackend) NewVoice(r io.Reader) voice {
	return b.ctx.NewPlayer(r)
}
