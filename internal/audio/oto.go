// ABOUTME: oto output for the MP3 element
// ABOUTME: Shares one oto context per process since oto cannot reinitialize
package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoRate int
)

// newOtoSink creates a player on the process-wide context. The first
// sample rate wins; later files at other rates are rejected.
func newOtoSink(r io.Reader, sampleRate int) (sink, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	return ctx.NewPlayer(r), nil
}

func sharedContext(sampleRate int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoRate != sampleRate {
			return nil, fmt.Errorf("audio output already running at %dHz, cannot play %dHz", otoRate, sampleRate)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoRate = sampleRate
	return ctx, nil
}
