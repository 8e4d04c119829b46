package relay

import (
	"context"
	"sync"

	"github.com/atvkit/atvkit/internal/raop"
)

// RAOPAudio adapts a raop.Session onto the facade's Audio capability.
// RAOP itself has no volume getter — SET_PARAMETER is fire-and-forget —
// so Volume reports back the last level this adapter set, defaulting to
// full volume before the first SetVolume call.
type RAOPAudio struct {
	session *raop.Session

	mu    sync.Mutex
	level float64
	set   bool
}

func NewRAOPAudio(session *raop.Session) *RAOPAudio {
	return &RAOPAudio{session: session}
}

// SetVolume maps the facade's 0.0-100.0 scale onto RAOP's -30.0…0.0 dB
// scale (0 == silence, 100 == unity gain).
func (a *RAOPAudio) SetVolume(ctx context.Context, level float64) error {
	db := -30.0 + (level/100.0)*30.0
	if level == 0 {
		db = -144.0 // RAOP's mute value; -30 dB is still audible
	}
	if err := a.session.SetVolume(db); err != nil {
		return err
	}
	a.mu.Lock()
	a.level, a.set = level, true
	a.mu.Unlock()
	return nil
}

func (a *RAOPAudio) Volume(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.set {
		return 100.0, nil
	}
	return a.level, nil
}

var _ Audio = (*RAOPAudio)(nil)

// RAOPStream adapts a raop.Session onto the facade's Stream capability.
// PlayURL only supports a bare audio HTTP(S) source: RAOP has no
// built-in URL fetcher, so the caller is expected to have already
// resolved the URL to a reachable PCM/ALAC byte stream elsewhere; this
// adapter exists to satisfy the capability contract for local media
// playback flows, not arbitrary web playback.
type RAOPStream struct {
	Session *raop.Session
	Open    func(ctx context.Context, url string) (ReadCloser, error)
}

// ReadCloser is the minimal byte source PlayURL streams from.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

func (a RAOPStream) PlayURL(ctx context.Context, url string) error {
	if a.Open == nil {
		return notSupported("raop: no source opener configured for %q", url)
	}
	src, err := a.Open(ctx, url)
	if err != nil {
		return err
	}
	defer src.Close()
	return a.Session.Stream(src)
}

var _ Stream = RAOPStream{}
