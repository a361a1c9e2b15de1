package capture

import (
	"math"

	"codeberg.org/mutker/lightsync/internal/errors"
	"github.com/gordonklaus/portaudio"
)

const fallbackBufferFrames = 1024

// Device is an open mono 16-bit input.
type Device interface {
	// Read blocks until one buffer of samples is available.
	Read() ([]int16, error)
	Close() error
}

// Opener opens the input described by cfg.
type Opener func(cfg Config) (Device, error)

type portAudioDevice struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudio opens the default input device. The buffer holds
// cfg.BufferMultiplier times the device's minimum buffer, which is taken from
// cfg.MinBufferFrames or else from the device's low input latency.
func OpenPortAudio(cfg Config) (Device, error) {
	errFactory := errors.New()

	if err := portaudio.Initialize(); err != nil {
		return nil, errFactory.Wrap(ErrDeviceUnavailable, err)
	}

	frames := cfg.MinBufferFrames
	if frames <= 0 {
		frames = fallbackBufferFrames
		if info, err := portaudio.DefaultInputDevice(); err == nil && info.DefaultLowInputLatency > 0 {
			frames = int(math.Ceil(info.DefaultLowInputLatency.Seconds() * float64(cfg.SampleRate)))
		}
	}
	frames *= max(cfg.BufferMultiplier, 1)

	buf := make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), frames, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, errFactory.Wrap(ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, errFactory.Wrap(ErrDeviceUnavailable, err)
	}

	return &portAudioDevice{stream: stream, buf: buf}, nil
}

func (d *portAudioDevice) Read() ([]int16, error) {
	if err := d.stream.Read(); err != nil {
		return nil, errors.New().Wrap(ErrReadFailed, err)
	}

	out := make([]int16, len(d.buf))
	copy(out, d.buf)
	return out, nil
}

func (d *portAudioDevice) Close() error {
	var errs []error
	if err := d.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.New().Wrap(ErrCloseFailed, errors.Join(errs...))
	}
	return nil
}
