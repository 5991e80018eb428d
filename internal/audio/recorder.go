// Package audio captures microphone input and buffers it for transcription.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")
	// ErrDeviceLost is reported when capture stops without Stop being called.
	ErrDeviceLost = errors.New("audio: input device lost")
)

// Recorder captures audio from the default microphone at the device's
// native format and delivers mono chunks at the target rate to a Sink.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	targetRate uint32
	gain       float32

	mu        sync.Mutex
	device    *malgo.Device
	sink      Sink
	onError   func(error)
	recording bool
	channels  uint32
	rs        *resampler
	seq       uint64
}

// NewRecorder creates a recorder producing mono audio at targetRate with the
// given input gain. Call Close() when done.
func NewRecorder(targetRate uint32, gain float32) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}
	if gain <= 0 {
		gain = 1
	}
	return &Recorder{
		ctx:        ctx,
		targetRate: targetRate,
		gain:       gain,
	}, nil
}

// Start opens the default input device and begins delivering chunks to sink.
// onError is called at most once if the device stops on its own. Start
// returns only after the device is running.
func (r *Recorder) Start(sink Sink, onError func(error)) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("audio: already recording")
	}
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	// Zero asks for the device's native rate and channel count.
	deviceCfg.Capture.Channels = 0
	deviceCfg.SampleRate = 0

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
		Stop: r.onStop,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	channels := device.CaptureChannels()
	if channels == 0 {
		channels = 1
	}

	r.mu.Lock()
	r.device = device
	r.sink = sink
	r.onError = onError
	r.channels = channels
	r.rs = newResampler(device.SampleRate(), r.targetRate)
	r.seq = 0
	r.recording = true
	r.mu.Unlock()

	if err := device.Start(); err != nil {
		r.mu.Lock()
		r.recording = false
		r.device = nil
		r.sink = nil
		r.mu.Unlock()
		device.Uninit()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return nil
}

// Stop ends capture. No chunk is delivered after Stop returns.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	device := r.device
	r.device = nil
	r.sink = nil
	r.onError = nil
	r.mu.Unlock()

	// Uninit waits for the audio thread, which may be blocked on r.mu.
	if device != nil {
		device.Uninit()
	}
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.Stop()
	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}
	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured frames as interleaved little-endian float32.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || r.sink == nil {
		return
	}

	raw := bytesToFloat32(pSample, frameCount*r.channels)
	mono := ToMono(raw, int(r.channels))
	samples := r.rs.process(mono)
	ApplyGain(samples, r.gain)
	if len(samples) == 0 {
		return
	}

	r.seq++
	r.sink.Append(Chunk{Seq: r.seq, At: time.Now(), Samples: samples})
}

// onStop fires whenever the device stops. Only a stop that Stop did not
// request is reported.
func (r *Recorder) onStop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	onError := r.onError
	device := r.device
	r.device = nil
	r.sink = nil
	r.onError = nil
	r.mu.Unlock()

	if onError != nil {
		onError(ErrDeviceLost)
	}
	if device != nil {
		// Uninit cannot run on the audio thread.
		go device.Uninit()
	}
}
