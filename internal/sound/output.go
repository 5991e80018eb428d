package sound

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoOutput plays samples on the default playback device, opening the
// device per cue so no stream is held while idle.
type MalgoOutput struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoOutput initializes the audio context. Call Close() when done.
func NewMalgoOutput() (*MalgoOutput, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("sound: initializing audio context: %w", err)
	}
	return &MalgoOutput{ctx: ctx}, nil
}

// Play blocks until samples have been handed to the device.
func (o *MalgoOutput) Play(samples []float32, sampleRate uint32) error {
	if len(samples) == 0 {
		return nil
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = 1
	deviceCfg.SampleRate = sampleRate

	var (
		pos  int
		once sync.Once
		done = make(chan struct{})
	)
	onData := func(pOutput, _ []byte, frameCount uint32) {
		for i := 0; i < int(frameCount) && (i+1)*4 <= len(pOutput); i++ {
			var v float32
			if pos < len(samples) {
				v = samples[pos]
				pos++
			}
			binary.LittleEndian.PutUint32(pOutput[i*4:], math.Float32bits(v))
		}
		if pos >= len(samples) {
			once.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(o.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("sound: initializing playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("sound: starting playback device: %w", err)
	}

	length := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	select {
	case <-done:
		// Let the final period drain before tearing the device down.
		time.Sleep(50 * time.Millisecond)
	case <-time.After(length + time.Second):
		return fmt.Errorf("sound: playback timed out")
	}
	return nil
}

// Close releases the audio context.
func (o *MalgoOutput) Close() error {
	if o.ctx == nil {
		return nil
	}
	if err := o.ctx.Uninit(); err != nil {
		return fmt.Errorf("sound: uninitializing audio context: %w", err)
	}
	o.ctx.Free()
	o.ctx = nil
	return nil
}
