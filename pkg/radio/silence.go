package radio

import (
	"bytes"
	"time"
)

const (
	// IdleSilenceInterval is the cadence of keepalive frames while no track plays.
	IdleSilenceInterval = 50 * time.Millisecond

	// PauseFlushFrames is how many silence frames are written in one block at the
	// instant of pause, roughly one second of audio, to purge client buffers.
	PauseFlushFrames = 100
)

// silenceFrame is a single 36-byte MPEG-2 Layer III frame (8 kbps, 16 kHz,
// mono, header 0xFF 0xF3 0x18 0xC4). The all-zero body decodes as silence in
// any decoder that accepts the 128 kbps program stream, which keeps listener
// decoders fed between tracks without a reconnect.
var silenceFrame = []byte{
	0xFF, 0xF3, 0x18, 0xC4,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var pauseFlushBlock = bytes.Repeat(silenceFrame, PauseFlushFrames)

// SilenceFrame returns the constant keepalive frame. Callers must not modify it.
func SilenceFrame() []byte {
	return silenceFrame
}

// PauseFlushBlock returns the bulk silence block written once at pause time.
// Callers must not modify it.
func PauseFlushBlock() []byte {
	return pauseFlushBlock
}
