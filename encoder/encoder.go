// Package encoder compresses captured PCM into the FLAC stream uploaded
// to the transcription APIs. All capture runs at a fixed 16kHz mono
// S16LE format; speech models are trained on 16kHz and higher rates only
// cost upload bytes.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// BytesToSamples reinterprets raw S16LE PCM as int16 samples. A trailing
// odd byte is dropped.
func BytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// DurationSeconds returns the play time of raw S16LE mono PCM.
func DurationSeconds(pcm []byte) float64 {
	return float64(len(pcm)/2) / float64(SampleRate)
}
