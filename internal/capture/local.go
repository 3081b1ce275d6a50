//go:build !portaudio

package capture

// NewLocalProvider returns the local-microphone provider. This build has no
// PortAudio support; rebuild with -tags portaudio.
func NewLocalProvider() Provider {
	return Unsupported{Reason: "local capture requires a build with -tags portaudio"}
}
