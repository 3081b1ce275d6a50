package audio

import (
	"encoding/binary"
	"fmt"
)

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples
func DecodePCM16(pcmData []byte) ([]int16, error) {
	if len(pcmData) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}

	samples := make([]int16, len(pcmData)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmData[i*2:]))
	}
	return samples, nil
}

// EncodePCM16 converts samples to little-endian 16-bit PCM bytes
func EncodePCM16(samples []int16) []byte {
	pcmData := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcmData[i*2:], uint16(sample))
	}
	return pcmData
}

// ToTimeDomainBytes maps 16-bit samples onto unsigned 8-bit amplitudes around
// Midpoint, the same scale a browser analyser reports (-32768 -> 0, 0 -> 128,
// 32767 -> 255).
func ToTimeDomainBytes(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, sample := range samples {
		out[i] = byte(int(sample>>8) + Midpoint)
	}
	return out
}

// ConvertPCMUToPCM converts G.711 PCMU (μ-law) to linear PCM
// Some clients stream telephony-grade μ-law instead of linear16
func ConvertPCMUToPCM(pcmuData []byte) ([]byte, error) {
	if len(pcmuData) == 0 {
		return nil, fmt.Errorf("empty PCMU data")
	}

	pcmData := make([]byte, len(pcmuData)*2) // 16-bit output

	for i, mulawByte := range pcmuData {
		sample := mulawToLinear(mulawByte)
		// Convert to little-endian 16-bit
		pcmData[i*2] = byte(sample)
		pcmData[i*2+1] = byte(sample >> 8)
	}

	return pcmData, nil
}

// mulawToLinear converts an 8-bit μ-law sample to 16-bit linear PCM
func mulawToLinear(mulawByte byte) int16 {
	// Invert all bits first (μ-law uses inverted representation)
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	// step = (mantissa << (segment + 1)) + (33 << segment), minus the bias
	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := (step - 33) << 2 // 14-bit magnitude to 16-bit scale

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}
