package audio

import (
	"encoding/binary"
	"testing"
)

func TestDecodePCM16(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	pcmData := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcmData[i*2:], uint16(sample))
	}

	decoded, err := DecodePCM16(pcmData)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestDecodePCM16_Invalid(t *testing.T) {
	if _, err := DecodePCM16(nil); err == nil {
		t.Error("Expected error for empty data")
	}
	if _, err := DecodePCM16([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("Expected error for odd length data")
	}
}

func TestEncodePCM16(t *testing.T) {
	pcmData := EncodePCM16([]int16{1, -1})
	expected := []byte{0x01, 0x00, 0xFF, 0xFF}
	if len(pcmData) != len(expected) {
		t.Fatalf("Expected %d bytes, got %d", len(expected), len(pcmData))
	}
	for i := range expected {
		if pcmData[i] != expected[i] {
			t.Errorf("Byte %d: expected %#x, got %#x", i, expected[i], pcmData[i])
		}
	}
}

func TestToTimeDomainBytes(t *testing.T) {
	tests := []struct {
		sample   int16
		expected byte
	}{
		{0, 128},
		{32767, 255},
		{-32768, 0},
		{256, 129},
		{-256, 127},
		{-1, 127},
	}

	for _, tt := range tests {
		got := ToTimeDomainBytes([]int16{tt.sample})[0]
		if got != tt.expected {
			t.Errorf("ToTimeDomainBytes(%d) = %d, expected %d", tt.sample, got, tt.expected)
		}
	}
}

func TestConvertPCMUToPCM(t *testing.T) {
	// Create test PCMU data
	pcmuData := []byte{0xFF, 0x7F, 0x00, 0x80}

	// Convert to PCM
	pcmData, err := ConvertPCMUToPCM(pcmuData)
	if err != nil {
		t.Fatalf("ConvertPCMUToPCM failed: %v", err)
	}

	// Should be 2x length (16-bit output)
	if len(pcmData) != len(pcmuData)*2 {
		t.Errorf("Expected PCM length %d, got %d", len(pcmuData)*2, len(pcmData))
	}

	samples, err := DecodePCM16(pcmData)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}

	// 0xFF and 0x7F are the two encodings of zero
	if samples[0] != 0 || samples[1] != 0 {
		t.Errorf("Expected zero for 0xFF/0x7F, got %d/%d", samples[0], samples[1])
	}
	// 0x00 and 0x80 are the negative and positive extremes
	if samples[2] != -32124 {
		t.Errorf("Expected -32124 for 0x00, got %d", samples[2])
	}
	if samples[3] != 32124 {
		t.Errorf("Expected 32124 for 0x80, got %d", samples[3])
	}
}

func TestConvertPCMUToPCM_Empty(t *testing.T) {
	if _, err := ConvertPCMUToPCM(nil); err == nil {
		t.Error("Expected error for empty PCMU data")
	}
}
