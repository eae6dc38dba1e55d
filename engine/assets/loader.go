package assets

import (
	"fmt"
	"os"
)

// ReadText reads a whole text file, typically a GLSL source.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBytes reads a whole binary file.
func ReadBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// LoadSPIRV reads a compiled SPIR-V module as little endian words.
func LoadSPIRV(path string) ([]uint32, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: SPIR-V size %d is not a multiple of 4", path, len(buf))
	}
	return bytesToBytecode(buf), nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
