package belief

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encodeEmbedding encodes a float32 vector as a binary blob.
// Uses little-endian encoding as expected by sqlite-vec.
func encodeEmbedding(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		// Should never happen with bytes.Buffer
		return nil
	}
	return buf.Bytes()
}

// decodeEmbedding decodes a little-endian float32 blob back into a vector.
func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding blob: %w", err)
	}
	return vec, nil
}
