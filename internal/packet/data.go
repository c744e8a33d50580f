package packet

import (
	"encoding/binary"
	"fmt"
)

// Scalar is a fixed-size value that can be stored in a frame payload.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 |
		~int64 | ~uint64 | ~float32 | ~float64 | ~bool
}

// ByteOrder used by controller firmware for multi-byte payload values.
var ByteOrder binary.ByteOrder = binary.LittleEndian

// Store writes v at absolute byte index of the frame. The value must lie
// entirely between the two markers.
func Store[T Scalar](f *Frame, index int, v T) error {
	size := binary.Size(v)
	if err := f.checkRange(index, size); err != nil {
		return err
	}
	if _, err := binary.Encode(f.buf[index:index+size], ByteOrder, v); err != nil {
		return fmt.Errorf("packet: encode at %d: %w", index, err)
	}
	return nil
}

// Load reads a value of type T from absolute byte index of the frame.
func Load[T Scalar](f *Frame, index int) (T, error) {
	var v T
	size := binary.Size(v)
	if err := f.checkRange(index, size); err != nil {
		return v, err
	}
	if _, err := binary.Decode(f.buf[index:index+size], ByteOrder, &v); err != nil {
		return v, fmt.Errorf("packet: decode at %d: %w", index, err)
	}
	return v, nil
}

func (f *Frame) checkRange(index, size int) error {
	if size <= 0 || index < 1 || index+size > len(f.buf)-1 {
		return fmt.Errorf("%w: [%d, %d) in frame of %d", ErrOutOfRange, index, index+size, len(f.buf))
	}
	return nil
}
