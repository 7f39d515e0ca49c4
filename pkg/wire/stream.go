package wire

import (
	"encoding/binary"
	"io"
)

// Frames are self-delimiting on a byte stream: the fixed header names
// the body length, so no extra length prefix is needed.

// StreamWriter writes frames to a byte stream.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a stream writer.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteFrame encodes and writes one frame.
func (sw *StreamWriter) WriteFrame(f *Frame) error {
	_, err := sw.w.Write(f.Encode())
	return err
}

// StreamReader reads frames from a byte stream.
type StreamReader struct {
	r io.Reader
}

// NewStreamReader creates a stream reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r}
}

// ReadFrame reads and decodes exactly one frame. It returns io.EOF
// unwrapped when the stream ends cleanly between frames.
func (sr *StreamReader) ReadFrame() (*Frame, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(sr.r, header); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, ErrStreamReadFailed
	}

	if header[0] != ProtocolVersion {
		return nil, ErrInvalidVersion
	}
	if !FrameType(header[1]).IsValid() {
		return nil, ErrInvalidType
	}

	bodyLen := int(binary.BigEndian.Uint16(header[6:8]))

	buf := make([]byte, HeaderSize+bodyLen+ChecksumSize)
	copy(buf, header)
	if _, err := io.ReadFull(sr.r, buf[HeaderSize:]); err != nil {
		return nil, ErrStreamReadFailed
	}

	f := &Frame{}
	if _, err := f.Decode(buf); err != nil {
		return nil, err
	}

	return f, nil
}
