package detector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/detection"
)

const maxMessageSize = config.MaxDetectorMessage

var errMessageTooLarge = errors.New("detector message exceeds size limit")

// Request is one batch sent to the detector process.
type Request struct {
	Seq    uint64      `msgpack:"seq"`
	Frames []WireFrame `msgpack:"frames"`
}

// WireFrame is a raw frame as sent to the detector process.
type WireFrame struct {
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Format string `msgpack:"format"`
	Data   []byte `msgpack:"data"`
}

// Response carries one slot of boxes per submitted frame, or an error.
type Response struct {
	Slots [][]WireBox `msgpack:"slots"`
	Error string      `msgpack:"error,omitempty"`
}

// WireBox is a detection in origin plus size form.
type WireBox struct {
	Class      int     `msgpack:"cl"`
	X          int     `msgpack:"x"`
	Y          int     `msgpack:"y"`
	W          int     `msgpack:"w"`
	H          int     `msgpack:"h"`
	Confidence float64 `msgpack:"pr"`
}

// Detection converts to corner form.
func (b WireBox) Detection() detection.Detection {
	return detection.Detection{
		ClassIndex: b.Class,
		Box:        detection.BoxFromXYWH(b.X, b.Y, b.W, b.H),
		Confidence: b.Confidence,
	}
}

// WriteMessage writes v as a 4-byte big-endian length followed by msgpack.
func WriteMessage(w io.Writer, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal msgpack: %w", err)
	}
	if len(data) > maxMessageSize {
		return errMessageTooLarge
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write msgpack data: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed msgpack message into v.
func ReadMessage(r io.Reader, v interface{}) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return errMessageTooLarge
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read msgpack data: %w", err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal msgpack: %w", err)
	}
	return nil
}
