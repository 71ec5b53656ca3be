package detection

import (
	"encoding/json"
	"fmt"
)

// Record is the wire form of a BatchRecord.
type Record struct {
	FrameSeq uint64     `json:"fn"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Det      [][]Object `json:"det"`
}

// Object is the wire form of a Detection.
type Object struct {
	Class      string  `json:"cl"`
	X0         int     `json:"x0"`
	X1         int     `json:"x1"`
	Y0         int     `json:"y0"`
	Y1         int     `json:"y1"`
	Confidence float64 `json:"pr"`
}

// Serializer renders batch records as the detection broadcast payload.
type Serializer struct {
	labels *LabelTable
}

func NewSerializer(labels *LabelTable) *Serializer {
	return &Serializer{labels: labels}
}

// Labels returns the table used to resolve class names.
func (s *Serializer) Labels() *LabelTable {
	return s.labels
}

// Record converts b to its wire form. An unresolvable class index fails the
// whole record.
func (s *Serializer) Record(b BatchRecord) (Record, error) {
	rec := Record{
		FrameSeq: b.FrameSeq,
		Width:    b.FrameWidth,
		Height:   b.FrameHeight,
		Det:      make([][]Object, len(b.Slots)),
	}
	for i, slot := range b.Slots {
		objs := make([]Object, len(slot))
		for j, d := range slot {
			name, err := s.labels.Name(d.ClassIndex)
			if err != nil {
				return Record{}, fmt.Errorf("frame %d slot %d: %w", b.FrameSeq, i, err)
			}
			objs[j] = Object{
				Class:      name,
				X0:         d.Box.X0,
				X1:         d.Box.X1,
				Y0:         d.Box.Y0,
				Y1:         d.Box.Y1,
				Confidence: d.Confidence,
			}
		}
		rec.Det[i] = objs
	}
	return rec, nil
}

// Serialize encodes b as JSON. The output depends only on b and the label table.
func (s *Serializer) Serialize(b BatchRecord) ([]byte, error) {
	rec, err := s.Record(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// Decode parses a detection broadcast payload.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode detection record: %w", err)
	}
	return rec, nil
}
