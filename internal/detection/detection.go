// Package detection defines detector output and the JSON record broadcast for
// every processed tick.
package detection

// Box is an axis-aligned box in frame pixel coordinates. Boxes are passed
// through as the detector reports them and may extend past the frame.
type Box struct {
	X0, Y0, X1, Y1 int
}

// BoxFromXYWH converts an origin plus size into corner form.
func BoxFromXYWH(x, y, w, h int) Box {
	return Box{X0: x, Y0: y, X1: x + w, Y1: y + h}
}

// Detection is one object found in one frame.
type Detection struct {
	ClassIndex int
	Box        Box
	Confidence float64
}

// BatchRecord carries the detections for one tick. Slots holds one list per
// frame submitted in the batch, in submission order.
type BatchRecord struct {
	FrameSeq    uint64
	FrameWidth  int
	FrameHeight int
	Slots       [][]Detection
}

// Count returns the number of detections across all slots.
func (b BatchRecord) Count() int {
	n := 0
	for _, slot := range b.Slots {
		n += len(slot)
	}
	return n
}

// FilterByConfidence drops detections below threshold, keeping slot count
// and order intact. A non-positive threshold keeps everything.
func FilterByConfidence(slots [][]Detection, threshold float64) [][]Detection {
	if threshold <= 0 {
		return slots
	}
	out := make([][]Detection, len(slots))
	for i, slot := range slots {
		kept := make([]Detection, 0, len(slot))
		for _, d := range slot {
			if d.Confidence >= threshold {
				kept = append(kept, d)
			}
		}
		out[i] = kept
	}
	return out
}
