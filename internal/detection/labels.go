package detection

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/zsiec/framecast/internal/errors"
)

// BackgroundLabel is the extra class SSD-style models report at index 0.
const BackgroundLabel = "background"

// ErrUnknownClass is returned when a detector reports a class index the label
// table cannot name. It is fatal: the detector and labels disagree.
var ErrUnknownClass = apperrors.NewFatalError("detection class outside label table").WithCode("UNKNOWN_CLASS")

// COCOLabels are the 80 COCO class names in model output order.
var COCOLabels = []string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck",
	"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
	"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
	"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
	"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "sofa",
	"pottedplant", "bed", "diningtable", "toilet", "tvmonitor", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// LabelTable maps class indices to names.
type LabelTable struct {
	names []string
}

// NewLabelTable copies names into a table.
func NewLabelTable(names []string) *LabelTable {
	return &LabelTable{names: append([]string(nil), names...)}
}

// LoadLabels reads one name per line. Blank lines and lines starting with #
// are skipped.
func LoadLabels(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("labels file %s has no labels", path)
	}
	return &LabelTable{names: names}, nil
}

// WithBackground returns a copy with BackgroundLabel at index 0.
func (t *LabelTable) WithBackground() *LabelTable {
	return &LabelTable{names: append([]string{BackgroundLabel}, t.names...)}
}

// Len returns the number of classes.
func (t *LabelTable) Len() int {
	return len(t.names)
}

// Name resolves a class index.
func (t *LabelTable) Name(i int) (string, error) {
	if i < 0 || i >= len(t.names) {
		return "", fmt.Errorf("%w: index %d, table has %d", ErrUnknownClass, i, len(t.names))
	}
	return t.names[i], nil
}
