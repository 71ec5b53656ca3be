package detector

import (
	"fmt"
	"strings"

	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/detection"
	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/logger"
)

// ModelType names the network family the detector runs.
type ModelType string

const (
	ModelYOLO3     ModelType = "yolo3"
	ModelCenterNet ModelType = "centernet"
	ModelMobileNet ModelType = "mobilenet"
)

// ParseModelType accepts a full name or its one-letter selector (y, c, m).
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yolo3":
		return ModelYOLO3, nil
	case "c", "centernet":
		return ModelCenterNet, nil
	case "m", "mobilenet":
		return ModelMobileNet, nil
	}
	return "", apperrors.NewFatalError(fmt.Sprintf("model type %q not allowed (yolo3, centernet, mobilenet)", s))
}

// Classes returns the class count the network reports for n object classes.
// MobileNet-SSD adds a background class.
func (m ModelType) Classes(n int) int {
	if m == ModelMobileNet {
		return n + 1
	}
	return n
}

// ValidateBatchSize rejects batch sizes the detector cannot run.
func ValidateBatchSize(n int) error {
	if n < 1 || n > config.MaxBatchSize {
		return apperrors.NewFatalError(fmt.Sprintf("batch size %d not supported (1-%d)", n, config.MaxBatchSize))
	}
	return nil
}

// Labels builds the label table for cfg: the labels file when set, otherwise
// the COCO names. MobileNet tables get the background class at index 0.
func Labels(cfg *config.DetectorConfig, log logger.Logger) (*detection.LabelTable, error) {
	model, err := ParseModelType(cfg.ModelType)
	if err != nil {
		return nil, err
	}

	table := detection.NewLabelTable(detection.COCOLabels)
	if cfg.LabelsFile != "" {
		if table, err = detection.LoadLabels(cfg.LabelsFile); err != nil {
			return nil, apperrors.WrapFatalError(err, "load labels")
		}
	}
	if model == ModelMobileNet {
		table = table.WithBackground()
	}

	if want := model.Classes(cfg.Classes); table.Len() < want {
		log.WithFields(logger.Fields{
			"classes": want,
			"labels":  table.Len(),
		}).Warn("Label table is shorter than the class count; unknown classes will stop the pipeline")
	}
	return table, nil
}
