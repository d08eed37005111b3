package ai

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"edgeagent/internal/config"
	"edgeagent/internal/logger"
	"edgeagent/internal/model"
)

// SSD MobileNet input geometry.
const (
	inputSize   = 300
	outputWidth = 7 // [batch_id, class_id, score, left, top, right, bottom]
)

type DetectorService struct {
	net        gocv.Net
	mutex      sync.Mutex
	modelPath  string
	configPath string
	logger     *logger.Logger
}

// NewDetectorService loads the TensorFlow SSD graph named in config.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:  config.ModelPath,
		configPath: config.ConfigPath,
		logger:     logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", s.configPath)
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)

	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)

	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Detect runs the network on frame and returns every candidate it produced,
// with boxes normalized to the frame. Thresholding is left to the caller.
func (s *DetectorService) Detect(frame *model.Frame) ([]model.RawDetection, error) {
	mat, err := decode(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.mutex.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mutex.Unlock()
	defer output.Close()

	if output.Total()%outputWidth != 0 {
		return nil, fmt.Errorf("unexpected network output size %d", output.Total())
	}
	rows := output.Reshape(1, output.Total()/outputWidth)
	defer rows.Close()

	detections := make([]model.RawDetection, 0, rows.Rows())
	for i := 0; i < rows.Rows(); i++ {
		detections = append(detections, model.RawDetection{
			ClassID: int(rows.GetFloatAt(i, 1)),
			Score:   float64(rows.GetFloatAt(i, 2)),
			Box: model.BBox{
				Left:   float64(rows.GetFloatAt(i, 3)),
				Top:    float64(rows.GetFloatAt(i, 4)),
				Right:  float64(rows.GetFloatAt(i, 5)),
				Bottom: float64(rows.GetFloatAt(i, 6)),
			},
		})
	}
	return detections, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.net.Close()
}

func decode(frame *model.Frame) (gocv.Mat, error) {
	switch frame.Format {
	case model.FormatJPEG:
		mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
		if err != nil {
			return mat, fmt.Errorf("failed to decode image: %v", err)
		}
		if mat.Empty() {
			mat.Close()
			return mat, fmt.Errorf("decoded image is empty")
		}
		return mat, nil
	case model.FormatBGR:
		if frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) != frame.Width*frame.Height*3 {
			return gocv.NewMat(), fmt.Errorf("bad BGR frame %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
		}
		return gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported frame format %d", frame.Format)
	}
}
