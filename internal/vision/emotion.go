package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// ferLabels are the FER+ emotion classes, in model output order.
var ferLabels = []string{
	"neutral", "happiness", "surprise", "sadness",
	"anger", "disgust", "fear", "contempt",
}

// EmotionResult is one emotion/demographics reading for a face crop.
type EmotionResult struct {
	Dominant   string
	Scores     map[string]float32
	Confidence float32
	Age        int
	Gender     string
}

// EmotionNet classifies facial expression with the FER+ model. The reading
// decorates presence events for mood analytics; it never gates matching or
// tracking decisions.
type EmotionNet struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewEmotionNet loads the FER+ ONNX model.
func NewEmotionNet(modelPath string) (*EmotionNet, error) {
	// FER+ expects 64x64 grayscale input
	inputW, inputH := 64, 64

	inputShape := ort.NewShape(1, 1, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(len(ferLabels)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"Input3"},
		[]string{"Plus692_Output_0"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create emotion session: %w", err)
	}

	return &EmotionNet{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Classify returns the dominant emotion and the per-class score map for a
// face crop. faceData must be CHW grayscale [1, 64, 64].
func (n *EmotionNet) Classify(faceData []float32) (string, map[string]float32, float32, error) {
	copy(n.inputTensor.GetData(), faceData)

	if err := n.session.Run(); err != nil {
		return "", nil, 0, fmt.Errorf("run emotion: %w", err)
	}

	logits := n.outputTensor.GetData()
	if len(logits) < len(ferLabels) {
		return "", nil, 0, fmt.Errorf("unexpected output size: %d", len(logits))
	}

	probs := softmax(logits[:len(ferLabels)])

	scores := make(map[string]float32, len(ferLabels))
	best := 0
	for i, label := range ferLabels {
		scores[label] = probs[i]
		if probs[i] > probs[best] {
			best = i
		}
	}

	return ferLabels[best], scores, probs[best], nil
}

func (n *EmotionNet) Close() {
	if n.session != nil {
		n.session.Destroy()
	}
	if n.inputTensor != nil {
		n.inputTensor.Destroy()
	}
	if n.outputTensor != nil {
		n.outputTensor.Destroy()
	}
}

func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}
