package vision

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// AttributePredictor predicts gender and age with the InsightFace genderage
// model; the estimates ride along on emotion observations.
type AttributePredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewAttributePredictor loads the gender/age ONNX model.
func NewAttributePredictor(modelPath string) (*AttributePredictor, error) {
	// InsightFace genderage model expects 96x96 input
	inputW, inputH := 96, 96

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Output: [1, 3] as [gender_score, age_raw, ...]
	outputShape := ort.NewShape(1, 3)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create attribute session: %w", err)
	}

	return &AttributePredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Predict runs gender/age prediction on a face crop.
// faceData must be CHW format [3, 96, 96], normalized.
func (p *AttributePredictor) Predict(faceData []float32) (gender string, age int, err error) {
	copy(p.inputTensor.GetData(), faceData)

	if err := p.session.Run(); err != nil {
		return "", 0, fmt.Errorf("run attributes: %w", err)
	}

	data := p.outputTensor.GetData()
	if len(data) < 3 {
		return "", 0, fmt.Errorf("unexpected output size: %d", len(data))
	}

	gender = "female"
	if data[0] > 0.5 {
		gender = "male"
	}

	age = int(data[1])
	if age < 0 {
		age = 0
	}
	if age > 100 {
		age = 100
	}

	return gender, age, nil
}

func (p *AttributePredictor) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
}
