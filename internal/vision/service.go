// Package vision wraps the ONNX models behind the image-in, embeddings-out
// capability the recognition core consumes. Nothing outside this package
// touches pixels or tensors.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	_ "image/png"

	"github.com/your-org/campuswatch/internal/config"
	"github.com/your-org/campuswatch/internal/observability"
)

// Service bundles detection, encoding, and emotion/attribute models.
type Service struct {
	detector   *Detector
	encoder    *FaceEncoder
	emotion    *EmotionNet
	attributes *AttributePredictor

	// ORT sessions reuse fixed input/output tensors; runs must not overlap.
	mu sync.Mutex
}

// NewService loads all models from cfg.ModelsDir.
func NewService(cfg config.VisionConfig) (*Service, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	encPath := filepath.Join(cfg.ModelsDir, "mobilefacenet_128.onnx")
	emoPath := filepath.Join(cfg.ModelsDir, "emotion_ferplus.onnx")
	attrPath := filepath.Join(cfg.ModelsDir, "genderage.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading face encoder", "path", encPath, "dim", cfg.EmbeddingDim)
	enc, err := NewFaceEncoder(encPath, cfg.EmbeddingDim)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load encoder: %w", err)
	}

	slog.Info("loading emotion model", "path", emoPath)
	emo, err := NewEmotionNet(emoPath)
	if err != nil {
		det.Close()
		enc.Close()
		return nil, fmt.Errorf("load emotion net: %w", err)
	}

	slog.Info("loading attribute model", "path", attrPath)
	attr, err := NewAttributePredictor(attrPath)
	if err != nil {
		det.Close()
		enc.Close()
		emo.Close()
		return nil, fmt.Errorf("load attributes: %w", err)
	}

	slog.Info("vision models ready")

	return &Service{
		detector:   det,
		encoder:    enc,
		emotion:    emo,
		attributes: attr,
	}, nil
}

// DetectAndEncode detects every face in imageData and returns one embedding
// per face, highest detection confidence first. Zero faces yields an empty
// slice and no error; decode failures are errors.
func (s *Service) DetectAndEncode(imageData []byte) ([][]float32, error) {
	img, err := decodeImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	start := time.Now()
	detInput := preprocessForDetection(img, 640, 640)
	detections, err := s.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	embeddings := make([][]float32, 0, len(detections))
	for _, det := range detections {
		faceCrop := cropFace(img, det.BBox)
		if faceCrop == nil {
			continue
		}

		start = time.Now()
		encInput := preprocessForEncoding(faceCrop, 112, 112)
		embedding, err := s.encoder.Encode(encInput)
		if err != nil {
			slog.Warn("encode face", "error", err)
			continue
		}
		observability.InferenceDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())

		embeddings = append(embeddings, embedding)
	}

	return embeddings, nil
}

// ClassifyEmotion reads the dominant emotion and demographic estimates from
// the most confident face in imageData.
func (s *Service) ClassifyEmotion(imageData []byte) (*EmotionResult, error) {
	img, err := decodeImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := img.Bounds()
	detInput := preprocessForDetection(img, 640, 640)
	detections, err := s.detector.Detect(detInput, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if len(detections) == 0 {
		return nil, fmt.Errorf("no face detected")
	}

	faceCrop := cropFace(img, detections[0].BBox)
	if faceCrop == nil {
		return nil, fmt.Errorf("empty face crop")
	}

	start := time.Now()
	dominant, scores, confidence, err := s.emotion.Classify(preprocessForEmotion(faceCrop, 64, 64))
	if err != nil {
		return nil, fmt.Errorf("classify emotion: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("emotion").Observe(time.Since(start).Seconds())

	result := &EmotionResult{
		Dominant:   dominant,
		Scores:     scores,
		Confidence: confidence,
	}

	gender, age, err := s.attributes.Predict(preprocessForAttributes(faceCrop, 96, 96))
	if err != nil {
		slog.Warn("predict attributes", "error", err)
	} else {
		result.Gender = gender
		result.Age = age
	}

	return result, nil
}

// Close releases all ONNX sessions.
func (s *Service) Close() {
	if s.detector != nil {
		s.detector.Close()
	}
	if s.encoder != nil {
		s.encoder.Close()
	}
	if s.emotion != nil {
		s.emotion.Close()
	}
	if s.attributes != nil {
		s.attributes.Close()
	}
}

// --- Image helpers ---

func decodeImage(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	return img, err
}

func preprocessForDetection(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
}

func preprocessForEncoding(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

func preprocessForAttributes(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
}

// preprocessForEmotion converts the crop to a single grayscale channel.
func preprocessForEmotion(img image.Image, targetW, targetH int) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	data := make([]float32, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// ITU-R BT.601 luma from 16-bit channels
			gray := 0.299*float32(r>>8) + 0.587*float32(g>>8) + 0.114*float32(b>>8)
			data[y*w+x] = gray
		}
	}
	return data
}

// imageToFloat32CHW converts an image to CHW float32 format with
// pixel = (pixel - mean) / std normalization.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			rf := float32(r >> 8)
			gf := float32(g >> 8)
			bf := float32(b >> 8)

			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0]
			data[1*h*w+idx] = (gf - mean[1]) / std[1]
			data[2*h*w+idx] = (bf - mean[2]) / std[2]
		}
	}

	return data
}

// resizeImage performs nearest-neighbour resize (fast, good enough for ML input).
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// cropFace extracts a face region with 10% padding on each side.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	x1, y1 := int(bbox[0]), int(bbox[1])
	x2, y2 := int(bbox[2]), int(bbox[3])

	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil
	}

	x1 -= int(float32(w) * 0.1)
	y1 -= int(float32(h) * 0.1)
	x2 += int(float32(w) * 0.1)
	y2 += int(float32(h) * 0.1)

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}
