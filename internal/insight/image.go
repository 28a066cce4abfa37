package insight

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrNotImage is returned when the submitted bytes are not a decodable image.
var ErrNotImage = errors.New("input is not an image")

const defaultImagePrompt = "Analyze this image and report what it shows, whether it looks authentic, and any machine-readable codes it contains."

const imageInstruction = `You are an image analysis assistant for scanned documents. Examine the provided image and report on its content, authenticity, and any QR codes.

Respond with a single JSON object with these fields:
  "isValidImage": boolean, false when the image is unreadable or empty
  "validationMessage": short explanation when isValidImage is false
  "keyInsights": array of the most important observations as strings
  "forgeryDetection": object {"suspicious": boolean, "confidence": number between 0 and 1, "indicators": array of strings}
  "qrCodeDetected": boolean
  "qrCodeData": decoded QR content when one is present, otherwise empty
  "qrBoundingBox": object {"x": ..., "y": ..., "width": ..., "height": ...} in pixels when a QR code is present, otherwise null`

// ForgeryReport is the model's tampering assessment.
type ForgeryReport struct {
	Suspicious bool     `json:"suspicious"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators"`
}

// BoundingBox locates a detected QR code in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageAnalysis is the structured result of one ad-hoc image analysis.
type ImageAnalysis struct {
	IsValidImage      bool          `json:"isValidImage"`
	ValidationMessage string        `json:"validationMessage,omitempty"`
	KeyInsights       []string      `json:"keyInsights"`
	ForgeryDetection  ForgeryReport `json:"forgeryDetection"`
	QRCodeDetected    bool          `json:"qrCodeDetected"`
	QRCodeData        string        `json:"qrCodeData,omitempty"`
	QRBoundingBox     *BoundingBox  `json:"qrBoundingBox,omitempty"`
}

// ImageAnalyzer runs ad-hoc image analysis with a multimodal model. Unlike
// insight extraction it has no retrieval step and is never cached.
type ImageAnalyzer struct {
	g       *genkit.Genkit
	modelID string
	timeout time.Duration
	logger  *slog.Logger
}

// NewImageAnalyzer creates an ImageAnalyzer. timeout bounds each model call.
func NewImageAnalyzer(g *genkit.Genkit, modelID string, timeout time.Duration, logger *slog.Logger) *ImageAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageAnalyzer{g: g, modelID: modelID, timeout: timeout, logger: logger}
}

// Analyze runs one analysis over the image bytes. Content type is detected
// from the bytes themselves; non-image input is rejected before any model
// call. An empty prompt falls back to a general analysis request.
func (a *ImageAnalyzer) Analyze(ctx context.Context, image []byte, prompt string) (*ImageAnalysis, error) {
	mediaType := http.DetectContentType(image)
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w (detected %s)", ErrNotImage, mediaType)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultImagePrompt
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	message := ai.NewUserMessage(
		ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+encoded),
		ai.NewTextPart(prompt),
	)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := genkit.Generate(callCtx, a.g,
		ai.WithModelName(a.modelID),
		ai.WithSystem(imageInstruction),
		ai.WithMessages(message),
		ai.WithConfig(map[string]any{"temperature": 0.0}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	analysis := parseImageAnalysis(resp.Text())
	a.logger.Debug("image analysis", "media_type", mediaType, "insights", len(analysis.KeyInsights))
	return analysis, nil
}

// parseImageAnalysis extracts the JSON object from raw model output and fills
// defaults for missing fields. Output that carries no parseable object is not
// an error: the raw text becomes a single insight, so a model that answers in
// prose still produces a usable result.
func parseImageAnalysis(raw string) *ImageAnalysis {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return wrapRawAnalysis(raw)
	}

	var wire struct {
		IsValidImage      *bool         `json:"isValidImage"`
		ValidationMessage string        `json:"validationMessage"`
		KeyInsights       []string      `json:"keyInsights"`
		ForgeryDetection  ForgeryReport `json:"forgeryDetection"`
		QRCodeDetected    bool          `json:"qrCodeDetected"`
		QRCodeData        string        `json:"qrCodeData"`
		QRBoundingBox     *BoundingBox  `json:"qrBoundingBox"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return wrapRawAnalysis(raw)
	}

	analysis := &ImageAnalysis{
		IsValidImage:      true,
		ValidationMessage: wire.ValidationMessage,
		KeyInsights:       wire.KeyInsights,
		ForgeryDetection:  wire.ForgeryDetection,
		QRCodeDetected:    wire.QRCodeDetected,
		QRCodeData:        wire.QRCodeData,
		QRBoundingBox:     wire.QRBoundingBox,
	}
	if wire.IsValidImage != nil {
		analysis.IsValidImage = *wire.IsValidImage
	}
	if analysis.KeyInsights == nil {
		analysis.KeyInsights = []string{}
	}
	if analysis.ForgeryDetection.Indicators == nil {
		analysis.ForgeryDetection.Indicators = []string{}
	}
	if analysis.ForgeryDetection.Confidence < 0 {
		analysis.ForgeryDetection.Confidence = 0
	}
	if analysis.ForgeryDetection.Confidence > 1 {
		analysis.ForgeryDetection.Confidence = 1
	}
	return analysis
}

// wrapRawAnalysis packages non-JSON model output as a single insight.
func wrapRawAnalysis(raw string) *ImageAnalysis {
	analysis := &ImageAnalysis{
		IsValidImage:     true,
		KeyInsights:      []string{},
		ForgeryDetection: ForgeryReport{Indicators: []string{}},
	}
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		analysis.KeyInsights = []string{trimmed}
	}
	return analysis
}
