package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vigil/internal/model"
)

// ClientConfig configures the HTTP inference clients.
type ClientConfig struct {
	DetectorURL  string
	AnalyzerURL  string
	BehaviourURL string
	Timeout      time.Duration
}

// HTTPDetector posts frames to a person-detection inference service.
type HTTPDetector struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Detections []struct {
		X1         float64 `json:"x1"`
		Y1         float64 `json:"y1"`
		X2         float64 `json:"x2"`
		Y2         float64 `json:"y2"`
		Confidence float64 `json:"confidence"`
		Label      string  `json:"label"`
	} `json:"detections"`
}

// NewHTTPDetector builds the detector client and verifies the service is
// reachable. A failed health check is fatal: the pipeline must not start
// without its model.
func NewHTTPDetector(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*HTTPDetector, error) {
	d := &HTTPDetector{
		url:    cfg.DetectorURL,
		client: &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		logger: logger,
	}
	if err := ping(ctx, d.client, d.url); err != nil {
		return nil, fmt.Errorf("detector service unavailable: %w", err)
	}
	logger.Info("detector service ready", "url", d.url)
	return d, nil
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]model.Detection, error) {
	encoded, err := encodeBase64JPEG(img)
	if err != nil {
		return nil, err
	}
	var resp detectResponse
	if err := postJSON(ctx, d.client, d.url+"/detect", detectRequest{Image: encoded}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Detection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		label := det.Label
		if label == "" {
			label = "person"
		}
		out = append(out, model.Detection{
			Box:        model.BoundingBox{X1: det.X1, Y1: det.Y1, X2: det.X2, Y2: det.Y2},
			Confidence: det.Confidence,
			Label:      label,
		})
	}
	return out, nil
}

// HTTPAnalyzer posts cropped person regions to a face-analytics service.
type HTTPAnalyzer struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type analyzeRequest struct {
	Image string `json:"image"`
}

type analyzeResponse struct {
	Age      *int               `json:"age"`
	Gender   string             `json:"gender"`
	Emotion  string             `json:"emotion"`
	Emotions map[string]float64 `json:"emotions"`
}

func NewHTTPAnalyzer(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*HTTPAnalyzer, error) {
	a := &HTTPAnalyzer{
		url:    cfg.AnalyzerURL,
		client: &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		logger: logger,
	}
	if err := ping(ctx, a.client, a.url); err != nil {
		return nil, fmt.Errorf("analyzer service unavailable: %w", err)
	}
	logger.Info("analyzer service ready", "url", a.url)
	return a, nil
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, img image.Image, box model.BoundingBox) (model.Attributes, error) {
	crop, err := cropRegion(img, box)
	if err != nil {
		return model.Attributes{}, err
	}
	encoded, err := encodeBase64JPEG(crop)
	if err != nil {
		return model.Attributes{}, err
	}
	var resp analyzeResponse
	if err := postJSON(ctx, a.client, a.url+"/analyze", analyzeRequest{Image: encoded}, &resp); err != nil {
		return model.Attributes{}, err
	}
	return model.Attributes{
		Age:      resp.Age,
		Gender:   resp.Gender,
		Emotion:  resp.Emotion,
		Emotions: resp.Emotions,
	}, nil
}

// HTTPPredictor posts clip windows to a video behaviour classification
// service.
type HTTPPredictor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type predictRequest struct {
	Frames []string `json:"frames"`
}

type predictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func NewHTTPPredictor(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*HTTPPredictor, error) {
	p := &HTTPPredictor{
		url:    cfg.BehaviourURL,
		client: &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		logger: logger,
	}
	if err := ping(ctx, p.client, p.url); err != nil {
		return nil, fmt.Errorf("behaviour service unavailable: %w", err)
	}
	logger.Info("behaviour service ready", "url", p.url)
	return p, nil
}

func (p *HTTPPredictor) Predict(ctx context.Context, frames []image.Image) (string, float64, error) {
	encoded := make([]string, 0, len(frames))
	for _, frame := range frames {
		s, err := encodeBase64JPEG(frame)
		if err != nil {
			return "", 0, err
		}
		encoded = append(encoded, s)
	}
	var resp predictResponse
	if err := postJSON(ctx, p.client, p.url+"/classify", predictRequest{Frames: encoded}, &resp); err != nil {
		return "", 0, err
	}
	return resp.Label, resp.Confidence, nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func ping(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service returned %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
