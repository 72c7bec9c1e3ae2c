package detect

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"vigil/internal/model"
)

func boxFor(x1, y1, x2, y2 float64) model.BoundingBox {
	return model.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func inferenceServer(t *testing.T, path string, respond func(w http.ResponseWriter, body []byte)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		respond(w, raw)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDetectorRoundTrip(t *testing.T) {
	srv := inferenceServer(t, "/detect", func(w http.ResponseWriter, body []byte) {
		var req detectRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Image == "" {
			t.Errorf("bad detect request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"x1": 1.0, "y1": 2.0, "x2": 30.0, "y2": 40.0, "confidence": 0.9},
			},
		})
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewHTTPDetector(context.Background(), ClientConfig{DetectorURL: srv.URL}, logger)
	if err != nil {
		t.Fatal(err)
	}
	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 64)))
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Label != "person" {
		t.Fatalf("empty label should default to person, got %q", dets[0].Label)
	}
	if dets[0].Box.X2 != 30 || dets[0].Confidence != 0.9 {
		t.Fatalf("unexpected detection: %+v", dets[0])
	}
}

func TestHTTPDetectorUnavailableIsFatal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewHTTPDetector(context.Background(), ClientConfig{DetectorURL: "http://127.0.0.1:1"}, logger)
	if err == nil {
		t.Fatal("expected construction error when service is down")
	}
}

func TestHTTPAnalyzerRoundTrip(t *testing.T) {
	srv := inferenceServer(t, "/analyze", func(w http.ResponseWriter, body []byte) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"age":     34,
			"gender":  "Man",
			"emotion": "neutral",
			"emotions": map[string]float64{
				"neutral": 0.8,
				"happy":   0.2,
			},
		})
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewHTTPAnalyzer(context.Background(), ClientConfig{AnalyzerURL: srv.URL}, logger)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	attrs, err := a.Analyze(context.Background(), img, boxFor(8, 8, 40, 40))
	if err != nil {
		t.Fatal(err)
	}
	if attrs.Age == nil || *attrs.Age != 34 {
		t.Fatalf("expected age 34, got %v", attrs.Age)
	}
	if attrs.Gender != "Man" || attrs.Emotion != "neutral" {
		t.Fatalf("unexpected attributes: %+v", attrs)
	}
}

func TestAnalyzerRejectsBoxOutsideFrame(t *testing.T) {
	srv := inferenceServer(t, "/analyze", func(w http.ResponseWriter, body []byte) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewHTTPAnalyzer(context.Background(), ClientConfig{AnalyzerURL: srv.URL}, logger)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if _, err := a.Analyze(context.Background(), img, boxFor(50, 50, 80, 80)); err == nil {
		t.Fatal("expected error for out-of-frame box")
	}
}
