package preprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"aiprofile/pkg/imgcodec"
)

// FaceDetector locates at most one face per image. The concrete model is an
// external collaborator; found is false when no face is detected.
type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) (box image.Rectangle, found bool, err error)
}

// HeadSegmenter produces a head mask for a cropped face image. Mask pixels
// with zero luminance are background.
type HeadSegmenter interface {
	Segment(ctx context.Context, img image.Image) (image.Image, error)
}

// detectInputSize is the fixed resolution the detector model runs at.
const detectInputSize = 640

// ModelClientOptions configures the HTTP clients for the detection and
// segmentation model servers.
type ModelClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func newModelHTTPClient(opts ModelClientOptions) (*http.Client, string, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, "", errors.New("preprocess: model server base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return client, base, nil
}

// DetectorClient talks to a face-detection model server.
type DetectorClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDetectorClient builds a detector client from options.
func NewDetectorClient(opts ModelClientOptions) (*DetectorClient, error) {
	client, base, err := newModelHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	return &DetectorClient{httpClient: client, baseURL: base}, nil
}

type detectRequest struct {
	Image     string `json:"image"`
	InputSize int    `json:"input_size"`
	MaxDet    int    `json:"max_det"`
}

type detectResponse struct {
	Boxes [][4]int `json:"boxes"`
}

// Detect posts the image to the model server and returns the first (and
// only) detected face box, if any.
func (c *DetectorClient) Detect(ctx context.Context, img image.Image) (image.Rectangle, bool, error) {
	encoded, err := imgcodec.EncodeBase64(img)
	if err != nil {
		return image.Rectangle{}, false, err
	}
	payload := detectRequest{Image: encoded, InputSize: detectInputSize, MaxDet: 1}
	var out detectResponse
	if err := c.post(ctx, "/detect", payload, &out); err != nil {
		return image.Rectangle{}, false, err
	}
	if len(out.Boxes) == 0 {
		return image.Rectangle{}, false, nil
	}
	b := out.Boxes[0]
	return image.Rect(b[0], b[1], b[2], b[3]), true, nil
}

// SegmenterClient talks to a head-segmentation model server.
type SegmenterClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewSegmenterClient builds a segmenter client from options.
func NewSegmenterClient(opts ModelClientOptions) (*SegmenterClient, error) {
	client, base, err := newModelHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	return &SegmenterClient{httpClient: client, baseURL: base}, nil
}

type segmentRequest struct {
	Image string `json:"image"`
}

type segmentResponse struct {
	Mask string `json:"mask"`
}

// Segment posts the cropped face and returns the head mask.
func (c *SegmenterClient) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	encoded, err := imgcodec.EncodeBase64(img)
	if err != nil {
		return nil, err
	}
	payload := segmentRequest{Image: encoded}
	var out segmentResponse
	if err := c.post(ctx, "/segment", payload, &out); err != nil {
		return nil, err
	}
	mask, err := imgcodec.DecodeBase64(out.Mask)
	if err != nil {
		return nil, fmt.Errorf("preprocess: decode mask: %w", err)
	}
	return mask, nil
}

func (c *DetectorClient) post(ctx context.Context, path string, payload, out any) error {
	return postJSON(ctx, c.httpClient, c.baseURL+path, payload, out)
}

func (c *SegmenterClient) post(ctx context.Context, path string, payload, out any) error {
	return postJSON(ctx, c.httpClient, c.baseURL+path, payload, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("preprocess: model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("preprocess: model server: http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("preprocess: model server: decode response: %w", err)
	}
	return nil
}
