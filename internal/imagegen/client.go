// Package imagegen is the client for the generative backend: building a
// per-job face identity model and synthesizing conditioned portrait batches.
// Every call returns a classified error; nothing here decides retry policy.
package imagegen

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

	"aiprofile/internal/domain"
	"aiprofile/pkg/imgcodec"
)

// Options configures the backend client. Timeout is the shared ceiling for
// both build and generate calls; synthesis is minutes-scale.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Timeout        time.Duration
	PositivePrompt string
	NegativePrompt string
	Presets        PresetSource
}

// Client talks to a Stable-Diffusion-WebUI style backend over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	positive   string
	negative   string
	presets    PresetSource
}

// NewClient builds a backend client from options.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("imagegen: base url is required")
	}
	if opts.Presets == nil {
		return nil, errors.New("imagegen: preset source is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 240 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		positive:   opts.PositivePrompt,
		negative:   opts.NegativePrompt,
		presets:    opts.Presets,
	}, nil
}

// Ping reports whether the backend answers at all. Used by the health
// endpoint, never by the pipeline.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("imagegen: %w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("imagegen: %w: http %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

type buildModelRequest struct {
	SourceImages  []string `json:"source_images"`
	Name          string   `json:"name"`
	ComputeMethod int      `json:"compute_method"`
	ShapeCheck    bool     `json:"shape_check"`
}

// BuildFaceModel submits reference images and registers an identity model
// named modelName on the backend. The returned handle feeds every Generate
// call of the same job and is never persisted.
func (c *Client) BuildFaceModel(ctx context.Context, images []image.Image, modelName string) (domain.ModelHandle, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("imagegen: %w: no reference images", domain.ErrBackendRejected)
	}
	encoded := make([]string, 0, len(images))
	for i, img := range images {
		s, err := imgcodec.EncodeBase64(img)
		if err != nil {
			return "", fmt.Errorf("imagegen: encode reference %d: %w", i, err)
		}
		encoded = append(encoded, s)
	}
	payload := buildModelRequest{
		SourceImages: encoded,
		Name:         modelName,
	}
	if err := c.post(ctx, "/reactor/facemodels", payload, nil); err != nil {
		return "", err
	}
	// The backend stores the model under its name; the name is the handle.
	return domain.ModelHandle(modelName), nil
}

// GenerateRequest is one synthesis batch: identity plus pose/identity
// conditioning for a single background variant.
type GenerateRequest struct {
	Model        domain.ModelHandle
	Variant      domain.Variant
	Gender       domain.Gender
	Conditioning []image.Image
	BatchSize    int
}

type t2iResponse struct {
	Images []string `json:"images"`
}

// Generate requests a batch of portraits conditioned on the identity model,
// a gender-specific pose preset, and exactly three identity-adjacent images
// (the caller samples them; see SampleConditioning).
func (c *Client) Generate(ctx context.Context, req GenerateRequest) ([]image.Image, error) {
	prompt, err := c.basePrompt(req.Gender)
	if err != nil {
		return nil, err
	}
	negative, err := c.negativePrompt(req.Variant)
	if err != nil {
		return nil, err
	}

	pose, err := c.presets.Pose(req.Gender)
	if err != nil {
		return nil, fmt.Errorf("imagegen: load pose preset: %w", err)
	}
	units := []controlNetUnit{poseUnit(pose)}
	for i, img := range req.Conditioning {
		s, encErr := imgcodec.EncodeBase64(img)
		if encErr != nil {
			return nil, fmt.Errorf("imagegen: encode conditioning %d: %w", i, encErr)
		}
		units = append(units, ipAdapterUnit(s))
	}

	payload := newT2IPayload(prompt, negative, req.BatchSize)
	payload.AlwaysOnScripts.ControlNet.Args = unitsToArgs(units)
	payload.AlwaysOnScripts.Reactor.Args = reactorArgs(req.Model)

	var out t2iResponse
	if err := c.post(ctx, "/sdapi/v1/txt2img", payload, &out); err != nil {
		return nil, err
	}

	images := make([]image.Image, 0, len(out.Images))
	for i, s := range out.Images {
		img, decErr := imgcodec.DecodeBase64(s)
		if decErr != nil {
			return nil, fmt.Errorf("imagegen: %w: decode result %d: %v", domain.ErrBackendRejected, i, decErr)
		}
		images = append(images, img)
	}
	return images, nil
}

func (c *Client) basePrompt(gender domain.Gender) (string, error) {
	switch gender {
	case domain.GenderFemale:
		return "korean girl" + c.positive, nil
	case domain.GenderMale:
		return "korean man" + c.positive, nil
	case domain.GenderMaleYoung:
		return "korean boy" + c.positive, nil
	}
	return "", fmt.Errorf("imagegen: %w: %q", domain.ErrInvalidGender, gender)
}

func (c *Client) negativePrompt(variant domain.Variant) (string, error) {
	switch variant {
	case domain.VariantCrimson, domain.VariantBlack:
		return c.negative + ", ((white background:1.5))", nil
	case domain.VariantIvory:
		return c.negative + ", ((black background:1.5))", nil
	}
	return "", fmt.Errorf("imagegen: %w: %q", domain.ErrInvalidVariant, variant)
}

// post sends a JSON payload and decodes a JSON response into out (when out
// is non-nil). Success is the 2xx status class only: a transport error maps
// to BackendUnavailable and any non-2xx to BackendRejected, regardless of
// body content.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("imagegen: %w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		detail := apiErr.Error
		if detail == "" {
			detail = apiErr.Detail
		}
		if detail != "" {
			return fmt.Errorf("imagegen: %w: http %d: %s", domain.ErrBackendRejected, resp.StatusCode, detail)
		}
		return fmt.Errorf("imagegen: %w: http %d", domain.ErrBackendRejected, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("imagegen: %w: decode response: %v", domain.ErrBackendRejected, err)
	}
	return nil
}
