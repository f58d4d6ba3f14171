// Package preprocess normalizes user photographs for identity-model building:
// detect the face, crop it with margin, segment the head, and recolor the
// background to the variant's fill.
package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"aiprofile/internal/domain"
	"aiprofile/internal/infra"
	"aiprofile/internal/storage"
	"aiprofile/pkg/imgcodec"
)

// Preprocessor runs the face normalization pass. Debug, when set, receives
// intermediate crops for inspection; it never affects the result.
type Preprocessor struct {
	detector  FaceDetector
	segmenter HeadSegmenter
	logger    infra.Logger
	debug     *storage.FileStore
}

// New constructs a Preprocessor from its model collaborators.
func New(detector FaceDetector, segmenter HeadSegmenter, logger infra.Logger) *Preprocessor {
	return &Preprocessor{detector: detector, segmenter: segmenter, logger: logger}
}

// WithDebugStore enables intermediate dumps into store under debug/.
func (p *Preprocessor) WithDebugStore(store *storage.FileStore) *Preprocessor {
	p.debug = store
	return p
}

// Run normalizes images against the variant's background fill. Images with
// no detected face are skipped, so the result may be shorter than the input;
// an empty result is returned as-is and the caller decides whether that is
// fatal. Run fails outright only on an unknown variant or a collaborator
// error.
func (p *Preprocessor) Run(ctx context.Context, images []image.Image, variant domain.Variant) ([]image.Image, error) {
	spec, ok := domain.VariantTable[variant]
	if !ok {
		return nil, fmt.Errorf("preprocess: %w: %q", domain.ErrInvalidBackground, variant)
	}

	out := make([]image.Image, 0, len(images))
	for idx, img := range images {
		box, found, err := p.detector.Detect(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("preprocess: detect image %d: %w", idx, err)
		}
		if !found {
			p.logger.Warn().Int("image_index", idx).Msg("preprocess: no face detected, skipping")
			continue
		}

		crop := imaging.Crop(img, cropWithMargin(box, img.Bounds()))
		mask, err := p.segmenter.Segment(ctx, crop)
		if err != nil {
			return nil, fmt.Errorf("preprocess: segment image %d: %w", idx, err)
		}
		normalized := recolorBackground(crop, mask, spec.Fill)
		p.dumpDebug(ctx, variant, idx, normalized)
		out = append(out, normalized)
	}
	return out, nil
}

// cropWithMargin widens the detection box by 0.2x width on both sides,
// 0.3x height above and 0.2x below, clamped to the image bounds.
func cropWithMargin(box image.Rectangle, bounds image.Rectangle) image.Rectangle {
	w := box.Dx()
	h := box.Dy()
	r := image.Rect(
		box.Min.X-int(0.2*float64(w)),
		box.Min.Y-int(0.3*float64(h)),
		box.Max.X+int(0.2*float64(w)),
		box.Max.Y+int(0.2*float64(h)),
	)
	return r.Intersect(bounds)
}

// recolorBackground replaces every pixel the mask marks as background with
// the fill color, leaving foreground pixels untouched. The mask is sampled
// at the crop's resolution; zero luminance means background.
func recolorBackground(crop image.Image, mask image.Image, fill color.NRGBA) image.Image {
	dst := imaging.Clone(crop)
	b := dst.Bounds()
	mb := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			mx := mb.Min.X + (x - b.Min.X)
			my := mb.Min.Y + (y - b.Min.Y)
			if !image.Pt(mx, my).In(mb) {
				dst.SetNRGBA(x, y, fill)
				continue
			}
			if color.GrayModel.Convert(mask.At(mx, my)).(color.Gray).Y == 0 {
				dst.SetNRGBA(x, y, fill)
			}
		}
	}
	return dst
}

func (p *Preprocessor) dumpDebug(ctx context.Context, variant domain.Variant, idx int, img image.Image) {
	if p.debug == nil {
		return
	}
	data, err := imgcodec.EncodePNG(img)
	if err != nil {
		return
	}
	key := fmt.Sprintf("debug/%s/%d.png", variant, idx)
	if _, err := p.debug.Put(ctx, key, data); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("preprocess: debug dump failed")
	}
}
