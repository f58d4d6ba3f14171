// Package compose pastes generated portraits into pre-designed frame
// templates through per-shape alpha masks.
package compose

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	"aiprofile/internal/domain"
)

// Canonical portrait size inside a frame. Generated images are resized and
// center-cropped to exactly these bounds before pasting.
const (
	portraitWidth  = 512
	portraitHeight = 720
)

// pastePoints maps a slot shape to its fixed paste coordinate. Coordinates
// vary by shape, not by frame: frames sharing a shape share geometry.
var pastePoints = map[domain.SlotShape]image.Point{
	domain.ShapePortrait: {X: 256, Y: 360},
	domain.ShapeRound:    {X: 256, Y: 300},
}

// FrameSource supplies frame template art and per-shape alpha masks.
type FrameSource interface {
	Frame(index int) (image.Image, error)
	Mask(shape domain.SlotShape) (image.Image, error)
}

// Compositor produces final deliverables from generated portraits.
type Compositor struct {
	frames FrameSource
}

// New constructs a Compositor over the given frame assets.
func New(frames FrameSource) *Compositor {
	return &Compositor{frames: frames}
}

// Composite pairs the i-th generated image with the variant's i-th frame
// slot and returns one deliverable per slot. It fails with
// ErrInsufficientImages when generated cannot fill every slot; slots are
// never silently skipped.
func (c *Compositor) Composite(generated []image.Image, variant domain.Variant) ([]image.Image, error) {
	spec, ok := domain.VariantTable[variant]
	if !ok {
		return nil, fmt.Errorf("compose: %w: %q", domain.ErrInvalidVariant, variant)
	}
	if len(generated) < len(spec.Slots) {
		return nil, fmt.Errorf("compose: %w: variant %s needs %d images, have %d",
			domain.ErrInsufficientImages, variant, len(spec.Slots), len(generated))
	}

	out := make([]image.Image, 0, len(spec.Slots))
	for i, slot := range spec.Slots {
		frame, err := c.frames.Frame(slot.FrameIndex)
		if err != nil {
			return nil, fmt.Errorf("compose: frame %d: %w", slot.FrameIndex, err)
		}
		mask, err := c.frames.Mask(slot.Shape)
		if err != nil {
			return nil, fmt.Errorf("compose: mask %s: %w", slot.Shape, err)
		}

		portrait := imaging.Fill(generated[i], portraitWidth, portraitHeight, imaging.Center, imaging.Lanczos)
		dst := imaging.Clone(frame)
		pos := pastePoints[slot.Shape]
		rect := image.Rect(pos.X, pos.Y, pos.X+portraitWidth, pos.Y+portraitHeight)
		draw.DrawMask(dst, rect, portrait, portrait.Bounds().Min, mask, mask.Bounds().Min, draw.Over)
		out = append(out, dst)
	}
	return out, nil
}
