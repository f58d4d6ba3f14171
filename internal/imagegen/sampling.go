package imagegen

import (
	"image"
	"math/rand"
)

// conditioningCount is the exact number of identity-adjacent conditioning
// images every generate call attaches.
const conditioningCount = 3

// SampleConditioning picks exactly three conditioning images from imgs using
// r. With more than three available it picks three distinct images; with
// fewer it pads by repeated random choice with replacement. An empty input
// returns nil. The rand source is injected so callers can make runs
// deterministic.
func SampleConditioning(r *rand.Rand, imgs []image.Image) []image.Image {
	if len(imgs) == 0 {
		return nil
	}
	if len(imgs) > conditioningCount {
		picked := r.Perm(len(imgs))[:conditioningCount]
		out := make([]image.Image, 0, conditioningCount)
		for _, i := range picked {
			out = append(out, imgs[i])
		}
		return out
	}
	out := make([]image.Image, 0, conditioningCount)
	out = append(out, imgs...)
	for len(out) < conditioningCount {
		out = append(out, imgs[r.Intn(len(imgs))])
	}
	return out
}
