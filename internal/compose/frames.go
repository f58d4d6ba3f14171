package compose

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"aiprofile/internal/domain"
	"aiprofile/pkg/imgcodec"
)

// DirFrameSource loads frame templates ({dir}/{index}.png) and the shape
// masks ({dir}/mask.png, {dir}/round_mask.png) from disk, caching decoded
// images since the asset set is small and fixed.
type DirFrameSource struct {
	dir string

	mu     sync.Mutex
	frames map[int]image.Image
	masks  map[domain.SlotShape]image.Image
}

// NewDirFrameSource builds a frame source rooted at dir.
func NewDirFrameSource(dir string) *DirFrameSource {
	return &DirFrameSource{
		dir:    dir,
		frames: make(map[int]image.Image),
		masks:  make(map[domain.SlotShape]image.Image),
	}
}

func (s *DirFrameSource) Frame(index int) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.frames[index]; ok {
		return img, nil
	}
	img, err := s.load(fmt.Sprintf("%d.png", index))
	if err != nil {
		return nil, err
	}
	s.frames[index] = img
	return img, nil
}

func (s *DirFrameSource) Mask(shape domain.SlotShape) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.masks[shape]; ok {
		return img, nil
	}
	var name string
	switch shape {
	case domain.ShapePortrait:
		name = "mask.png"
	case domain.ShapeRound:
		name = "round_mask.png"
	default:
		return nil, fmt.Errorf("compose: unknown slot shape %q", shape)
	}
	img, err := s.load(name)
	if err != nil {
		return nil, err
	}
	s.masks[shape] = img
	return img, nil
}

func (s *DirFrameSource) load(name string) (image.Image, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("compose: read asset %s: %w", name, err)
	}
	img, err := imgcodec.DecodePNG(data)
	if err != nil {
		return nil, fmt.Errorf("compose: decode asset %s: %w", name, err)
	}
	return img, nil
}
