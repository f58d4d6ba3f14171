package imagegen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"aiprofile/internal/domain"
	"aiprofile/pkg/imgcodec"
)

// PresetSource supplies the base64 pose preset for a gender category.
type PresetSource interface {
	Pose(gender domain.Gender) (string, error)
}

// DirPresets loads pose presets from a directory ({dir}/female.png,
// {dir}/male.png) and caches the encoded result. Male and young-male share
// a preset.
type DirPresets struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

// NewDirPresets builds a preset source rooted at dir.
func NewDirPresets(dir string) *DirPresets {
	return &DirPresets{dir: dir, cache: make(map[string]string)}
}

func (p *DirPresets) Pose(gender domain.Gender) (string, error) {
	var name string
	switch gender {
	case domain.GenderFemale:
		name = "female.png"
	case domain.GenderMale, domain.GenderMaleYoung:
		name = "male.png"
	default:
		return "", fmt.Errorf("imagegen: %w: %q", domain.ErrInvalidGender, gender)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[name]; ok {
		return cached, nil
	}

	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		return "", fmt.Errorf("imagegen: read preset %s: %w", name, err)
	}
	img, err := imgcodec.DecodePNG(data)
	if err != nil {
		return "", fmt.Errorf("imagegen: decode preset %s: %w", name, err)
	}
	encoded, err := imgcodec.EncodeBase64(img)
	if err != nil {
		return "", err
	}
	p.cache[name] = encoded
	return encoded, nil
}
