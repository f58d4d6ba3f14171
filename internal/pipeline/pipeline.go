// Package pipeline orchestrates one job end to end: fetch sources, build the
// identity model, and for each background variant preprocess, generate, and
// composite. It fails fast: the first stage error aborts the job and nothing
// partial survives.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"time"

	"aiprofile/internal/domain"
	"aiprofile/internal/imagegen"
	"aiprofile/internal/infra"
	"aiprofile/internal/storage"
	"aiprofile/pkg/imgcodec"
)

// Preprocessor normalizes source photographs for one background variant.
type Preprocessor interface {
	Run(ctx context.Context, images []image.Image, variant domain.Variant) ([]image.Image, error)
}

// Generator is the generative-backend capability the pipeline drives.
type Generator interface {
	BuildFaceModel(ctx context.Context, images []image.Image, modelName string) (domain.ModelHandle, error)
	Generate(ctx context.Context, req imagegen.GenerateRequest) ([]image.Image, error)
}

// Compositor pastes generated portraits into a variant's frame slots.
type Compositor interface {
	Composite(generated []image.Image, variant domain.Variant) ([]image.Image, error)
}

// Runner executes the per-job state machine. All intermediate state (the
// model handle, image buffers) is local to one Run call and garbage after
// it returns; nothing is shared across jobs.
type Runner struct {
	blobs   storage.BlobStore
	pre     Preprocessor
	gen     Generator
	comp    Compositor
	logger  infra.Logger
	newRand func() *rand.Rand
}

// NewRunner wires the pipeline's collaborators.
func NewRunner(blobs storage.BlobStore, pre Preprocessor, gen Generator, comp Compositor, logger infra.Logger) *Runner {
	return &Runner{
		blobs:  blobs,
		pre:    pre,
		gen:    gen,
		comp:   comp,
		logger: logger,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// WithRandSource overrides conditioning-sample randomness, for tests.
func (r *Runner) WithRandSource(newRand func() *rand.Rand) *Runner {
	r.newRand = newRand
	return r
}

// Run executes the job and returns the composited deliverables concatenated
// in variant enumeration order, or a classified *domain.Failure. Partial
// results from earlier variants are discarded on any failure.
func (r *Runner) Run(ctx context.Context, req *domain.JobRequest) ([]image.Image, error) {
	log := r.logger.With().Str("job_id", req.ID).Logger()
	started := time.Now()
	log.Info().Int("sources", len(req.ImagePaths)).Msg("pipeline: job started")

	sources, err := r.fetchSources(ctx, req)
	if err != nil {
		return nil, domain.Fail(domain.KindDownloadFail, err)
	}
	log.Info().Int("fetched", len(sources)).Msg("pipeline: sources fetched")

	variants := req.Variants()
	rng := r.newRand()

	// The identity model is built from the first variant's preprocessing
	// pass; later variants re-preprocess because the background fill
	// differs.
	firstPre, err := r.preprocess(ctx, sources, variants[0], len(req.ImagePaths), log)
	if err != nil {
		return nil, err
	}

	buildStarted := time.Now()
	model, err := r.gen.BuildFaceModel(ctx, firstPre, req.ID)
	if err != nil {
		return nil, domain.Fail(domain.KindBuildFail, err)
	}
	log.Info().Dur("elapsed", time.Since(buildStarted)).Msg("pipeline: identity model built")

	var outputs []image.Image
	for i, variant := range variants {
		processed := firstPre
		if i > 0 {
			processed, err = r.preprocess(ctx, sources, variant, len(req.ImagePaths), log)
			if err != nil {
				return nil, err
			}
		}

		spec := domain.VariantTable[variant]
		generated, err := r.gen.Generate(ctx, imagegen.GenerateRequest{
			Model:        model,
			Variant:      variant,
			Gender:       req.Param.Gender,
			Conditioning: imagegen.SampleConditioning(rng, processed),
			BatchSize:    spec.BatchSize,
		})
		if err != nil {
			return nil, domain.Fail(domain.KindGenerateFail, err)
		}

		composited, err := r.comp.Composite(generated, variant)
		if err != nil {
			return nil, domain.Fail(domain.KindCompositeFail, err)
		}
		outputs = append(outputs, composited...)
		log.Info().Str("variant", string(variant)).Int("images", len(composited)).Msg("pipeline: variant done")
	}

	log.Info().Int("outputs", len(outputs)).Dur("elapsed", time.Since(started)).Msg("pipeline: job completed")
	return outputs, nil
}

func (r *Runner) fetchSources(ctx context.Context, req *domain.JobRequest) ([]image.Image, error) {
	sources := make([]image.Image, 0, len(req.ImagePaths))
	for _, path := range req.ImagePaths {
		data, err := r.blobs.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		img, err := imgcodec.DecodePNG(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		sources = append(sources, img)
	}
	return sources, nil
}

func (r *Runner) preprocess(ctx context.Context, sources []image.Image, variant domain.Variant, requested int, log infra.Logger) ([]image.Image, error) {
	processed, err := r.pre.Run(ctx, sources, variant)
	if err != nil {
		return nil, domain.Fail(domain.KindPreprocessFail, err)
	}
	if len(processed) == 0 {
		return nil, domain.Fail(domain.KindPreprocessFail,
			fmt.Errorf("variant %s: %w", variant, domain.ErrNoFaceDetected))
	}
	if len(processed) < requested {
		log.Warn().Str("variant", string(variant)).
			Int("requested", requested).Int("processed", len(processed)).
			Msg("pipeline: some sources had no detectable face")
	}
	return processed, nil
}
