package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"strings"
	"testing"

	"aiprofile/internal/domain"
	"aiprofile/internal/imagegen"
	"aiprofile/internal/infra"
	"aiprofile/pkg/imgcodec"
)

type fakeBlobs struct {
	objects map[string][]byte
	puts    []string
	getErr  error
	putErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (b *fakeBlobs) Get(_ context.Context, path string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s not found", path)
	}
	return data, nil
}

func (b *fakeBlobs) Put(_ context.Context, path string, data []byte) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	b.objects[path] = data
	b.puts = append(b.puts, path)
	return path, nil
}

func (b *fakeBlobs) countUnder(prefix string) int {
	n := 0
	for _, p := range b.puts {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

type fakePre struct {
	calls []domain.Variant
	empty bool
	err   error
}

func (p *fakePre) Run(_ context.Context, images []image.Image, variant domain.Variant) ([]image.Image, error) {
	p.calls = append(p.calls, variant)
	if p.err != nil {
		return nil, p.err
	}
	if p.empty {
		return nil, nil
	}
	return images, nil
}

type fakeGen struct {
	buildErr      error
	genErr        error
	genErrVariant domain.Variant
	perCall       int // images returned per generate; 0 means honor BatchSize
	buildCalls    int
	genCalls      []imagegen.GenerateRequest
}

func (g *fakeGen) BuildFaceModel(_ context.Context, images []image.Image, modelName string) (domain.ModelHandle, error) {
	g.buildCalls++
	if g.buildErr != nil {
		return "", g.buildErr
	}
	return domain.ModelHandle(modelName), nil
}

func (g *fakeGen) Generate(_ context.Context, req imagegen.GenerateRequest) ([]image.Image, error) {
	g.genCalls = append(g.genCalls, req)
	if g.genErr != nil && (g.genErrVariant == "" || g.genErrVariant == req.Variant) {
		return nil, g.genErr
	}
	n := req.BatchSize
	if g.perCall > 0 {
		n = g.perCall
	}
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewNRGBA(image.Rect(0, 0, 512, 720))
	}
	return out, nil
}

type fakeComp struct{}

func (fakeComp) Composite(generated []image.Image, variant domain.Variant) ([]image.Image, error) {
	spec, ok := domain.VariantTable[variant]
	if !ok {
		return nil, domain.ErrInvalidVariant
	}
	if len(generated) < len(spec.Slots) {
		return nil, domain.ErrInsufficientImages
	}
	out := make([]image.Image, len(spec.Slots))
	for i := range out {
		out[i] = image.NewNRGBA(image.Rect(0, 0, 1024, 1440))
	}
	return out, nil
}

type fakeNotifier struct {
	completed []string
	failed    []string
}

func (n *fakeNotifier) JobCompleted(_ context.Context, jobID string) {
	n.completed = append(n.completed, jobID)
}

func (n *fakeNotifier) JobFailed(_ context.Context, jobID string, _ string) {
	n.failed = append(n.failed, jobID)
}

type fakeResponseRepo struct {
	created []*domain.ResponseRecord
	err     error
}

func (r *fakeResponseRepo) Create(_ context.Context, rec *domain.ResponseRecord) error {
	if r.err != nil {
		return r.err
	}
	r.created = append(r.created, rec)
	return nil
}

func (r *fakeResponseRepo) GetByID(_ context.Context, id string) (*domain.ResponseRecord, error) {
	for _, rec := range r.created {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeErrorRepo struct {
	created []*domain.ErrorRecord
}

func (r *fakeErrorRepo) Create(_ context.Context, rec *domain.ErrorRecord) error {
	r.created = append(r.created, rec)
	return nil
}

type fixture struct {
	blobs     *fakeBlobs
	pre       *fakePre
	gen       *fakeGen
	notifier  *fakeNotifier
	responses *fakeResponseRepo
	failures  *fakeErrorRepo
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		blobs:     newFakeBlobs(),
		pre:       &fakePre{},
		gen:       &fakeGen{},
		notifier:  &fakeNotifier{},
		responses: &fakeResponseRepo{},
		failures:  &fakeErrorRepo{},
	}
	logger := infra.NewLogger("test")
	runner := NewRunner(f.blobs, f.pre, f.gen, fakeComp{}, logger).
		WithRandSource(func() *rand.Rand { return rand.New(rand.NewSource(1)) })
	f.service = NewService(runner, f.blobs, f.responses, f.failures, f.notifier, logger)
	return f
}

func (f *fixture) seedSources(t *testing.T, req *domain.JobRequest) {
	t.Helper()
	for _, path := range req.ImagePaths {
		data, err := imgcodec.EncodePNG(image.NewNRGBA(image.Rect(0, 0, 64, 64)))
		if err != nil {
			t.Fatalf("encode source: %v", err)
		}
		f.blobs.objects[path] = data
	}
}

func testRequest() *domain.JobRequest {
	return &domain.JobRequest{
		ID:          "abc",
		Email:       "user@example.com",
		UserID:      "u-1",
		ImagePaths:  []string{"uploads/a.png", "uploads/b.png"},
		RequestedAt: "2024-01-15T10:00:00Z",
		Title:       "profile set",
		Param:       domain.RenderParams{Gender: domain.GenderMale},
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)

	paths, err := f.service.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	want := domain.TotalSlots()
	if len(paths) != want {
		t.Fatalf("output count mismatch: got %d want %d", len(paths), want)
	}
	for i, p := range paths {
		expected := fmt.Sprintf("abc/%d.png", i+1)
		if p != expected {
			t.Fatalf("path %d mismatch: got %s want %s", i, p, expected)
		}
	}

	if len(f.responses.created) != 1 {
		t.Fatalf("expected 1 response record, got %d", len(f.responses.created))
	}
	if len(f.failures.created) != 0 {
		t.Fatalf("expected no error records, got %d", len(f.failures.created))
	}
	if len(f.notifier.completed) != 1 || f.notifier.completed[0] != "abc" {
		t.Fatalf("completion notification missing: %v", f.notifier.completed)
	}

	// Identity model built once; preprocessing re-runs per variant since
	// fills differ, reusing only the first pass.
	if f.gen.buildCalls != 1 {
		t.Fatalf("expected 1 build call, got %d", f.gen.buildCalls)
	}
	if len(f.pre.calls) != 3 {
		t.Fatalf("expected 3 preprocess passes, got %d", len(f.pre.calls))
	}
	if len(f.gen.genCalls) != 3 {
		t.Fatalf("expected 3 generate calls, got %d", len(f.gen.genCalls))
	}
	for _, call := range f.gen.genCalls {
		if len(call.Conditioning) != 3 {
			t.Fatalf("expected exactly 3 conditioning images, got %d", len(call.Conditioning))
		}
	}
}

func TestExecuteBackgroundOverride(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	bg := domain.VariantIvory
	req.Param.Background = &bg
	f.seedSources(t, req)

	paths, err := f.service.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 outputs for ivory-only run, got %d", len(paths))
	}
	if len(f.gen.genCalls) != 1 || f.gen.genCalls[0].Variant != domain.VariantIvory {
		t.Fatalf("expected a single ivory generate call: %+v", f.gen.genCalls)
	}
}

func TestExecuteDownloadFail(t *testing.T) {
	f := newFixture(t)
	req := testRequest() // sources not seeded

	_, err := f.service.Execute(context.Background(), req)
	if domain.ClassifyFailure(err) != domain.KindDownloadFail {
		t.Fatalf("expected DownloadFail, got %v", err)
	}
	if len(f.blobs.puts) != 0 {
		t.Fatalf("no uploads expected on failure, got %v", f.blobs.puts)
	}
}

func TestExecuteNoFaceAnywhere(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)
	f.pre.empty = true

	_, err := f.service.Execute(context.Background(), req)
	if domain.ClassifyFailure(err) != domain.KindPreprocessFail {
		t.Fatalf("expected PreprocessFail, got %v", err)
	}
	if !errors.Is(err, domain.ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected in chain, got %v", err)
	}
}

func TestExecuteBuildFail(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)
	f.gen.buildErr = domain.ErrBackendRejected

	_, err := f.service.Execute(context.Background(), req)
	if domain.ClassifyFailure(err) != domain.KindBuildFail {
		t.Fatalf("expected BuildFail, got %v", err)
	}
	if len(f.blobs.puts) != 0 {
		t.Fatalf("no uploads expected, got %v", f.blobs.puts)
	}
	if len(f.gen.genCalls) != 0 {
		t.Fatalf("generation must not run after build failure")
	}
}

func TestExecuteGenerateFailDiscardsEarlierVariants(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)
	f.gen.genErr = domain.ErrBackendUnavailable
	f.gen.genErrVariant = domain.VariantBlack // second variant

	_, err := f.service.Execute(context.Background(), req)
	if domain.ClassifyFailure(err) != domain.KindGenerateFail {
		t.Fatalf("expected GenerateFail, got %v", err)
	}
	if n := f.blobs.countUnder("abc/"); n != 0 {
		t.Fatalf("expected no artifacts under abc/, found %d", n)
	}
	if len(f.responses.created) != 0 {
		t.Fatalf("no success record expected")
	}
}

func TestExecuteBatchShortfallIsCompositeFail(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)
	f.gen.perCall = 1 // backend returns 1 image while variants need 2-3

	_, err := f.service.Execute(context.Background(), req)
	if domain.ClassifyFailure(err) != domain.KindCompositeFail {
		t.Fatalf("expected CompositeFail, got %v", err)
	}
	if n := f.blobs.countUnder("abc/"); n != 0 {
		t.Fatalf("expected no artifacts under abc/, found %d", n)
	}
}

func TestExecuteUploadFail(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)
	f.blobs.putErr = errors.New("bucket down")

	_, err := f.service.Execute(context.Background(), req)
	if domain.ClassifyFailure(err) != domain.KindUploadFail {
		t.Fatalf("expected UploadFail, got %v", err)
	}
	if len(f.responses.created) != 0 {
		t.Fatalf("no success record may exist after upload failure")
	}
}

func TestExecutePersistFail(t *testing.T) {
	f := newFixture(t)
	req := testRequest()
	f.seedSources(t, req)
	f.responses.err = errors.New("db down")

	_, err := f.service.Execute(context.Background(), req)
	if err == nil {
		t.Fatalf("expected error when response record cannot be persisted")
	}
	if len(f.notifier.completed) != 0 {
		t.Fatalf("completion must not be announced when persistence failed")
	}
}

func TestRecordFailure(t *testing.T) {
	f := newFixture(t)

	kind := f.service.RecordFailure(context.Background(), "abc", domain.Fail(domain.KindGenerateFail, domain.ErrBackendRejected))
	if kind != domain.KindGenerateFail {
		t.Fatalf("kind mismatch: %s", kind)
	}
	if len(f.failures.created) != 1 || f.failures.created[0].ID != "abc" {
		t.Fatalf("error record mismatch: %+v", f.failures.created)
	}
	if len(f.notifier.failed) != 1 {
		t.Fatalf("failure notification missing")
	}
}

func TestRecordFailureUnknownID(t *testing.T) {
	f := newFixture(t)
	f.service.RecordFailure(context.Background(), "", errors.New("unparseable"))
	if f.failures.created[0].ID != domain.UnknownJobID {
		t.Fatalf("expected sentinel id, got %s", f.failures.created[0].ID)
	}
}
