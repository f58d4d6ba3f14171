package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"aiprofile/internal/domain"
	"aiprofile/internal/infra"
)

type fakeAcker struct {
	acks     int
	rejects  int
	requeued bool
}

func (a *fakeAcker) Ack(_ uint64, _ bool) error { a.acks++; return nil }

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.rejects++
	a.requeued = a.requeued || requeue
	return nil
}

func (a *fakeAcker) Reject(_ uint64, requeue bool) error {
	a.rejects++
	a.requeued = a.requeued || requeue
	return nil
}

func (a *fakeAcker) resolutions() int { return a.acks + a.rejects }

type fakeService struct {
	execErr    error
	panicMsg   string
	executed   []string
	execCtx    context.Context
	recorded   []string
	recordKind []domain.Kind
}

func (s *fakeService) Execute(ctx context.Context, req *domain.JobRequest) ([]string, error) {
	s.executed = append(s.executed, req.ID)
	s.execCtx = ctx
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.execErr != nil {
		return nil, s.execErr
	}
	return []string{req.ID + "/1.png"}, nil
}

func (s *fakeService) RecordFailure(_ context.Context, jobID string, err error) domain.Kind {
	s.recorded = append(s.recorded, jobID)
	kind := domain.ClassifyFailure(err)
	s.recordKind = append(s.recordKind, kind)
	return kind
}

type fakeStatus struct {
	running []string
	done    []string
	failed  []string
}

func (s *fakeStatus) MarkRunning(_ context.Context, jobID string) error {
	s.running = append(s.running, jobID)
	return nil
}

func (s *fakeStatus) MarkDone(_ context.Context, jobID string) error {
	s.done = append(s.done, jobID)
	return nil
}

func (s *fakeStatus) MarkFailed(_ context.Context, jobID string, _ domain.Kind, _ string) error {
	s.failed = append(s.failed, jobID)
	return nil
}

func newTestConsumer(service *fakeService, status *fakeStatus) *Consumer {
	return NewConsumer("amqp://unused", "ai-profile", service, status, infra.NewLogger("test"))
}

func delivery(acker *fakeAcker, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, Body: []byte(body)}
}

const validBody = `{"id":"abc","email":"u@example.com","userId":"u-1","imagePaths":["uploads/a.png"],"requestedAt":"2024-01-15T10:00:00Z","title":"t","param":{"gender":"MALE"}}`

func TestHandleDeliverySuccessAcks(t *testing.T) {
	service := &fakeService{}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	newTestConsumer(service, status).handleDelivery(context.Background(), delivery(acker, validBody))

	if acker.acks != 1 || acker.rejects != 0 {
		t.Fatalf("expected single ack, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if len(service.executed) != 1 || service.executed[0] != "abc" {
		t.Fatalf("execute calls: %v", service.executed)
	}
	if len(status.running) != 1 || len(status.done) != 1 {
		t.Fatalf("status transitions: running=%v done=%v", status.running, status.done)
	}
	if len(service.recorded) != 0 {
		t.Fatalf("no failure may be recorded on success")
	}
}

func TestHandleDeliveryExecutionFailureRejectsWithoutRequeue(t *testing.T) {
	service := &fakeService{execErr: domain.Fail(domain.KindGenerateFail, domain.ErrBackendRejected)}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	newTestConsumer(service, status).handleDelivery(context.Background(), delivery(acker, validBody))

	if acker.resolutions() != 1 || acker.rejects != 1 {
		t.Fatalf("expected single reject, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if acker.requeued {
		t.Fatalf("failed deliveries must not be requeued")
	}
	if len(service.recorded) != 1 || service.recorded[0] != "abc" {
		t.Fatalf("failure record calls: %v", service.recorded)
	}
	if service.recordKind[0] != domain.KindGenerateFail {
		t.Fatalf("kind mismatch: %s", service.recordKind[0])
	}
	if len(status.failed) != 1 {
		t.Fatalf("status failed transitions: %v", status.failed)
	}
}

func TestHandleDeliveryMalformedJSON(t *testing.T) {
	service := &fakeService{}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	newTestConsumer(service, status).handleDelivery(context.Background(), delivery(acker, `{not json`))

	if acker.resolutions() != 1 || acker.rejects != 1 || acker.requeued {
		t.Fatalf("expected single reject without requeue, got acks=%d rejects=%d requeued=%v",
			acker.acks, acker.rejects, acker.requeued)
	}
	if len(service.executed) != 0 {
		t.Fatalf("malformed message must not execute")
	}
	if len(service.recorded) != 1 || service.recorded[0] != domain.UnknownJobID {
		t.Fatalf("expected sentinel-id failure record, got %v", service.recorded)
	}
}

func TestHandleDeliveryMalformedRecoversID(t *testing.T) {
	service := &fakeService{}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	// Parseable JSON with an id but failing validation (no images).
	body := `{"id":"abc","param":{"gender":"MALE"}}`
	newTestConsumer(service, status).handleDelivery(context.Background(), delivery(acker, body))

	if len(service.recorded) != 1 || service.recorded[0] != "abc" {
		t.Fatalf("expected recovered job id, got %v", service.recorded)
	}
	if service.recordKind[0] != domain.KindMalformed {
		t.Fatalf("kind mismatch: %s", service.recordKind[0])
	}
	if acker.rejects != 1 {
		t.Fatalf("expected reject, got %d", acker.rejects)
	}
}

func TestHandleDeliveryPanicRejectsOnce(t *testing.T) {
	service := &fakeService{panicMsg: "nil map write"}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	newTestConsumer(service, status).handleDelivery(context.Background(), delivery(acker, validBody))

	if acker.resolutions() != 1 || acker.rejects != 1 || acker.requeued {
		t.Fatalf("expected single reject without requeue after panic, got acks=%d rejects=%d requeued=%v",
			acker.acks, acker.rejects, acker.requeued)
	}
	if len(service.recorded) != 1 || service.recorded[0] != "abc" {
		t.Fatalf("panic must record a failure for the job: %v", service.recorded)
	}
	if service.recordKind[0] != domain.KindUnknown {
		t.Fatalf("kind mismatch: %s", service.recordKind[0])
	}
}

func TestHandleDeliveryDetachedFromShutdown(t *testing.T) {
	service := &fakeService{}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // worker shutting down while the delivery is in flight

	newTestConsumer(service, status).handleDelivery(ctx, delivery(acker, validBody))

	if len(service.executed) != 1 {
		t.Fatalf("job must still run during shutdown: %v", service.executed)
	}
	if service.execCtx.Err() != nil {
		t.Fatalf("job context must not carry the shutdown cancellation: %v", service.execCtx.Err())
	}
	if acker.acks != 1 || acker.rejects != 0 {
		t.Fatalf("expected clean ack, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if len(service.recorded) != 0 {
		t.Fatalf("shutdown must not be recorded as a job failure: %v", service.recorded)
	}
}

func TestRetryCount(t *testing.T) {
	if got := retryCount(amqp.Delivery{Headers: amqp.Table{retryCountHeader: int32(2)}}); got != 2 {
		t.Fatalf("int32 header: got %d", got)
	}
	if got := retryCount(amqp.Delivery{Headers: amqp.Table{retryCountHeader: int64(3)}}); got != 3 {
		t.Fatalf("int64 header: got %d", got)
	}
	if got := retryCount(amqp.Delivery{Redelivered: true}); got != 1 {
		t.Fatalf("redelivered without header: got %d", got)
	}
	if got := retryCount(amqp.Delivery{}); got != 0 {
		t.Fatalf("fresh delivery: got %d", got)
	}
}

func TestRecoverJobID(t *testing.T) {
	if got := recoverJobID([]byte(`{"id":"xyz","junk":`)); got != domain.UnknownJobID {
		t.Fatalf("broken JSON must yield sentinel, got %s", got)
	}
	if got := recoverJobID([]byte(`{"id":"xyz"}`)); got != "xyz" {
		t.Fatalf("got %s", got)
	}
	if got := recoverJobID([]byte(`{}`)); got != domain.UnknownJobID {
		t.Fatalf("missing id must yield sentinel, got %s", got)
	}
}

func TestHandleDeliveryUploadFailure(t *testing.T) {
	service := &fakeService{execErr: domain.Fail(domain.KindUploadFail, errors.New("bucket down"))}
	status := &fakeStatus{}
	acker := &fakeAcker{}

	newTestConsumer(service, status).handleDelivery(context.Background(), delivery(acker, validBody))

	if service.recordKind[0] != domain.KindUploadFail {
		t.Fatalf("kind mismatch: %s", service.recordKind[0])
	}
	if acker.acks != 0 {
		t.Fatalf("upload failure must not ack")
	}
}
