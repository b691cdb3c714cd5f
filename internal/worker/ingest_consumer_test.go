package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"docqa/features/job"
	"docqa/internal/index"
	"docqa/internal/text"
	"docqa/internal/worker"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, sourceID, rawText string, cfg text.Config) (index.Report, error) {
	args := m.Called(ctx, sourceID, rawText, cfg)
	return args.Get(0).(index.Report), args.Error(1)
}

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) UpdateStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

type MockJobRepo struct {
	mock.Mock
}

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	return m.Called(ctx, j).Error(0)
}

func (m *MockJobRepo) List(ctx context.Context) ([]job.Job, error) {
	args := m.Called(ctx)
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockJobRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockJobRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockJobRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

func newMessage(t *testing.T, payload worker.IngestTaskPayload) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return nsq.NewMessage(nsq.MessageID{}, body)
}

func TestIngestConsumer_Success(t *testing.T) {
	ingestor := new(MockIngestor)
	updater := new(MockUpdater)
	jobRepo := new(MockJobRepo)
	publisher := new(MockPublisher)

	ingestor.On("Ingest", mock.Anything, "src-1", "some document text", text.Config{MaxChars: 1200, OverlapChars: 150}).
		Return(index.Report{Added: 3}, nil)
	updater.On("UpdateStatus", mock.Anything, "src-1", "completed").Return(nil)
	publisher.On("Publish", "ingest.result", mock.Anything).Return(nil)

	consumer := worker.NewIngestConsumer(ingestor, updater, jobRepo, publisher)
	err := consumer.HandleMessage(newMessage(t, worker.IngestTaskPayload{
		SourceID:     "src-1",
		Name:         "report.txt",
		Text:         "some document text",
		MaxChars:     1200,
		OverlapChars: 150,
	}))

	assert.NoError(t, err)
	ingestor.AssertExpectations(t)
	updater.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestIngestConsumer_PoisonPill(t *testing.T) {
	ingestor := new(MockIngestor)
	consumer := worker.NewIngestConsumer(ingestor, new(MockUpdater), new(MockJobRepo), new(MockPublisher))

	msg := nsq.NewMessage(nsq.MessageID{}, []byte("{not json"))
	err := consumer.HandleMessage(msg)

	// Invalid JSON must not be requeued.
	assert.NoError(t, err)
	ingestor.AssertNotCalled(t, "Ingest")
}

func TestIngestConsumer_MissingSourceID(t *testing.T) {
	ingestor := new(MockIngestor)
	consumer := worker.NewIngestConsumer(ingestor, new(MockUpdater), new(MockJobRepo), new(MockPublisher))

	err := consumer.HandleMessage(newMessage(t, worker.IngestTaskPayload{Name: "orphan.txt", Text: "text"}))

	assert.NoError(t, err)
	ingestor.AssertNotCalled(t, "Ingest")
}

func TestIngestConsumer_ChunkConfigError(t *testing.T) {
	ingestor := new(MockIngestor)
	updater := new(MockUpdater)
	jobRepo := new(MockJobRepo)
	publisher := new(MockPublisher)

	ingestor.On("Ingest", mock.Anything, "src-1", mock.Anything, mock.Anything).
		Return(index.Report{}, text.ErrChunkConfig)
	updater.On("UpdateStatus", mock.Anything, "src-1", "failed").Return(nil)
	jobRepo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.SourceID == "src-1" && j.Handler == "ingest-worker"
	})).Return(nil)
	publisher.On("Publish", "ingest.result", mock.Anything).Return(nil)

	consumer := worker.NewIngestConsumer(ingestor, updater, jobRepo, publisher)
	err := consumer.HandleMessage(newMessage(t, worker.IngestTaskPayload{
		SourceID: "src-1",
		Text:     "text",
		MaxChars: 100,
	}))

	// Config errors are permanent: no requeue, failure recorded.
	assert.NoError(t, err)
	updater.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
}

func TestIngestConsumer_TransientErrorRetries(t *testing.T) {
	ingestor := new(MockIngestor)
	jobRepo := new(MockJobRepo)

	ingestor.On("Ingest", mock.Anything, "src-1", mock.Anything, mock.Anything).
		Return(index.Report{}, errors.New("connection refused"))

	consumer := worker.NewIngestConsumer(ingestor, new(MockUpdater), jobRepo, new(MockPublisher))
	err := consumer.HandleMessage(newMessage(t, worker.IngestTaskPayload{
		SourceID: "src-1",
		Text:     "text",
		MaxChars: 100,
	}))

	assert.Error(t, err)
	jobRepo.AssertNotCalled(t, "Save")
}

func TestIngestConsumer_AllEmbeddingsFailedRetries(t *testing.T) {
	ingestor := new(MockIngestor)

	ingestor.On("Ingest", mock.Anything, "src-1", mock.Anything, mock.Anything).
		Return(index.Report{FailedEmbedding: 4}, nil)

	consumer := worker.NewIngestConsumer(ingestor, new(MockUpdater), new(MockJobRepo), new(MockPublisher))
	err := consumer.HandleMessage(newMessage(t, worker.IngestTaskPayload{
		SourceID: "src-1",
		Text:     "text",
		MaxChars: 100,
	}))

	assert.Error(t, err)
}

func TestIngestConsumer_TransientErrorExhaustedRecordsJob(t *testing.T) {
	ingestor := new(MockIngestor)
	updater := new(MockUpdater)
	jobRepo := new(MockJobRepo)
	publisher := new(MockPublisher)

	ingestor.On("Ingest", mock.Anything, "src-1", mock.Anything, mock.Anything).
		Return(index.Report{}, errors.New("connection refused"))
	updater.On("UpdateStatus", mock.Anything, "src-1", "failed").Return(nil)
	jobRepo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.SourceID == "src-1" && j.Handler == "ingest-worker" && j.Error == "connection refused"
	})).Return(nil)
	publisher.On("Publish", "ingest.result", mock.Anything).Return(nil)

	msg := newMessage(t, worker.IngestTaskPayload{
		SourceID: "src-1",
		Text:     "text",
		MaxChars: 100,
	})
	msg.Attempts = worker.MaxIngestAttempts

	consumer := worker.NewIngestConsumer(ingestor, updater, jobRepo, publisher)
	err := consumer.HandleMessage(msg)

	// Final attempt: no requeue, failure recorded for the jobs API.
	assert.NoError(t, err)
	updater.AssertExpectations(t)
	jobRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestIngestConsumer_AllEmbeddingsFailedExhaustedRecordsJob(t *testing.T) {
	ingestor := new(MockIngestor)
	updater := new(MockUpdater)
	jobRepo := new(MockJobRepo)
	publisher := new(MockPublisher)

	ingestor.On("Ingest", mock.Anything, "src-1", mock.Anything, mock.Anything).
		Return(index.Report{FailedEmbedding: 4}, nil)
	updater.On("UpdateStatus", mock.Anything, "src-1", "failed").Return(nil)
	jobRepo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.SourceID == "src-1" && j.Error == "all embeddings failed"
	})).Return(nil)
	publisher.On("Publish", "ingest.result", mock.Anything).Return(nil)

	msg := newMessage(t, worker.IngestTaskPayload{
		SourceID: "src-1",
		Text:     "text",
		MaxChars: 100,
	})
	msg.Attempts = worker.MaxIngestAttempts

	consumer := worker.NewIngestConsumer(ingestor, updater, jobRepo, publisher)
	err := consumer.HandleMessage(msg)

	assert.NoError(t, err)
	jobRepo.AssertExpectations(t)
}

func TestIngestConsumer_EmptyBody(t *testing.T) {
	consumer := worker.NewIngestConsumer(new(MockIngestor), new(MockUpdater), new(MockJobRepo), new(MockPublisher))
	err := consumer.HandleMessage(nsq.NewMessage(nsq.MessageID{}, nil))
	assert.NoError(t, err)
}
