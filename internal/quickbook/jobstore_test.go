package quickbook

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

func TestJobStorePutQueuedPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	job := &Job{
		JobID:         "job-123",
		PatientID:     "patient-1",
		TreatmentType: "cleaning",
	}

	if err := store.PutQueued(context.Background(), job); err != nil {
		t.Fatalf("PutQueued returned error: %v", err)
	}

	if mock.putInput == nil {
		t.Fatalf("expected PutItem to be called")
	}

	var stored Job
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}

	if stored.Status != JobStatusQueued {
		t.Fatalf("expected status queued, got %s", stored.Status)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt == 0 {
		t.Fatal("expected TTL to be set")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}

	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(jobId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestJobStorePutQueuedNilJob(t *testing.T) {
	store := NewJobStore(&mockDynamo{}, "quickbook_jobs", logging.Default())
	if err := store.PutQueued(context.Background(), nil); err == nil {
		t.Fatal("expected error when job is nil")
	}
}

func TestJobStoreMarkStepSetsRunning(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	if err := store.MarkStep(context.Background(), "job-123", StepFindSlot); err != nil {
		t.Fatalf("MarkStep returned error: %v", err)
	}

	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}
	update := mock.updateInputs[0]

	values := update.ExpressionAttributeValues
	if status := values[":status"].(*types.AttributeValueMemberS).Value; status != string(JobStatusRunning) {
		t.Fatalf("expected running status, got %s", status)
	}
	if step := values[":step"].(*types.AttributeValueMemberS).Value; step != StepFindSlot {
		t.Fatalf("expected step find_slot, got %s", step)
	}
	if expr := update.ConditionExpression; expr == nil || *expr != "attribute_exists(jobId)" {
		t.Fatalf("expected condition expression to reject unknown jobs, got %v", expr)
	}
}

func TestJobStoreMarkCompletedStoresAppointment(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	appt := &scheduling.Appointment{
		ID:         "appt-1",
		PatientID:  "patient-1",
		DoctorName: "Dr. Smith",
		Date:       "2025-01-07",
		Time:       "9:00 AM",
		Status:     scheduling.StatusPending,
	}

	if err := store.MarkCompleted(context.Background(), "job-123", appt); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}

	update := mock.updateInputs[0]

	names := update.ExpressionAttributeNames
	if names["#status"] != "status" || names["#error"] != "errorMessage" {
		t.Fatalf("expected reserved attribute names to be aliased, got %v", names)
	}

	values := update.ExpressionAttributeValues
	if status := values[":status"].(*types.AttributeValueMemberS).Value; status != string(JobStatusCompleted) {
		t.Fatalf("expected completed status, got %s", status)
	}
	if step := values[":step"].(*types.AttributeValueMemberS).Value; step != StepComplete {
		t.Fatalf("expected step complete, got %s", step)
	}
	if _, ok := values[":appointment"].(*types.AttributeValueMemberM); !ok {
		t.Fatalf("expected marshalled appointment attribute, got %T", values[":appointment"])
	}
}

func TestJobStoreMarkFailedSetsNullAppointment(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	if err := store.MarkFailed(context.Background(), "job-123", FailCodeNoAvailability, "no open slots"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	update := mock.updateInputs[0]
	values := update.ExpressionAttributeValues
	if _, ok := values[":appointment"].(*types.AttributeValueMemberNULL); !ok {
		t.Fatalf("expected appointment to be set to NULL, got %T", values[":appointment"])
	}
	if code := values[":code"].(*types.AttributeValueMemberS).Value; code != FailCodeNoAvailability {
		t.Fatalf("expected failure code recorded, got %s", code)
	}
}

func TestJobStoreMarkCompletedPropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	err := store.MarkCompleted(context.Background(), "job-1", &scheduling.Appointment{})
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("expected dynamo error, got %v", err)
	}
}

func TestJobStoreGetJobSuccess(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"jobId":  &types.AttributeValueMemberS{Value: "job-42"},
				"status": &types.AttributeValueMemberS{Value: string(JobStatusQueued)},
			},
		},
	}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	job, err := store.GetJob(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if job.JobID != "job-42" || job.Status != JobStatusQueued {
		t.Fatalf("unexpected job result: %#v", job)
	}
}

func TestJobStoreGetJobNotFound(t *testing.T) {
	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{}}
	store := NewJobStore(mock, "quickbook_jobs", logging.Default())

	_, err := store.GetJob(context.Background(), "job-42")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreGetJobEmptyID(t *testing.T) {
	store := NewJobStore(&mockDynamo{}, "quickbook_jobs", logging.Default())
	if _, err := store.GetJob(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty jobID")
	}
}

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}
