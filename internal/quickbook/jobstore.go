package quickbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus is the lifecycle of a quick-book job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Pipeline steps, persisted on the job as progress markers so the
// portal can show where a slow job is.
const (
	StepSelectType = "select_type"
	StepFindSlot   = "find_slot"
	StepConfirm    = "confirm"
	StepComplete   = "complete"
)

// Failure codes recorded on failed jobs so the portal can branch on the
// reason without parsing messages.
const (
	FailCodeUnknownTreatment = "unknown_treatment"
	FailCodeNoAvailability   = "no_availability"
	FailCodeInvalidRequest   = "invalid_request"
	FailCodeInternal         = "internal"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("quickbook: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Job captures the persisted state of one guided booking request.
type Job struct {
	JobID         string                  `dynamodbav:"jobId" json:"jobId"`
	PatientID     string                  `dynamodbav:"patientId" json:"patientId"`
	TreatmentType string                  `dynamodbav:"treatmentType" json:"treatmentType"`
	Notes         string                  `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	Status        JobStatus               `dynamodbav:"status" json:"status"`
	Step          string                  `dynamodbav:"step,omitempty" json:"step,omitempty"`
	Appointment   *scheduling.Appointment `dynamodbav:"appointment,omitempty" json:"appointment,omitempty"`
	ErrorCode     string                  `dynamodbav:"errorCode,omitempty" json:"errorCode,omitempty"`
	ErrorMessage  string                  `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt     string                  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string                  `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt     int64                   `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder persists new jobs and serves status reads.
type JobRecorder interface {
	PutQueued(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// JobUpdater advances a job through the pipeline.
type JobUpdater interface {
	MarkStep(ctx context.Context, jobID, step string) error
	MarkCompleted(ctx context.Context, jobID string, appt *scheduling.Appointment) error
	MarkFailed(ctx context.Context, jobID, code, errMsg string) error
}

// JobStore persists job records to DynamoDB. Records expire via TTL a
// day after creation; a quick-book result nobody polled for in 24 hours
// is stale anyway.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ JobRecorder = (*JobStore)(nil)
var _ JobUpdater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("quickbook: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("quickbook: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// PutQueued inserts a new queued job record.
func (s *JobStore) PutQueued(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("quickbook: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = JobStatusQueued
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("quickbook: failed to marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("quickbook: failed to persist job: %w", err)
	}
	return nil
}

// MarkStep records that the job is running the named step.
func (s *JobStore) MarkStep(ctx context.Context, jobID, step string) error {
	if jobID == "" {
		return errors.New("quickbook: jobID required")
	}
	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusRunning)},
			":step":    &types.AttributeValueMemberS{Value: step},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#step":    "step",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #step = :step, #updated = :updated",
	)
}

// MarkCompleted records the booked appointment on the job.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, appt *scheduling.Appointment) error {
	if jobID == "" {
		return errors.New("quickbook: jobID required")
	}
	if appt == nil {
		appt = &scheduling.Appointment{}
	}
	apptAttr, err := attributevalue.Marshal(appt)
	if err != nil {
		return fmt.Errorf("quickbook: failed to marshal appointment: %w", err)
	}

	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":      &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":step":        &types.AttributeValueMemberS{Value: StepComplete},
			":appointment": apptAttr,
			":code":        &types.AttributeValueMemberS{Value: ""},
			":error":       &types.AttributeValueMemberS{Value: ""},
			":updated":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":      "status",
			"#step":        "step",
			"#appointment": "appointment",
			"#code":        "errorCode",
			"#error":       "errorMessage",
			"#updated":     "updatedAt",
		},
		"SET #status = :status, #step = :step, #appointment = :appointment, #code = :code, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a job to the failed state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID, code, errMsg string) error {
	if jobID == "" {
		return errors.New("quickbook: jobID required")
	}
	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":      &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":appointment": &types.AttributeValueMemberNULL{Value: true},
			":code":        &types.AttributeValueMemberS{Value: code},
			":error":       &types.AttributeValueMemberS{Value: errMsg},
			":updated":     &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":      "status",
			"#appointment": "appointment",
			"#code":        "errorCode",
			"#error":       "errorMessage",
			"#updated":     "updatedAt",
		},
		"SET #status = :status, #appointment = :appointment, #code = :code, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, errors.New("quickbook: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("quickbook: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job Job
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("quickbook: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("quickbook: failed to update job %s: %w", jobID, err)
	}
	return nil
}
