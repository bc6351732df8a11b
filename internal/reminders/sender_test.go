package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

type stubNotifier struct {
	sent []Reminder
	errs []error
}

func (n *stubNotifier) SendReminder(ctx context.Context, reminder Reminder) error {
	n.sent = append(n.sent, reminder)
	if len(n.errs) == 0 {
		return nil
	}
	err := n.errs[0]
	n.errs = n.errs[1:]
	return err
}

func dueRow(id uuid.UUID, attempts int) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(reminderColumns()).
		AddRow(id, "appt-1", "patient-1", "Dr. Smith", "cleaning",
			"2025-03-10", "10:30 AM", "pending", attempts, now, nil, nil, now, now)
}

func TestSenderSendsAndMarksSent(t *testing.T) {
	store, mock := newMockStore(t)
	notifier := &stubNotifier{}
	sender := NewSender(store, notifier, nil).WithBatchSize(10).WithMaxAttempts(3)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointment_reminders").
		WithArgs(pgxmock.AnyArg(), 3, 10).
		WillReturnRows(dueRow(id, 0))
	mock.ExpectExec("UPDATE appointment_reminders SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender.drain(context.Background())

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(notifier.sent))
	}
	got := notifier.sent[0]
	if got.AppointmentID != "appt-1" || got.Time != "10:30 AM" {
		t.Fatalf("unexpected reminder sent: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSenderSchedulesRetryOnSendFailure(t *testing.T) {
	store, mock := newMockStore(t)
	notifier := &stubNotifier{errs: []error{errors.New("smtp timeout")}}
	sender := NewSender(store, notifier, nil).WithBatchSize(10).WithMaxAttempts(3)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointment_reminders").
		WithArgs(pgxmock.AnyArg(), 3, 10).
		WillReturnRows(dueRow(id, 1))
	mock.ExpectExec("UPDATE appointment_reminders SET attempts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender.drain(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSenderContinuesWhenMarkSentLosesRace(t *testing.T) {
	store, mock := newMockStore(t)
	notifier := &stubNotifier{}
	sender := NewSender(store, notifier, nil).WithBatchSize(10).WithMaxAttempts(3)

	first := uuid.New()
	second := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows(reminderColumns()).
		AddRow(first, "appt-1", "patient-1", "Dr. Smith", "cleaning",
			"2025-03-10", "10:30 AM", "pending", 0, now, nil, nil, now, now).
		AddRow(second, "appt-2", "patient-2", "Dr. Jones", "whitening",
			"2025-03-10", "2:00 PM", "pending", 0, now, nil, nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM appointment_reminders").
		WithArgs(pgxmock.AnyArg(), 3, 10).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE appointment_reminders SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), first).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE appointment_reminders SET status = 'sent'").
		WithArgs(pgxmock.AnyArg(), second).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sender.drain(context.Background())

	if len(notifier.sent) != 2 {
		t.Fatalf("expected both reminders attempted, got %d", len(notifier.sent))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSenderBackoffDoubles(t *testing.T) {
	sender := NewSender(nil, nil, nil).WithBaseDelay(5 * time.Minute)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
		{10, 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := sender.nextDelay(tt.attempts); got != tt.want {
			t.Errorf("nextDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
