package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRouteFor(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		notBefore        *time.Time
		delayedAvailable bool
		wantDelayed      bool
		wantKey          string
		wantHeader       any
		wantExpiration   string
	}{
		{name: "immediate", delayedAvailable: true, wantKey: jobsRoutingKey},
		{name: "due in the past", notBefore: timePtr(now.Add(-time.Second)), delayedAvailable: true, wantKey: jobsRoutingKey},
		{
			name:             "delayed exchange",
			notBefore:        timePtr(now.Add(90 * time.Second)),
			delayedAvailable: true,
			wantDelayed:      true,
			wantKey:          jobsRoutingKey,
			wantHeader:       int64(90000),
		},
		{
			name:           "wait queue fallback",
			notBefore:      timePtr(now.Add(5 * time.Minute)),
			wantKey:        waitRoutingKey,
			wantExpiration: "300000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := NewCycleJob(uuid.New(), false)
			job.NotBefore = tt.notBefore
			var p amqp.Publishing

			delayed, key := routeFor(job, tt.delayedAvailable, now, &p)

			if delayed != tt.wantDelayed {
				t.Errorf("delayed = %v, want %v", delayed, tt.wantDelayed)
			}
			if key != tt.wantKey {
				t.Errorf("routing key = %q, want %q", key, tt.wantKey)
			}
			if tt.wantHeader != nil && p.Headers["x-delay"] != tt.wantHeader {
				t.Errorf("x-delay = %v, want %v", p.Headers["x-delay"], tt.wantHeader)
			}
			if p.Expiration != tt.wantExpiration {
				t.Errorf("expiration = %q, want %q", p.Expiration, tt.wantExpiration)
			}
		})
	}
}

type recordingAcker struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (r *recordingAcker) Ack(tag uint64, _ bool) error {
	r.acked = append(r.acked, tag)
	return nil
}

func (r *recordingAcker) Nack(tag uint64, _ bool, requeue bool) error {
	r.nacked = append(r.nacked, tag)
	r.requeue = append(r.requeue, requeue)
	return nil
}

func (r *recordingAcker) Reject(tag uint64, requeue bool) error {
	return r.Nack(tag, false, requeue)
}

func TestMessage_AckNack(t *testing.T) {
	t.Parallel()

	acker := &recordingAcker{}
	msg := &Message{Job: NewCycleJob(uuid.New(), false), DeliveryTag: 7, Acker: acker}

	if err := msg.Ack(); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := msg.Nack(false); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	if len(acker.acked) != 1 || acker.acked[0] != 7 {
		t.Errorf("acked = %v", acker.acked)
	}
	if len(acker.nacked) != 1 || acker.requeue[0] {
		t.Errorf("expected one nack without requeue, got %v %v", acker.nacked, acker.requeue)
	}
	if msg.GetJob() != msg.Job {
		t.Error("GetJob returned a different job")
	}
}
