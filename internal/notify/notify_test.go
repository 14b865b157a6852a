package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

type fakePublisher struct {
	inputs []*eventbridge.PutEventsInput
	err    error
	out    *eventbridge.PutEventsOutput
}

func (f *fakePublisher) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

type panickingPublisher struct{}

func (panickingPublisher) PutEvents(context.Context, *eventbridge.PutEventsInput, ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	panic("connection pool exhausted")
}

func decodeDetail(t *testing.T, in *eventbridge.PutEventsInput) map[string]interface{} {
	t.Helper()
	if len(in.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(in.Entries))
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(aws.ToString(in.Entries[0].Detail)), &doc); err != nil {
		t.Fatalf("detail is not JSON: %v", err)
	}
	return doc
}

func TestNotify_Body(t *testing.T) {
	tests := []struct {
		name       string
		success    bool
		errMsg     string
		wantStatus string
	}{
		{"success", true, "", StatusSuccess},
		{"failure", false, "upload job-42/generated_svg.zip: boom", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			New(pub, "qr-bus").Notify(context.Background(), tt.success, "job-42", tt.errMsg)

			if len(pub.inputs) != 1 {
				t.Fatalf("expected exactly one publish, got %d", len(pub.inputs))
			}
			entry := pub.inputs[0].Entries[0]
			if aws.ToString(entry.EventBusName) != "qr-bus" {
				t.Errorf("EventBusName = %q", aws.ToString(entry.EventBusName))
			}
			if aws.ToString(entry.Source) != Source || aws.ToString(entry.DetailType) != DetailType {
				t.Errorf("unexpected envelope: %q %q", aws.ToString(entry.Source), aws.ToString(entry.DetailType))
			}

			doc := decodeDetail(t, pub.inputs[0])
			if doc["filePath"] != "job-42" {
				t.Errorf("filePath = %v", doc["filePath"])
			}
			if doc["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", doc["status"], tt.wantStatus)
			}
			if msg, ok := doc["errorMessage"]; !ok || msg != tt.errMsg {
				t.Errorf("errorMessage = %v, want %q", msg, tt.errMsg)
			}
		})
	}
}

func TestNotify_SwallowsTransportError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("throttled")}
	// Must return normally.
	New(pub, "qr-bus").Notify(context.Background(), false, "job-42", "cause")
	if len(pub.inputs) != 1 {
		t.Errorf("expected one publish attempt, got %d", len(pub.inputs))
	}
}

func TestNotify_SwallowsEntryFailure(t *testing.T) {
	pub := &fakePublisher{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{
			{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
		},
	}}
	New(pub, "qr-bus").Notify(context.Background(), true, "job-42", "")
}

func TestNotify_RecoversPublisherPanic(t *testing.T) {
	n := New(panickingPublisher{}, "qr-bus")

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Notify() panicked: %v", r)
		}
	}()
	n.Notify(context.Background(), false, "job-42", "svg upload failed")
}

func TestNotify_NilClient(t *testing.T) {
	New(nil, "qr-bus").Notify(context.Background(), true, "job-42", "")

	var n *Notifier
	n.Notify(context.Background(), true, "job-42", "")
}

func TestNewOutcome(t *testing.T) {
	if got := NewOutcome(true, "p", ""); got.Status != StatusSuccess {
		t.Errorf("NewOutcome(true).Status = %q", got.Status)
	}
	if got := NewOutcome(false, "p", "x"); got.Status != StatusFailed || got.ErrorMessage != "x" {
		t.Errorf("NewOutcome(false) = %+v", got)
	}
}
