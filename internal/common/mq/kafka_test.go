package mq

import (
	"testing"
	"time"
)

func TestKafkaMessageKeepsKeyAndHeaders(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := NewMessage("sub-1", []byte(`{"status":"accepted"}`))
	in.Timestamp = ts
	in.SetHeader("event", "verdict.final")

	km := toKafkaMessage("judge.verdict.final", in)
	if string(km.Key) != "sub-1" || km.Topic != "judge.verdict.final" {
		t.Fatalf("unexpected kafka message %+v", km)
	}

	out := fromKafkaMessage(km)
	if out.ID != "sub-1" || !out.Timestamp.Equal(ts) {
		t.Fatalf("unexpected id/timestamp %q %v", out.ID, out.Timestamp)
	}
	if out.Headers["event"] != "verdict.final" {
		t.Fatalf("custom header lost: %+v", out.Headers)
	}
	if _, ok := out.Headers[headerID]; ok {
		t.Fatalf("reserved header leaked into custom headers")
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
