package kafka

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type sample struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "search:ranked", Value: sample{Type: "search", Count: 2}},
		{Key: "document:insert", Value: map[string]int{"id": 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d", len(msgs))
	}
	if string(msgs[0].Key) != "search:ranked" {
		t.Errorf("key = %q", msgs[0].Key)
	}
	if string(msgs[0].Value) != `{"type":"search","count":2}` {
		t.Errorf("value = %s", msgs[0].Value)
	}
	if h := msgs[1].Headers; len(h) != 1 || h[0].Key != contentTypeHeader || string(h[0].Value) != "application/json" {
		t.Errorf("headers = %v", h)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := encode([]Event{{Key: "bad", Value: math.Inf(1)}}); err == nil {
		t.Error("expected error for +Inf")
	}
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[sample]([]byte(`{"type":"document","count":7}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "document" || got.Count != 7 {
		t.Errorf("got %+v", got)
	}
	if _, err := DecodeJSON[sample]([]byte(`{`)); err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestConsumerPing(t *testing.T) {
	c := &Consumer{}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("fresh consumer: %v", err)
	}
	c.lastError.Store(&fetchError{at: time.Now(), err: errors.New("broker unreachable")})
	if err := c.Ping(context.Background()); err == nil {
		t.Error("recent fetch error not reported")
	}
	c.lastError.Store(&fetchError{at: time.Now().Add(-2 * fetchErrorWindow), err: errors.New("old")})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("stale fetch error reported: %v", err)
	}
}
