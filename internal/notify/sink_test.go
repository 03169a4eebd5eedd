package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSink(t *testing.T) {
	t.Run("accepts mail sent by the order placed handler", func(t *testing.T) {
		sink := NewSink(discardLogger())
		mux := http.NewServeMux()
		mux.HandleFunc("POST /send", sink.HandleSend)
		mux.HandleFunc("GET /messages", sink.HandleList)

		server := httptest.NewServer(mux)
		defer server.Close()

		handler := NewOrderPlacedHandler(server.URL, server.Client(), discardLogger())
		if err := handler.Handle(context.Background(), eventPayload(t)); err != nil {
			t.Fatalf("Handle failed: %v", err)
		}

		resp, err := server.Client().Get(server.URL + "/messages")
		if err != nil {
			t.Fatalf("list mails: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var mails []storedMail
		if err := json.NewDecoder(resp.Body).Decode(&mails); err != nil {
			t.Fatalf("decode mails: %v", err)
		}
		if len(mails) != 1 || mails[0].To != "kai@example.com" {
			t.Fatalf("unexpected mails: %+v", mails)
		}
		if mails[0].ReceivedAt.IsZero() {
			t.Error("expected received_at to be set")
		}
	})

	t.Run("rejects mail without recipient", func(t *testing.T) {
		sink := NewSink(discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{"subject":"hi"}`))
		rec := httptest.NewRecorder()
		sink.HandleSend(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("keeps only the most recent mails", func(t *testing.T) {
		sink := NewSink(discardLogger())

		for i := range sinkCapacity + 5 {
			body := fmt.Sprintf(`{"to":"kai@example.com","subject":"mail %d"}`, i)
			rec := httptest.NewRecorder()
			sink.HandleSend(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body)))
			if rec.Code != http.StatusAccepted {
				t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
			}
		}

		if len(sink.mails) != sinkCapacity {
			t.Fatalf("expected %d mails, got %d", sinkCapacity, len(sink.mails))
		}
		if sink.mails[0].Subject != "mail 5" {
			t.Errorf("expected oldest retained mail to be mail 5, got %s", sink.mails[0].Subject)
		}
	})
}
