package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcHandler func(method string, params map[string]any) (status int, body any)

func newServer(t *testing.T, h rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		status, body := h(req.Method, req.Params)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func result(v any) map[string]any { return map[string]any{"result": v} }

func TestClient_CallDecodesResult(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (int, any) {
		assert.Equal(t, "health", method)
		return http.StatusOK, result("ok")
	})

	c := New("store", srv.URL+"/")
	var out string
	found, err := c.Call(context.Background(), "health", nil, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ok", out)
	assert.NoError(t, c.Health(context.Background()))
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		transient bool
		code      string
	}{
		{name: "server error", status: http.StatusBadGateway, body: map[string]any{"error": "upstream"}, transient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: map[string]any{}, transient: true},
		{name: "unknown method", status: http.StatusBadRequest, body: map[string]any{"error": "Unknown method"}},
		{name: "structured error", status: http.StatusOK, body: map[string]any{"error": map[string]any{"code": "mailbox_invalid", "message": "no such user"}}, code: "mailbox_invalid"},
		{name: "bare status", status: http.StatusNotFound, body: map[string]any{}, code: "http_404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(string, map[string]any) (int, any) { return tt.status, tt.body })
			_, err := New("email", srv.URL).Call(context.Background(), "email.send", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.transient, core.IsTransient(err))

			if !tt.transient {
				re, ok := core.IsRemoteError(err)
				require.True(t, ok)
				assert.Equal(t, "email", re.Service)
				assert.Equal(t, tt.code, re.Code)
			}
		})
	}
}

func TestClient_UnknownMethod(t *testing.T) {
	srv := newServer(t, func(string, map[string]any) (int, any) {
		return http.StatusBadRequest, map[string]any{"error": "Unknown method"}
	})
	_, err := New("search", srv.URL).Call(context.Background(), "search.contacts", nil, nil)
	assert.True(t, IsUnknownMethod(err))
	assert.False(t, IsUnknownMethod(errors.New("other")))
}

func TestClient_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New("search", url).Call(context.Background(), "search.query", nil, nil)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New("calendar", srv.URL, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	_, err := c.Call(context.Background(), "calendar.suggest_slots", nil, nil)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}

func TestClient_ObserverSeesEveryCall(t *testing.T) {
	srv := newServer(t, func(string, map[string]any) (int, any) { return http.StatusOK, result(nil) })

	var calls atomic.Int32
	c := New("store", srv.URL, func(o *Options) {
		o.Observer = func(service, method string, _ time.Duration, err error) {
			assert.Equal(t, "store", service)
			assert.Equal(t, "store.get_prospect", method)
			assert.NoError(t, err)
			calls.Add(1)
		}
		o.Limiter = NewLimiter(0)
	})

	found, err := c.Call(context.Background(), "store.get_prospect", map[string]any{"id": "x"}, nil)
	require.NoError(t, err)
	assert.False(t, found)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSearchClient_Query(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (int, any) {
		assert.Equal(t, "search.query", method)
		assert.Equal(t, "Acme customer experience", params["q"])
		return http.StatusOK, result([]map[string]any{
			{"text": "Acme launches NPS program", "source": "news", "ts": "2025-01-02T10:00:00", "confidence": 0.9},
			{"text": "Acme hiring support leads", "source": "jobs", "ts": "2025-01-03T10:00:00Z"},
			{"text": "third", "source": "blog", "ts": "2025-01-04T10:00:00.123456"},
		})
	})

	hits, err := NewSearchClient(srv.URL).Query(context.Background(), "Acme customer experience", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0.9, hits[0].Confidence)
	assert.Equal(t, DefaultSearchConfidence, hits[1].Confidence)
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), hits[0].Timestamp)
}

func TestSearchClient_FindContacts(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (int, any) {
		assert.Equal(t, "search.contacts", method)
		assert.Equal(t, "acme.com", params["domain"])
		return http.StatusOK, result([]map[string]any{
			{"email": "ceo@acme.com", "name": "CEO at Acme", "title": "CEO", "source": "search"},
		})
	})

	contacts, err := NewSearchClient(srv.URL).FindContacts(context.Background(), core.Company{Name: "Acme", Domain: "acme.com"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "acme.com", contacts[0].Domain)
	assert.Equal(t, "CEO", contacts[0].Title)
}

func TestEmailClient_SendAndThread(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (int, any) {
		switch method {
		case "email.send":
			assert.Equal(t, "ceo@acme.com", params["to"])
			assert.Equal(t, "acme:v1", params["idempotency_key"])
			return http.StatusOK, result(map[string]any{"thread_id": "t-1", "message_id": "m-1"})
		case "email.thread":
			if params["prospect_id"] != "acme" {
				return http.StatusOK, result(nil)
			}
			return http.StatusOK, result(map[string]any{
				"id":          "t-1",
				"prospect_id": "acme",
				"messages": []map[string]any{
					{"id": "m-1", "thread_id": "t-1", "direction": "outbound", "to": "ceo@acme.com", "subject": "Hi", "body": "Hello", "sent_at": "2025-01-02T10:00:00"},
				},
			})
		}
		return http.StatusBadRequest, map[string]any{"error": "Unknown method"}
	})

	email := NewEmailClient(srv.URL)
	receipt, err := email.Send(context.Background(), core.SendRequest{To: "ceo@acme.com", Subject: "Hi", Body: "Hello", ProspectID: "acme", IdempotencyKey: "acme:v1"})
	require.NoError(t, err)
	assert.Equal(t, core.SendReceipt{ThreadID: "t-1", MessageID: "m-1"}, receipt)

	thread, err := email.Thread(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, thread)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "outbound", thread.Messages[0].From)
	assert.Equal(t, "Hello", thread.Messages[0].Body)

	none, err := email.Thread(context.Background(), "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCalendarClient(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (int, any) {
		switch method {
		case "calendar.suggest_slots":
			return http.StatusOK, result([]map[string]any{
				{"start_iso": "2025-01-03T14:00:00", "end_iso": "2025-01-03T14:30:00"},
			})
		case "calendar.generate_ics":
			assert.Equal(t, "Intro call", params["summary"])
			assert.Equal(t, "2025-01-03T14:00:00Z", params["start_iso"])
			return http.StatusOK, result("BEGIN:VCALENDAR\nEND:VCALENDAR")
		}
		return http.StatusBadRequest, map[string]any{"error": "Unknown method"}
	})

	cal := NewCalendarClient(srv.URL)
	slots, err := cal.SuggestSlots(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 30*time.Minute, slots[0].End.Sub(slots[0].Start))

	ics, err := cal.GenerateICS(context.Background(), "Intro call", slots[0])
	require.NoError(t, err)
	assert.Contains(t, ics, "BEGIN:VCALENDAR")
}

func TestStoreClient_GetMissingIsNotFound(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (int, any) {
		switch method {
		case "store.get_prospect":
			if params["id"] == "acme" {
				return http.StatusOK, result(core.NewProspect(core.Company{ID: "acme", Domain: "acme.com"}))
			}
			return http.StatusOK, result(nil)
		case "store.save_handoff", "store.save_contact", "store.clear_all":
			return http.StatusOK, result("ok")
		case "store.list_contacts_by_domain":
			return http.StatusOK, result([]map[string]any{{"email": "a@acme.com", "domain": "acme.com", "prospect_id": "acme"}})
		}
		return http.StatusBadRequest, map[string]any{"error": "Unknown method"}
	})

	st := NewStoreClient(srv.URL)
	ctx := context.Background()

	p, err := st.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", p.Company.Domain)
	assert.NotNil(t, p.Facts)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	contacts, err := st.ListContacts(ctx, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, []core.Contact{{Email: "a@acme.com", Domain: "acme.com"}}, contacts)

	require.NoError(t, st.SaveContact(ctx, "acme", core.Contact{Email: "b@acme.com"}))
	require.NoError(t, st.SaveHandoff(ctx, core.HandoffPacket{ProspectID: "acme"}))
	require.NoError(t, st.Reset(ctx))
}

func TestTimestamp_Layouts(t *testing.T) {
	for _, in := range []string{`"2025-01-02T10:00:00"`, `"2025-01-02T10:00:00Z"`, `"2025-01-02T12:00:00+02:00"`, `"2025-01-02 10:00:00"`} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.True(t, ts.Equal(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)), in)
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
