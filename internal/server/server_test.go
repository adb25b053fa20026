package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxlabel/voxlabel/internal/app"
	"github.com/voxlabel/voxlabel/internal/health"
	"github.com/voxlabel/voxlabel/internal/lifecycle"
	summarizemock "github.com/voxlabel/voxlabel/pkg/provider/summarize/mock"
	"github.com/voxlabel/voxlabel/pkg/provider/transcribe"
	transcribemock "github.com/voxlabel/voxlabel/pkg/provider/transcribe/mock"
)

type serverFixture struct {
	srv         *Server
	handler     http.Handler
	transcriber *transcribemock.Provider
	summarizer  *summarizemock.Provider
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &serverFixture{
		transcriber: &transcribemock.Provider{},
		summarizer:  &summarizemock.Provider{},
	}
	sess := app.New(app.Config{
		Logger:      log,
		Lifecycle:   lifecycle.Config{TimeoutBudget: time.Hour},
		Clock:       lifecycle.NewManualClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
		Transcriber: f.transcriber,
		Summarizer:  f.summarizer,
	})
	t.Cleanup(sess.Stop)

	f.srv = New(Config{
		ListenAddr:      ":0",
		Logger:          log,
		Session:         sess,
		Health:          health.New(),
		MetricsRegistry: prometheus.NewRegistry(),
	})
	// Exercise the production handler, middleware included, rather than the
	// bare route mux.
	f.handler = f.srv.srv.Handler
	return f
}

func (f *serverFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// loadTranscript imports a three-segment, two-speaker transcript.
func (f *serverFixture) loadTranscript(t *testing.T) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/transcript", map[string]any{
		"segments": []map[string]any{
			{"speaker_id": "speaker_1", "text": "Good morning everyone."},
			{"speaker_id": "speaker_2", "text": "Morning. Shall we start?"},
			{"speaker_id": "speaker_1", "text": "Yes, first item is the rollout."},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript import: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_SessionStatus(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/api/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	st := decodeBody[lifecycle.Status](t, rec)
	if st.State != lifecycle.StateActive {
		t.Errorf("state = %q, want active", st.State)
	}
	if st.SessionID == "" {
		t.Error("session id empty")
	}
}

func TestServer_SessionExtendValidation(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/session/extend", map[string]int{"minutes": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero minutes status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/session/extend", map[string]int{"bogus": 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/session/extend", map[string]int{"minutes": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("extend status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	st := decodeBody[lifecycle.Status](t, rec)
	if st.Remaining != time.Hour+10*time.Minute {
		t.Errorf("remaining = %v, want budget plus extension", st.Remaining)
	}
}

func TestServer_TranscriptImportAndSegments(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	rec := f.do(t, http.MethodGet, "/api/segments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("segments status = %d", rec.Code)
	}
	segs := decodeBody[[]map[string]any](t, rec)
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want 3", len(segs))
	}
	if segs[0]["display_name"] != "Unassigned" {
		t.Errorf("display_name = %v, want Unassigned before labeling", segs[0]["display_name"])
	}
}

func TestServer_SpeakersEditFlow(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	rec := f.do(t, http.MethodGet, "/api/speakers", nil)
	got := decodeBody[speakersResponse](t, rec)
	if len(got.Committed) != 2 || got.Unmapped != 2 || got.Pending {
		t.Fatalf("initial speakers = %+v, want 2 unmapped committed entries", got)
	}

	for _, cmd := range []speakerCommand{
		{Action: "start_edit", ID: "speaker_1"},
		{Action: "update", ID: "speaker_1", Name: "Alice", Role: "host"},
		{Action: "confirm_edit", ID: "speaker_1"},
	} {
		rec := f.do(t, http.MethodPost, "/api/speakers", cmd)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d: %s", cmd.Action, rec.Code, rec.Body.String())
		}
	}

	rec = f.do(t, http.MethodPost, "/api/speakers", speakerCommand{Action: "save"})
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/speakers", nil)
	got = decodeBody[speakersResponse](t, rec)
	if got.Mapped != 1 || got.Unmapped != 1 {
		t.Errorf("counts after save = %d/%d, want 1/1", got.Mapped, got.Unmapped)
	}
	if got.Committed[0].Name != "Alice" || got.Committed[0].Role != "host" {
		t.Errorf("committed entry = %+v, want Alice/host", got.Committed[0])
	}
}

func TestServer_UpdateNearDuplicateHint(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	for _, cmd := range []speakerCommand{
		{Action: "start_edit", ID: "speaker_1"},
		{Action: "update", ID: "speaker_1", Name: "John Smith"},
		{Action: "confirm_edit", ID: "speaker_1"},
		{Action: "start_edit", ID: "speaker_2"},
	} {
		if rec := f.do(t, http.MethodPost, "/api/speakers", cmd); rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d: %s", cmd.Action, rec.Code, rec.Body.String())
		}
	}

	rec := f.do(t, http.MethodPost, "/api/speakers", speakerCommand{
		Action: "update", ID: "speaker_2", Name: "Jon Smith",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]any](t, rec)
	hint, _ := got["hint"].(string)
	if !strings.Contains(hint, "John Smith") {
		t.Errorf("hint = %q, want near-duplicate pointing at John Smith", hint)
	}
}

func TestServer_SaveBlockedWhileEditing(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	rec := f.do(t, http.MethodPost, "/api/speakers", speakerCommand{Action: "start_edit", ID: "speaker_1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start_edit status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/speakers", speakerCommand{Action: "save"})
	if rec.Code != http.StatusConflict {
		t.Errorf("save status = %d, want 409 while an entry is editing", rec.Code)
	}
}

func TestServer_SpeakerCommandErrors(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	tests := []struct {
		name string
		cmd  speakerCommand
		want int
	}{
		{"unknown action", speakerCommand{Action: "explode"}, http.StatusBadRequest},
		{"edit unknown id", speakerCommand{Action: "start_edit", ID: "speaker_9"}, http.StatusNotFound},
		{"update without edit mode", speakerCommand{Action: "update", ID: "speaker_1", Name: "Alice"}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/speakers", tc.cmd)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestServer_OverrideApplyAndRevert(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	rec := f.do(t, http.MethodPost, "/api/overrides", map[string]string{
		"speaker_id": "speaker_1", "name": "Alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/segments", nil)
	segs := decodeBody[[]map[string]any](t, rec)
	if segs[0]["display_name"] != "Alice" {
		t.Errorf("display_name = %v, want Alice after override", segs[0]["display_name"])
	}

	rec = f.do(t, http.MethodDelete, "/api/overrides/speaker_1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("revert status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/api/overrides/speaker_1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second revert status = %d, want 404", rec.Code)
	}
}

func TestServer_OverrideValidation(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.loadTranscript(t)

	rec := f.do(t, http.MethodPost, "/api/overrides", map[string]string{"name": "Alice"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing speaker_id status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/overrides", map[string]string{
		"speaker_id": "speaker_1", "name": "Bob!",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid name status = %d, want 422", rec.Code)
	}
	body := decodeBody[errorBody](t, rec)
	if len(body.Fields) == 0 {
		t.Error("error body carries no field details")
	}
}

func TestServer_Summary(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.summarizer.Summary = "The team discussed the rollout."

	rec := f.do(t, http.MethodGet, "/api/summary", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty summary status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/summary", map[string]any{"max_words": 50})
	if rec.Code != http.StatusConflict {
		t.Errorf("summarize without transcript status = %d, want 409", rec.Code)
	}

	f.loadTranscript(t)
	rec = f.do(t, http.MethodPost, "/api/summary", map[string]any{"max_words": 50})
	if rec.Code != http.StatusOK {
		t.Fatalf("summarize status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]string](t, rec)
	if got["summary"] != f.summarizer.Summary {
		t.Errorf("summary = %q, want provider output", got["summary"])
	}

	rec = f.do(t, http.MethodGet, "/api/summary", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("summary fetch status = %d, want 200", rec.Code)
	}
}

func TestServer_Transcribe(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.transcriber.Result = &transcribe.Result{
		Segments: []transcribe.Segment{
			{SpeakerID: "speaker_1", Text: "Hello there.", Confidence: 0.9},
		},
		SpeakerIDs: []string{"speaker_1"},
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "standup.mp3")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("audio-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.WriteField("language", "en"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("transcribe status = %d: %s", rec.Code, rec.Body.String())
	}
	if f.transcriber.CallCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", f.transcriber.CallCount())
	}
	call := f.transcriber.TranscribeCalls[0]
	if call.Req.Filename != "standup.mp3" || call.Req.Language != "en" {
		t.Errorf("request = %+v, want filename and language forwarded", call.Req)
	}
}

func TestServer_TranscribeMissingFile(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader("not multipart"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_AuxiliaryRoutes(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}

func TestServer_WebSocketThroughMiddleware(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The upgrade must succeed even though the status-recording middleware
	// wraps the mux; the recorder has to expose the underlying writer for
	// the hijack to work.
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial /ws: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The hub registers the client just after the handshake; wait for it so
	// the broadcast below has someone to reach.
	for deadline := time.Now().Add(2 * time.Second); ; time.Sleep(5 * time.Millisecond) {
		f.srv.hub.mu.Lock()
		n := len(f.srv.hub.clients)
		f.srv.hub.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered with hub")
		}
	}

	f.srv.hub.broadcast(app.Update{Kind: app.UpdateSummary, Payload: "ready"})

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}
	var u app.Update
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if u.Kind != app.UpdateSummary {
		t.Errorf("update kind = %q, want %q", u.Kind, app.UpdateSummary)
	}
}
