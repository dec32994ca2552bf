package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aminelidof/lidof-english-coach/internal/auth"
	"github.com/aminelidof/lidof-english-coach/internal/coach"
	"github.com/aminelidof/lidof-english-coach/internal/config"
	"github.com/aminelidof/lidof-english-coach/internal/metrics"
	"github.com/aminelidof/lidof-english-coach/internal/session"
	"github.com/aminelidof/lidof-english-coach/pkg/contenthash"
)

// echoPipeline answers every new capture with a fixed coached reply and
// skips captures it has just seen.
type echoPipeline struct {
	mu     sync.Mutex
	inputs []coach.TurnInput
	score  int
}

func (p *echoPipeline) RunTurn(_ context.Context, in coach.TurnInput) coach.TurnOutput {
	p.mu.Lock()
	p.inputs = append(p.inputs, in)
	p.mu.Unlock()

	digest := contenthash.Sum(in.Audio)
	if digest == in.LastAudioDigest {
		return coach.TurnOutput{Skipped: true, Reason: coach.SkipDuplicate, AudioDigest: digest, History: in.History}
	}
	res := coach.InteractionResult{
		Reply:    "Nice! Let's practice more.",
		Analysis: coach.AnalysisResult{Corrected: "I went to the store yesterday.", Rule: "went", Score: p.score},
	}
	history := append(append([]coach.Utterance{}, in.History...),
		coach.Utterance{Role: coach.RoleUser, Content: "I goed to the store yesterday"},
		coach.Utterance{Role: coach.RoleAssistant, Content: res.Reply},
	)
	return coach.TurnOutput{
		AudioDigest: digest,
		Transcript:  "I goed to the store yesterday",
		History:     history,
		Result:      &res,
		ReplyAudio:  []byte("ID3-reply"),
	}
}

type testServer struct {
	*httptest.Server
	pipeline *echoPipeline
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}}
	tokens, err := auth.NewTokens("router-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	p := &echoPipeline{score: 90}
	rt := NewRouter(cfg, session.NewStore(time.Hour), tokens, p, nil, metrics.NewCounters(nil))
	srv := httptest.NewServer(rt.Setup())
	t.Cleanup(func() {
		srv.Close()
		rt.Close()
	})
	return &testServer{Server: srv, pipeline: p}
}

func (ts *testServer) do(t *testing.T, method, path, token, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (ts *testServer) createSession(t *testing.T) (id, token string) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/sessions", "", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	var out struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	decode(t, resp, &out)
	return out.SessionID, out.Token
}

type turnBody struct {
	Skipped    bool                     `json:"skipped"`
	Reason     string                   `json:"reason"`
	Transcript string                   `json:"transcript"`
	Result     *coach.InteractionResult `json:"result"`
	ReplyAudio string                   `json:"reply_audio"`
	History    []coach.Utterance        `json:"history"`
	Accuracy   *int                     `json:"accuracy"`
}

func TestTurn_RawBody(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createSession(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns?scenario=travel&level=beginner", token, "audio/wav", []byte("RIFF-capture"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out turnBody
	decode(t, resp, &out)

	if out.Skipped || out.Result == nil || out.Result.Analysis.Score != 90 {
		t.Fatalf("turn = %+v", out)
	}
	audio, err := base64.StdEncoding.DecodeString(out.ReplyAudio)
	if err != nil || string(audio) != "ID3-reply" {
		t.Errorf("reply_audio = %q (%v)", audio, err)
	}
	if len(out.History) != 2 || out.Accuracy == nil || *out.Accuracy != 90 {
		t.Errorf("history=%d accuracy=%v", len(out.History), out.Accuracy)
	}

	in := ts.pipeline.inputs[0]
	if in.Scenario != coach.ScenarioTravel || in.Level != coach.LevelBeginner {
		t.Errorf("pipeline saw scenario=%q level=%q", in.Scenario, in.Level)
	}
}

func TestTurn_MultipartAndDuplicate(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createSession(t)

	body := func() ([]byte, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("audio", "capture.webm")
		fw.Write([]byte("same capture"))
		mw.WriteField("scenario", "Job Interview")
		mw.Close()
		return buf.Bytes(), mw.FormDataContentType()
	}

	b, ct := body()
	first := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", token, ct, b)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", first.StatusCode)
	}

	b, ct = body()
	second := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", token, ct, b)
	var out turnBody
	decode(t, second, &out)
	if !out.Skipped || out.Reason != string(coach.SkipDuplicate) {
		t.Errorf("second turn = %+v, want duplicate skip", out)
	}
	if len(out.History) != 2 {
		t.Errorf("history = %d entries, want 2", len(out.History))
	}
	if ts.pipeline.inputs[0].Scenario != coach.ScenarioJobInterview {
		t.Errorf("scenario = %q", ts.pipeline.inputs[0].Scenario)
	}
}

func TestSession_GetAndClear(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createSession(t)

	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", token, "audio/wav", []byte("one"))

	var snap session.Snapshot
	decode(t, ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, "", nil), &snap)
	if snap.Turns != 1 || len(snap.History) != 2 || snap.LastAnalysis == nil {
		t.Errorf("snapshot = %+v", snap)
	}

	resp := ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/history", token, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}

	snap = session.Snapshot{}
	decode(t, ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, "", nil), &snap)
	if snap.Turns != 0 || len(snap.History) != 0 || snap.Accuracy != nil {
		t.Errorf("snapshot after clear = %+v", snap)
	}
}

func TestSession_AuthErrors(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createSession(t)
	otherID, _ := ts.createSession(t)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"no token", "/api/v1/sessions/" + id, "", http.StatusUnauthorized},
		{"bad token", "/api/v1/sessions/" + id, "nope", http.StatusUnauthorized},
		{"other session", "/api/v1/sessions/" + otherID, token, http.StatusForbidden},
		{"bad id", "/api/v1/sessions/not-a-uuid", token, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, tt.path, tt.token, "", nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestTurn_BadInput(t *testing.T) {
	ts := newTestServer(t)
	id, token := ts.createSession(t)

	if resp := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", token, "audio/wav", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty audio: status %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns?level=expert", token, "audio/wav", []byte("a")); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown level: status %d", resp.StatusCode)
	}
	if len(ts.pipeline.inputs) != 0 {
		t.Error("pipeline should not run on bad input")
	}
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var sc struct {
		Scenarios []string `json:"scenarios"`
		Levels    []string `json:"levels"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/v1/scenarios", "", "", nil), &sc)
	if len(sc.Scenarios) != 4 || len(sc.Levels) != 3 {
		t.Errorf("scenarios = %+v", sc)
	}

	for _, path := range []string{"/healthz", "/readyz", "/api/v1/fallbacks"} {
		if resp := ts.do(t, http.MethodGet, path, "", "", nil); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
	}
}
