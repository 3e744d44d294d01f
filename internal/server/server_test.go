package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/eventstore"
	"git.home.luguber.info/inful/pagepress/internal/pipeline"
)

type fakeRuntime struct {
	triggered  []string
	triggerErr error
	active     *eventstore.RunSummary
	history    []*eventstore.RunSummary
	reports    map[string]*pipeline.RunReport
	depth      int
}

func (f *fakeRuntime) TriggerRun(trigger string) (string, error) {
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	f.triggered = append(f.triggered, trigger)
	return "run-123", nil
}

func (f *fakeRuntime) ActiveRun() *eventstore.RunSummary  { return f.active }
func (f *fakeRuntime) History() []*eventstore.RunSummary  { return f.history }
func (f *fakeRuntime) QueueDepth() int                    { return f.depth }
func (f *fakeRuntime) RunReport(id string) *pipeline.RunReport {
	return f.reports[id]
}

func newTestServer(rt *fakeRuntime, secret string) *httptest.Server {
	cfg := config.ServerConfig{Listen: ":0", WebhookPath: "/webhook", WebhookSecret: secret}
	srv := New(cfg, "main", rt, nil)
	return httptest.NewServer(srv.Handler())
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func pushPayload(ref string) string {
	return `{"ref": "` + ref + `", "after": "abc123"}`
}

func TestWebhookTriggersRun(t *testing.T) {
	rt := &fakeRuntime{}
	ts := newTestServer(rt, "")
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(pushPayload("refs/heads/main")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "queued", body["result"])
	assert.Equal(t, "run-123", body["run_id"])
	assert.Equal(t, []string{"push"}, rt.triggered)
}

func TestWebhookIgnoresOtherBranches(t *testing.T) {
	rt := &fakeRuntime{}
	ts := newTestServer(rt, "")
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(pushPayload("refs/heads/feature")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ignored", body["result"])
	assert.Empty(t, rt.triggered)
}

func TestWebhookSignature(t *testing.T) {
	rt := &fakeRuntime{}
	ts := newTestServer(rt, "topsecret")
	defer ts.Close()

	payload := pushPayload("refs/heads/main")

	// Missing signature
	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong signature
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook", strings.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", sign(payload, "wrong"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct signature
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/webhook", strings.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", sign(payload, "topsecret"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"push"}, rt.triggered)
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	ts := newTestServer(&fakeRuntime{}, "")
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(`{"ref": `))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManualTrigger(t *testing.T) {
	rt := &fakeRuntime{}
	ts := newTestServer(rt, "")
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/runs", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"manual"}, rt.triggered)
}

func TestManualTriggerQueueFull(t *testing.T) {
	rt := &fakeRuntime{triggerErr: errors.New("queue full")}
	ts := newTestServer(rt, "")
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/runs", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	rt := &fakeRuntime{
		depth:  2,
		active: &eventstore.RunSummary{RunID: "run-9", Status: "running"},
		history: []*eventstore.RunSummary{
			{RunID: "run-8", Status: "success"},
		},
	}
	ts := newTestServer(rt, "")
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "running", status["status"])
	assert.Equal(t, float64(2), status["queue_depth"])
	assert.NotNil(t, status["active_run"])
	assert.NotNil(t, status["last_run"])
}

func TestReportPage(t *testing.T) {
	now := time.Now()
	rt := &fakeRuntime{reports: map[string]*pipeline.RunReport{
		"run-7": {
			RunID: "run-7", Group: "pages", Trigger: "push", Branch: "main",
			Status: "success", StartedAt: now, FinishedAt: now.Add(time.Minute),
			Stages: []pipeline.StageResult{{Stage: pipeline.StageCheckout, Status: "ok"}},
		},
	}}
	ts := newTestServer(rt, "")
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/runs/run-7")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(ts.URL + "/runs/run-unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&fakeRuntime{}, "")
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
