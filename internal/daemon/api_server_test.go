package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retriever/internal/api"
	"retriever/internal/backend"
	"retriever/internal/backend/backendtest"
	"retriever/internal/jobs"
	"retriever/internal/services"
	"retriever/internal/testsupport"
	"retriever/internal/workflow"
)

type apiHarness struct {
	daemon *Daemon
	mgr    *workflow.Manager
	server *httptest.Server
	client *api.Client
}

func newAPIHarness(t *testing.T, token string, adapters ...backend.Adapter) *apiHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = token
	cfg.Workflow.RetryDelay = 0
	cfg.Workflow.ProgressInterval = 0
	store := testsupport.MustOpenStore(t, cfg)
	registry, err := backend.NewRegistry(adapters...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	mgr := workflow.NewManager(cfg, workflow.Dependencies{Store: store, Registry: registry}, workflow.WithProbeInterval(0))
	t.Cleanup(mgr.Stop)
	d, err := New(cfg, store, nil, mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.api.routes())
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL, api.WithToken(token))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &apiHarness{daemon: d, mgr: mgr, server: srv, client: client}
}

func quarkFake() *backendtest.Fake {
	quark := backendtest.New("quark")
	quark.ValidateFunc = backendtest.ValidateStatuses(map[string]jobs.ValidationStatus{"s2": jobs.ValidationExpired})
	return quark
}

func TestAPISubmitAndWait(t *testing.T) {
	qobuz := backendtest.New("qobuz")
	qobuz.FetchFunc = backendtest.FetchOK()
	h := newAPIHarness(t, "", qobuz)
	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.client.Submit(ctx, api.SubmitRequest{Kind: "fetch", Target: jobs.Target{Ref: "album-1"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.JobID == "" || resp.Job.State != jobs.StateQueued || resp.Job.Kind != jobs.KindDownload {
		t.Fatalf("submit response = %+v", resp)
	}

	job, err := h.client.Wait(ctx, resp.JobID, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if job.State != jobs.StateCompleted || job.Backend != "qobuz" {
		t.Fatalf("job = %s on %s", job.State, job.Backend)
	}

	list, err := h.client.Jobs(ctx, api.JobQuery{Filter: "active"})
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("active jobs = %d", len(list))
	}
	ov, err := h.client.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Counts[jobs.StateCompleted] != 1 || len(ov.Backends) != 1 {
		t.Fatalf("overview = %+v", ov)
	}

	if err := h.client.Purge(ctx, job.ID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := h.client.Job(ctx, job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("purged job lookup = %v", err)
	}
}

func TestAPIErrors(t *testing.T) {
	h := newAPIHarness(t, "", quarkFake())
	ctx := context.Background()

	_, err := h.client.Job(ctx, "missing")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Payload.Error != "not_found" {
		t.Fatalf("unknown job = %v", err)
	}

	_, err = h.client.Submit(ctx, api.SubmitRequest{Kind: "download", Target: jobs.Target{Ref: "x"}})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity || !errors.Is(err, services.ErrCapabilityMismatch) {
		t.Fatalf("mismatch = %v", err)
	}
	if apiErr.Payload.Hint == "" {
		t.Fatal("expected a hint on capability mismatch")
	}

	_, err = h.client.Submit(ctx, api.SubmitRequest{Kind: "validate"})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || !apiErr.InvalidRequest() {
		t.Fatalf("empty target = %v", err)
	}

	_, err = h.client.Jobs(ctx, api.JobQuery{Filter: "recent"})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("bad filter = %v", err)
	}

	res, err := http.Post(h.server.URL+"/api/jobs", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var payload api.ErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StatusCode != http.StatusBadRequest || payload.Error != api.CodeInvalidRequest || payload.Message == "" {
		t.Fatalf("malformed body = %d %+v", res.StatusCode, payload)
	}
}

func TestAPICancelQueuedAndRetryConflict(t *testing.T) {
	h := newAPIHarness(t, "", quarkFake())
	ctx := context.Background()

	resp, err := h.client.Submit(ctx, api.SubmitRequest{Kind: "validate", Target: jobs.Target{Refs: []string{"s1"}}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancelled, err := h.client.Cancel(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled.Accepted || cancelled.Job.State != jobs.StateCancelled || cancelled.Job.CancelPoint != "before start" {
		t.Fatalf("cancel = %+v", cancelled)
	}

	again, err := h.client.Cancel(ctx, resp.JobID)
	if err != nil || again.Accepted {
		t.Fatalf("second cancel = %+v, %v", again, err)
	}

	_, err = h.client.Retry(ctx, resp.JobID)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("retry cancelled = %v", err)
	}
}

func TestAPIValidateIsSynchronous(t *testing.T) {
	h := newAPIHarness(t, "", quarkFake())

	resp, err := h.client.Validate(context.Background(), api.ValidateRequest{Candidates: []string{"s1", "s2", "s3"}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if resp.Backend != "quark" || len(resp.Results) != 3 {
		t.Fatalf("response = %+v", resp)
	}
	want := []jobs.ValidationStatus{jobs.ValidationValid, jobs.ValidationExpired, jobs.ValidationValid}
	for i, r := range resp.Results {
		if r.Status != want[i] {
			t.Fatalf("result %d = %s, want %s", i, r.Status, want[i])
		}
	}
	if resp.Summary.Valid != 2 || resp.Summary.NeedsBroaderSearch {
		t.Fatalf("summary = %+v", resp.Summary)
	}
}

func TestAPIBackendsAndStatus(t *testing.T) {
	h := newAPIHarness(t, "", quarkFake())
	ctx := context.Background()

	backends, err := h.client.Backends(ctx)
	if err != nil {
		t.Fatalf("Backends: %v", err)
	}
	if len(backends) != 1 || backends[0].Name != "quark" || backends[0].Status != backend.HealthAvailable {
		t.Fatalf("backends = %+v", backends)
	}

	status, err := h.client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running || status.PID == 0 || status.DatabasePath == "" {
		t.Fatalf("status = %+v", status)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	h := newAPIHarness(t, "s3cret", quarkFake())

	res, err := http.Get(h.server.URL + "/api/overview")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", res.StatusCode)
	}

	if _, err := h.client.Overview(context.Background()); err != nil {
		t.Fatalf("Overview with token: %v", err)
	}

	wrong, _ := api.NewClient(h.server.URL, api.WithToken("nope"))
	if _, err := wrong.Overview(context.Background()); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("wrong token = %v", err)
	}
}

func TestMetricsEndpointSkipsAuth(t *testing.T) {
	h := newAPIHarness(t, "s3cret", quarkFake())
	if _, err := h.client.Backends(context.Background()); err != nil {
		t.Fatalf("Backends: %v", err)
	}

	res, err := http.Get(h.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", res.StatusCode)
	}
	if !strings.Contains(string(body), "retriever_http_requests_total") {
		t.Fatal("expected request counter in exposition")
	}
}

func TestAPIPurgeFinishedByAge(t *testing.T) {
	h := newAPIHarness(t, "", quarkFake())
	ctx := context.Background()

	resp, err := h.client.Submit(ctx, api.SubmitRequest{Kind: "validate", Target: jobs.Target{Refs: []string{"s1"}}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.client.Cancel(ctx, resp.JobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	removed, err := h.client.PurgeFinished(ctx, time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("purge recent = %d, %v", removed, err)
	}
	if _, err := h.client.Job(ctx, resp.JobID); err != nil {
		t.Fatalf("recent job should survive: %v", err)
	}

	var apiErr *api.Error
	if _, err := h.client.PurgeFinished(ctx, 0); !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("zero age = %v", err)
	}

	res, err := http.Post(h.server.URL+"/api/jobs/purge", "application/json", strings.NewReader(`{"older_than":"soon"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var payload api.ErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StatusCode != http.StatusBadRequest || payload.Error != api.CodeInvalidRequest {
		t.Fatalf("bad duration = %d %+v", res.StatusCode, payload)
	}
}
