package quark_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"retriever/internal/backend"
	"retriever/internal/backend/quark"
	"retriever/internal/config"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

func newAdapter(t *testing.T, handler http.Handler) *quark.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := quark.New(config.Quark{
		Enabled:    true,
		PanSouURL:  srv.URL,
		ShareURL:   srv.URL + "/share",
		DesktopURL: srv.URL + "/desktop",
	})
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestExtractPwdID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://pan.quark.cn/s/abc123XYZ", "abc123XYZ", true},
		{"see pan.quark.cn/s/f00ba7 now", "f00ba7", true},
		{"abc123", "abc123", true},
		{"abc", "", false},
		{"not a share", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := quark.ExtractPwdID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ExtractPwdID(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSearchDedupesAndCachesHealth(t *testing.T) {
	var healthCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "channels": []string{"c1", "c2"}, "plugins": []string{"p1"}})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("channels") != "c1,c2" || q.Get("plugins") != "p1" {
			t.Errorf("unexpected channel/plugin params: %v", q)
		}
		if q.Get("kw") != "ABC 1" {
			t.Errorf("keyword not normalized: %q", q.Get("kw"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"code": 0,
			"data": map[string]any{
				"total": 3,
				"merged_by_type": map[string]any{
					"quark": []map[string]any{
						{"url": "https://pan.quark.cn/s/aaaaaa1", "note": " First ", "password": "pw"},
						{"url": "https://pan.quark.cn/s/aaaaaa1", "note": "dup"},
						{"url": "https://pan.quark.cn/s/bbbbbb2", "note": "Second"},
					},
				},
			},
		})
	})
	a := newAdapter(t, mux)

	for round := 0; round < 2; round++ {
		// Full-width characters fold to ASCII.
		it, err := a.Search(context.Background(), backend.Query{Text: "ＡＢＣ １", Limit: 10})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		got, err := backend.Drain(context.Background(), it, 0)
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 deduped candidates, got %d", len(got))
		}
		if got[0].ID != "aaaaaa1" || got[0].Title != "First" || got[0].Extra["passcode"] != "pw" {
			t.Fatalf("unexpected first candidate: %+v", got[0])
		}
		if got[1].Backend != quark.Name {
			t.Fatalf("backend = %q", got[1].Backend)
		}
	}
	if n := healthCalls.Load(); n != 1 {
		t.Fatalf("expected one health fetch, got %d", n)
	}
}

func TestSearchReportsAggregatorError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"code": 1, "message": "rate limit reached"})
	})
	a := newAdapter(t, mux)

	it, err := a.Search(context.Background(), backend.Query{Text: "x"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	_, err = backend.Drain(context.Background(), it, 0)
	if services.KindOf(err) != services.KindQuota {
		t.Fatalf("expected quota kind, got %v (%v)", services.KindOf(err), err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	a := newAdapter(t, http.NotFoundHandler())
	if _, err := a.Search(context.Background(), backend.Query{Text: "   "}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestValidateStatusCodes(t *testing.T) {
	tests := []struct {
		code   int
		status int
		want   jobs.ValidationStatus
	}{
		{0, http.StatusOK, jobs.ValidationValid},
		{41004, http.StatusBadRequest, jobs.ValidationExpired},
		{41006, http.StatusNotFound, jobs.ValidationNotFound},
		{41007, http.StatusOK, jobs.ValidationPasswordRequired},
		{41008, http.StatusBadRequest, jobs.ValidationPasswordRequired},
		{99999, http.StatusOK, jobs.ValidationError},
	}
	for _, tt := range tests {
		mux := http.NewServeMux()
		mux.HandleFunc("/share/token", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["pwd_id"] != "abcdef1" || body["passcode"] != "pw" {
				t.Errorf("unexpected token body: %v", body)
			}
			writeJSON(w, tt.status, map[string]any{"code": tt.code, "message": "msg", "data": map[string]any{"stoken": "tok"}})
		})
		mux.HandleFunc("/share/detail", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("stoken") != "tok" {
				t.Errorf("missing stoken: %v", r.URL.Query())
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"code":     0,
				"metadata": map[string]any{"_total": 2},
				"data": map[string]any{"list": []map[string]any{
					{"file_name": "Album", "dir": true, "fid": "f1", "include_items": 12},
					{"file_name": "cover.jpg", "size": 1024, "fid": "f2"},
				}},
			})
		})
		a := newAdapter(t, mux)

		res := a.Validate(context.Background(), backend.CandidateRef{ID: "abcdef1", Passcode: "pw"})
		if res.Status != tt.want {
			t.Fatalf("code %d: status %q want %q", tt.code, res.Status, tt.want)
		}
		if res.CandidateID != "abcdef1" || res.CheckedAt.IsZero() {
			t.Fatalf("code %d: incomplete result %+v", tt.code, res)
		}
		if res.Detail["code"] != tt.code {
			t.Fatalf("code %d: detail code %v", tt.code, res.Detail["code"])
		}
		if tt.want == jobs.ValidationValid {
			entries, ok := res.Detail["listing"].([]quark.ShareEntry)
			if !ok || len(entries) != 2 || entries[0].Items != 12 || entries[1].Size != 1024 {
				t.Fatalf("unexpected listing %#v", res.Detail["listing"])
			}
			if res.Detail["total"] != 2 || res.Detail["stoken"] != "tok" {
				t.Fatalf("unexpected detail %v", res.Detail)
			}
		} else if _, ok := res.Detail["listing"]; ok {
			t.Fatalf("code %d: listing on invalid share", tt.code)
		}
	}
}

func TestValidateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	a := quark.New(config.Quark{ShareURL: srv.URL})
	defer a.Close()

	res := a.Validate(context.Background(), backend.CandidateRef{URL: "https://pan.quark.cn/s/abcdef1"})
	if res.Status != jobs.ValidationError {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Detail["error_kind"] != string(services.KindNetwork) {
		t.Fatalf("detail = %v", res.Detail)
	}
}

func TestValidateRejectsUnknownRef(t *testing.T) {
	a := newAdapter(t, http.NotFoundHandler())
	res := a.Validate(context.Background(), backend.CandidateRef{ID: "???"})
	if res.Status != jobs.ValidationNotFound {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestSaveStrategies(t *testing.T) {
	tests := []struct {
		name       string
		visitingOK bool
		callerOK   bool
		want       string
		tried      int
	}{
		{"share visiting", true, true, quark.MethodShareVisiting, 0},
		{"desktop caller", false, true, quark.MethodDesktopCaller, 1},
		{"browser", false, false, quark.MethodBrowserFallback, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/desktop/desktop_share_visiting", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("pwd_id") != "abcdef1" {
					t.Errorf("pwd_id = %q", r.URL.Query().Get("pwd_id"))
				}
				if !tt.visitingOK {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			})
			mux.HandleFunc("/desktop/desktop_caller", func(w http.ResponseWriter, r *http.Request) {
				link := r.URL.Query().Get("deeplink")
				if !strings.HasPrefix(link, "qkclouddrive://save?url=") || !strings.Contains(link, "abcdef1") {
					t.Errorf("deeplink = %q", link)
				}
				if !tt.callerOK {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			})
			a := newAdapter(t, mux)

			handoff, err := a.Save(context.Background(), backend.CandidateRef{ID: "abcdef1"})
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if handoff.Method != tt.want || len(handoff.Tried) != tt.tried {
				t.Fatalf("handoff = %+v", handoff)
			}
			if handoff.URL != "https://pan.quark.cn/s/abcdef1" {
				t.Fatalf("url = %q", handoff.URL)
			}
		})
	}
}

func TestSaveHonoursCancellation(t *testing.T) {
	a := newAdapter(t, http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Save(ctx, backend.CandidateRef{ID: "abcdef1"})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if point := backend.CancelPoint(err, ""); point == "" {
		t.Fatal("expected a cancel point")
	}
}

func TestSaveRejectsInvalidShare(t *testing.T) {
	a := newAdapter(t, http.NotFoundHandler())
	if _, err := a.Save(context.Background(), backend.CandidateRef{ID: "!"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "channels": []string{"c"}})
	})
	a := newAdapter(t, mux)
	h := a.HealthCheck(context.Background())
	if h.Status != backend.HealthAvailable {
		t.Fatalf("status = %q", h.Status)
	}
	if !strings.Contains(h.Detail, "desktop app not reachable") {
		t.Fatalf("detail = %q", h.Detail)
	}

	down := newAdapter(t, http.NotFoundHandler())
	if h := down.HealthCheck(context.Background()); h.Status != backend.HealthUnavailable {
		t.Fatalf("status = %q", h.Status)
	}
}
