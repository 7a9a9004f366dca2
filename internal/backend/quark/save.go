package quark

import (
	"context"
	"net/url"
	"strings"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/services"
)

// Hand-off methods in the order they are tried.
const (
	MethodShareVisiting   = "desktop_share_visiting"
	MethodDesktopCaller   = "desktop_caller"
	MethodBrowserFallback = "browser_fallback"
)

type strategy struct {
	method string
	run    func(ctx context.Context, pwdID string) (map[string]any, error)
}

// Save hands the share to the local desktop app. Strategies are tried in
// order and the first success wins; the browser fallback always succeeds.
func (a *Adapter) Save(ctx context.Context, ref backend.CandidateRef) (jobs.Handoff, error) {
	source := ref.URL
	if source == "" {
		source = ref.ID
	}
	pwdID, ok := ExtractPwdID(source)
	if !ok {
		return jobs.Handoff{}, services.Wrap(services.ErrNotFound, Name, "save", "invalid pwd_id or share URL "+source, nil)
	}

	desktop := strings.TrimRight(a.cfg.DesktopURL, "/")
	strategies := []strategy{
		{MethodShareVisiting, func(ctx context.Context, id string) (map[string]any, error) {
			var resp map[string]any
			err := a.getJSON(ctx, MethodShareVisiting, desktop+"/desktop_share_visiting?pwd_id="+url.QueryEscape(id), desktopTimeout, &resp)
			return resp, err
		}},
		{MethodDesktopCaller, func(ctx context.Context, id string) (map[string]any, error) {
			deeplink := "qkclouddrive://save?url=" + url.QueryEscape(ShareURL(id))
			var resp map[string]any
			err := a.getJSON(ctx, MethodDesktopCaller, desktop+"/desktop_caller?deeplink="+url.QueryEscape(deeplink), desktopTimeout, &resp)
			return resp, err
		}},
	}

	handoff := jobs.Handoff{}
	for _, s := range strategies {
		if err := backend.Checkpoint(ctx, "before "+s.method); err != nil {
			return jobs.Handoff{}, err
		}
		resp, err := s.run(ctx, pwdID)
		if err == nil {
			handoff.Method = s.method
			handoff.URL = ShareURL(pwdID)
			handoff.Detail = map[string]any{"pwd_id": pwdID, "response": resp}
			a.logger.Info("quark save handed off",
				logging.Event("save_handoff"),
				logging.String("method", s.method),
				logging.String("pwd_id", pwdID),
			)
			return handoff, nil
		}
		if cpErr := backend.Checkpoint(ctx, s.method); cpErr != nil {
			return jobs.Handoff{}, cpErr
		}
		a.logger.Debug("quark save strategy failed",
			logging.String("method", s.method),
			logging.Error(err),
		)
		handoff.Tried = append(handoff.Tried, jobs.HandoffTry{Method: s.method, Error: err.Error()})
	}

	handoff.Method = MethodBrowserFallback
	handoff.URL = ShareURL(pwdID)
	handoff.Detail = map[string]any{
		"pwd_id":  pwdID,
		"message": "desktop app methods failed; open this URL in a browser",
	}
	return handoff, nil
}
