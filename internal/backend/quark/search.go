package quark

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

type searchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Total        int                     `json:"total"`
		MergedByType map[string][]searchItem `json:"merged_by_type"`
	} `json:"data"`
}

type searchItem struct {
	URL      string `json:"url"`
	Password string `json:"password"`
	Note     string `json:"note"`
	Datetime string `json:"datetime"`
	Source   string `json:"source"`
}

// Search queries PanSou for Quark shares. Pages are fetched lazily as the
// iterator is drained.
func (a *Adapter) Search(ctx context.Context, q backend.Query) (backend.Iterator, error) {
	keyword := norm.NFKC.String(strings.TrimSpace(q.Text))
	if keyword == "" {
		return nil, services.Wrap(services.ErrNotFound, Name, "search", "empty query", nil)
	}
	health, err := a.PanSouHealth(ctx, false)
	if err != nil {
		return nil, err
	}
	size := q.Limit
	if size <= 0 {
		size = 30
	}
	return &pageIterator{adapter: a, keyword: keyword, size: size, health: health}, nil
}

type pageIterator struct {
	adapter *Adapter
	keyword string
	size    int
	health  PanSouHealth

	page   int
	buf    []jobs.Candidate
	seen   int
	total  int
	done   bool
	dedupe map[string]bool
}

func (it *pageIterator) Next(ctx context.Context) (jobs.Candidate, bool, error) {
	for len(it.buf) == 0 {
		if it.done {
			return jobs.Candidate{}, false, nil
		}
		if err := backend.Checkpoint(ctx, "search page"); err != nil {
			return jobs.Candidate{}, false, err
		}
		if err := it.fetch(ctx); err != nil {
			return jobs.Candidate{}, false, err
		}
	}
	next := it.buf[0]
	it.buf = it.buf[1:]
	return next, true, nil
}

func (it *pageIterator) fetch(ctx context.Context) error {
	it.page++
	params := url.Values{}
	params.Set("kw", it.keyword)
	params.Set("res", "merge")
	params.Set("src", "all")
	params.Set("channels", strings.Join(it.health.Channels, ","))
	params.Set("plugins", strings.Join(it.health.Plugins, ","))
	params.Set("page", strconv.Itoa(it.page))
	params.Set("limit", strconv.Itoa(it.size))
	endpoint := strings.TrimRight(it.adapter.cfg.PanSouURL, "/") + "/search?" + params.Encode()

	var resp searchResponse
	if err := it.adapter.getJSON(ctx, "search", endpoint, searchTimeout, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		msg := resp.Message
		if msg == "" {
			msg = "unknown"
		}
		kind := services.ClassifyMessage(msg)
		if kind == "" {
			kind = services.KindInternal
		}
		return services.Wrap(services.Marker(kind), Name, "search", fmt.Sprintf("pansou error: %s", msg), nil)
	}

	if it.dedupe == nil {
		it.dedupe = make(map[string]bool)
	}
	it.total = resp.Data.Total
	items := resp.Data.MergedByType["quark"]
	it.seen += len(items)
	for _, item := range items {
		pwdID, ok := ExtractPwdID(item.URL)
		if !ok || it.dedupe[pwdID] {
			continue
		}
		it.dedupe[pwdID] = true
		candidate := jobs.Candidate{
			ID:        pwdID,
			Backend:   Name,
			Title:     strings.TrimSpace(item.Note),
			URL:       item.URL,
			Source:    item.Source,
			Published: item.Datetime,
		}
		if item.Password != "" {
			candidate.Extra = map[string]string{"passcode": item.Password}
		}
		it.buf = append(it.buf, candidate)
	}
	if len(items) < it.size || it.seen >= it.total || it.page >= maxSearchPages {
		it.done = true
	}
	return nil
}
