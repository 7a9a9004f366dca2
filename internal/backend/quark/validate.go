package quark

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

// Share service response codes.
const (
	codeValid            = 0
	codeExpired          = 41004
	codeNotExist         = 41006
	codePasscodeMissing  = 41007
	codePasscodeMismatch = 41008
)

type tokenResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Stoken string `json:"stoken"`
		Title  string `json:"title"`
	} `json:"data"`
}

type detailResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Metadata struct {
		Total int `json:"_total"`
	} `json:"metadata"`
	Data struct {
		List []struct {
			FileName     string `json:"file_name"`
			Size         int64  `json:"size"`
			Dir          bool   `json:"dir"`
			FID          string `json:"fid"`
			IncludeItems int    `json:"include_items"`
		} `json:"list"`
	} `json:"data"`
}

// ShareEntry is one file or folder at the root of a share.
type ShareEntry struct {
	Name  string `json:"file_name"`
	Size  int64  `json:"size"`
	Dir   bool   `json:"dir"`
	FID   string `json:"fid"`
	Items int    `json:"include_items,omitempty"`
}

// StatusForCode maps a share service code to a validation status.
func StatusForCode(code int) jobs.ValidationStatus {
	switch code {
	case codeValid:
		return jobs.ValidationValid
	case codeExpired:
		return jobs.ValidationExpired
	case codeNotExist:
		return jobs.ValidationNotFound
	case codePasscodeMissing, codePasscodeMismatch:
		return jobs.ValidationPasswordRequired
	default:
		return jobs.ValidationError
	}
}

// Validate asks the share service for a share token. Valid shares also get
// their root listing in the detail. Nothing is cached; every call reaches
// the service.
func (a *Adapter) Validate(ctx context.Context, ref backend.CandidateRef) jobs.ValidationResult {
	result := jobs.ValidationResult{CandidateID: ref.ID, Detail: map[string]any{}}
	finish := func(status jobs.ValidationStatus) jobs.ValidationResult {
		result.Status = status
		result.CheckedAt = time.Now().UTC()
		return result
	}

	source := ref.URL
	if source == "" {
		source = ref.ID
	}
	pwdID, ok := ExtractPwdID(source)
	if !ok {
		result.Detail["message"] = fmt.Sprintf("not a Quark share: %q", source)
		return finish(jobs.ValidationNotFound)
	}
	result.Detail["pwd_id"] = pwdID

	var token tokenResponse
	endpoint := strings.TrimRight(a.cfg.ShareURL, "/") + "/token?pr=ucpro&fr=pc"
	err := a.postJSON(ctx, "validate", endpoint, map[string]string{"pwd_id": pwdID, "passcode": ref.Passcode}, &token)
	if err != nil {
		result.Detail["code"] = -1
		result.Detail["message"] = err.Error()
		result.Detail["error_kind"] = string(services.KindOf(err))
		return finish(jobs.ValidationError)
	}
	result.Detail["code"] = token.Code
	if token.Message != "" {
		result.Detail["message"] = token.Message
	}
	status := StatusForCode(token.Code)
	if status != jobs.ValidationValid {
		return finish(status)
	}

	result.Detail["stoken"] = token.Data.Stoken
	if token.Data.Title != "" {
		result.Detail["title"] = token.Data.Title
	}
	entries, total, err := a.listRoot(ctx, pwdID, token.Data.Stoken)
	if err != nil {
		result.Detail["listing_error"] = err.Error()
	} else {
		result.Detail["listing"] = entries
		result.Detail["total"] = total
	}
	return finish(jobs.ValidationValid)
}

func (a *Adapter) listRoot(ctx context.Context, pwdID, stoken string) ([]ShareEntry, int, error) {
	params := url.Values{}
	params.Set("pr", "ucpro")
	params.Set("fr", "pc")
	params.Set("pwd_id", pwdID)
	params.Set("stoken", stoken)
	params.Set("pdir_fid", "0")
	params.Set("force", "0")
	params.Set("_page", "1")
	params.Set("_size", strconv.Itoa(listingPageSize))
	params.Set("_sort", "file_type:asc,updated_at:desc")
	endpoint := strings.TrimRight(a.cfg.ShareURL, "/") + "/detail?" + params.Encode()

	var resp detailResponse
	if err := a.getJSON(ctx, "detail", endpoint, 0, &resp); err != nil {
		return nil, 0, err
	}
	if resp.Code != 0 {
		return nil, 0, services.Wrap(services.Marker(kindForCode(resp.Code)), Name, "detail", resp.Message, nil)
	}
	entries := make([]ShareEntry, 0, len(resp.Data.List))
	for _, f := range resp.Data.List {
		entry := ShareEntry{Name: f.FileName, Size: f.Size, Dir: f.Dir, FID: f.FID}
		if f.Dir {
			entry.Items = f.IncludeItems
		}
		entries = append(entries, entry)
	}
	total := resp.Metadata.Total
	if total == 0 {
		total = len(entries)
	}
	return entries, total, nil
}

func kindForCode(code int) services.ErrorKind {
	switch StatusForCode(code) {
	case jobs.ValidationExpired:
		return services.KindExpired
	case jobs.ValidationNotFound:
		return services.KindNotFound
	case jobs.ValidationPasswordRequired:
		return services.KindAuth
	default:
		return services.KindInternal
	}
}
