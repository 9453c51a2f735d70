package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WeChat-style error codes for an invalid or expired access token.
var authErrCodes = map[int]bool{40001: true, 40014: true, 42001: true}

// HTTPTarget posts the payload as JSON to a REST draft endpoint.
type HTTPTarget struct {
	URL string
	// Token is sent as a bearer token and as the access_token query parameter.
	Token  string
	Client *http.Client
}

type httpPublishResp struct {
	PostID  string `json:"post_id"`
	MediaID string `json:"media_id"`
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (t *HTTPTarget) Name() string { return "http" }

func (t *HTTPTarget) Publish(ctx context.Context, p Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return "", &Error{Kind: KindValidation, Detail: err.Error(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", t.URL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindValidation, Detail: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
		q := req.URL.Query()
		q.Set("access_token", t.Token)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindServer, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return "", &Error{Kind: kindForStatus(resp.StatusCode), Detail: fmt.Sprintf("%d %s", resp.StatusCode, bytes.TrimSpace(raw))}
	}

	var data httpPublishResp
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", &Error{Kind: KindServer, Detail: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	if data.ErrCode != 0 {
		kind := KindValidation
		if authErrCodes[data.ErrCode] {
			kind = KindAuthExpired
		}
		return "", &Error{Kind: kind, Detail: fmt.Sprintf("%d %s", data.ErrCode, data.ErrMsg)}
	}
	id := data.PostID
	if id == "" {
		id = data.MediaID
	}
	if id == "" {
		return "", &Error{Kind: KindServer, Detail: "response carried no post id"}
	}
	return id, nil
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthExpired
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	default:
		return KindServer
	}
}
