package share

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/weslplay/horosafe"
)

// maxSnapshot caps the size of a fetched snapshot (4 MiB).
const maxSnapshot int64 = 4 << 20

// Client talks to a snapshot store.
type Client interface {
	// Save stores data and returns its handle.
	Save(ctx context.Context, data []byte) (string, error)
	// Fetch returns the data stored under handle.
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// Remote is the HTTP Client: POST <base> with form field "data" answers the
// handle as text, GET <base>/<handle> answers the snapshot JSON.
type Remote struct {
	base   string
	client *http.Client
}

// NewRemote returns a client for the store at base. A zero timeout means
// ten seconds.
func NewRemote(base string, timeout time.Duration) (*Remote, error) {
	if err := horosafe.ValidateScheme(base); err != nil {
		return nil, fmt.Errorf("share: store url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// URL returns the store base URL.
func (r *Remote) URL() string { return r.base }

func (r *Remote) Save(ctx context.Context, data []byte) (string, error) {
	form := url.Values{"data": {string(data)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ShareError{Op: "save", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := r.do(req)
	if err != nil {
		return "", &ShareError{Op: "save", Status: status, Cause: err}
	}
	handle := strings.TrimSpace(string(body))
	if !ValidHandle(handle) {
		return "", &ShareError{Op: "save", Status: status, Cause: fmt.Errorf("malformed handle %q", handle)}
	}
	return handle, nil
}

func (r *Remote) Fetch(ctx context.Context, handle string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/"+url.PathEscape(handle), nil)
	if err != nil {
		return nil, &ShareError{Op: "load", Handle: handle, Cause: err}
	}
	body, status, err := r.do(req)
	if err != nil {
		return nil, &ShareError{Op: "load", Handle: handle, Status: status, Cause: err}
	}
	return body, nil
}

func (r *Remote) do(req *http.Request) ([]byte, int, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := horosafe.LimitedReadAll(resp.Body, maxSnapshot)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, resp.StatusCode, errors.New(msg)
	}
	return body, resp.StatusCode, nil
}
