package uploader

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// UploadError reports a failed artifact upload. The artifact stays
// locally available; retrying is the caller's decision.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// RemoteInfo describes where an uploaded artifact landed.
type RemoteInfo struct {
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Uploader hands a finished recording off to remote storage.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (*RemoteInfo, error)
}

// HTTP uploads recordings to the platform's artifact endpoint.
type HTTP struct {
	client *resty.Client
}

func NewHTTP(baseURL, token string) *HTTP {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(2 * time.Minute)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTP{client: client}
}

func (h *HTTP) Upload(ctx context.Context, name string, data []byte) (*RemoteInfo, error) {
	var info RemoteInfo
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "audio/wav").
		SetQueryParam("name", name).
		SetBody(data).
		SetResult(&info).
		Post("/artifacts")
	if err != nil {
		return nil, &UploadError{Name: name, Err: err}
	}
	if resp.IsError() {
		return nil, &UploadError{Name: name, Err: fmt.Errorf("server returned %s", resp.Status())}
	}
	if info.UploadedAt.IsZero() {
		info.UploadedAt = time.Now()
	}
	return &info, nil
}

// Fake is an in-memory Uploader for tests and offline runs.
type Fake struct {
	Err      error
	Received map[string][]byte
}

func NewFake() *Fake {
	return &Fake{Received: make(map[string][]byte)}
}

func (f *Fake) Upload(_ context.Context, name string, data []byte) (*RemoteInfo, error) {
	if f.Err != nil {
		return nil, &UploadError{Name: name, Err: f.Err}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.Received[name] = buf
	return &RemoteInfo{URL: "fake://" + name, UploadedAt: time.Now()}, nil
}
