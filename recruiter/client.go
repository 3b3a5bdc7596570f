// Package recruiter is the thin REST collaborator for the recruiting
// platform itself: fetching prior application state and persisting a
// finished evaluation. Everything else the platform does stays out of
// this client.
package recruiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Application struct {
	ID          string `json:"id"`
	Candidate   string `json:"candidate"`
	Status      string `json:"status"`
	InterviewID string `json:"interview_id"`
	Evaluated   bool   `json:"evaluated"`
}

// ReadOnly reports whether the interview workspace should reopen
// without capture or streaming controls.
func (a *Application) ReadOnly() bool {
	return a.Evaluated || a.Status == "closed"
}

type Evaluation struct {
	InterviewID string `json:"interview_id"`
	Score       int    `json:"score"`
	Notes       string `json:"notes"`
}

type Client struct {
	client *resty.Client
}

func New(baseURL, token string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &Client{client: client}
}

func (c *Client) Application(ctx context.Context, id string) (*Application, error) {
	var app Application
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&app).
		Get("/applications/" + id)
	if err != nil {
		return nil, fmt.Errorf("fetching application %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching application %s: server returned %s", id, resp.Status())
	}
	return &app, nil
}

func (c *Client) SubmitEvaluation(ctx context.Context, eval Evaluation) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(eval).
		Post("/evaluations")
	if err != nil {
		return fmt.Errorf("submitting evaluation: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("submitting evaluation: server returned %s", resp.Status())
	}
	return nil
}
