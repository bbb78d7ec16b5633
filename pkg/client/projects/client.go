package projects

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/bigredeye/cqa/api"
)

var ErrNotFound = errors.New("project not found")

type Client struct {
	client *resty.Client
}

func NewClient(endpoint, token string) (*Client, error) {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(time.Second * 10).
		SetRetryCount(3)

	if token != "" {
		client.Header.Add("Token", token)
	}

	return &Client{client}, nil
}

// GetProject returns ErrNotFound when the service does not know the project.
func (c *Client) GetProject(ctx context.Context, name string) (*api.Project, error) {
	res := &api.Project{}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(res).
		SetError(&api.ErrorResponse{}).
		SetPathParam("name", name).
		Get("/api/projects/{name}")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to fetch project")
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*api.ErrorResponse); ok && apiErr.Error != "" {
			return nil, errors.Errorf("Failed to fetch project: %s", apiErr.Error)
		}
		return nil, errors.Errorf("Failed to fetch project: %s", resp.Status())
	}

	return res, nil
}
