package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"algodesk/internal/models"
)

// Jobs returns one page of backend jobs.
func (c *Client) Jobs(ctx context.Context, filter models.JobFilter) (*models.JobPage, error) {
	q := url.Values{}
	if !filter.Date.IsZero() {
		q.Set("date", filter.Date.Format("2006-01-02"))
	}
	if filter.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(filter.PerPage))
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.State != "" {
		q.Set("state", string(filter.State))
	}

	var page models.JobPage
	if err := c.get(ctx, "jobs", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// StopJob stops a running job.
func (c *Client) StopJob(ctx context.Context, jobID string) error {
	return c.send(ctx, http.MethodPut, pathID("jobs/stop", jobID), struct{}{}, nil)
}
