package solr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/libsync/exportd/internal/config"
	"github.com/libsync/exportd/internal/logger"
)

// Document is one Solr document keyed by field name.
type Document map[string]interface{}

// ReplicationWarning reports a follower that did not accept a
// replication trigger. The leader's data is authoritative, so this is a
// warning-class outcome and never fails the job.
type ReplicationWarning struct {
	Core     string
	Follower string
	Err      error
}

func (w ReplicationWarning) String() string {
	return fmt.Sprintf("core %s: follower %s rejected replication trigger: %v",
		w.Core, w.Follower, w.Err)
}

// Client talks to Solr leaders over the JSON update API and triggers
// manual replication on followers after commits.
type Client struct {
	http    *resty.Client
	retries int
	backoff time.Duration
	logger  *logger.Logger
}

// NewClient creates a Solr client.
// Parameters:
//   - cfg: Solr settings (request timeout).
//   - retries: replication-trigger attempts per follower beyond the first.
//   - backoff: base delay between replication-trigger attempts.
func NewClient(cfg *config.SolrConfig, retries int, backoff time.Duration, log *logger.Logger) *Client {
	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		http:    client,
		retries: retries,
		backoff: backoff,
		logger:  log,
	}
}

type updateResponse struct {
	ResponseHeader struct {
		Status int `json:"status"`
	} `json:"responseHeader"`
	Error struct {
		Msg string `json:"msg"`
	} `json:"error"`
}

// Add upserts documents into the core's leader. Documents are keyed by
// their "id" field, so re-sending a document replaces it in place.
func (c *Client) Add(ctx context.Context, core config.SolrCoreConfig, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var resp updateResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(docs).
		SetResult(&resp).
		SetError(&resp).
		Post(updateURL(core))
	if err != nil {
		return fmt.Errorf("failed to post update to core %s: %w", core.Name, err)
	}
	if httpResp.IsError() || resp.ResponseHeader.Status != 0 {
		return fmt.Errorf("core %s rejected update (http %d): %s",
			core.Name, httpResp.StatusCode(), resp.Error.Msg)
	}
	return nil
}

// DeleteByIDs removes documents from the core's leader. Absent IDs are
// a no-op on the Solr side, which keeps deletion chunks idempotent.
func (c *Client) DeleteByIDs(ctx context.Context, core config.SolrCoreConfig, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	body := map[string]interface{}{"delete": ids}
	var resp updateResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		SetError(&resp).
		Post(updateURL(core))
	if err != nil {
		return fmt.Errorf("failed to post delete to core %s: %w", core.Name, err)
	}
	if httpResp.IsError() || resp.ResponseHeader.Status != 0 {
		return fmt.Errorf("core %s rejected delete (http %d): %s",
			core.Name, httpResp.StatusCode(), resp.Error.Msg)
	}
	return nil
}

// Commit issues a commit to the core's leader, then, when manual
// replication is configured for the core, triggers replication on each
// follower in order. Follower failures come back as warnings; only a
// failed leader commit is an error.
func (c *Client) Commit(ctx context.Context, core config.SolrCoreConfig) ([]ReplicationWarning, error) {
	var resp updateResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"commit": map[string]interface{}{}}).
		SetResult(&resp).
		SetError(&resp).
		Post(updateURL(core))
	if err != nil {
		return nil, fmt.Errorf("failed to commit core %s: %w", core.Name, err)
	}
	if httpResp.IsError() || resp.ResponseHeader.Status != 0 {
		return nil, fmt.Errorf("core %s rejected commit (http %d): %s",
			core.Name, httpResp.StatusCode(), resp.Error.Msg)
	}

	if !core.ManualReplication {
		return nil, nil
	}
	return c.replicateToFollowers(ctx, core), nil
}

type replicationResponse struct {
	Status string `json:"status"`
}

// replicateToFollowers triggers fetchindex on each follower in turn.
// Each follower gets a bounded number of attempts with backoff; a
// follower that never accepts produces one ReplicationWarning.
func (c *Client) replicateToFollowers(ctx context.Context, core config.SolrCoreConfig) []ReplicationWarning {
	var warnings []ReplicationWarning

	for _, follower := range core.FollowerURLs {
		err := c.triggerFetchIndex(ctx, core, follower)
		if err != nil {
			warnings = append(warnings, ReplicationWarning{
				Core:     core.Name,
				Follower: follower,
				Err:      err,
			})
			continue
		}
		c.logger.WithFields(logger.Fields{
			"core":     core.Name,
			"follower": follower,
		}).Info("Replication triggered")
	}

	return warnings
}

func (c *Client) triggerFetchIndex(ctx context.Context, core config.SolrCoreConfig, follower string) error {
	handler := core.ReplicationHandler
	if handler == "" {
		handler = "replication"
	}
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(follower, "/"), handler)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		var resp replicationResponse
		httpResp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"command": "fetchindex",
				"wt":      "json",
			}).
			SetResult(&resp).
			Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		if httpResp.IsError() {
			lastErr = fmt.Errorf("replication handler returned http %d", httpResp.StatusCode())
			continue
		}
		if !strings.EqualFold(resp.Status, "OK") {
			lastErr = fmt.Errorf("replication handler returned status %q", resp.Status)
			continue
		}
		return nil
	}
	return lastErr
}

func updateURL(core config.SolrCoreConfig) string {
	return strings.TrimSuffix(core.URL, "/") + "/update"
}
