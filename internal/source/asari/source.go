package asari

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"estate_sync/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	SourceID   = "asari"
	SourceName = "Asari CRM"

	manifestPath = "exportedListingIdList"
	listingPath  = "listing"
	agentsPath   = "userList"

	maxBodySize = 32 << 20
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrNotFound         = errors.New("not found")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrRejected         = errors.New("request rejected by upstream")
)

// Config holds Asari client configuration.
type Config struct {
	BaseURL        string
	UserID         string
	Token          string
	ImageBaseURL   string
	PageSize       int
	PageDelay      time.Duration
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source is the HTTP client for the Asari site API.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	auth           string
	imageBaseURL   string
	pageSize       int
	pageDelay      time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Asari source.
func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		auth:           cfg.UserID + ":" + cfg.Token,
		imageBaseURL:   strings.TrimRight(cfg.ImageBaseURL, "/"),
		pageSize:       cfg.PageSize,
		pageDelay:      cfg.PageDelay,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// ListExportedListingIDs returns the id/lastUpdated manifest of every
// listing currently exported to the site, in upstream order. Duplicate ids
// keep their first occurrence. When upstream reports totalCount, paging
// continues until that many ids are collected and a shortfall is an
// ErrInvalidPayload; otherwise a short page ends the manifest.
func (s *Source) ListExportedListingIDs(ctx context.Context) ([]domain.ManifestEntry, error) {
	var entries []domain.ManifestEntry
	seen := make(map[int64]bool)
	reported := 0

	for page := 0; ; page++ {
		if page > 0 && s.pageDelay > 0 {
			if err := sleep(ctx, s.pageDelay); err != nil {
				return nil, err
			}
		}

		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("pageSize", strconv.Itoa(s.pageSize))

		var resp envelope[[]ManifestItem]
		if err := s.get(ctx, manifestPath, query, manifestSchema, &resp); err != nil {
			return nil, fmt.Errorf("fetch manifest page %d: %w", page, err)
		}

		added := 0
		for _, item := range resp.Data {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			added++

			lastUpdated, err := ParseTime(item.LastUpdated)
			if err != nil {
				s.logger.Warn("unparseable manifest timestamp, forcing refetch",
					"external_id", item.ID,
					"last_updated", item.LastUpdated,
				)
				lastUpdated = time.Now().UTC()
			}
			entries = append(entries, domain.ManifestEntry{
				ExternalID:  item.ID,
				LastUpdated: lastUpdated,
			})
		}

		s.logger.Debug("fetched manifest page",
			"page", page,
			"items", len(resp.Data),
			"total", len(entries),
		)

		if resp.TotalCount > 0 {
			reported = resp.TotalCount
		}
		if added == 0 {
			break
		}
		if reported > 0 {
			if len(entries) >= reported {
				break
			}
			continue
		}
		if len(resp.Data) < s.pageSize {
			break
		}
	}

	// The archive pass needs the complete manifest.
	if len(entries) < reported {
		return nil, fmt.Errorf("fetch manifest: %w: paging stopped at %d of %d listings",
			ErrInvalidPayload, len(entries), reported)
	}

	return entries, nil
}

// GetListingDetail fetches the full record for one listing.
func (s *Source) GetListingDetail(ctx context.Context, id int64) (*Listing, error) {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(id, 10))

	var resp envelope[Listing]
	if err := s.get(ctx, listingPath, query, listingSchema, &resp); err != nil {
		return nil, fmt.Errorf("fetch listing %d: %w", id, err)
	}
	if resp.Data.ID != id {
		return nil, fmt.Errorf("fetch listing %d: %w: got id %d", id, ErrInvalidPayload, resp.Data.ID)
	}

	return &resp.Data, nil
}

// ListAgents returns the whole user roster, active and inactive.
func (s *Source) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp envelope[[]Agent]
	if err := s.get(ctx, agentsPath, nil, agentsSchema, &resp); err != nil {
		return nil, fmt.Errorf("fetch agents: %w", err)
	}
	return resp.Data, nil
}

// ImageURLs returns the thumbnail, normal and original URLs of an image.
func (s *Source) ImageURLs(imageID int64) (thumbnail, normal, original string) {
	id := strconv.FormatInt(imageID, 10)
	return s.imageBaseURL + "/thumbnail/" + id,
		s.imageBaseURL + "/normal/" + id,
		s.imageBaseURL + "/original/" + id
}

// permanentError marks a failure that a retry cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (s *Source) get(ctx context.Context, path string, query url.Values, schema *jsonschema.Schema, out any) error {
	endpoint := s.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.doRequest(ctx, endpoint, schema, out)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, endpoint string, schema *jsonschema.Schema, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &permanentError{fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "EstateSync/1.0")
	req.Header.Set("SiteAuth", s.auth)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return &permanentError{ErrNotFound}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	default:
		return &permanentError{fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := validate(schema, body); err != nil {
		return &permanentError{err}
	}

	var head struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return &permanentError{fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}
	if !head.Success {
		return &permanentError{ErrRejected}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &permanentError{fmt.Errorf("%w: decode response: %v", ErrInvalidPayload, err)}
	}

	return nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts the timestamp spellings the site API uses. Values
// without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
