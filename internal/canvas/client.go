package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/keanlouis30/Easely/internal/domain"
)

// Identity describes the Canvas account behind a validated token.
type Identity struct {
	RemoteUserID string
	Name         string
}

// RemoteCourse is one course from the upstream snapshot.
type RemoteCourse struct {
	ID   string
	Name string
	Code string
}

// RemoteAssignment is one assignment from the upstream snapshot. Only
// published assignments with a due timestamp make it out of the client.
type RemoteAssignment struct {
	ID       string
	CourseID string
	Title    string
	DueAt    time.Time // UTC
}

// Client talks to the Canvas REST API. It paces its own requests so that
// back-to-back course fetches inside one snapshot stay under upstream
// limits; the per-user pacing between snapshots lives in the sync driver.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient builds a Canvas client with a 30s request timeout and a
// 10 req/s ceiling.
func NewClient(log *zap.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		log:     log,
	}
}

// Validate checks a credential against /users/self and returns the
// account identity. An invalid token comes back as ErrAuthInvalid.
func (c *Client) Validate(ctx context.Context, cred domain.Credential) (Identity, error) {
	body, err := c.get(ctx, cred, "/api/v1/users/self", nil)
	if err != nil {
		return Identity{}, err
	}

	var self struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &self); err != nil {
		return Identity{}, fmt.Errorf("canvas: decode self: %w", err)
	}
	if self.ID == 0 {
		return Identity{}, fmt.Errorf("canvas: self response missing id")
	}
	return Identity{RemoteUserID: strconv.FormatInt(self.ID, 10), Name: self.Name}, nil
}

type wireCourse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	CourseCode    string `json:"course_code"`
	WorkflowState string `json:"workflow_state"`
}

// ListCourses fetches the complete set of active, available courses for
// a credential. Pagination is followed to the end; a failure on any page
// fails the whole call so the caller never sees a partial snapshot.
func (c *Client) ListCourses(ctx context.Context, cred domain.Credential) ([]RemoteCourse, error) {
	q := url.Values{
		"enrollment_state": {"active"},
		"per_page":         {"100"},
	}

	var courses []RemoteCourse
	err := c.pages(ctx, cred, "/api/v1/courses", q, func(body []byte) error {
		var page []wireCourse
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("canvas: decode courses: %w", err)
		}
		for _, w := range page {
			if w.WorkflowState != "available" {
				continue
			}
			if w.ID == 0 {
				// Malformed record: drop it, keep its siblings.
				c.log.Warn("dropping course without id")
				continue
			}
			name := w.Name
			if name == "" {
				name = "Unnamed Course"
			}
			courses = append(courses, RemoteCourse{
				ID:   strconv.FormatInt(w.ID, 10),
				Name: name,
				Code: w.CourseCode,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return courses, nil
}

type wireAssignment struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	DueAt         string `json:"due_at"`
	WorkflowState string `json:"workflow_state"`
}

// ListAssignments fetches the complete set of published, dated
// assignments across all of the credential's active courses.
// Assignments without a due timestamp, unpublished ones, and records
// with an unparsable due date are excluded here so the sync job only
// ever sees mirror-ready rows.
func (c *Client) ListAssignments(ctx context.Context, cred domain.Credential) ([]RemoteAssignment, error) {
	courses, err := c.ListCourses(ctx, cred)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"per_page": {"100"},
		"order_by": {"due_at"},
	}

	var all []RemoteAssignment
	for _, course := range courses {
		path := "/api/v1/courses/" + course.ID + "/assignments"
		err := c.pages(ctx, cred, path, q, func(body []byte) error {
			var page []wireAssignment
			if err := json.Unmarshal(body, &page); err != nil {
				return fmt.Errorf("canvas: decode assignments: %w", err)
			}
			for _, w := range page {
				if w.WorkflowState != "published" || w.DueAt == "" || w.ID == 0 {
					continue
				}
				due, err := time.Parse(time.RFC3339, w.DueAt)
				if err != nil {
					c.log.Warn("dropping assignment with bad due date",
						zap.Int64("assignment", w.ID), zap.String("due_at", w.DueAt))
					continue
				}
				title := w.Name
				if title == "" {
					title = "Untitled Assignment"
				}
				all = append(all, RemoteAssignment{
					ID:       strconv.FormatInt(w.ID, 10),
					CourseID: course.ID,
					Title:    title,
					DueAt:    due.UTC(),
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

// get performs a single paced GET and returns the body.
func (c *Client) get(ctx context.Context, cred domain.Credential, path string, q url.Values) ([]byte, error) {
	body, _, err := c.getPage(ctx, cred, cred.BaseURL+path+query(q))
	return body, err
}

// pages walks a paginated collection via Link rel="next" headers,
// handing each page body to fn.
func (c *Client) pages(ctx context.Context, cred domain.Credential, path string, q url.Values, fn func(body []byte) error) error {
	next := cred.BaseURL + path + query(q)
	for next != "" {
		body, link, err := c.getPage(ctx, cred, next)
		if err != nil {
			return err
		}
		if err := fn(body); err != nil {
			return err
		}
		next = nextLink(link)
	}
	return nil
}

func (c *Client) getPage(ctx context.Context, cred domain.Credential, rawurl string) (body []byte, link string, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, "", fmt.Errorf("canvas: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("canvas: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, "", ErrAuthInvalid
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", ErrRateLimited
	case resp.StatusCode >= 400:
		return nil, "", fmt.Errorf("canvas: status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("canvas: read body: %w", err)
	}
	return body, resp.Header.Get("Link"), nil
}

func query(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// nextLink extracts the rel="next" URL from a Canvas Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		seg := strings.Split(part, ";")
		if len(seg) < 2 {
			continue
		}
		if strings.TrimSpace(seg[1]) != `rel="next"` {
			continue
		}
		u := strings.TrimSpace(seg[0])
		u = strings.TrimPrefix(u, "<")
		return strings.TrimSuffix(u, ">")
	}
	return ""
}
