package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"duel-arena/models"
	"duel-arena/utils"

	"golang.org/x/time/rate"
)

// VerdictAccepted is the only verdict that counts as a solve.
const VerdictAccepted = "OK"

// Submission is one judge-reported attempt, reduced to what scoring needs.
type Submission struct {
	ContestID   int       `json:"contest_id"`
	Index       string    `json:"index"`
	Verdict     string    `json:"verdict"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Key returns the catalog identifier of the attempted problem.
func (s Submission) Key() string {
	return models.ProblemKey(s.ContestID, s.Index)
}

// UserProfile is the slice of user.info the platform cares about.
type UserProfile struct {
	Handle string `json:"handle"`
	Rating int    `json:"rating"`
	Rank   string `json:"rank"`
}

// JudgeClient is the read-only boundary to the external judge. The scorer
// and selector depend on this interface so tests can substitute doubles.
type JudgeClient interface {
	ProblemList(ctx context.Context) ([]models.CatalogProblem, error)
	UserSubmissions(ctx context.Context, handle string) ([]Submission, error)
	UserInfo(ctx context.Context, handle string) (*UserProfile, error)
}

// CodeforcesClient talks to the public Codeforces REST API. Calls share a
// client-side rate limiter; Codeforces throttles aggressively and a single
// scoring pass fans out one request per participant.
type CodeforcesClient struct {
	BaseURL string
	Client  *http.Client
	limiter *rate.Limiter
}

func NewCodeforcesClient() *CodeforcesClient {
	baseURL := os.Getenv("CODEFORCES_API_URL")
	if baseURL == "" {
		baseURL = "https://codeforces.com/api"
	}
	return &CodeforcesClient{
		BaseURL: baseURL,
		Client:  utils.HTTPClient,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

// apiEnvelope is the wrapper every Codeforces endpoint returns.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

type apiProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Points    float64  `json:"points"`
	Rating    int      `json:"rating"`
	Tags      []string `json:"tags"`
}

type apiSubmission struct {
	ID                  int64      `json:"id"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	Verdict             string     `json:"verdict"`
	Problem             apiProblem `json:"problem"`
}

func (c *CodeforcesClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, path, resp.StatusCode, string(body))
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	if envelope.Status != "OK" {
		return fmt.Errorf("%w: %s: %s", ErrUpstream, path, envelope.Comment)
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *CodeforcesClient) ProblemList(ctx context.Context) ([]models.CatalogProblem, error) {
	var result struct {
		Problems []apiProblem `json:"problems"`
	}
	if err := c.get(ctx, "/problemset.problems", nil, &result); err != nil {
		return nil, err
	}

	problems := make([]models.CatalogProblem, 0, len(result.Problems))
	for _, p := range result.Problems {
		problemType := p.Type
		if problemType == "" {
			problemType = "PROGRAMMING"
		}
		problems = append(problems, models.CatalogProblem{
			ContestID: p.ContestID,
			Index:     strings.ToUpper(p.Index),
			Name:      p.Name,
			Type:      problemType,
			Points:    p.Points,
			Rating:    p.Rating,
			Tags:      strings.Join(p.Tags, ","),
		})
	}
	return problems, nil
}

func (c *CodeforcesClient) UserSubmissions(ctx context.Context, handle string) ([]Submission, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrValidation)
	}
	var result []apiSubmission
	query := url.Values{"handle": {handle}}
	if err := c.get(ctx, "/user.status", query, &result); err != nil {
		return nil, err
	}

	submissions := make([]Submission, 0, len(result))
	for _, s := range result {
		submissions = append(submissions, Submission{
			ContestID:   s.Problem.ContestID,
			Index:       strings.ToUpper(s.Problem.Index),
			Verdict:     s.Verdict,
			SubmittedAt: time.Unix(s.CreationTimeSeconds, 0),
		})
	}
	return submissions, nil
}

func (c *CodeforcesClient) UserInfo(ctx context.Context, handle string) (*UserProfile, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrValidation)
	}
	var result []UserProfile
	query := url.Values{"handles": {handle}}
	if err := c.get(ctx, "/user.info", query, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: unknown handle %q", ErrUpstream, handle)
	}
	return &result[0], nil
}
