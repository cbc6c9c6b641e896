// Package zoho wraps the Zoho CRM v2 API for lead management and report
// attachments.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// dataCenters maps a data center code to its API and accounts hosts.
var dataCenters = map[string][2]string{
	"us": {"https://www.zohoapis.com", "https://accounts.zoho.com"},
	"eu": {"https://www.zohoapis.eu", "https://accounts.zoho.eu"},
	"in": {"https://www.zohoapis.in", "https://accounts.zoho.in"},
	"au": {"https://www.zohoapis.com.au", "https://accounts.zoho.com.au"},
	"jp": {"https://www.zohoapis.jp", "https://accounts.zoho.jp"},
}

// Lead is a Zoho CRM lead record. Field names follow the CRM API.
type Lead struct {
	ID          string `json:"id,omitempty"`
	Company     string `json:"Company,omitempty"`
	LastName    string `json:"Last_Name,omitempty"`
	Phone       string `json:"Phone,omitempty"`
	Email       string `json:"Email,omitempty"`
	Website     string `json:"Website,omitempty"`
	LeadSource  string `json:"Lead_Source,omitempty"`
	LeadStatus  string `json:"Lead_Status,omitempty"`
	Street      string `json:"Street,omitempty"`
	City        string `json:"City,omitempty"`
	State       string `json:"State,omitempty"`
	Description string `json:"Description,omitempty"`
}

// Attachment is a file attached to a CRM record.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"File_Name"`
}

// Client performs Zoho CRM operations.
type Client interface {
	SearchLeadByCompany(ctx context.Context, company string) (*Lead, error)
	CreateLead(ctx context.Context, lead Lead) (string, error)
	ListAttachments(ctx context.Context, leadID string) ([]Attachment, error)
	UploadAttachment(ctx context.Context, leadID, fileName string, content []byte) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the CRM API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithAccountsURL overrides the OAuth accounts base URL.
func WithAccountsURL(u string) Option {
	return func(c *httpClient) {
		c.accountsURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the request rate limit in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	accountsURL  string
	http         *http.Client
	limiter      *rate.Limiter

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

// NewClient creates a Zoho CRM client for the given data center. Unknown
// data centers fall back to US.
func NewClient(clientID, clientSecret, dataCenter string, opts ...Option) Client {
	hosts, ok := dataCenters[strings.ToLower(dataCenter)]
	if !ok {
		hosts = dataCenters["us"]
	}
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      hosts[0],
		accountsURL:  hosts[1],
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid access token, requesting a new one via the OAuth
// client-credentials grant when the cached token is within 60s of expiry.
func (c *httpClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiresAt.Add(-60*time.Second)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "zoho: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "zoho: token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "zoho: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("zoho: token status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "zoho: unmarshal token response")
	}
	if tok.AccessToken == "" {
		return "", eris.New("zoho: empty access token")
	}

	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.accessToken, nil
}

// do performs an authenticated request and returns the response body.
// A 204 returns a nil body and no error.
func (c *httpClient) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "zoho: rate limiter wait")
	}

	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrapf(err, "zoho: create request %s %s", method, path)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+tok)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "zoho: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "zoho: read response")
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("zoho: %s %s status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

type leadListResponse struct {
	Data []Lead `json:"data"`
}

// SearchLeadByCompany returns the first lead whose Company field matches,
// or nil when none exists. Zoho answers an empty search with 204.
func (c *httpClient) SearchLeadByCompany(ctx context.Context, company string) (*Lead, error) {
	criteria := url.QueryEscape("(Company:equals:" + company + ")")
	body, err := c.do(ctx, http.MethodGet, "/crm/v2/Leads/search?criteria="+criteria, "", nil)
	if err != nil {
		return nil, eris.Wrap(err, "zoho: search leads")
	}
	if body == nil {
		return nil, nil
	}

	var result leadListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "zoho: unmarshal search response")
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return &result.Data[0], nil
}

type createResponse struct {
	Data []struct {
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Status string `json:"status"`
	} `json:"data"`
}

// CreateLead creates a lead and returns its id.
func (c *httpClient) CreateLead(ctx context.Context, lead Lead) (string, error) {
	payload, err := json.Marshal(map[string][]Lead{"data": {lead}})
	if err != nil {
		return "", eris.Wrap(err, "zoho: marshal lead")
	}

	body, err := c.do(ctx, http.MethodPost, "/crm/v2/Leads", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "zoho: create lead")
	}

	var result createResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "zoho: unmarshal create response")
	}
	if len(result.Data) == 0 || result.Data[0].Details.ID == "" {
		return "", eris.New("zoho: create lead returned no id")
	}
	return result.Data[0].Details.ID, nil
}

type attachmentListResponse struct {
	Data []Attachment `json:"data"`
}

// ListAttachments returns the attachments on a lead. A lead with no
// attachments yields an empty slice.
func (c *httpClient) ListAttachments(ctx context.Context, leadID string) ([]Attachment, error) {
	body, err := c.do(ctx, http.MethodGet, "/crm/v2/Leads/"+leadID+"/Attachments?fields=id,File_Name", "", nil)
	if err != nil {
		return nil, eris.Wrap(err, "zoho: list attachments")
	}
	if body == nil {
		return nil, nil
	}

	var result attachmentListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "zoho: unmarshal attachments response")
	}
	return result.Data, nil
}

// UploadAttachment attaches a file to a lead via multipart upload.
func (c *httpClient) UploadAttachment(ctx context.Context, leadID, fileName string, content []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return eris.Wrap(err, "zoho: create form file")
	}
	if _, err := part.Write(content); err != nil {
		return eris.Wrap(err, "zoho: write form file")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "zoho: close multipart writer")
	}

	_, err = c.do(ctx, http.MethodPost, "/crm/v2/Leads/"+leadID+"/Attachments", w.FormDataContentType(), &buf)
	if err != nil {
		return eris.Wrapf(err, "zoho: upload attachment %s", fileName)
	}
	return nil
}
