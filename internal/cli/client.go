package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ApplicationResponse — заявка из API.
type ApplicationResponse struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	State      string         `json:"state"`
	FailedFrom string         `json:"failed_from,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Version    int64          `json:"version"`
	RetryCount int            `json:"retry_count"`
	Context    map[string]any `json:"context,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

// HistoryEntryResponse — запись истории переходов из API.
type HistoryEntryResponse struct {
	Seq          int64  `json:"seq"`
	StateEntered string `json:"state_entered"`
	Outcome      string `json:"outcome"`
	Attempts     int    `json:"attempts"`
	Detail       string `json:"detail,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ApplicationDetailResponse — заявка вместе с историей.
type ApplicationDetailResponse struct {
	ApplicationResponse
	History []HistoryEntryResponse `json:"history"`
}

// --- Request types ---

// SubmitApplicationRequest — подача заявки.
type SubmitApplicationRequest struct {
	CustomerID      string  `json:"customer_id"`
	RequestedAmount float64 `json:"requested_amount"`
	TenureMonths    int     `json:"tenure_months,omitempty"`
}

// AbandonApplicationRequest — операторское закрытие заявки.
type AbandonApplicationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ListApplicationsOpts — параметры фильтрации заявок.
type ListApplicationsOpts struct {
	State  string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Loanflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitApplication подаёт новую заявку.
func (c *Client) SubmitApplication(req SubmitApplicationRequest) (*ApplicationResponse, error) {
	var app ApplicationResponse
	err := c.post("/api/v1/applications", req, &app)
	return &app, err
}

// ListApplications возвращает список заявок с фильтрацией.
func (c *Client) ListApplications(opts ListApplicationsOpts) ([]ApplicationResponse, error) {
	params := url.Values{}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var apps []ApplicationResponse
	err := c.list("/api/v1/applications", params, &apps)
	return apps, err
}

// GetApplication возвращает заявку с историей переходов.
func (c *Client) GetApplication(id string) (*ApplicationDetailResponse, error) {
	var detail ApplicationDetailResponse
	err := c.get("/api/v1/applications/"+id, &detail)
	return &detail, err
}

// RetryApplication возвращает FAILED-заявку в конвейер.
func (c *Client) RetryApplication(id string) (*ApplicationResponse, error) {
	var app ApplicationResponse
	err := c.post("/api/v1/applications/"+id+"/retry", nil, &app)
	return &app, err
}

// AbandonApplication закрывает заявку операторским решением.
func (c *Client) AbandonApplication(id, reason string) (*ApplicationResponse, error) {
	var app ApplicationResponse
	err := c.post("/api/v1/applications/"+id+"/abandon", AbandonApplicationRequest{Reason: reason}, &app)
	return &app, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
