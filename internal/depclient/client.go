package depclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/shaiso/Loanflow/internal/stageclient"
)

// Сигналы уровня данных: зависимость доступна, но записи нет.
var (
	// ErrUnknownCustomer — клиент не найден в CRM или бюро.
	ErrUnknownCustomer = errors.New("unknown customer")

	// ErrNoOffer — в offer mart нет предодобренного оффера для клиента.
	ErrNoOffer = errors.New("no pre-approved offer")
)

// Offer — предодобренный оффер из offer mart.
type Offer struct {
	CustomerID       string  `json:"cust_id"`
	PreApprovedLimit float64 `json:"pre_approved_limit"`
	InterestRate     float64 `json:"interest_rate"`
}

// CreditReport — ответ кредитного бюро.
type CreditReport struct {
	CustomerID string `json:"cust_id"`
	Score      int    `json:"score"`
}

// CustomerProfile — KYC-профиль клиента из CRM.
type CustomerProfile struct {
	CustomerID    string  `json:"cust_id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	KYCStatus     string  `json:"kyc_status"`
	MonthlySalary float64 `json:"monthly_salary"`
}

// Статусы KYC в CRM.
const (
	KYCComplete   = "complete"
	KYCIncomplete = "incomplete"
)

// Config — адреса зависимостей и таймаут вызова.
type Config struct {
	CRMURL    string
	BureauURL string
	OffersURL string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// ConfigFromEnv читает адреса зависимостей из окружения.
//
// Переменные: DEP_CRM_URL, DEP_BUREAU_URL, DEP_OFFERS_URL.
// По умолчанию — локальная раскладка loanflow-deps (порты 9001-9003).
func ConfigFromEnv() Config {
	return Config{
		CRMURL:    envOr("DEP_CRM_URL", "http://127.0.0.1:9001"),
		BureauURL: envOr("DEP_BUREAU_URL", "http://127.0.0.1:9002"),
		OffersURL: envOr("DEP_OFFERS_URL", "http://127.0.0.1:9003"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Client — HTTP-клиент сервисов-зависимостей.
type Client struct {
	crmURL    string
	bureauURL string
	offersURL string
	timeout   time.Duration
	http      *http.Client
}

// New создаёт клиент зависимостей.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		crmURL:    cfg.CRMURL,
		bureauURL: cfg.BureauURL,
		offersURL: cfg.OffersURL,
		timeout:   timeout,
		http:      httpClient,
	}
}

// GetOffer возвращает предодобренный оффер клиента из offer mart.
// Отсутствие оффера — ErrNoOffer, не сбой: этап sales подставит fallback.
func (c *Client) GetOffer(ctx context.Context, customerID string) (*Offer, error) {
	var offer Offer
	err := c.get(ctx, c.offersURL+"/offers?cust_id="+url.QueryEscape(customerID), &offer)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoOffer, customerID)
		}
		return nil, fmt.Errorf("offer mart: %w", err)
	}
	return &offer, nil
}

// GetCreditReport возвращает кредитный скор клиента из бюро.
func (c *Client) GetCreditReport(ctx context.Context, customerID string) (*CreditReport, error) {
	var report CreditReport
	err := c.get(ctx, c.bureauURL+"/credit_score?cust_id="+url.QueryEscape(customerID), &report)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
		}
		return nil, fmt.Errorf("credit bureau: %w", err)
	}
	return &report, nil
}

// GetCustomerProfile возвращает KYC-профиль клиента из CRM.
func (c *Client) GetCustomerProfile(ctx context.Context, customerID string) (*CustomerProfile, error) {
	var profile CustomerProfile
	err := c.get(ctx, c.crmURL+"/crm/"+url.PathEscape(customerID), &profile)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
		}
		return nil, fmt.Errorf("crm: %w", err)
	}
	return &profile, nil
}

// errNotFound — внутренний маркер 404 до трансляции в доменный сигнал.
var errNotFound = errors.New("not found")

// get выполняет один GET с таймаутом и классификацией ошибок.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", stageclient.ErrInvalidResponse, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", stageclient.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", stageclient.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", stageclient.ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", stageclient.ErrUnreachable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", stageclient.ErrInvalidResponse, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode: %v", stageclient.ErrInvalidResponse, err)
	}
	return nil
}
