package depclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Loanflow/internal/stageclient"
)

func depsServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /offers", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cust_id") {
		case "CUST-1001":
			json.NewEncoder(w).Encode(Offer{
				CustomerID:       "CUST-1001",
				PreApprovedLimit: 100000,
				InterestRate:     10.5,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /credit_score", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cust_id") {
		case "CUST-1001":
			json.NewEncoder(w).Encode(CreditReport{CustomerID: "CUST-1001", Score: 750})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /crm/{cust_id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("cust_id") {
		case "CUST-1001":
			json.NewEncoder(w).Encode(CustomerProfile{
				CustomerID:    "CUST-1001",
				Name:          "Ivan Petrov",
				KYCStatus:     KYCComplete,
				MonthlySalary: 60000,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T) *Client {
	srv := depsServer(t)
	return New(Config{
		CRMURL:    srv.URL,
		BureauURL: srv.URL,
		OffersURL: srv.URL,
		Timeout:   time.Second,
	})
}

func TestGetOffer(t *testing.T) {
	client := testClient(t)

	offer, err := client.GetOffer(context.Background(), "CUST-1001")
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	if offer.PreApprovedLimit != 100000 || offer.InterestRate != 10.5 {
		t.Errorf("offer = %+v", offer)
	}
}

func TestGetOfferMissing(t *testing.T) {
	client := testClient(t)

	_, err := client.GetOffer(context.Background(), "CUST-9999")
	if !errors.Is(err, ErrNoOffer) {
		t.Fatalf("err = %v, want ErrNoOffer", err)
	}
	if stageclient.Retryable(err) {
		t.Error("missing offer is a data signal, not a retryable failure")
	}
}

func TestGetCreditReport(t *testing.T) {
	client := testClient(t)

	report, err := client.GetCreditReport(context.Background(), "CUST-1001")
	if err != nil {
		t.Fatalf("GetCreditReport: %v", err)
	}
	if report.Score != 750 {
		t.Errorf("score = %d", report.Score)
	}

	_, err = client.GetCreditReport(context.Background(), "CUST-9999")
	if !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("err = %v, want ErrUnknownCustomer", err)
	}
}

func TestGetCustomerProfile(t *testing.T) {
	client := testClient(t)

	profile, err := client.GetCustomerProfile(context.Background(), "CUST-1001")
	if err != nil {
		t.Fatalf("GetCustomerProfile: %v", err)
	}
	if profile.KYCStatus != KYCComplete || profile.MonthlySalary != 60000 {
		t.Errorf("profile = %+v", profile)
	}

	_, err = client.GetCustomerProfile(context.Background(), "CUST-9999")
	if !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("err = %v, want ErrUnknownCustomer", err)
	}
}

func TestDependencyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := New(Config{CRMURL: url, BureauURL: url, OffersURL: url, Timeout: time.Second})

	_, err := client.GetOffer(context.Background(), "CUST-1001")
	if !errors.Is(err, stageclient.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if !stageclient.Retryable(err) {
		t.Error("transport failures must be retryable")
	}
}

func TestDependencyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(Config{CRMURL: srv.URL, BureauURL: srv.URL, OffersURL: srv.URL, Timeout: time.Second})

	_, err := client.GetCreditReport(context.Background(), "CUST-1001")
	if !errors.Is(err, stageclient.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestDependencyMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{broken"))
	}))
	defer srv.Close()

	client := New(Config{CRMURL: srv.URL, BureauURL: srv.URL, OffersURL: srv.URL, Timeout: time.Second})

	_, err := client.GetCustomerProfile(context.Background(), "CUST-1001")
	if !errors.Is(err, stageclient.ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
	if stageclient.Retryable(err) {
		t.Error("malformed responses must not be retryable")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DEP_CRM_URL", "http://crm.internal:9001")

	cfg := ConfigFromEnv()
	if cfg.CRMURL != "http://crm.internal:9001" {
		t.Errorf("crm url = %q", cfg.CRMURL)
	}
	if cfg.BureauURL != "http://127.0.0.1:9002" {
		t.Errorf("bureau url = %q, want default", cfg.BureauURL)
	}
	if cfg.OffersURL != "http://127.0.0.1:9003" {
		t.Errorf("offers url = %q, want default", cfg.OffersURL)
	}
}
