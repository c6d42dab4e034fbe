package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Loanflow/internal/depclient"
	"github.com/shaiso/Loanflow/internal/depsvc"
	"github.com/shaiso/Loanflow/internal/domain"
	"github.com/shaiso/Loanflow/internal/stageclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newDeps поднимает все три mock-сервиса зависимостей и возвращает
// клиент, настроенный на них.
func newDeps(t *testing.T) *depclient.Client {
	t.Helper()
	dir := depsvc.NewDirectory()
	logger := testLogger()

	crm := httptest.NewServer(depsvc.CRMHandler(dir, logger))
	bureau := httptest.NewServer(depsvc.BureauHandler(dir, logger))
	offers := httptest.NewServer(depsvc.OffersHandler(dir, logger))
	t.Cleanup(crm.Close)
	t.Cleanup(bureau.Close)
	t.Cleanup(offers.Close)

	return depclient.New(depclient.Config{
		CRMURL:    crm.URL,
		BureauURL: bureau.URL,
		OffersURL: offers.URL,
	})
}

func snapshot(customerID string, appCtx map[string]any) domain.Snapshot {
	return domain.Snapshot{
		ApplicationID: uuid.New(),
		CustomerID:    customerID,
		State:         domain.StatePendingSales,
		Context:       appCtx,
	}
}

// --- Sales ---

func TestSalesPersonalOffer(t *testing.T) {
	s := NewSales(newDeps(t), testLogger())

	result, err := s.Process(context.Background(), snapshot("CUST-1001", map[string]any{
		domain.CtxRequestedAmount: 80000.0,
	}))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeApproved {
		t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
	}
	if got := result.Payload[domain.CtxPreApprovedLimit]; got != 100000.0 {
		t.Errorf("pre_approved_limit = %v, want 100000", got)
	}
	if got := result.Payload[domain.CtxInterestRate]; got != 10.5 {
		t.Errorf("interest_rate = %v, want 10.5", got)
	}
}

func TestSalesGenericFallback(t *testing.T) {
	s := NewSales(newDeps(t), testLogger())

	// У CUST-1004 нет персонального оффера — подставляется generic.
	result, err := s.Process(context.Background(), snapshot("CUST-1004", map[string]any{
		domain.CtxRequestedAmount: 20000.0,
	}))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeApproved {
		t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
	}
	if got := result.Payload[domain.CtxPreApprovedLimit]; got != float64(fallbackLimit) {
		t.Errorf("pre_approved_limit = %v, want %v", got, fallbackLimit)
	}
	if got := result.Payload[domain.CtxInterestRate]; got != fallbackRate {
		t.Errorf("interest_rate = %v, want %v", got, fallbackRate)
	}
}

func TestSalesRejectsOversizedRequest(t *testing.T) {
	s := NewSales(newDeps(t), testLogger())

	// 250000 > 2x лимита 100000.
	result, err := s.Process(context.Background(), snapshot("CUST-1001", map[string]any{
		domain.CtxRequestedAmount: 250000.0,
	}))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeRejected {
		t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
	}
	if result.Reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestSalesMissingAmount(t *testing.T) {
	s := NewSales(newDeps(t), testLogger())

	_, err := s.Process(context.Background(), snapshot("CUST-1001", nil))
	if !errors.Is(err, ErrBadSnapshot) {
		t.Fatalf("err = %v, want ErrBadSnapshot", err)
	}
}

func TestSalesDependencyDownIsRetryable(t *testing.T) {
	offers := httptest.NewServer(http.NotFoundHandler())
	offersURL := offers.URL
	offers.Close()

	s := NewSales(depclient.New(depclient.Config{OffersURL: offersURL}), testLogger())

	_, err := s.Process(context.Background(), snapshot("CUST-1001", map[string]any{
		domain.CtxRequestedAmount: 10000.0,
	}))
	if err == nil {
		t.Fatal("expected an error when offer mart is down")
	}
	if !stageclient.Retryable(err) {
		t.Errorf("err = %v, want retryable", err)
	}
}

// --- Verification ---

func TestVerificationApproved(t *testing.T) {
	v := NewVerification(newDeps(t), testLogger())

	result, err := v.Process(context.Background(), snapshot("CUST-1001", nil))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeApproved {
		t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
	}
	if got := result.Payload[domain.CtxKYCName]; got != "Ivan Petrov" {
		t.Errorf("kyc_name = %v, want Ivan Petrov", got)
	}
	if got := result.Payload[domain.CtxMonthlySalary]; got != 90000.0 {
		t.Errorf("monthly_salary = %v, want 90000", got)
	}
}

func TestVerificationNeedsInfo(t *testing.T) {
	v := NewVerification(newDeps(t), testLogger())

	result, err := v.Process(context.Background(), snapshot("CUST-1002", nil))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeNeedsInfo {
		t.Fatalf("outcome = %s, want NEEDS_INFO", result.Outcome)
	}
	if result.Reason == "" {
		t.Error("expected a reason for NEEDS_INFO")
	}
}

func TestVerificationUnknownCustomer(t *testing.T) {
	v := NewVerification(newDeps(t), testLogger())

	result, err := v.Process(context.Background(), snapshot("CUST-9999", nil))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeRejected {
		t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
	}
}

// --- Underwriting ---

func underwritingCtx(amount, limit, rate float64, tenure int, salary float64) map[string]any {
	m := map[string]any{
		domain.CtxRequestedAmount:  amount,
		domain.CtxPreApprovedLimit: limit,
		domain.CtxInterestRate:     rate,
		domain.CtxTenureMonths:     tenure,
	}
	if salary > 0 {
		m[domain.CtxMonthlySalary] = salary
	}
	return m
}

func TestUnderwritingRejectsLowScore(t *testing.T) {
	u := NewUnderwriting(newDeps(t), testLogger())

	// У CUST-1003 скор 640.
	result, err := u.Process(context.Background(),
		snapshot("CUST-1003", underwritingCtx(40000, 60000, 12.0, 36, 55000)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeRejected {
		t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
	}
	if !strings.Contains(result.Reason, "credit score") {
		t.Errorf("reason = %q, want credit score rejection", result.Reason)
	}
}

func TestUnderwritingApprovesWithinLimit(t *testing.T) {
	u := NewUnderwriting(newDeps(t), testLogger())

	result, err := u.Process(context.Background(),
		snapshot("CUST-1001", underwritingCtx(80000, 100000, 10.5, 36, 90000)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeApproved {
		t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
	}
	if got := result.Payload[domain.CtxSanctionedAmount]; got != 80000.0 {
		t.Errorf("sanctioned_amount = %v, want 80000", got)
	}
	emi, ok := result.Payload[domain.CtxEMI].(float64)
	if !ok || emi <= 0 {
		t.Errorf("emi = %v, want positive float", result.Payload[domain.CtxEMI])
	}
}

func TestUnderwritingRejectsOverTwiceLimit(t *testing.T) {
	u := NewUnderwriting(newDeps(t), testLogger())

	result, err := u.Process(context.Background(),
		snapshot("CUST-1001", underwritingCtx(250000, 100000, 10.5, 36, 90000)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeRejected {
		t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
	}
}

func TestUnderwritingEMICheck(t *testing.T) {
	u := NewUnderwriting(newDeps(t), testLogger())

	// CUST-1005: лимит 50000, зарплата 30000 — половина зарплаты 15000/мес.
	t.Run("emi exceeds half salary", func(t *testing.T) {
		// 95000 за 6 месяцев: EMI около 16.4k > 15000.
		result, err := u.Process(context.Background(),
			snapshot("CUST-1005", underwritingCtx(95000, 50000, 13.5, 6, 30000)))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if result.Outcome != domain.OutcomeRejected {
			t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
		}
		if !strings.Contains(result.Reason, "EMI") {
			t.Errorf("reason = %q, want EMI rejection", result.Reason)
		}
	})

	t.Run("emi fits half salary", func(t *testing.T) {
		// 60000 за 36 месяцев: EMI около 2k, проходит.
		result, err := u.Process(context.Background(),
			snapshot("CUST-1005", underwritingCtx(60000, 50000, 13.5, 36, 30000)))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if result.Outcome != domain.OutcomeApproved {
			t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
		}
	})

	t.Run("no salary on record", func(t *testing.T) {
		result, err := u.Process(context.Background(),
			snapshot("CUST-1005", underwritingCtx(60000, 50000, 13.5, 36, 0)))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if result.Outcome != domain.OutcomeRejected {
			t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
		}
		if !strings.Contains(result.Reason, "salary") {
			t.Errorf("reason = %q, want salary rejection", result.Reason)
		}
	})
}

func TestUnderwritingMissingContext(t *testing.T) {
	u := NewUnderwriting(newDeps(t), testLogger())

	_, err := u.Process(context.Background(), snapshot("CUST-1001", map[string]any{
		domain.CtxRequestedAmount: 50000.0,
	}))
	if !errors.Is(err, ErrBadSnapshot) {
		t.Fatalf("err = %v, want ErrBadSnapshot", err)
	}
}

func TestEMI(t *testing.T) {
	// Классический пример: 100000 под 12% годовых на 12 месяцев.
	got := EMI(100000, 12, 12)
	if math.Abs(got-8884.88) > 0.01 {
		t.Errorf("EMI(100000, 12, 12) = %.2f, want 8884.88", got)
	}

	// Нулевая ставка — равные доли.
	if got := EMI(12000, 0, 12); got != 1000 {
		t.Errorf("EMI(12000, 0, 12) = %.2f, want 1000", got)
	}
}

// --- Sanction ---

func sanctionCtx() map[string]any {
	return map[string]any{
		domain.CtxSanctionedAmount: 80000.0,
		domain.CtxInterestRate:     10.5,
		domain.CtxTenureMonths:     36,
	}
}

func TestSanctionIssuesLetter(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LETTER_DIR", dir)

	s := NewSanction(newDeps(t), testLogger())

	result, err := s.Process(context.Background(), snapshot("CUST-1001", sanctionCtx()))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeApproved {
		t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
	}

	ref, ok := result.Payload[domain.CtxLetterRef].(string)
	if !ok || !strings.HasPrefix(ref, "SL-") {
		t.Fatalf("letter_ref = %v, want SL-* reference", result.Payload[domain.CtxLetterRef])
	}
	if _, ok := result.Payload["letter_issued_at"]; !ok {
		t.Error("expected letter_issued_at in payload")
	}

	data, err := os.ReadFile(filepath.Join(dir, ref+".txt"))
	if err != nil {
		t.Fatalf("letter file not written: %v", err)
	}
	letter := string(data)
	if !strings.Contains(letter, "Ivan Petrov") {
		t.Error("letter is missing the customer name")
	}
	if !strings.Contains(letter, "80000.00") {
		t.Error("letter is missing the sanctioned amount")
	}
}

func TestSanctionWithoutLetterDir(t *testing.T) {
	t.Setenv("LETTER_DIR", "")

	s := NewSanction(newDeps(t), testLogger())

	result, err := s.Process(context.Background(), snapshot("CUST-1001", sanctionCtx()))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeApproved {
		t.Fatalf("outcome = %s, want APPROVED (%s)", result.Outcome, result.Reason)
	}
}

func TestSanctionUnknownCustomer(t *testing.T) {
	s := NewSanction(newDeps(t), testLogger())

	result, err := s.Process(context.Background(), snapshot("CUST-9999", sanctionCtx()))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != domain.OutcomeRejected {
		t.Fatalf("outcome = %s, want REJECTED", result.Outcome)
	}
}

func TestSanctionMissingContext(t *testing.T) {
	s := NewSanction(newDeps(t), testLogger())

	_, err := s.Process(context.Background(), snapshot("CUST-1001", nil))
	if !errors.Is(err, ErrBadSnapshot) {
		t.Fatalf("err = %v, want ErrBadSnapshot", err)
	}
}

// --- HTTP-протокол этапного сервиса ---

func postSnapshot(t *testing.T, url string, snap domain.Snapshot) *http.Response {
	t.Helper()
	body, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	resp, err := http.Post(url+"/process", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /process: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProcessEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewMux(domain.StageSales, NewSales(newDeps(t), testLogger()), testLogger()))
	defer srv.Close()

	t.Run("approved", func(t *testing.T) {
		resp := postSnapshot(t, srv.URL, snapshot("CUST-1001", map[string]any{
			domain.CtxRequestedAmount: 80000.0,
		}))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var result domain.StageResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		if result.Outcome != domain.OutcomeApproved {
			t.Errorf("outcome = %s, want APPROVED", result.Outcome)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/process", "application/json", strings.NewReader("{not json"))
		if err != nil {
			t.Fatalf("POST /process: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("missing context key", func(t *testing.T) {
		resp := postSnapshot(t, srv.URL, snapshot("CUST-1001", nil))
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}

func TestProcessEndpointDependencyDown(t *testing.T) {
	offers := httptest.NewServer(http.NotFoundHandler())
	offersURL := offers.URL
	offers.Close()

	deps := depclient.New(depclient.Config{OffersURL: offersURL})
	srv := httptest.NewServer(NewMux(domain.StageSales, NewSales(deps, testLogger()), testLogger()))
	defer srv.Close()

	resp := postSnapshot(t, srv.URL, snapshot("CUST-1001", map[string]any{
		domain.CtxRequestedAmount: 10000.0,
	}))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
