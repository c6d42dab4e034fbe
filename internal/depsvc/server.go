package depsvc

import (
	"log/slog"
	"net/http"

	"github.com/shaiso/Loanflow/internal/api"
	"github.com/shaiso/Loanflow/internal/depclient"
)

// CRMHandler — mock CRM: GET /crm/{cust_id} → KYC-профиль клиента.
func CRMHandler(dir *Directory, logger *slog.Logger) http.Handler {
	mux := newMux()
	mux.HandleFunc("GET /crm/{cust_id}", func(w http.ResponseWriter, r *http.Request) {
		c, ok := dir.Lookup(r.PathValue("cust_id"))
		if !ok {
			api.NotFound(w, "customer not found")
			return
		}
		api.JSON(w, http.StatusOK, depclient.CustomerProfile{
			CustomerID:    c.ID,
			Name:          c.Name,
			Phone:         c.Phone,
			Address:       c.Address,
			KYCStatus:     c.KYCStatus,
			MonthlySalary: c.MonthlySalary,
		})
	})
	return wrap(mux, logger)
}

// BureauHandler — mock кредитного бюро: GET /credit_score?cust_id=... → скор.
func BureauHandler(dir *Directory, logger *slog.Logger) http.Handler {
	mux := newMux()
	mux.HandleFunc("GET /credit_score", func(w http.ResponseWriter, r *http.Request) {
		c, ok := dir.Lookup(r.URL.Query().Get("cust_id"))
		if !ok {
			api.NotFound(w, "customer not found")
			return
		}
		api.JSON(w, http.StatusOK, depclient.CreditReport{
			CustomerID: c.ID,
			Score:      c.CreditScore,
		})
	})
	return wrap(mux, logger)
}

// OffersHandler — mock offer mart: GET /offers?cust_id=... → оффер.
// Клиент без персонального оффера получает 404.
func OffersHandler(dir *Directory, logger *slog.Logger) http.Handler {
	mux := newMux()
	mux.HandleFunc("GET /offers", func(w http.ResponseWriter, r *http.Request) {
		c, ok := dir.Lookup(r.URL.Query().Get("cust_id"))
		if !ok || c.PreApprovedLimit <= 0 {
			api.NotFound(w, "no offer for customer")
			return
		}
		api.JSON(w, http.StatusOK, depclient.Offer{
			CustomerID:       c.ID,
			PreApprovedLimit: c.PreApprovedLimit,
			InterestRate:     c.InterestRate,
		})
	})
	return wrap(mux, logger)
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func wrap(mux *http.ServeMux, logger *slog.Logger) http.Handler {
	return api.Chain(
		api.Recovery(logger),
		api.Logging(logger),
	)(mux)
}
