package depsvc

// Customer — синтетическая запись клиента, разделяемая
// всеми тремя mock-сервисами.
type Customer struct {
	ID               string
	Name             string
	Phone            string
	Address          string
	KYCStatus        string
	MonthlySalary    float64
	CreditScore      int
	PreApprovedLimit float64 // 0 — персонального оффера нет
	InterestRate     float64
}

// Directory — справочник синтетических клиентов.
type Directory struct {
	customers map[string]Customer
}

// NewDirectory создаёт справочник с тестовым набором клиентов,
// покрывающим все ветки конвейера.
func NewDirectory() *Directory {
	seed := []Customer{
		{
			// Полный KYC, высокий скор, персональный оффер: happy path.
			ID: "CUST-1001", Name: "Ivan Petrov",
			Phone: "+7-900-100-1001", Address: "12 Tverskaya St, Moscow",
			KYCStatus: "complete", MonthlySalary: 90000,
			CreditScore: 780, PreApprovedLimit: 100000, InterestRate: 10.5,
		},
		{
			// Неполный KYC: verification вернёт NEEDS_INFO.
			ID: "CUST-1002", Name: "Anna Sokolova",
			Phone: "+7-900-100-1002", Address: "4 Nevsky Ave, Saint Petersburg",
			KYCStatus: "incomplete", MonthlySalary: 65000,
			CreditScore: 740, PreApprovedLimit: 80000, InterestRate: 11.0,
		},
		{
			// Низкий скор: отказ на андеррайтинге.
			ID: "CUST-1003", Name: "Dmitry Volkov",
			Phone: "+7-900-100-1003", Address: "7 Lenina St, Kazan",
			KYCStatus: "complete", MonthlySalary: 55000,
			CreditScore: 640, PreApprovedLimit: 60000, InterestRate: 12.0,
		},
		{
			// Без персонального оффера: sales подставит generic.
			ID: "CUST-1004", Name: "Elena Morozova",
			Phone: "+7-900-100-1004", Address: "21 Mira Ave, Novosibirsk",
			KYCStatus: "complete", MonthlySalary: 48000,
			CreditScore: 720, PreApprovedLimit: 0, InterestRate: 0,
		},
		{
			// Скромная зарплата: EMI-проверка между 1x и 2x лимита.
			ID: "CUST-1005", Name: "Sergey Lebedev",
			Phone: "+7-900-100-1005", Address: "3 Sadovaya St, Yekaterinburg",
			KYCStatus: "complete", MonthlySalary: 30000,
			CreditScore: 710, PreApprovedLimit: 50000, InterestRate: 13.5,
		},
	}

	customers := make(map[string]Customer, len(seed))
	for _, c := range seed {
		customers[c.ID] = c
	}
	return &Directory{customers: customers}
}

// Lookup возвращает клиента по идентификатору.
func (d *Directory) Lookup(id string) (Customer, bool) {
	c, ok := d.customers[id]
	return c, ok
}
