package service

import (
	"time"

	"perfumaria/backend/internal/domain"
)

// First-run dataset. Every call returns fresh slices so a reset never shares
// memory with an earlier state.

func day(value string) time.Time {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		panic(err)
	}
	return t
}

func seedClients() []domain.Client {
	return []domain.Client{
		{ID: "1", Name: "Ana Clara Souza", Phone: "(11) 98765-4321", Email: "ana.souza@email.com", Address: "Rua das Flores, 123", AvatarURL: "https://picsum.photos/id/1027/100/100"},
		{ID: "2", Name: "Bruno Oliveira", Phone: "(21) 91234-5678", Email: "bruno.oliveira@email.com", Address: "Avenida Brasil, 456", AvatarURL: "https://picsum.photos/id/1005/100/100"},
		{ID: "3", Name: "Carla Martins", Phone: "(31) 99988-7766", Email: "carla.martins@email.com", Address: "Praça da Liberdade, 789", AvatarURL: "https://picsum.photos/id/1011/100/100"},
		{ID: "4", Name: "Beatriz Costa", Phone: "(41) 98877-6655", Email: "beatriz.costa@email.com", Address: "Alameda dos Anjos, 101", AvatarURL: "https://picsum.photos/id/1012/100/100"},
		{ID: "5", Name: "Carlos Andrade", Phone: "(51) 97766-5544", Email: "carlos.andrade@email.com", Address: "Rua do Sol, 202", AvatarURL: "https://picsum.photos/id/1013/100/100"},
	}
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{ID: "p1", Name: "Kaiak Aventura", PriceCents: domain.MustCents("149.90")},
		{ID: "p2", Name: "Egeo Dolce", PriceCents: domain.MustCents("119.90")},
		{ID: "p3", Name: "La Vie Est Belle", PriceCents: domain.MustCents("350.00")},
		{ID: "p4", Name: "Sauvage Dior", PriceCents: domain.MustCents("420.00")},
		{ID: "p5", Name: "Acqua di Giò", PriceCents: domain.MustCents("380.00")},
		{ID: "p6", Name: "Good Girl", PriceCents: domain.MustCents("280.00")},
		{ID: "p7", Name: "Bleu de Chanel", PriceCents: domain.MustCents("450.00")},
		{ID: "p8", Name: "Perfume Elegance", PriceCents: domain.MustCents("250.00")},
		{ID: "p9", Name: "Kit Hidratante", PriceCents: domain.MustCents("110.00")},
		{ID: "p10", Name: "Perfume Fresh", PriceCents: domain.MustCents("320.00")},
	}
}

func seedSales() []domain.Sale {
	line := func(productID string, qty int, price string) []domain.SaleItem {
		return []domain.SaleItem{{ProductID: productID, Quantity: qty, UnitPriceCents: domain.MustCents(price)}}
	}
	paid := func(id string, date string, amount string, method string) []domain.Payment {
		return []domain.Payment{{ID: id, Date: day(date), AmountCents: domain.MustCents(amount), Method: method}}
	}

	return []domain.Sale{
		{ID: "s1", ClientID: "4", Items: line("p8", 1, "250.00"), TotalCents: 25000, Date: day("2024-05-15"), PaymentMethod: domain.PaymentCredit, Payments: []domain.Payment{}},
		{ID: "s2", ClientID: "4", Items: line("p9", 1, "110.00"), TotalCents: 11000, Date: day("2024-04-02"), PaymentMethod: domain.PaymentCredit, Payments: paid("pay1", "2024-05-10", "90.00", "PIX")},
		{ID: "s3", ClientID: "4", Items: line("p10", 1, "320.00"), TotalCents: 32000, Date: day("2024-03-10"), PaymentMethod: domain.PaymentCredit, Payments: paid("pay2", "2024-03-12", "320.00", "Dinheiro")},
		{ID: "s4", ClientID: "5", Items: line("p3", 1, "180.50"), TotalCents: 18050, Date: day("2024-06-10"), PaymentMethod: domain.PaymentCredit, Payments: []domain.Payment{}},
		{ID: "s5", ClientID: "1", Items: line("p1", 1, "149.90"), TotalCents: 14990, Date: day("2024-06-20"), PaymentMethod: domain.PaymentPix, Payments: paid("pay3", "2024-06-20", "149.90", "PIX")},
		{ID: "s6", ClientID: "2", Items: line("p2", 2, "119.90"), TotalCents: 23980, Date: day("2024-06-18"), PaymentMethod: domain.PaymentCard, Payments: paid("pay4", "2024-06-18", "239.80", "Cartão")},
	}
}

func seedExpenses() []domain.Expense {
	return []domain.Expense{
		{ID: "e1", Description: "Compra de amostras", Category: "Compra de Estoque", AmountCents: 15000, Date: day("2024-06-10")},
		{ID: "e2", Description: "Embalagens", Category: domain.DefaultExpenseCategory, AmountCents: 7550, Date: day("2024-06-05")},
	}
}

func seedUser() domain.UserProfile {
	return domain.UserProfile{
		Name:      "Ana Silva",
		Phone:     "(11) 98765-4321",
		Email:     "ana.silva@email.com",
		AvatarURL: "https://picsum.photos/id/1018/100/100",
	}
}
