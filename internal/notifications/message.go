package notifications

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-checkout/pkg/money"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// escape keeps customer-entered text from opening Markdown entities.
func escape(s string) string {
	return markdownEscaper.Replace(strings.TrimSpace(s))
}

// FormatOrder renders the operator message for a created order in Telegram Markdown.
func FormatOrder(event payloads.OrderCreatedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Yangi buyurtma* `%s`\n\n", shortID(event.OrderID.String()))
	fmt.Fprintf(&b, "*Mijoz:* %s\n", escape(event.CustomerName))
	fmt.Fprintf(&b, "*Telefon:* %s\n", escape(event.Phone))
	fmt.Fprintf(&b, "*Manzil:* %s\n", escape(event.Address))
	if event.Region != "" {
		fmt.Fprintf(&b, "*Yetkazish:* %s, %s", escape(string(event.Region)), escape(string(event.ServiceTier)))
		if event.LeadTime != "" {
			fmt.Fprintf(&b, " (%s)", escape(event.LeadTime))
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n*Mahsulotlar:*\n")
	for i, item := range event.Items {
		fmt.Fprintf(&b, "%d. %s", i+1, escape(item.Name))
		if variant := variantLabel(item); variant != "" {
			fmt.Fprintf(&b, " (%s)", escape(variant))
		}
		fmt.Fprintf(&b, " x%d = %s\n", item.Quantity, money.Format(item.LineTotal))
	}

	b.WriteByte('\n')
	if event.Discount > 0 {
		fmt.Fprintf(&b, "*Oraliq summa:* %s\n", money.Format(event.Subtotal))
		fmt.Fprintf(&b, "*Chegirma (%s):* -%s\n", escape(event.PromoCode), money.Format(event.Discount))
	}
	fmt.Fprintf(&b, "*Jami:* %s\n", money.Format(event.Total))
	if event.DeliveryFee > 0 {
		fmt.Fprintf(&b, "*Yetkazish narxi:* %s\n", money.Format(event.DeliveryFee))
		fmt.Fprintf(&b, "*To'lanadi:* %s\n", money.Format(event.GrandTotal))
	}
	fmt.Fprintf(&b, "*To'lov usuli:* %s", escape(event.PaymentMethod.Label()))
	return b.String()
}

func variantLabel(item payloads.OrderItem) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(item.SelectedSize); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(item.SelectedColor); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
