package services

import (
	"fmt"
	"os"
	"strings"

	"etix/src/lib"
	"etix/src/models"
)

// SMTPReceiptSender delivers the one-time purchase receipt over SMTP.
type SMTPReceiptSender struct{}

func (SMTPReceiptSender) SendReceipt(order *models.Order, event *models.Event) error {
	from := os.Getenv("MAIL_FROM")
	if from == "" {
		from = "no-reply@etix.local"
	}
	return lib.SendMail(&lib.SendMailInput{
		From:     from,
		FromName: "eTix",
		To:       []string{order.BuyerEmail},
		Subject:  fmt.Sprintf("Your tickets for %s", event.Title),
		Body:     renderReceiptHTML(order, event),
		Html:     true,
	})
}

func renderReceiptHTML(order *models.Order, event *models.Event) string {
	var b strings.Builder
	b.WriteString("<h2>Payment received</h2>")
	fmt.Fprintf(&b, "<p>Hi %s, thanks for your purchase! Your order <b>#%s</b> for <b>%s</b> is confirmed.</p>", order.BuyerName, order.ID, event.Title)
	b.WriteString(`<table border="1" cellpadding="6" cellspacing="0">`)
	b.WriteString("<tr><th>Ticket</th><th>Unit price</th><th>Qty</th><th>Amount</th></tr>")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>",
			item.TicketType,
			FormatVND(item.UnitPrice),
			item.Quantity,
			FormatVND(item.UnitPrice*int64(item.Quantity)),
		)
	}
	fmt.Fprintf(&b, "<tr><td colspan=\"3\">Subtotal</td><td>%s</td></tr>", FormatVND(order.Subtotal))
	fmt.Fprintf(&b, "<tr><td colspan=\"3\">Fees</td><td>%s</td></tr>", FormatVND(order.Fees))
	fmt.Fprintf(&b, "<tr><td colspan=\"3\"><b>Total</b></td><td><b>%s</b></td></tr>", FormatVND(order.Total))
	b.WriteString("</table>")
	b.WriteString("<p>Your e-tickets are attached to your account. See you there!</p>")
	return b.String()
}

// FormatVND renders an amount of Vietnamese dong with dot thousand
// separators, e.g. 1500000 -> "1.500.000 ₫".
func FormatVND(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%d", amount)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ".")
	if neg {
		out = "-" + out
	}
	return out + " ₫"
}
