package email

import (
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoRecipient = errors.New("order has no email address")

// Receipt is the content of a settlement receipt
type Receipt struct {
	OrderID       int64
	TransactionID string
	Amount        decimal.Decimal
	SettledAt     time.Time
}

// BuildSettlementReceiptBody builds the HTML body for a settlement receipt
func BuildSettlementReceiptBody(r Receipt) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2f855a; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Your payment has been received.</p>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">Order</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right; font-family: monospace;">#%d</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">Transaction</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right; font-family: monospace;">%s</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">Date</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Amount charged</span>
			<span style="font-size: 24px; font-weight: bold; color: #2f855a; margin-left: 10px;">$%s</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically. Please contact support if you have any questions.
		</p>
	</div>
</body>
</html>`,
		r.OrderID,
		html.EscapeString(r.TransactionID),
		r.SettledAt.UTC().Format("2006-01-02 15:04 MST"),
		r.Amount.StringFixed(2),
	)
}
