package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"ms-auctions/internal/config"
	"ms-auctions/internal/logger"
	"ms-auctions/internal/order/invoice"
)

// SMTPMailer sends the winner notification with the invoice details
// and the claim QR attached.
type SMTPMailer struct {
	cfg    config.EmailConfig
	logger *logger.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, log *logger.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: log}
}

func (m *SMTPMailer) SendWinnerNotification(ctx context.Context, to string, inv *invoice.Invoice) error {
	if m.cfg.SMTPHost == "" {
		m.logger.Warn("EMAIL", "SMTP not configured, skipping winner notification")
		return nil
	}

	msg := m.buildMessage(to, inv)
	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort

	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to send winner email: %w", err)
		}
	}
	m.logger.Info("EMAIL", fmt.Sprintf("Winner notification sent to %s for order %s", to, inv.OrderCode))
	return nil
}

const mimeBoundary = "ARTSPACE-INVOICE"

func (m *SMTPMailer) buildMessage(to string, inv *invoice.Invoice) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: You won the auction! Order %s\r\n", inv.OrderCode)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mimeBoundary)

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Congratulations %s!\r\n\r\n", inv.BuyerName)
	fmt.Fprintf(&b, "You won the auction for %s at %.2f EGP.\r\n", itemTitles(inv), inv.PaidAmount)
	fmt.Fprintf(&b, "Order code: %s\r\n", inv.OrderCode)
	fmt.Fprintf(&b, "Shipping to: %s, %s, %s\r\n\r\n", inv.Address.Street, inv.Address.City, inv.Address.Country)
	b.WriteString("Present the attached QR code when your order is delivered.\r\n")

	if len(inv.ClaimQR) > 0 {
		fmt.Fprintf(&b, "\r\n--%s\r\n", mimeBoundary)
		b.WriteString("Content-Type: image/png\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=\"claim-%s.png\"\r\n\r\n", inv.OrderCode)
		b.WriteString(base64.StdEncoding.EncodeToString(inv.ClaimQR))
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}

func itemTitles(inv *invoice.Invoice) string {
	titles := make([]string, 0, len(inv.Items))
	for _, it := range inv.Items {
		titles = append(titles, it.Title)
	}
	return strings.Join(titles, ", ")
}
