package email

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
)

// SendPasswordReset emails a reset link. Delivery is best-effort and works
// over plain SMTP so local stacks can point at a mailcatcher; with no SMTP
// host configured the link is logged instead, which keeps development
// flows usable.
func SendPasswordReset(to, token string) {
	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", baseURL, token)

	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Printf("SMTP not configured, password reset link for %s: %s", to, link)
		return
	}

	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "no-reply@billing.local"
	}

	msg := []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: Password reset\r\n" +
		"\r\n" +
		"A password reset was requested for your account.\r\n\r\n" +
		"Reset link (valid for 1 hour): " + link + "\r\n\r\n" +
		"If you did not request this, you can ignore this email.\r\n")

	var auth smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASSWORD"), host)
	}

	if err := smtp.SendMail(host+":"+port, auth, from, []string{to}, msg); err != nil {
		log.Printf("Failed to send password reset email to %s: %v", to, err)
	}
}
