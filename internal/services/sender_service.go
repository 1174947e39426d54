package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	cryptoRand "crypto/rand"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
)

// SenderService builds and dispatches reply mail for accounts
type SenderService struct {
	transport  *Transport
	logService *LogService
}

// NewSenderService creates a new SenderService instance
func NewSenderService(transport *Transport, logService *LogService) *SenderService {
	return &SenderService{
		transport:  transport,
		logService: logService,
	}
}

// ReplySubject normalizes a subject for a reply: exactly one "Re: "
// prefix regardless of how the inbound subject was cased
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "Re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// SendReply sends a plain-text reply from the account to the recipient,
// threading it onto the original message via In-Reply-To and References
func (s *SenderService) SendReply(ctx context.Context, account *models.EmailAccount, to, subject, inReplyTo, body string) error {
	replySubject := ReplySubject(subject)
	content := buildReplyMessage(account.EmailAddress, to, replySubject, inReplyTo, body)

	err := s.transport.SendMail(ctx, account, []string{to}, content)
	s.logService.LogReplySent(account.ID, to, replySubject, err)
	return err
}

// buildReplyMessage assembles an RFC 5322 message with a base64-encoded
// UTF-8 text body
func buildReplyMessage(from, to, subject, inReplyTo, body string) string {
	var sb strings.Builder

	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("Message-ID: " + generateMessageID(from) + "\r\n")
	if inReplyTo != "" {
		sb.WriteString("In-Reply-To: " + inReplyTo + "\r\n")
		sb.WriteString("References: " + inReplyTo + "\r\n")
	}
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("Content-Transfer-Encoding: base64\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(wrapBase64(base64.StdEncoding.EncodeToString([]byte(body))))
	sb.WriteString("\r\n")

	return sb.String()
}

// generateMessageID generates a unique message ID
func generateMessageID(email string) string {
	timestamp := time.Now().UnixNano()
	domain := "localhost"
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		domain = parts[1]
	}
	return fmt.Sprintf("<%d.%s@%s>", timestamp, randomString(8), domain)
}

// wrapBase64 wraps base64 content to 76 characters per line (MIME standard)
func wrapBase64(content string) string {
	const lineLength = 76
	var result strings.Builder
	for i := 0; i < len(content); i += lineLength {
		end := i + lineLength
		if end > len(content) {
			end = len(content)
		}
		result.WriteString(content[i:end])
		if end < len(content) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}

// randomString generates a random alphanumeric string
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	randBytes := make([]byte, n)
	if _, err := io.ReadFull(cryptoRand.Reader, randBytes); err != nil {
		for i := range b {
			b[i] = letters[(time.Now().UnixNano()+int64(i))%int64(len(letters))]
		}
		return string(b)
	}
	for i := range b {
		b[i] = letters[int(randBytes[i])%len(letters)]
	}
	return string(b)
}
