package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/iv9eni/ai-email-chat/internal/database/models"
)

// buildAddress builds a host:port address string
func buildAddress(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// ConnectionTestResult represents the result of a connection test
type ConnectionTestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DiagnosticsService probes mail server connectivity for accounts
type DiagnosticsService struct {
	accountService *AccountService
	transport      *Transport
}

// NewDiagnosticsService creates a new DiagnosticsService instance
func NewDiagnosticsService(accountService *AccountService, transport *Transport) *DiagnosticsService {
	return &DiagnosticsService{
		accountService: accountService,
		transport:      transport,
	}
}

// TestIMAPConnection opens and closes an authenticated IMAP session for
// the account, exercising the same path the poller uses
func (s *DiagnosticsService) TestIMAPConnection(ctx context.Context, account *models.EmailAccount) ConnectionTestResult {
	c, err := s.transport.ConnectIMAP(ctx, account)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: "IMAP connection failed: " + err.Error(),
		}
	}
	c.Logout()
	return ConnectionTestResult{
		Success: true,
		Message: "IMAP connection and authentication successful",
	}
}

// TestConnection tests both IMAP and SMTP reachability for an account.
// The SMTP side stops after a successful banner and optional STARTTLS;
// authentication is only proven on the IMAP side to avoid tripping
// send-rate heuristics on some providers.
func (s *DiagnosticsService) TestConnection(ctx context.Context, account *models.EmailAccount) ConnectionTestResult {
	imapResult := s.TestIMAPConnection(ctx, account)
	if !imapResult.Success {
		return imapResult
	}

	smtpResult := testSMTPReachability(buildAddress(account.SMTPHost, account.SMTPPort), account.SMTPPort == 465)
	if !smtpResult.Success {
		return ConnectionTestResult{
			Success: false,
			Message: "SMTP connection failed: " + smtpResult.Message,
		}
	}

	return ConnectionTestResult{
		Success: true,
		Message: "Both IMAP and SMTP connections successful",
	}
}

// TestConnectionInput represents credentials to probe without saving
type TestConnectionInput struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	UseSSL   bool
}

// TestConnectionDirect probes servers with provided credentials before an
// account is created
func (s *DiagnosticsService) TestConnectionDirect(input TestConnectionInput) ConnectionTestResult {
	imapAddr := buildAddress(input.IMAPHost, input.IMAPPort)
	imapResult := testIMAPConnectionInternal(imapAddr, input.Username, input.Password, input.UseSSL)
	if !imapResult.Success {
		return ConnectionTestResult{
			Success: false,
			Message: "IMAP connection failed: " + imapResult.Message,
		}
	}

	smtpAddr := buildAddress(input.SMTPHost, input.SMTPPort)
	smtpResult := testSMTPConnectionInternal(smtpAddr, input.Username, input.Password, input.SMTPPort == 465)
	if !smtpResult.Success {
		return ConnectionTestResult{
			Success: false,
			Message: "SMTP connection failed: " + smtpResult.Message,
		}
	}

	return ConnectionTestResult{
		Success: true,
		Message: "Both IMAP and SMTP connections successful",
	}
}

// testIMAPConnectionInternal tests an IMAP connection over a raw socket
func testIMAPConnectionInternal(addr, username, password string, useSSL bool) ConnectionTestResult {
	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout: connectionTimeout,
	}

	if useSSL {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}

	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to connect to IMAP server: %v", err),
		}
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(connectionTimeout))

	// Read server greeting
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read IMAP greeting: %v", err),
		}
	}

	greeting := string(buf[:n])
	if len(greeting) < 4 || greeting[:4] != "* OK" {
		return ConnectionTestResult{
			Success: false,
			Message: "Invalid IMAP server response",
		}
	}

	loginCmd := fmt.Sprintf("A001 LOGIN %s %s\r\n", username, password)
	if _, err = conn.Write([]byte(loginCmd)); err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to send login command: %v", err),
		}
	}

	conn.SetReadDeadline(time.Now().Add(connectionTimeout))
	n, err = conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read login response: %v", err),
		}
	}

	response := string(buf[:n])
	if len(response) >= 7 && response[:7] == "A001 OK" {
		conn.Write([]byte("A002 LOGOUT\r\n"))
		return ConnectionTestResult{
			Success: true,
			Message: "IMAP connection and authentication successful",
		}
	}

	return ConnectionTestResult{
		Success: false,
		Message: "IMAP authentication failed: " + response,
	}
}

// testSMTPConnectionInternal tests an SMTP connection including auth
func testSMTPConnectionInternal(addr, username, password string, useSSL bool) ConnectionTestResult {
	client, result := dialSMTPForProbe(addr, useSSL)
	if client == nil {
		return result
	}
	defer client.Close()

	host, _, _ := net.SplitHostPort(addr)
	auth := smtp.PlainAuth("", username, password, host)
	if err := client.Auth(auth); err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("SMTP authentication failed: %v", err),
		}
	}

	return ConnectionTestResult{
		Success: true,
		Message: "SMTP connection and authentication successful",
	}
}

// testSMTPReachability checks the SMTP banner without authenticating
func testSMTPReachability(addr string, useSSL bool) ConnectionTestResult {
	client, result := dialSMTPForProbe(addr, useSSL)
	if client == nil {
		return result
	}
	client.Close()

	return ConnectionTestResult{
		Success: true,
		Message: "SMTP server reachable",
	}
}

// dialSMTPForProbe opens an SMTP client for probing, upgrading with
// STARTTLS when offered on plain connections
func dialSMTPForProbe(addr string, useSSL bool) (*smtp.Client, ConnectionTestResult) {
	if useSSL {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: connectionTimeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, ConnectionTestResult{
				Success: false,
				Message: fmt.Sprintf("Failed to connect to SMTP server: %v", err),
			}
		}

		host, _, _ := net.SplitHostPort(addr)
		client, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, ConnectionTestResult{
				Success: false,
				Message: fmt.Sprintf("Failed to create SMTP client: %v", err),
			}
		}
		return client, ConnectionTestResult{}
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to connect to SMTP server: %v", err),
		}
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		// The probe continues unencrypted if the upgrade fails
		_ = client.StartTLS(tlsConfig)
	}
	return client, ConnectionTestResult{}
}
