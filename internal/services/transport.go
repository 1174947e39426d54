package services

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"
	"github.com/iv9eni/ai-email-chat/internal/database/models"
)

const connectionTimeout = 10 * time.Second

var (
	// ErrIMAPConnectionFailed indicates the IMAP server could not be reached
	ErrIMAPConnectionFailed = errors.New("IMAP connection failed")
	// ErrSMTPConnectionFailed indicates the SMTP server could not be reached
	ErrSMTPConnectionFailed = errors.New("SMTP connection failed")
	// ErrAuthenticationFailed indicates the mail server rejected the credentials
	ErrAuthenticationFailed = errors.New("mail server authentication failed")
)

// loginAuth implements smtp.Auth for LOGIN authentication
// Required by providers that do not accept PLAIN
type loginAuth struct {
	username, password string
}

func newLoginAuth(username, password string) smtp.Auth {
	return &loginAuth{username, password}
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:", "username:":
			return []byte(a.username), nil
		case "Password:", "password:":
			return []byte(a.password), nil
		default:
			// Some servers send base64 encoded prompts
			decoded, err := base64.StdEncoding.DecodeString(string(fromServer))
			if err == nil {
				switch strings.ToLower(string(decoded)) {
				case "username:", "username":
					return []byte(a.username), nil
				case "password:", "password":
					return []byte(a.password), nil
				}
			}
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}

// XOAuth2Client implements the SASL XOAUTH2 mechanism for IMAP
type XOAuth2Client struct {
	Username    string
	AccessToken string
}

// NewXOAuth2Client creates a new XOAUTH2 SASL client
func NewXOAuth2Client(username, accessToken string) *XOAuth2Client {
	return &XOAuth2Client{
		Username:    username,
		AccessToken: accessToken,
	}
}

// Start begins the XOAUTH2 authentication
func (c *XOAuth2Client) Start() (mech string, ir []byte, err error) {
	// XOAUTH2 initial response format: "user=" + user + "\x01auth=Bearer " + token + "\x01\x01"
	ir = []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.Username, c.AccessToken))
	return "XOAUTH2", ir, nil
}

// Next handles server challenges (XOAUTH2 doesn't have additional challenges)
func (c *XOAuth2Client) Next(challenge []byte) (response []byte, err error) {
	return nil, nil
}

// xoauth2Auth implements smtp.Auth for the XOAUTH2 mechanism
type xoauth2Auth struct {
	username, accessToken string
}

func newXOAuth2Auth(username, accessToken string) smtp.Auth {
	return &xoauth2Auth{username, accessToken}
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	ir := []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, a.accessToken))
	return "XOAUTH2", ir, nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// Server sent an error payload; respond with empty line to get the final status
		return []byte{}, nil
	}
	return nil, nil
}

// Transport opens authenticated IMAP and SMTP sessions for accounts
type Transport struct {
	accountService *AccountService
	tokenService   *TokenService
}

// NewTransport creates a new Transport instance
func NewTransport(accountService *AccountService, tokenService *TokenService) *Transport {
	return &Transport{
		accountService: accountService,
		tokenService:   tokenService,
	}
}

// credentials resolves the secret the account authenticates with: a fresh
// access token for OAuth accounts, the stored password otherwise.
func (t *Transport) credentials(ctx context.Context, account *models.EmailAccount) (secret string, isOAuth bool, err error) {
	if account.IsOAuth2() {
		token, ok := t.tokenService.AccessToken(ctx, account)
		if !ok {
			return "", true, fmt.Errorf("%w: no usable access token", ErrAuthenticationFailed)
		}
		return token, true, nil
	}

	password, err := t.accountService.GetDecryptedPassword(account)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return password, false, nil
}

// ConnectIMAP establishes an authenticated IMAP connection for the account
func (t *Transport) ConnectIMAP(ctx context.Context, account *models.EmailAccount) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	var c *client.Client

	dialer := &net.Dialer{Timeout: connectionTimeout}

	if account.UseSSL {
		tlsConfig := &tls.Config{ServerName: account.IMAPHost}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
	}

	c.Timeout = 2 * time.Minute

	// Some servers require client identification before login; best effort
	if ok, _ := c.Support("ID"); ok {
		idClient := id.NewClient(c)
		_, _ = idClient.ID(id.ID{
			id.FieldName:    "PostMind",
			id.FieldVersion: "1.0.0",
			id.FieldVendor:  "PostMind",
		})
	}

	secret, isOAuth, err := t.credentials(ctx, account)
	if err != nil {
		c.Logout()
		return nil, err
	}

	if isOAuth {
		saslClient := NewXOAuth2Client(account.Username, secret)
		if err := c.Authenticate(saslClient); err != nil {
			c.Logout()
			return nil, fmt.Errorf("%w: XOAUTH2: %v", ErrAuthenticationFailed, err)
		}
	} else {
		if err := c.Login(account.Username, secret); err != nil {
			c.Logout()
			return nil, fmt.Errorf("%w: login: %v", ErrAuthenticationFailed, err)
		}
	}

	return c, nil
}

// SendMail delivers a fully formed RFC 5322 message for the account.
// Port policy: 587 dials plain and requires STARTTLS; 465 or the SSL
// flag uses implicit TLS; anything else upgrades opportunistically.
func (t *Transport) SendMail(ctx context.Context, account *models.EmailAccount, recipients []string, content string) error {
	secret, isOAuth, err := t.credentials(ctx, account)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", account.SMTPHost, account.SMTPPort)
	implicitTLS := account.SMTPPort != 587 && (account.SMTPPort == 465 || account.UseSSL)

	var smtpClient *smtp.Client
	if implicitTLS {
		tlsConfig := &tls.Config{ServerName: account.SMTPHost}
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: connectionTimeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSMTPConnectionFailed, err)
		}
		smtpClient, err = smtp.NewClient(conn, account.SMTPHost)
		if err != nil {
			conn.Close()
			return fmt.Errorf("%w: %v", ErrSMTPConnectionFailed, err)
		}
	} else {
		conn, err := (&net.Dialer{Timeout: connectionTimeout}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSMTPConnectionFailed, err)
		}
		smtpClient, err = smtp.NewClient(conn, account.SMTPHost)
		if err != nil {
			conn.Close()
			return fmt.Errorf("%w: %v", ErrSMTPConnectionFailed, err)
		}
		if ok, _ := smtpClient.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: account.SMTPHost}
			if err := smtpClient.StartTLS(tlsConfig); err != nil {
				smtpClient.Close()
				return fmt.Errorf("%w: STARTTLS: %v", ErrSMTPConnectionFailed, err)
			}
		} else if account.SMTPPort == 587 {
			// Submission port without STARTTLS means credentials would
			// travel in the clear
			smtpClient.Close()
			return fmt.Errorf("%w: server on port 587 does not offer STARTTLS", ErrSMTPConnectionFailed)
		}
	}
	defer smtpClient.Close()

	var auth smtp.Auth
	if isOAuth {
		auth = newXOAuth2Auth(account.Username, secret)
	} else {
		auth = smtp.PlainAuth("", account.Username, secret, account.SMTPHost)
	}

	if err := smtpClient.Auth(auth); err != nil {
		if isOAuth {
			return fmt.Errorf("%w: XOAUTH2: %v", ErrAuthenticationFailed, err)
		}
		// Some servers reject PLAIN but accept LOGIN
		auth = newLoginAuth(account.Username, secret)
		if err2 := smtpClient.Auth(auth); err2 != nil {
			return fmt.Errorf("%w: tried PLAIN and LOGIN: %v", ErrAuthenticationFailed, err)
		}
	}

	if err := smtpClient.Mail(account.EmailAddress); err != nil {
		return fmt.Errorf("%w: MAIL FROM: %v", ErrSMTPConnectionFailed, err)
	}

	for _, rcpt := range recipients {
		if err := smtpClient.Rcpt(rcpt); err != nil {
			return fmt.Errorf("%w: RCPT TO %s: %v", ErrSMTPConnectionFailed, rcpt, err)
		}
	}

	w, err := smtpClient.Data()
	if err != nil {
		return fmt.Errorf("%w: DATA: %v", ErrSMTPConnectionFailed, err)
	}

	if _, err := w.Write([]byte(content)); err != nil {
		return fmt.Errorf("%w: write: %v", ErrSMTPConnectionFailed, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrSMTPConnectionFailed, err)
	}

	// Message is accepted at this point; some servers return odd
	// responses to QUIT, ignore them
	smtpClient.Quit()
	return nil
}
