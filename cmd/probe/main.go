// Command probe checks an IMAP mailbox by hand: it connects, logs in,
// and lists unseen messages matching a subject filter. Useful when a
// configured account stops answering and the server logs are not enough.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

func main() {
	var (
		server   = flag.String("server", "", "IMAP server as host:port")
		username = flag.String("user", "", "login username")
		password = flag.String("pass", "", "login password")
		filter   = flag.String("filter", "[AI_REQUEST]", "subject filter")
	)
	flag.Parse()

	if *server == "" || *username == "" || *password == "" {
		log.Fatal("usage: probe -server host:993 -user address -pass secret [-filter marker]")
	}

	host, _, _ := splitHostPort(*server)
	log.Printf("Connecting to %s...", *server)

	tlsConfig := &tls.Config{ServerName: host}
	c, err := client.DialTLS(*server, tlsConfig)
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer c.Logout()
	log.Println("Connected")

	log.Printf("Logging in as %s...", *username)
	if err := c.Login(*username, *password); err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	log.Println("Logged in")

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		log.Fatalf("Failed to select INBOX: %v", err)
	}
	log.Printf("INBOX has %d messages", mbox.Messages)

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if *filter != "" {
		criteria.Header.Add("Subject", *filter)
	}

	seqNums, err := c.Search(criteria)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	log.Printf("%d unseen messages match subject filter %q", len(seqNums), *filter)

	if len(seqNums) == 0 {
		return
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		from := "(unknown)"
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			from = fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
		}
		log.Printf("  #%d %s  from %s  id %s", msg.SeqNum, msg.Envelope.Subject, from, msg.Envelope.MessageId)
	}

	if err := <-done; err != nil {
		log.Fatalf("Fetch failed: %v", err)
	}
}

// splitHostPort splits host:port, tolerating a missing port
func splitHostPort(addr string) (host, port string, ok bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], true
		}
	}
	return addr, "", false
}
