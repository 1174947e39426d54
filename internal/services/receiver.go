package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/functions/ai"
)

// defaultSystemPrompt frames the model as the mailbox's correspondent
const defaultSystemPrompt = `You are a helpful AI assistant replying to emails on behalf of the mailbox owner.
Write a plain-text reply to the latest message, taking the whole conversation into account.
Be concise, polite and directly address what was asked. Do not include a subject line,
greetings boilerplate or a signature unless the conversation calls for it.`

// Generator produces the assistant's next turn from conversation history
type Generator interface {
	GenerateReply(systemPrompt string, history []ai.ChatMessage) (string, error)
}

// ReplySender dispatches a reply for an account
type ReplySender interface {
	SendReply(ctx context.Context, account *models.EmailAccount, to, subject, inReplyTo, body string) error
}

// InboundMessage is one unseen mail pulled from an account's inbox
type InboundMessage struct {
	SeqNum    uint32
	MessageID string
	Subject   string
	From      string
	Body      string
}

// PollStats summarizes one poll of one account
type PollStats struct {
	Matched  int
	Answered int
	Skipped  int
}

// ReceiverService polls inboxes for assistant requests and drives the
// ingest-generate-reply pipeline for each matching message
type ReceiverService struct {
	transport           *Transport
	conversationService *ConversationService
	generator           Generator
	sender              ReplySender
	logService          *LogService
	subjectFilter       string
	systemPrompt        string
}

// NewReceiverService creates a new ReceiverService instance
func NewReceiverService(transport *Transport, conversationService *ConversationService, generator Generator, sender ReplySender, logService *LogService, subjectFilter string) *ReceiverService {
	return &ReceiverService{
		transport:           transport,
		conversationService: conversationService,
		generator:           generator,
		sender:              sender,
		logService:          logService,
		subjectFilter:       subjectFilter,
		systemPrompt:        defaultSystemPrompt,
	}
}

// ProcessAccount polls one account's inbox once. Each matching unseen
// message is answered and marked seen; failures are logged per message
// and leave that message unseen for the next cycle.
func (s *ReceiverService) ProcessAccount(ctx context.Context, account *models.EmailAccount) (PollStats, error) {
	var stats PollStats

	c, err := s.transport.ConnectIMAP(ctx, account)
	if err != nil {
		s.logService.LogPollCycle(account.ID, 0, 0, 0, err)
		return stats, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		err = fmt.Errorf("failed to select INBOX: %v", err)
		s.logService.LogPollCycle(account.ID, 0, 0, 0, err)
		return stats, err
	}

	// Server-side search: unseen messages whose subject carries the
	// request marker
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if s.subjectFilter != "" {
		criteria.Header.Add("Subject", s.subjectFilter)
	}

	seqNums, err := c.Search(criteria)
	if err != nil {
		err = fmt.Errorf("inbox search failed: %v", err)
		s.logService.LogPollCycle(account.ID, 0, 0, 0, err)
		return stats, err
	}

	if len(seqNums) == 0 {
		s.logService.LogPollCycle(account.ID, 0, 0, 0, nil)
		return stats, nil
	}

	inbound, err := s.fetchMessages(c, seqNums)
	if err != nil {
		s.logService.LogPollCycle(account.ID, len(seqNums), 0, 0, err)
		return stats, err
	}

	for _, msg := range inbound {
		if ctx.Err() != nil {
			break
		}

		// The server-side search matches the subject anywhere; the
		// marker must be an exact prefix
		if s.subjectFilter != "" && !strings.HasPrefix(msg.Subject, s.subjectFilter) {
			continue
		}
		stats.Matched++

		err := s.handleInbound(ctx, account, msg)
		switch {
		case err == nil:
			stats.Answered++
		case errors.Is(err, ErrDuplicateMessage):
			// Already answered in an earlier cycle; just clear the flag
			stats.Skipped++
		default:
			s.logService.LogError(account.ID, models.LogModulePoller, "process_message",
				"Failed to process message "+msg.MessageID, map[string]interface{}{
					"from":  msg.From,
					"error": err.Error(),
				})
			continue
		}

		if err := s.markSeen(c, msg.SeqNum); err != nil {
			s.logService.LogWarn(account.ID, models.LogModulePoller, "mark_seen",
				"Failed to mark message seen: "+err.Error(), nil)
		}
	}

	s.logService.LogPollCycle(account.ID, stats.Matched, stats.Answered, stats.Skipped, nil)
	return stats, nil
}

// fetchMessages pulls envelope and full body for the given sequence numbers
func (s *ReceiverService) fetchMessages(c *client.Client, seqNums []uint32) ([]InboundMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var inbound []InboundMessage
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}

		im := InboundMessage{
			SeqNum:    msg.SeqNum,
			MessageID: msg.Envelope.MessageId,
			Subject:   msg.Envelope.Subject,
		}
		if len(msg.Envelope.From) > 0 {
			im.From = formatAddress(msg.Envelope.From[0])
		}

		if literal := msg.GetBody(section); literal != nil {
			raw, err := io.ReadAll(literal)
			if err == nil {
				im.Body = extractTextFromRaw(raw)
			}
		}

		inbound = append(inbound, im)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %v", err)
	}
	return inbound, nil
}

// handleInbound threads one message into its conversation, generates the
// assistant's reply, dispatches it and records both turns
func (s *ReceiverService) handleInbound(ctx context.Context, account *models.EmailAccount, msg InboundMessage) error {
	participant := ExtractEmail(msg.From)
	if participant == "" {
		return errors.New("message has no sender address")
	}
	if strings.EqualFold(participant, account.EmailAddress) {
		// Never answer our own mail
		return ErrDuplicateMessage
	}

	conv, err := s.conversationService.GetOrCreate(account.ID, participant)
	if err != nil {
		return err
	}

	body := strings.TrimSpace(msg.Body)
	userMsg, created, err := s.conversationService.AddUserMessage(conv, body, msg.Subject, msg.MessageID)
	if err != nil {
		return err
	}
	if !created {
		// A message seen before is only skipped once it has been
		// answered; otherwise a failed earlier cycle left it pending
		// and the pipeline runs again from the existing turn
		answered, err := s.conversationService.AnsweredAfter(conv.ID, userMsg.ID)
		if err != nil {
			return err
		}
		if answered {
			return ErrDuplicateMessage
		}
	}

	history, err := s.conversationService.History(conv.ID)
	if err != nil {
		return err
	}

	reply, err := s.generator.GenerateReply(s.systemPrompt, history)
	if err != nil {
		return fmt.Errorf("reply generation failed: %w", err)
	}

	if err := s.sender.SendReply(ctx, account, participant, msg.Subject, msg.MessageID, reply); err != nil {
		return err
	}

	// Record the assistant turn only once the reply is on the wire
	if _, err := s.conversationService.AddAssistantMessage(conv, reply, ReplySubject(msg.Subject)); err != nil {
		return err
	}

	return nil
}

// markSeen sets the \Seen flag on one message
func (s *ReceiverService) markSeen(c *client.Client, seqNum uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return c.Store(seqset, item, []interface{}{imap.SeenFlag}, nil)
}

// formatAddress formats an IMAP address to a string
func formatAddress(addr *imap.Address) string {
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName)
	}
	return fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
}

// ExtractEmail pulls the bare address out of a display form like
// "Alice Example <alice@example.com>". The first angle-bracket pair
// wins; without one the raw value is returned as-is.
func ExtractEmail(from string) string {
	from = strings.TrimSpace(from)
	start := strings.Index(from, "<")
	end := strings.Index(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return from
}

// extractTextFromRaw parses a raw RFC 5322 message and extracts its text
func extractTextFromRaw(raw []byte) string {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	return ExtractText(entity)
}

// ExtractText walks a message entity and returns its readable text.
// Within a multipart, the first text/plain part wins outright and any
// HTML collected before it is discarded; nested multiparts contribute
// whatever they resolve to.
func ExtractText(entity *message.Entity) string {
	mediaType, _, _ := entity.Header.ContentType()

	if strings.HasPrefix(mediaType, "multipart/") {
		var acc strings.Builder
		mr := entity.MultipartReader()
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}

			partType, _, _ := part.Header.ContentType()
			switch {
			case partType == "text/plain":
				body, _ := io.ReadAll(part.Body)
				return string(body)
			case strings.HasPrefix(partType, "multipart/"):
				acc.WriteString(ExtractText(part))
			case partType == "text/html":
				body, _ := io.ReadAll(part.Body)
				acc.Write(body)
			}
		}
		return acc.String()
	}

	// Single-part message: only textual bodies carry the request.
	// An absent Content-Type defaults to text.
	if mediaType == "text/plain" || mediaType == "text/html" || mediaType == "" {
		body, _ := io.ReadAll(entity.Body)
		return string(body)
	}
	return ""
}
