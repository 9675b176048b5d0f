package mailsync

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/models"
	"github.com/corkcrm/michael-mail-2/internal/token"
	"github.com/corkcrm/michael-mail-2/internal/transform"
	"github.com/jhillyerd/enmime"
)

// Validation messages shown by the compose dialog.
const (
	errMissingRecipient = "Please enter a recipient"
	errMissingContent   = "Please enter a subject or message"
	errAuthExpired      = "Gmail access expired. Please sign in again."
	errSendFailed       = "Failed to send email"
)

// SendResult reports a send attempt.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func sendFailure(msg string) *SendResult {
	return &SendResult{Error: msg}
}

// SendEmail validates the request, builds a MIME message and sends it through
// Gmail. The sent message is then fetched and stored; failure to do so is
// only logged.
func (s *Service) SendEmail(ctx context.Context, userID string, req models.SendRequest) *SendResult {
	if strings.TrimSpace(req.To) == "" {
		return sendFailure(errMissingRecipient)
	}
	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "" {
		return sendFailure(errMissingContent)
	}

	to, err := parseAddresses(req.To)
	if err != nil {
		return sendFailure(fmt.Sprintf("Invalid recipient: %v", err))
	}
	cc, err := parseAddresses(req.Cc)
	if err != nil {
		return sendFailure(fmt.Sprintf("Invalid Cc: %v", err))
	}
	bcc, err := parseAddresses(req.Bcc)
	if err != nil {
		return sendFailure(fmt.Sprintf("Invalid Bcc: %v", err))
	}

	cred, err := s.store.GetCredentials(ctx, userID)
	if err != nil {
		s.logger.Warn("No credentials for send", "user_id", userID, "error", err)
		return sendFailure(errAuthExpired)
	}

	raw, err := s.buildMessage(cred.Email, to, cc, bcc, req)
	if err != nil {
		s.logger.Error("Failed to build message", "user_id", userID, "error", err)
		return sendFailure(errSendFailed)
	}

	var ref *gmail.MessageRef
	err = s.tokens.Do(ctx, userID, func(accessToken string) error {
		var err error
		ref, err = s.api.SendRaw(ctx, accessToken, raw)
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to send email", "user_id", userID, "error", err)
		return sendFailure(sendErrorMessage(err))
	}

	s.logger.Info("Sent email", "user_id", userID, "gmail_id", ref.ID, "recipients", len(to)+len(cc)+len(bcc))
	s.storeSent(ctx, userID, ref.ID)

	return &SendResult{Success: true, MessageID: ref.ID}
}

// buildMessage returns the base64url encoding of a multipart/alternative
// message. The HTML part is the escaped plain body with <br> line breaks.
func (s *Service) buildMessage(from string, to, cc, bcc []mail.Address, req models.SendRequest) (string, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = transform.NoSubject
	}

	b := enmime.Builder().
		From("", from).
		ToAddrs(to).
		Subject(subject).
		Date(s.now()).
		Text([]byte(req.Body)).
		HTML([]byte(strings.ReplaceAll(html.EscapeString(req.Body), "\n", "<br>")))
	if len(cc) > 0 {
		b = b.CCAddrs(cc)
	}
	if len(bcc) > 0 {
		// Gmail reads Bcc from the raw message and strips it before delivery.
		b = b.BCCAddrs(bcc).Header("Bcc", joinAddresses(bcc))
	}

	root, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build MIME message: %w", err)
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return "", fmt.Errorf("failed to encode MIME message: %w", err)
	}

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// storeSent fetches the sent message and upserts it with its thread.
func (s *Service) storeSent(ctx context.Context, userID, gmailID string) {
	var msg *gmail.Message
	err := s.tokens.Do(ctx, userID, func(accessToken string) error {
		var err error
		msg, err = s.api.GetMessage(ctx, accessToken, gmailID)
		return err
	})
	if err != nil {
		s.logger.Warn("Failed to fetch sent message", "user_id", userID, "gmail_id", gmailID, "error", err)
		return
	}

	email, attachments := transform.NormalizeMessage(msg, userID, s.now())
	if err := s.store.UpsertEmail(ctx, email); err != nil {
		s.logger.Warn("Failed to store sent message", "user_id", userID, "gmail_id", gmailID, "error", err)
		return
	}
	s.saveAttachments(ctx, email, attachments)
	s.refreshThread(ctx, userID, email.GmailThreadID)
}

// parseAddresses parses a comma separated address list. Empty input is
// an empty list.
func parseAddresses(value string) ([]mail.Address, error) {
	parts := transform.ParseAddressList(value)
	out := make([]mail.Address, 0, len(parts))
	for _, p := range parts {
		addr, err := mail.ParseAddress(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, *addr)
	}
	return out, nil
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, len(addrs))
	for i := range addrs {
		parts[i] = addrs[i].String()
	}
	return strings.Join(parts, ", ")
}

func sendErrorMessage(err error) string {
	if errors.Is(err, token.ErrAuthExpired) {
		return errAuthExpired
	}
	var statusErr *gmail.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("%s: %s", errSendFailed, statusErr.Status)
	}
	return errSendFailed
}
