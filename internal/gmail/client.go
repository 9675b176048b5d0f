package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// API is the subset of the Gmail REST API the sync engine needs.
// Every call takes the bearer access token to use.
type API interface {
	ListMessages(ctx context.Context, accessToken string, maxResults int64, pageToken string) (*ListResult, error)
	GetMessage(ctx context.Context, accessToken, messageID string) (*Message, error)
	SendRaw(ctx context.Context, accessToken, raw string) (*MessageRef, error)
	ModifyLabels(ctx context.Context, accessToken, messageID string, add, remove []string) error
}

// Ensure Client implements API.
var _ API = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// Endpoint overrides the API base URL, for example a local fake.
	// Empty means https://gmail.googleapis.com/.
	Endpoint string
	// Timeout bounds every HTTP request.
	Timeout time.Duration
	// Transport is the underlying round tripper. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Client talks to Gmail through google.golang.org/api/gmail/v1.
type Client struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewClient creates a new Gmail client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:  opts.Endpoint,
		timeout:   timeout,
		transport: opts.Transport,
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: c.transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// ListMessages lists one page of message ids, newest first.
func (c *Client) ListMessages(ctx context.Context, accessToken string, maxResults int64, pageToken string) (*ListResult, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List("me").MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapError("list messages", err)
	}

	result := &ListResult{
		Messages:           make([]MessageRef, 0, len(resp.Messages)),
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}
	for _, m := range resp.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		result.Messages = append(result.Messages, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return result, nil
}

// GetMessage fetches one message with its full MIME tree.
func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (*Message, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError(fmt.Sprintf("get message %s", messageID), err)
	}

	return convertMessage(msg), nil
}

// SendRaw sends a base64url-encoded RFC 2822 message.
func (c *Client) SendRaw(ctx context.Context, accessToken, raw string) (*MessageRef, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	sent, err := svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return nil, mapError("send message", err)
	}

	return &MessageRef{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// ModifyLabels adds and removes labels on one message.
func (c *Client) ModifyLabels(ctx context.Context, accessToken, messageID string, add, remove []string) error {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}

	req := &gmailapi.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	if _, err := svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do(); err != nil {
		return mapError(fmt.Sprintf("modify message %s", messageID), err)
	}
	return nil
}

func convertMessage(msg *gmailapi.Message) *Message {
	return &Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		HasLabels:    msg.LabelIds != nil,
		Snippet:      msg.Snippet,
		HistoryID:    msg.HistoryId,
		InternalDate: msg.InternalDate,
		SizeEstimate: msg.SizeEstimate,
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(part *gmailapi.MessagePart) *MimePart {
	if part == nil {
		return nil
	}

	out := &MimePart{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		if h != nil {
			out.Headers = append(out.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	if part.Body != nil {
		out.Body = PartBody{
			Data:         part.Body.Data,
			AttachmentID: part.Body.AttachmentId,
			Size:         part.Body.Size,
		}
	}
	for _, p := range part.Parts {
		if child := convertPart(p); child != nil {
			out.Parts = append(out.Parts, child)
		}
	}
	return out
}
