package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailClient reads inquiries from a Gmail mailbox and stores reply drafts in it
type GmailClient struct {
	service *gmail.Service
	userID  string
	address string
	config  *GmailConfig
	logger  *slog.Logger
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	UserEmail    string

	// Request limits
	MaxResults     int64
	RateLimitDelay time.Duration

	Logger *slog.Logger
}

// GmailScopes are the OAuth2 scopes needed to search mail and create drafts
var GmailScopes = []string{gmail.GmailReadonlyScope, gmail.GmailComposeScope}

func validateGmailConfig(config *GmailConfig) error {
	if config == nil {
		return errors.New("gmail config is required")
	}
	if config.ClientID == "" {
		return errors.New("gmail client ID is required")
	}
	if config.ClientSecret == "" {
		return errors.New("gmail client secret is required")
	}
	if config.RefreshToken == "" && config.AccessToken == "" {
		return errors.New("gmail refresh token or access token is required")
	}
	return nil
}

// NewGmailClient creates a Gmail API client and verifies the connection
func NewGmailClient(ctx context.Context, config *GmailConfig) (*GmailClient, error) {
	if err := validateGmailConfig(config); err != nil {
		return nil, err
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       GmailScopes,
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		AccessToken:  config.AccessToken,
		RefreshToken: config.RefreshToken,
		TokenType:    "Bearer",
	}

	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	client := newGmailClient(service, config)
	if err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("Gmail client health check failed: %w", err)
	}

	return client, nil
}

func newGmailClient(service *gmail.Service, config *GmailConfig) *GmailClient {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	userID := "me"
	if config.UserEmail != "" {
		userID = config.UserEmail
	}

	return &GmailClient{
		service: service,
		userID:  userID,
		address: config.UserEmail,
		config:  config,
		logger:  logger,
	}
}

// Search runs a Gmail search query and fetches every matching message.
// Messages that fail to load are logged and skipped.
func (g *GmailClient) Search(ctx context.Context, query string) ([]Message, error) {
	g.logger.Debug("Searching Gmail", "query", query)

	req := g.service.Users.Messages.List(g.userID).Q(query).Context(ctx)
	if g.config.MaxResults > 0 {
		req = req.MaxResults(g.config.MaxResults)
	}

	resp, err := req.Do()
	if err != nil {
		return nil, fmt.Errorf("Gmail search failed: %w", err)
	}

	g.logger.Debug("Gmail search complete", "messages", len(resp.Messages))

	messages := make([]Message, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if err := g.pause(ctx); err != nil {
			return messages, err
		}

		fullMessage, err := g.GetMessage(ctx, msg.Id)
		if err != nil {
			g.logger.Warn("Failed to get message", "message_id", msg.Id, "error", err)
			continue
		}

		messages = append(messages, *fullMessage)
	}

	return messages, nil
}

// GetMessage retrieves the full content of a specific message
func (g *GmailClient) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := g.service.Users.Messages.Get(g.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return parseGmailMessage(msg), nil
}

// CreateReplyDraft stores a reply to original as a draft in the same thread and returns the draft ID
func (g *GmailClient) CreateReplyDraft(ctx context.Context, original *Message, subject, body string) (string, error) {
	raw, err := BuildReply(g.address, original, subject, body)
	if err != nil {
		return "", err
	}

	draft := &gmail.Draft{
		Message: &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString(raw),
			ThreadId: original.ThreadID,
		},
	}

	created, err := g.service.Users.Drafts.Create(g.userID, draft).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create draft for message %s: %w", original.ID, err)
	}

	g.logger.Info("Created reply draft", "message_id", original.ID, "draft_id", created.Id)
	return created.Id, nil
}

// HealthCheck verifies the Gmail connection and learns the mailbox address for reply drafts
func (g *GmailClient) HealthCheck(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}

	if g.address == "" {
		g.address = profile.EmailAddress
	}
	g.logger.Info("Connected to Gmail account", "address", profile.EmailAddress)
	return nil
}

func (g *GmailClient) pause(ctx context.Context) error {
	if g.config.RateLimitDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.config.RateLimitDelay):
		return nil
	}
}

// parseGmailMessage converts a Gmail API message to Message
func parseGmailMessage(msg *gmail.Message) *Message {
	parsed := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Headers:  make(map[string]string),
		Labels:   msg.LabelIds,
	}
	if msg.Payload == nil {
		return parsed
	}

	for _, header := range msg.Payload.Headers {
		parsed.Headers[header.Name] = header.Value

		switch strings.ToLower(header.Name) {
		case "from":
			parsed.From = header.Value
		case "to":
			parsed.To = header.Value
		case "subject":
			parsed.Subject = header.Value
		case "message-id":
			parsed.MessageID = header.Value
		case "references":
			parsed.References = header.Value
		case "date":
			if date, err := mail.ParseDate(header.Value); err == nil {
				parsed.Date = date
			}
		}
	}

	parsed.PlainText, parsed.HTMLText = extractContent(msg.Payload)
	return parsed
}

// extractContent returns the first plain text and HTML bodies found in a payload tree
func extractContent(payload *gmail.MessagePart) (plainText, htmlText string) {
	if payload.Body != nil && payload.Body.Data != "" {
		switch payload.MimeType {
		case "text/plain":
			plainText = decodeBody(payload.Body.Data)
		case "text/html":
			htmlText = decodeBody(payload.Body.Data)
		}
	}

	for _, part := range payload.Parts {
		partPlain, partHTML := extractContent(part)
		if partPlain != "" && plainText == "" {
			plainText = partPlain
		}
		if partHTML != "" && htmlText == "" {
			htmlText = partHTML
		}
	}

	return plainText, htmlText
}

func decodeBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}
