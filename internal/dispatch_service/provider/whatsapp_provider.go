package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
)

const (
	whatsAppProviderName = "whatsapp"
	maxResponseBodyBytes = 1 << 20
)

type WhatsAppProvider struct {
	logger        *slog.Logger
	httpClient    *http.Client
	apiBase       string
	phoneNumberID string
	accessToken   string
}

func NewWhatsAppProvider(logger *slog.Logger, apiBase, phoneNumberID, accessToken string, httpClient *http.Client) *WhatsAppProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WhatsAppProvider{
		logger:        logger.With("provider", whatsAppProviderName),
		httpClient:    httpClient,
		apiBase:       strings.TrimRight(apiBase, "/"),
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
	}
}

// whatsAppMediaResponse is the body returned by the media upload endpoint.
type whatsAppMediaResponse struct {
	ID string `json:"id"`
}

type whatsAppMediaObject struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type whatsAppTextObject struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

// WhatsAppMessageRequest is the JSON body of a message submission.
type WhatsAppMessageRequest struct {
	MessagingProduct string               `json:"messaging_product"`
	RecipientType    string               `json:"recipient_type"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *whatsAppTextObject  `json:"text,omitempty"`
	Image            *whatsAppMediaObject `json:"image,omitempty"`
	Video            *whatsAppMediaObject `json:"video,omitempty"`
	Audio            *whatsAppMediaObject `json:"audio,omitempty"`
	Document         *whatsAppMediaObject `json:"document,omitempty"`
}

// WhatsAppMessageResponse is the success body of a message submission.
type WhatsAppMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// WhatsAppErrorResponse is the Graph API error envelope.
type WhatsAppErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (p *WhatsAppProvider) GetName() string {
	return whatsAppProviderName
}

func (p *WhatsAppProvider) endpoint(resource string) string {
	return fmt.Sprintf("%s/%s/%s", p.apiBase, p.phoneNumberID, resource)
}

// UploadMedia posts the content as multipart/form-data and returns the media id.
func (p *WhatsAppProvider) UploadMedia(ctx context.Context, name, mimeType string, content []byte) (string, error) {
	p.logger.InfoContext(ctx, "Uploading media", "name", name, "mime_type", mimeType, "size_bytes", len(content))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", p.phaseError(domain.PhaseUpload, 0, fmt.Errorf("failed to build multipart body: %w", err))
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return "", p.phaseError(domain.PhaseUpload, 0, fmt.Errorf("failed to build multipart body: %w", err))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", p.phaseError(domain.PhaseUpload, 0, fmt.Errorf("failed to create file part: %w", err))
	}
	if _, err := part.Write(content); err != nil {
		return "", p.phaseError(domain.PhaseUpload, 0, fmt.Errorf("failed to write file part: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", p.phaseError(domain.PhaseUpload, 0, fmt.Errorf("failed to close multipart body: %w", err))
	}

	respBody, err := p.do(ctx, domain.PhaseUpload, p.endpoint("media"), writer.FormDataContentType(), &body)
	if err != nil {
		return "", err
	}

	var mediaResp whatsAppMediaResponse
	if err := json.Unmarshal(respBody, &mediaResp); err != nil {
		return "", p.phaseError(domain.PhaseUpload, 0, fmt.Errorf("failed to decode upload response: %w", err))
	}
	if mediaResp.ID == "" {
		return "", p.phaseError(domain.PhaseUpload, 0, errors.New("upload response carried no media id"))
	}
	p.logger.InfoContext(ctx, "Media uploaded", "media_handle", mediaResp.ID)
	return mediaResp.ID, nil
}

// SubmitMessage sends a text or media message and returns the wamid.
func (p *WhatsAppProvider) SubmitMessage(ctx context.Context, recipient string, payload domain.OutboundPayload) (string, error) {
	reqBody, err := buildMessageRequest(recipient, payload)
	if err != nil {
		return "", p.phaseError(domain.PhaseSubmit, 0, err)
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", p.phaseError(domain.PhaseSubmit, 0, fmt.Errorf("failed to marshal request: %w", err))
	}

	p.logger.InfoContext(ctx, "Submitting message", "recipient", recipient, "type", reqBody.Type)
	respBody, err := p.do(ctx, domain.PhaseSubmit, p.endpoint("messages"), "application/json", bytes.NewReader(reqBytes))
	if err != nil {
		return "", err
	}

	var msgResp WhatsAppMessageResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return "", p.phaseError(domain.PhaseSubmit, 0, fmt.Errorf("failed to decode submit response: %w", err))
	}
	if len(msgResp.Messages) == 0 || msgResp.Messages[0].ID == "" {
		return "", p.phaseError(domain.PhaseSubmit, 0, errors.New("submit response carried no message id"))
	}
	providerMsgID := msgResp.Messages[0].ID
	p.logger.InfoContext(ctx, "Message accepted", "recipient", recipient, "provider_message_id", providerMsgID)
	return providerMsgID, nil
}

func buildMessageRequest(recipient string, payload domain.OutboundPayload) (*WhatsAppMessageRequest, error) {
	req := &WhatsAppMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             string(payload.Kind()),
	}
	switch pl := payload.(type) {
	case domain.TextPayload:
		req.Text = &whatsAppTextObject{Body: pl.Body}
	case domain.MediaPayload:
		if pl.Handle == "" {
			return nil, errors.New("media payload has no handle")
		}
		obj := &whatsAppMediaObject{ID: pl.Handle, Caption: pl.Caption}
		switch pl.Category {
		case domain.MediaImage:
			req.Image = obj
		case domain.MediaVideo:
			req.Video = obj
		case domain.MediaAudio:
			// Audio messages do not accept captions.
			obj.Caption = ""
			req.Audio = obj
		case domain.MediaDocument:
			req.Document = obj
		default:
			return nil, fmt.Errorf("unknown media category %q", pl.Category)
		}
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
	return req, nil
}

func (p *WhatsAppProvider) do(ctx context.Context, phase domain.ProviderPhase, url, contentType string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, p.phaseError(phase, 0, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+p.accessToken)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "Request to WhatsApp failed", "phase", phase, "error", err)
		return nil, p.phaseError(phase, 0, fmt.Errorf("request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, p.phaseError(phase, httpResp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}
	p.logger.DebugContext(ctx, "Received response from WhatsApp", "phase", phase, "status_code", httpResp.StatusCode)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		errMsg := fmt.Sprintf("status %d", httpResp.StatusCode)
		var apiErr WhatsAppErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			errMsg = fmt.Sprintf("%s (code %d, type %s)", apiErr.Error.Message, apiErr.Error.Code, apiErr.Error.Type)
		} else if len(respBody) > 0 && len(respBody) < 200 {
			errMsg = fmt.Sprintf("status %d, raw_body: %s", httpResp.StatusCode, string(respBody))
		}
		p.logger.WarnContext(ctx, "WhatsApp rejected request", "phase", phase, "status_code", httpResp.StatusCode, "error_message", errMsg)
		return nil, p.phaseError(phase, httpResp.StatusCode, errors.New(errMsg))
	}
	return respBody, nil
}

func (p *WhatsAppProvider) phaseError(phase domain.ProviderPhase, statusCode int, err error) error {
	return &domain.ProviderError{Provider: whatsAppProviderName, Phase: phase, StatusCode: statusCode, Err: err}
}
