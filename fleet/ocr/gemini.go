package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const geminiModel = "gemini-2.0-flash"

const extractionPrompt = `You are analyzing a maritime certificate document. Extract the following information if present:

1. Certificate Number (any ID, reference number, or certificate number)
2. Issue Date (when the certificate was issued)
3. Expiry Date (when the certificate expires, if applicable)
4. Holder Name (the person the certificate belongs to)
5. Issuing Authority (organization that issued the certificate)

Respond in JSON format only, with these exact keys:
{
  "certificate_number": "string or null",
  "issue_date": "YYYY-MM-DD or null",
  "expiry_date": "YYYY-MM-DD or null",
  "holder_name": "string or null",
  "issuing_authority": "string or null",
  "confidence": 0.0 to 1.0,
  "raw_text": "any other relevant text found"
}

If you cannot read the document or it's not a certificate, set confidence to 0 and explain in raw_text.
Only respond with valid JSON, no other text.`

type GeminiExtractor struct {
	client *resty.Client
	apiKey string
}

func NewGeminiExtractor(apiKey string) *GeminiExtractor {
	client := resty.New().
		SetBaseURL("https://generativelanguage.googleapis.com/v1beta").
		SetTimeout(60 * time.Second)

	return &GeminiExtractor{client: client, apiKey: apiKey}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type extractedFields struct {
	CertificateNumber *string  `json:"certificate_number"`
	IssueDate         *string  `json:"issue_date"`
	ExpiryDate        *string  `json:"expiry_date"`
	HolderName        *string  `json:"holder_name"`
	IssuingAuthority  *string  `json:"issuing_authority"`
	Confidence        float64  `json:"confidence"`
	RawText           string   `json:"raw_text"`
}

func (e *GeminiExtractor) Extract(ctx context.Context, document io.Reader, contentType string) (Result, error) {
	data, err := io.ReadAll(document)
	if err != nil {
		return errorResult(fmt.Sprintf("error reading document: %v", err)), nil
	}

	request := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MimeType: contentType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
				{Text: extractionPrompt},
			},
		}},
	}

	var response geminiResponse
	res, err := e.client.R().
		SetContext(ctx).
		SetQueryParam("key", e.apiKey).
		SetBody(request).
		SetResult(&response).
		Post(fmt.Sprintf("/models/%v:generateContent", geminiModel))
	if err != nil {
		slog.Error("gemini api request failed", "error", err)
		return Result{}, fmt.Errorf("gemini api request failed: %w", err)
	}
	if res.IsError() {
		slog.Error("gemini api returned error", "status", res.StatusCode(), "body", res.String())
		return Result{}, fmt.Errorf("gemini api returned status %d", res.StatusCode())
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return errorResult("empty response from gemini"), nil
	}

	return parseFields(response.Candidates[0].Content.Parts[0].Text), nil
}

func parseFields(text string) Result {
	// The model sometimes wraps the payload in markdown code fences.
	jsonText := strings.TrimSpace(text)
	jsonText = strings.TrimPrefix(jsonText, "```json")
	jsonText = strings.TrimPrefix(jsonText, "```")
	jsonText = strings.TrimSuffix(jsonText, "```")
	jsonText = strings.TrimSpace(jsonText)

	var fields extractedFields
	if err := json.Unmarshal([]byte(jsonText), &fields); err != nil {
		slog.Error("failed to parse gemini response", "error", err)
		return errorResult("failed to parse extraction response")
	}

	result := Result{
		Success:          fields.Confidence > MinConfidence,
		Confidence:       fields.Confidence,
		RawText:          fields.RawText,
		IssueDate:        parseDate(fields.IssueDate),
		ExpiryDate:       parseDate(fields.ExpiryDate),
		ExtractionMethod: geminiModel,
	}
	if fields.CertificateNumber != nil {
		result.CertificateNumber = *fields.CertificateNumber
	}
	if fields.HolderName != nil {
		result.HolderName = *fields.HolderName
	}
	if fields.IssuingAuthority != nil {
		result.IssuingAuthority = *fields.IssuingAuthority
	}

	return result
}

func parseDate(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	date, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil
	}
	return &date
}

func errorResult(message string) Result {
	return Result{
		Success:          false,
		Error:            message,
		ExtractionMethod: geminiModel,
	}
}
