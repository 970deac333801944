package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

type initiateRequest struct {
	Key     string            `json:"key"`
	Headers map[string]string `json:"headers,omitempty"`
}

type initiateResponse struct {
	UploadID string `json:"upload_id"`
}

type completePart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

type completeRequest struct {
	Key   string         `json:"key"`
	Parts []completePart `json:"parts"`
}

type completeResponse struct {
	Location string `json:"location"`
	ETag     string `json:"etag"`
}

// APIClient implements MultipartClient against a REST multipart upload service:
//
//	POST {base}/buckets/{bucket}/multipart-uploads                 -> 201 {"upload_id"}
//	PUT  {base}/buckets/{bucket}/multipart-uploads/{id}/parts/{n}   -> 200, ETag header
//	POST {base}/buckets/{bucket}/multipart-uploads/{id}/complete    -> 200 {"location","etag"}
type APIClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

// NewAPIClient creates an APIClient. Requests are not retried: a failed part fails the upload attempt.
func NewAPIClient(baseURL, accessToken string, logger log.Logger) *APIClient {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 0
	return newAPIClient(client, baseURL, accessToken, logger)
}

func newAPIClient(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) *APIClient {
	return &APIClient{
		httpClient:  client,
		baseURL:     baseURL,
		accessToken: accessToken,
		logger:      logger,
	}
}

// InitiateMultipartUpload ...
func (c *APIClient) InitiateMultipartUpload(ctx context.Context, input InitiateInput) (string, error) {
	body, err := json.Marshal(initiateRequest{Key: input.Key, Headers: input.Headers})
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.uploadsURL(input.Bucket), body)
	if err != nil {
		return "", err
	}
	c.setAuth(req)
	req.Header.Set("Content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiate multipart upload: %w", err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("initiate multipart upload: %w", unwrapError(resp))
	}

	var response initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode initiate response: %w", err)
	}
	if response.UploadID == "" {
		return "", fmt.Errorf("initiate multipart upload: no upload id in response")
	}

	return response.UploadID, nil
}

// UploadPart ...
func (c *APIClient) UploadPart(ctx context.Context, input PartInput) (string, error) {
	partURL := fmt.Sprintf("%s/%s/parts/%d?key=%s",
		c.uploadsURL(input.Bucket), url.PathEscape(input.UploadID), input.PartNumber, url.QueryEscape(input.Key))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, partURL, input.Body)
	if err != nil {
		return "", err
	}
	c.setAuth(req)
	req.Header.Set("Content-type", "application/octet-stream")

	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", fmt.Sprintf("%d", input.Size))
	req.ContentLength = input.Size

	c.logger.Debugf("Uploading part %d (%d bytes) to %s", input.PartNumber, input.Size, partURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w", input.PartNumber, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload part %d: %w", input.PartNumber, unwrapError(resp))
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", fmt.Errorf("upload part %d: no ETag in response", input.PartNumber)
	}

	return etag, nil
}

// CompleteMultipartUpload ...
func (c *APIClient) CompleteMultipartUpload(ctx context.Context, input CompleteInput) (*CompleteOutput, error) {
	parts := make([]completePart, 0, len(input.Parts))
	for _, part := range input.Parts {
		parts = append(parts, completePart{PartNumber: part.PartNumber, ETag: part.ETag})
	}

	body, err := json.Marshal(completeRequest{Key: input.Key, Parts: parts})
	if err != nil {
		return nil, err
	}

	completeURL := fmt.Sprintf("%s/%s/complete", c.uploadsURL(input.Bucket), url.PathEscape(input.UploadID))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, completeURL, body)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)
	req.Header.Set("Content-type", "application/json")
	for k, v := range input.CallbackHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("complete multipart upload: %w", err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("complete multipart upload: %w", unwrapError(resp))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read complete response: %w", err)
	}

	var response completeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &response); err != nil {
			return nil, fmt.Errorf("decode complete response: %w", err)
		}
	}

	return &CompleteOutput{
		Location: response.Location,
		ETag:     response.ETag,
		Body:     raw,
	}, nil
}

func (c *APIClient) uploadsURL(bucket string) string {
	return fmt.Sprintf("%s/buckets/%s/multipart-uploads", c.baseURL, url.PathEscape(bucket))
}

func (c *APIClient) setAuth(req *retryablehttp.Request) {
	if c.accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	}
}

func (c *APIClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
