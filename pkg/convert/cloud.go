package convert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultCloudTimeout = 60 * time.Second

// CloudOptions configures the hosted conversion API
type CloudOptions struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type saveAsRequest struct {
	SaveFormat string `json:"SaveFormat"`
	FileName   string `json:"FileName"`
}

// CloudConverter uploads the document, asks the service to save it as PDF
// and downloads the result. Every call works in its own remote folder.
type CloudConverter struct {
	client  *resty.Client
	tokens  oauth2.TokenSource
	baseURL string
	logger  *zap.Logger
}

// NewCloudConverter validates opts and creates a converter
func NewCloudConverter(opts CloudOptions, logger *zap.Logger) (*CloudConverter, error) {
	client := resty.New()
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCloudTimeout
	}
	client.SetTimeout(opts.Timeout)
	return NewCloudConverterWithClient(opts, client, logger)
}

// NewCloudConverterWithClient creates a converter on a caller supplied client
func NewCloudConverterWithClient(opts CloudOptions, client *resty.Client, logger *zap.Logger) (*CloudConverter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("conversion base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid conversion base url: %w", err)
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("conversion client credentials are required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = baseURL + "/connect/token"
	}
	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	client.SetRetryCount(0)

	return &CloudConverter{
		client:  client,
		tokens:  cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, client.GetClient())),
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

// Convert runs upload, save-as and download for srcPath
func (c *CloudConverter) Convert(ctx context.Context, srcPath string) (string, error) {
	body, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read source document: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain conversion token: %w", err)
	}

	folder := uuid.New().String()
	srcName := filepath.Base(srcPath)
	dstPath := TargetPath(srcPath)
	dstName := filepath.Base(dstPath)

	logger := c.logger.With(zap.String("folder", folder), zap.String("document", srcName))

	logger.Debug("Uploading document for conversion")
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetHeader("Content-Type", "application/octet-stream").
		SetPathParams(map[string]string{"folder": folder, "name": srcName}).
		SetBody(body).
		Put(c.baseURL + "/words/storage/file/{folder}/{name}")
	if err := checkResponse("upload", resp, err); err != nil {
		return "", err
	}

	logger.Debug("Requesting conversion")
	resp, err = c.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetPathParam("name", srcName).
		SetQueryParam("folder", folder).
		SetBody(saveAsRequest{SaveFormat: "pdf", FileName: folder + "/" + dstName}).
		Put(c.baseURL + "/words/{name}/saveAs")
	if err := checkResponse("save-as", resp, err); err != nil {
		return "", err
	}

	logger.Debug("Downloading converted document")
	resp, err = c.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetPathParams(map[string]string{"folder": folder, "name": dstName}).
		Get(c.baseURL + "/words/storage/file/{folder}/{name}")
	if err := checkResponse("download", resp, err); err != nil {
		return "", err
	}
	if len(resp.Body()) == 0 {
		return "", fmt.Errorf("download: converted document is empty")
	}

	if err := os.WriteFile(dstPath, resp.Body(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write converted document: %w", err)
	}

	logger.Info("Document converted", zap.String("output", dstName))
	return dstPath, nil
}

func checkResponse(step string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", step, err)
		}
		return fmt.Errorf("%s: request failed: %w", step, err)
	}
	if resp == nil {
		return fmt.Errorf("%s: empty response", step)
	}
	status := resp.StatusCode()
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return nil
	}
	msg := strings.TrimSpace(resp.String())
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Errorf("%s: service returned status %d", step, status)
	}
	return fmt.Errorf("%s: service returned status %d: %s", step, status, msg)
}
