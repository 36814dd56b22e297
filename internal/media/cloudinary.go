package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/httpclient"
)

const defaultCloudinaryBaseURL = "https://api.cloudinary.com/v1_1"

// CloudinaryConfig holds account credentials for the Cloudinary upload API.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// BaseURL overrides the API root. Used in tests.
	BaseURL string
}

// CloudinaryGateway uploads through Cloudinary's signed upload API.
type CloudinaryGateway struct {
	cfg    CloudinaryConfig
	client *httpclient.CircuitBreakerClient
	now    func() time.Time
}

// NewCloudinaryGateway creates a gateway that calls Cloudinary over client.
func NewCloudinaryGateway(cfg CloudinaryConfig, client *httpclient.CircuitBreakerClient) (*CloudinaryGateway, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("cloudinary: cloud name, api key and api secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCloudinaryBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CloudinaryGateway{cfg: cfg, client: client, now: time.Now}, nil
}

type cloudinaryUploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
}

type cloudinaryDestroyResponse struct {
	Result string `json:"result"`
}

// Upload posts the file with resource_type auto and returns its secure URL.
func (g *CloudinaryGateway) Upload(ctx context.Context, file *LocalFile, folder string) (string, error) {
	params := map[string]string{
		"folder":    folder,
		"public_id": NewObjectName(file),
		"timestamp": g.timestamp(),
	}

	body, contentType, err := g.uploadBody(file, params)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Post(ctx, g.endpoint("auto/upload"), contentType, body)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", httpclient.ParseResponseError(resp, "cloudinary")
	}

	var out cloudinaryUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode cloudinary upload response: %w", err)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return "", errors.New("cloudinary upload: response carries no url")
}

// Delete destroys the image behind url. Cloudinary answering "not found"
// is treated as success.
func (g *CloudinaryGateway) Delete(ctx context.Context, rawURL, folder string) error {
	publicID := PublicID(rawURL, folder)
	if publicID == "" {
		return apperrors.InvalidInput("cannot derive media id from url")
	}

	params := map[string]string{
		"public_id": publicID,
		"timestamp": g.timestamp(),
	}
	form := url.Values{}
	for k, v := range g.sign(params) {
		form.Set(k, v)
	}

	resp, err := g.client.Post(ctx, g.endpoint("image/destroy"),
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "cloudinary")
	}

	var out cloudinaryDestroyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode cloudinary destroy response: %w", err)
	}
	switch out.Result {
	case "ok", "not found":
		return nil
	default:
		return fmt.Errorf("cloudinary destroy %s: %s", publicID, out.Result)
	}
}

func (g *CloudinaryGateway) endpoint(action string) string {
	return g.cfg.BaseURL + "/" + url.PathEscape(g.cfg.CloudName) + "/" + action
}

func (g *CloudinaryGateway) timestamp() string {
	return strconv.FormatInt(g.now().Unix(), 10)
}

// sign adds api_key and signature to params. The signature is the SHA-1 hex
// digest of the sorted "k=v" pairs joined by "&" followed by the secret.
func (g *CloudinaryGateway) sign(params map[string]string) map[string]string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + g.cfg.APISecret))

	signed := make(map[string]string, len(params)+2)
	for _, k := range keys {
		signed[k] = params[k]
	}
	signed["api_key"] = g.cfg.APIKey
	signed["signature"] = hex.EncodeToString(sum[:])
	return signed
}

// uploadBody buffers the multipart request so the HTTP client can rewind it
// between retries.
func (g *CloudinaryGateway) uploadBody(file *LocalFile, params map[string]string) (*bytes.Buffer, string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	signed := g.sign(params)
	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, signed[k]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	part, err := mw.CreateFormFile("file", file.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy staged file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

// NewCloudinaryClient builds the resilient HTTP client used by the gateway.
func NewCloudinaryClient(logger *slog.Logger) *httpclient.CircuitBreakerClient {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 60 * time.Second
	return httpclient.NewCircuitBreakerClient(httpclient.New(cfg), httpclient.DefaultCircuitBreakerConfig("cloudinary"), logger)
}

var _ Gateway = (*CloudinaryGateway)(nil)
