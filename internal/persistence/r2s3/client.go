package r2s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// Config selects the bucket that run artifacts are mirrored to.
type Config struct {
	Enabled         bool
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Workers         int
	QueueCapacity   int
}

// ConfigFromEnv reads the HM_R2_* variables. Mirroring stays off unless
// HM_R2_MIRROR is truthy.
func ConfigFromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	enabled, _ := strconv.ParseBool(strings.TrimSpace(getenv("HM_R2_MIRROR")))
	workers, _ := strconv.Atoi(strings.TrimSpace(getenv("HM_R2_WORKERS")))
	queue, _ := strconv.Atoi(strings.TrimSpace(getenv("HM_R2_QUEUE")))
	return Config{
		Enabled:         enabled,
		Endpoint:        getenv("HM_R2_ENDPOINT"),
		Bucket:          getenv("HM_R2_BUCKET"),
		AccessKeyID:     getenv("HM_R2_ACCESS_KEY_ID"),
		SecretAccessKey: getenv("HM_R2_SECRET_ACCESS_KEY"),
		Prefix:          getenv("HM_R2_PREFIX"),
		Workers:         workers,
		QueueCapacity:   queue,
	}
}

type Client struct {
	endpoint   string
	bucket     string
	signer     signer
	httpClient *http.Client
}

func New(endpoint, bucket, accessKeyID, secretAccessKey string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	bucket = strings.TrimSpace(bucket)
	accessKeyID = strings.TrimSpace(accessKeyID)
	secretAccessKey = strings.TrimSpace(secretAccessKey)

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("endpoint/bucket/access key/secret key are required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %s", endpoint)
	}

	return &Client{
		endpoint:   strings.TrimRight(u.String(), "/"),
		bucket:     bucket,
		signer:     newSigner(accessKeyID, secretAccessKey),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Object is one artifact upload.
type Object struct {
	Key  string
	Path string
	// Meta is sent as x-amz-meta-<name> headers, covered by the signature.
	Meta map[string]string
}

// PutFile uploads localPath to objectKey.
func (c *Client) PutFile(ctx context.Context, objectKey, localPath string) error {
	_, err := c.Put(ctx, Object{Key: objectKey, Path: localPath})
	return err
}

// Put uploads obj with a SigV4-signed PUT and returns the bytes sent.
func (c *Client) Put(ctx context.Context, obj Object) (int64, error) {
	key := normalizeObjectKey(obj.Key)
	if key == "" {
		return 0, fmt.Errorf("empty object key")
	}

	f, err := os.Open(obj.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// One pass for both the payload hash and the length.
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, fmt.Errorf("hash %s: %w", obj.Path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(key), f)
	if err != nil {
		return 0, err
	}
	req.ContentLength = n
	req.Header.Set("Content-Type", contentType(key))
	for name, v := range obj.Meta {
		req.Header.Set(metaPrefix+strings.ToLower(name), v)
	}
	c.signer.Sign(req, hex.EncodeToString(h.Sum(nil)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return n, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return 0, fmt.Errorf("r2 put failed status=%d key=%s body=%s", resp.StatusCode, key, strings.TrimSpace(string(body)))
}

func (c *Client) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return c.endpoint + "/" + url.PathEscape(c.bucket) + "/" + strings.Join(parts, "/")
}

var contentTypes = map[string]string{
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".json": "application/json",
	".zst":  "application/zstd",
}

func contentType(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// normalizeObjectKey cleans key to a relative slash path; "" when nothing
// is left.
func normalizeObjectKey(key string) string {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	clean := strings.TrimLeft(path.Clean("/"+key), "/")
	if clean == "." {
		return ""
	}
	return clean
}
