package posters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/drewfead/cinecal/internal/httputil"
	"github.com/go-resty/resty/v2"
)

const defaultImageKitAPI = "https://api.imagekit.io"

var ErrImageKit = errors.New("imagekit request failed")

// CustomMetadata is attached to every uploaded poster so it can be found again by movie id.
type CustomMetadata struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	AllocineURL string `json:"allocineUrl"`
}

type File struct {
	FileID         string         `json:"fileId"`
	Name           string         `json:"name"`
	FilePath       string         `json:"filePath"`
	URL            string         `json:"url"`
	CustomMetadata CustomMetadata `json:"customMetadata"`
}

type Upload struct {
	SourceURL string
	FileName  string
	Folder    string
	Metadata  CustomMetadata
}

// ImageKit is a thin client over the ImageKit media API.
type ImageKit struct {
	http *resty.Client
}

type ImageKitOption func(*resty.Client)

// WithAPIBaseURL points the client at another API host (e.g. httptest.Server.URL in tests).
func WithAPIBaseURL(baseURL string) ImageKitOption {
	return func(c *resty.Client) {
		c.SetBaseURL(strings.TrimRight(baseURL, "/"))
	}
}

func NewImageKit(apiKey string, opts ...ImageKitOption) *ImageKit {
	client := resty.New().
		SetBaseURL(defaultImageKitAPI).
		SetBasicAuth(apiKey, "").
		SetTimeout(httputil.DefaultTimeout).
		SetTransport(&httputil.Transport{})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		slog.Debug("imagekit response",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"elapsed", res.Time())
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		slog.Debug("imagekit request failed", "method", req.Method, "url", req.URL, "error", err)
	})
	for _, opt := range opts {
		opt(client)
	}
	return &ImageKit{http: client}
}

// ListFiles returns the images in folder whose customMetadata.id is one of movieIDs.
func (k *ImageKit) ListFiles(ctx context.Context, folder string, movieIDs []uint) ([]File, error) {
	ids := make([]string, len(movieIDs))
	for i, id := range movieIDs {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	var files []File
	res, err := k.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"path":        folder,
			"type":        "file",
			"fileType":    "image",
			"searchQuery": fmt.Sprintf(`"customMetadata.id" in [%s]`, strings.Join(ids, ",")),
		}).
		SetResult(&files).
		Get("/v1/files")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: list files: %s: %s", ErrImageKit, res.Status(), res.String())
	}

	out := files[:0]
	for _, f := range files {
		if strings.Contains(f.FilePath, folder) {
			out = append(out, f)
		}
	}
	return out, nil
}

// UploadFile asks ImageKit to fetch SourceURL and store it; it returns the stored file name.
func (k *ImageKit) UploadFile(ctx context.Context, upload Upload) (string, error) {
	metadata, err := json.Marshal(upload.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	var uploaded File
	res, err := k.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"file":           upload.SourceURL,
			"fileName":       upload.FileName,
			"folder":         upload.Folder,
			"customMetadata": string(metadata),
		}).
		SetResult(&uploaded).
		Post("/v1/files/upload")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", upload.FileName, err)
	}
	if res.StatusCode() != 200 {
		return "", fmt.Errorf("%w: upload %s: %s: %s", ErrImageKit, upload.FileName, res.Status(), res.String())
	}
	if uploaded.Name == "" {
		return "", fmt.Errorf("%w: upload %s: empty file name", ErrImageKit, upload.FileName)
	}
	return uploaded.Name, nil
}

// Folder is where posters of an environment live.
func Folder(env string) string {
	if env == "development" {
		return "posters-dev"
	}
	return "posters-prod"
}

const (
	defaultCDNBase       = "https://ik.imagekit.io/cinecal"
	posterTransformation = "tr:w-310,q-50,ar-62-85"
	defaultLookupBatch   = 500
	defaultLookupPause   = 500 * time.Millisecond
	defaultUploadPause   = 500 * time.Millisecond
	defaultUploadBackoff = time.Second
)

// PosterURL is the CDN URL of a poster resized for blur hashing.
func PosterURL(cdnBase, folder, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(cdnBase, "/"), folder, name, posterTransformation)
}
