package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"reading-fluency-go/internal/logger"
)

// mockPayload is returned in mock mode. It exercises the segment/word shape.
const mockPayload = `{"text":"the cat sat on the mat","duration":2.4,"segments":[{"words":[` +
	`{"word":"the","start":0.3,"end":0.5},{"word":"cat","start":0.5,"end":0.9},` +
	`{"word":"sat","start":0.9,"end":1.3},{"word":"on","start":1.3,"end":1.5},` +
	`{"word":"the","start":1.5,"end":1.7},{"word":"mat","start":1.7,"end":2.2}]}]}`

type ClientConfig struct {
	URL          string
	APIKey       string
	Model        string
	Language     string
	Timeout      time.Duration
	MaxRetryTime time.Duration
	Mock         bool
}

// Client talks to an OpenAI-compatible /audio/transcriptions endpoint.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 45 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Transcribe uploads one recording and returns the ASR response body as JSON.
// Plain-text responses are returned as a JSON string. Server errors and network
// failures are retried with exponential backoff; 4xx responses are not.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (json.RawMessage, error) {
	log := logger.New().WithField("module", "transcription").WithField("file", filename)
	if c.cfg.Mock {
		log.Debug("mock transcription mode")
		return json.RawMessage(mockPayload), nil
	}
	if c.cfg.URL == "" {
		return nil, errors.New("transcription url not configured")
	}

	body, contentType, err := c.buildForm(filename, audio)
	if err != nil {
		return nil, errors.Wrap(err, "build transcription form")
	}
	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/audio/transcriptions"

	var out []byte
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.WithError(err).Warn("transcription request failed")
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = errors.Wrap(err, "read transcription body")
			log.WithError(err).Warn("transcription body truncated")
			return lastErr
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d %s", resp.StatusCode, string(b))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("transcription rejected: %d %s", resp.StatusCode, string(b))
			return backoff.Permanent(lastErr)
		}
		if len(bytes.TrimSpace(b)) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		out = b
		lastErr = nil
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, errors.Wrap(lastErr, "transcribe")
	}

	if !gjson.ValidBytes(out) {
		quoted, _ := json.Marshal(string(out))
		out = quoted
	}
	log.WithField("bytes", len(out)).Info("transcription received")
	return json.RawMessage(out), nil
}

func (c *Client) buildForm(filename string, audio []byte) ([]byte, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}
	_ = w.WriteField("model", c.cfg.Model)
	_ = w.WriteField("response_format", "verbose_json")
	_ = w.WriteField("timestamp_granularities[]", "segment")
	_ = w.WriteField("timestamp_granularities[]", "word")
	if c.cfg.Language != "" {
		_ = w.WriteField("language", c.cfg.Language)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return b.Bytes(), w.FormDataContentType(), nil
}
