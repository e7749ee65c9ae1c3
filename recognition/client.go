package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a CompreFace-compatible recognition service over HTTP.
// It is injected wherever the pipeline needs the engine, so tests can swap
// in a fake Engine instead.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retries    uint64
}

// NewClient creates a recognition engine client. retries bounds the number
// of attempts per call on transient failures.
func NewClient(baseURL, apiKey string, retries int) *Client {
	if retries < 1 {
		retries = 1
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retries: uint64(retries),
	}
}

// statusError distinguishes HTTP-level rejections from transport failures so
// the retry policy can treat 4xx responses as permanent.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("recognition engine returned status %d: %s", e.status, e.body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	apiURL, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("failed to create API URL: %w", err)
	}
	if len(query) > 0 {
		apiURL = apiURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &statusError{status: resp.StatusCode, body: string(bodyBytes)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// multipartImage builds a multipart body with the image under the given
// field name, plus any extra string fields.
func multipartImage(field string, image []byte, filename string, extra map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return nil, "", fmt.Errorf("failed to copy image data: %w", err)
	}
	for k, v := range extra {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to add field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// Ping checks whether the recognition service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.withRetry(ctx, func() error {
		var out struct {
			Subjects []string `json:"subjects"`
		}
		return c.doJSON(ctx, http.MethodGet, "/api/v1/recognition/subjects", nil, nil, "", &out)
	})
}

// CreateSubject registers a new subject under the given id/name.
func (c *Client) CreateSubject(ctx context.Context, name string) (string, error) {
	payload, err := json.Marshal(map[string]string{"subject": name})
	if err != nil {
		return "", fmt.Errorf("failed to encode subject payload: %w", err)
	}

	var out struct {
		Subject string `json:"subject"`
	}
	err = c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/v1/recognition/subjects", nil, bytes.NewReader(payload), "application/json", &out)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create subject %s: %w", name, err)
	}
	return out.Subject, nil
}

// DeleteSubject removes a subject and every face stored under it.
func (c *Client) DeleteSubject(ctx context.Context, subjectID string) error {
	err := c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodDelete, "/api/v1/recognition/subjects/"+url.PathEscape(subjectID), nil, nil, "", nil)
	})
	if err != nil {
		return fmt.Errorf("failed to delete subject %s: %w", subjectID, err)
	}
	return nil
}

// AddFace uploads a face crop as an example of the subject and returns the
// engine's handle for it.
func (c *Client) AddFace(ctx context.Context, subjectID string, image []byte, filename string) (string, error) {
	var out struct {
		ImageID string `json:"image_id"`
		Subject string `json:"subject"`
	}
	err := c.withRetry(ctx, func() error {
		body, contentType, err := multipartImage("file", image, filename, nil)
		if err != nil {
			return err
		}
		q := url.Values{}
		q.Set("subject", subjectID)
		return c.doJSON(ctx, http.MethodPost, "/api/v1/recognition/faces", q, body, contentType, &out)
	})
	if err != nil {
		return "", fmt.Errorf("failed to add face for subject %s: %w", subjectID, err)
	}
	return out.ImageID, nil
}

// DeleteFace removes a single stored face example by handle.
func (c *Client) DeleteFace(ctx context.Context, faceHandle string) error {
	err := c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodDelete, "/api/v1/recognition/faces/"+url.PathEscape(faceHandle), nil, nil, "", nil)
	})
	if err != nil {
		return fmt.Errorf("failed to delete face %s: %w", faceHandle, err)
	}
	return nil
}

// Recognize sends an image for recognition and returns one result per face
// the engine found, each with candidate subjects ordered by similarity.
func (c *Client) Recognize(ctx context.Context, image []byte, filename string) ([]RecognitionResult, error) {
	var out struct {
		Result []RecognitionResult `json:"result"`
	}
	err := c.withRetry(ctx, func() error {
		body, contentType, err := multipartImage("file", image, filename, nil)
		if err != nil {
			return err
		}
		return c.doJSON(ctx, http.MethodPost, "/api/v1/recognition/recognize", nil, body, contentType, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("recognition request failed for %s: %w", filename, err)
	}
	return out.Result, nil
}

// CompareFaces runs the engine's verification endpoint on two face crops and
// returns the best-match similarity.
func (c *Client) CompareFaces(ctx context.Context, source, target []byte) (float64, error) {
	var out struct {
		Result []struct {
			FaceMatches []struct {
				Similarity float64 `json:"similarity"`
			} `json:"face_matches"`
		} `json:"result"`
	}
	err := c.withRetry(ctx, func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		for field, data := range map[string][]byte{"source_image": source, "target_image": target} {
			part, err := writer.CreateFormFile(field, field+".jpg")
			if err != nil {
				return fmt.Errorf("failed to create form file: %w", err)
			}
			if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("failed to copy image data: %w", err)
			}
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("failed to close multipart writer: %w", err)
		}
		return c.doJSON(ctx, http.MethodPost, "/api/v1/verification/verify", nil, body, writer.FormDataContentType(), &out)
	})
	if err != nil {
		return 0, fmt.Errorf("face comparison failed: %w", err)
	}

	best := 0.0
	for _, r := range out.Result {
		for _, m := range r.FaceMatches {
			if m.Similarity > best {
				best = m.Similarity
			}
		}
	}
	return best, nil
}

// ListSubjects returns all subject ids known to the engine.
func (c *Client) ListSubjects(ctx context.Context) ([]string, error) {
	var out struct {
		Subjects []string `json:"subjects"`
	}
	err := c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/v1/recognition/subjects", nil, nil, "", &out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return out.Subjects, nil
}

// ListFaces returns the handles of every face stored for a subject.
func (c *Client) ListFaces(ctx context.Context, subjectID string) ([]string, error) {
	var out struct {
		Faces []struct {
			ImageID string `json:"image_id"`
			Subject string `json:"subject"`
		} `json:"faces"`
	}
	q := url.Values{}
	q.Set("subject", subjectID)
	err := c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/v1/recognition/faces", q, nil, "", &out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for subject %s: %w", subjectID, err)
	}

	handles := make([]string, 0, len(out.Faces))
	for _, f := range out.Faces {
		handles = append(handles, f.ImageID)
	}
	return handles, nil
}
