package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Prediction struct {
	Genre      string
	Confidence float64
}

type client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Title string `json:"title"`
}

type predictResponse struct {
	Status     string `json:"status"`
	Error      string `json:"error"`
	Prediction struct {
		PredictedGenre string  `json:"predicted_genre"`
		Confidence     float64 `json:"confidence"`
	} `json:"prediction"`
}

// PredictGenre asks the genre inference service for the most likely genre of
// the given title.
func (c client) PredictGenre(ctx context.Context, title string) (Prediction, error) {
	body, err := json.Marshal(predictRequest{Title: title})
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to call genre service: %w", err)
	}
	defer resp.Body.Close()

	var predictResp predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predictResp); err != nil {
		return Prediction{}, fmt.Errorf("failed to decode predict response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || predictResp.Status != "success" {
		return Prediction{}, fmt.Errorf("genre service returned %d: %s", resp.StatusCode, predictResp.Error)
	}

	return Prediction{
		Genre:      predictResp.Prediction.PredictedGenre,
		Confidence: predictResp.Prediction.Confidence,
	}, nil
}
