// Пакет geoclient — HTTP-клиент геокодирования адресов (Nominatim API).
// Операция: Search (GET /search?format=json&limit=1) — преобразование
// текстового адреса в координаты.
package geoclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Location — результат геокодирования адреса.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
}

// nominatimResult — элемент ответа Nominatim /search.
// Координаты приходят строками.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Client — HTTP-клиент Nominatim.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент геокодирования.
// baseURL — базовый URL Nominatim (например, https://nominatim.openstreetmap.org).
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "geo_client")),
	}
}

// Search геокодирует текстовый адрес и возвращает лучший кандидат.
// Возвращает nil, nil если адрес не найден.
func (c *Client) Search(ctx context.Context, address string) (*Location, error) {
	candidates, err := c.SearchRanked(ctx, address, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// SearchRanked геокодирует текстовый адрес и возвращает до limit
// кандидатов в порядке релевантности Nominatim.
func (c *Client) SearchRanked(ctx context.Context, address string, limit int) ([]Location, error) {
	if limit < 1 {
		limit = 1
	}
	query := url.Values{
		"q":      {address},
		"format": {"json"},
		"limit":  {strconv.Itoa(limit)},
	}
	reqURL := c.baseURL + "/search?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса геокодирования: %w", err)
	}
	// Nominatim требует идентификацию клиента
	req.Header.Set("User-Agent", "dispatch-module/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос геокодирования: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("геокодер вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("декодирование ответа геокодера: %w", err)
	}

	if len(results) == 0 {
		c.logger.Debug("адрес не найден геокодером", slog.String("address", address))
		return nil, nil
	}

	locations := make([]Location, 0, len(results))
	for _, r := range results {
		lat, err := strconv.ParseFloat(r.Lat, 64)
		if err != nil {
			return nil, fmt.Errorf("разбор широты %q: %w", r.Lat, err)
		}
		lon, err := strconv.ParseFloat(r.Lon, 64)
		if err != nil {
			return nil, fmt.Errorf("разбор долготы %q: %w", r.Lon, err)
		}
		locations = append(locations, Location{
			Latitude:    lat,
			Longitude:   lon,
			DisplayName: r.DisplayName,
		})
	}
	return locations, nil
}

// CheckReady проверяет доступность геокодера.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return "fail", fmt.Sprintf("Геокодер: %v", err)
	}
	req.Header.Set("User-Agent", "dispatch-module/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("Геокодер недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "degraded", fmt.Sprintf("Геокодер вернул статус %d", resp.StatusCode)
	}

	return "ok", "Геокодер доступен"
}
