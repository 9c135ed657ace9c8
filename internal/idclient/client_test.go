package idclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockKeycloak создаёт mock HTTP-сервер Keycloak.
// tokenHandler обрабатывает запросы на получение токена.
// adminHandler обрабатывает запросы к Admin REST API.
func setupMockKeycloak(t *testing.T, tokenHandler, adminHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	// Token endpoint
	mux.HandleFunc("/realms/dispatch/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenHandler != nil {
			tokenHandler(w, r)
			return
		}
		// Дефолтный ответ: валидный токен на 300 секунд
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	})

	// Admin REST API
	mux.HandleFunc("/admin/realms/dispatch/", func(w http.ResponseWriter, r *http.Request) {
		if adminHandler != nil {
			adminHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(
		server.URL,
		"dispatch",
		"dispatch-module",
		"test-secret",
		server.Client(),
		testLogger(),
	)

	return server, client
}

// TestClient_TokenCaching проверяет кэширование токена.
func TestClient_TokenCaching(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "cached-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	ctx := context.Background()

	// Первый запрос — получение токена
	token1, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token1 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token1)
	}

	// Второй запрос — из кэша (не должен вызывать HTTP)
	token2, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token2 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token2)
	}

	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_TokenRefresh проверяет обновление истёкшего токена.
func TestClient_TokenRefresh(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "refreshed-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	// Устанавливаем «просроченный» токен в кэш
	client.accessToken = "old-token"
	client.tokenExpiry = time.Now().Add(-time.Second)

	ctx := context.Background()
	token, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка обновления токена: %v", err)
	}
	if token != "refreshed-token" {
		t.Errorf("ожидался refreshed-token, получен %s", token)
	}
	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_ClientCredentialsFlow проверяет формат запроса Client Credentials.
func TestClient_ClientCredentialsFlow(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("ожидался POST, получен %s", r.Method)
			}
			ct := r.Header.Get("Content-Type")
			if ct != "application/x-www-form-urlencoded" {
				t.Errorf("ожидался Content-Type application/x-www-form-urlencoded, получен %s", ct)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("Ошибка парсинга формы: %v", err)
			}
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("ожидался grant_type=client_credentials, получен %s", r.Form.Get("grant_type"))
			}
			if r.Form.Get("client_id") != "dispatch-module" {
				t.Errorf("ожидался client_id=dispatch-module, получен %s", r.Form.Get("client_id"))
			}
			if r.Form.Get("client_secret") != "test-secret" {
				t.Errorf("ожидался client_secret=test-secret, получен %s", r.Form.Get("client_secret"))
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "ok",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	_, err := client.getToken(context.Background())
	if err != nil {
		t.Fatalf("Ошибка: %v", err)
	}
}

// TestClient_TokenError проверяет обработку ошибки получения токена.
func TestClient_TokenError(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_client"}`))
		},
		nil,
	)

	_, err := client.getToken(context.Background())
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("ожидалась ошибка со статусом 401, получена: %v", err)
	}
}

// TestClient_CreateUser проверяет CreateUser.
func TestClient_CreateUser(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/users") {
				auth := r.Header.Get("Authorization")
				if auth != "Bearer test-access-token" {
					t.Errorf("ожидался Bearer test-access-token, получен %s", auth)
				}

				var req userCreateRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatalf("Ошибка декодирования: %v", err)
				}
				if req.Username != "jdupont" {
					t.Errorf("ожидался username=jdupont, получен %s", req.Username)
				}
				if !req.Enabled {
					t.Error("ожидался enabled=true")
				}
				if len(req.Credentials) != 1 || req.Credentials[0].Temporary {
					t.Errorf("ожидался один постоянный пароль, получено %+v", req.Credentials)
				}

				w.Header().Set("Location", "https://keycloak/admin/realms/dispatch/users/kc-user-id")
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	id, err := client.CreateUser(context.Background(), "jdupont", "jean@test.fr", "Jean", "Dupont", "Abc123!@")
	if err != nil {
		t.Fatalf("Ошибка CreateUser: %v", err)
	}
	if id != "kc-user-id" {
		t.Errorf("ожидался ID=kc-user-id, получен %s", id)
	}
}

// TestClient_GetUser проверяет GetUser.
func TestClient_GetUser(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/users/user-123") {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(KeycloakUser{
					ID:       "user-123",
					Username: "jdupont",
					Email:    "jean@test.fr",
					Enabled:  true,
				})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	user, err := client.GetUser(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Ошибка GetUser: %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("ожидался ID=user-123, получен %s", user.ID)
	}
}

// TestClient_GetUserGroups проверяет GetUserGroups.
func TestClient_GetUserGroups(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/users/user-123/groups") {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode([]KeycloakGroup{
					{ID: "g-1", Name: "dispatch-admins", Path: "/dispatch-admins"},
				})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	groups, err := client.GetUserGroups(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Ошибка GetUserGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("ожидалась 1 группа, получено %d", len(groups))
	}
	if groups[0].Name != "dispatch-admins" {
		t.Errorf("ожидалось имя dispatch-admins, получено %s", groups[0].Name)
	}
}

// TestClient_SetEnabled проверяет отключение учётной записи.
func TestClient_SetEnabled(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/users/user-123") {
				var body map[string]bool
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Fatalf("Ошибка декодирования: %v", err)
				}
				if body["enabled"] {
					t.Error("ожидался enabled=false")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	if err := client.SetEnabled(context.Background(), "user-123", false); err != nil {
		t.Fatalf("Ошибка SetEnabled: %v", err)
	}
}

// TestClient_ResetPassword проверяет установку нового пароля.
func TestClient_ResetPassword(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/users/user-123/reset-password") {
				var cred credential
				if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
					t.Fatalf("Ошибка декодирования: %v", err)
				}
				if cred.Type != "password" || cred.Temporary {
					t.Errorf("ожидался постоянный password credential, получено %+v", cred)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	if err := client.ResetPassword(context.Background(), "user-123", "Xyz789!@"); err != nil {
		t.Fatalf("Ошибка ResetPassword: %v", err)
	}
}

// TestClient_DeleteUser проверяет DeleteUser.
func TestClient_DeleteUser(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/users/user-123") {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	if err := client.DeleteUser(context.Background(), "user-123"); err != nil {
		t.Fatalf("Ошибка DeleteUser: %v", err)
	}
}

// TestClient_CheckReady проверяет CheckReady.
func TestClient_CheckReady(t *testing.T) {
	_, client := setupMockKeycloak(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimPrefix(r.URL.Path, "/admin/realms/dispatch")
			if path == "" || path == "/" {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(RealmRepresentation{
					Realm:   "dispatch",
					Enabled: true,
				})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	status, msg := client.CheckReady()
	if status != "ok" {
		t.Errorf("ожидался status=ok, получен %s: %s", status, msg)
	}
}

// TestClient_CheckReady_Fail проверяет CheckReady при недоступности.
func TestClient_CheckReady_Fail(t *testing.T) {
	client := New(
		"http://localhost:1", // Несуществующий адрес
		"dispatch",
		"dispatch-module",
		"secret",
		&http.Client{Timeout: 100 * time.Millisecond},
		testLogger(),
	)

	status, _ := client.CheckReady()
	if status != "fail" {
		t.Errorf("ожидался status=fail, получен %s", status)
	}
}
