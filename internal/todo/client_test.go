package todo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientLoginStoresToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("decode credentials: %v", err)
		}
		if creds.Email != "a@b.c" || creds.Password != "hunter2" {
			t.Fatalf("unexpected credentials: %+v", creds)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	}))
	defer ts.Close()

	store := NewStaticStore("")
	client := NewClient(ts.URL, store)
	if err := client.Login(context.Background(), "a@b.c", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	token, err := store.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "tok-123" {
		t.Fatalf("stored token = %q, want %q", token, "tok-123")
	}
}

func TestClientAttachesBearerToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Fatalf("Authorization = %q, want %q", got, "Bearer tok-123")
		}
		_ = json.NewEncoder(w).Encode([]Task{{ID: "1", Title: "Buy Milk", Priority: PriorityMedium}})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, NewStaticStore("tok-123"))
	tasks, err := client.Todos(context.Background())
	if err != nil {
		t.Fatalf("Todos() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Buy Milk" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestClientSurfacesServerErrorMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, NewStaticStore(""))
	err := client.Login(context.Background(), "a@b.c", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusUnauthorized)
	}
	if apiErr.Message != "invalid credentials" {
		t.Fatalf("Message = %q, want server-supplied message", apiErr.Message)
	}
}

func TestClientCreateUpdateDelete(t *testing.T) {
	due := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/todos":
			var req CreateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode create: %v", err)
			}
			if req.Title != "Buy Milk" || req.Priority != PriorityMedium {
				t.Fatalf("unexpected create request: %+v", req)
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Task{ID: "1", Title: req.Title, Priority: req.Priority, DueAt: req.DueAt})
		case "PUT /api/todos/1":
			var req UpdateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode update: %v", err)
			}
			_ = json.NewEncoder(w).Encode(Task{ID: "1", Title: req.Title, Priority: req.Priority})
		case "DELETE /api/todos/1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, NewStaticStore("tok"))
	ctx := context.Background()

	created, err := client.Create(ctx, CreateRequest{Title: "Buy Milk", Priority: PriorityMedium, DueAt: due})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "1" {
		t.Fatalf("created.ID = %q, want %q", created.ID, "1")
	}

	updated, err := client.Update(ctx, "1", UpdateRequest{Title: "Buy Bread", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "Buy Bread" {
		t.Fatalf("updated.Title = %q, want %q", updated.Title, "Buy Bread")
	}

	if err := client.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestClientRetriesTransientListFailures(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]Task{{ID: "1", Title: "Buy Milk"}})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, NewStaticStore("tok"))
	tasks, err := client.Todos(context.Background())
	if err != nil {
		t.Fatalf("Todos() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if calls != 3 {
		t.Fatalf("server saw %d calls, want 3", calls)
	}
}

func TestClientDoesNotRetryCreate(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, NewStaticStore("tok"))
	if _, err := client.Create(context.Background(), CreateRequest{Title: "x"}); err == nil {
		t.Fatalf("Create() succeeded, want error")
	}
	if calls != 1 {
		t.Fatalf("server saw %d calls, want 1 (POST must not retry)", calls)
	}
}

func TestClientAuthedCallWithoutTokenFails(t *testing.T) {
	client := NewClient("http://localhost:0", NewStaticStore(""))
	_, err := client.Todos(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
}

func TestNormalizePriority(t *testing.T) {
	cases := []struct {
		in   string
		want Priority
	}{
		{"low", PriorityLow},
		{"medium", PriorityMedium},
		{"high", PriorityHigh},
		{"", PriorityMedium},
		{"urgent", PriorityMedium},
	}
	for _, tc := range cases {
		if got := NormalizePriority(tc.in); got != tc.want {
			t.Fatalf("NormalizePriority(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
