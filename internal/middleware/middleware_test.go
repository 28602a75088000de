package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newIdentityRouter() *gin.Engine {
	r := gin.New()
	r.Use(Identity(), Idempotency(nil), ActorAttributes())
	r.POST("/v1/bookings/:id/confirm", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"actor": actor.ID, "role": actor.Role})
	})
	return r
}

func TestIdentity_RejectsMissingHeaders(t *testing.T) {
	r := newIdentityRouter()

	tests := []struct {
		name string
		id   string
		role string
	}{
		{name: "no headers"},
		{name: "no role", id: "drv-1"},
		{name: "unknown role", id: "drv-1", role: "mechanic"},
		{name: "no id", role: "driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/bookings/b1/confirm", nil)
			if tt.id != "" {
				req.Header.Set(ActorIDHeader, tt.id)
			}
			if tt.role != "" {
				req.Header.Set(ActorRoleHeader, tt.role)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestIdentity_StoresActor(t *testing.T) {
	r := newIdentityRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/b1/confirm", nil)
	req.Header.Set(ActorIDHeader, "drv-1")
	req.Header.Set(ActorRoleHeader, string(domain.RoleDriver))
	req.Header.Set(IdempotencyHeader, "retry-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotent-Replay") != "" {
		t.Error("nothing should be replayed without redis")
	}
}

func TestIsMutation(t *testing.T) {
	for method, want := range map[string]bool{
		http.MethodGet:    false,
		http.MethodPost:   true,
		http.MethodPatch:  true,
		http.MethodDelete: true,
	} {
		if got := isMutation(method); got != want {
			t.Errorf("isMutation(%s) = %v, want %v", method, got, want)
		}
	}
}

func TestIdempotencyCacheKey_ScopedToActorAndPath(t *testing.T) {
	r := gin.New()
	keys := make(chan string, 3)
	r.Use(Identity())
	r.POST("/v1/bookings/:id/pay", func(c *gin.Context) {
		keys <- idempotencyCacheKey(c, "k1")
		c.Status(http.StatusNoContent)
	})

	send := func(actor, path string) string {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(ActorIDHeader, actor)
		req.Header.Set(ActorRoleHeader, "customer")
		r.ServeHTTP(httptest.NewRecorder(), req)
		return <-keys
	}

	first := send("cust-1", "/v1/bookings/b1/pay")
	if want := "idempotency:cust-1:POST:/v1/bookings/b1/pay:k1"; first != want {
		t.Errorf("expected %s, got %s", want, first)
	}
	if other := send("cust-2", "/v1/bookings/b1/pay"); other == first {
		t.Errorf("keys for different actors collide: %s", first)
	}
	if other := send("cust-1", "/v1/bookings/b2/pay"); other == first {
		t.Errorf("keys for different bookings collide: %s", first)
	}
}
