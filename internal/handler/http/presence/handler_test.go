package presence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ringring-backend/internal/domain"
)

type stubMirror struct {
	users    []domain.OnlineUser
	err      error
	degraded bool
}

func (s stubMirror) GetOnlineUsers(context.Context) ([]domain.OnlineUser, error) { return s.users, s.err }
func (s stubMirror) IsDegraded() bool                                           { return s.degraded }

type stubLocal []domain.OnlineUser

func (s stubLocal) OnlineUsers() []domain.OnlineUser { return s }

func TestGetOnlineUsers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	local := stubLocal{{UserID: "local-user", Name: "Local"}}

	tests := []struct {
		name   string
		mirror Mirror
		want   string
	}{
		{name: "redis", mirror: stubMirror{users: []domain.OnlineUser{{UserID: "u1", Name: "Ada"}}}, want: `"source":"redis"`},
		{name: "degraded", mirror: stubMirror{degraded: true}, want: `"source":"local"`},
		{name: "read error", mirror: stubMirror{err: errors.New("timeout")}, want: `"source":"local"`},
		{name: "no mirror", mirror: nil, want: `"source":"local"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/v1/presence/online", NewHandler(tt.mirror, local).GetOnlineUsers)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/presence/online", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}
