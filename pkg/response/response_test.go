package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ringring-backend/pkg/errors"
)

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestFromError_CarriesCodeStatusAndDetails(t *testing.T) {
	// Execute
	w := serve(func(c *gin.Context) {
		FromError(c, apperrors.InvalidInputError("Unsupported avatar type").
			WithDetails(map[string]string{"content_type": "text/html"}))
	})

	// Assert
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), body.Error.Code)
	assert.Equal(t, "text/html", body.Error.Details["content_type"])
}

func TestFromError_HidesPlainErrors(t *testing.T) {
	// Execute
	w := serve(func(c *gin.Context) {
		FromError(c, errors.New("pq: password authentication failed"))
	})

	// Assert
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeInternal))
}

func TestNotFound(t *testing.T) {
	// Execute
	w := serve(func(c *gin.Context) { NotFound(c, "Contact not found") })

	// Assert
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeNotFound))
}
