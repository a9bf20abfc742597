package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTraceRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) {
		assert.Equal(t, GetTraceID(c), TraceIDFrom(c.Request.Context()))
		c.String(http.StatusOK, GetTraceID(c))
	})
	return r
}

func traceOf(r *gin.Engine, header string) (string, string) {
	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	if header != "" {
		req.Header.Set(TraceIDHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Body.String(), w.Header().Get(TraceIDHeader)
}

func TestTraceID_Generated(t *testing.T) {
	id, hdr := traceOf(newTraceRouter(t), "")
	assert.Len(t, id, 36)
	assert.Equal(t, id, hdr)
}

func TestTraceID_Provided(t *testing.T) {
	id, hdr := traceOf(newTraceRouter(t), "edge-7f3a.b_2")
	assert.Equal(t, "edge-7f3a.b_2", id)
	assert.Equal(t, id, hdr)
}

func TestTraceID_RejectsMalformed(t *testing.T) {
	r := newTraceRouter(t)
	for _, bad := range []string{"has space", "line\x01break", strings.Repeat("x", maxTraceIDLen+1)} {
		id, _ := traceOf(r, bad)
		assert.NotEqual(t, bad, id)
		assert.Len(t, id, 36, "replaced with a fresh id")
	}
}

func TestTraceID_UniquePerRequest(t *testing.T) {
	r := newTraceRouter(t)
	a, _ := traceOf(r, "")
	b, _ := traceOf(r, "")
	assert.NotEqual(t, a, b)
}

func TestTraceIDFrom(t *testing.T) {
	assert.Equal(t, "", TraceIDFrom(context.Background()))
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
	require.Equal(t, "abc", TraceIDFrom(WithTraceID(context.Background(), "abc")))
}
