package api

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestSendErrorWritesErrorBody(t *testing.T) {
	h := NewBaseHandler()
	c, w := newTestContext()

	h.SendError(c, 400, errors.New("boom"))

	require.Equal(t, 400, w.Code)
	require.Contains(t, w.Body.String(), "boom")
}

func TestSendJSONWritesBody(t *testing.T) {
	h := NewBaseHandler()
	c, w := newTestContext()

	h.SendJSON(c, 200, gin.H{"ok": true})

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"ok":true`)
}

func TestBindJSONWrapsBindErrors(t *testing.T) {
	h := NewBaseHandler()
	req := httptest.NewRequest("POST", "/", nil)
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	var out struct {
		Name string `json:"name"`
	}
	err := h.BindJSON(c, &out)
	require.Error(t, err)
}

func TestHeadHandlerReturnsOK(t *testing.T) {
	c, w := newTestContext()
	headHandler()(c)
	require.Equal(t, 200, w.Code)
}
