package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func ginParam(key, value string) gin.Param {
	return gin.Param{Key: key, Value: value}
}

func httptestJSONBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func httptestJSONRequest(t *testing.T, method, target string, v interface{}) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, httptestJSONBody(t, v))
}
