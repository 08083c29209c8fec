package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errInvalid = errors.New("invalid")
	errMissing = errors.New("missing")
)

func TestMapping_StatusFor(t *testing.T) {
	m := Mapping{
		http.StatusBadRequest: {errInvalid},
		http.StatusNotFound:   {errMissing},
	}

	assert.Equal(t, http.StatusBadRequest, m.StatusFor(fmt.Errorf("wrapped: %w", errInvalid)))
	assert.Equal(t, http.StatusNotFound, m.StatusFor(errMissing))
	assert.Equal(t, http.StatusInternalServerError, m.StatusFor(errors.New("other")))
}

func TestFromError_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, Mapping{http.StatusNotFound: {errMissing}}, fmt.Errorf("run x: %w", errMissing))

	require.Equal(t, http.StatusNotFound, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.Equal(t, "run x: missing", body.Message)
	assert.Nil(t, body.Data)
}
