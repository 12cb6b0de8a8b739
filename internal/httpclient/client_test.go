package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultHTTPClient_SetsTimeout(t *testing.T) {
	c := NewDefaultHTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestNewPooledHTTPClient_ConfiguresConnectionPooling(t *testing.T) {
	c := NewPooledHTTPClient(10 * time.Second)
	assert.Equal(t, 10*time.Second, c.Timeout)

	transport, ok := c.Transport.(*http.Transport)
	assert.True(t, ok)
	assert.Equal(t, 100, transport.MaxIdleConns)
	assert.Equal(t, 10, transport.MaxIdleConnsPerHost)
}
