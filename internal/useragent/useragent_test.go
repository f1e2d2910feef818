package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		ua   string
		want Browser
	}{
		{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36", Chrome},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", Safari},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0", Firefox},
		{"curl/8.4.0", All},
		{"", All},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Detect(c.ua), "ua=%q", c.ua)
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(Chrome))
	assert.True(t, Supported(Firefox))
	assert.True(t, Supported(Safari))
	assert.False(t, Supported(All))
}
