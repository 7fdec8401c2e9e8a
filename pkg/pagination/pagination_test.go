package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFromValues(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		limit      int
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"defaults for zero values", 0, 0, 1, 20, 0},
		{"negative page falls back", -3, 10, 1, 10, 0},
		{"oversized limit is clamped not rejected", 2, 500, 2, 100, 100},
		{"valid values pass through", 3, 25, 3, 25, 50},
		{"limit at max stays", 1, 100, 1, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := FromValues(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, params.Page)
			assert.Equal(t, tt.wantLimit, params.Limit)
			assert.Equal(t, tt.wantOffset, params.Offset)
		})
	}
}

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"no params", "", 1, 20},
		{"limit param", "page=2&limit=50", 2, 50},
		{"page_size alias", "page=2&page_size=30", 2, 30},
		{"limit wins over alias", "limit=40&page_size=30", 1, 40},
		{"garbage falls back", "page=abc&limit=xyz", 1, 20},
		{"oversized clamps", "limit=9999", 1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/?"+tt.query, nil)

			params := Parse(c)
			assert.Equal(t, tt.wantPage, params.Page)
			assert.Equal(t, tt.wantLimit, params.Limit)
		})
	}
}
