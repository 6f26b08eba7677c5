package auditstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New("", "", nil)
	assert.Error(t, err)

	_, err = New("https://example.supabase.co", "", nil)
	assert.Error(t, err)

	_, err = New("", "service-key", nil)
	assert.Error(t, err)
}
