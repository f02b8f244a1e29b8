package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestValidateDestination(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"bob.smith+files@mail.example.org",
		"+14155550123",
		"07911 123456",
	}
	for _, d := range valid {
		assert.NoError(t, ValidateDestination(d), d)
	}

	invalid := []string{
		"",
		"not-an-address",
		"@example.com",
		"alice@",
		"555",
		"tel:+14155550123",
	}
	for _, d := range invalid {
		assert.ErrorIs(t, ValidateDestination(d), ErrBadDestination, d)
	}
}

func TestLogNotifier_RejectsBadDestination(t *testing.T) {
	n := NewLogNotifier(zap.NewNop().Sugar())

	err := n.Notify(context.Background(), "garbage", "code 123456")
	assert.ErrorIs(t, err, ErrBadDestination)

	assert.NoError(t, n.Notify(context.Background(), "alice@example.com", "code 123456"))
}
