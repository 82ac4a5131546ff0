package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/AradIT/wadispatch/golang_services/internal/dispatch_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("accepts", func(t *testing.T) {
		p := NewMockProvider(logger, false, false, 0)
		handle, err := p.UploadMedia(context.Background(), "a.png", "image/png", []byte("x"))
		require.NoError(t, err)
		assert.NotEmpty(t, handle)

		id, err := p.SubmitMessage(context.Background(), "1", domain.TextPayload{Body: "hi"})
		require.NoError(t, err)
		assert.Contains(t, id, "wamid.")
	})

	t.Run("configured failures carry the phase", func(t *testing.T) {
		p := NewMockProvider(logger, true, true, 0)
		var provErr *domain.ProviderError

		_, err := p.UploadMedia(context.Background(), "a.png", "image/png", nil)
		require.True(t, errors.As(err, &provErr))
		assert.Equal(t, domain.PhaseUpload, provErr.Phase)

		_, err = p.SubmitMessage(context.Background(), "1", domain.TextPayload{Body: "hi"})
		require.True(t, errors.As(err, &provErr))
		assert.Equal(t, domain.PhaseSubmit, provErr.Phase)
	})

	t.Run("delay honours context", func(t *testing.T) {
		p := NewMockProvider(logger, false, false, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.SubmitMessage(ctx, "1", domain.TextPayload{Body: "hi"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
