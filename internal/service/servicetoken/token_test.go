package servicetoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commitly/ledger/internal/apperrors"
)

func TestManager(t *testing.T) {
	t.Run("requires secret key", func(t *testing.T) {
		_, err := New(Config{})

		require.Error(t, err)
	})

	t.Run("issue and parse roundtrip", func(t *testing.T) {
		manager, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		token, err := manager.Issue("commitly-backend")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		service, err := manager.Parse(token)

		require.NoError(t, err)
		require.Equal(t, "commitly-backend", service)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		issuer, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		verifier, err := New(Config{SecretKey: "another-secret"})
		require.NoError(t, err)

		token, err := issuer.Issue("commitly-backend")
		require.NoError(t, err)

		_, err = verifier.Parse(token)

		require.ErrorIs(t, err, apperrors.ErrServiceTokenInvalid, "should return well known error")
	})

	t.Run("expired token rejected", func(t *testing.T) {
		manager, err := New(Config{SecretKey: "secret", TTL: -time.Minute})
		require.NoError(t, err)

		token, err := manager.Issue("commitly-backend")
		require.NoError(t, err)

		_, err = manager.Parse(token)

		require.ErrorIs(t, err, apperrors.ErrServiceTokenInvalid)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		manager, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		_, err = manager.Parse("not-a-token")

		require.ErrorIs(t, err, apperrors.ErrServiceTokenInvalid)
	})
}
