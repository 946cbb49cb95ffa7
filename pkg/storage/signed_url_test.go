package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerIssueAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", AudienceClientImport, time.Hour)
	token, expiresAt, err := signer.Issue("user-1", "imports/2024/05/abc.xlsx")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ticket, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", ticket.OwnerID)
	assert.Equal(t, "imports/2024/05/abc.xlsx", ticket.Path)
	assert.WithinDuration(t, expiresAt, ticket.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", AudiencePhotoDownload, time.Minute)
	token, _, err := signer.Issue("item-1", "photos/a.jpg")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestSignedURLSignerRejectsForeignTickets(t *testing.T) {
	photos := NewSignedURLSigner("secret", AudiencePhotoDownload, time.Hour)
	token, _, err := photos.Issue("user-1", "imports/a.csv")
	require.NoError(t, err)

	_, err = NewSignedURLSigner("other", AudiencePhotoDownload, time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidTicket)

	_, err = NewSignedURLSigner("secret", AudienceClientImport, time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidTicket, "same secret, different audience")

	_, err = photos.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidTicket)

	_, _, err = photos.Issue("", "photos/a.jpg")
	assert.ErrorIs(t, err, ErrInvalidTicket)
}
