package registry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	ggcrregistry "github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/core/domain"
)

func setupRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(ggcrregistry.New())
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func pushRandom(t *testing.T, ref string) string {
	t.Helper()
	img, err := random.Image(256, 1)
	require.NoError(t, err)
	tag, err := name.NewTag(ref, name.Insecure)
	require.NoError(t, err)
	require.NoError(t, remote.Write(tag, img))
	digest, err := img.Digest()
	require.NoError(t, err)
	return digest.String()
}

func TestClient_RepointLatest(t *testing.T) {
	host := setupRegistry(t)
	repo := host + "/acme/app"
	released := pushRandom(t, repo+":1.0")
	previous := pushRandom(t, repo+":latest")
	require.NotEqual(t, released, previous)

	c := NewClient(false, authn.DefaultKeychain)
	ctx := context.Background()

	id, err := c.ResolveTag(ctx, repo, "1.0")
	require.NoError(t, err)
	assert.Equal(t, released, id)

	require.NoError(t, c.DeleteTag(ctx, repo, "latest"))
	require.NoError(t, c.SetTag(ctx, repo, "latest", id))

	latest, err := c.ResolveTag(ctx, repo, "latest")
	require.NoError(t, err)
	assert.Equal(t, released, latest)
}

func TestClient_ResolveMissingTag(t *testing.T) {
	host := setupRegistry(t)
	repo := host + "/acme/app"
	pushRandom(t, repo+":1.0")

	_, err := NewClient(false, nil).ResolveTag(context.Background(), repo, "2.0")

	assert.True(t, errors.Is(err, domain.ErrTagNotFound))
}

func TestClient_UnknownRepository(t *testing.T) {
	host := setupRegistry(t)

	_, err := NewClient(false, nil).ResolveTag(context.Background(), host+"/acme/none", "1.0")

	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTagNotFound))
}

func TestClient_SetTagUnknownDigest(t *testing.T) {
	host := setupRegistry(t)
	repo := host + "/acme/app"
	pushRandom(t, repo+":1.0")

	err := NewClient(false, nil).SetTag(context.Background(), repo, "latest",
		"sha256:0000000000000000000000000000000000000000000000000000000000000000")
	assert.Error(t, err)
}

func TestClient_InvalidRepository(t *testing.T) {
	_, err := NewClient(true, nil).ResolveTag(context.Background(), "UPPER/Case!", "1.0")
	assert.Error(t, err)
}
