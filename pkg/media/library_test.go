package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T) (*Library, *LocalSink, string) {
	t.Helper()
	root := t.TempDir()
	sink, err := NewLocalSink(root, "/media-files")
	require.NoError(t, err)
	lib, err := NewLibrary(filepath.Join(root, "photos.db"), sink)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return lib, sink, root
}

func TestCreateListDeletePhoto(t *testing.T) {
	lib, sink, _ := newTestLibrary(t)

	photo, err := lib.CreatePhoto("QC12345", []byte("jpeg-bytes"), "media", "tag-1")
	require.NoError(t, err)
	assert.NotEmpty(t, photo.ID)
	assert.Equal(t, "QC12345", photo.OwnerPlayerID)
	assert.Equal(t, "media", photo.AddedByMode)
	assert.Equal(t, "tag-1", photo.OwnershipTag)
	assert.True(t, sink.Exists(photo.ObjectKey), "blob must exist alongside metadata")

	photos, err := lib.ListPhotos("QC12345")
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, photo.ID, photos[0].ID)
	assert.Contains(t, photos[0].ImageURL, "/media-files/photos/QC12345/")

	require.NoError(t, lib.DeletePhoto("QC12345", photo.ID))
	photos, err = lib.ListPhotos("QC12345")
	require.NoError(t, err)
	assert.Empty(t, photos)
	assert.False(t, sink.Exists(photo.ObjectKey))
}

func TestListPhotosNewestFirst(t *testing.T) {
	lib, _, _ := newTestLibrary(t)

	first, err := lib.CreatePhoto("QC12345", []byte("a"), "media", "t")
	require.NoError(t, err)
	second, err := lib.CreatePhoto("QC12345", []byte("b"), "media", "t")
	require.NoError(t, err)

	photos, err := lib.ListPhotos("QC12345")
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, second.ID, photos[0].ID)
	assert.Equal(t, first.ID, photos[1].ID)
}

func TestListPhotosUnknownPlayerIsEmpty(t *testing.T) {
	lib, _, _ := newTestLibrary(t)
	photos, err := lib.ListPhotos("nobody")
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestGetPhoto(t *testing.T) {
	lib, _, _ := newTestLibrary(t)
	created, err := lib.CreatePhoto("QC12345", []byte("x"), "standard", "sig")
	require.NoError(t, err)

	got, found, err := lib.GetPhoto("QC12345", created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sig", got.OwnershipTag)

	_, found, err = lib.GetPhoto("QC12345", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

// Closing the database first forces the metadata commit to fail while the
// blob write still succeeds.
func TestCreatePhotoRollsBackBlobOnMetadataFailure(t *testing.T) {
	root := t.TempDir()
	sink, err := NewLocalSink(root, "/media-files")
	require.NoError(t, err)
	lib, err := NewLibrary(filepath.Join(root, "photos.db"), sink)
	require.NoError(t, err)
	require.NoError(t, lib.Close())

	_, err = lib.CreatePhoto("QC12345", []byte("x"), "media", "tag")
	require.Error(t, err)

	// The blob written before the failed commit must be gone: no
	// blob-without-metadata state is ever visible.
	entries, globErr := filepath.Glob(filepath.Join(root, "photos", "QC12345", "*"))
	require.NoError(t, globErr)
	assert.Empty(t, entries)
}

func TestAvatarRoundTrip(t *testing.T) {
	lib, _, root := newTestLibrary(t)

	assert.Empty(t, lib.AvatarURL("QC12345"))

	url, err := lib.SetAvatar("QC12345", []byte("avatar-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/media-files/avatars/avatar_QC12345.jpg", url)
	assert.Equal(t, url, lib.AvatarURL("QC12345"))

	data, err := os.ReadFile(filepath.Join(root, "avatars", "avatar_QC12345.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("avatar-bytes"), data)
}

func TestLocalSinkPublicURL(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir(), "/media-files/")
	require.NoError(t, err)
	assert.Equal(t, "/media-files/photos/p/x.jpg", sink.PublicURL("photos/p/x.jpg"))
	assert.Equal(t, "/media-files/photos/p/x.jpg", sink.PublicURL("/photos/p/x.jpg"))
}
