package storagepath_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformkit/content-catalog/pkg/catalog/storagepath"
)

func TestBuild(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC)

	t.Run("date based layout", func(t *testing.T) {
		key, err := storagepath.Build("documents", "report.pdf", at)
		require.NoError(t, err)
		assert.Equal(t, "2024/01/05/documents/report.pdf", key)
	})

	t.Run("zero pads month and day", func(t *testing.T) {
		key, err := storagepath.Build("images", "photo.jpg", time.Date(2023, 9, 3, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "2023/09/03/images/photo.jpg", key)
	})

	t.Run("converts to UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC+5", 5*3600)
		// 01:00 on Jan 6 at UTC+5 is still Jan 5 in UTC.
		key, err := storagepath.Build("blog", "post.md", time.Date(2024, 1, 6, 1, 0, 0, 0, loc))
		require.NoError(t, err)
		assert.Equal(t, "2024/01/05/blog/post.md", key)
	})

	t.Run("same inputs same key", func(t *testing.T) {
		a, err := storagepath.Build("documents", "report.pdf", at)
		require.NoError(t, err)
		b, err := storagepath.Build("documents", "report.pdf", at.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("empty filename", func(t *testing.T) {
		_, err := storagepath.Build("documents", "", at)
		assert.ErrorIs(t, err, storagepath.ErrEmptyFilename)

		_, err = storagepath.Build("documents", "   ", at)
		assert.ErrorIs(t, err, storagepath.ErrEmptyFilename)
	})

	t.Run("filename with separators", func(t *testing.T) {
		_, err := storagepath.Build("documents", "a/b.pdf", at)
		assert.ErrorIs(t, err, storagepath.ErrInvalidFilename)

		_, err = storagepath.Build("documents", `a\b.pdf`, at)
		assert.ErrorIs(t, err, storagepath.ErrInvalidFilename)
	})
}

func TestContentTypeOf(t *testing.T) {
	ct, ok := storagepath.ContentTypeOf("2024/01/05/documents/report.pdf")
	require.True(t, ok)
	assert.Equal(t, "documents", ct)

	_, ok = storagepath.ContentTypeOf("not-a-key")
	assert.False(t, ok)

	_, ok = storagepath.ContentTypeOf("2024/01/05/report.pdf")
	assert.False(t, ok)
}

func TestDateOf(t *testing.T) {
	day, err := storagepath.DateOf("2024/01/05/documents/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), day)

	_, err = storagepath.DateOf("nope/nope/nope/documents/report.pdf")
	assert.Error(t, err)

	_, err = storagepath.DateOf("report.pdf")
	assert.Error(t, err)
}
