package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter_Empty(t *testing.T) {
	filter, err := buildFilter(searchOptions{})
	require.NoError(t, err)
	assert.Nil(t, filter)
}

func TestBuildFilter_TagAndPath(t *testing.T) {
	filter, err := buildFilter(searchOptions{tag: "work", pathPrefix: "projects/"})
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.Equal(t, "work", filter.Tag)
	assert.Equal(t, "projects/", filter.PathPrefix)
	assert.True(t, filter.ModifiedAfter.IsZero())
}

func TestBuildFilter_ModifiedAfterDate(t *testing.T) {
	filter, err := buildFilter(searchOptions{modifiedAfter: "2026-08-01"})
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), filter.ModifiedAfter)
}

func TestBuildFilter_ModifiedAfterRFC3339(t *testing.T) {
	filter, err := buildFilter(searchOptions{modifiedAfter: "2026-08-01T12:30:00Z"})
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.Equal(t, 12, filter.ModifiedAfter.Hour())
}

func TestBuildFilter_BadDate(t *testing.T) {
	_, err := buildFilter(searchOptions{modifiedAfter: "yesterday"})
	assert.Error(t, err)
}

func TestGetSnippet(t *testing.T) {
	snippet := getSnippet("one\ntwo\nthree\nfour", 3)
	assert.Equal(t, []string{"one", "two", "three"}, snippet)

	snippet = getSnippet("only\n\n\n", 3)
	assert.Equal(t, []string{"only"}, snippet)

	snippet = getSnippet("", 3)
	assert.Empty(t, snippet)
}
