package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_LastRankOfGroupIsHead(t *testing.T) {
	v, err := Build(3, 4, 4, true)
	require.NoError(t, err)
	assert.True(t, v.AmIAHead)
	assert.Equal(t, 3, v.HeadRank)

	v0, err := Build(0, 4, 4, true)
	require.NoError(t, err)
	assert.False(t, v0.AmIAHead)
	assert.Equal(t, 3, v0.HeadRank)
}

func TestBuild_HeadDisabledEveryRankIsOwnHead(t *testing.T) {
	v, err := Build(2, 4, 4, false)
	require.NoError(t, err)
	assert.False(t, v.AmIAHead)
	assert.Equal(t, v.MyRank, v.HeadRank)
}

func TestBuild_MultipleGroups(t *testing.T) {
	v, err := Build(5, 8, 4, true)
	require.NoError(t, err)
	assert.Equal(t, 1, v.GroupID)
	assert.Equal(t, 7, v.HeadRank)
	assert.Equal(t, 2, v.NbHeads)
}

func TestBuild_RejectsOutOfRangeRank(t *testing.T) {
	_, err := Build(4, 4, 4, true)
	assert.Error(t, err, "expected error for myRank == nbProc")
}
