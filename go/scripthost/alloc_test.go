package scripthost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemAccountReallocTracksTotal(t *testing.T) {
	var a = newMemAccount(0)
	require.True(t, a.realloc(0, 100))
	require.Equal(t, uint64(100), a.used())
	require.True(t, a.realloc(100, 40))
	require.Equal(t, uint64(40), a.used())
}

func TestMemAccountRefusesOverLimit(t *testing.T) {
	var a = newMemAccount(0)
	a.setLimit(50)
	require.True(t, a.realloc(0, 50))
	require.False(t, a.realloc(50, 51))
	require.Equal(t, uint64(50), a.used())
}

func TestMemAccountReportThresholdDoublesOnceCrossed(t *testing.T) {
	var a = newMemAccount(10)
	a.realloc(0, 11)
	require.True(t, a.crossedReportThreshold())
	require.False(t, a.crossedReportThreshold())

	a.realloc(11, 25)
	require.True(t, a.crossedReportThreshold())
}
