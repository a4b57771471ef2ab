package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { L.SetLevel(logrus.InfoLevel) })

	require.NoError(t, SetLevel("debug"))
	require.Equal(t, logrus.DebugLevel, L.GetLevel())

	require.NoError(t, SetLevel("warning"))
	require.Equal(t, logrus.WarnLevel, L.GetLevel())

	require.Error(t, SetLevel("loud"))
	require.Equal(t, logrus.WarnLevel, L.GetLevel())
}
