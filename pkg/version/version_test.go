package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCommit(t *testing.T) {
	withRevision := func(rev string) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: rev}}}, true
		}
	}
	noInfo := func() (*debug.BuildInfo, bool) { return nil, false }

	assert.Equal(t, "abcdef12", resolveCommit("abcdef1234567890", noInfo))
	assert.Equal(t, "abc", resolveCommit("abc", noInfo))
	assert.Equal(t, "01234567", resolveCommit("", withRevision("0123456789abcdef")))
	assert.Equal(t, "dev", resolveCommit("", withRevision("")))
	assert.Equal(t, "dev", resolveCommit("", noInfo))
}

func TestFull(t *testing.T) {
	assert.Equal(t, AppName+"/"+GitCommit, Full())
}
