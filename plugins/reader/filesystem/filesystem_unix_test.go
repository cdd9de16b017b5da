//go:build !windows

package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qma/pkg/contract"
)

// TestWalkDirNonRegular 非常规文件被忽略
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "fifo"), 0o644))
	order, _ := collect(t, New(nil), []string{root})
	assert.Empty(t, order)
}

// TestIterateSymlink 指向常规文件的符号链接照常读取，fileID 用链接路径
func TestIterateSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "t.log")
	writeFile(t, target, []byte("ok"))
	link := filepath.Join(dir, "l.log")
	require.NoError(t, os.Symlink(target, link))
	order, got := collect(t, New(nil), []string{link})
	require.Len(t, order, 1)
	assert.True(t, strings.HasSuffix(order[0], "l.log"))
	assert.Equal(t, "ok", got[order[0]])
}

// TestIterateSymlinkDir 符号链接指向目录时忽略
func TestIterateSymlinkDir(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "real")
	writeFile(t, filepath.Join(realDir, "a.log"), []byte("x"))
	link := filepath.Join(root, "ln")
	require.NoError(t, os.Symlink(realDir, link))
	order, _ := collect(t, New(nil), []string{link})
	assert.Empty(t, order)
}

// TestWalkDirSymlinkDir 遍历目录时忽略指向目录的符号链接
func TestWalkDirSymlinkDir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	writeFile(t, filepath.Join(sub, "ok.log"), []byte("o"))
	require.NoError(t, os.Symlink(sub, filepath.Join(root, "sub_link")))
	order, _ := collect(t, New(nil), []string{root})
	require.Len(t, order, 1)
	assert.Equal(t, "ok.log", filepath.Base(order[0]))
}

// TestIterateSymlinkDangling 符号链接失效返回错误
func TestIterateSymlinkDangling(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "no"), link))
	err := New(nil).Iterate(context.Background(), []string{link}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.Error(t, err)
}
