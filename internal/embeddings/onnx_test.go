//go:build cgo

package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name     string
	body     string
	linkname string
	typeflag byte
}

func buildTarball(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Mode: 0644, Linkname: e.linkname}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if e.typeflag == tar.TypeDir {
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

const testPrefix = "onnxruntime-linux-x64-1.23.0/lib/"

func TestExtractLibraries(t *testing.T) {
	dir := t.TempDir()
	archive := buildTarball(t, []tarEntry{
		{name: "onnxruntime-linux-x64-1.23.0/", typeflag: tar.TypeDir},
		{name: "onnxruntime-linux-x64-1.23.0/README.md", body: "readme", typeflag: tar.TypeReg},
		{name: testPrefix + "libonnxruntime.so", linkname: "libonnxruntime.so.1.23.0", typeflag: tar.TypeSymlink},
		{name: "./" + testPrefix + "libonnxruntime.so.1.23.0", body: "ELF", typeflag: tar.TypeReg},
	})

	require.NoError(t, extractLibraries(archive, dir, testPrefix, "libonnxruntime.so"))

	data, err := os.ReadFile(filepath.Join(dir, "libonnxruntime.so.1.23.0"))
	require.NoError(t, err)
	assert.Equal(t, "ELF", string(data))

	target, err := os.Readlink(filepath.Join(dir, "libonnxruntime.so"))
	require.NoError(t, err)
	assert.Equal(t, "libonnxruntime.so.1.23.0", target)

	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.True(t, os.IsNotExist(err), "files outside the prefix are skipped")
}

func TestExtractLibraries_MissingLibrary(t *testing.T) {
	archive := buildTarball(t, []tarEntry{
		{name: testPrefix + "libother.so", body: "x", typeflag: tar.TypeReg},
	})

	err := extractLibraries(archive, t.TempDir(), testPrefix, "libonnxruntime.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}

func TestExtractLibraries_DoesNotWriteThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "victim")
	require.NoError(t, os.WriteFile(outside, []byte("original"), 0644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "libevil.so")))

	archive := buildTarball(t, []tarEntry{
		{name: testPrefix + "libevil.so", body: "overwritten", typeflag: tar.TypeReg},
		{name: testPrefix + "libonnxruntime.so", body: "ELF", typeflag: tar.TypeReg},
	})
	require.NoError(t, extractLibraries(archive, dir, testPrefix, "libonnxruntime.so"))

	data, err := os.ReadFile(outside)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestExtractLibraries_SymlinkAndFileSameName(t *testing.T) {
	dir := t.TempDir()
	archive := buildTarball(t, []tarEntry{
		{name: testPrefix + "libonnxruntime.so", linkname: "libonnxruntime.so.1", typeflag: tar.TypeSymlink},
		{name: testPrefix + "sub/libonnxruntime.so", body: "through the link", typeflag: tar.TypeReg},
	})
	require.NoError(t, extractLibraries(archive, dir, testPrefix, "libonnxruntime.so"))

	_, err := os.Stat(filepath.Join(dir, "libonnxruntime.so.1"))
	assert.True(t, os.IsNotExist(err), "link target must not be created by a later regular entry")
}

func TestExtractLibraries_RejectsEscapingSymlink(t *testing.T) {
	dir := t.TempDir()
	archive := buildTarball(t, []tarEntry{
		{name: testPrefix + "libup.so", linkname: "../../etc/passwd", typeflag: tar.TypeSymlink},
		{name: testPrefix + "libonnxruntime.so", body: "ELF", typeflag: tar.TypeReg},
	})
	require.NoError(t, extractLibraries(archive, dir, testPrefix, "libonnxruntime.so"))

	_, err := os.Lstat(filepath.Join(dir, "libup.so"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractLibraries_NotGzip(t *testing.T) {
	err := extractLibraries(bytes.NewBufferString("plain"), t.TempDir(), testPrefix, "libonnxruntime.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestONNXArchive(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := onnxArchive(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := onnxArchive("windows", "amd64")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestONNXLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", onnxLibraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", onnxLibraryName("darwin"))
}

func TestEnsureONNXRuntime_UsesONNXPath(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("ONNX runtime is only packaged for linux and darwin")
	}
	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")

	var exported string
	orig := setONNXPathEnv
	setONNXPathEnv = func(path string) error {
		exported = path
		return nil
	}
	t.Cleanup(func() { setONNXPathEnv = orig })

	path, err := EnsureONNXRuntime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", path)
	assert.Equal(t, path, exported)
}
