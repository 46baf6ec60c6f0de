//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultONNXRuntimeVersion matches the onnxruntime_go release fastembed-go
// is built against.
const DefaultONNXRuntimeVersion = "1.23.0"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%[1]s/onnxruntime-%[2]s-%[1]s.tgz"

// ErrUnsupportedPlatform is returned when no ONNX runtime build exists for
// the current OS and architecture.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// onnxPlatform is the release archive suffix for a GOOS/GOARCH pair.
var onnxPlatform = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

func onnxArchive(goos, goarch string) (string, error) {
	if p, ok := onnxPlatform[goos+"/"+goarch]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func onnxLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// onnxInstallDir is ~/.config/ragd/lib.
func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "ragd", "lib")
}

// GetONNXLibraryPath returns ONNX_PATH when set, else the managed install
// when present, else "".
func GetONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), onnxLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// DownloadONNXRuntime installs the runtime for this platform into the
// managed directory. An empty version means DefaultONNXRuntimeVersion.
func DownloadONNXRuntime(ctx context.Context, version string) error {
	if version == "" {
		version = DefaultONNXRuntimeVersion
	}
	return downloadONNXRuntimeTo(ctx, http.DefaultClient, version, onnxInstallDir())
}

func downloadONNXRuntimeTo(ctx context.Context, client *http.Client, version, destDir string) error {
	platform, err := onnxArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(onnxReleaseURL, version, platform), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	if err := extractLibraries(resp.Body, destDir, prefix, onnxLibraryName(runtime.GOOS)); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	return nil
}

// extractLibraries copies the regular files and symlinks under prefix in a
// gzipped tarball into destDir, flattening paths. Regular files never write
// through a symlink already at their destination. It fails when libName is
// not among them.
func extractLibraries(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		filename := filepath.Base(name)
		dest := filepath.Join(destDir, filename)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			// Links must stay inside destDir.
			if hdr.Linkname != filepath.Base(hdr.Linkname) || hdr.Linkname == ".." {
				continue
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if fi, err := os.Lstat(dest); err == nil && fi.Mode()&os.ModeSymlink != 0 {
				continue
			}
			if err := writeFile(dest, tr); err != nil {
				return fmt.Errorf("writing %s: %w", filename, err)
			}
		default:
			continue
		}

		if filename == libName || strings.HasPrefix(filename, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// setONNXPathEnv points fastembed-go at the library. Tests replace it.
var setONNXPathEnv = func(path string) error {
	return os.Setenv("ONNX_PATH", path)
}

// EnsureONNXRuntime returns the ONNX runtime library path, downloading the
// runtime when it is missing, and exports it as ONNX_PATH for fastembed-go.
func EnsureONNXRuntime(ctx context.Context) (string, error) {
	path := GetONNXLibraryPath()
	if path == "" {
		if err := DownloadONNXRuntime(ctx, ""); err != nil {
			return "", fmt.Errorf("failed to download ONNX runtime %s for %s/%s (set ONNX_PATH to use an existing install): %w",
				DefaultONNXRuntimeVersion, runtime.GOOS, runtime.GOARCH, err)
		}
		if path = GetONNXLibraryPath(); path == "" {
			return "", errors.New("ONNX runtime download completed but library not found")
		}
	}
	if err := setONNXPathEnv(path); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return path, nil
}
