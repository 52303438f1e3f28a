package worker

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/brane-run/brane/internal/vm/plugin"
)

// DataKind distinguishes a dataset from an intermediate result when
// choosing which temp subdirectory to stage into.
type DataKind int

const (
	KindData DataKind = iota
	KindResult
)

// TransferPayload is the one currently-defined preprocess payload
// variant: fetch a tarball of a dataset or result from a peer node over
// mutual TLS.
type TransferPayload struct {
	Location string // peer location id, used to pick its cert/key
	Address  string // https URL to GET
}

// Worker provides the three control-plane-facing operations: preprocess,
// execute, commit.
type Worker struct {
	Config   *NodeConfig
	Backend  plugin.Backend
	Checker  PolicyChecker
	Launcher ContainerLauncher
	Cache    *DigestCache // nil disables digest caching

	// ServiceToken, when set, is sent as a Bearer credential on every
	// control-plane API request (package index, image registry).
	ServiceToken string

	httpClient *http.Client
}

func New(cfg *NodeConfig, backend plugin.Backend, checker PolicyChecker, launcher ContainerLauncher) *Worker {
	return &Worker{
		Config:     cfg,
		Backend:    backend,
		Checker:    checker,
		Launcher:   launcher,
		httpClient: cleanhttp.DefaultClient(),
	}
}

// Preprocess stages a dataset or intermediate result fetched from a
// peer node into this worker's local filesystem, returning the
// AccessKind the VM should record as now-Available.
func (w *Worker) Preprocess(dataName string, kind DataKind, payload TransferPayload) (plugin.AccessKind, error) {
	destRoot := w.Config.Paths.TempData
	if kind == KindResult {
		destRoot = w.Config.Paths.TempResults
	}
	dest := filepath.Join(destRoot, dataName)

	if err := os.RemoveAll(dest); err != nil {
		return plugin.AccessKind{}, ioErr("preprocess", "cleaning destination %s: %v", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return plugin.AccessKind{}, ioErr("preprocess", "creating destination %s: %v", dest, err)
	}

	client, err := w.peerClient(payload.Location)
	if err != nil {
		return plugin.AccessKind{}, err
	}

	resp, err := client.Get(payload.Address)
	if err != nil {
		return plugin.AccessKind{}, transportErr("preprocess", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return plugin.AccessKind{}, &Error{Class: ClassTransport, Op: "preprocess",
			Message: fmt.Sprintf("DownloadRequestFailure: status %d fetching %s", resp.StatusCode, payload.Address)}
	}

	tarPath := filepath.Join(os.TempDir(), "tars", fmt.Sprintf("%s_%s.tar.gz", kindLabel(kind), dataName))
	if err := os.MkdirAll(filepath.Dir(tarPath), 0o755); err != nil {
		return plugin.AccessKind{}, ioErr("preprocess", "creating tar staging dir: %v", err)
	}
	f, err := os.Create(tarPath)
	if err != nil {
		return plugin.AccessKind{}, ioErr("preprocess", "creating %s: %v", tarPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return plugin.AccessKind{}, transportErr("preprocess", fmt.Errorf("streaming response body: %w", err))
	}
	f.Close()

	if err := extractTarGz(tarPath, dest); err != nil {
		return plugin.AccessKind{}, ioErr("preprocess", "extracting %s: %v", tarPath, err)
	}

	return plugin.AccessKind{Path: dest}, nil
}

func kindLabel(k DataKind) string {
	if k == KindResult {
		return "res"
	}
	return "data"
}

// peerClient builds an http.Client configured for mutual TLS against a
// named peer location: this worker's own cert/key for the peer, and the
// peer domain's CA certificate as the trust root.
func (w *Worker) peerClient(location string) (*http.Client, error) {
	certPath := filepath.Join(w.Config.Paths.Certs, location+".crt")
	keyPath := filepath.Join(w.Config.Paths.Certs, location+".key")
	caPath := filepath.Join(w.Config.Paths.Certs, location+".ca.crt")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, ioErr("preprocess", "loading peer certificate for %s: %v", location, err)
	}
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, ioErr("preprocess", "loading peer CA for %s: %v", location, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, ioErr("preprocess", "parsing peer CA for %s", location)
	}

	transport := cleanhttp.DefaultTransport()
	transport.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}

	if w.Config.Endpoints.Proxy != "" {
		proxyURL, err := url.Parse(w.Config.Endpoints.Proxy)
		if err != nil {
			return nil, ioErr("preprocess", "parsing proxy endpoint: %v", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	// Retry transport-level failures (connection reset, timeout); a
	// non-2xx response is a terminal DownloadRequestFailure, never
	// retried, per §4.3.1/§4.3.4.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = transport
	retryClient.Logger = nil
	retryClient.CheckRetry = retryOnTransportErrorOnly
	return retryClient.StandardClient(), nil
}

// retryOnTransportErrorOnly retries connection-level failures (err !=
// nil) but treats every HTTP response, 2xx or not, as terminal: a
// non-2xx status is this package's own DownloadRequestFailure, decided
// by the caller, not retried here.
func retryOnTransportErrorOnly(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

func extractTarGz(tarPath, dest string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.Clean(hdr.Name))
		if rel, err := filepath.Rel(dest, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("tar entry %q escapes extraction root", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
