package worker

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/itchyny/gojq"

	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/worker/container"
)

// ContainerLauncher abstracts the backend that actually runs a task
// container. Local (package container) is the only implemented
// backend; no other backend exists or can be selected.
type ContainerLauncher interface {
	Launch(ctx context.Context, spec container.LaunchSpec) (container.Result, error)
}

// Status mirrors the Execute RPC's status stream enum.
type Status int

const (
	Received Status = iota
	Authorized
	Denied
	Created
	Started
	Completed
	Finished
	Failed
	CreationFailed
	CompletionFailed
	DecodingFailed
	AuthorizationFailed
)

func (s Status) String() string {
	names := [...]string{
		"Received", "Authorized", "Denied", "Created", "Started", "Completed",
		"Finished", "Failed", "CreationFailed", "CompletionFailed", "DecodingFailed",
		"AuthorizationFailed",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// StatusUpdate is one item on the Execute response stream.
type StatusUpdate struct {
	Status Status
	Value  *ir.FullValue  // populated on Finished
	Failed *FailedDetail  // populated on Failed
	Err    error          // populated on any *Failed/Denied terminal status
}

type FailedDetail struct {
	Code   int64
	Stdout string
	Stderr string
}

// ExecuteRequest bundles the Execute RPC's parameters.
type ExecuteRequest struct {
	Workflow       ir.Workflow
	Package        string
	PackageVersion string
	TaskName       string
	Input          map[string]ir.AccessKind
	Result         string
	Args           map[string]ir.FullValue
	APIEndpoint    string
}

// Execute runs one container task invocation end to end, emitting a
// StatusUpdate at each stage per the §4.3.2 step list. The caller
// drains the returned channel to completion; the channel is always
// closed.
func (w *Worker) Execute(ctx context.Context, req ExecuteRequest) <-chan StatusUpdate {
	out := make(chan StatusUpdate, 8)
	go func() {
		defer close(out)
		w.execute(ctx, req, out)
	}()
	return out
}

func (w *Worker) execute(ctx context.Context, req ExecuteRequest, out chan<- StatusUpdate) {
	out <- StatusUpdate{Status: Received}

	image, digest, err := w.resolvePackage(req.Package, req.PackageVersion)
	if err != nil {
		out <- StatusUpdate{Status: CreationFailed, Err: err}
		return
	}

	imagePath, err := w.downloadImage(image, req.Package, req.PackageVersion, digest)
	if err != nil {
		out <- StatusUpdate{Status: CreationFailed, Err: err}
		return
	}

	imageHash, err := hashFile(imagePath)
	if err != nil {
		out <- StatusUpdate{Status: CreationFailed, Err: ioErr("execute", "hashing image tar: %v", err)}
		return
	}

	authorized, err := w.Checker.Authorize(imageHash, PolicyContext{
		Package: req.Package, Version: req.PackageVersion, TaskName: req.TaskName,
	})
	if err != nil {
		out <- StatusUpdate{Status: AuthorizationFailed, Err: err}
		return
	}
	if !authorized {
		out <- StatusUpdate{Status: Denied, Err: policyErr("execute", "image hash %s not in allow-list", imageHash)}
		return
	}
	out <- StatusUpdate{Status: Authorized}

	binds, err := w.argBinds(req)
	if err != nil {
		out <- StatusUpdate{Status: CreationFailed, Err: err}
		return
	}

	spec := container.LaunchSpec{
		Image:         image,
		ApplicationID: req.Package,
		LocationID:    w.Config.LocationID,
		JobID:         uuid.NewString(),
		Kind:          "execute",
		TaskName:      req.TaskName,
		ArgsBase64:    base64.StdEncoding.EncodeToString(mustMarshal(req.Args)),
		Binds:         binds,
		KeepContainer: w.Config.KeepContainers,
	}
	out <- StatusUpdate{Status: Created}
	out <- StatusUpdate{Status: Started}

	result, err := w.Launcher.Launch(ctx, spec)
	if err != nil {
		out <- StatusUpdate{Status: CompletionFailed, Err: containerErr("execute", "%v", err)}
		return
	}
	out <- StatusUpdate{Status: Completed}

	if result.ExitCode != 0 {
		out <- StatusUpdate{Status: Failed, Failed: &FailedDetail{Code: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}}
		return
	}

	value, err := decodeLastLine(result.Stdout)
	if err != nil {
		out <- StatusUpdate{Status: DecodingFailed, Err: decodeErr("execute", err)}
		return
	}
	out <- StatusUpdate{Status: Finished, Value: value}
}

// imageDigestQuery pulls the image reference and content digest out of
// whatever shape the control-plane's package index returns, so a
// registry that nests these fields differently doesn't need a new Go
// struct — just a different jq filter.
var imageDigestQuery = mustParseQuery(".image, .digest")

func mustParseQuery(src string) *gojq.Query {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("workerrpc: invalid built-in jq query %q: %v", src, err))
	}
	return q
}

// resolvePackage fetches the package index from the control-plane API
// and resolves (package, version) to an image name and digest, consulting
// the optional digest cache first.
func (w *Worker) resolvePackage(pkg, version string) (image, digest string, err error) {
	if cached, ok := w.Cache.Get(context.Background(), pkg, version); ok {
		if parts := strings.SplitN(cached, "|", 2); len(parts) == 2 {
			return parts[0], parts[1], nil
		}
	}

	resp, err := w.apiGet(w.Config.Endpoints.API + "/packages/" + pkg + "/" + version)
	if err != nil {
		return "", "", transportErr("execute", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &Error{Class: ClassTransport, Op: "execute", Message: fmt.Sprintf("package index returned status %d", resp.StatusCode)}
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", "", decodeErr("execute", err)
	}
	image, digest, err = runImageDigestQuery(doc)
	if err != nil {
		return "", "", decodeErr("execute", err)
	}

	w.Cache.Set(context.Background(), pkg, version, image+"|"+digest)
	return image, digest, nil
}

func runImageDigestQuery(doc any) (image, digest string, err error) {
	iter := imageDigestQuery.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return "", "", fmt.Errorf("package index response has no .image field")
	}
	if e, isErr := v.(error); isErr {
		return "", "", e
	}
	image, ok = v.(string)
	if !ok {
		return "", "", fmt.Errorf("package index .image field is not a string")
	}
	v, ok = iter.Next()
	if !ok {
		return "", "", fmt.Errorf("package index response has no .digest field")
	}
	if e, isErr := v.(error); isErr {
		return "", "", e
	}
	digest, ok = v.(string)
	if !ok {
		return "", "", fmt.Errorf("package index .digest field is not a string")
	}
	return image, digest, nil
}

// downloadImage caches the container image tar under packages_path,
// keyed by (name, version, digest); concurrent downloads of the same
// image may race harmlessly since both produce identical bytes and the
// final rename is atomic.
func (w *Worker) downloadImage(image, name, version, digest string) (string, error) {
	dest := filepath.Join(w.Config.Paths.Packages, fmt.Sprintf("%s-%s-%s.tar", name, version, digest))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	resp, err := w.apiGet(w.Config.Endpoints.Registry + "/images/" + image)
	if err != nil {
		return "", transportErr("execute", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Class: ClassTransport, Op: "execute", Message: fmt.Sprintf("registry returned status %d", resp.StatusCode)}
	}

	tmp := dest + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return "", ioErr("execute", "creating %s: %v", tmp, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", transportErr("execute", err)
	}
	f.Close()
	if err := os.Rename(tmp, dest); err != nil {
		return "", ioErr("execute", "renaming into place: %v", err)
	}
	return dest, nil
}

// apiGet issues a GET against the control-plane API or registry,
// attaching the worker's service token as a bearer credential when one
// has been loaded (LoadServiceToken).
func (w *Worker) apiGet(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if w.ServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.ServiceToken)
	}
	return w.httpClient.Do(req)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// argBinds maps every Data/IntermediateResult embedded in the task
// arguments to a bind mount of its directory, plus a result output
// directory bind when the task declares one.
func (w *Worker) argBinds(req ExecuteRequest) ([]container.Bind, error) {
	var binds []container.Bind
	seen := map[string]bool{}
	for _, fv := range req.Args {
		v, err := fv.ToValue()
		if err != nil {
			return nil, decodeErr("execute", err)
		}
		ir.Walk(v, func(n ir.Value) {
			if n.Kind != ir.VData && n.Kind != ir.VIntermediateResult {
				return
			}
			if seen[n.Str] {
				return
			}
			seen[n.Str] = true
			access, ok := req.Input[n.Str]
			if !ok {
				return
			}
			root := w.Config.Paths.Data
			if n.Kind == ir.VIntermediateResult {
				root = w.Config.Paths.Results
			}
			host := access.Path
			if host == "" {
				host = filepath.Join(root, n.Str)
			}
			binds = append(binds, container.Bind{HostPath: host, ContainerPath: "/brane/data/" + n.Str, ReadOnly: true})
		})
	}
	if req.Result != "" {
		resultDir := filepath.Join(w.Config.Paths.TempResults, req.Result)
		if err := os.MkdirAll(resultDir, 0o755); err != nil {
			return nil, ioErr("execute", "creating result dir: %v", err)
		}
		binds = append(binds, container.Bind{HostPath: resultDir, ContainerPath: "/brane/result"})
	}
	return binds, nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// decodeLastLine parses the last line of stdout as base64 then JSON
// into a FullValue, per the §4.3.2 step 8 contract.
func decodeLastLine(stdout string) (*ir.FullValue, error) {
	line := lastNonEmptyLine(stdout)
	if line == "" {
		return nil, fmt.Errorf("container produced no output line to decode")
	}
	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	var fv ir.FullValue
	if err := json.Unmarshal(raw, &fv); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return &fv, nil
}

func lastNonEmptyLine(s string) string {
	start := len(s)
	end := len(s)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			if end > i+1 {
				start = i + 1
				break
			}
			end = i
			start = 0
		}
		if i == 0 {
			start = 0
		}
	}
	line := s[start:end]
	for len(line) > 0 && (line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
