// Package container implements the worker's container-launch backend.
// Local is the only backend implemented; no other backend exists or
// can be selected.
package container

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

// Bind is one volume bind mount into the launched container.
type Bind struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// LaunchSpec fully describes one task-container invocation.
type LaunchSpec struct {
	Image          string
	ApplicationID  string
	LocationID     string
	JobID          string
	Kind           string // e.g. "execute"
	TaskName       string
	ArgsBase64     string
	Binds          []Bind
	KeepContainer  bool
}

// Result is what Local reports once the container has exited.
type Result struct {
	ExitCode int64
	Stdout   string
	Stderr   string
}

// Local launches task containers on the local Docker socket.
type Local struct {
	cli *client.Client
}

func NewLocal() (*Local, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("container: connecting to local docker socket: %w", err)
	}
	return &Local{cli: cli}, nil
}

// Launch creates, starts, and waits for the task container, returning
// its exit code and captured stdout/stderr.
func (l *Local) Launch(ctx context.Context, spec LaunchSpec) (Result, error) {
	var mounts []mount.Mount
	for _, b := range spec.Binds {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   b.HostPath,
			Target:   b.ContainerPath,
			ReadOnly: b.ReadOnly,
		})
	}

	cmd := []string{
		"--application-id", spec.ApplicationID,
		"--location-id", spec.LocationID,
		"--job-id", spec.JobID,
		spec.Kind, spec.TaskName, spec.ArgsBase64,
	}

	created, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Cmd:   cmd,
		Tty:   false,
	}, &container.HostConfig{
		Mounts: mounts,
	}, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("container: create: %w", err)
	}
	if !spec.KeepContainer {
		defer func() {
			_ = l.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		}()
	}

	if err := l.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("container: start: %w", err)
	}

	statusCh, errCh := l.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container: wait: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := l.cli.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{}, fmt.Errorf("container: logs: %w", err)
	}
	defer logs.Close()

	stdout, stderr := demultiplexLogs(logs)
	return Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

// demultiplexLogs reads docker's multiplexed log stream, separating
// stdout from stderr by the framing docker writes when Tty is false.
func demultiplexLogs(r io.Reader) (stdout, stderr string) {
	br := bufio.NewReader(r)
	var outBuf, errBuf []byte
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(br, header); err != nil {
			break
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		chunk := make([]byte, size)
		if _, err := io.ReadFull(br, chunk); err != nil {
			break
		}
		switch header[0] {
		case 1:
			outBuf = append(outBuf, chunk...)
		default:
			errBuf = append(errBuf, chunk...)
		}
	}
	return string(outBuf), string(errBuf)
}
