package plugin

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	hclog "github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/brane-run/brane/internal/ir"
)

// Handshake is the shared handshake both the VM host process and an
// out-of-process task backend must agree on before go-plugin will
// negotiate a connection.
var Handshake = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "BRANE_TASK_PLUGIN",
	MagicCookieValue: "brane",
}

// PluginMap is passed to hcplugin.ClientConfig/ServeConfig.
var PluginMap = map[string]hcplugin.Plugin{
	"task_backend": &taskPlugin{},
}

type taskPlugin struct {
	hcplugin.NetRPCUnsupportedPlugin
	Impl Backend
}

func (p *taskPlugin) Server(*hcplugin.MuxBroker) (any, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *taskPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &rpcClient{client: c}, nil
}

// rpcServer adapts a local Backend to net/rpc's method-per-call
// convention used by go-plugin's net/rpc transport.
type rpcServer struct {
	impl Backend
}

type ExecuteArgs struct {
	Info TaskInfo
}

type ExecuteReply struct {
	Value *ir.FullValue
}

func (s *rpcServer) Execute(args ExecuteArgs, reply *ExecuteReply) error {
	v, err := s.impl.Execute(context.Background(), nil, nil, args.Info)
	if err != nil {
		return err
	}
	reply.Value = v
	return nil
}

type PreprocessArgs struct {
	DataName string
	Spec     ir.TransferSpec
}

type PreprocessReply struct {
	Access AccessKind
}

func (s *rpcServer) Preprocess(args PreprocessArgs, reply *PreprocessReply) error {
	ch, err := s.impl.Preprocess(context.Background(), nil, nil, args.DataName, args.Spec)
	if err != nil {
		return err
	}
	res := <-ch
	if res.Err != nil {
		return res.Err
	}
	reply.Access = res.Access
	return nil
}

func (s *rpcServer) Publicize(name string, reply *struct{}) error {
	return s.impl.Publicize(context.Background(), nil, nil, name)
}

func (s *rpcServer) Stdout(line string, reply *struct{}) error {
	return s.impl.Stdout(context.Background(), nil, nil, line)
}

type CommitArgs struct {
	Name  string
	Value ir.FullValue
}

func (s *rpcServer) Commit(args CommitArgs, reply *struct{}) error {
	return s.impl.Commit(context.Background(), nil, nil, args.Name, args.Value)
}

// rpcClient is the VM-host-side stub talking to an out-of-process
// backend over net/rpc.
type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) Execute(ctx context.Context, global, local any, info TaskInfo) (*ir.FullValue, error) {
	var reply ExecuteReply
	if err := c.client.Call("Plugin.Execute", ExecuteArgs{Info: info}, &reply); err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (c *rpcClient) Preprocess(ctx context.Context, global, local any, dataName string, spec ir.TransferSpec) (<-chan PreprocessResult, error) {
	var reply PreprocessReply
	ch := make(chan PreprocessResult, 1)
	err := c.client.Call("Plugin.Preprocess", PreprocessArgs{DataName: dataName, Spec: spec}, &reply)
	if err != nil {
		ch <- PreprocessResult{Err: err}
	} else {
		ch <- PreprocessResult{Access: reply.Access}
	}
	close(ch)
	return ch, nil
}

func (c *rpcClient) Publicize(ctx context.Context, global, local any, name string) error {
	return c.client.Call("Plugin.Publicize", name, &struct{}{})
}

func (c *rpcClient) Stdout(ctx context.Context, global, local any, line string) error {
	return c.client.Call("Plugin.Stdout", line, &struct{}{})
}

func (c *rpcClient) Commit(ctx context.Context, global, local any, name string, value ir.FullValue) error {
	return c.client.Call("Plugin.Commit", CommitArgs{Name: name, Value: value}, &struct{}{})
}

// Serve runs impl as an out-of-process task-execution backend, blocking
// until the host process disconnects. A task-backend binary's main()
// calls this directly.
func Serve(impl Backend) {
	hcplugin.Serve(&hcplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         map[string]hcplugin.Plugin{"task_backend": &taskPlugin{Impl: impl}},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "task-backend",
			Level: hclog.Info,
		}),
	})
}

// DialBackend launches cmd as a child process speaking the task-backend
// protocol and returns a Backend stub talking to it, plus a closer that
// terminates the child and its RPC connection.
func DialBackend(cmd *exec.Cmd) (Backend, func(), error) {
	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             cmd,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "task-backend-client",
			Level: hclog.Info,
		}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: dialing task backend: %w", err)
	}
	raw, err := rpcClient.Dispense("task_backend")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: dispensing task backend: %w", err)
	}
	backend, ok := raw.(Backend)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: task backend does not implement Backend")
	}
	return backend, client.Kill, nil
}
