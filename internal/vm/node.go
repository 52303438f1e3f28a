package vm

import (
	"context"
	"sync"

	"github.com/brane-run/brane/internal/ir"
	"github.com/brane-run/brane/internal/vm/plugin"
)

// execNode pops one argument value per edge.ArgNames entry (in reverse
// push order), resolves dataset availability for every embedded
// Data/IntermediateResult name, preprocesses whatever is unavailable
// concurrently, invokes the backend's Execute, and — if the task
// declares an IntermediateResult return but produced no value —
// synthesizes one and announces it via Publicize.
func (t *Thread) execNode(ctx context.Context, edge ir.Edge, edgeIdx int) *Error {
	args := make(map[string]ir.FullValue, len(edge.ArgNames))
	for i := len(edge.ArgNames) - 1; i >= 0; i-- {
		v, err := t.Stack.Pop(edgeIdx)
		if err != nil {
			return err
		}
		fv, ferr := ir.ToFullValue(v)
		if ferr != nil {
			return newErr(StackTypeError, edgeIdx, -1, "argument %q: %s", edge.ArgNames[i], ferr.Error())
		}
		args[edge.ArgNames[i]] = fv
	}

	names := map[string]bool{}
	for _, fv := range args {
		v, _ := fv.ToValue()
		ir.Walk(v, func(n ir.Value) {
			if n.Kind == ir.VData || n.Kind == ir.VIntermediateResult {
				names[n.Str] = true
			}
		})
	}

	input := map[string]plugin.AccessKind{}
	var preErrs []*Error
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name := range names {
		avail, ok := edge.Input[name]
		if !ok {
			return newErr(UnknownInput, edgeIdx, -1, "no availability planned for %q", name)
		}
		if avail == nil {
			return newErr(UnplannedInput, edgeIdx, -1, "dataset %q was never planned", name)
		}
		if avail.Available {
			input[name] = avail.How
			continue
		}
		wg.Add(1)
		go func(name string, transfer ir.TransferSpec) {
			defer wg.Done()
			ch, err := t.Backend.Preprocess(ctx, t.Global, t.Local, name, transfer)
			if err != nil {
				mu.Lock()
				preErrs = append(preErrs, WrapPluginError(edgeIdx, err))
				mu.Unlock()
				return
			}
			res := <-ch
			if res.Err != nil {
				mu.Lock()
				preErrs = append(preErrs, WrapPluginError(edgeIdx, res.Err))
				mu.Unlock()
				return
			}
			mu.Lock()
			input[name] = res.Access
			mu.Unlock()
		}(name, avail.Transfer)
	}
	wg.Wait()
	if len(preErrs) > 0 {
		return preErrs[0]
	}

	info := plugin.TaskInfo{
		TaskID:   edge.Task,
		Name:     edge.Task,
		Args:     args,
		Location: edge.At,
		Input:    input,
		Result:   edge.Result,
	}
	result, err := t.Backend.Execute(ctx, t.Global, t.Local, info)
	if err != nil {
		return WrapPluginError(edgeIdx, err)
	}

	if edge.Result == "" {
		return nil
	}

	if result == nil {
		if perr := t.Backend.Publicize(ctx, t.Global, t.Local, edge.Result); perr != nil {
			return WrapPluginError(edgeIdx, perr)
		}
		t.Stack.Push(ir.IntermediateResult(edge.Result))
		return nil
	}

	v, verr := result.ToValue()
	if verr != nil {
		return newErr(ReturnTypeError, edgeIdx, -1, "decoding task result: %s", verr.Error())
	}
	t.Stack.Push(v)
	return nil
}
