package worker

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// PolicyChecker decides whether a workflow is authorized to run a given
// container image, identified by the base64-encoded SHA-256 hash of its
// image tar. The interface is deliberately narrow so a future reasoner
// (consulting workflow metadata, requester identity, etc.) can replace
// the static allow-list without changing any caller.
type PolicyChecker interface {
	Authorize(imageHash string, ctx PolicyContext) (bool, error)
}

// PolicyContext carries whatever a reasoner might need beyond the
// image hash; the static allow-list checker ignores it entirely.
type PolicyContext struct {
	Package string
	Version string
	TaskName string
}

// HashAllowList is the only PolicyChecker implemented today: it reads a
// static list of allowed image hashes from a YAML file.
type HashAllowList struct {
	Hashes map[string]bool
}

type hashesYAML struct {
	Hashes []string `yaml:"hashes"`
}

// LoadHashAllowList reads hashes.yml.
func LoadHashAllowList(path string) (*HashAllowList, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr("execute", "reading policy file: %v", err)
	}
	var doc hashesYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, decodeErr("execute", fmt.Errorf("parsing policy file: %w", err))
	}
	set := make(map[string]bool, len(doc.Hashes))
	for _, h := range doc.Hashes {
		set[h] = true
	}
	return &HashAllowList{Hashes: set}, nil
}

func (h *HashAllowList) Authorize(imageHash string, _ PolicyContext) (bool, error) {
	return h.Hashes[imageHash], nil
}

// ExprReasoner is a forward-looking PolicyChecker backed by a compiled
// expr-lang program evaluated against the PolicyContext plus the image
// hash; it is the "interface prepared for a future reasoner" the
// allow-list checker stands in for today.
type ExprReasoner struct {
	program *vm.Program
}

// NewExprReasoner compiles a boolean expression (e.g.
// `image_hash == "abc123" && package == "acme/etl"`) against an env
// exposing image_hash, package, version, task_name.
func NewExprReasoner(source string) (*ExprReasoner, error) {
	env := map[string]any{
		"image_hash": "",
		"package":    "",
		"version":    "",
		"task_name":  "",
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, policyErr("execute", "compiling policy expression: %v", err)
	}
	return &ExprReasoner{program: program}, nil
}

func (r *ExprReasoner) Authorize(imageHash string, pc PolicyContext) (bool, error) {
	env := map[string]any{
		"image_hash": imageHash,
		"package":    pc.Package,
		"version":    pc.Version,
		"task_name":  pc.TaskName,
	}
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, policyErr("execute", "evaluating policy expression: %v", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
