// Package osexit defines an analyzer that reports direct os.Exit calls in
// the main function of a main package. Exiting there skips deferred
// cleanup such as flushing the logger or the click queue.
package osexit

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

var Analyzer = &analysis.Analyzer{
	Name:     "osexit",
	Doc:      "reports os.Exit calls in func main of package main",
	Run:      run,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
}

func run(pass *analysis.Pass) (interface{}, error) {
	if pass.Pkg.Name() != "main" {
		return nil, nil
	}

	generated := make(map[*ast.File]bool, len(pass.Files))
	for _, f := range pass.Files {
		generated[f] = ast.IsGenerated(f)
	}

	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.WithStack([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			return true
		}

		file, ok := stack[0].(*ast.File)
		if !ok || generated[file] || !insideMain(stack) {
			return true
		}

		call := n.(*ast.CallExpr)
		fn, ok := typeutil.Callee(pass.TypesInfo, call).(*types.Func)
		if !ok || fn.Pkg() == nil || fn.Pkg().Path() != "os" || fn.Name() != "Exit" {
			return true
		}

		pass.Reportf(call.Pos(), "os.Exit called in main; return an error or log.Fatal instead")
		return true
	})

	return nil, nil
}

// insideMain reports whether the innermost enclosing function declaration is
// the package-level main. Calls inside closures defined in main count too.
func insideMain(stack []ast.Node) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		if decl, ok := stack[i].(*ast.FuncDecl); ok {
			return decl.Recv == nil && decl.Name.Name == "main"
		}
	}
	return false
}
